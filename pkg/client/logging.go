package client

import (
	"go.uber.org/zap"
)

// newClientLogger builds the SDK's logger. The default development
// logger keeps reconnect and dispatch activity visible while wiring an
// app up; quiet mode trades that for a production configuration that
// only reports warnings and errors, without caller annotations.
func newClientLogger(quiet bool) (*zap.Logger, error) {
	if quiet {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		return cfg.Build()
	}
	return zap.NewDevelopment()
}
