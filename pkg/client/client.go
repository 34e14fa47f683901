// Package client is the entrypoint of the BosBase Go SDK. Construct a
// Client with the base URL of your BosBase server and use the exposed
// services (Collections, Files, Realtime, PubSub, ...) to interact
// with the API.
package client

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bosbase/bosbase-go/pkg/auth"
	"github.com/bosbase/bosbase-go/pkg/pubsub"
	"github.com/bosbase/bosbase-go/pkg/realtime"
)

const userAgent = "bosbase-go-sdk/0.1.0"

// Client talks to a single BosBase server. All services share its
// HTTP client, auth store and logger. The zero value is not usable;
// construct it with New or NewWithConfig.
type Client struct {
	config *Config
	http   *http.Client
	logger *zap.Logger
	auth   *auth.Store

	realtime *realtime.Service
	pubsub   *pubsub.Service

	collections *CollectionService
	files       *FileService
	logs        *LogService
	settings    *SettingsService
	health      *HealthService
	backups     *BackupService
	crons       *CronService
	vectors     *VectorService
	caches      *CacheService
	graphql     *GraphQLService
	sql         *SQLService
}

// New creates a client with default configuration for the base URL.
func New(baseURL string) (*Client, error) {
	return NewWithConfig(DefaultConfig(baseURL))
}

// NewWithConfig creates a client from an explicit configuration.
func NewWithConfig(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	logger, err := newClientLogger(config.QuietMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg := *config
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Lang == "" {
		cfg.Lang = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		config: &cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		auth:   auth.NewStore(),
	}
	c.realtime = realtime.New(c, logger.Named("realtime"))
	c.pubsub = pubsub.New(c, logger.Named("pubsub"))

	c.collections = &CollectionService{crud: crudService{client: c, path: "/api/collections"}}
	c.files = &FileService{client: c}
	c.logs = &LogService{client: c}
	c.settings = &SettingsService{client: c}
	c.health = &HealthService{client: c}
	c.backups = &BackupService{client: c}
	c.crons = &CronService{client: c}
	c.vectors = &VectorService{client: c}
	c.caches = &CacheService{client: c}
	c.graphql = &GraphQLService{client: c}
	c.sql = &SQLService{client: c}

	return c, nil
}

// Close tears down the realtime and pub/sub connections.
func (c *Client) Close() {
	c.realtime.Disconnect()
	c.pubsub.Disconnect()
	_ = c.logger.Sync()
}

// AuthStore returns the token store shared by all services.
func (c *Client) AuthStore() *auth.Store { return c.auth }

// Realtime returns the record event stream service.
func (c *Client) Realtime() *realtime.Service { return c.realtime }

// PubSub returns the channel messaging service.
func (c *Client) PubSub() *pubsub.Service { return c.pubsub }

// Collection returns a record service scoped to the named collection.
func (c *Client) Collection(name string) *RecordService {
	return newRecordService(c, name)
}

// CreateBatch returns an empty batch builder.
func (c *Client) CreateBatch() *BatchService {
	return &BatchService{client: c}
}

func (c *Client) Collections() *CollectionService { return c.collections }
func (c *Client) Files() *FileService             { return c.files }
func (c *Client) Logs() *LogService               { return c.logs }
func (c *Client) Settings() *SettingsService      { return c.settings }
func (c *Client) Health() *HealthService          { return c.health }
func (c *Client) Backups() *BackupService         { return c.backups }
func (c *Client) Crons() *CronService             { return c.crons }
func (c *Client) Vectors() *VectorService         { return c.vectors }
func (c *Client) Caches() *CacheService           { return c.caches }
func (c *Client) GraphQL() *GraphQLService        { return c.graphql }
func (c *Client) SQL() *SQLService                { return c.sql }

// BuildURL joins a relative API path onto the configured base URL.
func (c *Client) BuildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.config.BaseURL + path
}

// AuthToken returns the stored token when it is valid, otherwise "".
func (c *Client) AuthToken() string {
	if !c.auth.IsValid() {
		return ""
	}
	return c.auth.Token()
}

// HTTPClient returns the shared request-scoped HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Lang returns the Accept-Language value sent with every request.
func (c *Client) Lang() string { return c.config.Lang }

// UserAgent returns the SDK's User-Agent value.
func (c *Client) UserAgent() string { return userAgent }

var filterPlaceholder = regexp.MustCompile(`\{:(\w+)\}`)

// Filter substitutes `{:name}` placeholders in a filter expression
// with properly quoted and escaped parameter values.
func (c *Client) Filter(expr string, params map[string]any) string {
	if len(params) == 0 {
		return expr
	}
	return filterPlaceholder.ReplaceAllStringFunc(expr, func(match string) string {
		name := filterPlaceholder.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			return match
		}
		return filterValue(value)
	})
}

func filterValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return "'" + t.UTC().Format("2006-01-02 15:04:05") + "'"
		}
		return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05") + "'"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", v), "'", `\'`) + "'"
	}
}
