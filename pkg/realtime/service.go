package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Service is the public subscribe/unsubscribe surface. It owns the
// background goroutine that keeps the event stream alive and resyncs
// the subscription registry with the server after every (re)connect.
type Service struct {
	core   Core
	log    *zap.Logger
	reg    *Registry
	stream *http.Client

	mu        sync.Mutex
	gen       uint64
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	clientID  string
	connected bool

	// syncMu serializes subscription submissions so two concurrent
	// resyncs cannot land on the server out of order.
	syncMu sync.Mutex
}

// New creates a realtime service bound to the given API core.
func New(core Core, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		core:   core,
		log:    logger,
		reg:    NewRegistry(),
		stream: newStreamClient(core.HTTPClient()),
	}
}

// Subscribe registers the callback for the topic and makes sure the
// stream is (being) established. It never blocks on network I/O; the
// coordinator syncs the topic set with the server asynchronously.
func (s *Service) Subscribe(topic string, fn Callback, opts ...SubscribeOption) (UnsubscribeFunc, error) {
	if topic == "" || len(topic) > maxTopicLength {
		return nil, ErrInvalidTopic
	}
	if fn == nil {
		return nil, fmt.Errorf("realtime: nil callback")
	}

	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	key := buildSubscriptionKey(topic, o)
	h := s.reg.Add(key, fn)

	s.ensureLoop()
	s.resyncIfConnected()

	var once sync.Once
	return func() {
		once.Do(func() {
			if !s.reg.Remove(h) {
				return
			}
			if s.reg.Len() == 0 {
				s.shutdown()
			} else {
				s.resyncIfConnected()
			}
		})
	}, nil
}

// Unsubscribe removes all subscriptions for the given topics. With no
// arguments it removes everything and tears the connection down.
func (s *Service) Unsubscribe(topics ...string) {
	if len(topics) == 0 {
		s.reg.Clear()
		s.shutdown()
		return
	}
	changed := false
	for _, topic := range topics {
		if s.reg.RemoveTopic(topic) {
			changed = true
		}
	}
	if !changed {
		return
	}
	if s.reg.Len() == 0 {
		s.shutdown()
	} else {
		s.resyncIfConnected()
	}
}

// UnsubscribeByPrefix removes every subscription whose key starts with
// the prefix (used by the record service for per-collection teardown).
func (s *Service) UnsubscribeByPrefix(prefix string) {
	if !s.reg.RemoveByPrefix(prefix) {
		return
	}
	if s.reg.Len() == 0 {
		s.shutdown()
	} else {
		s.resyncIfConnected()
	}
}

// IsConnected reports whether the handshake completed on the current
// connection.
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ClientID returns the server-assigned client id for the current
// connection. It changes on every reconnect and is empty while
// disconnected.
func (s *Service) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Disconnect stops the coordinator and waits for it to exit. Must not
// be called from within a subscription callback; use the returned
// unsubscribe functions there instead.
func (s *Service) Disconnect() {
	s.mu.Lock()
	done := s.done
	s.teardownLocked()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// shutdown tears the connection down without waiting for the loop to
// exit, so it is safe to reach from inside a dispatched callback.
func (s *Service) shutdown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

func (s *Service) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.done = nil
	s.clientID = ""
	s.connected = false
}

// ensureLoop starts the coordinator goroutine if it is not running.
func (s *Service) ensureLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, gen, done)
}

// loop is the reconnection coordinator: dial, listen, resync, retry
// with capped exponential backoff, forever, until torn down or the
// registry drains.
func (s *Service) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	defer s.markStopped(gen)

	bo := newBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		c, err := dial(ctx, s.stream, s.core)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("realtime connect failed, retrying", zap.Error(err))
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
			if s.stopIfIdle(gen) {
				return
			}
			continue
		}

		bo.Reset()
		s.listen(ctx, gen, c)
		c.close()
		s.handleDisconnect(gen)

		if ctx.Err() != nil {
			return
		}
		if s.stopIfIdle(gen) {
			return
		}
		s.log.Info("realtime stream lost, reconnecting")
	}
}

// listen consumes frames until the stream ends.
func (s *Service) listen(ctx context.Context, gen uint64, c *conn) {
	for {
		f, err := c.next()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("realtime stream closed", zap.Error(err))
			}
			return
		}
		if f.event == connectEvent {
			s.handleConnect(gen, f)
			continue
		}
		s.dispatch(f)
	}
}

// handleConnect records the server-assigned client id and pushes the
// full current subscription set. The server holds no memory of a prior
// connection, so this is always the complete snapshot, never a diff.
func (s *Service) handleConnect(gen uint64, f frame) {
	var payload struct {
		ClientID string `json:"clientId"`
	}
	_ = json.Unmarshal([]byte(strings.TrimSuffix(f.data, "\n")), &payload)
	clientID := payload.ClientID
	if clientID == "" {
		clientID = f.id
	}
	if clientID == "" {
		s.log.Warn("realtime handshake frame without client id")
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.clientID = clientID
	s.connected = true
	s.mu.Unlock()

	s.log.Info("realtime connected", zap.String("client_id", clientID))
	s.submitSubscriptions()
}

// dispatch decodes one frame and invokes every matching callback in
// registration order. Callback failures are isolated per callback.
func (s *Service) dispatch(f frame) {
	payload := strings.TrimSuffix(f.data, "\n")
	if payload == "" {
		payload = "{}"
	}
	ev := Event{Raw: json.RawMessage(payload)}
	if err := json.Unmarshal(ev.Raw, &ev); err != nil {
		s.log.Warn("realtime frame dropped: malformed payload",
			zap.String("topic", f.event),
			zap.Error(err))
		return
	}
	for _, cb := range s.reg.Match(f.event) {
		s.invoke(cb, ev, f.event)
	}
}

func (s *Service) invoke(cb Callback, ev Event, topic string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("realtime callback panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	cb(ev)
}

// submitSubscriptions POSTs the registry snapshot. Submissions run one
// at a time, and the snapshot is taken only once a submission's turn
// arrives, so the last request on the wire always carries the latest
// registry state.
func (s *Service) submitSubscriptions() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	clientID := s.clientID
	s.mu.Unlock()
	subs := s.reg.Snapshot()
	if clientID == "" || len(subs) == 0 {
		return
	}

	body, err := json.Marshal(map[string]any{
		"clientId":      clientID,
		"subscriptions": subs,
	})
	if err != nil {
		s.log.Warn("realtime subscription submit failed", zap.Error(err))
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.core.BuildURL("/api/realtime"), bytes.NewReader(body))
	if err != nil {
		s.log.Warn("realtime subscription submit failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", s.core.Lang())
	req.Header.Set("User-Agent", s.core.UserAgent())
	if token := s.core.AuthToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := s.core.HTTPClient().Do(req)
	if err != nil {
		s.log.Warn("realtime subscription submit failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn("realtime subscription submit rejected", zap.Int("status", resp.StatusCode))
		return
	}
	s.log.Debug("realtime subscriptions submitted", zap.Int("count", len(subs)))
}

// resyncIfConnected pushes the topic set in the background when a live
// handshaked connection exists; otherwise the next connect covers it.
func (s *Service) resyncIfConnected() {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if connected {
		go s.submitSubscriptions()
	}
}

func (s *Service) handleDisconnect(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.clientID = ""
	s.connected = false
}

// stopIfIdle exits the loop when the registry drained or a newer
// generation took over.
func (s *Service) stopIfIdle(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return true
	}
	if s.reg.Len() == 0 {
		s.running = false
		s.clientID = ""
		s.connected = false
		return true
	}
	return false
}

func (s *Service) markStopped(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.running = false
		s.clientID = ""
		s.connected = false
	}
}

func newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // retry forever
	return bo
}

// sleepCtx waits for the delay and reports false when the context was
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
