package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// listener pairs a callback with a registration id so removal via the
// returned unsubscribe function targets exactly one subscription.
type listener struct {
	id uint64
	fn Callback
}

type publishResult struct {
	msg *Message
	err error
}

// Service is the public pub/sub surface. A single background goroutine
// owns the socket; application-facing calls only touch the
// subscription table and the pending-publish table.
type Service struct {
	core Core
	log  *zap.Logger

	mu        sync.Mutex
	gen       uint64
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	conn      *websocket.Conn
	out       chan []byte // outbound queue of the current session, nil after teardown
	subs      map[string][]listener
	nextID    uint64
	pending   map[string]chan publishResult
}

// New creates a pub/sub service bound to the given API core.
func New(core Core, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		core:    core,
		log:     logger,
		subs:    make(map[string][]listener),
		pending: make(map[string]chan publishResult),
	}
}

// Subscribe registers the callback for the topic and makes sure the
// socket is (being) established. It never blocks on network I/O.
func (s *Service) Subscribe(topic string, fn Callback) (UnsubscribeFunc, error) {
	if topic == "" || len(topic) > maxTopicLength {
		return nil, ErrInvalidTopic
	}
	if fn == nil {
		return nil, fmt.Errorf("pubsub: nil callback")
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	first := len(s.subs[topic]) == 0
	s.subs[topic] = append(s.subs[topic], listener{id: id, fn: fn})
	s.mu.Unlock()

	s.ensureLoop()
	if first {
		s.sendControl(wireFrame{Op: opSubscribe, Topic: topic})
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.removeListener(topic, id) })
	}, nil
}

// Publish sends the payload to the topic and waits for the server's
// acknowledgement. It requires a valid auth token and resolves when
// the correlated ack or error frame arrives, the connection drops, or
// ctx is done.
func (s *Service) Publish(ctx context.Context, topic string, data any) (*Message, error) {
	if topic == "" || len(topic) > maxTopicLength {
		return nil, ErrInvalidTopic
	}
	if s.core.AuthToken() == "" {
		return nil, ErrUnauthenticated
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("pubsub: encode payload: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan publishResult, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	s.ensureLoop()
	if err := s.enqueueCtx(ctx, wireFrame{Op: opPublish, ID: id, Topic: topic, Data: payload}); err != nil {
		s.dropPending(id)
		return nil, err
	}

	select {
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case res := <-ch:
		return res.msg, res.err
	}
}

// Unsubscribe removes all subscriptions for the given topics. With no
// arguments it removes everything and tears the connection down.
func (s *Service) Unsubscribe(topics ...string) {
	if len(topics) == 0 {
		s.mu.Lock()
		s.subs = make(map[string][]listener)
		s.mu.Unlock()
		s.shutdown()
		return
	}

	removed := make([]string, 0, len(topics))
	s.mu.Lock()
	for _, topic := range topics {
		if _, ok := s.subs[topic]; ok {
			delete(s.subs, topic)
			removed = append(removed, topic)
		}
	}
	idle := len(s.subs) == 0 && len(s.pending) == 0
	s.mu.Unlock()

	for _, topic := range removed {
		s.sendControl(wireFrame{Op: opUnsubscribe, Topic: topic})
	}
	if idle {
		s.shutdown()
	}
}

// IsConnected reports whether a live socket currently exists.
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect stops the socket loop and waits for it to exit, rejecting
// any pending publishes. Must not be called from within a callback;
// use the returned unsubscribe functions there instead.
func (s *Service) Disconnect() {
	s.mu.Lock()
	done := s.done
	s.teardownLocked()
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// removeListener backs the unsubscribe functions returned by
// Subscribe.
func (s *Service) removeListener(topic string, id uint64) {
	s.mu.Lock()
	listeners := s.subs[topic]
	for i, l := range listeners {
		if l.id == id {
			listeners = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	last := len(listeners) == 0
	if last {
		delete(s.subs, topic)
	} else {
		s.subs[topic] = listeners
	}
	idle := len(s.subs) == 0 && len(s.pending) == 0
	s.mu.Unlock()

	if last {
		s.sendControl(wireFrame{Op: opUnsubscribe, Topic: topic})
	}
	if idle {
		s.shutdown()
	}
}

// shutdown tears the socket down without waiting for the loop to
// exit, so it is safe to reach from inside a dispatched callback.
func (s *Service) shutdown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

// teardownLocked ends the current session: the loop context is
// cancelled, the live socket is closed so a blocked reader wakes up,
// and the session's outbound queue is dropped with it. Frames queued
// in a dead session must never reach a later connection.
func (s *Service) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.running = false
	s.done = nil
	s.connected = false
	s.out = nil
	s.failPendingLocked(ErrConnectionLost)
}

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
	out := make(chan []byte, outboundQueueSize)
	s.running = true
	s.cancel = cancel
	s.done = done
	s.out = out
	go s.loop(ctx, gen, out, done)
}

// dispatch invokes every callback registered for the topic, in
// registration order, isolating per-callback panics.
func (s *Service) dispatch(f wireFrame) {
	msg := Message{ID: f.ID, Topic: f.Topic, Created: f.Created, Data: f.Data}

	s.mu.Lock()
	listeners := make([]listener, len(s.subs[f.Topic]))
	copy(listeners, s.subs[f.Topic])
	s.mu.Unlock()

	for _, l := range listeners {
		s.invoke(l.fn, msg)
	}
}

func (s *Service) invoke(cb Callback, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pubsub callback panicked",
				zap.String("topic", msg.Topic),
				zap.Any("panic", r))
		}
	}()
	cb(msg)
}

// resolvePending completes the publish waiting on the frame's id.
func (s *Service) resolvePending(f wireFrame, err error) {
	s.mu.Lock()
	ch, ok := s.pending[f.ID]
	if ok {
		delete(s.pending, f.ID)
	}
	s.mu.Unlock()
	if !ok {
		s.log.Debug("pubsub frame for unknown publish id dropped", zap.String("id", f.ID))
		return
	}
	if err != nil {
		ch <- publishResult{err: err}
		return
	}
	ch <- publishResult{msg: &Message{ID: f.ID, Topic: f.Topic, Created: f.Created, Data: f.Data}}
}

func (s *Service) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Service) failPending(err error) {
	s.mu.Lock()
	s.failPendingLocked(err)
	s.mu.Unlock()
}

func (s *Service) failPendingLocked(err error) {
	for id, ch := range s.pending {
		ch <- publishResult{err: err}
		delete(s.pending, id)
	}
}

// topicsSnapshot returns the currently subscribed topics, sorted.
func (s *Service) topicsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
