package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type testCore struct {
	base  string
	token string
}

func (c *testCore) BuildURL(path string) string { return c.base + path }
func (c *testCore) AuthToken() string           { return c.token }
func (c *testCore) UserAgent() string           { return "bosbase-go-sdk/test" }

// socketServer is a minimal pub/sub backend: it acknowledges publishes,
// rejects them for one designated topic, and records subscribe frames
// so tests can assert on replay behavior.
type socketServer struct {
	srv         *httptest.Server
	rejectTopic string
	dropTopic   string // publishing here kills the connection without an ack

	mu        sync.Mutex
	connCount int
	current   *websocket.Conn
	wmu       *sync.Mutex
	subs      []string
	publishes int
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	s := &socketServer{}
	upgrader := websocket.Upgrader{}

	r := chi.NewRouter()
	r.Get("/api/pubsub", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		wmu := &sync.Mutex{}
		s.mu.Lock()
		s.connCount++
		s.current = conn
		s.wmu = wmu
		s.subs = nil
		s.mu.Unlock()

		defer conn.Close()
		for {
			var f wireFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Op {
			case opSubscribe:
				s.mu.Lock()
				s.subs = append(s.subs, f.Topic)
				s.mu.Unlock()
			case opUnsubscribe:
				s.mu.Lock()
				remaining := s.subs[:0]
				for _, topic := range s.subs {
					if topic != f.Topic {
						remaining = append(remaining, topic)
					}
				}
				s.subs = remaining
				s.mu.Unlock()
			case opPublish:
				s.mu.Lock()
				s.publishes++
				s.mu.Unlock()
				switch f.Topic {
				case s.dropTopic:
					return
				case s.rejectTopic:
					wmu.Lock()
					conn.WriteJSON(wireFrame{Op: opError, ID: f.ID, Message: "not allowed"})
					wmu.Unlock()
				default:
					wmu.Lock()
					conn.WriteJSON(wireFrame{
						Op:      opAck,
						ID:      f.ID,
						Topic:   f.Topic,
						Data:    f.Data,
						Created: time.Now().UTC().Format(time.RFC3339),
					})
					wmu.Unlock()
				}
			}
		}
	})

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *socketServer) core(token string) *testCore {
	return &testCore{base: s.srv.URL, token: token}
}

// push delivers a message frame to the currently connected client.
func (s *socketServer) push(topic string, data any) {
	payload, _ := json.Marshal(data)
	s.mu.Lock()
	conn, wmu := s.current, s.wmu
	s.mu.Unlock()
	if conn == nil {
		return
	}
	wmu.Lock()
	conn.WriteJSON(wireFrame{ID: "m1", Topic: topic, Data: payload, Created: time.Now().UTC().Format(time.RFC3339)})
	wmu.Unlock()
}

func (s *socketServer) closeCurrent() {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *socketServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connCount
}

func (s *socketServer) publishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishes
}

func (s *socketServer) subscribedTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subs))
	copy(out, s.subs)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPublishAckCorrelation(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := svc.Publish(ctx, "chat", map[string]string{"text": "hello"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if msg == nil || msg.Topic != "chat" {
		t.Fatalf("unexpected ack message: %+v", msg)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Data, &body); err != nil || body["text"] != "hello" {
		t.Fatalf("ack did not echo the payload: %s", msg.Data)
	}
}

func TestPublishRejected(t *testing.T) {
	srv := newSocketServer(t)
	srv.rejectTopic = "locked"
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := svc.Publish(ctx, "locked", "payload")
	if !errors.Is(err, ErrPublishRejected) {
		t.Fatalf("expected ErrPublishRejected, got %v", err)
	}
}

func TestPublishUnauthenticated(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core(""), nil)
	defer svc.Disconnect()

	_, err := svc.Publish(context.Background(), "chat", "hello")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if n := srv.connections(); n != 0 {
		t.Fatalf("unauthenticated publish must not open a connection, saw %d", n)
	}
}

func TestPublishConnectionLost(t *testing.T) {
	srv := newSocketServer(t)
	srv.dropTopic = "doomed"
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := svc.Publish(ctx, "doomed", "payload")
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}

func TestPublishValidation(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	if _, err := svc.Publish(context.Background(), "", "x"); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
}

func TestSubscribeReceivesMessages(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	received := make(chan Message, 4)
	unsub, err := svc.Subscribe("chat", func(m Message) { received <- m })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsub()

	waitFor(t, "server-side subscription", func() bool {
		topics := srv.subscribedTopics()
		return len(topics) == 1 && topics[0] == "chat"
	})

	srv.push("chat", map[string]string{"text": "hi"})
	select {
	case m := <-received:
		if m.Topic != "chat" {
			t.Fatalf("unexpected topic %q", m.Topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
	}

	// After unsubscribing, further frames on the topic must not reach
	// the callback.
	unsub()
	unsub() // second call is a no-op
	srv.push("chat", map[string]string{"text": "late"})
	select {
	case m := <-received:
		t.Fatalf("callback invoked after unsubscribe: %+v", m)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeCallbackOrderAndIsolation(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 4)

	unsub1, _ := svc.Subscribe("chat", func(Message) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		done <- struct{}{}
		panic("boom")
	})
	defer unsub1()
	unsub2, _ := svc.Subscribe("chat", func(Message) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		done <- struct{}{}
	})
	defer unsub2()

	waitFor(t, "server-side subscription", func() bool {
		return len(srv.subscribedTopics()) == 1
	})

	srv.push("chat", "x")
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for callback %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected callback order: %v", order)
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	received := make(chan Message, 4)
	unsub, _ := svc.Subscribe("chat", func(m Message) { received <- m })
	defer unsub()

	waitFor(t, "initial subscription", func() bool {
		return len(srv.subscribedTopics()) == 1
	})

	srv.closeCurrent()

	waitFor(t, "replayed subscription on the new connection", func() bool {
		return srv.connections() >= 2 && len(srv.subscribedTopics()) == 1
	})

	srv.push("chat", "again")
	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for post-reconnect message")
	}
}

func TestDisconnectReturnsWithLiveSocket(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)

	unsub, _ := svc.Subscribe("chat", func(Message) {})
	defer unsub()
	waitFor(t, "connection", func() bool { return svc.IsConnected() })

	// Disconnect must unblock the reader sitting on the open socket and
	// return once the loop has exited.
	returned := make(chan struct{})
	go func() {
		svc.Disconnect()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatalf("Disconnect did not return while a socket was live")
	}
	if svc.IsConnected() {
		t.Fatalf("still connected after Disconnect")
	}
}

func TestCancelledPublishNeverTransmitted(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)
	defer svc.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Publish(ctx, "chat", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Bring a connection up; nothing queued by the failed publish may
	// reach the server on it.
	unsub, _ := svc.Subscribe("chat", func(Message) {})
	defer unsub()
	waitFor(t, "server-side subscription", func() bool {
		return len(srv.subscribedTopics()) >= 1
	})
	time.Sleep(100 * time.Millisecond)
	if n := srv.publishCount(); n != 0 {
		t.Fatalf("cancelled publish reached the server %d times", n)
	}
}

func TestUnsubscribeLastTopicTearsDown(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)

	unsub, _ := svc.Subscribe("chat", func(Message) {})
	waitFor(t, "connection", func() bool { return svc.IsConnected() })

	unsub()
	waitFor(t, "teardown after last unsubscribe", func() bool { return !svc.IsConnected() })
}

func TestUnsubscribeAll(t *testing.T) {
	srv := newSocketServer(t)
	svc := New(srv.core("test-token"), nil)

	unsub1, _ := svc.Subscribe("a", func(Message) {})
	defer unsub1()
	unsub2, _ := svc.Subscribe("b", func(Message) {})
	defer unsub2()

	waitFor(t, "connection", func() bool { return svc.IsConnected() })

	svc.Unsubscribe()
	waitFor(t, "disconnect", func() bool { return !svc.IsConnected() })
}
