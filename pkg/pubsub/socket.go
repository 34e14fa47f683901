package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 30 * time.Second
	outboundQueueSize = 256
)

// loop keeps one socket alive: dial with capped exponential backoff,
// replay the full topic set, pump frames until the connection dies,
// repeat. It exits only on explicit teardown or when there is nothing
// left to serve. The outbound queue belongs to this loop's session;
// teardown drops the queue together with the loop.
func (s *Service) loop(ctx context.Context, gen uint64, out chan []byte, done chan struct{}) {
	defer close(done)
	defer s.markStopped(gen)

	bo := newBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.dialSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("pubsub connect failed, retrying", zap.Error(err))
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
			if s.stopIfIdle(gen) {
				return
			}
			continue
		}

		bo.Reset()
		if !s.attach(gen, conn) {
			conn.Close()
			return
		}
		s.log.Info("pubsub socket established")

		// The server holds no subscription state across connections.
		// Write the complete topic set on the fresh socket before
		// pumping queued frames; the pump's writer is not running yet,
		// so the loop still owns the connection exclusively.
		if err := s.replaySubscriptions(conn); err != nil {
			s.log.Debug("pubsub subscription replay failed", zap.Error(err))
		}

		s.pump(ctx, conn, out)

		s.detach(gen)
		s.failPending(ErrConnectionLost)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if s.stopIfIdle(gen) {
			return
		}
		s.log.Info("pubsub socket lost, reconnecting")
	}
}

// replaySubscriptions writes a subscribe frame per registered topic
// directly on the new connection, deriving the set solely from the
// subscription table.
func (s *Service) replaySubscriptions(conn *websocket.Conn) error {
	for _, topic := range s.topicsSnapshot() {
		b, err := json.Marshal(wireFrame{Op: opSubscribe, Topic: topic})
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// pump runs the writer goroutine and the read loop for one connection
// and returns when either side fails. The writer closes the connection
// on its way out so the reader never stays blocked in ReadMessage
// after a teardown.
func (s *Service) pump(ctx context.Context, conn *websocket.Conn, out chan []byte) {
	wctx, cancelWrite := context.WithCancel(ctx)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case <-wctx.Done():
				conn.Close() // unblocks the reader
				return
			case b := <-out:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					s.log.Debug("pubsub write failed", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("pubsub socket closed", zap.Error(err))
			}
			break
		}
		s.handleFrame(data)
	}

	cancelWrite()
	conn.Close()
	<-writeDone
}

// handleFrame routes one inbound frame: publish acknowledgements and
// errors resolve their pending request, everything else with a topic
// is a message for dispatch. Malformed frames are dropped.
func (s *Service) handleFrame(data []byte) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("pubsub frame dropped: malformed payload", zap.Error(err))
		return
	}
	switch {
	case f.Op == opAck:
		s.resolvePending(f, nil)
	case f.Op == opError:
		msg := f.Message
		if msg == "" {
			msg = "server error"
		}
		s.resolvePending(f, fmt.Errorf("%w: %s", ErrPublishRejected, msg))
	case f.Topic != "":
		s.dispatch(f)
	default:
		s.log.Warn("pubsub frame dropped: no topic and no known op")
	}
}

// dialSocket derives the WebSocket URL from the API base URL and
// opens the connection, passing the auth token as a query parameter.
func (s *Service) dialSocket(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.core.BuildURL("/api/pubsub"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if token := s.core.AuthToken(); token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("User-Agent", s.core.UserAgent())
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil && err != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// sendControl queues a subscribe or unsubscribe frame for the live
// connection. While disconnected it does nothing: the next connect
// replays the full topic set from the subscription table. When the
// queue has no room the connection is dropped instead, so the
// reconnect resynchronizes the server rather than silently losing the
// frame.
func (s *Service) sendControl(f wireFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Warn("pubsub frame encode failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	connected := s.connected
	out := s.out
	conn := s.conn
	s.mu.Unlock()
	if !connected || out == nil {
		return
	}

	select {
	case out <- b:
	default:
		s.log.Warn("pubsub outbound queue full, forcing resync", zap.String("op", f.Op))
		if conn != nil {
			conn.Close()
		}
	}
}

// enqueueCtx queues an outbound frame for the current session, waiting
// for queue room until ctx is done. A frame never outlives the session
// it was queued in.
func (s *Service) enqueueCtx(ctx context.Context, f wireFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return ErrConnectionLost
	}

	select {
	case out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attach publishes the live connection; false means a newer generation
// took over while dialing.
func (s *Service) attach(gen uint64, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.conn = conn
	s.connected = true
	return true
}

func (s *Service) detach(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.conn = nil
	s.connected = false
}

// stopIfIdle exits the loop when nothing is subscribed and no publish
// is pending, or when a newer generation took over.
func (s *Service) stopIfIdle(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return true
	}
	if len(s.subs) == 0 && len(s.pending) == 0 {
		s.running = false
		s.connected = false
		return true
	}
	return false
}

func (s *Service) markStopped(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.running = false
	s.connected = false
	s.conn = nil
	s.failPendingLocked(ErrConnectionLost)
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
