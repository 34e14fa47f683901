// Package pubsub maintains a single WebSocket connection to the
// backend's /api/pubsub endpoint, multiplexing topic subscriptions and
// publish requests over it. Publishes are request/acknowledgement
// exchanges correlated by a client-assigned id; subscriptions survive
// reconnects because the full topic set is replayed to the server on
// every successful (re)connect.
package pubsub

import (
	"encoding/json"
	"errors"
)

// Message is one delivered pub/sub message, or the server's
// acknowledgement payload for a publish.
type Message struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Created string          `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// Callback handles one inbound message for a subscribed topic.
// Callbacks run synchronously in registration order; a panicking
// callback is isolated and logged without affecting the others or the
// connection.
type Callback func(msg Message)

// UnsubscribeFunc removes the subscription it was returned for. It is
// idempotent and safe to call from within a callback.
type UnsubscribeFunc func()

var (
	// ErrInvalidTopic is returned for an empty or oversized topic.
	ErrInvalidTopic = errors.New("pubsub: invalid topic")

	// ErrUnauthenticated is returned by Publish when no valid auth
	// token is stored. No network send is attempted.
	ErrUnauthenticated = errors.New("pubsub: authentication required")

	// ErrConnectionLost rejects pending publishes when the connection
	// drops before their acknowledgement arrives.
	ErrConnectionLost = errors.New("pubsub: connection lost")

	// ErrPublishRejected wraps an explicit server error frame for a
	// publish request.
	ErrPublishRejected = errors.New("pubsub: publish rejected")
)

const maxTopicLength = 2500

// Frame ops, client to server.
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opPublish     = "publish"
)

// Frame ops, server to client. Message frames carry no op, only a
// topic.
const (
	opAck   = "ack"
	opError = "error"
)

// wireFrame is the JSON envelope exchanged over the socket in both
// directions.
type wireFrame struct {
	Op      string          `json:"op,omitempty"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Created string          `json:"created,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Core is the minimal surface the pub/sub service needs from the
// owning API client.
type Core interface {
	BuildURL(path string) string
	AuthToken() string // empty when no valid token is stored
	UserAgent() string
}
