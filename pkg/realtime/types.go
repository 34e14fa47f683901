// Package realtime maintains a durable Server-Sent-Events stream to
// the backend's /api/realtime endpoint and fans inbound record events
// out to subscribed callbacks. The subscription registry is the single
// source of truth: the connection is reconciled to it after every
// (re)connect by re-submitting the full topic set.
package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
)

// Core is the minimal surface the realtime service needs from the
// owning API client.
type Core interface {
	BuildURL(path string) string
	AuthToken() string // empty when no valid token is stored
	HTTPClient() *http.Client
	Lang() string
	UserAgent() string
}

// Event is a single decoded realtime frame.
type Event struct {
	Action string          `json:"action"`
	Record json.RawMessage `json:"record"`

	// Raw is the complete undecoded frame payload.
	Raw json.RawMessage `json:"-"`
}

// Callback handles one event. Callbacks for a topic run synchronously
// in registration order; a panicking callback is isolated and logged
// without affecting the others or the stream.
type Callback func(e Event)

// UnsubscribeFunc removes the subscription it was returned for.
// Calling it more than once is a no-op, and it is safe to call from
// within a callback.
type UnsubscribeFunc func()

// ErrInvalidTopic is returned by Subscribe for an empty or oversized
// topic.
var ErrInvalidTopic = errors.New("realtime: invalid topic")

// maxTopicLength mirrors the server-enforced limit.
const maxTopicLength = 2500

// connectEvent is the reserved handshake event carrying the client id.
const connectEvent = "PB_CONNECT"

// SubscribeOption customizes a single subscription. The options are
// forwarded to the server inside the subscription key so events can be
// pre-filtered server-side.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	query   map[string]any
	headers map[string]string
}

// WithQuery adds an arbitrary query parameter to the subscription.
func WithQuery(key string, value any) SubscribeOption {
	return func(o *subscribeOptions) {
		if o.query == nil {
			o.query = map[string]any{}
		}
		o.query[key] = value
	}
}

// WithFilter restricts the subscription to records matching the filter
// expression. The grammar belongs to the server and is passed through
// opaquely.
func WithFilter(expr string) SubscribeOption {
	return WithQuery("filter", expr)
}

// WithExpand expands the named relations on delivered records.
func WithExpand(expr string) SubscribeOption {
	return WithQuery("expand", expr)
}

// WithHeader adds a header forwarded with the subscription.
func WithHeader(key, value string) SubscribeOption {
	return func(o *subscribeOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// buildSubscriptionKey appends the serialized options to the topic as
// an `options=<urlencoded JSON>` suffix, matching the wire format the
// server expects in POST /api/realtime subscription strings. Distinct
// options on the same topic therefore produce distinct server-side
// subscriptions.
func buildSubscriptionKey(topic string, o subscribeOptions) string {
	if len(o.query) == 0 && len(o.headers) == 0 {
		return topic
	}
	payload := map[string]any{}
	if len(o.query) > 0 {
		payload["query"] = o.query
	}
	if len(o.headers) > 0 {
		payload["headers"] = o.headers
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		return topic
	}
	sep := "?"
	if containsQuery(topic) {
		sep = "&"
	}
	return topic + sep + "options=" + url.QueryEscape(string(serialized))
}

func containsQuery(topic string) bool {
	for i := 0; i < len(topic); i++ {
		if topic[i] == '?' {
			return true
		}
	}
	return false
}

// keyTopic strips the options suffix from a subscription key.
func keyTopic(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '?' {
			return key[:i]
		}
	}
	return key
}

// topicMatches reports whether a subscription on sub should receive a
// frame addressed to topic. A `collection/*` subscription matches
// every record-level topic in that collection.
func topicMatches(sub, topic string) bool {
	if sub == topic {
		return true
	}
	if len(sub) >= 2 && sub[len(sub)-2:] == "/*" {
		prefix := sub[:len(sub)-1] // keep the trailing slash
		return len(topic) > len(prefix) && topic[:len(prefix)] == prefix
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
