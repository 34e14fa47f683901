package realtime

import (
	"strings"
	"sync"
)

// registryListener pairs a callback with a monotonically increasing id
// so dispatch order follows registration order even across keys.
type registryListener struct {
	id uint64
	fn Callback
}

// Handle identifies a single registered subscription.
type Handle struct {
	key string
	id  uint64
}

// Registry is the authoritative topic -> callbacks mapping. Keys carry
// the encoded subscription options, so two subscribers with different
// options on one topic occupy different keys.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string][]registryListener
	nextID uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]registryListener)}
}

// Add registers a callback under the given subscription key.
func (r *Registry) Add(key string, fn Callback) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs[key] = append(r.subs[key], registryListener{id: r.nextID, fn: fn})
	return Handle{key: key, id: r.nextID}
}

// Remove deletes exactly the subscription identified by the handle.
// It reports whether anything was removed, so a second call with the
// same handle is a no-op.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	listeners, ok := r.subs[h.key]
	if !ok {
		return false
	}
	for i, l := range listeners {
		if l.id == h.id {
			r.subs[h.key] = append(listeners[:i], listeners[i+1:]...)
			if len(r.subs[h.key]) == 0 {
				delete(r.subs, h.key)
			}
			return true
		}
	}
	return false
}

// RemoveTopic drops every subscription for the topic, regardless of
// its per-subscription options.
func (r *Registry) RemoveTopic(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for key := range r.subs {
		if key == topic || strings.HasPrefix(key, topic+"?") {
			delete(r.subs, key)
			changed = true
		}
	}
	return changed
}

// RemoveByPrefix drops every subscription whose key starts with the
// prefix. Used for per-collection teardown.
func (r *Registry) RemoveByPrefix(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for key := range r.subs {
		if strings.HasPrefix(key, prefix) {
			delete(r.subs, key)
			changed = true
		}
	}
	return changed
}

// Clear removes everything.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]registryListener)
}

// Len returns the number of distinct subscription keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Snapshot returns the deduplicated, sorted subscription keys as they
// should be submitted to the server. The snapshot reflects the
// registry at call time, never a cached view.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{}, len(r.subs))
	for key := range r.subs {
		set[key] = struct{}{}
	}
	return sortedKeys(set)
}

// Match returns the callbacks that should receive a frame addressed to
// the given topic, in registration order. The copy is taken under the
// read lock so callbacks may subscribe or unsubscribe freely while
// they run.
func (r *Registry) Match(topic string) []Callback {
	frameTopic := keyTopic(topic)
	r.mu.RLock()
	var matched []registryListener
	for key, listeners := range r.subs {
		if key == topic || topicMatches(keyTopic(key), frameTopic) {
			matched = append(matched, listeners...)
		}
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		return nil
	}
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].id < matched[j-1].id; j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}
	out := make([]Callback, len(matched))
	for i, l := range matched {
		out[i] = l.fn
	}
	return out
}
