// Package auth holds the client-side auth state: the bearer token and
// the authenticated record returned by the server's auth endpoints.
// The store is safe for concurrent use and notifies registered
// listeners whenever the state changes.
package auth

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChangeFunc is invoked after every Save or Clear with the new state.
type ChangeFunc func(token string, record json.RawMessage)

type listener struct {
	id int
	fn ChangeFunc
}

// Store keeps the current auth token and record.
type Store struct {
	mu        sync.RWMutex
	token     string
	record    json.RawMessage
	listeners []listener
	nextID    int
}

// NewStore creates an empty auth store.
func NewStore() *Store {
	return &Store{}
}

// Token returns the stored token, valid or not.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Record returns the stored auth record (nil when unauthenticated).
func (s *Store) Record() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// IsValid reports whether a token is present and its JWT exp claim is
// in the future. The signature is not verified; the server remains the
// authority on token validity.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return false
	}
	return isJWTValid(token, time.Now())
}

// Save replaces the token and record and notifies listeners.
func (s *Store) Save(token string, record json.RawMessage) {
	s.mu.Lock()
	s.token = token
	s.record = record
	callbacks := make([]listener, len(s.listeners))
	copy(callbacks, s.listeners)
	s.mu.Unlock()

	for _, l := range callbacks {
		invokeListener(l.fn, token, record)
	}
}

// Clear resets the store to the unauthenticated state.
func (s *Store) Clear() {
	s.Save("", nil)
}

// OnChange registers a listener and returns a function that removes
// it. The returned function is safe to call more than once.
func (s *Store) OnChange(fn ChangeFunc) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				break
			}
		}
	}
}

// invokeListener shields the store from panicking listeners.
func invokeListener(fn ChangeFunc, token string, record json.RawMessage) {
	defer func() {
		_ = recover()
	}()
	fn(token, record)
}

func isJWTValid(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(now)
}
