package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "user1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestStoreSaveAndRead(t *testing.T) {
	s := NewStore()
	if s.Token() != "" || s.Record() != nil {
		t.Fatalf("new store must be empty")
	}

	record := json.RawMessage(`{"id":"user1"}`)
	s.Save("tok", record)
	if s.Token() != "tok" {
		t.Fatalf("token not stored")
	}
	if string(s.Record()) != `{"id":"user1"}` {
		t.Fatalf("record not stored: %s", s.Record())
	}

	s.Clear()
	if s.Token() != "" || s.Record() != nil {
		t.Fatalf("clear must reset the store")
	}
}

func TestStoreIsValid(t *testing.T) {
	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", false},
		{"garbage", "not-a-jwt", false},
		{"expired", "", false},
		{"future", "", true},
	}
	for i := range cases {
		switch cases[i].name {
		case "expired":
			cases[i].token = signedToken(t, time.Now().Add(-time.Hour))
		case "future":
			cases[i].token = signedToken(t, time.Now().Add(time.Hour))
		}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			s.Save(tc.token, nil)
			if got := s.IsValid(); got != tc.want {
				t.Fatalf("IsValid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoreTokenWithoutExpIsInvalid(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "user1"})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	s := NewStore()
	s.Save(signed, nil)
	if s.IsValid() {
		t.Fatalf("token without exp claim must be invalid")
	}
}

func TestStoreOnChange(t *testing.T) {
	s := NewStore()

	var calls []string
	remove := s.OnChange(func(token string, record json.RawMessage) {
		calls = append(calls, token)
	})

	s.Save("a", nil)
	s.Save("b", nil)
	remove()
	remove() // second call is a no-op
	s.Save("c", nil)

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("unexpected notifications: %v", calls)
	}
}

func TestStoreListenerPanicIsolated(t *testing.T) {
	s := NewStore()
	s.OnChange(func(string, json.RawMessage) {
		panic("boom")
	})

	var notified bool
	s.OnChange(func(string, json.RawMessage) {
		notified = true
	})

	s.Save("tok", nil)
	if !notified {
		t.Fatalf("second listener must run despite the first panicking")
	}
	if s.Token() != "tok" {
		t.Fatalf("state must be updated despite the panicking listener")
	}
}
