package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRecordGetListQuery(t *testing.T) {
	var gotQuery map[string]string
	r := chi.NewRouter()
	r.Get("/api/collections/posts/records", func(w http.ResponseWriter, req *http.Request) {
		gotQuery = map[string]string{}
		for k := range req.URL.Query() {
			gotQuery[k] = req.URL.Query().Get(k)
		}
		w.Write([]byte(`{"page":2,"perPage":20,"totalItems":1,"totalPages":1,"items":[{"id":"p1"}]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Collection("posts").GetList(context.Background(), 2, 20, &ListOptions{
		Filter: "status='open'",
		Sort:   "-created",
		Expand: "author",
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].ID() != "p1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	want := map[string]string{
		"page":    "2",
		"perPage": "20",
		"filter":  "status='open'",
		"sort":    "-created",
		"expand":  "author",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestRecordGetFullListPages(t *testing.T) {
	pages := 0
	r := chi.NewRouter()
	r.Get("/api/collections/posts/records", func(w http.ResponseWriter, req *http.Request) {
		pages++
		items := make([]map[string]any, 0, 500)
		count := 500
		if pages == 2 {
			count = 3
		}
		for i := 0; i < count; i++ {
			items = append(items, map[string]any{"id": "x"})
		}
		json.NewEncoder(w).Encode(map[string]any{"page": pages, "items": items})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	all, err := c.Collection("posts").GetFullList(context.Background(), nil)
	if err != nil {
		t.Fatalf("full list failed: %v", err)
	}
	if len(all) != 503 {
		t.Fatalf("expected 503 records, got %d", len(all))
	}
	if pages != 2 {
		t.Fatalf("expected 2 page fetches, got %d", pages)
	}
}

func TestRecordGetFirstListItemNotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/collections/posts/records", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Collection("posts").GetFirstListItem(context.Background(), "id='missing'", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func TestRecordCRUDPaths(t *testing.T) {
	var gotMethod, gotPath string
	r := chi.NewRouter()
	handler := func(w http.ResponseWriter, req *http.Request) {
		gotMethod, gotPath = req.Method, req.URL.Path
		w.Write([]byte(`{"id":"rec1"}`))
	}
	r.Post("/api/collections/posts/records", handler)
	r.Patch("/api/collections/posts/records/rec1", handler)
	r.Delete("/api/collections/posts/records/rec1", func(w http.ResponseWriter, req *http.Request) {
		gotMethod, gotPath = req.Method, req.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	posts := c.Collection("posts")
	ctx := context.Background()

	if _, err := posts.Create(ctx, map[string]any{"title": "x"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if gotMethod != "POST" {
		t.Errorf("create used %s", gotMethod)
	}

	if _, err := posts.Update(ctx, "rec1", map[string]any{"title": "y"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if gotMethod != "PATCH" || gotPath != "/api/collections/posts/records/rec1" {
		t.Errorf("update hit %s %s", gotMethod, gotPath)
	}

	if err := posts.Delete(ctx, "rec1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if gotMethod != "DELETE" {
		t.Errorf("delete used %s", gotMethod)
	}
}

func TestAuthWithPasswordStoresToken(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/collections/users/auth-with-password", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		json.NewDecoder(req.Body).Decode(&body)
		if body["identity"] != "ada@example.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":  "server-token",
			"record": map[string]any{"id": "user1", "email": "ada@example.com"},
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Collection("users").AuthWithPassword(context.Background(), "ada@example.com", "secret")
	if err != nil {
		t.Fatalf("auth failed: %v", err)
	}
	if result.Token != "server-token" {
		t.Fatalf("unexpected token %q", result.Token)
	}
	if result.Record.ID() != "user1" {
		t.Fatalf("unexpected record %v", result.Record)
	}
	if c.AuthStore().Token() != "server-token" {
		t.Fatalf("token not saved to the auth store")
	}
	var stored map[string]any
	if err := json.Unmarshal(c.AuthStore().Record(), &stored); err != nil || stored["id"] != "user1" {
		t.Fatalf("record not saved to the auth store: %s", c.AuthStore().Record())
	}
}
