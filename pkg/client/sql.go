package client

import (
	"context"
	"strings"
)

// SQLService executes raw SQL against the server. Superuser only.
type SQLService struct {
	client *Client
}

// Execute runs a single SQL statement and returns the raw result set.
func (s *SQLService) Execute(ctx context.Context, query string) (map[string]any, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, newAPIError(s.client.BuildURL("/api/sql/execute"), 400,
			map[string]any{"message": "query is required"}, nil)
	}
	var result map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/sql/execute",
		body:   map[string]string{"query": trimmed},
	}, &result)
	return result, err
}
