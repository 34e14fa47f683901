package client

import "context"

// GraphQLService sends queries to the server's GraphQL endpoint.
type GraphQLService struct {
	client *Client
}

// Query executes a GraphQL query with optional variables and returns
// the raw response envelope.
func (s *GraphQLService) Query(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	body := map[string]any{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}
	var result map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/graphql",
		body:   body,
	}, &result)
	return result, err
}
