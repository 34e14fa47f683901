package client

import "context"

// HealthService probes the server health endpoint.
type HealthService struct {
	client *Client
}

// Check returns the server health status.
func (s *HealthService) Check(ctx context.Context) (*HealthCheck, error) {
	var result HealthCheck
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/health",
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
