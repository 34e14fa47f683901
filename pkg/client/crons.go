package client

import "context"

// CronService lists and triggers the server's scheduled jobs.
// Superuser only.
type CronService struct {
	client *Client
}

// CronJob describes one registered scheduled job.
type CronJob struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
}

// GetFullList returns all registered cron jobs.
func (s *CronService) GetFullList(ctx context.Context) ([]CronJob, error) {
	var jobs []CronJob
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/crons",
	}, &jobs)
	return jobs, err
}

// Run triggers a single cron job immediately.
func (s *CronService) Run(ctx context.Context, jobID string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/crons/" + escapePath(jobID),
	}, nil)
}
