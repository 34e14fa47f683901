package client

import "context"

// LogService reads the server request logs. Superuser only.
type LogService struct {
	client *Client
}

// GetList fetches one page of log entries.
func (s *LogService) GetList(ctx context.Context, page, perPage int, opts *ListOptions) (*ListResult, error) {
	var result ListResult
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/logs",
		query:  listQuery(page, perPage, opts),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOne fetches a single log entry by id.
func (s *LogService) GetOne(ctx context.Context, id string) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/logs/" + escapePath(id),
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LogStat is one hourly aggregate of the request logs.
type LogStat struct {
	Total int    `json:"total"`
	Date  string `json:"date"`
}

// GetStats returns hourly aggregated log counts, optionally filtered.
func (s *LogService) GetStats(ctx context.Context, filter string) ([]LogStat, error) {
	var stats []LogStat
	opts := &ListOptions{Filter: filter}
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/logs/stats",
		query:  listQuery(0, 0, opts),
	}, &stats)
	return stats, err
}
