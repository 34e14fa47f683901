package client

import (
	"context"
	"fmt"
	"sync"
)

// BatchService queues record writes and submits them as one atomic
// /api/batch request. Queue through Collection sub-services, then call
// Send.
type BatchService struct {
	client *Client

	mu       sync.Mutex
	requests []batchRequest
}

type batchRequest struct {
	Method string         `json:"method"`
	URL    string         `json:"url"`
	Body   any            `json:"body"`
	files  []FileAttachment
}

// BatchResult is the outcome of one queued sub-request.
type BatchResult struct {
	Status int    `json:"status"`
	Body   Record `json:"body"`
}

// Collection returns a queuing handle scoped to one collection.
func (s *BatchService) Collection(name string) *SubBatchService {
	return &SubBatchService{batch: s, collection: name}
}

func (s *BatchService) queue(method, url string, body any, files []FileAttachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body == nil {
		body = map[string]any{}
	}
	s.requests = append(s.requests, batchRequest{Method: method, URL: url, Body: body, files: files})
}

// Send submits all queued requests in order and clears the queue. The
// server applies them in a single transaction.
func (s *BatchService) Send(ctx context.Context) ([]BatchResult, error) {
	s.mu.Lock()
	requests := s.requests
	s.requests = nil
	s.mu.Unlock()
	if requests == nil {
		requests = []batchRequest{}
	}

	var files []FileAttachment
	for i, req := range requests {
		for _, f := range req.files {
			f.Field = fmt.Sprintf("requests.%d.%s", i, f.Field)
			files = append(files, f)
		}
	}

	var results []BatchResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/batch",
		body:   map[string]any{"requests": requests},
		files:  files,
	}, &results)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SubBatchService queues record writes for one collection.
type SubBatchService struct {
	batch      *BatchService
	collection string
}

func (s *SubBatchService) recordsURL() string {
	return "/api/collections/" + escapePath(s.collection) + "/records"
}

// Create queues a record insert.
func (s *SubBatchService) Create(body any, files ...FileAttachment) {
	s.batch.queue("POST", s.recordsURL(), body, files)
}

// Upsert queues a create-or-replace keyed on the body's id.
func (s *SubBatchService) Upsert(body any, files ...FileAttachment) {
	s.batch.queue("PUT", s.recordsURL(), body, files)
}

// Update queues a record patch.
func (s *SubBatchService) Update(id string, body any, files ...FileAttachment) {
	s.batch.queue("PATCH", s.recordsURL()+"/"+escapePath(id), body, files)
}

// Delete queues a record delete.
func (s *SubBatchService) Delete(id string) {
	s.batch.queue("DELETE", s.recordsURL()+"/"+escapePath(id), nil, nil)
}
