package client

import "context"

// VectorService manages vector collections and documents and runs
// similarity searches.
type VectorService struct {
	client *Client
}

// VectorCollectionConfig tunes a vector collection at creation time.
type VectorCollectionConfig struct {
	Dimension int            `json:"dimension,omitempty"`
	Distance  string         `json:"distance,omitempty"` // e.g. "cosine", "l2"
	Options   map[string]any `json:"options,omitempty"`
}

// VectorDocument is one embedded document.
type VectorDocument struct {
	ID       string         `json:"id,omitempty"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// VectorSearchOptions shape a similarity search.
type VectorSearchOptions struct {
	QueryVector     []float32      `json:"queryVector"`
	Limit           int            `json:"limit,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	MinScore        float32        `json:"minScore,omitempty"`
	MaxDistance     float32        `json:"maxDistance,omitempty"`
	IncludeDistance bool           `json:"includeDistance,omitempty"`
	IncludeContent  bool           `json:"includeContent,omitempty"`
}

// CreateCollection registers a new vector collection.
func (s *VectorService) CreateCollection(ctx context.Context, name string, config *VectorCollectionConfig) (Record, error) {
	body := map[string]any{"name": name}
	if config != nil {
		body["config"] = config
	}
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/vector/collections",
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListCollections returns all vector collections.
func (s *VectorService) ListCollections(ctx context.Context) ([]Record, error) {
	var items []Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/vector/collections",
	}, &items)
	return items, err
}

// DeleteCollection removes a vector collection and its documents.
func (s *VectorService) DeleteCollection(ctx context.Context, name string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   "/api/vector/collections/" + escapePath(name),
	}, nil)
}

// Insert stores one document.
func (s *VectorService) Insert(ctx context.Context, doc VectorDocument) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/vector/documents",
		body:   doc,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// BatchInsert stores multiple documents in one request.
func (s *VectorService) BatchInsert(ctx context.Context, docs []VectorDocument, skipDuplicates bool) (map[string]any, error) {
	var result map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/vector/documents/batch",
		body: map[string]any{
			"documents":      docs,
			"skipDuplicates": skipDuplicates,
		},
	}, &result)
	return result, err
}

// Get fetches one document by id.
func (s *VectorService) Get(ctx context.Context, id string) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/vector/documents/" + escapePath(id),
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update replaces a document's vector, metadata or content.
func (s *VectorService) Update(ctx context.Context, id string, doc VectorDocument) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   "/api/vector/documents/" + escapePath(id),
		body:   doc,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a document by id.
func (s *VectorService) Delete(ctx context.Context, id string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   "/api/vector/documents/" + escapePath(id),
	}, nil)
}

// List returns stored documents.
func (s *VectorService) List(ctx context.Context) ([]Record, error) {
	var items []Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/vector/documents",
	}, &items)
	return items, err
}

// Search runs a similarity search and returns the scored matches.
func (s *VectorService) Search(ctx context.Context, opts VectorSearchOptions) ([]Record, error) {
	var items []Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/vector/search",
		body:   opts,
	}, &items)
	return items, err
}
