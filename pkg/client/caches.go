package client

import "context"

// CacheService manages named server-side caches and their entries.
type CacheService struct {
	client *Client
}

// CacheConfig shapes a cache at creation time. Zero values are omitted
// and fall back to server defaults.
type CacheConfig struct {
	SizeBytes         int `json:"sizeBytes,omitempty"`
	DefaultTTLSeconds int `json:"defaultTTLSeconds,omitempty"`
	ReadTimeoutMs     int `json:"readTimeoutMs,omitempty"`
}

// List returns all configured caches.
func (s *CacheService) List(ctx context.Context) ([]Record, error) {
	var result struct {
		Items []Record `json:"items"`
	}
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/cache",
	}, &result)
	return result.Items, err
}

// Create registers a new cache.
func (s *CacheService) Create(ctx context.Context, name string, config *CacheConfig) (Record, error) {
	body := map[string]any{"name": name}
	if config != nil {
		if config.SizeBytes > 0 {
			body["sizeBytes"] = config.SizeBytes
		}
		if config.DefaultTTLSeconds > 0 {
			body["defaultTTLSeconds"] = config.DefaultTTLSeconds
		}
		if config.ReadTimeoutMs > 0 {
			body["readTimeoutMs"] = config.ReadTimeoutMs
		}
	}
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/cache",
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update modifies a cache's configuration.
func (s *CacheService) Update(ctx context.Context, name string, body any) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   "/api/cache/" + escapePath(name),
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a cache and all of its entries.
func (s *CacheService) Delete(ctx context.Context, name string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   "/api/cache/" + escapePath(name),
	}, nil)
}

func (s *CacheService) entryPath(cache, key string) string {
	return "/api/cache/" + escapePath(cache) + "/entries/" + escapePath(key)
}

// SetEntry stores a value under the key. ttlSeconds 0 uses the cache
// default.
func (s *CacheService) SetEntry(ctx context.Context, cache, key string, value any, ttlSeconds int) (Record, error) {
	body := map[string]any{"value": value}
	if ttlSeconds > 0 {
		body["ttlSeconds"] = ttlSeconds
	}
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PUT",
		path:   s.entryPath(cache, key),
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetEntry fetches a cached value.
func (s *CacheService) GetEntry(ctx context.Context, cache, key string) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.entryPath(cache, key),
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RenewEntry extends an entry's lifetime without replacing its value.
func (s *CacheService) RenewEntry(ctx context.Context, cache, key string, ttlSeconds int) (Record, error) {
	body := map[string]any{}
	if ttlSeconds > 0 {
		body["ttlSeconds"] = ttlSeconds
	}
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   s.entryPath(cache, key),
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteEntry removes a cached value.
func (s *CacheService) DeleteEntry(ctx context.Context, cache, key string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   s.entryPath(cache, key),
	}, nil)
}
