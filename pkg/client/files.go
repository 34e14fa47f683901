package client

import (
	"context"
	"net/url"
)

// FileService builds file access URLs and issues short-lived file
// tokens for protected files.
type FileService struct {
	client *Client
}

// FileURLOptions tweak the generated file URL.
type FileURLOptions struct {
	Thumb    string // e.g. "100x250"
	Token    string // short-lived token from GetToken
	Download bool
}

// GetURL returns the address of a stored file. The record must carry
// its id plus either collectionName or collectionId.
func (s *FileService) GetURL(record Record, filename string, opts *FileURLOptions) string {
	collection := record.GetString("collectionName")
	if collection == "" {
		collection = record.GetString("collectionId")
	}
	path := "/api/files/" + escapePath(collection) + "/" + escapePath(record.ID()) + "/" + escapePath(filename)

	q := url.Values{}
	if opts != nil {
		if opts.Thumb != "" {
			q.Set("thumb", opts.Thumb)
		}
		if opts.Token != "" {
			q.Set("token", opts.Token)
		}
		if opts.Download {
			q.Set("download", "1")
		}
	}
	u := s.client.BuildURL(path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// GetToken requests a short-lived token for accessing protected files.
func (s *FileService) GetToken(ctx context.Context) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/files/token",
	}, &result)
	return result.Token, err
}
