package client

import (
	"context"
	"net/url"
)

// BackupService manages application backups. Superuser only.
type BackupService struct {
	client *Client
}

// BackupFileInfo describes one stored backup archive.
type BackupFileInfo struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// GetFullList returns all stored backups.
func (s *BackupService) GetFullList(ctx context.Context) ([]BackupFileInfo, error) {
	var items []BackupFileInfo
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/backups",
	}, &items)
	return items, err
}

// Create starts a new backup, optionally with a custom base filename.
func (s *BackupService) Create(ctx context.Context, basename string) error {
	q := url.Values{}
	if basename != "" {
		q.Set("basename", basename)
	}
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/backups",
		query:  q,
	}, nil)
}

// Upload stores an existing backup archive on the server.
func (s *BackupService) Upload(ctx context.Context, file FileAttachment) error {
	if file.Field == "" {
		file.Field = "file"
	}
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/backups/upload",
		files:  []FileAttachment{file},
	}, nil)
}

// Delete removes a stored backup by key.
func (s *BackupService) Delete(ctx context.Context, key string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   "/api/backups/" + escapePath(key),
	}, nil)
}

// Restore replaces the application state with the named backup and
// restarts the server.
func (s *BackupService) Restore(ctx context.Context, key string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/backups/" + escapePath(key) + "/restore",
	}, nil)
}

// GetDownloadURL builds the download address for a backup, using a
// file token from FileService.GetToken.
func (s *BackupService) GetDownloadURL(token, key string) string {
	q := url.Values{}
	q.Set("token", token)
	return s.client.BuildURL("/api/backups/"+escapePath(key)) + "?" + q.Encode()
}
