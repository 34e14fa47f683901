package client

import "context"

// SettingsService reads and updates the server settings. Superuser
// only.
type SettingsService struct {
	client *Client
}

// GetAll returns the full settings model.
func (s *SettingsService) GetAll(ctx context.Context) (map[string]any, error) {
	var settings map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/settings",
	}, &settings)
	return settings, err
}

// Update patches the settings model and returns the applied state.
func (s *SettingsService) Update(ctx context.Context, body any) (map[string]any, error) {
	var settings map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   "/api/settings",
		body:   body,
	}, &settings)
	return settings, err
}

// TestS3 verifies the S3 configuration of the given filesystem
// ("storage" or "backups").
func (s *SettingsService) TestS3(ctx context.Context, filesystem string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/settings/test/s3",
		body:   map[string]string{"filesystem": filesystem},
	}, nil)
}

// TestEmail sends a test email using the named template.
func (s *SettingsService) TestEmail(ctx context.Context, collection, toEmail, template string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/settings/test/email",
		body: map[string]string{
			"collection": collection,
			"email":      toEmail,
			"template":   template,
		},
	}, nil)
}

// GenerateAppleClientSecret produces a signed Apple OAuth2 client
// secret from the provided credentials.
func (s *SettingsService) GenerateAppleClientSecret(ctx context.Context, body any) (string, error) {
	var result struct {
		Secret string `json:"secret"`
	}
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/settings/apple/generate-client-secret",
		body:   body,
	}, &result)
	return result.Secret, err
}
