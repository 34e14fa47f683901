package client

import (
	"context"
	"encoding/json"

	"github.com/bosbase/bosbase-go/pkg/realtime"
)

// RecordService exposes the record CRUD, auth and realtime operations
// of a single collection.
type RecordService struct {
	client     *Client
	collection string
}

func newRecordService(c *Client, collection string) *RecordService {
	return &RecordService{client: c, collection: collection}
}

func (s *RecordService) basePath() string {
	return "/api/collections/" + escapePath(s.collection) + "/records"
}

// GetList fetches one page of records.
func (s *RecordService) GetList(ctx context.Context, page, perPage int, opts *ListOptions) (*ListResult, error) {
	var result ListResult
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.basePath(),
		query:  listQuery(page, perPage, opts),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetFullList pages through the collection and returns every record.
func (s *RecordService) GetFullList(ctx context.Context, opts *ListOptions) ([]Record, error) {
	var all []Record
	effective := ListOptions{SkipTotal: true}
	if opts != nil {
		effective = *opts
		effective.SkipTotal = true
	}
	for page := 1; ; page++ {
		result, err := s.GetList(ctx, page, 500, &effective)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Items...)
		if len(result.Items) < 500 {
			return all, nil
		}
	}
}

// GetFirstListItem returns the first record matching the filter.
func (s *RecordService) GetFirstListItem(ctx context.Context, filter string, opts *ListOptions) (Record, error) {
	effective := ListOptions{}
	if opts != nil {
		effective = *opts
	}
	effective.Filter = filter
	effective.SkipTotal = true
	result, err := s.GetList(ctx, 1, 1, &effective)
	if err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, newAPIError(s.client.BuildURL(s.basePath()), 404,
			map[string]any{"message": "The requested resource wasn't found."}, nil)
	}
	return result.Items[0], nil
}

// GetCount returns the number of records matching the filter.
func (s *RecordService) GetCount(ctx context.Context, filter string) (int64, error) {
	var result struct {
		Count int64 `json:"count"`
	}
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.basePath() + "/count",
		query:  listQuery(0, 0, &ListOptions{Filter: filter}),
	}, &result)
	return result.Count, err
}

// GetOne fetches a single record by id.
func (s *RecordService) GetOne(ctx context.Context, id string, opts *ListOptions) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.basePath() + "/" + escapePath(id),
		query:  listQuery(0, 0, opts),
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Create inserts a new record. Attach files to upload them in the same
// request.
func (s *RecordService) Create(ctx context.Context, body any, files ...FileAttachment) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   s.basePath(),
		body:   body,
		files:  files,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Update patches an existing record.
func (s *RecordService) Update(ctx context.Context, id string, body any, files ...FileAttachment) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   s.basePath() + "/" + escapePath(id),
		body:   body,
		files:  files,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes a record by id.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   s.basePath() + "/" + escapePath(id),
	}, nil)
}

// AuthWithPassword authenticates against the collection with an
// identity/password pair and stores the resulting token.
func (s *RecordService) AuthWithPassword(ctx context.Context, identity, password string) (*AuthResult, error) {
	var result AuthResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/auth-with-password",
		body:   map[string]string{"identity": identity, "password": password},
	}, &result)
	if err != nil {
		return nil, err
	}
	s.saveAuth(&result)
	return &result, nil
}

// AuthRefresh re-validates the stored token and refreshes the record.
func (s *RecordService) AuthRefresh(ctx context.Context) (*AuthResult, error) {
	var result AuthResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/auth-refresh",
	}, &result)
	if err != nil {
		return nil, err
	}
	s.saveAuth(&result)
	return &result, nil
}

// AuthWithOAuth2Code exchanges an OAuth2 authorization code obtained
// from the provider's consent flow for a token.
func (s *RecordService) AuthWithOAuth2Code(ctx context.Context, provider, code, codeVerifier, redirectURL string, createData map[string]any) (*AuthResult, error) {
	body := map[string]any{
		"provider":     provider,
		"code":         code,
		"codeVerifier": codeVerifier,
		"redirectUrl":  redirectURL,
	}
	if len(createData) > 0 {
		body["createData"] = createData
	}
	var result AuthResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/auth-with-oauth2",
		body:   body,
	}, &result)
	if err != nil {
		return nil, err
	}
	s.saveAuth(&result)
	return &result, nil
}

// Impersonate authenticates as another record and returns a separate
// client holding the impersonation token. The calling client's own
// auth state is left untouched. Requires superuser auth.
func (s *RecordService) Impersonate(ctx context.Context, recordID string, durationSeconds int) (*Client, error) {
	var result AuthResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/impersonate/" + escapePath(recordID),
		body:   map[string]any{"duration": durationSeconds},
	}, &result)
	if err != nil {
		return nil, err
	}

	impersonated, err := NewWithConfig(s.client.config)
	if err != nil {
		return nil, err
	}
	record, err := json.Marshal(result.Record)
	if err != nil {
		record = nil
	}
	impersonated.auth.Save(result.Token, record)
	return impersonated, nil
}

// RequestOTP asks the server to email a one-time password.
func (s *RecordService) RequestOTP(ctx context.Context, email string) (string, error) {
	var result struct {
		OtpID string `json:"otpId"`
	}
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/request-otp",
		body:   map[string]string{"email": email},
	}, &result)
	return result.OtpID, err
}

// AuthWithOTP exchanges an otp id and password for a token.
func (s *RecordService) AuthWithOTP(ctx context.Context, otpID, password string) (*AuthResult, error) {
	var result AuthResult
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/auth-with-otp",
		body:   map[string]string{"otpId": otpID, "password": password},
	}, &result)
	if err != nil {
		return nil, err
	}
	s.saveAuth(&result)
	return &result, nil
}

// RequestPasswordReset sends a password reset email.
func (s *RecordService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/request-password-reset",
		body:   map[string]string{"email": email},
	}, nil)
}

// ConfirmPasswordReset completes a password reset flow.
func (s *RecordService) ConfirmPasswordReset(ctx context.Context, token, password, passwordConfirm string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/confirm-password-reset",
		body: map[string]string{
			"token":           token,
			"password":        password,
			"passwordConfirm": passwordConfirm,
		},
	}, nil)
}

// RequestVerification sends a verification email.
func (s *RecordService) RequestVerification(ctx context.Context, email string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/request-verification",
		body:   map[string]string{"email": email},
	}, nil)
}

// ConfirmVerification completes an email verification flow.
func (s *RecordService) ConfirmVerification(ctx context.Context, token string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/confirm-verification",
		body:   map[string]string{"token": token},
	}, nil)
}

// RequestEmailChange starts an email change flow for the
// authenticated record.
func (s *RecordService) RequestEmailChange(ctx context.Context, newEmail string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/request-email-change",
		body:   map[string]string{"newEmail": newEmail},
	}, nil)
}

// ConfirmEmailChange completes an email change flow.
func (s *RecordService) ConfirmEmailChange(ctx context.Context, token, password string) error {
	return s.client.send(ctx, sendOptions{
		method: "POST",
		path:   "/api/collections/" + escapePath(s.collection) + "/confirm-email-change",
		body:   map[string]string{"token": token, "password": password},
	}, nil)
}

// ListAuthMethods returns the auth methods enabled for the collection.
func (s *RecordService) ListAuthMethods(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   "/api/collections/" + escapePath(s.collection) + "/auth-methods",
	}, &result)
	return result, err
}

func (s *RecordService) saveAuth(result *AuthResult) {
	record, err := json.Marshal(result.Record)
	if err != nil {
		s.client.logger.Warn("failed to encode auth record")
		record = nil
	}
	s.client.auth.Save(result.Token, record)
}

// Subscribe streams change events for this collection. Use "*" to
// receive events for every record, or a record id for a single one.
// Options (filter, expand, headers) are encoded into the subscription
// and evaluated server side.
func (s *RecordService) Subscribe(topic string, fn func(e realtime.Event), opts ...realtime.SubscribeOption) (realtime.UnsubscribeFunc, error) {
	if topic == "" {
		return nil, realtime.ErrInvalidTopic
	}
	return s.client.realtime.Subscribe(s.collection+"/"+topic, fn, opts...)
}

// Unsubscribe removes this collection's subscriptions. With no topics
// every subscription of the collection goes away.
func (s *RecordService) Unsubscribe(topics ...string) {
	if len(topics) == 0 {
		s.client.realtime.UnsubscribeByPrefix(s.collection + "/")
		return
	}
	full := make([]string, len(topics))
	for i, t := range topics {
		full[i] = s.collection + "/" + t
	}
	s.client.realtime.Unsubscribe(full...)
}
