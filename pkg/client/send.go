package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// FileAttachment is one file part of a multipart record write.
type FileAttachment struct {
	Field  string
	Name   string
	Reader io.Reader
}

// sendOptions describes one API request.
type sendOptions struct {
	method string
	path   string
	query  url.Values
	body   any              // JSON-encoded unless files are present
	files  []FileAttachment // switches the request to multipart/form-data
}

// send performs one API request and decodes the JSON response into out
// (which may be nil for empty responses). Non-2xx responses are
// returned as *APIError.
func (c *Client) send(ctx context.Context, opts sendOptions, out any) error {
	reqURL := c.BuildURL(opts.path)
	if len(opts.query) > 0 {
		reqURL += "?" + opts.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(opts.files) > 0:
		buf, ct, err := encodeMultipart(opts.body, opts.files)
		if err != nil {
			return newAPIError(reqURL, 0, nil, err)
		}
		body = buf
		contentType = ct
	case opts.body != nil:
		encoded, err := json.Marshal(opts.body)
		if err != nil {
			return newAPIError(reqURL, 0, nil, fmt.Errorf("failed to encode request body: %w", err))
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, reqURL, body)
	if err != nil {
		return newAPIError(reqURL, 0, nil, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept-Language", c.Lang())
	req.Header.Set("User-Agent", c.UserAgent())
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return newAPIError(reqURL, 0, nil, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newAPIError(reqURL, resp.StatusCode, nil, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody map[string]any
		_ = json.Unmarshal(data, &errBody)
		c.logger.Debug("request failed",
			zap.String("method", opts.method),
			zap.String("url", reqURL),
			zap.Int("status", resp.StatusCode))
		return newAPIError(reqURL, resp.StatusCode, errBody, nil)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newAPIError(reqURL, resp.StatusCode, nil, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// encodeMultipart builds a multipart/form-data body from the JSON body
// fields plus the file attachments. Scalar body fields become form
// values; structured values are embedded as a @jsonPayload part so the
// server can recover them losslessly.
func encodeMultipart(body any, files []FileAttachment) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(encoded, &fields); err != nil {
			return nil, "", fmt.Errorf("multipart body must encode to an object: %w", err)
		}
		jsonPayload := map[string]any{}
		for k, v := range fields {
			switch v := v.(type) {
			case string:
				if err := w.WriteField(k, v); err != nil {
					return nil, "", err
				}
			default:
				jsonPayload[k] = v
			}
		}
		if len(jsonPayload) > 0 {
			encoded, err := json.Marshal(jsonPayload)
			if err != nil {
				return nil, "", err
			}
			if err := w.WriteField("@jsonPayload", string(encoded)); err != nil {
				return nil, "", err
			}
		}
	}

	for _, f := range files {
		name := f.Name
		if name == "" {
			name = f.Field
		}
		part, err := w.CreateFormFile(f.Field, name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", fmt.Errorf("failed to read attachment %q: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// listQuery converts list options into URL query values.
func listQuery(page, perPage int, opts *ListOptions) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	if perPage > 0 {
		q.Set("perPage", fmt.Sprintf("%d", perPage))
	}
	if opts == nil {
		return q
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Expand != "" {
		q.Set("expand", opts.Expand)
	}
	if opts.Fields != "" {
		q.Set("fields", opts.Fields)
	}
	if opts.SkipTotal {
		q.Set("skipTotal", "1")
	}
	for k, v := range opts.Query {
		q.Set(k, v)
	}
	return q
}

func escapePath(segment string) string {
	return url.PathEscape(strings.TrimSpace(segment))
}
