package realtime

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// handshakeTimeout bounds how long the initial response headers may
// take; once the stream is open it is held indefinitely (the server
// drops idle streams itself, which surfaces as a normal disconnect).
const handshakeTimeout = 10 * time.Second

// frame is one parsed Server-Sent-Events message.
type frame struct {
	event string
	data  string
	id    string
}

// conn owns a single live event stream.
type conn struct {
	resp *http.Response
	br   *bufio.Reader
}

// newStreamClient derives an http.Client suitable for long-lived
// streams from the API client's transport. The API client's own
// Timeout cannot be reused because it covers the full body read and
// would cut the stream off.
func newStreamClient(base *http.Client) *http.Client {
	var rt http.RoundTripper
	if base != nil {
		rt = base.Transport
	}
	if rt == nil {
		rt = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: handshakeTimeout,
		}
	}
	return &http.Client{Transport: rt}
}

// dial opens the event stream. A network failure, a non-2xx response
// or a handshake timeout all surface as an error to be retried by the
// coordinator.
func dial(ctx context.Context, httpc *http.Client, core Core) (*conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, core.BuildURL("/api/realtime"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept-Language", core.Lang())
	req.Header.Set("User-Agent", core.UserAgent())
	if token := core.AuthToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("realtime connect failed with status %d", resp.StatusCode)
	}
	return &conn{resp: resp, br: bufio.NewReader(resp.Body)}, nil
}

// next blocks until a complete frame has been read. It returns an
// error when the stream ends for any reason; the caller treats every
// such error as a disconnect.
func (c *conn) next() (frame, error) {
	var f frame
	for {
		line, err := c.br.ReadString('\n')
		if err != nil {
			return frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if f.event == "" && f.data == "" && f.id == "" {
				continue
			}
			if f.event == "" {
				f.event = "message"
			}
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			f.data += value + "\n"
		case "id":
			f.id = value
		}
	}
}

func (c *conn) close() {
	c.resp.Body.Close()
}
