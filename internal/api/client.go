// Package api talks to the remote dating API. Every endpoint answers with a
// {success, message, data} envelope; failures are returned as
// *errors.Failure classified as transport, business or decode.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	svcErr "github.com/cafezinho/discovery/internal/errors"
)

const maxResponseBytes = 2 * 1024 * 1024

// TokenSource returns the bearer token to use for a request, or "".
type TokenSource func(ctx context.Context) string

// Client talks to the remote dating API. Every call carries the bearer
// token from the request context and a fresh X-Request-Id.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

type envelope struct {
	Success *bool           `json:"success"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient validates baseURL and builds a Client. A non-positive timeout
// falls back to 15s.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("api base url is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api base url: %s", trimmed)
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// DoJSON sends body (if any) as JSON and decodes the envelope's data into
// out (if non-nil). A missing or null data field leaves out untouched.
func (c *Client) DoJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return svcErr.Decode(op, fmt.Errorf("marshal request body: %w", err))
		}
		payload = bytes.NewReader(raw)
	}

	fullURL := c.baseURL + ensureLeadingSlash(path)
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, payload)
	if err != nil {
		return svcErr.Transport(op, 0, fmt.Errorf("create http request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return svcErr.Transport(op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return svcErr.Transport(op, resp.StatusCode, fmt.Errorf("read http response: %w", err))
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var env envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		if !ok {
			return svcErr.Transport(op, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
		}
		return nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if !ok {
			return svcErr.Transport(op, resp.StatusCode, errors.New(statusText(resp.StatusCode, raw)))
		}
		return svcErr.Decode(op, err)
	}

	if env.Success != nil && !*env.Success {
		return svcErr.Business(op, resp.StatusCode, deref(env.Message))
	}
	if !ok {
		if env.Message != nil && resp.StatusCode < 500 {
			return svcErr.Business(op, resp.StatusCode, *env.Message)
		}
		return svcErr.Transport(op, resp.StatusCode, errors.New(statusText(resp.StatusCode, raw)))
	}

	if out == nil || isNull(bytes.TrimSpace(env.Data)) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return svcErr.Decode(op, err)
	}
	return nil
}

func ensureLeadingSlash(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}

func statusText(code int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" || len(msg) > 256 {
		msg = http.StatusText(code)
	}
	return msg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
