// Package remote holds HTTP clients for the external stage bodies: content
// extraction, embeddings, summarization, translation and tagging.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// ErrRejected marks a request the remote refused as invalid. Retrying the
// same input will not help.
var ErrRejected = errors.New("remote rejected request")

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type HTTPStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap exposes ErrRejected for 4xx answers other than 408 and 429.
func (e *HTTPStatusError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusTooManyRequests && e.StatusCode != http.StatusRequestTimeout {
		return ErrRejected
	}
	return nil
}

type Option func(*client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.http = hc
		}
	}
}

type client struct {
	cfg  Config
	http *http.Client
}

func newClient(cfg Config, opts ...Option) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &client{
		cfg: Config{
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:  strings.TrimSpace(cfg.APIKey),
			Model:   strings.TrimSpace(cfg.Model),
			Timeout: timeout,
		},
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) postJSON(ctx context.Context, op, path string, in, out any) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("%s: base url not configured", op)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > 512 {
			raw = raw[:512]
		}
		// the cut may split a rune
		snippet := strings.ToValidUTF8(string(raw), "")
		return &HTTPStatusError{Op: op, StatusCode: resp.StatusCode, Body: snippet}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
