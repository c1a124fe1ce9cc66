package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/MimeLyc/stratum/pkg/log"
)

const (
	DefaultBaseURL  = "http://localhost:8080/api"
	requestIDHeader = "X-Request-ID"
)

// Client talks to the upload and image-processing backend.
// Safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	retries        int
	initialBackoff time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times an idempotent GET is retried after a
// network error or a 5xx response.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// New creates a client for the backend API rooted at baseURL
//
// baseURL: API root such as "http://localhost:8080/api"; empty uses DefaultBaseURL
// opts: timeout, retry and transport overrides
//
// Example:
//
//	c := client.New(cfg.API.BaseURL, client.WithRetries(cfg.API.Retries))
//	snapshot, err := poller.Poll(ctx, c.ImageJobSource(), jobID, poller.DefaultOptions())
func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retries:        3,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	detail := strings.TrimSpace(e.Body)
	if detail == "" {
		detail = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("Failed to %s: %s", e.Op, detail)
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	return req, nil
}

// send performs req and turns non-2xx answers into *APIError.
func (c *Client) send(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// get runs an idempotent GET with retries and hands the body to read.
func (c *Client) get(ctx context.Context, rawURL, op string, read func(io.Reader) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.send(req, op)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			log.Debug("GET %s attempt %d failed: %v", rawURL, attempt, err)
			return err
		}
		defer resp.Body.Close()
		if err := read(resp.Body); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxElapsedTime = 0
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx))
}

func (c *Client) getJSON(ctx context.Context, rawURL, op string, out any) error {
	return c.get(ctx, rawURL, op, func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(out); err != nil {
			return fmt.Errorf("invalid response from server: %w", err)
		}
		return nil
	})
}

func (c *Client) download(ctx context.Context, rawURL, op string, w io.Writer) (int64, error) {
	var n int64
	err := c.get(ctx, rawURL, op, func(r io.Reader) error {
		written, err := io.Copy(w, r)
		n = written
		return err
	})
	return n, err
}
