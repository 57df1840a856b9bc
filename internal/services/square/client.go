package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalogsync/internal/logger"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://connect.squareup.com"
	DefaultAPIVersion = "2025-10-16"
	DefaultMaxRetries = 3

	// NoRetries as Options.MaxRetries sends every request exactly once.
	NoRetries = -1
)

// Options configures a Client. Zero values fall back to the defaults;
// retries are disabled with MaxRetries set to NoRetries.
type Options struct {
	BaseURL           string
	APIVersion        string
	AccessToken       string
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	RequestsPerSecond float64
}

// Client talks to the Square Catalog API. It is configured once by
// NewClient and is safe for concurrent use; headers never change afterwards.
type Client struct {
	baseURL        string
	headers        http.Header
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	backoffInitial time.Duration
	backoffMax     time.Duration
	logger         *logger.Logger
}

func NewClient(opts Options, logger *logger.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+opts.AccessToken)
	headers.Set("Square-Version", opts.APIVersion)
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: headers,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     opts.MaxRetries,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		logger:         logger,
	}
}

// ListCatalog fetches one page of catalog objects of the given types.
func (c *Client) ListCatalog(ctx context.Context, types string, cursor string) (*ListCatalogResponse, error) {
	q := url.Values{}
	q.Set("types", types)
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp ListCatalogResponse
	if err := c.do(ctx, http.MethodGet, "/v2/catalog/list", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchRetrieve fetches catalog objects by id without related objects.
func (c *Client) BatchRetrieve(ctx context.Context, objectIDs []string) (*BatchRetrieveResponse, error) {
	req := BatchRetrieveRequest{ObjectIDs: objectIDs}

	var resp BatchRetrieveResponse
	if err := c.do(ctx, http.MethodPost, "/v2/catalog/batch-retrieve", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchDelete deletes up to 200 catalog objects.
func (c *Client) BatchDelete(ctx context.Context, objectIDs []string) (*BatchDeleteResponse, error) {
	req := BatchDeleteRequest{ObjectIDs: objectIDs}

	var resp BatchDeleteResponse
	if err := c.do(ctx, http.MethodPost, "/v2/catalog/batch-delete", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchUpsert creates or updates catalog objects. The request's idempotency
// key is sent unchanged on every retry.
func (c *Client) BatchUpsert(ctx context.Context, req *BatchUpsertRequest) (*BatchUpsertResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("batch upsert requires an idempotency key")
	}

	var resp BatchUpsertResponse
	if err := c.do(ctx, http.MethodPost, "/v2/catalog/batch-upsert", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends a request, retrying network errors and 429/5xx responses with
// exponential backoff, and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying %s %s (attempt %d/%d): %v", method, path, attempt, c.maxRetries, lastErr)
			if err := c.sleepBackoff(ctx, attempt-1); err != nil {
				return err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		respBody, status, err := c.send(ctx, method, endpoint, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("failed to make request: %w", err)
			continue
		}

		if status < 200 || status > 299 {
			apiErr := &APIError{StatusCode: status, Body: string(respBody)}
			var envelope struct {
				Errors []Error `json:"errors"`
			}
			if json.Unmarshal(respBody, &envelope) == nil {
				apiErr.Errors = envelope.Errors
			}
			if !apiErr.Transient() {
				return apiErr
			}
			lastErr = apiErr
			continue
		}

		c.logger.Debug("%s %s -> %d", method, path, status)
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return &SchemaError{Op: method + " " + path, Err: err}
		}
		return nil
	}

	return lastErr
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return b, resp.StatusCode, nil
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	d := c.backoffInitial * time.Duration(1<<attempt)
	if d > c.backoffMax {
		d = c.backoffMax
	}
	d += time.Duration(rand.Int63n(int64(c.backoffInitial)/4 + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
