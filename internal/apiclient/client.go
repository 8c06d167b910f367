// Package apiclient is the typed client for the remote practice API. Every
// authenticated call carries the caller's session token as a bearer token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var (
	ErrUnauthorized       = errors.New("session is not authorized")
	ErrServiceUnavailable = errors.New("practice API unavailable")
	ErrInvalidResponse    = errors.New("invalid response from practice API")
	ErrQuestionNotFound   = errors.New("question not found")
)

// APIError is returned for any non-2xx response. A 401 unwraps to
// ErrUnauthorized so callers can test with errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	baseDelay  time.Duration
}

type Option func(*Client)

// WithRetry sets how many times idempotent writes are attempted in total and
// the first backoff delay, which doubles on each retry.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.retries = attempts
		c.baseDelay = baseDelay
	}
}

func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		retries:    3,
		baseDelay:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method  string
	path    string
	token   string
	headers map[string]string
	body    any
}

func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(ErrServiceUnavailable, "%s %s: %v", req.method, req.path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = strings.TrimSpace(payload.Error)
			if apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(payload.Message)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrInvalidResponse, "%s: %v", req.path, err)
	}
	return nil
}

// retryable reports whether a failed write may be attempted again: transport
// failures, throttling and server errors.
func retryable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// doWithRetry runs doJSON up to c.retries times with exponential backoff.
// Only use it for requests that are safe to repeat.
func (c *Client) doWithRetry(ctx context.Context, req request, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			glog.Warningf("retrying %s in %v (attempt %d): %v", req.path, delay, attempt+1, lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = c.doJSON(ctx, req, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return errors.Wrapf(lastErr, "%s failed after %d attempts", req.path, c.retries)
}
