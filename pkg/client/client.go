package client

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

	"github.com/askdesk/askdesk/pkg/models"
)

var (
	// ErrUnreachable is returned when the backend cannot be reached at all.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrTimeout is returned when the backend did not answer in time.
	ErrTimeout = errors.New("backend timed out")
	// ErrInvalidResponse is returned when a 200 reply is not valid JSON.
	ErrInvalidResponse = errors.New("invalid response")
)

// APIError is a non-200 reply from the backend. Message is the server's
// "error" field and Answer its user-facing "answer", when present.
type APIError struct {
	StatusCode int
	Message    string
	Answer     string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the askdesk HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	health  *http.Client
}

// New creates a Client. timeout bounds /query calls and healthTimeout bounds
// connection probes.
func New(baseURL string, timeout, healthTimeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		health:  &http.Client{Timeout: healthTimeout},
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// Ask posts a question and returns the decoded reply.
func (c *Client) Ask(ctx context.Context, question string) (models.QueryResponse, error) {
	return c.postQuery(ctx, c.http, question)
}

func (c *Client) postQuery(ctx context.Context, hc *http.Client, question string) (models.QueryResponse, error) {
	payload, err := json.Marshal(models.QueryRequest{Question: question})
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return models.QueryResponse{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.QueryResponse{}, classify(ctx, err)
	}

	var qr models.QueryResponse
	decodeErr := json.Unmarshal(body, &qr)
	if resp.StatusCode != http.StatusOK {
		return qr, &APIError{StatusCode: resp.StatusCode, Message: qr.Error, Answer: qr.Answer}
	}
	if decodeErr != nil {
		return models.QueryResponse{}, fmt.Errorf("%w: %v", ErrInvalidResponse, decodeErr)
	}
	return qr, nil
}

// Health calls GET /health. A non-200 reply is returned as *APIError.
func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return models.HealthResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.health.Do(req)
	if err != nil {
		return models.HealthResponse{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	var hr models.HealthResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&hr)
	if resp.StatusCode != http.StatusOK {
		return hr, &APIError{StatusCode: resp.StatusCode}
	}
	return hr, nil
}

// Connected reports whether the backend is up. When /health cannot be
// reached it probes /query instead and counts any HTTP reply as connected.
func (c *Client) Connected(ctx context.Context) bool {
	_, err := c.Health(ctx)
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	_, err = c.postQuery(ctx, c.health, "test")
	if err == nil {
		return true
	}
	return errors.As(err, &apiErr) || errors.Is(err, ErrInvalidResponse)
}

// Monitor checks the connection immediately and then every interval,
// passing each result to fn, until ctx is cancelled.
func (c *Client) Monitor(ctx context.Context, interval time.Duration, fn func(connected bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(c.Connected(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// classify maps a transport error onto ErrTimeout or ErrUnreachable.
// Context cancellation is returned unchanged.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
