package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/models"
)

// DefaultOpenAIURL is the base for "openai" providers without a URL.
const DefaultOpenAIURL = "https://api.openai.com"

const defaultTimeout = 60 * time.Second

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

var (
	// ErrEmptyResponse is returned when the upstream answered without usable text.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMissingAPIKey is returned before any network call when no key is configured.
	ErrMissingAPIKey = errors.New("missing API key")
)

// StatusError is a non-200 upstream reply.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Result is the text generated for one prompt.
type Result struct {
	Text  string
	Usage models.Usage
}

// Generator produces text for a prompt with a named model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (Result, error)
	Name() string
}

// New creates a Generator for a provider config. Empty URL and timeout
// fields get per-type defaults.
func New(cfg config.ProviderConfig) (Generator, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Type {
	case "", "gemini":
		base := cfg.URL
		if base == "" {
			base = config.DefaultGeminiURL
		}
		return &Gemini{name: cfg.Name, baseURL: strings.TrimRight(base, "/"), apiKey: cfg.APIKey, client: client}, nil
	case "openai":
		base := cfg.URL
		if base == "" {
			base = DefaultOpenAIURL
		}
		return &OpenAI{name: cfg.Name, baseURL: strings.TrimRight(base, "/"), apiKey: cfg.APIKey, client: client}, nil
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// NewSet creates one Generator per configured provider, keyed by name.
func NewSet(cfgs []config.ProviderConfig) (map[string]Generator, error) {
	set := make(map[string]Generator, len(cfgs))
	for _, c := range cfgs {
		g, err := New(c)
		if err != nil {
			return nil, err
		}
		set[c.Name] = g
	}
	return set, nil
}

// postJSON sends body to url and returns the response body. Non-200
// statuses are returned as *StatusError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: msg}
	}
	return respBody, nil
}
