package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/askdesk/askdesk/pkg/models"
)

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// Name returns the configured provider name.
func (g *Gemini) Name() string { return g.name }

// Generate sends prompt as a single user turn and returns the joined text of
// the first candidate. A missing API key fails with ErrMissingAPIKey before
// any request is made.
func (g *Gemini) Generate(ctx context.Context, model, prompt string) (Result, error) {
	if g.apiKey == "" {
		return Result{}, fmt.Errorf("gemini %s: %w", model, ErrMissingAPIKey)
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(model))
	body, err := postJSON(ctx, g.client, g.name, endpoint, map[string]string{"x-goog-api-key": g.apiKey}, payload)
	if err != nil {
		return Result{}, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Result{}, fmt.Errorf("gemini %s: %w", model, ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Result{}, fmt.Errorf("gemini %s: %w", model, ErrEmptyResponse)
	}

	return Result{
		Text: text,
		Usage: models.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
