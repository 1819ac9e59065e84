package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdesk/askdesk/pkg/models"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// Name returns the configured provider name.
func (o *OpenAI) Name() string { return o.name }

// Generate sends prompt as a single user message and returns the first
// choice's content.
func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (Result, error) {
	payload, err := json.Marshal(models.ChatCompletionRequest{
		Model:    model,
		Messages: []models.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	body, err := postJSON(ctx, o.client, o.name, o.baseURL+"/v1/chat/completions", headers, payload)
	if err != nil {
		return Result{}, err
	}

	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%s %s: %w", o.name, model, ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Result{}, fmt.Errorf("%s %s: %w", o.name, model, ErrEmptyResponse)
	}

	res := Result{Text: text}
	if resp.Usage != nil {
		res.Usage = *resp.Usage
	}
	return res, nil
}
