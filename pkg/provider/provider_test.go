package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/models"
)

func TestGeminiGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello?", req.Contents[0].Parts[0].Text)

		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Hi "}, {"text": "there. "}]}}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 3, "totalTokenCount": 7}
		}`))
	}))
	defer upstream.Close()

	g, err := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL, APIKey: "g-key"})
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), "gemini-1.5-pro", "hello?")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", res.Text)
	assert.Equal(t, models.Usage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7}, res.Usage)
	assert.Equal(t, "gemini", g.Name())
}

func TestGeminiEmptyCandidates(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer upstream.Close()

	g, err := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "gemini-pro", "q")
	assert.True(t, errors.Is(err, ErrEmptyResponse), "got %v", err)
}

func TestGeminiWhitespaceOnly(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "  \n "}]}}]}`))
	}))
	defer upstream.Close()

	g, _ := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL, APIKey: "k"})
	_, err := g.Generate(context.Background(), "gemini-pro", "q")
	assert.True(t, errors.Is(err, ErrEmptyResponse), "got %v", err)
}

func TestGeminiStatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer upstream.Close()

	g, _ := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL, APIKey: "k"})
	_, err := g.Generate(context.Background(), "gemini-pro", "q")

	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Contains(t, se.Body, "overloaded")
}

func TestGeminiMissingKey(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer upstream.Close()

	g, _ := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL})
	_, err := g.Generate(context.Background(), "gemini-pro", "q")
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
	assert.False(t, called, "no request should be sent without a key")
}

func TestGeminiTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	g, _ := New(config.ProviderConfig{Name: "gemini", URL: upstream.URL, APIKey: "k", Timeout: 20 * time.Millisecond})
	_, err := g.Generate(context.Background(), "gemini-pro", "q")
	assert.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-1", r.Header.Get("Authorization"))

		var req models.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "capital of France?", req.Messages[0].Content)

		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Model: "llama3",
			Choices: []models.Choice{
				{Message: models.ChatMessage{Role: "assistant", Content: "Paris"}, FinishReason: "stop"},
			},
			Usage: &models.Usage{PromptTokens: 10, CompletionTokens: 1, TotalTokens: 11},
		})
	}))
	defer upstream.Close()

	g, err := New(config.ProviderConfig{Name: "local", Type: "openai", URL: upstream.URL + "/", APIKey: "sk-1"})
	require.NoError(t, err)
	assert.Equal(t, "local", g.Name())

	res, err := g.Generate(context.Background(), "llama3", "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", res.Text)
	assert.Equal(t, 11, res.Usage.TotalTokens)
}

func TestOpenAINoChoices(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer upstream.Close()

	g, _ := New(config.ProviderConfig{Name: "local", Type: "openai", URL: upstream.URL})
	_, err := g.Generate(context.Background(), "m", "q")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.ProviderConfig{Name: "x", Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewSet(t *testing.T) {
	set, err := NewSet([]config.ProviderConfig{
		{Name: "gemini"},
		{Name: "local", Type: "openai"},
	})
	require.NoError(t, err)
	require.Len(t, set, 2)

	g := set["gemini"].(*Gemini)
	assert.Equal(t, config.DefaultGeminiURL, g.baseURL)
	assert.Equal(t, defaultTimeout, g.client.Timeout)
	o := set["local"].(*OpenAI)
	assert.Equal(t, DefaultOpenAIURL, o.baseURL)
}
