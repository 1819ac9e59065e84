package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/askdesk/askdesk/pkg/models"
)

// Tool argument structs.

type askArgs struct {
	Question string `json:"question"`
}

type queryStatsArgs struct {
	Since    string `json:"since"`
	ClientID string `json:"client_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"askdesk_ask":         handleAsk,
	"askdesk_cache_stats": handleCacheStats,
	"askdesk_query_stats": handleQueryStats,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "askdesk_ask",
		Description: "Ask the student assistant a question. Answers come from the in-memory cache, the configured models, or a fallback message.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"question"},
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The question to answer (max 500 characters)",
				},
			},
		},
	},
	{
		Name:        "askdesk_cache_stats",
		Description: "Show answer cache statistics (entries, size, most popular and most recent questions).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "askdesk_query_stats",
		Description: "Show answered-question statistics grouped by source and model, or the queries of one client.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Only include queries newer than this duration, e.g. 24h (optional)",
				},
				"client_id": map[string]any{
					"type":        "string",
					"description": "List the individual queries of this client (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleAsk(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.resolver == nil {
		return textResult("Question answering is not configured.")
	}
	var args askArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return errorResult("question is required")
	}
	if utf8.RuneCountInString(question) > models.MaxQuestionLength {
		return errorResult("Question too long (max 500 characters)")
	}
	return textResult(formatAnswer(s.resolver.Resolve(ctx, question)))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Answer cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleQueryStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Query tracking is not configured.")
	}
	var args queryStatsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	var since time.Time
	if args.Since != "" {
		d, err := time.ParseDuration(args.Since)
		if err != nil {
			return errorResult("Invalid since duration (use e.g. 24h): " + err.Error())
		}
		since = time.Now().Add(-d)
	}

	if args.ClientID != "" {
		recs, err := s.tracker.QueryByClient(ctx, args.ClientID, since)
		if err != nil {
			return errorResult("Error fetching client queries: " + err.Error())
		}
		return textResult(formatRecords(recs))
	}

	rows, err := s.tracker.Summary(ctx, since)
	if err != nil {
		return errorResult("Error fetching query stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}
