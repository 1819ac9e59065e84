package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/askdesk/askdesk/pkg/models"
	"github.com/askdesk/askdesk/pkg/resolver"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.UsageSummary
	records   []models.QueryRecord
	since     time.Time
	clientID  string
}

func (f *fakeTracker) Record(_ context.Context, _ models.QueryRecord) error { return nil }
func (f *fakeTracker) QueryByClient(_ context.Context, clientID string, since time.Time) ([]models.QueryRecord, error) {
	f.clientID = clientID
	f.since = since
	return f.records, nil
}
func (f *fakeTracker) Summary(_ context.Context, since time.Time) ([]models.UsageSummary, error) {
	f.since = since
	return f.summaries, nil
}
func (f *fakeTracker) Close() error { return nil }

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats(context.Context) (models.CacheStats, error) { return f.stats, nil }

// fakeResolver implements Resolver for testing.
type fakeResolver struct {
	answer   resolver.Answer
	question string
}

func (f *fakeResolver) Resolve(_ context.Context, question string) resolver.Answer {
	f.question = question
	return f.answer
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	p := ToolCallParams{Name: name}
	if args != "" {
		p.Arguments = json.RawMessage(args)
	}
	params, _ := json.Marshal(p)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	json.Unmarshal(data, &result)
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(nil, nil, &fakeTracker{}, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "askdesk" {
		t.Errorf("server name = %s, want askdesk", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != 3 {
		t.Errorf("got %d tools, want 3", len(result.Tools))
	}

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"askdesk_ask", "askdesk_cache_stats", "askdesk_query_stats"} {
		if !names[want] {
			t.Errorf("missing tool: %s", want)
		}
	}
}

func TestToolCallAsk(t *testing.T) {
	res := &fakeResolver{answer: resolver.Answer{Text: "Paris", Source: resolver.SourceAI, Model: "gemini-pro", Attempts: 1}}
	srv := New(res, nil, nil, nil, "test")

	result := callTool(t, srv, "askdesk_ask", `{"question":"  What is the capital of France?  "}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	if res.question != "What is the capital of France?" {
		t.Errorf("resolver got %q, want trimmed question", res.question)
	}
	text := result.Content[0].Text
	if !strings.HasPrefix(text, "Paris") || !strings.Contains(text, "gemini-pro") {
		t.Errorf("unexpected answer output: %s", text)
	}
}

func TestToolCallAskValidation(t *testing.T) {
	res := &fakeResolver{}
	srv := New(res, nil, nil, nil, "test")

	if result := callTool(t, srv, "askdesk_ask", `{"question":"   "}`); !result.IsError {
		t.Error("expected isError=true for empty question")
	}
	long, _ := json.Marshal(map[string]string{"question": strings.Repeat("a", 501)})
	result := callTool(t, srv, "askdesk_ask", string(long))
	if !result.IsError || !strings.Contains(result.Content[0].Text, "too long") {
		t.Errorf("expected too long error, got: %+v", result)
	}
	if res.question != "" {
		t.Error("resolver should not be called for invalid questions")
	}
}

func TestToolCallAskFallback(t *testing.T) {
	res := &fakeResolver{answer: resolver.Answer{Text: resolver.FallbackResponses[0], Source: resolver.SourceFallback, Attempts: 3}}
	srv := New(res, nil, nil, nil, "test")

	text := callTool(t, srv, "askdesk_ask", `{"question":"anything"}`).Content[0].Text
	if !strings.Contains(text, "fallback (attempts: 3)") {
		t.Errorf("expected fallback source, got: %s", text)
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")

	for _, name := range []string{"askdesk_ask", "askdesk_cache_stats", "askdesk_query_stats"} {
		result := callTool(t, srv, name, `{"question":"q"}`)
		if !strings.Contains(result.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, result.Content[0].Text)
		}
	}
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{
		Entries: 42,
		SizeMB:  0.25,
		Popular: []models.QuestionStat{{Question: "When is the library open?", AccessCount: 7}},
	}}
	srv := New(nil, cache, nil, nil, "test")

	text := callTool(t, srv, "askdesk_cache_stats", "").Content[0].Text
	if !strings.Contains(text, "42") || !strings.Contains(text, "0.25 MB") || !strings.Contains(text, "library") {
		t.Errorf("unexpected cache stats output: %s", text)
	}
}

func TestToolCallQueryStats(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Source: "AI", Model: "gemini-1.5-pro", RequestCount: 10, TotalTokens: 700, TotalAttempts: 11},
		},
	}
	srv := New(nil, nil, tr, nil, "test")

	text := callTool(t, srv, "askdesk_query_stats", `{"since":"24h"}`).Content[0].Text
	if !strings.Contains(text, "gemini-1.5-pro") {
		t.Errorf("expected model in output, got: %s", text)
	}
	if d := time.Since(tr.since); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("since = %v ago, want about 24h", d)
	}
}

func TestToolCallQueryStatsByClient(t *testing.T) {
	tr := &fakeTracker{
		records: []models.QueryRecord{
			{ClientID: "10.0.0.1", Source: "AI", Model: "gemini-pro", Attempts: 2, LatencyMs: 150},
		},
	}
	srv := New(nil, nil, tr, nil, "test")

	text := callTool(t, srv, "askdesk_query_stats", `{"client_id":"10.0.0.1"}`).Content[0].Text
	if tr.clientID != "10.0.0.1" {
		t.Errorf("client id = %q", tr.clientID)
	}
	if !strings.Contains(text, "150ms") {
		t.Errorf("expected latency in output, got: %s", text)
	}
}

func TestToolCallQueryStatsBadSince(t *testing.T) {
	srv := New(nil, nil, &fakeTracker{}, nil, "test")

	if result := callTool(t, srv, "askdesk_query_stats", `{"since":"yesterday"}`); !result.IsError {
		t.Error("expected isError=true for invalid since")
	}
}

func TestUnknownTool(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")

	if result := callTool(t, srv, "askdesk_budget", ""); !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestParseError(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}

func TestInvalidVersion(t *testing.T) {
	srv := New(nil, nil, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "1.0",
		ID:      json.RawMessage(`10`),
		Method:  "tools/list",
	})

	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request error, got %+v", resp.Error)
	}
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, string) resolver.Answer { panic("boom") }

func TestToolPanicReturnsInternalError(t *testing.T) {
	srv := New(panicResolver{}, nil, nil, nil, "test")

	params, _ := json.Marshal(ToolCallParams{Name: "askdesk_ask", Arguments: json.RawMessage(`{"question":"q"}`)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`11`),
		Method:  "tools/call",
		Params:  params,
	})

	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Errorf("expected internal error, got %+v", resp.Error)
	}
	if string(resp.ID) != "11" {
		t.Errorf("id = %s, want 11", resp.ID)
	}
}
