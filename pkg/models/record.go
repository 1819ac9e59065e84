package models

import "time"

// QueryRecord tracks a single resolved question on the server.
type QueryRecord struct {
	ID               int64     `json:"id"`
	ClientID         string    `json:"client_id"`
	Model            string    `json:"model"`
	Source           string    `json:"source"`
	Attempts         int       `json:"attempts"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates query records by source and model.
type UsageSummary struct {
	Source        string  `json:"source"`
	Model         string  `json:"model"`
	RequestCount  int     `json:"request_count"`
	TotalTokens   int     `json:"total_tokens"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	TotalAttempts int     `json:"total_attempts"`
}
