package models

// MaxQuestionLength is the longest accepted question, in characters.
const MaxQuestionLength = 500

// Answer sources reported by the query endpoint.
const (
	SourceAI       = "AI"
	SourceFallback = "fallback"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is returned by POST /query. Error responses carry Error and
// still include a displayable Answer.
type QueryResponse struct {
	Answer string `json:"answer"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the body for non-query errors (404, 405, 500).
type ErrorResponse struct {
	Error string `json:"error"`
}
