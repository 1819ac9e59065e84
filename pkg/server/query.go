package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/metrics"
	"github.com/askdesk/askdesk/pkg/models"
	"github.com/askdesk/askdesk/pkg/resolver"
)

// User-facing answers for each non-success outcome.
const (
	answerRateLimited     = "You've sent too many requests. Please wait a moment before trying again."
	answerMissingData     = "I couldn't understand your request. Please try again."
	answerMissingQuestion = "I couldn't find your question. Please try again."
	answerEmptyQuestion   = "Please type a question first."
	answerTooLong         = "Your question is too long. Please keep it under 500 characters."
	answerEmpty           = "I'm sorry, I couldn't generate a response at this time."
	answerTechnicalIssue  = "I encountered a technical issue while processing your question. Please try again."
	answerUnexpected      = "I ran into an unexpected issue. Please try again later."
)

// validationError is a rejected /query body.
type validationError struct {
	message string
	answer  string
}

func (e *validationError) Error() string { return e.message }

// parseQuestion extracts and validates the question from a /query body.
func parseQuestion(r *http.Request) (string, *validationError) {
	var data map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
		return "", &validationError{message: "Missing request data", answer: answerMissingData}
	}

	raw, ok := data["question"]
	if !ok || string(raw) == "null" {
		return "", &validationError{message: "Missing question in request", answer: answerMissingQuestion}
	}
	var question string
	if err := json.Unmarshal(raw, &question); err != nil {
		return "", &validationError{message: "Missing question in request", answer: answerMissingQuestion}
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", &validationError{message: "Empty question", answer: answerEmptyQuestion}
	}
	if n := utf8.RuneCountInString(question); n > models.MaxQuestionLength {
		return "", &validationError{
			message: fmt.Sprintf("Question too long (max %d characters)", models.MaxQuestionLength),
			answer:  answerTooLong,
		}
	}
	return question, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	clientID := s.clientID(r)
	if s.limiter != nil && !s.limiter.Allow(clientID) {
		s.log.Warn("rate limit exceeded", zap.String("client", clientID))
		metrics.RejectedTotal.WithLabelValues("rate_limited").Inc()
		retry := int(math.Ceil(s.limiter.RetryAfter(clientID).Seconds()))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
		writeJSON(w, http.StatusTooManyRequests, models.QueryResponse{
			Answer: answerRateLimited,
			Error:  "Rate limit exceeded",
		})
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("unexpected error in query endpoint", zap.Any("panic", p))
			writeJSON(w, http.StatusOK, models.QueryResponse{Answer: answerUnexpected, Error: "Server error"})
		}
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	question, verr := parseQuestion(r)
	if verr != nil {
		s.log.Warn("invalid query", zap.String("reason", verr.message))
		metrics.RejectedTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, models.QueryResponse{Answer: verr.answer, Error: verr.message})
		return
	}

	s.log.Info("generating answer", zap.String("question", logging.Truncate(question, 50)))
	start := time.Now()
	ans, err := s.resolve(r.Context(), question)
	elapsed := time.Since(start)
	metrics.QueryDuration.Observe(elapsed.Seconds())
	if err != nil {
		s.log.Error("error while generating response", zap.Error(err))
		writeJSON(w, http.StatusOK, models.QueryResponse{Answer: answerTechnicalIssue, Error: err.Error()})
		return
	}

	text := strings.TrimSpace(ans.Text)
	if text == "" {
		text = answerEmpty
	}
	source := models.SourceAI
	if ans.Source == resolver.SourceFallback {
		source = models.SourceFallback
	}
	metrics.QueriesTotal.WithLabelValues(source).Inc()
	s.record(r.Context(), clientID, ans, elapsed)

	cacheHeader := "miss"
	if ans.Source == resolver.SourceMemory {
		cacheHeader = "hit"
	}
	w.Header().Set("X-Askdesk-Cache", cacheHeader)
	writeJSON(w, http.StatusOK, models.QueryResponse{Answer: text, Source: source})
}

// resolve calls the resolver, turning a panic into an error.
func (s *Server) resolve(ctx context.Context, question string) (ans resolver.Answer, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolve question: %v", p)
		}
	}()
	return s.resolver.Resolve(ctx, question), nil
}

func (s *Server) record(ctx context.Context, clientID string, ans resolver.Answer, elapsed time.Duration) {
	if s.tracker == nil {
		return
	}
	rec := models.QueryRecord{
		ClientID:         clientID,
		Model:            ans.Model,
		Source:           string(ans.Source),
		Attempts:         ans.Attempts,
		PromptTokens:     ans.Usage.PromptTokens,
		CompletionTokens: ans.Usage.CompletionTokens,
		TotalTokens:      ans.Usage.TotalTokens,
		LatencyMs:        elapsed.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.tracker.Record(ctx, rec); err != nil {
		s.log.Error("record query failed", zap.Error(err))
	}
}
