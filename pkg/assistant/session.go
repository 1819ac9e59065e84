package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/askdesk/askdesk/pkg/client"
	"github.com/askdesk/askdesk/pkg/models"
)

// CacheSuffix marks answers served from the local answer cache.
const CacheSuffix = "\n(Retrieved from cache)"

// Messages shown to the user instead of raw errors.
const (
	MsgEnterQuestion   = "Please enter a question"
	MsgTooLong         = "Question is too long (max 500 characters)"
	MsgDisconnected    = "Cannot connect to the server. Please make sure the backend is running."
	MsgUnreachable     = "I can't connect to the server right now. Please make sure the backend is running and try again."
	MsgTimeout         = "The server took too long to respond. Please try again."
	MsgInvalidResponse = "The server response was invalid. Please check if the backend is running correctly."
	MsgUnexpected      = "An unexpected error occurred. Please try again."
)

// Kind classifies a Reply for display.
type Kind int

const (
	KindAnswer Kind = iota
	KindError
	KindSystem
	KindNotice
)

// Reply is what the user sees after asking a question.
type Reply struct {
	Text      string
	Kind      Kind
	Source    string
	FromCache bool
}

// Asker is the backend the session talks to. *client.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (models.QueryResponse, error)
	Connected(ctx context.Context) bool
}

// AnswerCache is the local persistent cache. *sqlite.Cache satisfies it.
type AnswerCache interface {
	Lookup(ctx context.Context, question string) (string, bool)
	Store(ctx context.Context, question, answer string) error
}

// Session is one user's conversation with the backend. It consults the local
// answer cache before the network and remembers real answers it receives.
type Session struct {
	backend   Asker
	cache     AnswerCache
	log       *zap.Logger
	connected atomic.Bool
}

// NewSession creates a Session. cache may be nil. The session starts
// disconnected until SetConnected or Refresh reports otherwise.
func NewSession(backend Asker, cache AnswerCache, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{backend: backend, cache: cache, log: log}
}

// SetConnected records the latest connection probe result.
func (s *Session) SetConnected(ok bool) { s.connected.Store(ok) }

// Connected returns the last recorded connection state.
func (s *Session) Connected() bool { return s.connected.Load() }

// Refresh probes the backend and records the result.
func (s *Session) Refresh(ctx context.Context) bool {
	ok := s.backend.Connected(ctx)
	s.connected.Store(ok)
	return ok
}

// Ask validates the question, then answers it from the cache or the backend.
func (s *Session) Ask(ctx context.Context, question string) Reply {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{Text: MsgEnterQuestion, Kind: KindNotice}
	}
	if utf8.RuneCountInString(question) > models.MaxQuestionLength {
		return Reply{Text: MsgTooLong, Kind: KindNotice}
	}

	if s.cache != nil {
		if answer, ok := s.cache.Lookup(ctx, question); ok {
			return Reply{Text: answer + CacheSuffix, Kind: KindAnswer, FromCache: true}
		}
	}

	if !s.Connected() {
		return Reply{Text: MsgDisconnected, Kind: KindSystem}
	}

	resp, err := s.backend.Ask(ctx, question)
	if err != nil {
		return s.errorReply(err)
	}

	answer := resp.Answer
	if answer == "" {
		answer = "No response"
	}
	if s.cache != nil && resp.Source != models.SourceFallback && resp.Answer != "" {
		if err := s.cache.Store(ctx, question, strings.TrimSuffix(resp.Answer, CacheSuffix)); err != nil {
			s.log.Error("error caching answer", zap.Error(err))
		}
	}
	return Reply{Text: answer, Kind: KindAnswer, Source: resp.Source}
}

func (s *Session) errorReply(err error) Reply {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return Reply{Text: fmt.Sprintf("Error: %s (Status code: %d)", apiErr.Message, apiErr.StatusCode), Kind: KindError}
		}
		return Reply{Text: fmt.Sprintf("Error: Server returned status code %d", apiErr.StatusCode), Kind: KindError}
	case errors.Is(err, client.ErrUnreachable):
		return Reply{Text: MsgUnreachable, Kind: KindError}
	case errors.Is(err, client.ErrTimeout):
		return Reply{Text: MsgTimeout, Kind: KindError}
	case errors.Is(err, client.ErrInvalidResponse):
		return Reply{Text: MsgInvalidResponse, Kind: KindError}
	default:
		s.log.Error("unexpected error asking backend", zap.Error(err))
		return Reply{Text: MsgUnexpected, Kind: KindError}
	}
}
