package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/askdesk/pkg/cache/sqlite"
	"github.com/askdesk/askdesk/pkg/client"
	"github.com/askdesk/askdesk/pkg/models"
)

type fakeBackend struct {
	calls     int
	connected bool
	resp      models.QueryResponse
	err       error
}

func (f *fakeBackend) Ask(context.Context, string) (models.QueryResponse, error) {
	f.calls++
	return f.resp, f.err
}

func (f *fakeBackend) Connected(context.Context) bool { return f.connected }

func newCache(t *testing.T) *sqlite.Cache {
	t.Helper()
	c, err := sqlite.New(filepath.Join(t.TempDir(), "qa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func connectedSession(b *fakeBackend, c AnswerCache) *Session {
	s := NewSession(b, c, nil)
	s.SetConnected(true)
	return s
}

func TestAskValidation(t *testing.T) {
	b := &fakeBackend{connected: true}
	s := connectedSession(b, nil)

	r := s.Ask(context.Background(), "   ")
	assert.Equal(t, MsgEnterQuestion, r.Text)
	assert.Equal(t, KindNotice, r.Kind)

	r = s.Ask(context.Background(), strings.Repeat("x", 501))
	assert.Equal(t, MsgTooLong, r.Text)
	assert.Zero(t, b.calls)
}

func TestAskStoresAnswer(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{resp: models.QueryResponse{Answer: "Paris", Source: "AI"}}
	cache := newCache(t)
	s := connectedSession(b, cache)

	r := s.Ask(ctx, "What is the capital of France?")
	assert.Equal(t, "Paris", r.Text)
	assert.Equal(t, KindAnswer, r.Kind)
	assert.False(t, r.FromCache)

	r = s.Ask(ctx, "what is the capital of france?")
	assert.Equal(t, "Paris"+CacheSuffix, r.Text)
	assert.True(t, r.FromCache)
	assert.Equal(t, 1, b.calls, "second question served locally")
}

func TestAskDoesNotCacheFallback(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{resp: models.QueryResponse{Answer: "I'm sorry, I don't have that information at the moment.", Source: "fallback"}}
	cache := newCache(t)
	s := connectedSession(b, cache)

	s.Ask(ctx, "q1 here")
	_, ok := cache.Lookup(ctx, "q1 here")
	assert.False(t, ok)
}

func TestAskCacheWorksOffline(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	require.NoError(t, cache.Store(ctx, "library hours", "9 to 5"))

	b := &fakeBackend{}
	s := NewSession(b, cache, nil)

	r := s.Ask(ctx, "Library hours")
	assert.True(t, r.FromCache)

	r = s.Ask(ctx, "something new")
	assert.Equal(t, MsgDisconnected, r.Text)
	assert.Equal(t, KindSystem, r.Kind)
	assert.Zero(t, b.calls)
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"api error", &client.APIError{StatusCode: 429, Message: "Rate limit exceeded"}, "Error: Rate limit exceeded (Status code: 429)"},
		{"api error no message", &client.APIError{StatusCode: 502}, "Error: Server returned status code 502"},
		{"unreachable", fmt.Errorf("%w: dial tcp", client.ErrUnreachable), MsgUnreachable},
		{"timeout", fmt.Errorf("%w: deadline", client.ErrTimeout), MsgTimeout},
		{"invalid", fmt.Errorf("%w: bad json", client.ErrInvalidResponse), MsgInvalidResponse},
		{"other", errors.New("weird"), MsgUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := connectedSession(&fakeBackend{err: tt.err}, nil)
			r := s.Ask(context.Background(), "q")
			assert.Equal(t, tt.want, r.Text)
			assert.Equal(t, KindError, r.Kind)
		})
	}
}

func TestRefresh(t *testing.T) {
	b := &fakeBackend{connected: true}
	s := NewSession(b, nil, nil)
	assert.False(t, s.Connected())
	assert.True(t, s.Refresh(context.Background()))
	assert.True(t, s.Connected())
}

func TestSessionAgainstHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"ok","message":"API is running"}`))
		case "/query":
			w.Write([]byte(`{"answer":"Office hours are 2-4pm.","source":"AI"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cache := newCache(t)
	s := NewSession(client.New(srv.URL, time.Second, time.Second), cache, nil)
	require.True(t, s.Refresh(context.Background()))

	r := s.Ask(context.Background(), "When are office hours?")
	assert.Equal(t, "Office hours are 2-4pm.", r.Text)
	assert.Equal(t, "AI", r.Source)

	answer, ok := cache.Lookup(context.Background(), "when are office hours?")
	assert.True(t, ok)
	assert.Equal(t, "Office hours are 2-4pm.", answer)
}
