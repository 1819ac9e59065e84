package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/askdesk/askdesk/pkg/config"
	"github.com/askdesk/askdesk/pkg/logging"
	"github.com/askdesk/askdesk/pkg/metrics"
	"github.com/askdesk/askdesk/pkg/models"
	"github.com/askdesk/askdesk/pkg/provider"
	"github.com/askdesk/askdesk/pkg/router"
)

// Source says where an Answer came from.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// FallbackResponses are returned when no model produced an answer.
var FallbackResponses = []string{
	"I'm sorry, I don't have that information at the moment.",
	"I couldn't process your question. Could you try rephrasing it?",
	"There seems to be a technical issue. Please try again later.",
	"I'm having trouble connecting to my knowledge base. Please try again shortly.",
	"I'm currently experiencing high demand. Please try your question again in a moment.",
}

const promptTemplate = "You are a helpful assistant for university students.\n" +
	"Answer the following question concisely and accurately:\n\n%s"

// BuildPrompt wraps a question in the assistant instructions.
func BuildPrompt(question string) string {
	return fmt.Sprintf(promptTemplate, question)
}

// Normalize returns the memory cache key for a question.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Answer is the outcome of resolving one question.
type Answer struct {
	Text     string
	Source   Source
	Model    string
	Attempts int
	Usage    models.Usage
}

// Candidate is one model to try, bound to the generator that serves it.
type Candidate struct {
	Route     router.Route
	Generator provider.Generator
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// errOrchestration marks a failure in the resolver's own plumbing, such as a
// recovered panic, as opposed to an error returned by a model.
var errOrchestration = errors.New("orchestration fault")

// Option configures a Resolver.
type Option func(*Resolver)

// WithSleeper replaces the delay function used between passes.
func WithSleeper(s Sleeper) Option {
	return func(r *Resolver) { r.sleep = s }
}

// WithPicker replaces the fallback phrase picker. pick(n) must return [0,n).
func WithPicker(pick func(n int) int) Option {
	return func(r *Resolver) { r.pick = pick }
}

// WithMemoryCache replaces the memory cache.
func WithMemoryCache(m *MemoryCache) Option {
	return func(r *Resolver) { r.memory = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// Resolver turns a question into an answer. It tries each candidate model in
// order, repeats the whole list up to MaxRetries more times, and falls back to
// a canned phrase when nothing works. Resolve never fails.
type Resolver struct {
	cfg        config.ResolverConfig
	candidates []Candidate
	memory     *MemoryCache
	pacer      *rate.Limiter
	sleep      Sleeper
	pick       func(n int) int
	log        *zap.Logger
}

// New creates a Resolver over an ordered candidate list.
func New(cfg config.ResolverConfig, candidates []Candidate, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:        cfg,
		candidates: candidates,
		memory:     NewMemoryCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		sleep:      SleepContext,
		pick:       rand.IntN,
		log:        zap.NewNop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds the candidate chain from the configured providers and
// models. An empty chain is not an error: every question then falls back.
func FromConfig(cfg *config.Config, opts ...Option) (*Resolver, error) {
	gens, err := provider.NewSet(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}

	var candidates []Candidate
	routes, err := router.New(cfg).Resolve()
	switch {
	case errors.Is(err, router.ErrNoRoutes):
	case err != nil:
		return nil, err
	default:
		for _, rt := range routes {
			candidates = append(candidates, Candidate{Route: rt, Generator: gens[rt.Provider.Name]})
		}
	}

	r := New(cfg.Resolver, candidates, opts...)
	if len(candidates) == 0 {
		r.log.Warn("no models configured, every question will get a fallback answer")
	}
	return r, nil
}

// Memory returns the resolver's memory cache.
func (r *Resolver) Memory() *MemoryCache { return r.memory }

// Resolve answers question. The result always has non-empty Text.
func (r *Resolver) Resolve(ctx context.Context, question string) Answer {
	key := Normalize(question)
	if text, ok := r.memory.Get(key); ok {
		metrics.MemoryCacheLookups.WithLabelValues("hit").Inc()
		r.log.Info("memory cache hit", zap.String("question", logging.Truncate(question, 50)))
		return Answer{Text: text, Source: SourceMemory}
	}
	metrics.MemoryCacheLookups.WithLabelValues("miss").Inc()

	prompt := BuildPrompt(question)
	attempts := 0
	for pass := 0; pass <= r.cfg.MaxRetries; pass++ {
		attempts++
		ans, err := r.tryCandidates(ctx, prompt)
		if err == nil {
			ans.Attempts = attempts
			r.memory.Set(key, ans.Text)
			return ans
		}
		if pass == r.cfg.MaxRetries {
			break
		}

		delay := r.cfg.RetryDelay
		if errors.Is(err, errOrchestration) {
			delay = r.cfg.ErrorRetryDelay
		}
		r.log.Warn("all models failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			r.log.Warn("retry wait interrupted", zap.Error(err))
			break
		}
	}

	metrics.FallbacksTotal.Inc()
	text := FallbackResponses[r.pick(len(FallbackResponses))]
	r.log.Warn("returning fallback answer", zap.Int("attempts", attempts))
	return Answer{Text: text, Source: SourceFallback, Attempts: attempts}
}

// tryCandidates runs one pass over the candidate list and returns the first
// usable answer.
func (r *Resolver) tryCandidates(ctx context.Context, prompt string) (Answer, error) {
	if len(r.candidates) == 0 {
		return Answer{}, fmt.Errorf("%w: no models configured", errOrchestration)
	}

	var fault error
	for _, c := range r.candidates {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}

		res, err := r.call(ctx, c, prompt)
		if err != nil {
			if errors.Is(err, errOrchestration) {
				fault = err
			}
			r.log.Warn("model failed, trying next", zap.String("route", c.Route.String()), zap.Error(err))
			continue
		}
		return Answer{
			Text:   res.Text,
			Source: SourceAI,
			Model:  c.Route.Model,
			Usage:  res.Usage,
		}, nil
	}
	if fault != nil {
		return Answer{}, fmt.Errorf("all models failed: %w", fault)
	}
	return Answer{}, errors.New("all models failed")
}

// call invokes a single candidate. A panic inside the generator is recovered
// and reported as that candidate's failure; the pass moves on to the next one.
// A pass that saw such a fault and found no answer waits ErrorRetryDelay.
func (r *Resolver) call(ctx context.Context, c Candidate, prompt string) (res provider.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic calling %s: %v", errOrchestration, c.Route, p)
		}
	}()

	if c.Generator == nil {
		return provider.Result{}, fmt.Errorf("%w: no generator for %s", errOrchestration, c.Route)
	}
	if r.pacer != nil {
		if err := r.pacer.Wait(ctx); err != nil {
			return provider.Result{}, fmt.Errorf("pace request: %w", err)
		}
	}

	providerName := c.Generator.Name()
	start := time.Now()
	res, err = c.Generator.Generate(ctx, c.Route.Model, prompt)
	metrics.LLMRequestDuration.WithLabelValues(providerName, c.Route.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(providerName, c.Route.Model, "error").Inc()
		return provider.Result{}, err
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		metrics.LLMRequestsTotal.WithLabelValues(providerName, c.Route.Model, "empty").Inc()
		return provider.Result{}, provider.ErrEmptyResponse
	}

	metrics.LLMRequestsTotal.WithLabelValues(providerName, c.Route.Model, "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(providerName, c.Route.Model, "prompt").Add(float64(res.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(providerName, c.Route.Model, "completion").Add(float64(res.Usage.CompletionTokens))
	return res, nil
}
