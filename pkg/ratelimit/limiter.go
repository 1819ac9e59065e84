package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/askdesk/askdesk/pkg/metrics"
)

// ErrRateLimited is returned when a client has used up its window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config controls the per-client fixed window.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// MaxClients bounds the number of tracked windows. Zero means unbounded.
	MaxClients int
}

type window struct {
	start time.Time
	count int
}

// Limiter admits at most MaxRequests per client per Window. A client's
// window starts at its first request and resets once Window has elapsed.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clients map[string]*window
	now     func() time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock replaces the limiter's time source. It returns l for chaining.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a request from clientID and reports whether it is admitted.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok {
		l.makeRoomLocked(now)
		l.clients[clientID] = &window{start: now, count: 1}
		metrics.RateLimitClients.Set(float64(len(l.clients)))
		return true
	}

	if now.Sub(w.start) >= l.cfg.Window {
		w.start = now
		w.count = 1
		return true
	}

	if w.count >= l.cfg.MaxRequests {
		return false
	}
	w.count++
	return true
}

// Check is Allow expressed as an error.
func (l *Limiter) Check(clientID string) error {
	if !l.Allow(clientID) {
		return ErrRateLimited
	}
	return nil
}

// RetryAfter returns how long until clientID's window resets, or zero.
func (l *Limiter) RetryAfter(clientID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok {
		return 0
	}
	left := l.cfg.Window - l.now().Sub(w.start)
	if left < 0 {
		return 0
	}
	return left
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int { return l.cfg.MaxRequests }

// Len returns the number of tracked client windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep drops expired windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.sweepLocked(l.now())
	metrics.RateLimitClients.Set(float64(len(l.clients)))
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) sweepLocked(now time.Time) int {
	n := 0
	for id, w := range l.clients {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.clients, id)
			n++
		}
	}
	return n
}

// makeRoomLocked keeps the table under MaxClients before a new client is
// added: expired windows go first, then the oldest live one.
func (l *Limiter) makeRoomLocked(now time.Time) {
	if l.cfg.MaxClients <= 0 || len(l.clients) < l.cfg.MaxClients {
		return
	}
	l.sweepLocked(now)
	if len(l.clients) < l.cfg.MaxClients {
		return
	}

	var oldestID string
	var oldest time.Time
	for id, w := range l.clients {
		if oldestID == "" || w.start.Before(oldest) {
			oldestID, oldest = id, w.start
		}
	}
	delete(l.clients, oldestID)
}
