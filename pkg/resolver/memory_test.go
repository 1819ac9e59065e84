package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(ttl time.Duration, max int) (*MemoryCache, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryCache(ttl, max)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemoryGetSet(t *testing.T) {
	m, _ := newTestMemory(time.Hour, 0)

	_, ok := m.Get("k")
	assert.False(t, ok)

	m.Set("k", "v")
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryTTL(t *testing.T) {
	m, now := newTestMemory(time.Hour, 0)
	m.Set("k", "v")

	*now = now.Add(59 * time.Minute)
	_, ok := m.Get("k")
	assert.True(t, ok)

	*now = now.Add(2 * time.Minute)
	_, ok = m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len(), "stale entry removed on read")
}

func TestMemorySweep(t *testing.T) {
	m, now := newTestMemory(time.Hour, 0)
	m.Set("old", "1")
	*now = now.Add(30 * time.Minute)
	m.Set("new", "2")
	*now = now.Add(31 * time.Minute)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemoryMaxEntries(t *testing.T) {
	m, now := newTestMemory(time.Hour, 2)
	m.Set("a", "1")
	*now = now.Add(time.Second)
	m.Set("b", "2")
	*now = now.Add(time.Second)
	m.Set("c", "3")

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get("a")
	assert.False(t, ok, "oldest entry dropped")
	_, ok = m.Get("c")
	assert.True(t, ok)

	m.Set("b", "updated")
	assert.Equal(t, 2, m.Len(), "overwrite does not evict")
}

func TestMemoryRun(t *testing.T) {
	m := NewMemoryCache(time.Millisecond, 0)
	m.Set("k", "v")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
