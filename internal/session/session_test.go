package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinefinder/searchservice/internal/providers/tmdb"
)

type nopSearcher struct{}

func (nopSearcher) SearchMulti(context.Context, string, int) (tmdb.MultiSearchResponse, error) {
	return tmdb.MultiSearchResponse{}, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAcquireReusesLiveSession(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := NewManager(nopSearcher{}, withClock(clock.Now))

	first, created := manager.Acquire("")
	require.True(t, created)
	require.NotNil(t, first.Search)
	require.NotNil(t, first.Modal)

	clock.Advance(time.Minute)
	again, created := manager.Acquire(first.ID)
	assert.False(t, created)
	assert.Same(t, first, again)
}

func TestAcquireRejectsUnknownAndMalformedIDs(t *testing.T) {
	manager := NewManager(nopSearcher{})

	s, created := manager.Acquire("not-a-uuid")
	assert.True(t, created)
	assert.NotEqual(t, "not-a-uuid", s.ID)

	s, created = manager.Acquire("6f1c3a0e-4b0a-4c39-9d59-6a1e0a0e3b11")
	assert.True(t, created)
	assert.NotEqual(t, "6f1c3a0e-4b0a-4c39-9d59-6a1e0a0e3b11", s.ID)
	assert.Equal(t, 2, manager.Len())
}

func TestIdleSessionsExpire(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := NewManager(nopSearcher{}, withClock(clock.Now), WithIdleTTL(10*time.Minute))

	s, _ := manager.Acquire("")
	clock.Advance(11 * time.Minute)

	manager.Trim()
	assert.Zero(t, manager.Len())

	replacement, created := manager.Acquire(s.ID)
	assert.True(t, created)
	assert.NotEqual(t, s.ID, replacement.ID)
}

func TestSessionCapEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := NewManager(nopSearcher{}, withClock(clock.Now), WithMaxEntries(2))

	oldest, _ := manager.Acquire("")
	clock.Advance(time.Second)
	middle, _ := manager.Acquire("")
	clock.Advance(time.Second)
	newest, created := manager.Acquire("")
	require.True(t, created)

	assert.Equal(t, 2, manager.Len())
	_, created = manager.Acquire(middle.ID)
	assert.False(t, created)
	_, created = manager.Acquire(newest.ID)
	assert.False(t, created)
	_, created = manager.Acquire(oldest.ID)
	assert.True(t, created, "oldest session should have been evicted")
}
