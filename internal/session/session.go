package session

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinefinder/searchservice/internal/detail"
	"cinefinder/searchservice/internal/metrics"
	"cinefinder/searchservice/internal/search"
)

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultMaxEntries  = 1000
	defaultJanitorTick = time.Minute
)

// Session is the per-client state: the search lifecycle and the detail modal.
// It lives in memory only; the theme flag is keyed separately so it outlives
// sessions.
type Session struct {
	ID     string
	Search *search.Controller
	Modal  *detail.Modal

	lastSeen time.Time
}

type Manager struct {
	searcher   search.Searcher
	logger     *slog.Logger
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithIdleTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.idleTTL = ttl
		}
	}
}

func WithMaxEntries(maxEntries int) Option {
	return func(m *Manager) {
		if maxEntries > 0 {
			m.maxEntries = maxEntries
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(searcher search.Searcher, opts ...Option) *Manager {
	m := &Manager{
		searcher:   searcher,
		logger:     slog.Default(),
		idleTTL:    defaultIdleTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Acquire returns the live session for id, or a new one when id is unknown,
// expired or not a valid session id. The boolean reports whether a new session
// was created.
func (m *Manager) Acquire(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := uuid.Parse(id); err == nil {
		if existing := m.sessions[id]; existing != nil && now.Sub(existing.lastSeen) <= m.idleTTL {
			existing.lastSeen = now
			return existing, false
		}
	}

	m.trimLocked(now, m.maxEntries-1)
	created := &Session{
		ID:       uuid.NewString(),
		Search:   search.NewController(m.searcher, search.WithLogger(m.logger)),
		Modal:    detail.NewModal(),
		lastSeen: now,
	}
	m.sessions[created.ID] = created
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	return created, true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Trim drops idle sessions and, beyond the cap, the least recently used ones.
func (m *Manager) Trim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimLocked(m.now(), m.maxEntries)
	metrics.SessionsActive.Set(float64(len(m.sessions)))
}

// StartBackground runs the janitor until ctx is done.
func (m *Manager) StartBackground(ctx context.Context) {
	go m.runJanitor(ctx, defaultJanitorTick)
}

func (m *Manager) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := m.Len()
			m.Trim()
			if dropped := before - m.Len(); dropped > 0 {
				m.logger.Debug("expired idle sessions", slog.Int("dropped", dropped))
			}
		}
	}
}

func (m *Manager) trimLocked(now time.Time, maxEntries int) {
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.idleTTL {
			delete(m.sessions, id)
		}
	}

	if len(m.sessions) <= maxEntries {
		return
	}

	type pair struct {
		id      string
		session *Session
	}
	items := make([]pair, 0, len(m.sessions))
	for id, s := range m.sessions {
		items = append(items, pair{id: id, session: s})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].session.lastSeen.Before(items[j].session.lastSeen)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(m.sessions, items[i].id)
	}
}
