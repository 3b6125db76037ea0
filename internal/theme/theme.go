package theme

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cinefinder/searchservice/internal/metrics"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// SystemHintHeader is the client hint carrying the preferred color scheme.
const SystemHintHeader = "Sec-CH-Prefers-Color-Scheme"

var ErrInvalidTheme = errors.New("invalid theme")

func Parse(raw string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case Light:
		return Light, true
	case Dark:
		return Dark, true
	default:
		return "", false
	}
}

func (t Theme) Toggled() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Resolve picks the stored theme, then the system preference, then light.
func Resolve(stored, systemHint string) Theme {
	if theme, ok := Parse(stored); ok {
		return theme
	}
	if theme, ok := Parse(strings.Trim(systemHint, `"`)); ok {
		return theme
	}
	return Light
}

// Store persists one theme flag per client key. Get reports false when nothing
// was stored for key.
type Store interface {
	Get(ctx context.Context, key string) (Theme, bool, error)
	Set(ctx context.Context, key string, theme Theme) error
}

// Service resolves and toggles themes on top of a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{store: store}
}

func (s *Service) Current(ctx context.Context, key, systemHint string) (Theme, error) {
	stored, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return Resolve("", systemHint), err
	}
	if !ok {
		stored = ""
	}
	return Resolve(string(stored), systemHint), nil
}

// Toggle flips the resolved theme and writes the result.
func (s *Service) Toggle(ctx context.Context, key, systemHint string) (Theme, error) {
	current, err := s.Current(ctx, key, systemHint)
	if err != nil {
		return current, err
	}
	next := current.Toggled()
	if err := s.store.Set(ctx, key, next); err != nil {
		return current, err
	}
	metrics.ThemeTogglesTotal.WithLabelValues(string(next)).Inc()
	return next, nil
}

const defaultMemoryEntries = 10000

// MemoryStore keeps theme flags in process memory. It holds at most limit
// keys and forgets the earliest written key first.
type MemoryStore struct {
	mu     sync.RWMutex
	limit  int
	themes map[string]Theme
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithLimit(defaultMemoryEntries)
}

func NewMemoryStoreWithLimit(limit int) *MemoryStore {
	if limit <= 0 {
		limit = defaultMemoryEntries
	}
	return &MemoryStore{limit: limit, themes: make(map[string]Theme)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Theme, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	theme, ok := m.themes[key]
	return theme, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, theme Theme) error {
	if _, ok := Parse(string(theme)); !ok {
		return ErrInvalidTheme
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.themes[key]; !exists {
		m.order = append(m.order, key)
	}
	m.themes[key] = theme
	for len(m.themes) > m.limit {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.themes, oldest)
	}
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.themes)
}
