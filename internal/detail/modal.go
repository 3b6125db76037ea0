package detail

import (
	"sync"

	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/metrics"
)

// Modal tracks the open detail session of one client. Every Open issues a new
// token; a load may only commit its model while its token is still current.
type Modal struct {
	mu      sync.Mutex
	seq     uint64
	open    bool
	current *domain.DetailViewModel
}

func NewModal() *Modal {
	return &Modal{}
}

// Open starts a new detail session and drops whatever the previous one showed.
func (m *Modal) Open() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.open = true
	m.current = nil
	return m.seq
}

// Close invalidates the current session so in-flight loads are discarded.
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.open = false
	m.current = nil
}

// Commit stores model if token still identifies the open session.
func (m *Modal) Commit(token uint64, model domain.DetailViewModel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || token != m.seq {
		metrics.StaleResponsesTotal.WithLabelValues("detail").Inc()
		return false
	}
	m.current = &model
	return true
}

// IsCurrent reports whether token identifies the open session.
func (m *Modal) IsCurrent(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open && token == m.seq
}

// Current returns the committed model of the open session, if any.
func (m *Modal) Current() (domain.DetailViewModel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domain.DetailViewModel{}, false
	}
	return *m.current, true
}
