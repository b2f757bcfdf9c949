package session

import (
	"context"
	"sync"
	"time"

	"parkfee-bot/internal/domain"
)

const DefaultTTL = 10 * time.Minute

// MemoryBackend keeps sessions in process memory. Expired entries are
// hidden on read and removed by Sweep.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBackend{
		sessions: make(map[string]domain.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryBackend) Load(_ context.Context, userID string) (domain.Session, bool, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok || m.expired(s) {
		return domain.Session{}, false, nil
	}
	return s, true, nil
}

func (m *MemoryBackend) Save(_ context.Context, s domain.Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now().UTC()
	}
	m.mu.Lock()
	m.sessions[s.UserID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryBackend) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryBackend) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *MemoryBackend) expired(s domain.Session) bool {
	return m.now().Sub(s.UpdatedAt) > m.ttl
}
