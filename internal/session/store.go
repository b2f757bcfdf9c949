package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"parkfee-bot/internal/domain"
)

// Backend persists non-idle sessions. Load reports found=false for missing
// or expired sessions.
type Backend interface {
	Load(ctx context.Context, userID string) (domain.Session, bool, error)
	Save(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, userID string) error
}

// Store serializes transitions per user on top of a Backend.
type Store struct {
	backend Backend
	locks   *keyedMutex
	now     func() time.Time
}

// NewStore wraps backend with per-user locking.
func NewStore(backend Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("session: backend must not be nil")
	}
	return &Store{
		backend: backend,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}, nil
}

// Update runs fn against the user's current session while holding that
// user's lock. A missing session is presented as idle. When fn leaves the
// session idle it is deleted, otherwise it is saved. If fn returns an error
// nothing is written.
func (s *Store) Update(ctx context.Context, userID string, fn func(*domain.Session) error) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("session: user id must not be empty")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	current, found, err := s.backend.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("session: load %q: %w", userID, err)
	}
	if !found {
		current = domain.Session{UserID: userID, Stage: domain.StageIdle}
	}
	before := current

	if err := fn(&current); err != nil {
		return err
	}
	current.UserID = userID

	if current.Stage == domain.StageIdle {
		if !found {
			return nil
		}
		if err := s.backend.Delete(ctx, userID); err != nil {
			return fmt.Errorf("session: delete %q: %w", userID, err)
		}
		return nil
	}
	if current == before {
		return nil
	}

	current.UpdatedAt = s.now().UTC()
	if err := s.backend.Save(ctx, current); err != nil {
		return fmt.Errorf("session: save %q: %w", userID, err)
	}
	return nil
}

// Get returns the user's session, idle when absent.
func (s *Store) Get(ctx context.Context, userID string) (domain.Session, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	current, found, err := s.backend.Load(ctx, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: load %q: %w", userID, err)
	}
	if !found {
		return domain.Session{UserID: userID, Stage: domain.StageIdle}, nil
	}
	return current, nil
}

// keyedMutex hands out one mutex per key and drops it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
