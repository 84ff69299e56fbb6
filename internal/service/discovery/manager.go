package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/session"
)

// SessionStore resolves stored sessions and their last applied filters.
type SessionStore interface {
	Load(ctx context.Context, userID string) (session.Context, error)
	LoadFilters(ctx context.Context, userID string) (models.SwipeFilters, bool, error)
	SaveFilters(ctx context.Context, userID string, f models.SwipeFilters) error
	Delete(ctx context.Context, userID string) error
}

// Manager hosts one Session per signed-in user.
type Manager struct {
	repo  Repository
	store SessionStore
	opts  Options
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions share repo and opts.
func NewManager(repo Repository, store SessionStore, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		repo:     repo,
		store:    store,
		opts:     opts,
		log:      opts.Logger,
		sessions: map[string]*Session{},
	}
}

// Open returns the live session of userID, creating it from the stored
// session on first use. A user without a stored session gets
// errors.ErrSessionNotFound.
//
// Behavior:
//   - The store is read without holding the manager lock, so opening one
//     user never waits on another user's store I/O.
//   - When two opens for the same user race, the first session inserted
//     wins and the other is closed.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	if s, ok := m.Get(userID); ok {
		return s, nil
	}

	sc, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	opts := m.opts
	opts.FilterStore = m.store
	f, ok, err := m.store.LoadFilters(ctx, userID)
	switch {
	case err != nil:
		m.log.Warn("stored filters unreadable, using defaults", "user_id", userID, "err", err)
	case ok && ValidateFilters(normalizeFilters(f)) == nil:
		opts.Filters = &f
	}

	created, err := NewSession(sc, m.repo, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		created.Close()
		return s, nil
	}
	m.sessions[userID] = created
	m.mu.Unlock()

	m.log.Info("discovery session opened", "user_id", userID)
	return created, nil
}

// Get returns the live session of userID without touching the store.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close ends the session of userID, if any.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.log.Info("discovery session closed", "user_id", userID)
	}
	return ok
}

// SignOut ends the session of userID and forgets its stored token and
// filters. Signing out a user without a stored session is not an error.
func (m *Manager) SignOut(ctx context.Context, userID string) error {
	m.Close(userID)
	if err := m.store.Delete(ctx, userID); err != nil {
		return err
	}
	m.log.Info("user signed out", "user_id", userID)
	return nil
}

// CloseAll ends every live session. It is called at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
