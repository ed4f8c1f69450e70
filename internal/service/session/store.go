package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kynara/internal/domain"
	"kynara/internal/store"
)

// Listener is told when the active session changes. The order ledger uses it
// to load and drop the owner's orders.
type Listener interface {
	SessionStarted(ctx context.Context, s domain.Session) error
	SessionEnded(ctx context.Context)
}

// Store holds at most one active session and mirrors it under
// store.KeyCurrentSession.
type Store struct {
	mu        sync.RWMutex
	store     store.Store
	listeners []Listener
	logger    *slog.Logger
	current   *domain.Session
}

func NewStore(st store.Store, logger *slog.Logger, listeners ...Listener) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: st, logger: logger, listeners: listeners}
}

// Start replaces any active session with the projection of identity.
func (s *Store) Start(ctx context.Context, identity domain.Identity) (domain.Session, error) {
	sess := identity.Session()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := store.SaveJSON(ctx, s.store, store.KeyCurrentSession, sess); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}
	if err := s.activate(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	s.logger.Info("session started", slog.String("email", sess.Email))
	return sess, nil
}

// End removes the session marker, then clears the active session. If the
// marker cannot be removed the session stays active. Persisted ledgers are
// kept.
func (s *Store) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, store.KeyCurrentSession); err != nil {
		return fmt.Errorf("remove session marker: %w", err)
	}
	var email string
	if s.current != nil {
		email = s.current.Email
	}
	s.current = nil
	for _, l := range s.listeners {
		l.SessionEnded(ctx)
	}
	if email != "" {
		s.logger.Info("session ended", slog.String("email", email))
	}
	return nil
}

// Restore re-establishes the persisted session, if any, without checking
// credentials. Unreadable markers are treated as no session.
func (s *Store) Restore(ctx context.Context) (domain.Session, bool, error) {
	var sess domain.Session
	found, err := store.LoadJSON(ctx, s.store, store.KeyCurrentSession, &sess)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("read session marker: %w", err)
	}
	if !found || strings.TrimSpace(sess.Email) == "" {
		return domain.Session{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activate(ctx, sess); err != nil {
		return domain.Session{}, false, err
	}
	s.logger.Info("session restored", slog.String("email", sess.Email))
	return sess, true, nil
}

func (s *Store) Current() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.Session{}, false
	}
	return *s.current, true
}

func (s *Store) Active() bool {
	_, ok := s.Current()
	return ok
}

func (s *Store) activate(ctx context.Context, sess domain.Session) error {
	s.current = &sess
	for _, l := range s.listeners {
		if err := l.SessionStarted(ctx, sess); err != nil {
			s.current = nil
			return fmt.Errorf("start session for %s: %w", sess.Email, err)
		}
	}
	return nil
}
