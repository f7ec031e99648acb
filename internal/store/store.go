// Package store owns the board document. Every read and every
// load-mutate-save cycle runs under one process-wide lock.
package store

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
)

// Backend loads and persists the document. Load must recover from missing or
// damaged data by returning a default document.
type Backend interface {
	Load(ctx context.Context) (modal.AppState, error)
	Save(ctx context.Context, state modal.AppState) error
}

// Store serializes access to a Backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
	clock   clock.Clock
	logger  pslog.Logger
	hook    func()
}

// Option customises a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp updatedAt.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.OrReal(c) }
}

// WithLogger sets the store logger.
func WithLogger(l pslog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLockedHook runs fn while the lock is held, after the document has been
// loaded. Tests use it to widen race windows.
func WithLockedHook(fn func()) Option {
	return func(s *Store) { s.hook = fn }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   clock.Real{},
		logger:  pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update loads the document, applies fn and saves the result, all under the
// exclusive lock. When fn returns an error nothing is written and the error is
// returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(*modal.AppState) error) (modal.AppState, error) {
	if err := ctx.Err(); err != nil {
		return modal.AppState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.backend.Load(ctx)
	if err != nil {
		return modal.AppState{}, fmt.Errorf("load state: %w", err)
	}
	if s.hook != nil {
		s.hook()
	}
	if err := fn(&state); err != nil {
		return modal.AppState{}, err
	}
	state.UpdatedAt = s.clock.Now()
	if state.Jobs == nil {
		state.Jobs = []modal.Job{}
	}
	if err := s.backend.Save(ctx, state); err != nil {
		return modal.AppState{}, fmt.Errorf("save state: %w", err)
	}
	s.logger.Debug("store.state.saved", "jobs", len(state.Jobs), "overdue_minutes", state.OverdueMinutes)
	return state.Clone(), nil
}

// Snapshot returns the current document.
func (s *Store) Snapshot(ctx context.Context) (modal.AppState, error) {
	if err := ctx.Err(); err != nil {
		return modal.AppState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.backend.Load(ctx)
	if err != nil {
		return modal.AppState{}, fmt.Errorf("load state: %w", err)
	}
	return state.Clone(), nil
}
