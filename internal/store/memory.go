package store

import (
	"context"
	"sync"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
)

// MemoryBackend holds the document in process memory. It is used by tests and
// when no data file is configured.
type MemoryBackend struct {
	mu    sync.Mutex
	state *modal.AppState
	clock clock.Clock
	saves int
}

func NewMemoryBackend(c clock.Clock) *MemoryBackend {
	return &MemoryBackend{clock: clock.OrReal(c)}
}

func (m *MemoryBackend) Load(_ context.Context) (modal.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return modal.NewAppState(m.clock.Now()), nil
	}
	return m.state.Clone(), nil
}

func (m *MemoryBackend) Save(_ context.Context, state modal.AppState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := state.Clone()
	m.state = &cp
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
