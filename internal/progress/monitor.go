package progress

import (
	"context"
	"sync"
)

// Monitor holds the single observation of one view. Selecting another
// batch stops the previous observation before the next one starts.
type Monitor struct {
	mu         sync.Mutex
	ctx        context.Context
	reconciler *Reconciler
	current    *Handle
}

func NewMonitor(ctx context.Context, reconciler *Reconciler) *Monitor {
	return &Monitor{ctx: ctx, reconciler: reconciler}
}

func (m *Monitor) Select(session Session) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.BatchID() == session.BatchID {
			if session.StreamEnabled {
				m.current.EnableStream()
			} else {
				m.current.DisableStream()
			}
			return m.current
		}
		m.current.Stop()
	}
	m.current = m.reconciler.Start(m.ctx, session)
	return m.current
}

func (m *Monitor) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
}
