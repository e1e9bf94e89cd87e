// Package background runs named fire-and-forget side work with bounded
// bookkeeping. A task slot is force-cleared after a fixed duration whether or
// not the underlying work has finished; the work itself is never interrupted.
package background

import (
	"log/slog"
	"sync"
	"time"
)

// Manager tracks at most one in-flight task per name.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]*time.Timer
	logger *slog.Logger
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*time.Timer), logger: slog.Default()}
}

// Start runs fn in a goroutine unless a task with the same name is still
// booked. The booking expires when fn returns or after maxDuration, whichever
// comes first. Returns false if the name was already booked.
func (m *Manager) Start(name string, maxDuration time.Duration, fn func()) bool {
	m.mu.Lock()
	if _, running := m.tasks[name]; running {
		m.mu.Unlock()
		m.logger.Debug("background task already booked", "task", name)
		return false
	}
	m.tasks[name] = time.AfterFunc(maxDuration, func() {
		m.clear(name)
		m.logger.Warn("background task booking expired", "task", name, "after", maxDuration)
	})
	m.mu.Unlock()

	go func() {
		defer m.clear(name)
		fn()
	}()
	return true
}

func (m *Manager) clear(name string) {
	m.mu.Lock()
	if t, ok := m.tasks[name]; ok {
		t.Stop()
		delete(m.tasks, name)
	}
	m.mu.Unlock()
}

// Active reports how many task slots are currently booked.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
