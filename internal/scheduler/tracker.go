package scheduler

import (
	"sync"

	"github.com/tazhate/billbot/internal/domain"
)

// FireTracker remembers which (reminder, offset, period) notifications were
// delivered. The engine is its only writer.
type FireTracker interface {
	HasFired(key domain.FireKey) (bool, error)
	// MarkFired is idempotent.
	MarkFired(key domain.FireKey) error
	// Forget drops every record of a reminder.
	Forget(reminderID int64) error
	// Compact drops records of periods before the given one and returns how
	// many were removed.
	Compact(before domain.Period) (int, error)
}

// MemoryTracker is a process-local FireTracker. Its records are lost on
// restart, so a restart during a firing day can repeat that day's
// notifications once.
type MemoryTracker struct {
	mu    sync.Mutex
	fired map[domain.FireKey]struct{}
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{fired: make(map[domain.FireKey]struct{})}
}

func (t *MemoryTracker) HasFired(key domain.FireKey) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.fired[key]
	return ok, nil
}

func (t *MemoryTracker) MarkFired(key domain.FireKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired[key] = struct{}{}
	return nil
}

func (t *MemoryTracker) Forget(reminderID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.fired {
		if k.ReminderID == reminderID {
			delete(t.fired, k)
		}
	}
	return nil
}

func (t *MemoryTracker) Compact(before domain.Period) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.fired {
		if k.Period.Before(before) {
			delete(t.fired, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of records held.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fired)
}
