package pipeline

import "sync"

// ProgressTracker keeps the latest progress event for readers on other
// goroutines, such as the HTTP status endpoint.
type ProgressTracker struct {
	mu   sync.RWMutex
	last Progress
}

// Update records p. Pass it to Runner.OnProgress, or call it from a
// ProgressFunc that does more.
func (t *ProgressTracker) Update(p Progress) {
	t.mu.Lock()
	t.last = p
	t.mu.Unlock()
}

// Snapshot returns the most recent event.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}
