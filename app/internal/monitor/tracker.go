package monitor

import (
	"sync"
	"time"
)

// Failure describes an ongoing run of consecutive failures for one operation
type Failure struct {
	Count     int       `json:"count"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error"`
}

// FailureTracker keeps track of consecutive failures per storage operation.
// It is safe for concurrent use.
type FailureTracker struct {
	mu     sync.Mutex
	counts map[string]Failure
	now    func() time.Time
}

// NewFailureTracker creates a new tracker.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{
		counts: make(map[string]Failure),
		now:    time.Now,
	}
}

// Update records the outcome of an operation. A nil err clears the run.
// It returns the updated consecutive failure count.
func (t *FailureTracker) Update(op string, err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.counts, op)
		return 0
	}

	f, ok := t.counts[op]
	if !ok {
		f.Since = t.now()
	}
	f.Count++
	f.LastError = err.Error()
	t.counts[op] = f
	return f.Count
}

// Get returns the current failure run for op, if any.
func (t *FailureTracker) Get(op string) (Failure, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.counts[op]
	return f, ok
}

// Snapshot returns a copy of every ongoing failure run keyed by operation.
func (t *FailureTracker) Snapshot() map[string]Failure {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Failure, len(t.counts))
	for op, f := range t.counts {
		out[op] = f
	}
	return out
}

// Reset clears the failure run for an operation.
func (t *FailureTracker) Reset(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, op)
}
