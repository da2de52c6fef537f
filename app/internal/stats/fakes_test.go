package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"uptime/app/internal/models"
)

var errUnavailable = errors.New("database is locked")

// memStore is an in-memory event/snapshot/log store with failure injection
type memStore struct {
	mu        sync.Mutex
	events    []models.Event
	snapshots []models.Snapshot
	logs      []string
	failRead  bool
	failWrite bool
	reads     int
}

func (m *memStore) AppendEvent(_ context.Context, kind models.EventKind, ts time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, errUnavailable
	}
	id := int64(len(m.events) + 1)
	m.events = append(m.events, models.Event{ID: id, Kind: kind, Time: ts})
	return id, nil
}

func (m *memStore) ListEventsOrdered(ctx context.Context) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failRead {
		return nil, errUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memStore) AppendSnapshot(ctx context.Context, snap models.Snapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, errUnavailable
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	snap.ID = int64(len(m.snapshots) + 1)
	m.snapshots = append(m.snapshots, snap)
	return snap.ID, nil
}

func (m *memStore) InsertLog(_ context.Context, level, category, message, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, level+"|"+category+"|"+message)
	return nil
}

func (m *memStore) set(fn func(m *memStore)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *memStore) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *memStore) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// fixedClock returns a settable clock
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
