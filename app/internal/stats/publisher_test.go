package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"uptime/app/internal/models"
)

func newTestPublisher(store *memStore, interval time.Duration, opts PublisherOptions) (*Publisher, *fixedClock) {
	clock := &fixedClock{now: t0.Add(time.Minute)}
	e := NewEngine(store, EngineOptions{Clock: clock.Now})
	opts.Interval = interval
	if opts.Logs == nil {
		opts.Logs = store
	}
	return NewPublisher(e, store, opts), clock
}

// --------------- Start / Stop ---------------

func TestPublisher_StartStopErrors(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPublisher(store, time.Hour, PublisherOptions{})

	if err := p.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start: got %v, want ErrNotStarted", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Running() {
		t.Error("expected Running after Start")
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: got %v, want ErrAlreadyStarted", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Running() {
		t.Error("expected not Running after Stop")
	}
	if err := p.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop: got %v, want ErrNotStarted", err)
	}
}

func TestPublisher_Restart(t *testing.T) {
	store := &memStore{events: []models.Event{ev(1, models.EventStart, 0)}}
	p, _ := newTestPublisher(store, 10*time.Millisecond, PublisherOptions{})

	for i := 0; i < 2; i++ {
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		want := store.snapshotCount() + 1
		if !waitFor(func() bool { return store.snapshotCount() >= want }, 2*time.Second) {
			t.Fatalf("no snapshot after Start #%d", i+1)
		}
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
}

func TestPublisher_FirstTickAfterOneInterval(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPublisher(store, time.Hour, PublisherOptions{})

	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	if n := store.snapshotCount(); n != 0 {
		t.Errorf("expected no snapshot before the first interval, got %d", n)
	}
}

// --------------- Ticks ---------------

func TestPublisher_TicksAppendSnapshots(t *testing.T) {
	store := &memStore{events: []models.Event{ev(1, models.EventStart, 0)}}
	p, _ := newTestPublisher(store, 10*time.Millisecond, PublisherOptions{})

	p.Start(context.Background())
	ok := waitFor(func() bool { return store.snapshotCount() >= 3 }, 2*time.Second)
	p.Stop()

	if !ok {
		t.Fatalf("expected at least 3 snapshots, got %d", store.snapshotCount())
	}

	store.set(func(m *memStore) {
		for i, s := range m.snapshots {
			if s.TotalUpSeconds != 60 || s.Status != models.StatusRunning {
				t.Errorf("snapshot %d = %+v", i, s)
			}
			if s.ID != int64(i+1) {
				t.Errorf("snapshot %d has ID %d", i, s.ID)
			}
		}
	})
}

func TestPublisher_NoTicksAfterStop(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPublisher(store, 10*time.Millisecond, PublisherOptions{})

	p.Start(context.Background())
	waitFor(func() bool { return store.snapshotCount() >= 1 }, 2*time.Second)
	p.Stop()

	after := store.readCount()
	time.Sleep(50 * time.Millisecond)
	if got := store.readCount(); got != after {
		t.Errorf("store read %d times after Stop", got-after)
	}
}

// blockingWriter holds every AppendSnapshot until its context ends
type blockingWriter struct {
	entered chan struct{}
	mu      sync.Mutex
	calls   int
}

func (w *blockingWriter) AppendSnapshot(ctx context.Context, _ models.Snapshot) (int64, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return 0, ctx.Err()
}

func (w *blockingWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestPublisher_InFlightTick(t *testing.T) {
	store := &memStore{events: []models.Event{ev(1, models.EventStart, 0)}}
	clock := &fixedClock{now: t0.Add(time.Minute)}
	e := NewEngine(store, EngineOptions{Clock: clock.Now})
	w := &blockingWriter{entered: make(chan struct{}, 1)}
	p := NewPublisher(e, w, PublisherOptions{Interval: 10 * time.Millisecond, Timeout: time.Hour, Logs: store})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-w.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached the snapshot write")
	}

	// Queries are answered while the tick is blocked in the store
	queried := make(chan models.AvailabilityResult, 1)
	go func() { queried <- e.GetCurrentAvailability(context.Background()) }()
	select {
	case res := <-queried:
		if res.Stale || res.TotalUpSeconds != 60 {
			t.Errorf("query during tick = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("query blocked behind the in-flight tick")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a tick was in flight")
	}

	calls := w.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := w.callCount(); got != calls {
		t.Errorf("%d snapshot writes after Stop", got-calls)
	}

	// The abandoned tick is not counted as a storage failure
	st := p.Stats()
	if st.Skipped != 0 || st.Published != 0 {
		t.Errorf("published=%d skipped=%d, want 0/0", st.Published, st.Skipped)
	}
	if len(st.Failures) != 0 {
		t.Errorf("failures = %+v", st.Failures)
	}
	store.set(func(m *memStore) {
		for _, l := range m.logs {
			if strings.HasPrefix(l, "error|") {
				t.Errorf("unexpected error log %q", l)
			}
		}
	})
}

func TestPublisher_ContextCancelEndsLoop(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPublisher(store, 10*time.Millisecond, PublisherOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	waitFor(func() bool { return store.snapshotCount() >= 1 }, 2*time.Second)
	cancel()

	// Stop still succeeds and returns once the loop has exited
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop after cancel: %v", err)
	}
}

func TestPublisher_SurvivesStorageFailure(t *testing.T) {
	store := &memStore{events: []models.Event{ev(1, models.EventStart, 0)}, failRead: true}
	p, _ := newTestPublisher(store, 10*time.Millisecond, PublisherOptions{})

	p.Start(context.Background())
	defer p.Stop()

	if !waitFor(func() bool { return p.Stats().Skipped >= 2 }, 2*time.Second) {
		t.Fatal("expected skipped ticks while the store is unavailable")
	}
	if n := store.snapshotCount(); n != 0 {
		t.Errorf("expected no snapshots while failing, got %d", n)
	}
	if f := p.Stats().Failures[OpListEvents]; f.Count < 2 {
		t.Errorf("expected consecutive read failures, got %+v", f)
	}

	store.set(func(m *memStore) { m.failRead = false })
	if !waitFor(func() bool { return store.snapshotCount() >= 1 }, 2*time.Second) {
		t.Fatal("publisher did not recover after storage came back")
	}
	if _, ok := p.Stats().Failures[OpListEvents]; ok {
		t.Error("failure run should clear after a successful read")
	}
}

func TestPublisher_WriteFailureSkipsTick(t *testing.T) {
	store := &memStore{failWrite: true}
	p, _ := newTestPublisher(store, time.Hour, PublisherOptions{})

	if _, err := p.PublishNow(context.Background()); err == nil {
		t.Fatal("expected error when the snapshot write fails")
	}
	st := p.Stats()
	if st.Skipped != 1 || st.Published != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Failures[OpAppendSnapshot].Count != 1 {
		t.Errorf("expected append failure to be tracked: %+v", st.Failures)
	}
}

// --------------- PublishNow / SetInterval ---------------

func TestPublisher_PublishNow(t *testing.T) {
	store := &memStore{events: []models.Event{ev(1, models.EventStart, 0)}}
	p, clock := newTestPublisher(store, time.Hour, PublisherOptions{})

	snap, err := p.PublishNow(context.Background())
	if err != nil {
		t.Fatalf("PublishNow: %v", err)
	}
	if snap.ID != 1 || snap.TotalUpSeconds != 60 || !snap.ComputedAt.Equal(clock.Now()) {
		t.Errorf("snapshot = %+v", snap)
	}
	st := p.Stats()
	if st.Published != 1 || !st.LastPublished.Equal(clock.Now()) {
		t.Errorf("stats = %+v", st)
	}
	if st.Running {
		t.Error("PublishNow should not start the loop")
	}
}

func TestPublisher_SetInterval(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPublisher(store, time.Hour, PublisherOptions{})

	p.Start(context.Background())
	defer p.Stop()

	p.SetInterval(10 * time.Millisecond)
	if got := p.Stats().Interval; got != 10*time.Millisecond {
		t.Errorf("Interval = %v", got)
	}
	if !waitFor(func() bool { return store.snapshotCount() >= 1 }, 2*time.Second) {
		t.Fatal("new interval was not applied to the running loop")
	}
}

func TestPublisher_SetIntervalDefault(t *testing.T) {
	p, _ := newTestPublisher(&memStore{}, time.Second, PublisherOptions{})
	p.SetInterval(0)
	if got := p.Stats().Interval; got != DefaultSnapshotInterval {
		t.Errorf("Interval = %v, want %v", got, DefaultSnapshotInterval)
	}
}

// --------------- Hooks ---------------

func TestPublisher_OnPublish(t *testing.T) {
	store := &memStore{}
	var mu sync.Mutex
	var got []models.Snapshot
	var p *Publisher
	p, _ = newTestPublisher(store, time.Hour, PublisherOptions{
		OnPublish: func(s models.Snapshot) {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
			// Stats must be callable from the callback
			_ = p.Stats()
		},
	})

	if _, err := p.PublishNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("OnPublish received %+v", got)
	}
}

type pruningStore struct {
	*memStore
	keep []int
}

func (s *pruningStore) PruneLogs(_ context.Context, keep int) error {
	s.keep = append(s.keep, keep)
	return nil
}

func TestPublisher_PrunesLogs(t *testing.T) {
	store := &memStore{}
	ps := &pruningStore{memStore: store}
	p, _ := newTestPublisher(store, time.Hour, PublisherOptions{Logs: ps, LogKeep: 50})

	p.PublishNow(context.Background())
	if len(ps.keep) != 1 || ps.keep[0] != 50 {
		t.Errorf("PruneLogs calls = %v", ps.keep)
	}
	store.set(func(m *memStore) {
		if len(m.logs) != 1 || m.logs[0] != "info|snapshot|Snapshot published" {
			t.Errorf("logs = %v", m.logs)
		}
	})
}
