package stats

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/monitor"
)

// DefaultSnapshotInterval is the publisher period when none is configured
const DefaultSnapshotInterval = 60 * time.Second

// Storage operations tracked for consecutive failures
const (
	OpListEvents     = "list_events"
	OpAppendSnapshot = "append_snapshot"
)

// PublisherOptions configures a Publisher
type PublisherOptions struct {
	Interval time.Duration
	// Timeout bounds the snapshot write; zero selects DefaultStoreTimeout
	Timeout time.Duration
	// Logs, when set, receives one entry per tick
	Logs LogSink
	// LogKeep prunes Logs to this many rows after each tick when Logs also
	// implements PruneLogs; zero disables pruning
	LogKeep int
	// OnPublish is called after each snapshot is persisted
	OnPublish func(models.Snapshot)
}

// PublisherStats reports publisher activity since construction
type PublisherStats struct {
	Running       bool                       `json:"running"`
	Interval      time.Duration              `json:"interval"`
	Published     int64                      `json:"published"`
	Skipped       int64                      `json:"skipped"`
	LastPublished time.Time                  `json:"last_published"`
	Failures      map[string]monitor.Failure `json:"failures"`
}

type logPruner interface {
	PruneLogs(ctx context.Context, keepCount int) error
}

// Publisher periodically computes availability and appends a snapshot. It is
// the only writer of snapshots.
type Publisher struct {
	engine   *Engine
	sink     SnapshotWriter
	opts     PublisherOptions
	failures *monitor.FailureTracker

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan time.Duration

	// tickMu serialises ticks from the loop and PublishNow
	tickMu        sync.Mutex
	published     int64
	skipped       int64
	lastPublished time.Time
}

// NewPublisher creates a stopped publisher
func NewPublisher(engine *Engine, sink SnapshotWriter, opts PublisherOptions) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSnapshotInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStoreTimeout
	}
	return &Publisher{
		engine:   engine,
		sink:     sink,
		opts:     opts,
		failures: monitor.NewFailureTracker(),
		interval: opts.Interval,
		reset:    make(chan time.Duration, 1),
	}
}

// Start begins scheduling ticks. The first tick fires one interval after Start.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	select {
	case <-p.reset:
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.interval, p.done)

	log.Printf("Snapshot publisher started with %v interval", p.interval)
	return nil
}

// Stop cancels any pending tick and returns once no tick is in flight.
// An in-flight tick sees its context cancelled and is abandoned.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	cancel()
	<-done
	log.Println("Snapshot publisher stopped")
	return nil
}

// Running reports whether the publisher loop is active
func (p *Publisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// SetInterval changes the tick period. A running loop picks it up immediately.
func (p *Publisher) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultSnapshotInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if d == p.interval {
		return
	}
	p.interval = d
	if p.cancel == nil {
		return
	}
	// Replace any reset the loop has not consumed yet
	select {
	case <-p.reset:
	default:
	}
	p.reset <- d
	log.Printf("Snapshot publisher interval changed to %v", d)
}

// PublishNow runs one tick synchronously and returns the persisted snapshot
func (p *Publisher) PublishNow(ctx context.Context) (*models.Snapshot, error) {
	return p.tick(ctx)
}

// Stats returns a copy of the publisher counters
func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	running, interval := p.cancel != nil, p.interval
	p.mu.Unlock()

	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return PublisherStats{
		Running:       running,
		Interval:      interval,
		Published:     p.published,
		Skipped:       p.skipped,
		LastPublished: p.lastPublished,
		Failures:      p.failures.Snapshot(),
	}
}

func (p *Publisher) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.reset:
			ticker.Reset(d)
		case <-ticker.C:
			// Errors are logged inside tick; the loop keeps its cadence
			_, _ = p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) (*models.Snapshot, error) {
	snap, err := p.publish(ctx)
	if err != nil {
		return nil, err
	}
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(*snap)
	}
	return snap, nil
}

func (p *Publisher) publish(ctx context.Context) (*models.Snapshot, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	res, _, err := p.engine.Evaluate(ctx)
	// A tick abandoned by Stop is not a storage failure
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("read events: %w", ctx.Err())
	}
	if n := p.failures.Update(OpListEvents, err); err != nil {
		p.skipped++
		p.record(ctx, database.LogLevelError, database.LogCategoryStorage,
			"Snapshot skipped: reading events failed", fmt.Sprintf("consecutive=%d, error=%v", n, err))
		return nil, fmt.Errorf("read events: %w", err)
	}

	snap := res.Snapshot()
	wctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	id, err := p.sink.AppendSnapshot(wctx, snap)
	cancel()
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("append snapshot: %w", ctx.Err())
	}
	if n := p.failures.Update(OpAppendSnapshot, err); err != nil {
		p.skipped++
		p.record(ctx, database.LogLevelError, database.LogCategoryStorage,
			"Snapshot skipped: writing snapshot failed", fmt.Sprintf("consecutive=%d, error=%v", n, err))
		return nil, fmt.Errorf("append snapshot: %w", err)
	}
	snap.ID = id
	p.published++
	p.lastPublished = snap.ComputedAt

	p.record(ctx, database.LogLevelInfo, database.LogCategorySnapshot, "Snapshot published", FormatStatusLine(res))
	if pr, ok := p.opts.Logs.(logPruner); ok && p.opts.LogKeep > 0 {
		_ = pr.PruneLogs(ctx, p.opts.LogKeep)
	}
	return &snap, nil
}

// record writes one log line and, best effort, a system_logs row
func (p *Publisher) record(ctx context.Context, level, category, message, details string) {
	if level == database.LogLevelInfo {
		log.Println(details)
	} else {
		log.Printf("%s (%s)", message, details)
	}
	if p.opts.Logs != nil {
		_ = p.opts.Logs.InsertLog(ctx, level, category, message, details)
	}
}
