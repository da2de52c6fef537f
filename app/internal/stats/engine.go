package stats

import (
	"context"
	"log"
	"sync"
	"time"

	"uptime/app/internal/models"
)

// DefaultStoreTimeout bounds a single event store read
const DefaultStoreTimeout = 5 * time.Second

// EngineOptions configures an Engine
type EngineOptions struct {
	GapPolicy GapPolicy
	// Timeout bounds each event store read; zero selects DefaultStoreTimeout
	Timeout time.Duration
	// Clock returns "now"; nil selects time.Now
	Clock func() time.Time
}

// Engine reads the event log and computes availability. It owns no background
// work and is safe for concurrent use.
type Engine struct {
	events  EventReader
	policy  GapPolicy
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	lastGood *models.AvailabilityResult
}

// NewEngine creates an engine reading from events
func NewEngine(events EventReader, opts EngineOptions) *Engine {
	if opts.GapPolicy == "" {
		opts.GapPolicy = GapAsUptime
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		events:  events,
		policy:  opts.GapPolicy,
		timeout: opts.Timeout,
		now:     opts.Clock,
	}
}

// GapPolicy returns the policy this engine reconstructs with
func (e *Engine) GapPolicy() GapPolicy {
	return e.policy
}

// Evaluate reads the full event log and computes availability as of now.
// Unlike GetCurrentAvailability it reports storage failures to the caller.
func (e *Engine) Evaluate(ctx context.Context) (models.AvailabilityResult, Reconstruction, error) {
	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	events, err := e.events.ListEventsOrdered(rctx)
	if err != nil {
		return models.AvailabilityResult{}, Reconstruction{}, err
	}

	now := e.now()
	rec := Reconstruct(events, now, e.policy)
	res := buildResult(rec, now, len(events) == 0)

	e.mu.Lock()
	e.lastGood = &res
	e.mu.Unlock()

	return res, rec, nil
}

// GetCurrentAvailability returns the current availability figures. It never
// fails: if the event store cannot be read the last good result is returned
// with Stale set, or the empty-log result when nothing was ever computed.
func (e *Engine) GetCurrentAvailability(ctx context.Context) models.AvailabilityResult {
	res, _, err := e.Evaluate(ctx)
	if err == nil {
		return res
	}

	log.Printf("Availability query fell back to cached result: %v", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastGood != nil {
		stale := *e.lastGood
		stale.Stale = true
		return stale
	}
	empty := buildResult(Reconstruction{Status: models.StatusStopped}, e.now(), true)
	empty.Stale = true
	return empty
}

// Intervals returns the derived Up/Down spans and the instant they were
// computed at
func (e *Engine) Intervals(ctx context.Context) ([]models.Interval, time.Time, error) {
	res, rec, err := e.Evaluate(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	intervals := rec.Intervals
	if intervals == nil {
		intervals = []models.Interval{}
	}
	return intervals, res.ComputedAt, nil
}

func buildResult(rec Reconstruction, now time.Time, noData bool) models.AvailabilityResult {
	a := Compute(rec.TotalUp, rec.TotalDown)
	res := models.AvailabilityResult{
		ComputedAt:       now,
		TotalUpSeconds:   wholeSeconds(a.TotalUp),
		TotalDownSeconds: wholeSeconds(a.TotalDown),
		AvailabilityPct:  a.Pct,
		Status:           rec.Status,
		Starts:           rec.Starts,
		Crashes:          rec.Crashes,
		ImplicitCrashes:  rec.ImplicitCrashes,
		NoData:           noData,
	}

	if rec.LastEvent != nil {
		t := rec.LastEvent.Time
		res.LastEventTime = &t
		res.LastEventKind = rec.LastEvent.Kind
	}
	if !rec.LastStart.IsZero() {
		t := rec.LastStart
		res.LastStart = &t
		if rec.Status == models.StatusRunning {
			res.CurrentSessionSeconds = wholeSeconds(now.Sub(rec.LastStart))
		}
	}
	if !rec.LastStop.IsZero() {
		t := rec.LastStop
		res.LastStop = &t
	}
	return res
}

func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
