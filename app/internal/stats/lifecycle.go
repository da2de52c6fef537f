package stats

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// Lifecycle appends the Start and Stop/Crash events for this process.
// Each hook records at most once per Lifecycle.
type Lifecycle struct {
	events EventAppender
	logs   LogSink
	now    func() time.Time

	mu        sync.Mutex
	started   bool
	ended     bool
	startedAt time.Time
}

// NewLifecycle creates hooks writing to events. clock may be nil.
func NewLifecycle(events EventAppender, logs LogSink, clock func() time.Time) *Lifecycle {
	if clock == nil {
		clock = time.Now
	}
	return &Lifecycle{events: events, logs: logs, now: clock}
}

// OnProcessStart records the Start event
func (l *Lifecycle) OnProcessStart(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrHookCalled
	}
	ts := l.now()
	if _, err := l.events.AppendEvent(ctx, models.EventStart, ts); err != nil {
		return fmt.Errorf("record start: %w", err)
	}
	l.started = true
	l.startedAt = ts

	l.record(ctx, database.LogLevelInfo, "Process started", "")
	return nil
}

// OnProcessStop records a graceful Stop event
func (l *Lifecycle) OnProcessStop(ctx context.Context) error {
	return l.end(ctx, models.EventStop, "")
}

// OnProcessCrash records a Crash event for an abnormal termination path that
// still gets to run
func (l *Lifecycle) OnProcessCrash(ctx context.Context, reason string) error {
	return l.end(ctx, models.EventCrash, reason)
}

// StartedAt returns when the Start event was recorded, or the zero time
func (l *Lifecycle) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

func (l *Lifecycle) end(ctx context.Context, kind models.EventKind, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return ErrProcessNotStarted
	}
	if l.ended {
		return ErrHookCalled
	}
	ts := l.now()
	if _, err := l.events.AppendEvent(ctx, kind, ts); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	l.ended = true

	details := fmt.Sprintf("session=%s", ts.Sub(l.startedAt).Round(time.Second))
	if kind == models.EventCrash {
		if reason != "" {
			details += ", reason=" + reason
		}
		l.record(ctx, database.LogLevelError, "Process crashed", details)
	} else {
		l.record(ctx, database.LogLevelInfo, "Process stopped", details)
	}
	return nil
}

func (l *Lifecycle) record(ctx context.Context, level, message, details string) {
	if details != "" {
		log.Printf("%s (%s)", message, details)
	} else {
		log.Println(message)
	}
	if l.logs != nil {
		_ = l.logs.InsertLog(ctx, level, database.LogCategoryLifecycle, message, details)
	}
}
