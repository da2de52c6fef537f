package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"uptime/app/internal/models"
)

// Caller misuse errors
var (
	ErrAlreadyStarted    = errors.New("stats: publisher already started")
	ErrNotStarted        = errors.New("stats: publisher not started")
	ErrHookCalled        = errors.New("stats: lifecycle hook already called")
	ErrProcessNotStarted = errors.New("stats: process start was never recorded")
)

// GapPolicy decides how the time before a Start observed while the process was
// already running is attributed
type GapPolicy string

const (
	// GapAsUptime treats a missed shutdown as continued uptime
	GapAsUptime GapPolicy = "uptime"
	// GapAsDowntime attributes the unexplained gap to downtime
	GapAsDowntime GapPolicy = "downtime"
)

// ParseGapPolicy parses a policy name; the empty string selects GapAsUptime
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GapAsUptime:
		return GapAsUptime, nil
	case GapAsDowntime:
		return GapAsDowntime, nil
	}
	return "", fmt.Errorf("unknown gap policy %q (want %q or %q)", s, GapAsUptime, GapAsDowntime)
}

// Reconstruction is the result of replaying an event log up to a point in time
type Reconstruction struct {
	TotalUp   time.Duration
	TotalDown time.Duration
	Status    models.Status
	LastEvent *models.Event

	// Intervals holds the derived Up/Down spans in replay order. The final
	// span is Open; an open Down span is not counted in TotalDown.
	Intervals []models.Interval

	LastStart       time.Time
	LastStop        time.Time
	Starts          int
	Crashes         int
	ImplicitCrashes int
}

// Availability holds aggregate totals and the derived percentage
type Availability struct {
	TotalUp   time.Duration
	TotalDown time.Duration
	Pct       float64
}

// EventReader is the read side of the event store
type EventReader interface {
	ListEventsOrdered(ctx context.Context) ([]models.Event, error)
}

// EventAppender is the write side of the event store
type EventAppender interface {
	AppendEvent(ctx context.Context, kind models.EventKind, ts time.Time) (int64, error)
}

// SnapshotWriter persists snapshots
type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, snap models.Snapshot) (int64, error)
}

// LogSink receives operational log entries for persistence
type LogSink interface {
	InsertLog(ctx context.Context, level, category, message, details string) error
}
