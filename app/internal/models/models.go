package models

import "time"

// EventKind is the lifecycle transition recorded by an Event
type EventKind string

const (
	EventStart EventKind = "start"
	EventStop  EventKind = "stop"
	EventCrash EventKind = "crash"
)

// Valid reports whether k is one of the known event kinds
func (k EventKind) Valid() bool {
	switch k {
	case EventStart, EventStop, EventCrash:
		return true
	}
	return false
}

// Event is one append-only lifecycle record. ID is the authoritative ordering key;
// Time is informational and may be skewed.
type Event struct {
	ID   int64     `json:"id"`
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`
}

// State classifies an Interval
type State string

const (
	StateUp   State = "up"
	StateDown State = "down"
)

// Interval is a derived span of time. When Open is true End is the zero time.
type Interval struct {
	State State     `json:"state"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitzero"`
	Open  bool      `json:"open"`
}

// Status is the process state at the end of the event log
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Snapshot is an immutable point-in-time availability computation
type Snapshot struct {
	ID               int64     `json:"id"`
	ComputedAt       time.Time `json:"computed_at"`
	TotalUpSeconds   int64     `json:"total_up_seconds"`
	TotalDownSeconds int64     `json:"total_down_seconds"`
	AvailabilityPct  float64   `json:"availability_pct"`
	Status           Status    `json:"status"`
}

// AvailabilityResult is returned by the query service and never persisted
type AvailabilityResult struct {
	ComputedAt       time.Time  `json:"computed_at"`
	TotalUpSeconds   int64      `json:"total_up_seconds"`
	TotalDownSeconds int64      `json:"total_down_seconds"`
	AvailabilityPct  float64    `json:"availability_pct"`
	Status           Status     `json:"status"`
	LastEventTime    *time.Time `json:"last_event_time"`
	LastEventKind    EventKind  `json:"last_event_kind,omitempty"`

	// Session details
	CurrentSessionSeconds int64      `json:"current_session_seconds"`
	LastStart             *time.Time `json:"last_start,omitempty"`
	LastStop              *time.Time `json:"last_stop,omitempty"`
	Starts                int        `json:"starts"`
	Crashes               int        `json:"crashes"`
	ImplicitCrashes       int        `json:"implicit_crashes"`

	// NoData is set for an empty event log (reported as 100% by convention)
	NoData bool `json:"no_data"`
	// Stale is set when the event store could not be read and the last good
	// result was returned instead
	Stale bool `json:"stale"`
}

// Snapshot returns the persistable subset of the result
func (r AvailabilityResult) Snapshot() Snapshot {
	return Snapshot{
		ComputedAt:       r.ComputedAt,
		TotalUpSeconds:   r.TotalUpSeconds,
		TotalDownSeconds: r.TotalDownSeconds,
		AvailabilityPct:  r.AvailabilityPct,
		Status:           r.Status,
	}
}

// LogEntry represents a row of the system_logs table
type LogEntry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Details   string `json:"details"`
}

// LogStats summarises the system_logs table
type LogStats struct {
	TotalLogs  int `json:"total_logs"`
	ErrorCount int `json:"error_count"`
	WarnCount  int `json:"warn_count"`
	InfoCount  int `json:"info_count"`
	DebugCount int `json:"debug_count"`
}
