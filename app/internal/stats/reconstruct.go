package stats

import (
	"time"

	"uptime/app/internal/models"
)

// Reconstruct replays events in insertion order and attributes the time between
// consecutive events to uptime or downtime.
//
// The delta before an event counts as uptime when the process was running before
// that event. Negative deltas (clock skew) are clamped to zero. A trailing Up
// session is extended to now; a trailing Down session is left uncounted until a
// later Start closes it. Reconstruct never fails: unknown event kinds leave the
// running state unchanged.
func Reconstruct(events []models.Event, now time.Time, policy GapPolicy) Reconstruction {
	r := Reconstruction{Status: models.StatusStopped}
	if len(events) == 0 {
		return r
	}

	running := false
	cursor := events[0].Time

	for i, ev := range events {
		if i > 0 {
			delta := ev.Time.Sub(cursor)
			if delta < 0 {
				delta = 0
			}

			up := running
			if running && ev.Kind == models.EventStart && policy == GapAsDowntime {
				up = false
			}
			if up {
				r.TotalUp += delta
				r.addInterval(models.StateUp, cursor, delta)
			} else {
				r.TotalDown += delta
				r.addInterval(models.StateDown, cursor, delta)
			}
			cursor = ev.Time
		}

		switch ev.Kind {
		case models.EventStart:
			if running {
				r.ImplicitCrashes++
			}
			running = true
			r.Starts++
			r.LastStart = ev.Time
		case models.EventStop:
			running = false
			r.LastStop = ev.Time
		case models.EventCrash:
			running = false
			r.Crashes++
			r.LastStop = ev.Time
		}
	}

	last := events[len(events)-1]
	r.LastEvent = &last

	if running {
		r.Status = models.StatusRunning
		if open := now.Sub(cursor); open > 0 {
			r.TotalUp += open
		}
		r.openInterval(models.StateUp, cursor)
	} else {
		r.openInterval(models.StateDown, cursor)
	}

	return r
}

// addInterval appends a closed span of length d starting at start, merging it
// into the previous span when the state continues without a break
func (r *Reconstruction) addInterval(state models.State, start time.Time, d time.Duration) {
	if d <= 0 {
		return
	}
	end := start.Add(d)
	if n := len(r.Intervals); n > 0 {
		prev := &r.Intervals[n-1]
		if prev.State == state && prev.End.Equal(start) {
			prev.End = end
			return
		}
	}
	r.Intervals = append(r.Intervals, models.Interval{State: state, Start: start, End: end})
}

// openInterval appends the trailing open span
func (r *Reconstruction) openInterval(state models.State, start time.Time) {
	if n := len(r.Intervals); n > 0 {
		prev := &r.Intervals[n-1]
		if prev.State == state && prev.End.Equal(start) {
			prev.End = time.Time{}
			prev.Open = true
			return
		}
	}
	r.Intervals = append(r.Intervals, models.Interval{State: state, Start: start, Open: true})
}
