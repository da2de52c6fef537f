package stats

import "time"

// Compute derives the availability percentage from aggregate totals.
// An empty total is reported as 100% (no observed downtime).
func Compute(totalUp, totalDown time.Duration) Availability {
	a := Availability{TotalUp: totalUp, TotalDown: totalDown, Pct: 100.0}
	if total := totalUp + totalDown; total > 0 {
		a.Pct = float64(totalUp) / float64(total) * 100.0
	}
	return a
}
