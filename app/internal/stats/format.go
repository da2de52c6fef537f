package stats

import (
	"fmt"
	"strings"
	"time"

	"uptime/app/internal/models"
)

// FormatStatusLine renders a one-line operational summary of a result
func FormatStatusLine(res models.AvailabilityResult) string {
	line := fmt.Sprintf("uptime: %s up=%s down=%s availability=%.3f%%",
		strings.ToUpper(string(res.Status)),
		time.Duration(res.TotalUpSeconds)*time.Second,
		time.Duration(res.TotalDownSeconds)*time.Second,
		res.AvailabilityPct)
	if res.NoData {
		line += " (no data)"
	}
	if res.Stale {
		line += " (stale)"
	}
	return line
}
