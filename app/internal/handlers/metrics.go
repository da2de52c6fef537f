package handlers

import (
	"log"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"uptime/app/internal/models"
	"uptime/app/internal/stats"
)

func gauge(name, help string, v float64, labels ...string) *dto.MetricFamily {
	return family(name, help, dto.MetricType_GAUGE, sample(v, labels...))
}

func counter(name, help string, v float64) *dto.MetricFamily {
	m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
	return family(name, help, dto.MetricType_COUNTER, m)
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

// sample builds a gauge-valued metric; labels are name/value pairs
func sample(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// availabilityFamilies renders the query result as metric families
func availabilityFamilies(res models.AvailabilityResult) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		gauge("uptime_availability_percent", "Availability percentage over the full event log.", res.AvailabilityPct),
		gauge("uptime_up_seconds", "Total reconstructed uptime in whole seconds.", float64(res.TotalUpSeconds)),
		gauge("uptime_down_seconds", "Total reconstructed downtime in whole seconds.", float64(res.TotalDownSeconds)),
		gauge("uptime_running", "1 if the last lifecycle event leaves the process running.", boolValue(res.Status == models.StatusRunning)),
		gauge("uptime_current_session_seconds", "Length of the current running session.", float64(res.CurrentSessionSeconds)),
		gauge("uptime_starts", "Start events in the log.", float64(res.Starts)),
		family("uptime_crashes", "Crash terminations in the log by how they were detected.", dto.MetricType_GAUGE,
			sample(float64(res.Crashes), "kind", "explicit"),
			sample(float64(res.ImplicitCrashes), "kind", "implicit"),
		),
		gauge("uptime_result_stale", "1 if the event store could not be read and a cached result was served.", boolValue(res.Stale)),
	}
}

// publisherFamilies renders publisher counters as metric families
func publisherFamilies(st stats.PublisherStats) []*dto.MetricFamily {
	mfs := []*dto.MetricFamily{
		gauge("uptime_publisher_running", "1 if the snapshot publisher loop is active.", boolValue(st.Running)),
		gauge("uptime_snapshot_interval_seconds", "Configured snapshot period.", st.Interval.Seconds()),
		counter("uptime_snapshots_published_total", "Snapshots persisted since start.", float64(st.Published)),
		counter("uptime_snapshots_skipped_total", "Ticks skipped because storage failed.", float64(st.Skipped)),
	}
	if !st.LastPublished.IsZero() {
		mfs = append(mfs, gauge("uptime_last_snapshot_timestamp_seconds", "Unix time of the last persisted snapshot.",
			float64(st.LastPublished.UnixNano())/1e9))
	}

	// Known operations are always exported so a zero is visible
	ops := []string{stats.OpAppendSnapshot, stats.OpListEvents}
	for op := range st.Failures {
		if op != stats.OpAppendSnapshot && op != stats.OpListEvents {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)
	failures := make([]*dto.Metric, 0, len(ops))
	for _, op := range ops {
		failures = append(failures, sample(float64(st.Failures[op].Count), "op", op))
	}
	mfs = append(mfs, family("uptime_store_consecutive_failures", "Consecutive storage failures by operation.",
		dto.MetricType_GAUGE, failures...))
	return mfs
}

// HandleMetrics exposes availability and publisher state in the Prometheus
// text format
func HandleMetrics(engine *stats.Engine, p *stats.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mfs := availabilityFamilies(engine.GetCurrentAvailability(r.Context()))
		if p != nil {
			mfs = append(mfs, publisherFamilies(p.Stats())...)
		}

		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				log.Printf("metrics: encode %s: %v", mf.GetName(), err)
				return
			}
		}
	}
}
