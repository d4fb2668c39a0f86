package syncengine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives reconciliation telemetry.
type Recorder interface {
	CycleFinished(outcome Outcome, d time.Duration)
	CycleSkipped(reason string)
	Pushed()
	Pulled()
	ConflictOutstanding(bool)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) CycleFinished(Outcome, time.Duration) {}
func (NoopRecorder) CycleSkipped(string)                  {}
func (NoopRecorder) Pushed()                              {}
func (NoopRecorder) Pulled()                              {}
func (NoopRecorder) ConflictOutstanding(bool)             {}

// PrometheusRecorder exports reconciliation metrics.
type PrometheusRecorder struct {
	cycles   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration prometheus.Histogram
	pushes   prometheus.Counter
	pulls    prometheus.Counter
	conflict prometheus.Gauge
}

// NewPrometheusRecorder registers the sync collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "cycles_total",
			Help: "Reconciliation cycles by outcome.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "cycles_skipped_total",
			Help: "Ticks that did not start a cycle, by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "cycle_duration_seconds",
			Help:    "Reconciliation cycle duration.",
			Buckets: prometheus.DefBuckets,
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "pushes_total",
			Help: "Local snapshots uploaded to the remote.",
		}),
		pulls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "pulls_total",
			Help: "Remote snapshots adopted locally.",
		}),
		conflict: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wardroster", Subsystem: "sync", Name: "conflict_outstanding",
			Help: "1 while a conflict awaits arbitration.",
		}),
	}
	for _, c := range []prometheus.Collector{r.cycles, r.skipped, r.duration, r.pushes, r.pulls, r.conflict} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) CycleFinished(outcome Outcome, d time.Duration) {
	r.cycles.WithLabelValues(string(outcome)).Inc()
	r.duration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) CycleSkipped(reason string) { r.skipped.WithLabelValues(reason).Inc() }
func (r *PrometheusRecorder) Pushed()                    { r.pushes.Inc() }
func (r *PrometheusRecorder) Pulled()                    { r.pulls.Inc() }

func (r *PrometheusRecorder) ConflictOutstanding(outstanding bool) {
	if outstanding {
		r.conflict.Set(1)
		return
	}
	r.conflict.Set(0)
}
