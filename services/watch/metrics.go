package watch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watch_runs_total",
		Help: "Finished task runs by trigger and result.",
	}, []string{"trigger", "result"})
	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "watch_run_duration_seconds",
		Help:    "Time spent capturing and analyzing a page.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"trigger"})
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration)
}

func resultLabel(o *Outcome) string {
	switch {
	case o.Failed:
		return "failed"
	case o.Matched == nil:
		return "degraded"
	case *o.Matched:
		return "matched"
	default:
		return "not_matched"
	}
}
