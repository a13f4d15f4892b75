package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the daemon's Prometheus collectors.
type Recorder struct {
	registry *prom.Registry

	sessionOutcomes  *prom.CounterVec
	stageOutcomes    *prom.CounterVec
	sessionDuration  prom.Histogram
	publishOutcomes  *prom.CounterVec
	publishRetries   *prom.CounterVec
	publishExhausted *prom.CounterVec
	queueDepth       *prom.GaugeVec
	peripheryErrors  *prom.CounterVec
}

// NewRecorder constructs and registers the daemon collectors on a fresh
// registry.
func NewRecorder() *Recorder {
	reg := prom.NewRegistry()
	r := &Recorder{registry: reg}

	r.sessionOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "session_outcomes_total",
		Help:      "Sessions by final outcome",
	}, []string{"outcome"})
	r.stageOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "stage_outcomes_total",
		Help:      "Production stage results by outcome",
	}, []string{"stage", "outcome"})
	r.sessionDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "benchd",
		Name:      "session_duration_seconds",
		Help:      "Wall-clock duration of finalized sessions",
		Buckets:   prom.ExponentialBuckets(30, 2, 12),
	})
	r.publishOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "publish_outcomes_total",
		Help:      "Publication attempts by target and result",
	}, []string{"target", "result"})
	r.publishRetries = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "publish_retries_total",
		Help:      "Publication retries scheduled per target",
	}, []string{"target"})
	r.publishExhausted = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "publish_retry_exhausted_total",
		Help:      "Publications parked after exhausting retries",
	}, []string{"target"})
	r.queueDepth = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "benchd",
		Name:      "publish_queue_depth",
		Help:      "Publication queue occupancy by status",
	}, []string{"status"})
	r.peripheryErrors = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "benchd",
		Name:      "periphery_errors_total",
		Help:      "Peripheral gateway failures by device",
	}, []string{"device"})

	reg.MustRegister(r.sessionOutcomes, r.stageOutcomes, r.sessionDuration,
		r.publishOutcomes, r.publishRetries, r.publishExhausted, r.queueDepth, r.peripheryErrors)
	return r
}

// Handler returns the HTTP handler serving the registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) IncSessionOutcome(outcome string) {
	if r == nil || r.sessionOutcomes == nil {
		return
	}
	r.sessionOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) IncStageOutcome(stage, outcome string) {
	if r == nil || r.stageOutcomes == nil {
		return
	}
	r.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) ObserveSessionDuration(d time.Duration) {
	if r == nil || r.sessionDuration == nil {
		return
	}
	r.sessionDuration.Observe(d.Seconds())
}

func (r *Recorder) IncPublishOutcome(target, result string) {
	if r == nil || r.publishOutcomes == nil {
		return
	}
	r.publishOutcomes.WithLabelValues(target, result).Inc()
}

func (r *Recorder) IncPublishRetry(target string) {
	if r == nil || r.publishRetries == nil {
		return
	}
	r.publishRetries.WithLabelValues(target).Inc()
}

func (r *Recorder) IncPublishExhausted(target string) {
	if r == nil || r.publishExhausted == nil {
		return
	}
	r.publishExhausted.WithLabelValues(target).Inc()
}

func (r *Recorder) SetQueueDepth(status string, n int) {
	if r == nil || r.queueDepth == nil {
		return
	}
	r.queueDepth.WithLabelValues(status).Set(float64(n))
}

func (r *Recorder) IncPeripheryError(device string) {
	if r == nil || r.peripheryErrors == nil {
		return
	}
	r.peripheryErrors.WithLabelValues(device).Inc()
}
