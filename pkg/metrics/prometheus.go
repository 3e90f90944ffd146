package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	resolutions     *prometheus.CounterVec
	poolBuilds      prometheus.Counter
	poolSize        prometheus.Gauge
	poolBuildTime   prometheus.Histogram
	falsifierChecks *prometheus.CounterVec
	auditAppends    *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	regimeState     *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		resolutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgov_resolutions_total",
				Help: "Constraint resolutions served, by cache outcome",
			},
			[]string{"cache"},
		),
		poolBuilds: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stratgov_pool_builds_total",
				Help: "Total pool builds completed",
			},
		),
		poolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratgov_pool_size",
				Help: "Symbol count of the most recent pool",
			},
		),
		poolBuildTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stratgov_pool_build_duration_seconds",
				Help:    "Duration of pool builds in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		falsifierChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgov_falsifier_checks_total",
				Help: "Falsifier evaluations, by outcome",
			},
			[]string{"outcome"},
		),
		auditAppends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgov_audit_appends_total",
				Help: "Audit log entries appended, by event type",
			},
			[]string{"event_type"},
		),
		alerts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgov_alerts_total",
				Help: "Alerts published, by severity",
			},
			[]string{"severity"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratgov_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		regimeState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stratgov_regime_state",
				Help: "Current regime, one-hot over states",
			},
			[]string{"state"},
		),
	}
}

// RecordResolution records a served resolution and its cache outcome.
func (r *Recorder) RecordResolution(_ string, cacheHit bool) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	r.resolutions.WithLabelValues(outcome).Inc()
}

// RecordPoolBuild records a completed pool build.
func (r *Recorder) RecordPoolBuild(size int, seconds float64) {
	r.poolBuilds.Inc()
	r.poolSize.Set(float64(size))
	r.poolBuildTime.Observe(seconds)
}

// RecordFalsifierCheck records one falsifier evaluation.
func (r *Recorder) RecordFalsifierCheck(_ string, triggered bool) {
	outcome := "pass"
	if triggered {
		outcome = "triggered"
	}
	r.falsifierChecks.WithLabelValues(outcome).Inc()
}

// RecordAuditAppend records an audit log append.
func (r *Recorder) RecordAuditAppend(eventType string) {
	r.auditAppends.WithLabelValues(eventType).Inc()
}

// RecordAlert records a published alert.
func (r *Recorder) RecordAlert(severity string) {
	r.alerts.WithLabelValues(severity).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRegime records the current regime as a one-hot gauge.
func (r *Recorder) RecordRegime(state string) {
	for _, s := range []string{"NORMAL", "TRANSITION", "STRESS"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.regimeState.WithLabelValues(s).Set(v)
	}
}
