package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "registrydash"

// PrometheusRecorder implements FetchRecorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	fetchDuration *prom.HistogramVec
	fetchOutcomes *prom.CounterVec
	pollIters     *prom.CounterVec
	apiAvailable  *prom.GaugeVec
	retries       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the fetch metrics on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.fetchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of producer calls by resource and outcome",
			Buckets:   prom.DefBuckets,
		}, []string{"resource", "outcome"})
		pr.fetchOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_outcomes_total",
			Help:      "Settled fetch runs by resource and outcome",
		}, []string{"resource", "outcome"})
		pr.pollIters = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "poll_iterations_total",
			Help:      "Polling iterations started per resource",
		}, []string{"resource"})
		pr.apiAvailable = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "api_available",
			Help:      "1 when the API host path is resolved, 0 otherwise",
		}, []string{"api"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Transport-level retries of idempotent backend requests",
		}, []string{"operation"})
		reg.MustRegister(pr.fetchDuration, pr.fetchOutcomes, pr.pollIters, pr.apiAvailable, pr.retries)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveFetchDuration(resource string, outcome OutcomeLabel, d time.Duration) {
	if p == nil || p.fetchDuration == nil {
		return
	}
	p.fetchDuration.WithLabelValues(resource, string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFetchOutcome(resource string, outcome OutcomeLabel) {
	if p == nil || p.fetchOutcomes == nil {
		return
	}
	p.fetchOutcomes.WithLabelValues(resource, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPollIteration(resource string) {
	if p == nil || p.pollIters == nil {
		return
	}
	p.pollIters.WithLabelValues(resource).Inc()
}

func (p *PrometheusRecorder) SetAPIAvailable(api string, available bool) {
	if p == nil || p.apiAvailable == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	p.apiAvailable.WithLabelValues(api).Set(v)
}

func (p *PrometheusRecorder) IncRetry(operation string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(operation).Inc()
}
