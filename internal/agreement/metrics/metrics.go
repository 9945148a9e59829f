package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for agreement acquisition and page expansion.
type Metrics struct {
	// Cache lookups by document kind and result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// Upstream render latency by document kind
	FetchLatency *prometheus.HistogramVec

	// Failed acquisitions by failure category
	FetchFailures *prometheus.CounterVec

	// Page image sets by completeness check outcome
	PageSetChecks *prometheus.CounterVec

	// Page images written and pages skipped after a rasterization error
	PagesGenerated prometheus.Counter
	PagesSkipped   prometheus.Counter

	// 1 while renders are refused because the upstream keeps failing
	RenderCircuitOpen prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_agreement_cache_lookups_total",
			Help: "Agreement cache lookups by document kind and result",
		}, []string{"kind", "result"}),

		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transferai_agreement_fetch_duration_seconds",
			Help:    "Duration of upstream agreement renders by document kind",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"kind"}),

		FetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_agreement_fetch_failures_total",
			Help: "Failed agreement acquisitions by failure category",
		}, []string{"kind", "category"}),

		PageSetChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_agreement_page_set_checks_total",
			Help: "Page image set completeness checks by outcome",
		}, []string{"result"}),

		PagesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_agreement_pages_generated_total",
			Help: "Page images rasterized and stored",
		}),

		PagesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_agreement_pages_skipped_total",
			Help: "Pages skipped after a rasterization or store error",
		}),

		RenderCircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transferai_agreement_render_circuit_open",
			Help: "1 while upstream renders are refused after repeated outages",
		}),
	}
}

func (m *Metrics) IncrementCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveFetchLatency(kind string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementFetchFailure(kind, category string) {
	if m != nil {
		m.FetchFailures.WithLabelValues(kind, category).Inc()
	}
}

func (m *Metrics) IncrementPageSetCheck(complete bool) {
	if m == nil {
		return
	}
	result := "incomplete"
	if complete {
		result = "complete"
	}
	m.PageSetChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) AddPagesGenerated(n int) {
	if m != nil {
		m.PagesGenerated.Add(float64(n))
	}
}

func (m *Metrics) IncrementPageSkipped() {
	if m != nil {
		m.PagesSkipped.Inc()
	}
}

func (m *Metrics) SetRenderCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.RenderCircuitOpen.Set(1)
		return
	}
	m.RenderCircuitOpen.Set(0)
}
