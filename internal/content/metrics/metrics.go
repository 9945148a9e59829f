package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the hot blob cache in front of the content store.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	BytesServed    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_content_cache_hits_total",
			Help: "Blob reads served from the in-process cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_content_cache_misses_total",
			Help: "Blob reads that fell through to the backing store",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_content_cache_evictions_total",
			Help: "Blobs evicted from the in-process cache",
		}),
		BytesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_content_bytes_served_total",
			Help: "Bytes of stored content returned to clients, by content type",
		}, []string{"content_type"}),
	}
}

func (m *Metrics) IncrementCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) IncrementCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) IncrementEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

func (m *Metrics) AddBytesServed(contentType string, n int) {
	if m == nil {
		return
	}
	m.BytesServed.WithLabelValues(contentType).Add(float64(n))
}
