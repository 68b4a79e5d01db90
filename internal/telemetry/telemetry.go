// Package telemetry exposes Prometheus metrics for the enrichment
// pipeline. All methods are nil-receiver safe so callers can run with
// telemetry disabled.
package telemetry

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	enrichments   *prometheus.CounterVec
	llmSpend      prometheus.Counter
	searches      prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	rateLimited   prometheus.Counter
	batchContacts prometheus.Counter
	logger        *log.Logger
	periodicLogs  bool
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer, periodicLogs bool) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enrichments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_requests_total",
			Help: "Enrichment results by provenance source.",
		}, []string{"source"}),
		llmSpend: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_llm_spend_dollars_total",
			Help: "Cumulative completion-API spend in USD.",
		}),
		searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_web_searches_total",
			Help: "Web searches performed for enrichment grounding.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_cache_hits_total",
			Help: "Enrichment cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_cache_misses_total",
			Help: "Enrichment cache misses.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_rate_limited_total",
			Help: "Enrichment calls degraded to fallback by the rate limiter.",
		}),
		batchContacts: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrichment_batch_contacts_total",
			Help: "Contacts processed through batch enrichment.",
		}),
		logger:       log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		periodicLogs: periodicLogs,
	}
}

// RecordEnrichment counts one produced record and its spend.
func (m *Metrics) RecordEnrichment(source string, cost float64) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(source).Inc()
	if cost > 0 {
		m.llmSpend.Add(cost)
	}
	if m.periodicLogs {
		m.logger.Printf("enrichment: source=%s cost=$%.4f", source, cost)
	}
}

// RecordSearch counts one web search.
func (m *Metrics) RecordSearch() {
	if m == nil {
		return
	}
	m.searches.Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordRateLimited counts a rate-limit degradation.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RecordBatchContacts counts contacts entering batch processing.
func (m *Metrics) RecordBatchContacts(n int) {
	if m == nil {
		return
	}
	m.batchContacts.Add(float64(n))
}
