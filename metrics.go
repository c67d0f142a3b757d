package restclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for requests, the response cache and decoding.
// A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheStores     *prometheus.CounterVec
	decodeFallbacks *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with the given registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restclient_requests_total",
				Help: "Total number of calls made through the transport",
			},
			[]string{"method", "status_code"},
		),
		cacheLookups: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restclient_cache_lookups_total",
				Help: "Response cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
		cacheStores: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restclient_cache_stores_total",
				Help: "Response cache writes by result (stored, refused, error)",
			},
			[]string{"result"},
		),
		decodeFallbacks: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restclient_decode_fallbacks_total",
				Help: "Bodies returned raw because they could not be decoded",
			},
			[]string{"class"},
		),
	}
}

func (m *Metrics) recordRequest(method string, statusCode int) {
	if m == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.requestsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) recordLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) recordStore(result string) {
	if m == nil {
		return
	}
	m.cacheStores.WithLabelValues(result).Inc()
}

func (m *Metrics) recordFallback(class string) {
	if m == nil {
		return
	}
	m.decodeFallbacks.WithLabelValues(class).Inc()
}
