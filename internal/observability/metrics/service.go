// Package metrics exposes Prometheus instrumentation for the retrieval and
// answer paths.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okutan/corpusqa/internal/core/domain"
)

type ServiceMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal           *prometheus.CounterVec
	searchResults         *prometheus.HistogramVec
	searchDuration        *prometheus.HistogramVec
	typoRescueTotal       *prometheus.CounterVec
	lemmaSeedTotal        *prometheus.CounterVec
	expansionTimeoutTotal *prometheus.CounterVec
	strategyFailureTotal  *prometheus.CounterVec

	answerTotal    *prometheus.CounterVec
	verdictTotal   *prometheus.CounterVec
	answerDuration *prometheus.HistogramVec

	cacheLookupTotal *prometheus.CounterVec
}

func NewServiceMetrics(service string) *ServiceMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "corpusqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed searches by fusion mode.",
		},
		[]string{"service", "fusion_mode"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "fused_results",
			Help:      "Distribution of fused result counts per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	typoRescueTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "typo_rescue_total",
			Help:      "Total searches where the corrected-query pass ran.",
		},
		[]string{"service"},
	)
	lemmaSeedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "lemma_seed_total",
			Help:      "Total searches that fell back to lemma-seeded lookup.",
		},
		[]string{"service"},
	)
	expansionTimeoutTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "expansion_timeout_total",
			Help:      "Total searches where query expansion missed its deadline.",
		},
		[]string{"service"},
	)
	strategyFailureTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "search",
			Name:      "strategy_failures_total",
			Help:      "Total failed strategy executions by strategy name.",
		},
		[]string{"service", "strategy"},
	)
	answerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total completed answers by track.",
		},
		[]string{"service", "track"},
	)
	verdictTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "answer",
			Name:      "verdicts_total",
			Help:      "Total judge verdicts by decision, including forced accepts.",
		},
		[]string{"service", "decision"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusqa",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "Answer orchestration duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"service"},
	)
	cacheLookupTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusqa",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total cache lookups by tier and outcome.",
		},
		[]string{"service", "tier", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchResults,
		searchDuration,
		typoRescueTotal,
		lemmaSeedTotal,
		expansionTimeoutTotal,
		strategyFailureTotal,
		answerTotal,
		verdictTotal,
		answerDuration,
		cacheLookupTotal,
	)

	return &ServiceMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		searchTotal:           searchTotal,
		searchResults:         searchResults,
		searchDuration:        searchDuration,
		typoRescueTotal:       typoRescueTotal,
		lemmaSeedTotal:        lemmaSeedTotal,
		expansionTimeoutTotal: expansionTimeoutTotal,
		strategyFailureTotal:  strategyFailureTotal,
		answerTotal:           answerTotal,
		verdictTotal:          verdictTotal,
		answerDuration:        answerDuration,
		cacheLookupTotal:      cacheLookupTotal,
	}
}

func (m *ServiceMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServiceMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordSearch folds one search's diagnostics into the counters.
func (m *ServiceMetrics) RecordSearch(service string, result *domain.SearchResult, duration time.Duration) {
	if result == nil {
		return
	}
	diag := result.Diagnostics
	m.searchTotal.WithLabelValues(service, string(diag.FusionMode)).Inc()
	m.searchResults.WithLabelValues(service).Observe(float64(len(result.Results)))
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())

	if diag.TypoRescueApplied {
		m.typoRescueTotal.WithLabelValues(service).Inc()
	}
	if diag.LemmaSeedApplied {
		m.lemmaSeedTotal.WithLabelValues(service).Inc()
	}
	if diag.ExpansionTimedOut {
		m.expansionTimeoutTotal.WithLabelValues(service).Inc()
	}
	for _, strategy := range diag.FailedStrategies {
		m.strategyFailureTotal.WithLabelValues(service, strategy).Inc()
	}
}

// RecordAnswer folds one answer outcome into the counters. Forced accepts
// count under the "forced_accept" decision.
func (m *ServiceMetrics) RecordAnswer(service string, result *domain.AnswerResult, duration time.Duration) {
	if result == nil {
		return
	}
	m.answerTotal.WithLabelValues(service, string(result.Track)).Inc()
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())

	switch {
	case result.ForcedAccept:
		m.verdictTotal.WithLabelValues(service, "forced_accept").Inc()
	case result.Declined:
		m.verdictTotal.WithLabelValues(service, string(domain.JudgeReject)).Inc()
	case result.Verdict != nil:
		m.verdictTotal.WithLabelValues(service, string(result.Verdict.Decision)).Inc()
	}
}

// RecordCacheLookup counts one tier lookup; outcome is "hit" or "miss".
func (m *ServiceMetrics) RecordCacheLookup(service, tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupTotal.WithLabelValues(service, tier, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
