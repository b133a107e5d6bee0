// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the agent execution pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapta",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// AgentExecutions counts pipeline runs by outcome ("success"/"error").
	AgentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapta",
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Agent executions by outcome.",
	}, []string{"outcome"})

	// DocumentsUploaded counts knowledge-base document uploads by outcome.
	DocumentsUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapta",
		Subsystem: "knowledge",
		Name:      "documents_uploaded_total",
		Help:      "Knowledge document uploads by outcome.",
	}, []string{"outcome"})

	// QuotaRejections counts policy-gate refusals by refusal code.
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapta",
		Subsystem: "executor",
		Name:      "quota_rejections_total",
		Help:      "Executions refused by the policy gate, by code.",
	}, []string{"code"})

	// ToolCalls counts model-requested tool invocations by tool and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapta",
		Subsystem: "executor",
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	// GenerationDuration observes model completion latency per model.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapta",
		Subsystem: "executor",
		Name:      "generation_duration_seconds",
		Help:      "Model generation latency by model.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status for labeling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request duration labeled by chi route pattern, so
// path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
