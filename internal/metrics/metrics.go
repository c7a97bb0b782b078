package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codescope"

// Collector records task and HTTP metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	terminal      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// Ensure Collector implements events.EventHandler
var _ events.EventHandler = (*Collector)(nil)

// NewCollector creates a collector with Go runtime and process collectors registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task lifecycle events by type.",
		}, []string{"type"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks reaching a terminal state, by state and error kind.",
		}, []string{"state", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of fetch and analysis stage calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.events,
		c.terminal,
		c.stageDuration,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterQueueDepth exports the number of waiting work items as reported by depth.
func (c *Collector) RegisterQueueDepth(depth func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Work items waiting in the queue.",
	}, depth))
}

// HandleEvent implements events.EventHandler.
func (c *Collector) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	c.events.WithLabelValues(event.Type).Inc()

	switch {
	case event.Type == events.TypeStageFinished:
		outcome := event.Outcome
		if outcome == "" {
			outcome = "ok"
		}
		c.stageDuration.WithLabelValues(event.Stage, outcome).Observe(event.Duration.Seconds())

	case event.IsTerminal():
		outcome := event.Outcome
		if outcome == "" {
			outcome = "none"
		}
		c.terminal.WithLabelValues(event.State, outcome).Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latency labelled by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
