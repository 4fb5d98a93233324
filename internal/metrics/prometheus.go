// Package metrics exports worker and node activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/botflow/pkg/api"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "botflow"

// Observer is an api.Observer that records Prometheus metrics. All metrics
// are registered on the registry passed to NewObserver, so several observers
// can coexist in tests.
type Observer struct {
	api.NoopObserver

	workersRunning *prometheus.GaugeVec
	workerStarts   *prometheus.CounterVec
	workerStops    *prometheus.CounterVec
	updates        *prometheus.CounterVec
	nodes          *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver registers the metrics on reg under namespace.
func NewObserver(reg prometheus.Registerer, namespace string) *Observer {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Observer{
		workersRunning: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_running",
				Help:      "Number of live workers per bot (0 or 1)",
			},
			[]string{"bot_id"},
		),
		workerStarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_starts_total",
				Help:      "Total number of worker runs started",
			},
			[]string{"bot_id"},
		),
		workerStops: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_stops_total",
				Help:      "Total number of worker runs ended, by result",
			},
			[]string{"bot_id", "result"},
		),
		updates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Total number of inbound updates",
			},
			[]string{"bot_id", "kind"},
		),
		nodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_executions_total",
				Help:      "Total number of block executions, by status",
			},
			[]string{"bot_id", "kind", "status"},
		),
		nodeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Block execution time in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
	}
}

func (o *Observer) OnWorkerStart(ctx context.Context, botID, runID string) {
	o.workerStarts.WithLabelValues(botID).Inc()
	o.workersRunning.WithLabelValues(botID).Set(1)
}

func (o *Observer) OnWorkerStop(ctx context.Context, botID, runID string, err error) {
	result := "stopped"
	if err != nil {
		result = "failed"
	}
	o.workerStops.WithLabelValues(botID, result).Inc()
	o.workersRunning.WithLabelValues(botID).Set(0)
}

func (o *Observer) OnUpdate(ctx context.Context, botID string, u api.Update) {
	o.updates.WithLabelValues(botID, string(u.Kind)).Inc()
}

func (o *Observer) OnNodeCompleted(ctx context.Context, ev api.NodeEvent, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.nodes.WithLabelValues(ev.BotID, ev.Kind, status).Inc()
	o.nodeDuration.WithLabelValues(ev.Kind).Observe(d.Seconds())
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
