package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// NodeEvent identifies one block execution for observers.
type NodeEvent struct {
	BotID  string
	RunID  string
	ChatID int64
	NodeID string
	Kind   string
}

// Observer receives callbacks from workers and the interpreter for logging
// and metrics.
//
// Implementations should be fast and non-blocking; they run on the worker
// goroutine that serves the bot.
type Observer interface {
	// OnWorkerStart is called once a worker has its transport and blocks
	// ready, before the first poll.
	OnWorkerStart(ctx context.Context, botID, runID string)

	// OnWorkerStop is called when the worker loop returns. err is nil for a
	// requested stop.
	OnWorkerStop(ctx context.Context, botID, runID string, err error)

	// OnUpdate is called for every inbound update before dispatch.
	OnUpdate(ctx context.Context, botID string, u Update)

	// OnNodeStart is called before a block executes.
	OnNodeStart(ctx context.Context, ev NodeEvent)

	// OnNodeCompleted is called after a block returns, for both successes and
	// failures (err != nil).
	OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkerStart(ctx context.Context, botID, runID string)            {}
func (NoopObserver) OnWorkerStop(ctx context.Context, botID, runID string, err error) {}
func (NoopObserver) OnUpdate(ctx context.Context, botID string, u Update)              {}
func (NoopObserver) OnNodeStart(ctx context.Context, ev NodeEvent)                     {}
func (NoopObserver) OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkerStart(ctx context.Context, botID, runID string) {
	for _, o := range c.observers {
		o.OnWorkerStart(ctx, botID, runID)
	}
}

func (c *CompositeObserver) OnWorkerStop(ctx context.Context, botID, runID string, err error) {
	for _, o := range c.observers {
		o.OnWorkerStop(ctx, botID, runID, err)
	}
}

func (c *CompositeObserver) OnUpdate(ctx context.Context, botID string, u Update) {
	for _, o := range c.observers {
		o.OnUpdate(ctx, botID, u)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, ev NodeEvent) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, ev)
	}
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, ev, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs worker and node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkerStart(ctx context.Context, botID, runID string) {
	o.Logger.InfoContext(ctx, "worker_started",
		slog.String("bot_id", botID),
		slog.String("run_id", runID),
	)
}

func (o *LoggingObserver) OnWorkerStop(ctx context.Context, botID, runID string, err error) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "worker_failed",
			slog.String("bot_id", botID),
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.InfoContext(ctx, "worker_stopped",
		slog.String("bot_id", botID),
		slog.String("run_id", runID),
	)
}

func (o *LoggingObserver) OnUpdate(ctx context.Context, botID string, u Update) {
	o.Logger.DebugContext(ctx, "update_received",
		slog.String("bot_id", botID),
		slog.Int64("chat_id", u.ChatID),
		slog.String("kind", string(u.Kind)),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, ev NodeEvent) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("bot_id", ev.BotID),
		slog.Int64("chat_id", ev.ChatID),
		slog.String("node", ev.NodeID),
		slog.String("kind", ev.Kind),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_completed",
		slog.String("bot_id", ev.BotID),
		slog.Int64("chat_id", ev.ChatID),
		slog.String("node", ev.NodeID),
		slog.String("kind", ev.Kind),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workersStarted    atomic.Int64
	workersStopped    atomic.Int64
	workersFailed     atomic.Int64
	updatesReceived   atomic.Int64
	nodesCompleted    atomic.Int64
	nodesFailed       atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkersStarted int64
	WorkersStopped int64
	WorkersFailed  int64
	RunningWorkers int64

	UpdatesReceived int64
	NodesCompleted  int64
	NodesFailed     int64
	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnWorkerStart(ctx context.Context, botID, runID string) {
	m.workersStarted.Add(1)
}

func (m *BasicMetrics) OnWorkerStop(ctx context.Context, botID, runID string, err error) {
	if err != nil {
		m.workersFailed.Add(1)
		return
	}
	m.workersStopped.Add(1)
}

func (m *BasicMetrics) OnUpdate(ctx context.Context, botID string, u Update) {
	m.updatesReceived.Add(1)
}

func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, d time.Duration) {
	// Only successful nodes count towards the average duration.
	if err != nil {
		m.nodesFailed.Add(1)
		return
	}
	m.nodesCompleted.Add(1)
	m.totalNodeDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workersStarted.Load()
	stopped := m.workersStopped.Load()
	failed := m.workersFailed.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		WorkersStarted:  started,
		WorkersStopped:  stopped,
		WorkersFailed:   failed,
		RunningWorkers:  started - stopped - failed,
		UpdatesReceived: m.updatesReceived.Load(),
		NodesCompleted:  nodes,
		NodesFailed:     m.nodesFailed.Load(),
		AvgNodeDuration: avg,
	}
}
