package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// testObserver is a simple Observer implementation used to verify fan-out behavior.
type testObserver struct {
	mu sync.Mutex

	starts  int
	stops   int
	updates int

	nodeStarts    int
	nodeCompletes int

	lastStopErr      error
	lastUpdate       Update
	lastNodeStart    NodeEvent
	lastNodeComplete struct {
		Event    NodeEvent
		Err      error
		Duration time.Duration
	}
}

func (o *testObserver) OnWorkerStart(ctx context.Context, botID, runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *testObserver) OnWorkerStop(ctx context.Context, botID, runID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops++
	o.lastStopErr = err
}

func (o *testObserver) OnUpdate(ctx context.Context, botID string, u Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates++
	o.lastUpdate = u
}

func (o *testObserver) OnNodeStart(ctx context.Context, ev NodeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeStarts++
	o.lastNodeStart = ev
}

func (o *testObserver) OnNodeCompleted(ctx context.Context, ev NodeEvent, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeCompletes++
	o.lastNodeComplete.Event = ev
	o.lastNodeComplete.Err = err
	o.lastNodeComplete.Duration = d
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cpy := slog.Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		cpy.AddAttrs(a)
		return true
	})
	h.records = append(h.records, cpy)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(name string) slog.Handler { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func testNodeEvent() NodeEvent {
	return NodeEvent{BotID: "shop", RunID: "shop#1", ChatID: 42, NodeID: "greet", Kind: "message"}
}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	var o Observer = NoopObserver{}

	o.OnWorkerStart(ctx, "shop", "shop#1")
	o.OnWorkerStop(ctx, "shop", "shop#1", errors.New("boom"))
	o.OnUpdate(ctx, "shop", Update{ChatID: 1})
	o.OnNodeStart(ctx, testNodeEvent())
	o.OnNodeCompleted(ctx, testNodeEvent(), nil, time.Second)
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil)

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("block failed")
	ev := testNodeEvent()
	co.OnWorkerStart(ctx, "shop", "shop#1")
	co.OnUpdate(ctx, "shop", Update{ChatID: 42, Text: "hi"})
	co.OnNodeStart(ctx, ev)
	co.OnNodeCompleted(ctx, ev, err, 2*time.Second)
	co.OnWorkerStop(ctx, "shop", "shop#1", err)

	for i, o := range []*testObserver{o1, o2} {
		if o.starts != 1 || o.stops != 1 || o.updates != 1 || o.nodeStarts != 1 || o.nodeCompletes != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastUpdate.Text != "hi" {
			t.Fatalf("observer %d update mismatch: %+v", i+1, o.lastUpdate)
		}
		if o.lastNodeStart != ev || o.lastNodeComplete.Event != ev {
			t.Fatalf("observer %d node event mismatch", i+1)
		}
		if o.lastNodeComplete.Err != err || o.lastNodeComplete.Duration != 2*time.Second {
			t.Fatalf("observer %d nodeComplete mismatch: %+v", i+1, o.lastNodeComplete)
		}
		if o.lastStopErr != err {
			t.Fatalf("observer %d stop error mismatch", i+1)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnWorkerStart_EmitsInfoLog(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnWorkerStart(context.Background(), "shop", "shop#3")

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Level != slog.LevelInfo {
		t.Fatalf("expected LevelInfo, got %v", rec.Level)
	}
	if rec.Message != "worker_started" {
		t.Fatalf("expected message worker_started, got %q", rec.Message)
	}
	attrs := attrsToMap(rec)
	if attrs["bot_id"] != "shop" || attrs["run_id"] != "shop#3" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

func TestLoggingObserver_OnWorkerStop_ErrorIsLoggedAsFailure(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnWorkerStop(context.Background(), "shop", "shop#1", nil)
	o.OnWorkerStop(context.Background(), "shop", "shop#2", errors.New("conflict"))

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}
	if h.records[0].Message != "worker_stopped" || h.records[0].Level != slog.LevelInfo {
		t.Fatalf("unexpected clean stop record: %s %v", h.records[0].Message, h.records[0].Level)
	}
	if h.records[1].Message != "worker_failed" || h.records[1].Level != slog.LevelError {
		t.Fatalf("unexpected failure record: %s %v", h.records[1].Message, h.records[1].Level)
	}
}

func TestLoggingObserver_OnNodeCompleted_LevelDependsOnError(t *testing.T) {
	ctx := context.Background()
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	ok := testNodeEvent()
	failed := testNodeEvent()
	failed.NodeID = "broken"

	o.OnNodeCompleted(ctx, ok, nil, time.Second)
	o.OnNodeCompleted(ctx, failed, errors.New("boom"), 2*time.Second)

	if len(h.records) != 2 {
		t.Fatalf("expected 2 log records, got %d", len(h.records))
	}

	successRec := h.records[0]
	failRec := h.records[1]

	if successRec.Level != slog.LevelDebug {
		t.Fatalf("expected success record LevelDebug, got %v", successRec.Level)
	}
	if failRec.Level != slog.LevelError {
		t.Fatalf("expected failure record LevelError, got %v", failRec.Level)
	}
	if successRec.Message != "node_completed" || failRec.Message != "node_completed" {
		t.Fatalf("expected node_completed messages, got %q and %q", successRec.Message, failRec.Message)
	}

	attrs := attrsToMap(failRec)
	if attrs["node"] != "broken" {
		t.Fatalf("expected node=broken, got %v", attrs["node"])
	}
	if attrs["error"] == nil {
		t.Fatalf("expected error attribute on failure record, got nil")
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_WorkerCountersAndSnapshot(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()

	// 3 started, 1 stopped, 1 failed -> running = 1
	m.OnWorkerStart(ctx, "a", "a#1")
	m.OnWorkerStart(ctx, "b", "b#1")
	m.OnWorkerStart(ctx, "c", "c#1")
	m.OnWorkerStop(ctx, "a", "a#1", nil)
	m.OnWorkerStop(ctx, "b", "b#1", errors.New("fail"))
	m.OnUpdate(ctx, "c", Update{})

	snap := m.Snapshot()

	if snap.WorkersStarted != 3 {
		t.Fatalf("WorkersStarted=%d, want 3", snap.WorkersStarted)
	}
	if snap.WorkersStopped != 1 {
		t.Fatalf("WorkersStopped=%d, want 1", snap.WorkersStopped)
	}
	if snap.WorkersFailed != 1 {
		t.Fatalf("WorkersFailed=%d, want 1", snap.WorkersFailed)
	}
	if snap.RunningWorkers != 1 {
		t.Fatalf("RunningWorkers=%d, want 1", snap.RunningWorkers)
	}
	if snap.UpdatesReceived != 1 {
		t.Fatalf("UpdatesReceived=%d, want 1", snap.UpdatesReceived)
	}
	if snap.NodesCompleted != 0 || snap.AvgNodeDuration != 0 {
		t.Fatalf("expected no node metrics yet, got %+v", snap)
	}
}

func TestBasicMetrics_OnNodeCompleted_SuccessOnlyCountsDuration(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	ev := testNodeEvent()

	m.OnNodeCompleted(ctx, ev, nil, 1*time.Second)
	m.OnNodeCompleted(ctx, ev, nil, 3*time.Second)
	m.OnNodeCompleted(ctx, ev, errors.New("fail"), 10*time.Second)

	snap := m.Snapshot()

	if snap.NodesCompleted != 2 {
		t.Fatalf("NodesCompleted=%d, want 2", snap.NodesCompleted)
	}
	if snap.NodesFailed != 1 {
		t.Fatalf("NodesFailed=%d, want 1", snap.NodesFailed)
	}
	wantAvg := 2 * time.Second
	if snap.AvgNodeDuration != wantAvg {
		t.Fatalf("AvgNodeDuration=%v, want %v", snap.AvgNodeDuration, wantAvg)
	}
}
