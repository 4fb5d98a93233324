package api

import (
	"context"
	"time"
)

// EventType identifies a worker lifecycle event.
type EventType string

const (
	EventWorkerStarting      EventType = "worker.starting"
	EventWorkerStarted       EventType = "worker.started"
	EventWorkerStopRequested EventType = "worker.stop_requested"
	EventWorkerStopped       EventType = "worker.stopped"
	EventWorkerFailed        EventType = "worker.failed"
	EventWorkerStopTimeout   EventType = "worker.stop_timeout"
)

// WorkerEvent is a minimal append-only lifecycle record for audit/debugging.
type WorkerEvent struct {
	ID    string
	BotID string
	RunID string
	At    time.Time
	Type  EventType

	// Small, human-oriented details (e.g. bot username, error string).
	Detail string
}

// EventRecorder persists worker lifecycle events.
type EventRecorder interface {
	AppendEvent(ctx context.Context, ev WorkerEvent) error
}

// WorkerState is the supervisor-side lifecycle state of a bot.
type WorkerState string

const (
	StateStopped       WorkerState = "stopped"
	StateStarting      WorkerState = "starting"
	StateRunning       WorkerState = "running"
	StateStopRequested WorkerState = "stop_requested"
)

// WorkerStatus is what the control surface reports for one bot.
type WorkerStatus struct {
	BotID string
	State WorkerState

	// Running is true while a worker record exists and its goroutine is alive.
	Running bool

	RunID      string
	Generation uint64
	StartedAt  time.Time
	Username   string

	// LastError is the error a self-terminated worker exited with.
	LastError string
}
