// Package supervisor starts, stops and restarts bot workers.
//
// A Supervisor owns one unit per bot id. Each unit moves through
//
//	stopped -> starting -> running -> stop_requested -> stopped
//
// Start fails fast on a missing or rejected credential and on an unusable
// flow graph, before any goroutine is spawned. Stop cancels the worker's
// context and waits a bounded time for it to exit. Restart is Stop followed
// by Start and never lets two workers of the same bot poll at once.
//
// Every run gets a generation number and a run id of the form "<bot>#<gen>",
// which appear in logs, observer callbacks and lifecycle events.
package supervisor
