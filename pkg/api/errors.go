package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFlowNotFound is returned when no flow graph is stored for a bot.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrTokenNotFound is returned when no credential is known for a bot.
	ErrTokenNotFound = errors.New("token not found")

	// ErrAlreadyRunning is returned by Start when a live worker exists for the bot.
	ErrAlreadyRunning = errors.New("worker already running")

	// ErrNotRunning is returned by Stop when the bot has no worker.
	ErrNotRunning = errors.New("worker not running")

	// ErrStillStopping is returned by Start while a previous unit for the same
	// bot timed out on stop and has not exited yet.
	ErrStillStopping = errors.New("previous worker has not exited yet")

	// ErrStopTimeout is returned by Restart when the old unit did not exit in
	// time; no new unit is started in that case.
	ErrStopTimeout = errors.New("worker did not stop within timeout")

	// ErrTransportConflict matches every *TransportConflict via errors.Is.
	ErrTransportConflict = errors.New("transport conflict")
)

// ConfigurationError reports an unusable flow graph: an unknown node kind, a
// malformed node, or a structural problem. It is fatal for the affected bot.
type ConfigurationError struct {
	BotID  string
	NodeID string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.BotID != "" {
		msg += " for bot " + e.BotID
	}
	if e.NodeID != "" {
		msg += " at node " + e.NodeID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CredentialError reports a missing or rejected bot token. Start fails fast
// with it before any worker is spawned.
type CredentialError struct {
	BotID string
	Err   error
}

func (e *CredentialError) Error() string {
	if e.BotID == "" {
		return fmt.Sprintf("credential error: %v", e.Err)
	}
	return fmt.Sprintf("credential error for bot %s: %v", e.BotID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportConflict reports a transient platform refusal such as a second
// poller on the same token or rate limiting.
type TransportConflict struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *TransportConflict) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transport conflict: %s (retry after %s)", e.Reason, e.RetryAfter)
	}
	return "transport conflict: " + e.Reason
}

func (e *TransportConflict) Is(target error) bool { return target == ErrTransportConflict }

// BlockExecutionError wraps a failure raised by a single block. The
// interpreter recovers from it locally.
type BlockExecutionError struct {
	NodeID string
	Kind   string
	Err    error
}

func (e *BlockExecutionError) Error() string {
	return fmt.Sprintf("block %s (%s) failed: %v", e.NodeID, e.Kind, e.Err)
}

func (e *BlockExecutionError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsCredentialError reports whether err is or wraps a *CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}
