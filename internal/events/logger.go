// Package events provides structured logging for the lifecycle events of the
// load harness: task admission, retry-after backoff, and task conclusion.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key harness events.
type EventLogger struct {
	logger   *slog.Logger
	runID    string
	workerID string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes base attributes: run_id and worker_id.
func NewEventLogger(runID, workerID string) *EventLogger {
	return newEventLogger(runID, workerID, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(runID, workerID string, w io.Writer) *EventLogger {
	return newEventLogger(runID, workerID, w)
}

func newEventLogger(runID, workerID string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler).With(
		"run_id", runID,
		"worker_id", workerID,
	)
	return &EventLogger{logger: logger, runID: runID, workerID: workerID}
}

// LogTaskAdmitted logs that the task manager admitted a new task onto an
// agent slot.
// event: "task_admitted"
// Attributes: agent_id, task_index
func (el *EventLogger) LogTaskAdmitted(agentID string, taskIndex int) {
	el.logger.Info("task_admitted",
		"agent_id", agentID,
		"task_index", taskIndex,
	)
}

// LogAdmissionStalled logs that the task manager found every agent slot busy
// or the fleet fully finished, and is yielding back to its caller.
// event: "admission_stalled"
// Attributes: reason ("all_busy" | "all_finished")
func (el *EventLogger) LogAdmissionStalled(reason string) {
	el.logger.Info("admission_stalled", "reason", reason)
}

// LogRetryAfter logs that a request attempt received a retry directive from
// the verifier.
// event: "retry_after"
// Attributes: agent_id, task_index, action, retry_after_seconds, attempt
func (el *EventLogger) LogRetryAfter(agentID, action string, taskIndex, retryAfterSeconds, attempt int) {
	el.logger.Info("retry_after",
		"agent_id", agentID,
		"task_index", taskIndex,
		"action", action,
		"retry_after_seconds", retryAfterSeconds,
		"attempt", attempt,
	)
}

// LogTaskConcluded logs that an attestation task reached a terminal state.
// event: "task_concluded"
// Attributes: agent_id, task_index, duration_ms, failed
func (el *EventLogger) LogTaskConcluded(agentID string, taskIndex int, durationMs float64, failed bool) {
	el.logger.Info("task_concluded",
		"agent_id", agentID,
		"task_index", taskIndex,
		"duration_ms", durationMs,
		"failed", failed,
	)
}

// LogWorkerShutdown logs a worker's shutdown, graceful or forced.
// event: "worker_shutdown"
// Attributes: forced, drained_tasks
func (el *EventLogger) LogWorkerShutdown(forced bool, drainedTasks int) {
	el.logger.Warn("worker_shutdown",
		"forced", forced,
		"drained_tasks", drainedTasks,
	)
}

// Global logger management.
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events. Useful
// for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	return newEventLogger("", "", io.Discard)
}
