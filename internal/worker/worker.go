// Package worker hosts the event loop each worker process (here: worker
// goroutine, see DESIGN.md's Open Question resolution) runs to pull tasks
// from the shared task manager and drive them to completion. Grounded on
// the perf_tests `Worker`/event-loop driving code in attestation_task.py and
// command_execution.py's main loop.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/hpe-ssg/keylime-perf-harness/internal/attestation"
	"github.com/hpe-ssg/keylime-perf-harness/internal/events"
	"github.com/hpe-ssg/keylime-perf-harness/internal/evidence"
	harnessotel "github.com/hpe-ssg/keylime-perf-harness/internal/otel"
	"github.com/hpe-ssg/keylime-perf-harness/internal/serializer"
	"github.com/hpe-ssg/keylime-perf-harness/internal/taskmanager"
)

// EvidenceFactory builds a fresh, independent snapshot of evidence items for
// one task. A new slice must be built per task so that two concurrently
// executing tasks never share mutable evidence state (spec.md §4.C8 step 1).
type EvidenceFactory func() []evidence.Item

// DefaultEvidenceFactory builds the one-certification, two-event-log
// evidence set spec.md §4.C8 describes, cloning the canonical mock items so
// each task gets its own copy.
func DefaultEvidenceFactory() []evidence.Item {
	return []evidence.Item{
		evidence.NewMockTPMQuote(),
		evidence.NewMockUEFILog().Clone(),
		evidence.NewMockIMALog().Clone(),
	}
}

// FlushInterval is how often a worker's main loop flushes the serializer's
// queued tasks to disk while it still has admissions to pursue.
const FlushInterval = 2 * time.Second

// YieldDelay is how long a worker sleeps before retrying admission after
// the task manager reports every agent transiently busy.
const YieldDelay = 10 * time.Millisecond

// Worker runs one goroutine-hosted event loop: ask the manager for tasks,
// schedule each one fire-and-forget, and periodically flush the serializer.
// Grounded on spec.md §4.C8 and the cooperative-concurrency design in §5.
type Worker struct {
	Index           int
	Manager         *taskmanager.Manager
	Serializer      *serializer.ResultSerializer
	EvidenceFactory EvidenceFactory
	Logger          *events.EventLogger

	wg sync.WaitGroup
}

// Run drives the worker's main loop until ctx is cancelled or the task
// manager reports end of stream, then waits for every fire-and-forget task
// it scheduled to conclude before returning. This is the "drain in-flight
// tasks" behaviour spec.md §5 requires of a graceful shutdown.
func (w *Worker) Run(ctx context.Context) {
	if w.EvidenceFactory == nil {
		w.EvidenceFactory = DefaultEvidenceFactory
	}
	logger := w.Logger
	if logger == nil {
		logger = events.NoopEventLogger()
	}

	flush := time.NewTicker(FlushInterval)
	defer flush.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-flush.C:
			w.flush()
			continue
		default:
		}

		task, err := w.Manager.NewTask(ctx, w.Index, w.EvidenceFactory())
		switch {
		case err != nil:
			// ErrStreamEnded or a context cancellation: either way there
			// is nothing more for this worker to admit.
			break loop
		case task == nil:
			// Every agent was transiently busy; yield cooperatively and
			// let whichever agent is about to conclude do so.
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(YieldDelay):
			}
			continue
		default:
			logger.LogTaskAdmitted(task.Agent.ID(), task.Index)
			w.schedule(task)
		}
	}

	drained := w.Manager.InFlightCount(w.Index)
	w.wg.Wait()
	w.flush()
	logger.LogWorkerShutdown(ctx.Err() != nil, drained)
}

// schedule runs task.Execute fire-and-forget, concluding it through the
// manager and its owning agent exactly once regardless of outcome, matching
// the completion hook spec.md §4.C3 describes.
//
// A scheduled task executes on its own background context, detached from
// the admission loop's ctx: spec.md §5 distinguishes a graceful shutdown
// (in-flight tasks "conclude naturally") from a forceful one (OS
// process-group abort). The admission loop's ctx only ever signals the
// graceful path, so it must stop NewTask from admitting more work without
// aborting a task already underway.
func (w *Worker) schedule(task *attestation.Task) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		execCtx := context.Background()
		metrics := harnessotel.GetGlobalMetrics()
		metrics.TaskStarted(execCtx)
		defer metrics.TaskConcluded(execCtx)

		_, _ = task.Execute(execCtx)

		agent, err := w.Manager.Agent(task.AgentIndex)
		if err != nil {
			return
		}
		w.Manager.Conclude(w.Index, agent, task)
	}()
}

func (w *Worker) flush() {
	if w.Serializer == nil {
		return
	}
	_ = w.Serializer.WriteTasks()
}
