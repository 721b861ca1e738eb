// Package agentpool models the fleet of mock agent identities the harness
// drives attestation tasks against. Each Agent is a single-flight slot: it
// runs at most one task at a time and tracks how many tasks it has run so
// its owning task manager can decide when it's done. Grounded on agent.py,
// translated from Python's multiprocessing.Value shared-memory primitives to
// Go's atomic package for the goroutine-per-worker model (see DESIGN.md).
package agentpool

import (
	"fmt"
	"sync/atomic"
)

// TasksPerAgent reports how many tasks each agent should run before it's
// considered finished; zero means unbounded.
type TasksPerAgent interface {
	TasksPerAgent() int
}

// Agent is one single-flight slot in the fleet: busy/idle state and a task
// counter guarded by atomics so many worker goroutines can query and update
// them concurrently without a mutex.
type Agent struct {
	index int
	owner TasksPerAgent

	busy      atomic.Bool
	taskCount atomic.Int64
}

// New builds an idle Agent at the given fleet index.
func New(owner TasksPerAgent, index int) *Agent {
	return &Agent{index: index, owner: owner}
}

// Index is the agent's position in the fleet.
func (a *Agent) Index() int { return a.index }

// ID is the agent's URL-path identifier: "perf-test-agent-{index}",
// matching agent.py's id property and the contract create_agent.py seeds
// into the verifier's database.
func (a *Agent) ID() string {
	return fmt.Sprintf("perf-test-agent-%d", a.index)
}

// Busy reports whether the agent currently has a task in flight.
func (a *Agent) Busy() bool { return a.busy.Load() }

// TaskCount reports how many tasks this agent has started so far.
func (a *Agent) TaskCount() int64 { return a.taskCount.Load() }

// Finished reports whether the agent has already run its allotted task
// count. An unbounded (owner.TasksPerAgent() == 0) fleet never finishes.
func (a *Agent) Finished() bool {
	limit := a.owner.TasksPerAgent()
	if limit == 0 {
		return false
	}
	return a.TaskCount() >= int64(limit)
}

// BootTime renders a deterministic boot-time stamp for the create request's
// system_info block. The original implementation derives it from the task
// counter rather than a wall-clock boot time (perf_tests/agent.py's
// boot_time property reads `datetime.fromtimestamp(self._task_count.value)`)
// so that replays of the same task sequence produce the same value; this
// port preserves that behaviour rather than "fixing" it into a real
// wall-clock timestamp.
func (a *Agent) BootTime() string {
	return epochSeconds(a.TaskCount())
}

// TryAcquire reserves this agent for a new task if it is currently idle and
// not finished, returning the 0-based index of the task within this agent's
// own sequence. The second return value is false if the agent could not be
// acquired.
//
// Unlike agent.py's new_task (which both reserves the slot and constructs
// the AttestationTask in one call), TryAcquire only performs the
// reservation; the caller (taskmanager.Manager, which already holds the
// fleet-wide admission lock) constructs the attestation.Task itself. This
// keeps Agent free of a dependency on the attestation package.
func (a *Agent) TryAcquire() (taskIndex int, ok bool) {
	if !a.busy.CompareAndSwap(false, true) {
		return 0, false
	}
	if a.Finished() {
		a.busy.Store(false)
		return 0, false
	}
	taskIndex = int(a.taskCount.Add(1) - 1)
	return taskIndex, true
}

// Conclude releases the agent back to idle once its current task has
// reached a terminal state.
func (a *Agent) Conclude() {
	a.busy.Store(false)
}
