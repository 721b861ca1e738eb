package attestation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hpe-ssg/keylime-perf-harness/internal/evidence"
	harnessotel "github.com/hpe-ssg/keylime-perf-harness/internal/otel"
)

// AgentIdentity is the minimal view of an Agent slot an attestation task
// needs: its URL-path identifier and a boot_time value to report in the
// create request's system_info block. Decoupled from agentpool.Agent so
// this package doesn't import it back.
type AgentIdentity interface {
	ID() string
	BootTime() string
}

// Task drives one complete create -> update protocol run for one agent,
// retrying each phase on a server-directed Retry-After until it gets a
// definitive response. Grounded on attestation_task.py's AttestationTask.
//
// MaxRetries caps the number of retry-after waits per phase; zero (the
// default) means unbounded, matching the Python original's unconditional
// while-True loop.
type Task struct {
	WorkerIndex int
	Agent       AgentIdentity
	AgentIndex  int
	Index       int // 0-based, sequential per agent.
	Evidence    []evidence.Item

	VerifierURL string
	MaxRetries  int

	doer   HTTPDoer
	tracer *harnessotel.Tracer
	runID  string

	mu             sync.Mutex
	createAttempts []*RequestAttempt
	updateAttempts []*RequestAttempt
}

// NewTask builds a Task for one agent's Index-th attestation run. items is
// stored as given, without copying; callers pass a fresh slice per task
// (see worker.EvidenceFactory).
func NewTask(runID string, workerIndex int, agent AgentIdentity, agentIndex, index int, items []evidence.Item, verifierURL string, doer HTTPDoer, tracer *harnessotel.Tracer) *Task {
	if tracer == nil {
		tracer = harnessotel.NoopTracer()
	}
	return &Task{
		WorkerIndex: workerIndex,
		Agent:       agent,
		AgentIndex:  agentIndex,
		Index:       index,
		Evidence:    items,
		VerifierURL: verifierURL,
		doer:        doer,
		tracer:      tracer,
		runID:       runID,
	}
}

func (t *Task) spanOpts() harnessotel.AttemptSpanOptions {
	return harnessotel.AttemptSpanOptions{
		RunID:     t.runID,
		WorkerID:  fmt.Sprintf("%d", t.WorkerIndex),
		AgentID:   t.Agent.ID(),
		TaskIndex: t.Index,
	}
}

func (t *Task) newCreateAttempt(ctx context.Context) *RequestAttempt {
	url := fmt.Sprintf("%s/v3.0/agents/%s/attestations", t.VerifierURL, t.Agent.ID())

	supported := make([]map[string]any, 0, len(t.Evidence))
	for _, item := range t.Evidence {
		if rendered := item.RenderSupported(); rendered != nil {
			supported = append(supported, rendered)
		}
	}

	body := map[string]any{
		"evidence_supported": supported,
		"system_info": map[string]any{
			"boot_time": t.Agent.BootTime(),
		},
	}

	attempt := Perform(ctx, t.doer, t.tracer, t.spanOpts(), "POST", url, body)
	t.mu.Lock()
	t.createAttempts = append(t.createAttempts, attempt)
	t.mu.Unlock()
	return attempt
}

func (t *Task) newUpdateAttempt(ctx context.Context) *RequestAttempt {
	url := fmt.Sprintf("%s/v3.0/agents/%s/attestations/%d", t.VerifierURL, t.Agent.ID(), t.Index)

	collected := make([]map[string]any, 0, len(t.Evidence))
	for _, item := range t.Evidence {
		if rendered := item.RenderCollected(); rendered != nil {
			collected = append(collected, rendered)
		}
	}

	body := map[string]any{"evidence_collected": collected}

	attempt := Perform(ctx, t.doer, t.tracer, t.spanOpts(), "PATCH", url, body)
	t.mu.Lock()
	t.updateAttempts = append(t.updateAttempts, attempt)
	t.mu.Unlock()
	return attempt
}

// Execute runs the create phase to completion, then the update phase to
// completion, sleeping between retries for as long as the verifier's
// Retry-After directs. It returns false as soon as either phase receives a
// definitive non-ok response; true once both phases succeed.
func (t *Task) Execute(ctx context.Context) (bool, error) {
	if ok, err := t.runPhase(ctx, t.newCreateAttempt); !ok || err != nil {
		return false, err
	}
	if ok, err := t.runPhase(ctx, t.newUpdateAttempt); !ok || err != nil {
		return false, err
	}
	return true, nil
}

func (t *Task) runPhase(ctx context.Context, attempt func(context.Context) *RequestAttempt) (bool, error) {
	for retries := 0; ; retries++ {
		a := attempt(ctx)

		if retryAfter := a.RetryAfter(); retryAfter > 0 {
			if t.MaxRetries > 0 && retries >= t.MaxRetries {
				return false, fmt.Errorf("exceeded max retries (%d)", t.MaxRetries)
			}
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(time.Duration(retryAfter) * time.Second):
			}
			continue
		}

		return a.OK(), nil
	}
}

// CreateAttempts returns a snapshot of every create-phase attempt made so far.
func (t *Task) CreateAttempts() []*RequestAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*RequestAttempt, len(t.createAttempts))
	copy(out, t.createAttempts)
	return out
}

// UpdateAttempts returns a snapshot of every update-phase attempt made so far.
func (t *Task) UpdateAttempts() []*RequestAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*RequestAttempt, len(t.updateAttempts))
	copy(out, t.updateAttempts)
	return out
}

// CreateSuccessful reports whether the last create attempt, if any, was ok.
func (t *Task) CreateSuccessful() bool {
	attempts := t.CreateAttempts()
	if len(attempts) == 0 {
		return false
	}
	return attempts[len(attempts)-1].OK()
}

// UpdateSuccessful reports whether the last update attempt, if any, was ok.
func (t *Task) UpdateSuccessful() bool {
	attempts := t.UpdateAttempts()
	if len(attempts) == 0 {
		return false
	}
	return attempts[len(attempts)-1].OK()
}

// CreateDuration sums the duration of every create attempt that reported one.
func (t *Task) CreateDuration() time.Duration {
	return sumDurations(t.CreateAttempts())
}

// UpdateDuration sums the duration of every update attempt that reported one.
func (t *Task) UpdateDuration() time.Duration {
	return sumDurations(t.UpdateAttempts())
}

// TotalDuration is CreateDuration plus UpdateDuration.
func (t *Task) TotalDuration() time.Duration {
	return t.CreateDuration() + t.UpdateDuration()
}

func sumDurations(attempts []*RequestAttempt) time.Duration {
	var total time.Duration
	for _, a := range attempts {
		if d, ok := a.Duration(); ok {
			total += d
		}
	}
	return total
}

// StartTime is the first create attempt's start time, or the zero value if
// the task never attempted a create.
func (t *Task) StartTime() time.Time {
	attempts := t.CreateAttempts()
	if len(attempts) == 0 {
		return time.Time{}
	}
	return attempts[0].StartTime
}

// EndTime is the last update attempt's end time if any update was attempted,
// else the last create attempt's end time, else the zero value.
func (t *Task) EndTime() time.Time {
	if updates := t.UpdateAttempts(); len(updates) > 0 {
		return updates[len(updates)-1].EndTime
	}
	creates := t.CreateAttempts()
	if len(creates) == 0 {
		return time.Time{}
	}
	return creates[len(creates)-1].EndTime
}

// Render returns the JSON-serializable shape result_serializer writes for
// this task, mirroring attestation_task.py's AttestationTask.render.
func (t *Task) Render() map[string]any {
	creates := t.CreateAttempts()
	updates := t.UpdateAttempts()

	renderedCreates := make([]map[string]any, 0, len(creates))
	for _, a := range creates {
		renderedCreates = append(renderedCreates, a.Render())
	}
	renderedUpdates := make([]map[string]any, 0, len(updates))
	for _, a := range updates {
		renderedUpdates = append(renderedUpdates, a.Render())
	}

	return map[string]any{
		"agent_index":      t.AgentIndex,
		"task_index":       t.Index,
		"worker_index":     t.WorkerIndex,
		"create_successful": t.CreateSuccessful(),
		"update_successful": t.UpdateSuccessful(),
		"create_duration":   t.CreateDuration().Seconds(),
		"update_duration":   t.UpdateDuration().Seconds(),
		"create_attempts":   renderedCreates,
		"update_attempts":   renderedUpdates,
	}
}
