package taskmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hpe-ssg/keylime-perf-harness/internal/agentpool"
	"github.com/hpe-ssg/keylime-perf-harness/internal/evidence"
	"github.com/hpe-ssg/keylime-perf-harness/internal/serializer"
	"github.com/hpe-ssg/keylime-perf-harness/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysOKServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, agentCount, tasksPerAgent int) (*Manager, *httptest.Server, *stats.GlobalStats) {
	t.Helper()
	srv := alwaysOKServer(t)
	ser, err := serializer.New(t.TempDir() + "/results.jsonl")
	require.NoError(t, err)
	st := stats.NewGlobalStats()
	m := New("test-run", agentCount, tasksPerAgent, srv.URL, srv.Client(), nil, ser, st)
	return m, srv, st
}

func sampleEvidence() []evidence.Item {
	return []evidence.Item{evidence.NewMockTPMQuote(), evidence.NewMockUEFILog()}
}

func TestNewTaskAdvancesCursorRoundRobin(t *testing.T) {
	m, _, _ := newTestManager(t, 3, 0)
	ctx := context.Background()

	var agents []int
	for i := 0; i < 6; i++ {
		task, err := m.NewTask(ctx, 0, sampleEvidence())
		require.NoError(t, err)
		require.NotNil(t, task)
		agents = append(agents, task.AgentIndex)
		m.Conclude(0, mustAgent(t, m, task.AgentIndex), task)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, agents)
}

func mustAgent(t *testing.T, m *Manager, idx int) *agentpool.Agent {
	t.Helper()
	a, err := m.Agent(idx)
	require.NoError(t, err)
	return a
}

func TestAllAgentsBusyReturnsTransientNil(t *testing.T) {
	m, _, _ := newTestManager(t, 1, 0)
	ctx := context.Background()

	task, err := m.NewTask(ctx, 0, sampleEvidence())
	require.NoError(t, err)
	require.NotNil(t, task)

	// the one agent is now busy; a second admission attempt must not error,
	// just come back empty so the worker can yield and retry.
	again, err := m.NewTask(ctx, 0, sampleEvidence())
	assert.NoError(t, err)
	assert.Nil(t, again)
}

func TestAllFinishedReturnsStreamEnded(t *testing.T) {
	m, _, _ := newTestManager(t, 1, 1)
	ctx := context.Background()

	task, err := m.NewTask(ctx, 0, sampleEvidence())
	require.NoError(t, err)
	require.NotNil(t, task)
	m.Conclude(0, mustAgent(t, m, 0), task)

	_, err = m.NewTask(ctx, 0, sampleEvidence())
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestDisallowNewTasksEndsStreamImmediately(t *testing.T) {
	m, _, _ := newTestManager(t, 2, 0)
	ctx := context.Background()

	m.DisallowNewTasks()
	_, err := m.NewTask(ctx, 0, sampleEvidence())
	assert.ErrorIs(t, err, ErrStreamEnded)
}

// TestConcurrentAdmissionNeverDoubleBooksAnAgent drives many worker
// goroutines against a small fleet and asserts I-A1: no agent is ever
// admitted a second task while its previous one is still in flight.
func TestConcurrentAdmissionNeverDoubleBooksAnAgent(t *testing.T) {
	const agents = 4
	const workers = 8
	const perWorker = 25

	m, _, _ := newTestManager(t, agents, 0)
	ctx := context.Background()

	var mu sync.Mutex
	busyViolations := 0
	seenBusy := make(map[int]bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerIndex int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				task, err := m.NewTask(ctx, workerIndex, sampleEvidence())
				if err != nil || task == nil {
					continue
				}

				mu.Lock()
				if seenBusy[task.AgentIndex] {
					busyViolations++
				}
				seenBusy[task.AgentIndex] = true
				mu.Unlock()

				ok, execErr := task.Execute(ctx)
				require.NoError(t, execErr)
				require.True(t, ok)

				mu.Lock()
				seenBusy[task.AgentIndex] = false
				mu.Unlock()

				m.Conclude(workerIndex, mustAgent(t, m, task.AgentIndex), task)
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, busyViolations, "no agent should ever be admitted a second task while busy")
}

// TestTasksPerAgentQuotaIsRespectedExactly drives W=2 workers against A=4
// agents with a quota of 3 each and checks every agent is admitted exactly
// its quota (I-A2), matching scenario 5 in spec.md §8.
func TestTasksPerAgentQuotaIsRespectedExactly(t *testing.T) {
	const agents = 4
	const quota = 3
	const workers = 2

	m, _, st := newTestManager(t, agents, quota)
	ctx := context.Background()

	counts := make([]int, agents)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerIndex int) {
			defer wg.Done()
			for {
				task, err := m.NewTask(ctx, workerIndex, sampleEvidence())
				if err == ErrStreamEnded {
					return
				}
				if task == nil {
					continue
				}
				ok, execErr := task.Execute(ctx)
				require.NoError(t, execErr)
				require.True(t, ok)

				mu.Lock()
				counts[task.AgentIndex]++
				mu.Unlock()

				m.Conclude(workerIndex, mustAgent(t, m, task.AgentIndex), task)
			}
		}(w)
	}
	wg.Wait()

	for i, c := range counts {
		assert.Equalf(t, quota, c, "agent %d should be admitted exactly %d tasks", i, quota)
	}
	assert.Equal(t, int64(agents*quota), st.FullProtocolRuns.All.Count())
}
