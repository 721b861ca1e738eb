package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpe-ssg/keylime-perf-harness/internal/serializer"
	"github.com/hpe-ssg/keylime-perf-harness/internal/stats"
	"github.com/hpe-ssg/keylime-perf-harness/internal/taskmanager"
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

// TestSingleWorkerSingleAgentQuotaOne exercises scenario 1 from spec.md §8:
// W=1, A=1, Q=1 against a verifier that always succeeds should yield
// exactly one serialized, fully-successful task.
func TestSingleWorkerSingleAgentQuotaOne(t *testing.T) {
	srv := alwaysOKServer(t)
	resultsPath := t.TempDir() + "/results.jsonl"
	ser, err := serializer.New(resultsPath)
	require.NoError(t, err)
	st := stats.NewGlobalStats()
	mgr := taskmanager.New("run", 1, 1, srv.URL, srv.Client(), nil, ser, st)

	w := &Worker{Index: 0, Manager: mgr, Serializer: ser}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	records, err := ser.ReadTasks()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].CreateSuccessful)
	assert.True(t, records[0].UpdateSuccessful)
	assert.Equal(t, int64(1), st.FullProtocolRuns.Success.Count())
}

// TestMultiWorkerFleetAdmitsExactQuota exercises scenario 5 from spec.md §8:
// W=2, A=4, Q=3 against an always-ok verifier yields 12 serialized records,
// one per admitted task.
func TestMultiWorkerFleetAdmitsExactQuota(t *testing.T) {
	srv := alwaysOKServer(t)
	ser, err := serializer.New(t.TempDir() + "/results.jsonl")
	require.NoError(t, err)
	st := stats.NewGlobalStats()
	mgr := taskmanager.New("run", 4, 3, srv.URL, srv.Client(), nil, ser, st)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		w := &Worker{Index: i, Manager: mgr, Serializer: ser}
		go func() {
			w.Run(ctx)
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	require.NoError(t, ser.WriteTasks())
	records, err := ser.ReadTasks()
	require.NoError(t, err)
	assert.Len(t, records, 12)
	assert.Equal(t, int64(12), st.FullProtocolRuns.All.Count())
}

// TestGracefulShutdownDrainsInFlightTasks exercises scenario 6's admission
// half: once DisallowNewTasks is called, a worker stops admitting but the
// tasks it already started still conclude and get serialized.
func TestGracefulShutdownDrainsInFlightTasks(t *testing.T) {
	srv := alwaysOKServer(t)
	ser, err := serializer.New(t.TempDir() + "/results.jsonl")
	require.NoError(t, err)
	st := stats.NewGlobalStats()
	mgr := taskmanager.New("run", 2, 0, srv.URL, srv.Client(), nil, ser, st)

	w := &Worker{Index: 0, Manager: mgr, Serializer: ser}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(runDone)
	}()

	time.Sleep(50 * time.Millisecond)
	mgr.DisallowNewTasks()
	assert.False(t, mgr.AdmissionsOpen())

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down after admissions closed")
	}

	require.NoError(t, ser.WriteTasks())
	records, err := ser.ReadTasks()
	require.NoError(t, err)
	assert.Equal(t, int(st.FullProtocolRuns.All.Count()), len(records),
		"serialized record count must match the stats-reported run count")
}

// TestAdmissionCtxCancelDoesNotAbortInFlightTask exercises the other half of
// spec.md §5's shutdown distinction: cancelling the context that stops the
// admission loop (the graceful path) must not cancel a task already
// in-flight, including one asleep in a retry-after wait. A verifier that
// conflicts once then succeeds forces the in-flight task through exactly
// that sleep while the admission ctx is cancelled underneath it.
func TestAdmissionCtxCancelDoesNotAbortInFlightTask(t *testing.T) {
	var createAttempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && atomic.AddInt32(&createAttempts, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	ser, err := serializer.New(t.TempDir() + "/results.jsonl")
	require.NoError(t, err)
	st := stats.NewGlobalStats()
	mgr := taskmanager.New("run", 1, 1, srv.URL, srv.Client(), nil, ser, st)

	w := &Worker{Index: 0, Manager: mgr, Serializer: ser}
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(runDone)
	}()

	// Let the worker admit the task and hit the first conflict, then cancel
	// the admission ctx while the task is asleep in its retry-after wait.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not shut down after admission ctx cancellation")
	}

	require.NoError(t, ser.WriteTasks())
	records, err := ser.ReadTasks()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].CreateSuccessful,
		"the in-flight retry must conclude naturally despite admission ctx cancellation")
	assert.True(t, records[0].UpdateSuccessful)
}
