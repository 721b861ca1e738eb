package attestation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hpe-ssg/keylime-perf-harness/internal/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	id string
}

func (f fakeAgent) ID() string       { return f.id }
func (f fakeAgent) BootTime() string { return "2026-01-01T00:00:00Z" }

func TestTaskExecuteSucceedsOnFirstTry(t *testing.T) {
	var createHits, updateHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			createHits++
			w.WriteHeader(http.StatusCreated)
		case http.MethodPatch:
			updateHits++
			w.WriteHeader(http.StatusOK)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	task := NewTask("run1", 0, fakeAgent{id: "perf-test-agent-0"}, 0, 0,
		[]evidence.Item{evidence.NewMockTPMQuote()}, srv.URL, srv.Client(), nil)

	ok, err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, createHits)
	assert.Equal(t, 1, updateHits)
	assert.True(t, task.CreateSuccessful())
	assert.True(t, task.UpdateSuccessful())
}

func TestTaskExecuteRetriesOnRetryAfter(t *testing.T) {
	var createHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			createHits++
			if createHits == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error":"already in progress"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	task := NewTask("run1", 0, fakeAgent{id: "perf-test-agent-0"}, 0, 0,
		[]evidence.Item{evidence.NewMockTPMQuote()}, srv.URL, srv.Client(), nil)

	ok, err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, createHits)
	assert.Len(t, task.CreateAttempts(), 2)
	assert.True(t, task.CreateAttempts()[0].Conflicts())
}

func TestTaskExecuteFailsOnDefinitiveError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	task := NewTask("run1", 0, fakeAgent{id: "perf-test-agent-0"}, 0, 0,
		[]evidence.Item{evidence.NewMockTPMQuote()}, srv.URL, srv.Client(), nil)

	ok, err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, task.CreateSuccessful())
	assert.Empty(t, task.UpdateAttempts())
}
