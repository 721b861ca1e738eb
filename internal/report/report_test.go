package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hpe-ssg/keylime-perf-harness/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDurationScalesByUnit(t *testing.T) {
	assert.Equal(t, "500ns", FormatDuration(0.0000005))
	assert.Equal(t, "500µs", FormatDuration(0.0005))
	assert.Equal(t, "500ms", FormatDuration(0.5))
	assert.Equal(t, "1.5s", FormatDuration(1.5))
	assert.Equal(t, "2.0m", FormatDuration(120))
	assert.Equal(t, "1.0h", FormatDuration(3600))
}

func TestFormatCountPluralizes(t *testing.T) {
	assert.Equal(t, "1 task", FormatCount(1, "task", "tasks"))
	assert.Equal(t, "0 tasks", FormatCount(0, "task", "tasks"))
	assert.Equal(t, "2 tasks", FormatCount(2, "task", "tasks"))
}

func TestReportPrintIncludesAllSections(t *testing.T) {
	st := stats.NewGlobalStats()
	st.CreateRequests.Ok.Record(0.1, true)
	st.FullProtocolRuns.Success.Record(0.2, true)
	st.UpdateWorkerCount(2)
	st.UpdateAgentCount(4)

	r := New(st, nil, "results/run.jsonl")
	var buf bytes.Buffer
	r.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "Create Requests")
	assert.Contains(t, out, "Update Requests")
	assert.Contains(t, out, "Complete Protocol Runs")
	assert.Contains(t, out, "Workers: 2, Agents: 4")
}

func TestReportJSONRoundTripsCounts(t *testing.T) {
	st := stats.NewGlobalStats()
	st.CreateRequests.Ok.Record(0.1, true)
	st.FullProtocolRuns.Success.Record(0.2, true)

	r := New(st, nil, "results/run.jsonl")
	data, err := r.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "results/run.jsonl", decoded["results_path"])

	createRequests, ok := decoded["create_requests"].(map[string]any)
	require.True(t, ok)
	okBucket, ok := createRequests["ok"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), okBucket["count"])
}
