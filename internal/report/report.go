package report

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/hpe-ssg/keylime-perf-harness/internal/stats"
	"github.com/hpe-ssg/keylime-perf-harness/internal/worker"
)

// Report is the rolled-up summary of one harness run: three groups (create
// requests/executions, update requests/executions, complete protocol runs)
// plus an optional worker-health section. Grounded on output.py's three
// ColumnGroups built at the end of command_execution.py's main loop.
type Report struct {
	stats       *stats.GlobalStats
	hostHealth  *worker.HostHealthSampler
	resultsPath string
}

// New builds a Report over a run's final stats. hostHealth may be nil if
// host-health sampling was not enabled for this run.
func New(st *stats.GlobalStats, hostHealth *worker.HostHealthSampler, resultsPath string) *Report {
	return &Report{stats: st, hostHealth: hostHealth, resultsPath: resultsPath}
}

// PrintDependencyInfo writes a startup banner listing this binary's
// resolved key module versions, the Go analogue of output.py's
// print_dependency_info (which walks importlib.metadata for the Python
// dependency set).
func PrintDependencyInfo(w io.Writer) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Fprintln(w, "Using dependencies: (build info unavailable)")
		return
	}

	tracked := map[string]bool{
		"go.opentelemetry.io/otel":       true,
		"github.com/shirou/gopsutil/v3":  true,
		"github.com/google/uuid":         true,
		"github.com/cenkalti/backoff/v4": true,
		"gopkg.in/yaml.v3":               true,
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("go %s", info.GoVersion))
	for _, dep := range info.Deps {
		if tracked[dep.Path] {
			parts = append(parts, fmt.Sprintf("%s %s", dep.Path, dep.Version))
		}
	}
	fmt.Fprintln(w, "Using dependencies: "+strings.Join(parts, ", "))
}

// Print renders the full textual report to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, requestGroup("Create Requests", r.stats.CreateRequests, r.stats.TrackDuration()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, phaseGroup("Create Executions", r.stats.CreatePhases, r.stats.TrackDuration()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, requestGroup("Update Requests", r.stats.UpdateRequests, r.stats.TrackDuration()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, phaseGroup("Update Executions", r.stats.UpdatePhases, r.stats.TrackDuration()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, phaseGroup("Complete Protocol Runs", r.stats.FullProtocolRuns, r.stats.TrackDuration()))
	fmt.Fprintf(w, "\nWorkers: %d, Agents: %d\n", r.stats.WorkerCount(), r.stats.AgentCount())

	if r.hostHealth != nil {
		if sample, ok := r.hostHealth.Latest(); ok {
			fmt.Fprintf(w, "\nWorker Health: cpu=%.1f%% mem=%.1f%%\n", sample.CPUPercent, sample.MemUsedPct)
		}
	}
}

// JSON renders a machine-readable report shape, for -report-path outputs.
func (r *Report) JSON() ([]byte, error) {
	doc := map[string]any{
		"create_requests":        requestJSON(r.stats.CreateRequests),
		"update_requests":        requestJSON(r.stats.UpdateRequests),
		"create_executions":      phaseJSON(r.stats.CreatePhases),
		"update_executions":      phaseJSON(r.stats.UpdatePhases),
		"full_protocol_runs":     phaseJSON(r.stats.FullProtocolRuns),
		"track_duration_seconds": r.stats.TrackDuration(),
		"worker_count":           r.stats.WorkerCount(),
		"agent_count":            r.stats.AgentCount(),
		"results_path":           r.resultsPath,
	}
	if r.hostHealth != nil {
		if sample, ok := r.hostHealth.Latest(); ok {
			doc["worker_health"] = map[string]any{
				"cpu_percent":     sample.CPUPercent,
				"mem_used_percent": sample.MemUsedPct,
			}
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func requestGroup(title string, rs *stats.RequestStats, trackDuration float64) string {
	t := NewTable(title)
	t.Head("Bin", "Count", "Pct", "Avg", "Min", "Max", "Per Sec")
	addRequestRow(t, "ok", rs.Ok, trackDuration)
	addRequestRow(t, "retry", rs.Retry, trackDuration)
	addRequestRow(t, "fail", rs.Fail, trackDuration)
	addRequestRow(t, "all", rs.All, trackDuration)
	return t.String()
}

func addRequestRow(t *Table, label string, c *stats.StatCounter, trackDuration float64) {
	avg, avgOK := c.AverageDuration()
	short, shortOK := c.ShortestDuration()
	long, longOK := c.LongestDuration()
	pct, pctOK := c.Percentage()
	rate, rateOK := c.Rate(trackDuration)
	t.Row(label,
		fmt.Sprintf("%d", c.Count()),
		formatOptionalPercent(pct, pctOK),
		formatOptionalDuration(avg, avgOK),
		formatOptionalDuration(short, shortOK),
		formatOptionalDuration(long, longOK),
		formatOptionalRate(rate, rateOK),
	)
}

func phaseGroup(title string, ps *stats.ProtocolStats, trackDuration float64) string {
	t := NewTable(title)
	t.Head("Bin", "Count", "Pct", "Avg", "Min", "Max", "Per Sec")
	addRequestRow(t, "success", ps.Success, trackDuration)
	addRequestRow(t, "fail", ps.Fail, trackDuration)
	addRequestRow(t, "all", ps.All, trackDuration)
	out := t.String()
	if p50, p95, p99, ok := ps.All.Percentiles(); ok {
		out += fmt.Sprintf("\np50=%s p95=%s p99=%s",
			formatOptionalDuration(p50, true),
			formatOptionalDuration(p95, true),
			formatOptionalDuration(p99, true))
	}
	return out
}

func requestJSON(rs *stats.RequestStats) map[string]any {
	return map[string]any{
		"ok":    counterJSON(rs.Ok),
		"retry": counterJSON(rs.Retry),
		"fail":  counterJSON(rs.Fail),
		"all":   counterJSON(rs.All),
	}
}

func phaseJSON(ps *stats.ProtocolStats) map[string]any {
	out := map[string]any{
		"success": counterJSON(ps.Success),
		"fail":    counterJSON(ps.Fail),
		"all":     counterJSON(ps.All),
	}
	if p50, p95, p99, ok := ps.All.Percentiles(); ok {
		out["latency_p50_seconds"] = p50
		out["latency_p95_seconds"] = p95
		out["latency_p99_seconds"] = p99
	}
	return out
}

func counterJSON(c *stats.StatCounter) map[string]any {
	out := map[string]any{"count": c.Count()}
	if avg, ok := c.AverageDuration(); ok {
		out["average_duration_seconds"] = avg
	}
	if short, ok := c.ShortestDuration(); ok {
		out["shortest_duration_seconds"] = short
	}
	if long, ok := c.LongestDuration(); ok {
		out["longest_duration_seconds"] = long
	}
	if pct, ok := c.Percentage(); ok {
		out["percentage"] = pct
	}
	return out
}
