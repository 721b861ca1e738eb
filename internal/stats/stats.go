// Package stats accumulates latency and outcome counters across every
// attestation task a run performs, grounded on stats.py's GlobalStats,
// RequestStats, ProtocolStats and StatCounter classes. The Python original
// backs each counter with a separate multiprocessing.Value (and therefore a
// separate OS-level lock per field); this port collapses each StatCounter's
// four fields under one mutex, which preserves the "update fields under a
// lock, then propagate to the linked total counter outside any lock" shape
// (avoiding nested locking) without needing four distinct locks per counter.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/hpe-ssg/keylime-perf-harness/internal/attestation"
)

// StatCounter tracks count, total/shortest/longest duration for one outcome
// bucket (e.g. "ok create requests"). The duration-derived properties
// (total, shortest, longest, average, percentiles) report (0, false) when no
// sample has been recorded yet, matching the Python original returning None
// rather than 0 for an empty counter.
type StatCounter struct {
	mu sync.Mutex

	count            int64
	totalDuration    float64
	shortestDuration float64
	longestDuration  float64

	// durations retains every recorded sample so percentile enrichment
	// (p50/p95/p99) can be computed on demand by sorting the collected
	// latencies, see Percentile.
	durations []float64

	// totalCounter, if set, is an aggregate counter this one contributes
	// to (e.g. RequestStats.all), used to compute Percentage and to
	// propagate every recorded sample upward.
	totalCounter *StatCounter
}

// NewStatCounter builds a counter, optionally linked to a parent/aggregate
// counter that every Record call is also propagated to.
func NewStatCounter(totalCounter *StatCounter) *StatCounter {
	return &StatCounter{totalCounter: totalCounter}
}

// Record adds one sample. present=false (an unmeasurable duration) is a
// no-op, matching StatCounter.record's `if duration is None: return`.
func (c *StatCounter) Record(durationSeconds float64, present bool) {
	if !present {
		return
	}

	c.mu.Lock()
	c.count++
	c.totalDuration += durationSeconds
	if c.count == 1 || durationSeconds < c.shortestDuration {
		c.shortestDuration = durationSeconds
	}
	if durationSeconds > c.longestDuration {
		c.longestDuration = durationSeconds
	}
	c.durations = append(c.durations, durationSeconds)
	c.mu.Unlock()

	// Propagated outside the lock above, exactly once per sample, so a
	// chain of linked counters never needs to hold two locks at once.
	if c.totalCounter != nil {
		c.totalCounter.Record(durationSeconds, true)
	}
}

// Count is the number of samples recorded.
func (c *StatCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// TotalDuration is the sum of every recorded sample.
func (c *StatCounter) TotalDuration() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return 0, false
	}
	return c.totalDuration, true
}

// ShortestDuration is the smallest recorded sample.
func (c *StatCounter) ShortestDuration() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return 0, false
	}
	return c.shortestDuration, true
}

// LongestDuration is the largest recorded sample.
func (c *StatCounter) LongestDuration() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return 0, false
	}
	return c.longestDuration, true
}

// AverageDuration is TotalDuration / Count.
func (c *StatCounter) AverageDuration() (float64, bool) {
	total, ok := c.TotalDuration()
	if !ok {
		return 0, false
	}
	return total / float64(c.Count()), true
}

// Percentile returns the p-th percentile (0 < p <= 100) of every duration
// recorded so far, or (0, false) if nothing has been recorded yet. It sorts
// the samples and returns the one at index floor(p/100 * n), clamped to the
// last sample; for the ten samples 1..10, p50 is 6 and p95/p99 are 10.
func (c *StatCounter) Percentile(p float64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.durations) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(c.durations))
	copy(sorted, c.durations)
	sort.Float64s(sorted)

	rank := (p / 100.0) * float64(len(sorted))
	index := int(rank)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index], true
}

// Percentiles is a convenience for the three rates the final report
// publishes: p50, p95, p99.
func (c *StatCounter) Percentiles() (p50, p95, p99 float64, ok bool) {
	p50, ok = c.Percentile(50)
	if !ok {
		return 0, 0, 0, false
	}
	p95, _ = c.Percentile(95)
	p99, _ = c.Percentile(99)
	return p50, p95, p99, true
}

// Percentage is this counter's share of its linked total counter's count.
// Unlinked counters (no total_counter) never report a percentage.
func (c *StatCounter) Percentage() (float64, bool) {
	if c.totalCounter == nil {
		return 0, false
	}
	totalCount := c.totalCounter.Count()
	if totalCount == 0 {
		return 0, false
	}
	return float64(c.Count()) / float64(totalCount), true
}

// Rate is Count / denominator (e.g. seconds, minutes, hours of track
// duration), used for throughput reporting. A zero denominator has no rate.
func (c *StatCounter) Rate(denominator float64) (float64, bool) {
	if denominator == 0 {
		return 0, false
	}
	return float64(c.Count()) / denominator, true
}

// RequestStats buckets individual HTTP attempts within one protocol phase
// into ok/retry/fail, each rolling up into All. Grounded on stats.py's
// RequestStats.
type RequestStats struct {
	All   *StatCounter
	Ok    *StatCounter
	Retry *StatCounter
	Fail  *StatCounter
}

func newRequestStats() *RequestStats {
	all := NewStatCounter(nil)
	return &RequestStats{
		All:   all,
		Ok:    NewStatCounter(all),
		Retry: NewStatCounter(all),
		Fail:  NewStatCounter(all),
	}
}

// record classifies one attempt and records its duration into the matching
// bucket, mirroring GlobalStats.record_task's per-attempt loop.
func (r *RequestStats) record(a *attestation.RequestAttempt) {
	duration, present := a.Duration()
	seconds := duration.Seconds()
	switch {
	case a.OK():
		r.Ok.Record(seconds, present)
	case a.RetryAfter() > 0:
		r.Retry.Record(seconds, present)
	default:
		r.Fail.Record(seconds, present)
	}
}

// ProtocolStats buckets a whole protocol phase (or the full two-phase run)
// into success/fail, rolling up into All. Grounded on stats.py's
// ProtocolStats.
type ProtocolStats struct {
	All     *StatCounter
	Success *StatCounter
	Fail    *StatCounter
}

func newProtocolStats() *ProtocolStats {
	all := NewStatCounter(nil)
	return &ProtocolStats{
		All:     all,
		Success: NewStatCounter(all),
		Fail:    NewStatCounter(all),
	}
}

// GlobalStats is the run-wide stats root: per-request and per-phase counters
// plus start/end time and worker/agent count tracking. Grounded on
// stats.py's GlobalStats.
type GlobalStats struct {
	CreateRequests  *RequestStats
	UpdateRequests  *RequestStats
	CreatePhases    *ProtocolStats
	UpdatePhases    *ProtocolStats
	FullProtocolRuns *ProtocolStats

	mu          sync.Mutex
	startTime   float64
	endTime     float64
	workerCount int64
	agentCount  int64
}

// NewGlobalStats builds an empty stats root.
func NewGlobalStats() *GlobalStats {
	return &GlobalStats{
		CreateRequests:   newRequestStats(),
		UpdateRequests:   newRequestStats(),
		CreatePhases:     newProtocolStats(),
		UpdatePhases:     newProtocolStats(),
		FullProtocolRuns: newProtocolStats(),
	}
}

// UpdateStartTime widens the tracked window to include t if it predates the
// current start (or no start has been recorded yet). A zero time is ignored.
func (g *GlobalStats) UpdateStartTime(t time.Time) {
	if t.IsZero() {
		return
	}
	seconds := float64(t.UnixNano()) / 1e9
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startTime == 0 || seconds < g.startTime {
		g.startTime = seconds
	}
}

// UpdateEndTime widens the tracked window to include t if it postdates the
// current end (or no end has been recorded yet). A zero time is ignored.
func (g *GlobalStats) UpdateEndTime(t time.Time) {
	if t.IsZero() {
		return
	}
	seconds := float64(t.UnixNano()) / 1e9
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.endTime == 0 || seconds > g.endTime {
		g.endTime = seconds
	}
}

// UpdateWorkerCount raises the tracked worker count high-water mark.
func (g *GlobalStats) UpdateWorkerCount(n int) {
	if n <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if int64(n) > g.workerCount {
		g.workerCount = int64(n)
	}
}

// UpdateAgentCount raises the tracked agent count high-water mark.
func (g *GlobalStats) UpdateAgentCount(n int) {
	if n <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if int64(n) > g.agentCount {
		g.agentCount = int64(n)
	}
}

// StartTime is the earliest time passed to UpdateStartTime (RecordTask passes
// each task's start time), in Unix seconds, or 0 if none has been.
func (g *GlobalStats) StartTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startTime
}

// EndTime is the latest time passed to UpdateEndTime (RecordTask passes each
// task's end time), in Unix seconds, or 0 if none has been.
func (g *GlobalStats) EndTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endTime
}

// TrackDuration is EndTime - StartTime, the wall-clock span the run covered.
func (g *GlobalStats) TrackDuration() float64 {
	return g.EndTime() - g.StartTime()
}

// WorkerCount is the highest value passed to UpdateWorkerCount; RecordTask
// passes (task.WorkerIndex + 1) for every recorded task.
func (g *GlobalStats) WorkerCount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.workerCount
}

// AgentCount is the highest value passed to UpdateAgentCount; RecordTask
// passes (task.AgentIndex + 1) for every recorded task.
func (g *GlobalStats) AgentCount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.agentCount
}

// RecordTask rolls a concluded task's attempts and outcomes into every
// counter, mirroring GlobalStats.record_task.
func (g *GlobalStats) RecordTask(task *attestation.Task) {
	g.UpdateStartTime(task.StartTime())
	g.UpdateEndTime(task.EndTime())
	g.UpdateWorkerCount(task.WorkerIndex + 1)
	g.UpdateAgentCount(task.AgentIndex + 1)

	createDuration := task.CreateDuration().Seconds()
	if task.CreateSuccessful() {
		g.CreatePhases.Success.Record(createDuration, true)
	} else {
		g.CreatePhases.Fail.Record(createDuration, true)
	}

	updateDuration := task.UpdateDuration().Seconds()
	if task.UpdateSuccessful() {
		g.UpdatePhases.Success.Record(updateDuration, true)
		g.FullProtocolRuns.Success.Record(task.TotalDuration().Seconds(), true)
	} else {
		g.UpdatePhases.Fail.Record(updateDuration, true)
		g.FullProtocolRuns.Fail.Record(task.TotalDuration().Seconds(), true)
	}

	for _, a := range task.CreateAttempts() {
		g.CreateRequests.record(a)
	}
	for _, a := range task.UpdateAttempts() {
		g.UpdateRequests.record(a)
	}
}
