package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatCounterEmptyReportsNoSamples(t *testing.T) {
	c := NewStatCounter(nil)
	assert.Equal(t, int64(0), c.Count())
	_, ok := c.AverageDuration()
	assert.False(t, ok)
	_, ok = c.ShortestDuration()
	assert.False(t, ok)
	_, ok = c.LongestDuration()
	assert.False(t, ok)
	_, ok = c.Percentile(50)
	assert.False(t, ok)
}

func TestStatCounterRecordIgnoresAbsentDuration(t *testing.T) {
	c := NewStatCounter(nil)
	c.Record(5, false)
	assert.Equal(t, int64(0), c.Count())
}

// TestStatCounterArithmeticInvariant exercises I-S1: average = total/count,
// shortest <= average <= longest, and a linked total's count is at least the
// sum of its children's counts.
func TestStatCounterArithmeticInvariant(t *testing.T) {
	total := NewStatCounter(nil)
	ok := NewStatCounter(total)
	fail := NewStatCounter(total)

	ok.Record(1.0, true)
	ok.Record(3.0, true)
	fail.Record(2.0, true)

	avg, present := ok.AverageDuration()
	require.True(t, present)
	assert.InDelta(t, 2.0, avg, 1e-9)

	short, _ := ok.ShortestDuration()
	long, _ := ok.LongestDuration()
	assert.LessOrEqual(t, short, avg)
	assert.LessOrEqual(t, avg, long)

	assert.Equal(t, int64(3), total.Count())
	assert.GreaterOrEqual(t, total.Count(), ok.Count()+fail.Count())

	pct, present := ok.Percentage()
	require.True(t, present)
	assert.InDelta(t, 2.0/3.0, pct, 1e-9)
}

func TestStatCounterConcurrentRecordIsRaceFree(t *testing.T) {
	c := NewStatCounter(nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Record(float64(n), true)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(200), c.Count())
}

func TestStatCounterPercentilesSortedIndex(t *testing.T) {
	c := NewStatCounter(nil)
	for _, d := range []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10} {
		c.Record(d, true)
	}
	p50, p95, p99, ok := c.Percentiles()
	require.True(t, ok)
	assert.Equal(t, 6.0, p50)
	assert.Equal(t, 10.0, p95)
	assert.Equal(t, 10.0, p99)
}

func TestRequestStatsClassifiesIntoBuckets(t *testing.T) {
	rs := newRequestStats()
	rs.Ok.Record(0.1, true)
	rs.Retry.Record(0.2, true)
	rs.Fail.Record(0.3, true)

	assert.Equal(t, int64(1), rs.Ok.Count())
	assert.Equal(t, int64(1), rs.Retry.Count())
	assert.Equal(t, int64(1), rs.Fail.Count())
	assert.Equal(t, int64(3), rs.All.Count())
}

func TestGlobalStatsTrackDurationAndCounts(t *testing.T) {
	g := NewGlobalStats()
	g.UpdateWorkerCount(2)
	g.UpdateWorkerCount(1)
	g.UpdateAgentCount(5)
	assert.Equal(t, int64(2), g.WorkerCount())
	assert.Equal(t, int64(5), g.AgentCount())
}
