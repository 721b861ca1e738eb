package agentpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedLimit int

func (f fixedLimit) TasksPerAgent() int { return int(f) }

func TestAgentIDMatchesFleetConvention(t *testing.T) {
	a := New(fixedLimit(0), 7)
	assert.Equal(t, "perf-test-agent-7", a.ID())
}

func TestTryAcquireIsSingleFlight(t *testing.T) {
	a := New(fixedLimit(0), 0)

	idx, ok := a.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.True(t, a.Busy())

	_, ok = a.TryAcquire()
	assert.False(t, ok, "a busy agent must refuse a second concurrent task")

	a.Conclude()
	assert.False(t, a.Busy())

	idx, ok = a.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, 1, idx, "task index must advance across acquisitions")
}

func TestFinishedRespectsUnboundedLimit(t *testing.T) {
	unbounded := New(fixedLimit(0), 0)
	for i := 0; i < 100; i++ {
		idx, ok := unbounded.TryAcquire()
		assert.True(t, ok)
		assert.Equal(t, i, idx)
		unbounded.Conclude()
	}
	assert.False(t, unbounded.Finished())
}

func TestFinishedStopsAtLimit(t *testing.T) {
	bounded := New(fixedLimit(2), 0)
	_, _ = bounded.TryAcquire()
	bounded.Conclude()
	assert.False(t, bounded.Finished())
	_, _ = bounded.TryAcquire()
	bounded.Conclude()
	assert.True(t, bounded.Finished())
	_, ok := bounded.TryAcquire()
	assert.False(t, ok)
}

func TestTryAcquireUnderConcurrencyNeverDoubleBooks(t *testing.T) {
	a := New(fixedLimit(0), 0)
	var wg sync.WaitGroup
	var acquired atomicCounter
	var holders atomic.Int32
	var doubleBooked atomic.Bool

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := a.TryAcquire(); ok {
				if holders.Add(1) > 1 {
					doubleBooked.Store(true)
				}
				acquired.add(1)
				holders.Add(-1)
				a.Conclude()
			}
		}()
	}
	wg.Wait()
	// Every acquisition that succeeded must have been strictly serialized
	// with Conclude in between: no two goroutines ever hold the agent at once.
	assert.False(t, doubleBooked.Load(), "two goroutines held the agent at the same time")
	assert.LessOrEqual(t, acquired.value(), int64(64))
}

type atomicCounter struct {
	mu sync.Mutex
	n  int64
}

func (c *atomicCounter) add(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += d
}

func (c *atomicCounter) value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
