package worker

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostHealthSample is one point-in-time reading of the harness process's
// host resource usage, folded into the final report's optional "Worker
// Health" section. Grounded on cmd/agent/main.go's collectMetrics, scaled
// down to the two signals a load-generator operator cares about: is the
// harness itself the bottleneck.
type HostHealthSample struct {
	CPUPercent float64
	MemUsedPct float64
}

// HostHealthSampler periodically samples process-host CPU and memory
// pressure on a fixed interval and keeps the latest reading available to
// the final report, without blocking any task's suspension points.
type HostHealthSampler struct {
	interval time.Duration

	mu      sync.RWMutex
	latest  HostHealthSample
	samples int
}

// NewHostHealthSampler builds a sampler that refreshes every interval.
func NewHostHealthSampler(interval time.Duration) *HostHealthSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HostHealthSampler{interval: interval}
}

// Run samples on a ticker until ctx is cancelled. Intended to be started in
// its own goroutine by the CLI entrypoint, independent of any one worker's
// event loop.
func (s *HostHealthSampler) Run(ctx context.Context) {
	s.sample()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *HostHealthSampler) sample() {
	var sample HostHealthSample

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		sample.MemUsedPct = vm.UsedPercent
	}

	s.mu.Lock()
	s.latest = sample
	s.samples++
	s.mu.Unlock()
}

// Latest returns the most recent sample and whether any sample has been
// taken yet.
func (s *HostHealthSampler) Latest() (HostHealthSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.samples > 0
}
