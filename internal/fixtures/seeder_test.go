package fixtures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySeederTracksAgentIDs(t *testing.T) {
	s := NewInMemorySeeder()
	err := s.SeedAgents(context.Background(), "postgresql://x", []string{"perf-test-agent-0", "perf-test-agent-1"})
	require.NoError(t, err)
	assert.True(t, s.Seeded["perf-test-agent-0"])
	assert.True(t, s.Seeded["perf-test-agent-1"])

	require.NoError(t, s.Teardown(context.Background(), "postgresql://x"))
	assert.Empty(t, s.Seeded)
}

type flakySeeder struct {
	failuresRemaining int
}

func (f *flakySeeder) SeedAgents(context.Context, string, []string) error {
	if f.failuresRemaining > 0 {
		f.failuresRemaining--
		return errors.New("database not ready yet")
	}
	return nil
}

func (f *flakySeeder) Teardown(context.Context, string) error { return nil }

func TestSeedWithRetryRecoversFromTransientFailures(t *testing.T) {
	seeder := &flakySeeder{failuresRemaining: 2}
	err := SeedWithRetry(context.Background(), seeder, "postgresql://x", []string{"perf-test-agent-0"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, seeder.failuresRemaining)
}

func TestSeedWithRetryGivesUpAfterMaxElapsed(t *testing.T) {
	seeder := &flakySeeder{failuresRemaining: 1000}
	err := SeedWithRetry(context.Background(), seeder, "postgresql://x", []string{"perf-test-agent-0"}, 50*time.Millisecond)
	assert.Error(t, err)
}
