// Package fixtures defines the seam between the load harness and the
// out-of-scope collaborator that seeds verifier policies and agent rows
// directly into its database before a run starts (spec.md §1's "direct-to-
// database fixture seeding"). Grounded on db.py/create_agent.py/
// create_policy.py: this package captures their shape (idempotent set-up,
// best-effort tear-down, agent ids matching the perf-test-agent-{index}
// convention) without executing real database I/O, which spec.md §1
// explicitly excludes from the core.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DBSeeder is the contract the CLI's lifecycle (set up -> run -> tear down)
// calls through. A real implementation would open dbURL and issue the
// policy/refstate/agent INSERT statements db.py performs; that execution is
// out of scope here (see DESIGN.md), so only the interface and a no-op/
// in-memory stand-in are provided.
type DBSeeder interface {
	// SeedAgents idempotently ensures rows exist for every agent id the
	// harness is about to drive, matching the "perf-test-agent-{index}"
	// convention spec.md §6 requires.
	SeedAgents(ctx context.Context, dbURL string, agentIDs []string) error

	// Teardown best-effort removes whatever SeedAgents created. Errors are
	// not fatal to the run's reported results; the CLI discards them.
	Teardown(ctx context.Context, dbURL string) error
}

// NoopSeeder implements DBSeeder by doing nothing, for runs against a
// verifier whose database fixtures were already seeded by an external
// collaborator (e.g. a CI pipeline step that calls create_policy.py
// directly).
type NoopSeeder struct{}

func (NoopSeeder) SeedAgents(context.Context, string, []string) error { return nil }
func (NoopSeeder) Teardown(context.Context, string) error             { return nil }

// InMemorySeeder is a stand-in DBSeeder that tracks which agent ids it was
// asked to seed, useful for tests and for dry-run invocations of the CLI
// that want to exercise the full lifecycle without a real database.
type InMemorySeeder struct {
	Seeded map[string]bool
}

// NewInMemorySeeder builds an empty InMemorySeeder.
func NewInMemorySeeder() *InMemorySeeder {
	return &InMemorySeeder{Seeded: make(map[string]bool)}
}

func (s *InMemorySeeder) SeedAgents(_ context.Context, _ string, agentIDs []string) error {
	for _, id := range agentIDs {
		s.Seeded[id] = true
	}
	return nil
}

func (s *InMemorySeeder) Teardown(context.Context, string) error {
	s.Seeded = make(map[string]bool)
	return nil
}

// SeedWithRetry calls seeder.SeedAgents with an exponential backoff retry,
// for the common case where the verifier's database may still be coming up
// when the harness starts (a fresh docker-compose stack, a migration still
// running). Grounded on the teacher repo's use of cenkalti/backoff for
// retryable I/O paths; this is the one component in this codebase that
// exercises it, since the attestation retry-after loop itself is
// server-directed rather than exponential (see DESIGN.md).
func SeedWithRetry(ctx context.Context, seeder DBSeeder, dbURL string, agentIDs []string, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	bo.InitialInterval = 250 * time.Millisecond

	op := func() error {
		if err := seeder.SeedAgents(ctx, dbURL, agentIDs); err != nil {
			return fmt.Errorf("fixtures: seed agents: %w", err)
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
