// Command run_perf_tests drives a remote attestation verifier through its
// push-attestation HTTP endpoints at a configurable concurrency, reporting
// per-request and per-protocol-run timing statistics. Grounded on
// command_execution.py's CLI and main loop.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hpe-ssg/keylime-perf-harness/internal/config"
	"github.com/hpe-ssg/keylime-perf-harness/internal/events"
	"github.com/hpe-ssg/keylime-perf-harness/internal/fixtures"
	harnessotel "github.com/hpe-ssg/keylime-perf-harness/internal/otel"
	"github.com/hpe-ssg/keylime-perf-harness/internal/report"
	"github.com/hpe-ssg/keylime-perf-harness/internal/serializer"
	"github.com/hpe-ssg/keylime-perf-harness/internal/stats"
	"github.com/hpe-ssg/keylime-perf-harness/internal/taskmanager"
	"github.com/hpe-ssg/keylime-perf-harness/internal/worker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("run_perf_tests", flag.ContinueOnError)
	workers := fs.Int("w", 0, "worker count (0 = number of CPU cores)")
	agents := fs.Int("a", 0, "agent count (0 = worker count)")
	tasks := fs.Int("t", 0, "tasks per agent (0 = unlimited)")
	verbose := fs.Bool("v", false, "verbose flag (stored in the run config; no per-request lines are printed)")
	scenarioPath := fs.String("scenario", "", "optional YAML scenario file overlaying CLI defaults")
	reportPath := fs.String("report-path", "", "optional path to additionally write the report as JSON")
	tracing := fs.Bool("otel-tracing", false, "enable OpenTelemetry tracing")
	metricsEnabled := fs.Bool("otel-metrics", false, "enable OpenTelemetry metrics")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP collector endpoint (enables OTLP export when set)")
	hostHealth := fs.Bool("host-health", false, "sample and report host-wide CPU/memory usage")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: run_perf_tests <verifier_url> <db_url> [-w N] [-a N] [-t N] [-v]")
		return 1
	}
	verifierURLRaw, dbURLRaw := fs.Arg(0), fs.Arg(1)

	report.PrintDependencyInfo(os.Stdout)

	cfg, err := config.New(verifierURLRaw, dbURLRaw, itoa(*workers), itoa(*agents), itoa(*tasks), *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg.TracingEnabled = *tracing
	cfg.MetricsEnabled = *metricsEnabled
	cfg.OTLPEndpoint = *otlpEndpoint
	cfg.ReportPath = *reportPath
	cfg.HostHealthEnabled = *hostHealth

	if *scenarioPath != "" {
		scenario, err := config.LoadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading scenario file: %v\n", err)
			return 1
		}
		scenario.Apply(cfg)
	}

	// ctx governs only the admission loop (spec.md §5's graceful path: stop
	// admitting, let in-flight tasks conclude naturally). Workers detach
	// already-scheduled tasks onto their own background context, so this
	// signal never aborts a request or retry-after sleep already underway.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runHarness(ctx, cfg)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func runHarness(ctx context.Context, cfg *config.ExecutionConfig) int {
	logger := events.NewEventLogger(cfg.RunID, "")
	events.SetGlobalEventLogger(logger)

	exporter := harnessotel.ExporterNone
	switch {
	case cfg.OTLPEndpoint != "":
		exporter = harnessotel.ExporterOTLPGRPC
	case cfg.TracingEnabled:
		exporter = harnessotel.ExporterStdout
	}

	tracer, err := harnessotel.NewTracer(ctx, &harnessotel.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "keylime-perf-harness",
		ExporterType: exporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing tracer: %v\n", err)
		return 1
	}
	defer tracer.Shutdown(context.Background())
	harnessotel.SetGlobalTracer(tracer)

	metricsExporter := harnessotel.ExporterNone
	switch {
	case cfg.OTLPEndpoint != "":
		metricsExporter = harnessotel.ExporterOTLPGRPC
	case cfg.MetricsEnabled:
		metricsExporter = harnessotel.ExporterStdout
	}
	metrics, err := harnessotel.NewMetrics(ctx, &harnessotel.MetricsConfig{
		Enabled:      cfg.MetricsEnabled,
		ServiceName:  "keylime-perf-harness",
		ExporterType: metricsExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing metrics: %v\n", err)
		return 1
	}
	defer metrics.Shutdown(context.Background())
	harnessotel.SetGlobalMetrics(metrics)

	agentIDs := make([]string, cfg.AgentCount)
	for i := range agentIDs {
		agentIDs[i] = fmt.Sprintf("perf-test-agent-%d", i)
	}
	seeder := fixtures.NoopSeeder{}
	if err := fixtures.SeedWithRetry(ctx, seeder, cfg.DBURL, agentIDs, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Error: seeding fixtures: %v\n", err)
		return 1
	}
	defer seeder.Teardown(context.Background(), cfg.DBURL)

	ser, err := serializer.New("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	st := stats.NewGlobalStats()
	st.UpdateWorkerCount(cfg.WorkerCount)
	st.UpdateAgentCount(cfg.AgentCount)
	st.UpdateStartTime(time.Now())

	httpClient := &http.Client{
		Timeout: time.Duration(config.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			DialContext: (&net.Dialer{
				Timeout: time.Duration(config.ConnectTimeoutSeconds) * time.Second,
			}).DialContext,
		},
	}

	mgr := taskmanager.New(cfg.RunID, cfg.AgentCount, cfg.TaskCount, cfg.VerifierURL, httpClient, tracer, ser, st)

	var healthSampler *worker.HostHealthSampler
	if cfg.HostHealthEnabled {
		healthSampler = worker.NewHostHealthSampler(5 * time.Second)
		go healthSampler.Run(ctx)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		w := &worker.Worker{
			Index:      i,
			Manager:    mgr,
			Serializer: ser,
			Logger:     events.NewEventLogger(cfg.RunID, uuid.NewString()),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	<-ctx.Done()
	mgr.DisallowNewTasks()
	wg.Wait()
	_ = ser.WriteTasks()
	st.UpdateEndTime(time.Now())

	rep := report.New(st, healthSampler, ser.FilePath())
	rep.Print(os.Stdout)

	if cfg.ReportPath != "" {
		data, err := rep.JSON()
		if err == nil {
			_ = os.WriteFile(cfg.ReportPath, data, 0o644)
		}
	}

	return 0
}
