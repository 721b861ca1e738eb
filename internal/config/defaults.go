// Package config holds the immutable run configuration for the push
// attestation load harness and the defaults used to fill in unset CLI flags,
// mirroring command_execution.py's parse_args/__init__ defaulting rules.
package config

import (
	"fmt"
	"net/url"
	"runtime"
	"strconv"

	"github.com/google/uuid"
)

// Default configuration constants.
const (
	// DefaultVerifierPortHTTP is used when the verifier URL carries no
	// explicit port and its scheme is "http".
	DefaultVerifierPortHTTP = 8880
	// DefaultVerifierPortHTTPS is used when the verifier URL carries no
	// explicit port and its scheme is "https".
	DefaultVerifierPortHTTPS = 8881

	// DefaultDBPortMySQL is used when the db URL carries no explicit port
	// and its scheme begins with "mysql".
	DefaultDBPortMySQL = 3306
	// DefaultDBPortPostgres is used when the db URL carries no explicit
	// port and its scheme does not begin with "mysql".
	DefaultDBPortPostgres = 5432

	// ConnectTimeoutSeconds bounds how long a single request attempt may
	// spend establishing a TCP/TLS connection to the verifier.
	ConnectTimeoutSeconds = 20
	// RequestTimeoutSeconds bounds the total wall-clock time of a single
	// request attempt, connection included.
	RequestTimeoutSeconds = 45

	// ResultsDir is the default directory the result serializer writes
	// timestamped JSONL files into.
	ResultsDir = "results"
)

// ExecutionConfig is the fully resolved, immutable configuration for one run
// of the harness, built once at startup from CLI flags (and an optional YAML
// scenario overlay) and then handed by value/pointer to every component.
type ExecutionConfig struct {
	RunID string

	VerifierURL string
	DBURL       string

	WorkerCount int
	AgentCount  int
	TaskCount   int // 0 means unbounded: agents run tasks until stopped.

	Verbose bool

	// TracingEnabled/MetricsEnabled/OTLPEndpoint configure the optional
	// OpenTelemetry exporters (see internal/otel). They default to off;
	// turning them on never changes load-generation behaviour, only
	// observability.
	TracingEnabled bool
	MetricsEnabled bool
	OTLPEndpoint   string

	// ReportPath, when non-empty, additionally writes the final rolled-up
	// report as JSON to this path (see internal/report).
	ReportPath string

	// HostHealthEnabled turns on the periodic CPU/memory sampler that feeds
	// the report's optional "Worker Health" section.
	HostHealthEnabled bool
}

// New resolves a verifier URL, db URL, and raw worker/agent/task count
// strings into an ExecutionConfig, applying the same defaulting and
// validation rules as command_execution.py.
func New(verifierURLRaw, dbURLRaw, workerCountRaw, agentCountRaw, taskCountRaw string, verbose bool) (*ExecutionConfig, error) {
	verifierURL, err := resolveVerifierURL(verifierURLRaw)
	if err != nil {
		return nil, err
	}

	dbURL, err := resolveDBURL(dbURLRaw, verifierURL)
	if err != nil {
		return nil, err
	}

	workerCount, err := parseNonNegativeInt("worker_count", workerCountRaw)
	if err != nil {
		return nil, err
	}
	agentCount, err := parseNonNegativeInt("agent_count", agentCountRaw)
	if err != nil {
		return nil, err
	}
	taskCount, err := parseNonNegativeInt("task_count", taskCountRaw)
	if err != nil {
		return nil, err
	}

	if workerCount == 0 {
		workerCount = runtime.NumCPU()
	}
	if agentCount == 0 {
		agentCount = workerCount
	}

	return &ExecutionConfig{
		RunID:       uuid.NewString(),
		VerifierURL: verifierURL,
		DBURL:       dbURL,
		WorkerCount: workerCount,
		AgentCount:  agentCount,
		TaskCount:   taskCount,
		Verbose:     verbose,
	}, nil
}

func resolveVerifierURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid verifier URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid verifier URL: missing host")
	}
	if u.Port() == "" {
		port := DefaultVerifierPortHTTPS
		if u.Scheme == "http" {
			port = DefaultVerifierPortHTTP
		}
		u.Host = fmt.Sprintf("%s:%d", u.Hostname(), port)
	}
	return u.String(), nil
}

func resolveDBURL(raw string, verifierURL string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid db URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "postgresql"
	}
	if u.Host == "" {
		vu, _ := url.Parse(verifierURL)
		port := DefaultDBPortPostgres
		if hasPrefix(u.Scheme, "mysql") {
			port = DefaultDBPortMySQL
		}
		host := ""
		if vu != nil {
			host = vu.Hostname()
		}
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	if hasPrefix(u.Scheme, "sqlite") {
		return "", fmt.Errorf("performance tests can only be run using a full database engine such as PostgreSQL or MySQL")
	}
	return u.String(), nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func parseNonNegativeInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("<%s> must be an integer", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("<%s> must be '0' or greater", name)
	}
	return n, nil
}
