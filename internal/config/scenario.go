package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is an optional YAML overlay for an ExecutionConfig, letting an
// operator check a repeatable load scenario into source control instead of
// retyping CLI flags. Any zero-valued field is left untouched by Apply.
type Scenario struct {
	WorkerCount int    `yaml:"worker_count"`
	AgentCount  int    `yaml:"agent_count"`
	TaskCount   int    `yaml:"task_count"`
	Verbose     bool   `yaml:"verbose"`
	ReportPath  string `yaml:"report_path"`
}

// LoadScenario reads and parses a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Apply overlays the scenario's non-zero fields onto cfg.
func (s *Scenario) Apply(cfg *ExecutionConfig) {
	if s == nil {
		return
	}
	if s.WorkerCount != 0 {
		cfg.WorkerCount = s.WorkerCount
	}
	if s.AgentCount != 0 {
		cfg.AgentCount = s.AgentCount
	}
	if s.TaskCount != 0 {
		cfg.TaskCount = s.TaskCount
	}
	if s.Verbose {
		cfg.Verbose = true
	}
	if s.ReportPath != "" {
		cfg.ReportPath = s.ReportPath
	}
}
