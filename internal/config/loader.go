package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a conductor configuration from the given YAML file
// path. After parsing, it fills in defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a conductor config in standard locations and
// loads the first one found. Search order: ./conductor.yaml,
// ~/.conductor/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"conductor.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".conductor", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no conductor config found (searched: %v)", candidates)
}

// applyDefaults fills unset fields with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Project.TargetBranch == "" {
		cfg.Project.TargetBranch = "main"
	}
	if cfg.Project.BranchPrefix == "" {
		cfg.Project.BranchPrefix = "issue"
	}
	if cfg.Project.PlanPath == "" {
		cfg.Project.PlanPath = "conductor-plan.json"
	}
	if cfg.Agent.Command == "" {
		cfg.Agent.Command = "claude"
	}
	if cfg.Agent.Timeout == "" {
		cfg.Agent.Timeout = "30m"
	}
	if cfg.Pipeline.PollInterval == "" {
		cfg.Pipeline.PollInterval = "30s"
	}
	if cfg.Pipeline.Budget == "" {
		cfg.Pipeline.Budget = "20m"
	}
	if cfg.Pipeline.TransientRetries == 0 {
		cfg.Pipeline.TransientRetries = 2
	}
	if cfg.Run.MaxRetries == 0 {
		cfg.Run.MaxRetries = 3
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = 1
	}
}
