package config

import "time"

// Config is the top-level configuration structure parsed from conductor YAML.
type Config struct {
	Project  Project  `yaml:"project"`
	Agent    Agent    `yaml:"agent"`
	Pipeline Pipeline `yaml:"pipeline"`
	Run      Run      `yaml:"run"`
}

// Project identifies the repository the backlog is delivered into.
type Project struct {
	Name         string `yaml:"name"`
	Repo         string `yaml:"repo"` // tracker project path, e.g. "group/widget-service"
	TargetBranch string `yaml:"target_branch"`
	BranchPrefix string `yaml:"branch_prefix"`
	PlanPath     string `yaml:"plan_path"`
	DBPath       string `yaml:"db_path"`
}

// Agent configures the coding agent invocation.
type Agent struct {
	Command string   `yaml:"command"`
	Model   string   `yaml:"model"`
	Flags   []string `yaml:"flags"`
	Timeout string   `yaml:"timeout"` // duration string, e.g. "30m"
}

// Pipeline configures CI verification polling.
type Pipeline struct {
	PollInterval     string `yaml:"poll_interval"`     // defaults to "30s"
	Budget           string `yaml:"budget"`            // defaults to "20m"
	TransientRetries int    `yaml:"transient_retries"` // defaults to 2
}

// Run configures orchestration behaviour.
type Run struct {
	MaxRetries int `yaml:"max_retries"` // per-stage attempt budget; defaults to 3
	Workers    int `yaml:"workers"`     // concurrent issues; defaults to 1
	// TrustAlreadyMerged accepts an agent's already-merged claim when it
	// cites a merge request, without re-checking the tracker. Defaults to
	// true; set false to confirm against the tracker first.
	TrustAlreadyMerged *bool `yaml:"trust_already_merged"`
}

// AgentTimeout returns the agent timeout as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return parseDuration(c.Agent.Timeout, 30*time.Minute)
}

// PollInterval returns the CI poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Pipeline.PollInterval, 30*time.Second)
}

// VerifyBudget returns the CI verification budget as a duration.
func (c *Config) VerifyBudget() time.Duration {
	return parseDuration(c.Pipeline.Budget, 20*time.Minute)
}

// TrustAlreadyMerged resolves the optional flag with its default of true.
func (c *Config) TrustAlreadyMerged() bool {
	if c.Run.TrustAlreadyMerged == nil {
		return true
	}
	return *c.Run.TrustAlreadyMerged
}

// parseDuration parses s, falling back to def when s is empty or invalid.
// Validation rejects malformed durations before this is reached.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
