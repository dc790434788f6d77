package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors. It returns
// a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Project.Name == "" {
		errs = append(errs, ValidationError{Field: "project.name", Message: "is required"})
	}
	if cfg.Project.Repo == "" {
		errs = append(errs, ValidationError{Field: "project.repo", Message: "is required"})
	}

	for _, d := range []struct {
		field string
		value string
	}{
		{"agent.timeout", cfg.Agent.Timeout},
		{"pipeline.poll_interval", cfg.Pipeline.PollInterval},
		{"pipeline.budget", cfg.Pipeline.Budget},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration %q", d.value),
			})
		}
	}

	if cfg.Pipeline.TransientRetries < 0 {
		errs = append(errs, ValidationError{Field: "pipeline.transient_retries", Message: "must not be negative"})
	}
	if cfg.Run.MaxRetries < 1 {
		errs = append(errs, ValidationError{Field: "run.max_retries", Message: "must be at least 1"})
	}
	if cfg.Run.Workers < 1 {
		errs = append(errs, ValidationError{Field: "run.workers", Message: "must be at least 1"})
	}

	return errs
}
