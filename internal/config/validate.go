package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the configuration works
	// but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "job.max_parallel"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any issue has warning severity.
func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	var warns []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			warns = append(warns, issue)
		}
	}
	return warns
}

// Validate checks the configuration for correctness and completeness. It
// performs structural validation, semantic validation, and unknown key
// detection.
//
// Parameters:
//   - cfg: the configuration to validate
//   - meta: TOML metadata from BurntSushi/toml (may be nil if no file was loaded)
//
// Returns validation results. Check HasErrors() to determine if the config is usable.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateJob(vr, &cfg.Job)
	validateCheckpoint(vr, &cfg.Checkpoint)
	validateRetention(vr, &cfg.Retention)
	validateWorkspace(vr, &cfg.Workspace)
	validateUnknownKeys(vr, meta)

	return vr
}

// validateJob checks the [job] section for errors and warnings.
func validateJob(vr *ValidationResult, j *JobConfig) {
	if j.MaxParallel < 1 {
		addError(vr, "job.max_parallel", "must be at least 1")
	}
	if j.MaxParallel > 256 {
		addWarning(vr, "job.max_parallel", fmt.Sprintf("%d is unusually high; consider whether this is intentional", j.MaxParallel))
	}
	if j.MaxRetries < 0 {
		addError(vr, "job.max_retries", "must not be negative")
	}
	if j.PerStepTimeout.Duration <= 0 {
		addError(vr, "job.per_step_timeout", "must be a positive duration")
	}
	if j.PerAgentTimeout.Duration <= 0 {
		addError(vr, "job.per_agent_timeout", "must be a positive duration")
	}
	if j.PerPhaseTimeout.Duration <= 0 {
		addError(vr, "job.per_phase_timeout", "must be a positive duration")
	}
	if j.PerPhaseTimeout.Duration > 0 && j.PerAgentTimeout.Duration > j.PerPhaseTimeout.Duration {
		addWarning(vr, "job.per_agent_timeout", "exceeds job.per_phase_timeout; the phase timeout will fire first")
	}
}

// validateCheckpoint checks the [checkpoint] section.
func validateCheckpoint(vr *ValidationResult, c *CheckpointConfig) {
	if c.ItemInterval < 0 {
		addError(vr, "checkpoint.item_interval", "must not be negative")
	}
	if c.ItemInterval == 0 && c.TimeInterval.Duration <= 0 {
		addWarning(vr, "checkpoint.item_interval", "both item_interval and time_interval are disabled; checkpoints will only be written at phase boundaries")
	}
	if c.TimeInterval.Duration < 0 {
		addError(vr, "checkpoint.time_interval", "must not be negative")
	}
}

// validateRetention checks the [retention] section.
func validateRetention(vr *ValidationResult, r *RetentionConfig) {
	if r.MaxCheckpoints < 0 {
		addError(vr, "retention.max_checkpoints", "must not be negative")
	}
	if r.MaxAge.Duration < 0 {
		addError(vr, "retention.max_age", "must not be negative")
	}
}

// validateWorkspace checks the [workspace] section.
func validateWorkspace(vr *ValidationResult, w *WorkspaceConfig) {
	if w.BaseDir == "" {
		addError(vr, "workspace.base_dir", "must not be empty")
	}
}

// validateUnknownKeys checks for TOML keys that did not map to any config struct field.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}

	for _, key := range meta.Undecoded() {
		path := strings.Join(key, ".")
		addWarning(vr, path, "unknown configuration key")
	}
}

// addError appends an error-severity issue to the validation result.
func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

// addWarning appends a warning-severity issue to the validation result.
func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
