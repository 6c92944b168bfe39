// Package config loads and resolves mrctl's job configuration from
// mrctl.toml, environment variables, and CLI overrides, in that priority
// order (CLI highest).
package config

import (
	"fmt"
	"time"

	"github.com/abz10m/mrctl/internal/agent"
)

// Duration wraps time.Duration so it can be decoded from a TOML string such
// as "30s" or "5m" via encoding.TextUnmarshaler, since BurntSushi/toml has no
// native duration type.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: parsing duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the top-level configuration structure mapping to mrctl.toml.
// Field names and defaults track spec.md §6 exactly.
type Config struct {
	Job        JobConfig        `toml:"job"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	DLQ        DLQConfig        `toml:"dlq"`
	Retention  RetentionConfig  `toml:"retention"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	// Agents maps an agent name ("claude", "codex", "gemini") to its
	// [agents.<name>] settings. There is no sensible single-value CLI/env
	// override for a keyed map, so agents are file-configured only.
	Agents map[string]agent.AgentConfig `toml:"agents"`
}

// JobConfig maps to the [job] section.
type JobConfig struct {
	MaxParallel     int      `toml:"max_parallel"`
	MaxRetries      int      `toml:"max_retries"`
	PerStepTimeout  Duration `toml:"per_step_timeout"`
	PerAgentTimeout Duration `toml:"per_agent_timeout"`
	PerPhaseTimeout Duration `toml:"per_phase_timeout"`
	// MaxConsecutiveAgentErrors stops the map scheduler from dispatching
	// further batches once this many items in a row have failed, rather
	// than burning through every remaining item against a broken agent.
	// Zero disables the circuit breaker.
	MaxConsecutiveAgentErrors int `toml:"max_consecutive_agent_errors"`
}

// CheckpointConfig maps to the [checkpoint] section.
type CheckpointConfig struct {
	ItemInterval int      `toml:"item_interval"`
	TimeInterval Duration `toml:"time_interval"`
}

// DLQConfig maps to the [dlq] section.
type DLQConfig struct {
	ReprocessEligibleDefault bool `toml:"reprocess_eligible_default"`
}

// RetentionConfig maps to the [retention] section.
type RetentionConfig struct {
	MaxCheckpoints int      `toml:"max_checkpoints"`
	MaxAge         Duration `toml:"max_age"`
}

// WorkspaceConfig maps to the [workspace] section.
type WorkspaceConfig struct {
	BaseDir string `toml:"base_dir"`
}
