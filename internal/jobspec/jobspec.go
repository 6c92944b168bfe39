// Package jobspec holds the external interpolation boundary: the
// declarative shape a workflow definition file is parsed into before it
// becomes a job.Job. It mirrors the teacher's internal/workflow
// WorkflowDefinition/StepDefinition pair, trimmed to what the MapReduce
// core actually consumes (spec §3/§6).
package jobspec

import (
	"encoding/json"
	"fmt"
)

// CommandKind distinguishes a step's execution mode. The worker
// (internal/worker) dispatches on it: shell steps go to the command
// executor, attempt steps to an agent. The scheduler's dry-run estimate
// counts attempt steps; the coordinator treats a step as opaque.
type CommandKind string

const (
	CommandShell   CommandKind = "shell"
	CommandAttempt CommandKind = "attempt" // a named attempt/handler directive, not a raw command
)

// OnFailure names the handler a step falls back to when it soft-fails.
// An empty OnFailure means the step hard-fails immediately.
type OnFailure string

// StepTemplate is one entry of an agent's command sequence (spec §4.3). The
// worker interpolates CommandText against its local variable scope before
// running it. When CommandKind is CommandAttempt, CommandText is the prompt
// handed to the agent named by AgentName rather than a shell command line.
type StepTemplate struct {
	Name           string        `json:"name" toml:"name"`
	CommandKind    CommandKind   `json:"command_kind" toml:"command_kind"`
	CommandText    string        `json:"command_text" toml:"command_text"`
	AgentName      string        `json:"agent,omitempty" toml:"agent,omitempty"` // CommandAttempt only: which registered agent runs the prompt
	Timeout        string        `json:"timeout,omitempty" toml:"timeout,omitempty"` // parsed by the caller with config.Duration
	CommitRequired bool          `json:"commit_required,omitempty" toml:"commit_required,omitempty"`
	OnFailure      OnFailure     `json:"on_failure,omitempty" toml:"on_failure,omitempty"`
}

// InputSourceKind selects how a job's initial work items are discovered.
type InputSourceKind string

const (
	// InputGlob expands a doublestar glob pattern into one work item per
	// matched file, item_id set to the matched path.
	InputGlob InputSourceKind = "glob"
	// InputStaticJSON decodes the JSON array of items held in
	// InputSource.Items. That field is not decoded from TOML, so a job spec
	// loaded from a TOML file cannot supply static_json items.
	InputStaticJSON InputSourceKind = "static_json"
	// InputLineDelimited reads one work item per non-blank line of a file,
	// item_id set to the line's 1-based index.
	InputLineDelimited InputSourceKind = "line_delimited"
)

// InputSource describes where a job's initial work items come from.
// Exactly one of Pattern, Items, or Path is meaningful, selected by Kind.
type InputSource struct {
	Kind    InputSourceKind `json:"kind" toml:"kind"`
	Pattern string          `json:"pattern,omitempty" toml:"pattern,omitempty"` // InputGlob
	Items   json.RawMessage `json:"items,omitempty" toml:"-"`                  // InputStaticJSON
	Path    string          `json:"path,omitempty" toml:"path,omitempty"`      // InputLineDelimited
}

// MapPhaseSpec configures the map phase: the per-item step sequence and
// where items come from.
type MapPhaseSpec struct {
	Input    InputSource    `json:"input" toml:"input"`
	Steps    []StepTemplate `json:"steps" toml:"steps"`
}

// ReducePhaseSpec configures the reduce phase's own step sequence, run once
// after all map-phase items have settled.
type ReducePhaseSpec struct {
	Steps []StepTemplate `json:"steps" toml:"steps"`
}

// JobSpec is the parsed, normalized form of a workflow definition file: the
// unit job.WorkflowHash digests and job.New consumes.
type JobSpec struct {
	Name        string          `json:"name" toml:"name"`
	Description string          `json:"description,omitempty" toml:"description,omitempty"`
	Map         MapPhaseSpec    `json:"map" toml:"map"`
	Reduce      ReducePhaseSpec `json:"reduce,omitempty" toml:"reduce,omitempty"`
}

// Validate checks the minimal structural invariants a JobSpec must satisfy
// before it can be turned into work items: a name, at least one map step,
// and a recognized input source kind.
func (s *JobSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("jobspec: name is required")
	}
	if len(s.Map.Steps) == 0 {
		return fmt.Errorf("jobspec: map phase requires at least one step")
	}
	switch s.Map.Input.Kind {
	case InputGlob:
		if s.Map.Input.Pattern == "" {
			return fmt.Errorf("jobspec: glob input requires a pattern")
		}
	case InputStaticJSON:
		if len(s.Map.Input.Items) == 0 {
			return fmt.Errorf("jobspec: static_json input requires items")
		}
	case InputLineDelimited:
		if s.Map.Input.Path == "" {
			return fmt.Errorf("jobspec: line_delimited input requires a path")
		}
	default:
		return fmt.Errorf("jobspec: unknown input source kind %q", s.Map.Input.Kind)
	}
	for i, step := range s.Map.Steps {
		if step.Name == "" {
			return fmt.Errorf("jobspec: map step %d is missing a name", i)
		}
		if step.CommandText == "" {
			return fmt.Errorf("jobspec: map step %q is missing command_text", step.Name)
		}
		if step.CommandKind == CommandAttempt && step.AgentName == "" {
			return fmt.Errorf("jobspec: map step %q is an attempt step but names no agent", step.Name)
		}
	}
	return nil
}
