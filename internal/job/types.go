// Package job holds the MapReduce job data model shared by the phase
// coordinator, scheduler, checkpoint store, and DLQ: Job, ExecutionState,
// AgentResult, FailureRecord, and the sentinel error kinds packages use to
// classify failures.
package job

import (
	"time"

	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/workitem"
)

// Phase is one step of the fixed Setup → Map → Reduce → Merge graph.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseMap      Phase = "map"
	PhaseReduce   Phase = "reduce"
	PhaseMerge    Phase = "merge"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// Status is the job's overall run status.
type Status string

const (
	StatusRunning     Status = "running"
	StatusPaused      Status = "paused"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
	StatusCompleted   Status = "completed"
)

// PhaseResult is the contract every phase returns to the coordinator.
type PhaseResult struct {
	Success         bool          `json:"success"`
	Data            any           `json:"data,omitempty"`
	Duration        time.Duration `json:"duration"`
	ItemsProcessed  int           `json:"items_processed"`
	ItemsSuccessful int           `json:"items_successful"`
	ItemsFailed     int           `json:"items_failed"`
}

// ExecutionState is owned exclusively by the Phase Coordinator (C9).
type ExecutionState struct {
	CurrentPhase   Phase        `json:"current_phase"`
	PhaseStartTime time.Time    `json:"phase_start_time"`
	SetupResult    *PhaseResult `json:"setup_result,omitempty"`
	MapResult      *PhaseResult `json:"map_result,omitempty"`
	ReduceResult   *PhaseResult `json:"reduce_result,omitempty"`
	Status         Status       `json:"status"`
}

// NewExecutionState returns a fresh state positioned at Setup, Running.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		CurrentPhase:   PhaseSetup,
		PhaseStartTime: time.Now().UTC(),
		Status:         StatusRunning,
	}
}

// AgentRoster tracks every agent handle ever allocated for a job, keyed by
// agent_id, so the coordinator can report on active and historical workers.
// Reuses workitem.AgentHandle rather than a duplicate type — the same shape
// doubles as the in_progress entry's handle (§3).
type AgentRoster struct {
	Handles map[string]*workitem.AgentHandle `json:"handles"`
}

// NewAgentRoster returns an empty roster.
func NewAgentRoster() *AgentRoster {
	return &AgentRoster{Handles: make(map[string]*workitem.AgentHandle)}
}

// Job aggregates the per-run state the coordinator, scheduler, and
// checkpoint store all read and write through their respective ownership
// boundaries (see spec §3's "Ownership" rules — only this package's callers
// hold the locks; Job itself is a plain data aggregate).
type Job struct {
	ID           string          `json:"job_id"`
	WorkflowHash string          `json:"workflow_hash"`
	CreatedAt    time.Time       `json:"created_at"`
	State        *ExecutionState `json:"execution_state"`
	Items        *workitem.Set   `json:"work_item_set"`
	Roster       *AgentRoster    `json:"agent_roster"`
	Variables    *variables.Store `json:"variable_store"`
}

// New creates a Job in its initial Setup/Running state.
func New(id, workflowHash string, items *workitem.Set) *Job {
	return &Job{
		ID:           id,
		WorkflowHash: workflowHash,
		CreatedAt:    time.Now().UTC(),
		State:        NewExecutionState(),
		Items:        items,
		Roster:       NewAgentRoster(),
		Variables:    variables.NewStore(),
	}
}
