// Package checkpoint implements the Checkpoint Store (spec §4.4, C2), the
// Checkpoint Trigger (C8, a pure predicate), and the Resume Planner (C10, a
// pure planning function). The store's atomic-write idiom is grounded on
// the teacher's internal/task/state.go StateManager (temp file + os.Rename,
// mutex-serialized); the trigger/planner's pure-function shape follows
// other_examples' quorum-ai CheckpointManager.GetResumePoint and
// re-cinq-wave's pipeline.ResumeManager.loadResumeState, adapted from a
// step-index pipeline to a phase+work-item-set model.
package checkpoint

import (
	"time"

	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/workitem"
)

// Reason identifies why a checkpoint was written (spec §3's reason enum),
// carried through so a later audit (or scenario S4's "exactly one
// BeforeShutdown checkpoint" assertion) can tell a routine interval
// checkpoint apart from one written on the way out the door.
type Reason string

const (
	ReasonInterval        Reason = "interval"
	ReasonPhaseTransition Reason = "phase_transition"
	ReasonBatchComplete   Reason = "batch_complete"
	ReasonBeforeShutdown  Reason = "before_shutdown"
	ReasonManual          Reason = "manual"
	ReasonErrorRecovery   Reason = "error_recovery"
)

// Checkpoint is a durable snapshot of a job's execution state, written
// atomically and versioned monotonically (spec §4.4 "Preparation").
type Checkpoint struct {
	ID            string            `json:"id"`
	Version       int               `json:"version"`
	JobID         string            `json:"job_id"`
	WorkflowHash  string            `json:"workflow_hash"`
	CreatedAt     time.Time         `json:"created_at"`
	Phase         job.Phase         `json:"phase"`
	Status        job.Status        `json:"status"`
	Reason        Reason            `json:"reason"`
	Items         workitem.Snapshot `json:"items"`
	Variables     map[string]any    `json:"variables"`
	IntegrityHash string            `json:"integrity_hash"`
}

// Prepare builds the next checkpoint from j's current state, per §4.4's
// preparation contract: bump version monotonically, refresh timestamps,
// move all in_progress items back to pending (mutating j.Items in place so
// they are retried on resume), and stamp an integrity hash over the
// canonical serialization. prevVersion is the version of the last written
// checkpoint (0 if none yet); reason records why this checkpoint is being
// written.
func Prepare(j *job.Job, id string, prevVersion int, reason Reason) (*Checkpoint, error) {
	j.Items.RequeueInProgress()

	cp := &Checkpoint{
		ID:           id,
		Version:      prevVersion + 1,
		JobID:        j.ID,
		WorkflowHash: j.WorkflowHash,
		CreatedAt:    time.Now().UTC(),
		Phase:        j.State.CurrentPhase,
		Status:       j.State.Status,
		Reason:       reason,
		Items:        j.Items.Snapshot(),
		Variables:    j.Variables.Snapshot(),
	}

	hash, err := integrityHash(cp)
	if err != nil {
		return nil, err
	}
	cp.IntegrityHash = hash
	return cp, nil
}

// VerifyIntegrity recomputes cp's integrity hash over its own content and
// compares it against the stored one, catching the "checkpoint hash
// mismatch" corruption case spec §7 calls out.
func VerifyIntegrity(cp *Checkpoint) error {
	stored := cp.IntegrityHash
	cp.IntegrityHash = ""
	recomputed, err := integrityHash(cp)
	cp.IntegrityHash = stored
	if err != nil {
		return err
	}
	if recomputed != stored {
		return job.ErrCorruption
	}
	return nil
}

func integrityHash(cp *Checkpoint) (string, error) {
	return job.WorkflowHash(cp)
}
