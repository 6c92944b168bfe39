package checkpoint

import (
	"fmt"

	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/workitem"
)

// ResumePlan is the outcome of a successful resume plan: a rebuilt Job ready
// to hand to the coordinator. PlanResume reports a refusal as an error.
type ResumePlan struct {
	Job     *job.Job
	FromID  string
	Version int
}

// PlanResume validates cp and, if valid, rebuilds a Job from it. Mirrors
// quorum-ai's CheckpointManager.GetResumePoint (pick the most recent valid
// checkpoint) and re-cinq-wave's ResumeManager.ValidateResumePoint (refuse
// on mismatch unless forced), adapted from their step-index pipeline model
// to this phase + work-item-set model.
//
// currentWorkflowHash is the hash of the workflow definition the caller is
// about to run; a mismatch against cp.WorkflowHash means the job spec
// changed since the checkpoint was written. force bypasses that refusal
// (the caller accepts the risk of resuming against a changed definition).
// dlqAttempts (item_id -> recorded attempt count) reconciles the restored
// failed partition against the DLQ store per spec §8 property 6, so an
// item that failed again after an earlier reprocess resumes counting from
// the higher of the two sources rather than regressing; pass nil when no
// DLQ reconciliation is available (e.g. tests constructing a bare Set).
func PlanResume(cp *Checkpoint, currentWorkflowHash string, force bool, dlqAttempts map[string]int) (*ResumePlan, error) {
	if cp == nil {
		return nil, fmt.Errorf("checkpoint: no checkpoint to resume from")
	}

	if err := VerifyIntegrity(cp); err != nil {
		return nil, err
	}

	if cp.WorkflowHash != currentWorkflowHash && !force {
		return nil, fmt.Errorf("%w: checkpoint workflow_hash %q does not match current %q",
			job.ErrCorruption, cp.WorkflowHash, currentWorkflowHash)
	}

	items := workitem.FromSnapshot(cp.Items)
	if err := items.CheckInvariant(); err != nil {
		return nil, fmt.Errorf("checkpoint: restored item set failed invariant check: %w", err)
	}
	items.ReconcileFailureAttempts(dlqAttempts)

	j := &job.Job{
		ID:           cp.JobID,
		WorkflowHash: cp.WorkflowHash,
		CreatedAt:    cp.CreatedAt,
		State: &job.ExecutionState{
			CurrentPhase: cp.Phase,
			Status:       job.StatusRunning,
		},
		Items:     items,
		Roster:    job.NewAgentRoster(),
		Variables: variables.NewStore(),
	}
	j.Variables.Restore(cp.Variables)

	return &ResumePlan{Job: j, FromID: cp.ID, Version: cp.Version}, nil
}
