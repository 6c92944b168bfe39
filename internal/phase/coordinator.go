// Package phase implements the Phase Coordinator (spec §4.1, C9): the
// top-level driver that sequences Setup → Map → Reduce → Merge, persists
// checkpoints at safe boundaries, and owns the job's ExecutionState.
// Grounded on the teacher's internal/workflow/engine.go Engine.Run — the
// same non-blocking event-channel broadcast, charmbracelet/log logging, and
// post-step hook (there: checkpointing after a generic step; here: the same
// after each fixed phase) — adapted from a declarative step graph to the
// fixed four-phase MapReduce sequence the scheduler already enforces.
package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/resumelock"
)

// EventType identifies the lifecycle milestone a CoordinatorEvent reports,
// mirroring the teacher's WE* constants.
type EventType string

const (
	EventPhaseStarted   EventType = "phase_started"
	EventPhaseCompleted EventType = "phase_completed"
	EventPhaseFailed    EventType = "phase_failed"
	EventCheckpoint     EventType = "checkpoint"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventJobInterrupted EventType = "job_interrupted"
)

// Event is a structured message broadcast during coordination, consumed by
// the TUI and structured logging.
type Event struct {
	Type      EventType
	Phase     job.Phase
	Message   string
	Err       error
	Timestamp time.Time
}

// SetupRunner, MapRunner, ReduceRunner and MergeRunner are the per-phase
// collaborators the coordinator drives; each phase of the fixed graph is a
// narrow function type rather than an interface since no phase needs more
// than one method (the scheduler itself satisfies MapRunner's shape via a
// thin adapter at the call site).
type (
	SetupRunner  func(ctx context.Context, j *job.Job) (*job.PhaseResult, error)
	MapRunner    func(ctx context.Context, j *job.Job) (*job.PhaseResult, error)
	ReduceRunner func(ctx context.Context, j *job.Job) (*job.PhaseResult, error)
	MergeRunner  func(ctx context.Context, j *job.Job) (*job.PhaseResult, error)
)

// Config bundles the coordinator's collaborators and tuning knobs.
type Config struct {
	Setup  SetupRunner
	Map    MapRunner
	Reduce ReduceRunner
	Merge  MergeRunner

	CheckpointStore  *checkpoint.Store
	TriggerConfig    checkpoint.TriggerConfig
	MaxCheckpoints   int
	CheckpointMaxAge time.Duration

	Lock *resumelock.Handle

	// Events receives a non-blocking broadcast of every lifecycle
	// milestone; nil disables broadcasting. Sized by the caller.
	Events chan<- Event
	Logger *log.Logger
}

// Coordinator sequences a single job's phases to completion or failure.
type Coordinator struct {
	cfg Config

	lastCheckpointVersion int
	itemsSinceCheckpoint  int
	lastCheckpointAt      time.Time
	runningJob            *job.Job
}

// New returns a Coordinator ready to Run a job.
func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg, lastCheckpointAt: time.Now()}
}

// Run drives j through Setup → Map → Reduce → Merge in order, checkpointing
// at each phase transition (spec §4.4: "a phase transition is about to
// occur" is itself one of the trigger conditions) and returning the first
// phase error encountered. A failed phase leaves the job marked Failed; a
// phase cancelled through its context leaves it Interrupted at that phase.
func (c *Coordinator) Run(ctx context.Context, j *job.Job) error {
	c.runningJob = j
	phases := []struct {
		phase  job.Phase
		runner func(context.Context, *job.Job) (*job.PhaseResult, error)
	}{
		{job.PhaseSetup, c.cfg.Setup},
		{job.PhaseMap, c.cfg.Map},
		{job.PhaseReduce, c.cfg.Reduce},
		{job.PhaseMerge, c.cfg.Merge},
	}

	for _, p := range phases {
		if p.runner == nil {
			continue
		}
		if j.State.CurrentPhase != p.phase && phaseOrder(j.State.CurrentPhase) > phaseOrder(p.phase) {
			// Resuming past a phase already completed before the checkpoint.
			continue
		}

		j.State.CurrentPhase = p.phase
		j.State.PhaseStartTime = time.Now().UTC()
		c.emit(Event{Type: EventPhaseStarted, Phase: p.phase, Message: fmt.Sprintf("phase %q started", p.phase), Timestamp: time.Now()})
		c.log("phase started", "phase", p.phase)

		if err := c.checkpointAt(j, true, checkpoint.ReasonPhaseTransition); err != nil {
			c.log("checkpoint before phase failed", "phase", p.phase, "error", err)
		}

		result, err := p.runner(ctx, j)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Cancellation is an orderly shutdown, not a job failure per
				// se (spec §7): the phase stays where it was interrupted so
				// a later resume picks it back up, rather than landing on
				// PhaseFailed.
				j.State.Status = job.StatusInterrupted
				c.emit(Event{Type: EventPhaseFailed, Phase: p.phase, Message: fmt.Sprintf("phase %q cancelled", p.phase), Err: err, Timestamp: time.Now()})
				c.log("phase cancelled", "phase", p.phase, "error", err)
				c.emit(Event{Type: EventJobInterrupted, Phase: p.phase, Message: "job interrupted", Err: err, Timestamp: time.Now()})
				c.finalCheckpoint(j, checkpoint.ReasonBeforeShutdown)
				return fmt.Errorf("phase %s: %w", p.phase, err)
			}

			j.State.Status = job.StatusFailed
			j.State.CurrentPhase = job.PhaseFailed
			c.emit(Event{Type: EventPhaseFailed, Phase: p.phase, Message: fmt.Sprintf("phase %q failed", p.phase), Err: err, Timestamp: time.Now()})
			c.log("phase failed", "phase", p.phase, "error", err)
			c.emit(Event{Type: EventJobFailed, Phase: job.PhaseFailed, Message: "job failed", Err: err, Timestamp: time.Now()})
			c.finalCheckpoint(j, checkpoint.ReasonErrorRecovery)
			return fmt.Errorf("phase %s: %w", p.phase, err)
		}

		recordPhaseResult(j.State, p.phase, result)

		if !result.Success {
			j.State.Status = job.StatusFailed
			j.State.CurrentPhase = job.PhaseFailed
			c.emit(Event{Type: EventPhaseFailed, Phase: p.phase, Message: fmt.Sprintf("phase %q reported failure", p.phase), Timestamp: time.Now()})
			c.emit(Event{Type: EventJobFailed, Phase: job.PhaseFailed, Message: "job failed", Timestamp: time.Now()})
			c.finalCheckpoint(j, checkpoint.ReasonErrorRecovery)
			return fmt.Errorf("phase %s did not succeed (items_failed=%d)", p.phase, result.ItemsFailed)
		}

		c.emit(Event{Type: EventPhaseCompleted, Phase: p.phase, Message: fmt.Sprintf("phase %q completed", p.phase), Timestamp: time.Now()})
		c.log("phase completed", "phase", p.phase)
	}

	j.State.CurrentPhase = job.PhaseComplete
	j.State.Status = job.StatusCompleted
	c.emit(Event{Type: EventJobCompleted, Phase: job.PhaseComplete, Message: "job completed", Timestamp: time.Now()})
	c.finalCheckpoint(j, checkpoint.ReasonBatchComplete)
	return nil
}

// NotifyItemSettled is the callback the scheduler's OnItemSettled hook wires
// to (spec §4.4's "safe boundaries"): it bumps the item counter and writes a
// checkpoint if the item/time-interval trigger now fires. Only meaningful
// while a job is running (set by Run); a no-op otherwise.
func (c *Coordinator) NotifyItemSettled() {
	if c.runningJob == nil {
		return
	}
	c.itemsSinceCheckpoint++
	st := checkpoint.TriggerState{
		ItemsSinceLastCheckpoint:   c.itemsSinceCheckpoint,
		ElapsedSinceLastCheckpoint: time.Since(c.lastCheckpointAt),
	}
	if !checkpoint.ShouldTrigger(c.cfg.TriggerConfig, st) {
		return
	}
	if err := c.writeCheckpoint(c.runningJob, checkpoint.ReasonInterval); err != nil {
		c.log("interval checkpoint failed", "error", err)
	}
}

// checkpointAt evaluates the trigger and writes a checkpoint if due (or
// always, when force is true — used at phase boundaries per spec §4.4).
func (c *Coordinator) checkpointAt(j *job.Job, force bool, reason checkpoint.Reason) error {
	st := checkpoint.TriggerState{
		ItemsSinceLastCheckpoint:   c.itemsSinceCheckpoint,
		ElapsedSinceLastCheckpoint: time.Since(c.lastCheckpointAt),
		PhaseTransitionPending:     force,
	}
	if !force && !checkpoint.ShouldTrigger(c.cfg.TriggerConfig, st) {
		return nil
	}
	return c.writeCheckpoint(j, reason)
}

func (c *Coordinator) finalCheckpoint(j *job.Job, reason checkpoint.Reason) {
	if err := c.writeCheckpoint(j, reason); err != nil {
		c.log("final checkpoint failed", "error", err)
	}
}

func (c *Coordinator) writeCheckpoint(j *job.Job, reason checkpoint.Reason) error {
	if c.cfg.CheckpointStore == nil {
		return nil
	}
	cp, err := checkpoint.Prepare(j, fmt.Sprintf("%s-%d", j.ID, c.lastCheckpointVersion+1), c.lastCheckpointVersion, reason)
	if err != nil {
		return fmt.Errorf("coordinator: preparing checkpoint: %w", err)
	}
	if err := c.cfg.CheckpointStore.Write(cp, c.cfg.MaxCheckpoints, c.cfg.CheckpointMaxAge); err != nil {
		return fmt.Errorf("coordinator: writing checkpoint: %w", err)
	}
	c.lastCheckpointVersion = cp.Version
	c.itemsSinceCheckpoint = 0
	c.lastCheckpointAt = time.Now()
	c.emit(Event{Type: EventCheckpoint, Phase: j.State.CurrentPhase, Message: fmt.Sprintf("checkpoint %s written", cp.ID), Timestamp: time.Now()})
	return nil
}

func recordPhaseResult(st *job.ExecutionState, phase job.Phase, result *job.PhaseResult) {
	switch phase {
	case job.PhaseSetup:
		st.SetupResult = result
	case job.PhaseMap:
		st.MapResult = result
	case job.PhaseReduce:
		st.ReduceResult = result
	}
}

func phaseOrder(p job.Phase) int {
	switch p {
	case job.PhaseSetup:
		return 0
	case job.PhaseMap:
		return 1
	case job.PhaseReduce:
		return 2
	case job.PhaseMerge:
		return 3
	case job.PhaseComplete:
		return 4
	default:
		return -1
	}
}

// emit sends ev on Events using a non-blocking select, matching the
// teacher's Engine.emit so a slow consumer never stalls coordination.
func (c *Coordinator) emit(ev Event) {
	if c.cfg.Events == nil {
		return
	}
	select {
	case c.cfg.Events <- ev:
	default:
	}
}

func (c *Coordinator) log(msg string, kvs ...any) {
	if c.cfg.Logger == nil {
		return
	}
	c.cfg.Logger.Info(msg, kvs...)
}
