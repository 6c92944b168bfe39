// Package scheduler implements the Map Scheduler (spec §4.2, C6): a
// bounded-concurrency dispatcher that pulls work items, launches one Agent
// Worker per item inside its own workspace, and routes failures through the
// DLQ/retry policy. Grounded on the teacher's
// internal/review/orchestrator.go ReviewOrchestrator.Run — the same
// errgroup.WithContext + SetLimit + mutex-guarded-aggregation fan-out shape,
// generalized from "N agents reviewing one diff" to "N workers draining one
// pending queue," with per-item errors never aborting the group.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abz10m/mrctl/internal/dlq"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/jobspec"
	"github.com/abz10m/mrctl/internal/loop"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/workitem"
	"github.com/abz10m/mrctl/internal/worker"
	"github.com/abz10m/mrctl/internal/workspace"
)

// Runner is the subset of *worker.Worker the scheduler depends on, narrowed
// to an interface so tests can substitute a fake without spawning real
// subprocesses.
type Runner interface {
	Run(ctx context.Context, in worker.Input, parent *variables.Store) workitem.AgentResult
}

// WorkspaceProvider is the subset of *workspace.Manager the scheduler needs.
type WorkspaceProvider interface {
	Create(ctx context.Context, itemID, baseRef string) (*workspace.Handle, error)
	Cleanup(ctx context.Context, h *workspace.Handle, force bool) error
}

// Scheduler drives one map phase to completion.
type Scheduler struct {
	Worker         Runner
	Workspaces     WorkspaceProvider
	DLQPolicy      *dlq.Policy
	DLQStore       *dlq.Store
	Concurrency    int
	Steps          []jobspec.StepTemplate
	EnvSnapshot    []string
	PerStepTimeout time.Duration
	BaseRef        string
	// OnItemSettled is called, outside any internal lock, each time an item
	// finishes processing — the coordinator uses this as a checkpoint
	// trigger evaluation point (spec §4.4's "safe boundaries").
	OnItemSettled func()
	// AgentCircuit tracks consecutive item failures across the whole map
	// phase and, once tripped, stops the scheduler from dispatching further
	// batches -- a misconfigured or down agent CLI should not be allowed to
	// burn through every remaining item before someone notices. Items not
	// yet dispatched stay Pending, so a later `mrctl resume` picks up where
	// the phase stopped. Nil disables the circuit breaker.
	AgentCircuit *loop.AgentErrorRecovery
	// ReprocessEligibleDefault is stamped onto every DLQ record this
	// scheduler writes, from config's dlq.reprocess_eligible_default.
	ReprocessEligibleDefault bool
}

// New returns a Scheduler; concurrency <= 0 is clamped to 1.
func New(w Runner, ws WorkspaceProvider, policy *dlq.Policy, store *dlq.Store, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		Worker:      w,
		Workspaces:  ws,
		DLQPolicy:   policy,
		DLQStore:    store,
		Concurrency: concurrency,
	}
}

// RunMapPhase drains items to exhaustion — every item ends up completed,
// dead-lettered, or (temporarily) back in pending after a retry decision —
// dispatching up to Concurrency workers at a time, per batch.
func (s *Scheduler) RunMapPhase(ctx context.Context, items *workitem.Set, vars *variables.Store) (*job.PhaseResult, error) {
	start := time.Now()
	var mu sync.Mutex
	var processed, successful, failedCount int
	var index int

	for {
		if ctx.Err() != nil {
			return &job.PhaseResult{
				Success:         false,
				Duration:        time.Since(start),
				ItemsProcessed:  processed,
				ItemsSuccessful: successful,
				ItemsFailed:     failedCount,
			}, ctx.Err()
		}

		mu.Lock()
		if items.Drained() {
			mu.Unlock()
			break
		}
		batch := items.PopPendingBatch(s.Concurrency)
		handles := make(map[string]workitem.AgentHandle, len(batch))
		for _, it := range batch {
			h := workitem.AgentHandle{AgentID: uuid.NewString(), StartedAt: time.Now().UTC()}
			handles[it.ID] = h
			items.MarkInProgress(it, h)
		}
		mu.Unlock()

		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Concurrency)

		for i, it := range batch {
			it := it
			itemIndex := index + i

			g.Go(func() error {
				s.processItem(gctx, it, itemIndex, handles[it.ID], items, vars, &mu, &processed, &successful, &failedCount)
				if s.OnItemSettled != nil {
					s.OnItemSettled()
				}
				// Per-item failures never abort the group — only a parent
				// context cancellation does (surfaced via gctx/g.Wait()).
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("scheduler: map phase: %w", err)
		}
		index += len(batch)

		if s.AgentCircuit != nil && s.AgentCircuit.ShouldAbort() {
			break
		}
	}

	return &job.PhaseResult{
		Success:         failedCount == 0,
		Duration:        time.Since(start),
		ItemsProcessed:  processed,
		ItemsSuccessful: successful,
		ItemsFailed:     failedCount,
	}, nil
}

func (s *Scheduler) processItem(
	ctx context.Context,
	it workitem.Item,
	itemIndex int,
	handle workitem.AgentHandle,
	items *workitem.Set,
	vars *variables.Store,
	mu *sync.Mutex,
	processed, successful, failedCount *int,
) {
	ws, err := s.Workspaces.Create(ctx, it.ID, s.BaseRef)
	if err != nil {
		s.settleFailure(it, fmt.Sprintf("workspace create: %s", err), items, mu, processed, failedCount)
		return
	}

	result := s.Worker.Run(ctx, worker.Input{
		Item:            it,
		WorkspacePath:   ws.Path,
		WorkspaceHandle: ws.ID,
		Steps:           s.Steps,
		EnvSnapshot:     s.EnvSnapshot,
		PerStepTimeout:  s.PerStepTimeout,
		ItemIndex:       itemIndex,
	}, vars)

	result.BranchName = ws.Branch

	mu.Lock()
	defer mu.Unlock()

	*processed++
	_ = handle

	if result.Status == workitem.ResultSuccess {
		_ = items.MarkCompleted(it.ID, result)
		*successful++
		if s.AgentCircuit != nil {
			s.AgentCircuit.RecordSuccess()
		}
		return
	}

	if s.AgentCircuit != nil {
		s.AgentCircuit.RecordError(fmt.Errorf("item %s: %s", it.ID, result.Reason))
	}

	_ = items.MarkFailed(it.ID, result.Reason, time.Now().UTC())
	rec, _ := items.FailureRecordFor(it.ID)
	attempts := 1
	if rec != nil {
		attempts = rec.Attempts
	}

	decision := s.DLQPolicy.Decide(attempts, result.Reason)
	if decision.Action == dlq.ActionRetry {
		_ = items.RequeueFailed(it.ID, it.Data)
		return
	}

	_ = items.DeadLetter(it.ID)
	*failedCount++
	if s.DLQStore != nil {
		failure := workitem.FailureRecord{ItemID: it.ID, LastError: result.Reason, LastAttemptAt: time.Now().UTC()}
		if rec != nil {
			failure = *rec
		}
		_ = s.DLQStore.Append(dlq.Record{
			Item:                 it,
			Failure:              failure,
			DeadLetteredAt:       time.Now().UTC(),
			ManualReviewRequired: decision.ManualReviewRequired,
			ReprocessEligible:    s.ReprocessEligibleDefault,
		})
	}
	_ = s.Workspaces.Cleanup(ctx, ws, true)
}

func (s *Scheduler) settleFailure(it workitem.Item, reason string, items *workitem.Set, mu *sync.Mutex, processed, failedCount *int) {
	mu.Lock()
	defer mu.Unlock()
	*processed++
	if s.AgentCircuit != nil {
		s.AgentCircuit.RecordError(fmt.Errorf("item %s: %s", it.ID, reason))
	}
	_ = items.MarkFailed(it.ID, reason, time.Now().UTC())
	rec, _ := items.FailureRecordFor(it.ID)
	attempts := 1
	if rec != nil {
		attempts = rec.Attempts
	}
	decision := s.DLQPolicy.Decide(attempts, reason)
	if decision.Action == dlq.ActionRetry {
		_ = items.RequeueFailed(it.ID, it.Data)
		return
	}
	_ = items.DeadLetter(it.ID)
	*failedCount++
}
