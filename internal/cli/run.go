package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/buildinfo"
	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/config"
	"github.com/abz10m/mrctl/internal/git"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/jobspec"
	"github.com/abz10m/mrctl/internal/phase"
	"github.com/abz10m/mrctl/internal/resumelock"
	"github.com/abz10m/mrctl/internal/scheduler"
	"github.com/abz10m/mrctl/internal/tui"
	"github.com/abz10m/mrctl/internal/worker"
	"github.com/abz10m/mrctl/internal/workitem"
)

var runFlags struct {
	BaseRef     string
	MaxParallel int
	MaxRetries  int
	TUI         bool
}

var runCmd = &cobra.Command{
	Use:   "run <jobspec-file>",
	Short: "Run a MapReduce job from a job spec file",
	Long: `Parse a job spec TOML file, resolve its initial work items, and
drive it through Setup, Map, Reduce and Merge to completion, checkpointing
along the way so an interrupted run can be resumed with "mrctl resume".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.BaseRef, "base-ref", "", "Branch/ref map-phase worktrees are created from (default: current HEAD)")
	runCmd.Flags().IntVar(&runFlags.MaxParallel, "max-parallel", 0, "Override job.max_parallel from config")
	runCmd.Flags().IntVar(&runFlags.MaxRetries, "max-retries", 0, "Override job.max_retries from config")
	runCmd.Flags().BoolVar(&runFlags.TUI, "tui", false, "Show a live full-screen progress dashboard instead of plain log output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, specPath string) error {
	spec, err := loadJobSpec(specPath)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("run: invalid job spec: %w", err)
	}

	overrides := &config.CLIOverrides{}
	if cmd.Flags().Changed("max-parallel") {
		overrides.MaxParallel = &runFlags.MaxParallel
	}
	if cmd.Flags().Changed("max-retries") {
		overrides.MaxRetries = &runFlags.MaxRetries
	}
	resolved, _, err := loadAndResolveConfigWithOverrides(overrides)
	if err != nil {
		return err
	}

	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("run: resolving working directory: %w", err)
	}

	baseRef := runFlags.BaseRef
	if baseRef == "" {
		gc, err := git.NewGitClient(repoDir)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		branch, err := gc.CurrentBranch(cmd.Context())
		if err != nil {
			return fmt.Errorf("run: determining current branch: %w", err)
		}
		baseRef = branch
	}

	hash, err := job.WorkflowHash(spec)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	items, err := jobspec.ResolveInput(spec.Map.Input, repoDir)
	if err != nil {
		return fmt.Errorf("run: resolving map input: %w", err)
	}
	set, err := workitem.NewSet(items)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	jobID := fmt.Sprintf("%s-%s", spec.Name, uuid.NewString())
	j := job.New(jobID, hash, set)

	if flagDryRun {
		plan := scheduler.EstimatePlan(spec, items, resolved.Config.Job.MaxParallel, 0)
		printResourcePlan(cmd.OutOrStdout(), jobID, baseRef, resolved, plan)
		return nil
	}

	deps, err := buildRuntimeDeps(resolved, repoDir)
	if err != nil {
		return err
	}

	lock, err := resumelock.Acquire(deps.LockPath, jobID)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer lock.Release()

	return driveJob(cmd.Context(), deps, spec, j, baseRef, lock, runFlags.TUI)
}

// printResourcePlan renders a dry-run resource estimate instead of executing
// the job: item/worktree counts plus projected memory, disk, network and
// checkpoint-storage usage, so a job spec can be sanity-checked before it
// opens dozens of worktrees or agent-call steps.
func printResourcePlan(w io.Writer, jobID, baseRef string, resolved *config.ResolvedConfig, plan scheduler.ResourcePlan) {
	fmt.Fprintf(w, "job %q: %d map item(s) against base ref %q (max_parallel=%d, max_retries=%d)\n",
		jobID, plan.ItemCount, baseRef, resolved.Config.Job.MaxParallel, resolved.Config.Job.MaxRetries)
	fmt.Fprintf(w, "  worktrees:  %d\n", plan.WorktreeCount)
	fmt.Fprintf(w, "  memory:     %d MB total (%d MB/agent x %d peak concurrent)\n",
		plan.Memory.TotalMB, plan.Memory.PerAgentMB, plan.Memory.PeakConcurrentAgents)
	fmt.Fprintf(w, "  disk:       %d MB total (%d MB/worktree, %d MB temp)\n",
		plan.Disk.TotalMB, plan.Disk.PerWorktreeMB, plan.Disk.TempSpaceMB)
	fmt.Fprintf(w, "  network:    %d MB transfer, %d agent-call step(s), %d parallel op(s)\n",
		plan.Network.DataTransferMB, plan.Network.AttemptStepCalls, plan.Network.ParallelOperations)
	fmt.Fprintf(w, "  checkpoint: %d KB/checkpoint x %d checkpoint(s) = %d MB total\n",
		plan.Checkpoint.CheckpointSizeKB, plan.Checkpoint.CheckpointCount, plan.Checkpoint.TotalMB)
}

// loadJobSpec decodes a job spec TOML file into a jobspec.JobSpec.
func loadJobSpec(path string) (*jobspec.JobSpec, error) {
	var spec jobspec.JobSpec
	if _, err := toml.DecodeFile(path, &spec); err != nil {
		return nil, fmt.Errorf("run: loading job spec %q: %w", path, err)
	}
	return &spec, nil
}

// driveJob wires the fixed Setup/Map/Reduce/Merge graph and runs it to
// completion via the phase coordinator. Setup has no representation in a
// job spec, so it is left nil (the coordinator skips a nil runner).
// Reduce and Merge have no dedicated packages -- they are composed here as
// thin closures over the scheduler's worker and the workspace manager.
func driveJob(ctx context.Context, deps *runtimeDeps, spec *jobspec.JobSpec, j *job.Job, baseRef string, lock *resumelock.Handle, showTUI bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps.Scheduler.Steps = spec.Map.Steps
	deps.Scheduler.EnvSnapshot = os.Environ()
	deps.Scheduler.PerStepTimeout = deps.Config.Config.Job.PerStepTimeout.Duration
	deps.Scheduler.BaseRef = baseRef

	mapRunner := func(ctx context.Context, j *job.Job) (*job.PhaseResult, error) {
		return deps.Scheduler.RunMapPhase(ctx, j.Items, j.Variables)
	}

	reduceRunner := reduceRunnerFor(deps, spec)
	mergeRunner := mergeRunnerFor(deps, baseRef)

	events := make(chan phase.Event, 64)

	coord := phase.New(phase.Config{
		Map:              mapRunner,
		Reduce:           reduceRunner,
		Merge:            mergeRunner,
		CheckpointStore:  deps.CheckpointStore,
		TriggerConfig:    checkpoint.TriggerConfig{ItemInterval: deps.Config.Config.Checkpoint.ItemInterval, TimeInterval: deps.Config.Config.Checkpoint.TimeInterval.Duration},
		MaxCheckpoints:   deps.Config.Config.Retention.MaxCheckpoints,
		CheckpointMaxAge: deps.Config.Config.Retention.MaxAge.Duration,
		Lock:             lock,
		Events:           events,
		Logger:           deps.Logger,
	})
	deps.Scheduler.OnItemSettled = coord.NotifyItemSettled

	if !showTUI {
		go drainEvents(events, deps.Logger)
		return coord.Run(ctx, j)
	}

	return runWithDashboard(ctx, j, coord, events)
}

// runWithDashboard drives the coordinator in the background while a
// full-screen tui.App renders its progress in the foreground. The phase
// event channel is fanned out to the dashboard instead of the plain-text
// logger, and a ticker periodically snapshots j.Items into an
// tui.ItemProgressMsg so the sidebar's completion bar and breakdown stay
// current without the scheduler needing any dashboard-specific hook.
func runWithDashboard(ctx context.Context, j *job.Job, coord *phase.Coordinator, events chan phase.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboardEvents := make(chan phase.Event, 64)
	go func() {
		defer close(dashboardEvents)
		for ev := range events {
			select {
			case dashboardEvents <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	itemProgress := make(chan tui.ItemProgressMsg, 8)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		defer close(itemProgress)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := j.Items.Snapshot()
				msg := tui.ItemProgressMsg{
					Phase:        string(j.State.CurrentPhase),
					Pending:      len(snap.Pending),
					InProgress:   len(snap.InProgress),
					Completed:    len(snap.Completed),
					Failed:       len(snap.Failed),
					DeadLettered: len(snap.DeadLettered),
					Total:        snap.Total,
					Timestamp:    time.Now(),
				}
				select {
				case itemProgress <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	jobErrCh := make(chan error, 1)
	go func() {
		jobErrCh <- coord.Run(ctx, j)
	}()

	tuiErr := tui.RunTUI(tui.AppConfig{
		Version:      buildinfo.GetInfo().Version,
		JobName:      j.ID,
		Ctx:          ctx,
		Cancel:       cancel,
		PhaseEvents:  dashboardEvents,
		ItemProgress: itemProgress,
	})

	jobErr := <-jobErrCh
	cancel()
	<-progressDone

	if jobErr != nil {
		return jobErr
	}
	return tuiErr
}

// reduceRunnerFor builds a ReduceRunner that runs the job spec's reduce
// steps once, directly against the primary checkout (the reduce phase
// operates on the merged result of every map-phase item, not an isolated
// per-item worktree).
func reduceRunnerFor(deps *runtimeDeps, spec *jobspec.JobSpec) phase.ReduceRunner {
	if len(spec.Reduce.Steps) == 0 {
		return nil
	}
	return func(ctx context.Context, j *job.Job) (*job.PhaseResult, error) {
		result := deps.Worker.Run(ctx, worker.Input{
			Item:           workitem.Item{ID: "reduce"},
			WorkspacePath:  deps.RepoDir,
			Steps:          spec.Reduce.Steps,
			EnvSnapshot:    os.Environ(),
			PerStepTimeout: deps.Config.Config.Job.PerStepTimeout.Duration,
		}, j.Variables)

		if result.Status != workitem.ResultSuccess {
			return &job.PhaseResult{Success: false, ItemsProcessed: 1, ItemsFailed: 1}, fmt.Errorf("reduce: %s", result.Reason)
		}
		return &job.PhaseResult{Success: true, ItemsProcessed: 1, ItemsSuccessful: 1}, nil
	}
}

// mergeRunnerFor builds a MergeRunner that merges every completed item's
// branch back into targetBranch, in item_id order (spec §4.5's merge-order
// guarantee), then cleans up each workspace.
func mergeRunnerFor(deps *runtimeDeps, targetBranch string) phase.MergeRunner {
	return func(ctx context.Context, j *job.Job) (*job.PhaseResult, error) {
		ids := j.Items.CompletedItemIDsSorted()
		processed := 0
		for _, id := range ids {
			handle := deps.Workspaces.HandleFor(id)
			if err := deps.Workspaces.Merge(ctx, handle, targetBranch); err != nil {
				return &job.PhaseResult{Success: false, ItemsProcessed: processed, ItemsFailed: len(ids) - processed},
					fmt.Errorf("merge: item %q: %w", id, err)
			}
			if err := deps.Workspaces.Cleanup(ctx, handle, false); err != nil {
				deps.Logger.Warn("merge: cleanup failed", "item", id, "error", err)
			}
			processed++
		}
		return &job.PhaseResult{Success: true, ItemsProcessed: processed, ItemsSuccessful: processed}, nil
	}
}

func drainEvents(events <-chan phase.Event, logger *log.Logger) {
	for ev := range events {
		logger.Info(ev.Message, "type", ev.Type, "phase", ev.Phase)
	}
}
