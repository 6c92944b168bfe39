package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/config"
	"github.com/abz10m/mrctl/internal/dlq"
	"github.com/abz10m/mrctl/internal/git"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/logging"
	"github.com/abz10m/mrctl/internal/resumelock"
)

// resumeFlags holds parsed flag values for the resume command.
type resumeFlags struct {
	// List shows every retained checkpoint in a table (--list).
	List bool
	// DryRun shows what would be resumed without executing (--dry-run).
	DryRun bool
	// CleanAll deletes every checkpoint (--clean-all).
	CleanAll bool
	// Force skips the confirmation prompt for --clean-all, and bypasses the
	// workflow-hash mismatch refusal when resuming against a changed job spec.
	Force bool
	// BaseRef overrides the branch/ref map-phase worktrees are created from.
	BaseRef string
	// MaxParallel overrides job.max_parallel from config.
	MaxParallel int
	// MaxRetries overrides job.max_retries from config.
	MaxRetries int
	// TUI shows a live full-screen progress dashboard instead of plain
	// log output while the resumed job runs.
	TUI bool
}

var resumeCmd = &cobra.Command{
	Use:   "resume [jobspec-file]",
	Short: "Resume an interrupted MapReduce job from its last checkpoint",
	Long: `Resume a job from the most recently written checkpoint under
.mrctl/checkpoints, re-driving it through whichever of Map, Reduce and
Merge it had not yet completed.

The job spec file is required except when --list or --clean-all is given:
it is re-parsed to recover the map/reduce step definitions, which are not
themselves part of a checkpoint, and its workflow hash is compared against
the checkpoint's to detect a job spec that changed since the interruption.`,
	Example: `  # List every retained checkpoint
  mrctl resume --list

  # Resume the latest checkpoint
  mrctl resume job.toml

  # Show what would be resumed without executing
  mrctl resume job.toml --dry-run

  # Resume even though the job spec changed since the checkpoint was written
  mrctl resume job.toml --force

  # Delete every checkpoint (prompts for confirmation)
  mrctl resume --clean-all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResume(cmd, args)
	},
}

var resumeFlagsVar resumeFlags

func init() {
	resumeCmd.Flags().BoolVar(&resumeFlagsVar.List, "list", false, "List every retained checkpoint")
	resumeCmd.Flags().BoolVar(&resumeFlagsVar.DryRun, "dry-run", false, "Show what would be resumed without executing")
	resumeCmd.Flags().BoolVar(&resumeFlagsVar.CleanAll, "clean-all", false, "Delete every retained checkpoint")
	resumeCmd.Flags().BoolVar(&resumeFlagsVar.Force, "force", false, "Skip --clean-all confirmation; bypass workflow-hash mismatch refusal on resume")
	resumeCmd.Flags().StringVar(&resumeFlagsVar.BaseRef, "base-ref", "", "Branch/ref map-phase worktrees are created from (default: current HEAD)")
	resumeCmd.Flags().IntVar(&resumeFlagsVar.MaxParallel, "max-parallel", 0, "Override job.max_parallel from config")
	resumeCmd.Flags().IntVar(&resumeFlagsVar.MaxRetries, "max-retries", 0, "Override job.max_retries from config")
	resumeCmd.Flags().BoolVar(&resumeFlagsVar.TUI, "tui", false, "Show a live full-screen progress dashboard instead of plain log output")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	flags := resumeFlagsVar

	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resume: resolving working directory: %w", err)
	}

	if flags.List {
		return runResumeListMode(cmd, repoDir)
	}

	if flags.CleanAll {
		return runResumeCleanAllMode(cmd, repoDir, flags.Force, os.Stdin)
	}

	if len(args) != 1 {
		return fmt.Errorf("resume: a job spec file is required unless --list or --clean-all is set")
	}

	return runResumeMode(cmd, args[0], flags, repoDir)
}

// runResumeListMode lists every retained checkpoint in a formatted table.
func runResumeListMode(cmd *cobra.Command, repoDir string) error {
	store := checkpoint.NewStore(checkpointDir(repoDir))
	checkpoints, err := store.List()
	if err != nil {
		return fmt.Errorf("resume: listing checkpoints: %w", err)
	}

	if len(checkpoints) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No checkpoints found.")
		return nil
	}

	formatCheckpointTable(checkpoints, cmd.OutOrStdout())
	return nil
}

// runResumeCleanAllMode deletes every retained checkpoint. In a terminal it
// prompts for confirmation unless --force is set; in non-interactive mode
// --force is required, matching resumelock's refuse-rather-than-guess stance
// on destructive operations.
func runResumeCleanAllMode(cmd *cobra.Command, repoDir string, force bool, stdin *os.File) error {
	if !force {
		if isTerminal(stdin) {
			fmt.Fprint(cmd.ErrOrStderr(), "This will delete all retained checkpoints. Continue? [y/N] ")
			scanner := bufio.NewScanner(stdin)
			if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}
		} else {
			return fmt.Errorf("resume: --clean-all in non-interactive mode requires --force to confirm deletion of all checkpoints")
		}
	}

	dir := checkpointDir(repoDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "No checkpoints found.")
			return nil
		}
		return fmt.Errorf("resume: listing checkpoint directory %q: %w", dir, err)
	}

	logger := logging.New("resume")
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.Error("failed to delete checkpoint file", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %d checkpoint(s).\n", deleted)
	return nil
}

// runResumeMode loads the most recent checkpoint, plans a resume against the
// re-parsed job spec, and re-drives the coordinator from where it left off.
func runResumeMode(cmd *cobra.Command, specPath string, flags resumeFlags, repoDir string) error {
	spec, err := loadJobSpec(specPath)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("resume: invalid job spec: %w", err)
	}

	hash, err := job.WorkflowHash(spec)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	store := checkpoint.NewStore(checkpointDir(repoDir))
	cp, err := store.Latest()
	if err != nil {
		return fmt.Errorf("resume: loading latest checkpoint: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("resume: no checkpoints found under %q", checkpointDir(repoDir))
	}

	dlqAttempts, err := loadDLQAttempts(repoDir)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	plan, err := checkpoint.PlanResume(cp, hash, flags.Force, dlqAttempts)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	if flags.DryRun || flagDryRun {
		fmt.Fprintf(cmd.ErrOrStderr(), "Dry-run: would resume job %q from checkpoint %q (version %d), currently in phase %q\n",
			plan.Job.ID, plan.FromID, plan.Version, plan.Job.State.CurrentPhase)
		return nil
	}

	overrides := &config.CLIOverrides{}
	if cmd.Flags().Changed("max-parallel") {
		overrides.MaxParallel = &flags.MaxParallel
	}
	if cmd.Flags().Changed("max-retries") {
		overrides.MaxRetries = &flags.MaxRetries
	}
	resolved, _, err := loadAndResolveConfigWithOverrides(overrides)
	if err != nil {
		return err
	}

	baseRef := flags.BaseRef
	if baseRef == "" {
		gc, err := git.NewGitClient(repoDir)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		branch, err := gc.CurrentBranch(cmd.Context())
		if err != nil {
			return fmt.Errorf("resume: determining current branch: %w", err)
		}
		baseRef = branch
	}

	deps, err := buildRuntimeDeps(resolved, repoDir)
	if err != nil {
		return err
	}

	lock, err := resumelock.Acquire(deps.LockPath, plan.Job.ID)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	defer lock.Release()

	return driveJob(cmd.Context(), deps, spec, plan.Job, baseRef, lock, flags.TUI)
}

// formatCheckpointTable writes a tabwriter-aligned table of checkpoints to w.
func formatCheckpointTable(checkpoints []*checkpoint.Checkpoint, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "JOB ID\tVERSION\tPHASE\tSTATUS\tREASON\tCREATED AT\tPENDING\tFAILED")
	fmt.Fprintln(tw, "------\t-------\t-----\t------\t------\t----------\t-------\t------")

	for _, cp := range checkpoints {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			cp.JobID,
			cp.Version,
			cp.Phase,
			cp.Status,
			cp.Reason,
			cp.CreatedAt.Format("2006-01-02 15:04:05"),
			len(cp.Items.Pending),
			len(cp.Items.Failed),
		)
	}
}

// loadDLQAttempts builds an item_id -> attempts map from every record
// currently in the DLQ store, for PlanResume to reconcile against the
// checkpoint's own failed partition (spec §8 property 6). A missing DLQ
// file is not an error -- it just means there is nothing to reconcile.
func loadDLQAttempts(repoDir string) (map[string]int, error) {
	store := dlq.NewStore(dlqPath(repoDir))
	records, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("loading DLQ records: %w", err)
	}
	attempts := make(map[string]int, len(records))
	for _, rec := range records {
		attempts[rec.Item.ID] = rec.Failure.Attempts
	}
	return attempts, nil
}

// isTerminal reports whether f is connected to a terminal (TTY), using
// os.ModeCharDevice so no extra platform-specific dependency is needed.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// checkpointDir is the directory a repo's retained checkpoints live under.
func checkpointDir(repoDir string) string {
	return filepath.Join(stateDir(repoDir), "checkpoints")
}
