package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abz10m/mrctl/internal/workspace"
)

var cleanupFlags struct {
	Force bool
}

// cleanupCmd implements "mrctl cleanup": prune worktree metadata git still
// tracks for workspaces that no longer exist on disk (spec §4.5's
// cleanup_orphaned), after reporting which live worktrees still hold
// uncommitted changes.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune orphaned worktrees and report dirty workspaces",
	Long: `Probe every workspace the workspace manager's backing repo still
tracks and report which ones have uncommitted changes, then prune git
worktree metadata for any that no longer exist on disk.

Without --force, run is effectively a dry-run: only the probe report is
printed and nothing is pruned.`,
	Example: `  # Report dirty workspaces without pruning anything
  mrctl cleanup

  # Prune orphaned worktree metadata
  mrctl cleanup --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd)
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupFlags.Force, "force", false, "Actually prune orphaned worktree metadata (default only reports)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command) error {
	repoDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cleanup: resolving working directory: %w", err)
	}

	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	baseDir := resolved.Config.Workspace.BaseDir
	if baseDir == "" {
		baseDir = filepath.Join(stateDir(repoDir), "workspaces")
	}

	mgr, err := workspace.NewManager(repoDir, baseDir)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	dirty, err := mgr.DryRunCleanup(cmd.Context())
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	out := cmd.ErrOrStderr()
	if len(dirty) == 0 {
		fmt.Fprintln(out, "No workspaces found.")
	}
	for path, isDirty := range dirty {
		state := "clean"
		if isDirty {
			state = "has uncommitted changes"
		}
		fmt.Fprintf(out, "%s: %s\n", path, state)
	}

	if !cleanupFlags.Force || flagDryRun {
		fmt.Fprintln(out, "Run with --force to prune orphaned worktree metadata.")
		return nil
	}

	if err := mgr.CleanupOrphaned(cmd.Context()); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	fmt.Fprintln(out, "Orphaned worktree metadata pruned.")
	return nil
}
