// Package workspace implements the Workspace Manager (spec §4.5, C1):
// atomic create / list / merge-back / cleanup of per-agent isolated
// workspaces backed by git worktrees. It extends the teacher's
// internal/git os/exec-wrapping GitClient idiom with the worktree
// subcommands the MapReduce core needs, and reuses the trimmed
// internal/git.GitClient itself for the merge phase's files_modified
// reporting (DiffNumStat) and cleanup_orphaned's dirty-worktree probe
// (HasUncommittedChanges).
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abz10m/mrctl/internal/git"
)

// Handle identifies one live isolated workspace.
type Handle struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager creates and tears down git-worktree-backed workspaces rooted
// under BaseDir, one subdirectory per work item.
type Manager struct {
	// RepoDir is the primary checkout every worktree is created from.
	RepoDir string
	// BaseDir is the parent directory under which per-item worktrees live.
	BaseDir string
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// NewManager constructs a Manager and verifies RepoDir is a git checkout.
func NewManager(repoDir, baseDir string) (*Manager, error) {
	m := &Manager{RepoDir: repoDir, BaseDir: baseDir, GitBin: "git"}
	if _, err := m.run(context.Background(), repoDir, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("workspace: %q is not a git repository: %w", repoDir, err)
	}
	return m, nil
}

// Create allocates a fresh worktree for itemID, branching baseRef (empty
// means the repo's current HEAD) into a new branch named after itemID.
// The worktree path is BaseDir/itemID.
func (m *Manager) Create(ctx context.Context, itemID, baseRef string) (*Handle, error) {
	path := m.itemPath(itemID)
	branch := m.branchName(itemID)

	args := []string{"worktree", "add", "-b", branch, path}
	if baseRef != "" {
		args = append(args, baseRef)
	}
	if _, err := m.run(ctx, m.RepoDir, args...); err != nil {
		return nil, fmt.Errorf("workspace: creating worktree for %q: %w", itemID, err)
	}

	return &Handle{
		ID:        itemID,
		Path:      path,
		Branch:    branch,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ListSessions returns every worktree git currently tracks for RepoDir,
// parsed from `git worktree list --porcelain`.
func (m *Manager) ListSessions(ctx context.Context) ([]Handle, error) {
	out, err := m.run(ctx, m.RepoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("workspace: listing worktrees: %w", err)
	}
	return parsePorcelain(out), nil
}

// Merge fast-forwards or merges the workspace's branch into targetBranch,
// run from RepoDir. Callers are responsible for ordering merges
// deterministically by item_id (spec §4.5's merge-order guarantee).
func (m *Manager) Merge(ctx context.Context, h *Handle, targetBranch string) error {
	if _, err := m.run(ctx, m.RepoDir, "checkout", targetBranch); err != nil {
		return fmt.Errorf("workspace: checking out %q: %w", targetBranch, err)
	}
	if _, err := m.run(ctx, m.RepoDir, "merge", "--no-ff", h.Branch); err != nil {
		return fmt.Errorf("workspace: merging %q into %q: %w", h.Branch, targetBranch, err)
	}
	return nil
}

// Cleanup removes one workspace's worktree and its branch. force skips the
// "has uncommitted changes" safety check, used for terminal cleanup after a
// dead-lettered item.
func (m *Manager) Cleanup(ctx context.Context, h *Handle, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, h.Path)
	if _, err := m.run(ctx, m.RepoDir, args...); err != nil {
		return fmt.Errorf("workspace: removing worktree %q: %w", h.Path, err)
	}
	if _, err := m.run(ctx, m.RepoDir, "branch", "-D", h.Branch); err != nil {
		return fmt.Errorf("workspace: deleting branch %q: %w", h.Branch, err)
	}
	return nil
}

// CleanupOrphaned prunes worktree metadata for paths git still tracks but
// no longer exist on disk (e.g. after a crash mid-cleanup), per spec §4.5's
// "cleanup_orphaned" operation.
func (m *Manager) CleanupOrphaned(ctx context.Context) error {
	if _, err := m.run(ctx, m.RepoDir, "worktree", "prune"); err != nil {
		return fmt.Errorf("workspace: pruning orphaned worktrees: %w", err)
	}
	return nil
}

// FilesModified reports the files an item's worktree changed relative to
// baseRef, for AgentResult.FilesModified. It opens a git.GitClient rooted at
// h.Path and reduces DiffNumStat's per-file entries to sorted paths.
func (m *Manager) FilesModified(ctx context.Context, h *Handle, baseRef string) ([]string, error) {
	gc, err := git.NewGitClient(h.Path)
	if err != nil {
		return nil, fmt.Errorf("workspace: files modified for %q: %w", h.ID, err)
	}
	entries, err := gc.DiffNumStat(ctx, baseRef)
	if err != nil {
		return nil, fmt.Errorf("workspace: files modified for %q: %w", h.ID, err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

// DryRunCleanup reports, for every worktree ListSessions returns, whether it
// still holds uncommitted changes — the probe cleanup_orphaned --dry-run
// surfaces to the operator before anything is force-removed.
func (m *Manager) DryRunCleanup(ctx context.Context) (map[string]bool, error) {
	sessions, err := m.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace: dry-run cleanup: %w", err)
	}
	dirty := make(map[string]bool, len(sessions))
	for _, h := range sessions {
		gc, err := git.NewGitClient(h.Path)
		if err != nil {
			// Worktree metadata survives without a working copy on disk
			// (exactly the orphaned case CleanupOrphaned targets); skip it
			// rather than failing the whole dry run.
			continue
		}
		uncommitted, err := gc.HasUncommittedChanges(ctx)
		if err != nil {
			return nil, fmt.Errorf("workspace: dry-run cleanup %q: %w", h.Path, err)
		}
		dirty[h.Path] = uncommitted
	}
	return dirty, nil
}

// HandleFor reconstructs the deterministic Path/Branch a completed item's
// worktree was created under, without touching git — the Merge phase uses
// this to merge and clean up each completed item's branch by item_id alone.
func (m *Manager) HandleFor(itemID string) *Handle {
	return &Handle{ID: itemID, Path: m.itemPath(itemID), Branch: m.branchName(itemID)}
}

func (m *Manager) itemPath(itemID string) string {
	return filepath.Join(m.BaseDir, sanitize(itemID))
}

func (m *Manager) branchName(itemID string) string {
	return "mrctl/" + sanitize(itemID)
}

// sanitize replaces path separators in an item_id (e.g. a glob-derived
// file path) so it is safe to use as a single directory/branch segment.
func sanitize(itemID string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return r.Replace(itemID)
}

func parsePorcelain(out string) []Handle {
	var handles []Handle
	var cur Handle
	flush := func() {
		if cur.Path != "" {
			handles = append(handles, cur)
		}
		cur = Handle{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			cur.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return handles
}

func (m *Manager) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := m.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderrBuf.String()))
		}
		return "", err
	}
	return stdoutBuf.String(), nil
}
