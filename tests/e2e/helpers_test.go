package e2e_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject creates an isolated project directory backed by a git repo
// and a freshly built mrctl binary.
type testProject struct {
	Dir        string
	BinaryPath string
	t          *testing.T
}

// newTestProject builds the mrctl binary into a fresh temp directory and
// returns a testProject ready for use. Must be called from a test function;
// uses t.Helper() to mark itself accordingly.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests assume a POSIX shell for job spec steps")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "mrctl")
	build := exec.Command("go", "build", "-o", binary, "./cmd/mrctl")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building mrctl: %s", string(out))

	return &testProject{Dir: dir, BinaryPath: binary, t: t}
}

// projectRoot returns the absolute path to the root of the repository.
// It uses runtime.Caller(0) to find this source file's location and
// navigates two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// writeConfig writes content to mrctl.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "mrctl.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// writeJobSpec writes a job spec TOML file named name under tp.Dir and
// returns its path.
func (tp *testProject) writeJobSpec(name, content string) string {
	tp.t.Helper()
	path := filepath.Join(tp.Dir, name)
	require.NoError(tp.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeInputFile writes a map-phase input file (matched by a glob step) under
// tp.Dir.
func (tp *testProject) writeInputFile(name, content string) {
	tp.t.Helper()
	require.NoError(tp.t, os.WriteFile(filepath.Join(tp.Dir, name), []byte(content), 0o644))
}

// run creates an exec.Cmd for mrctl in tp.Dir.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"NO_COLOR=1",            // disable ANSI color in output
		"MRCTL_LOG_FORMAT=json", // structured logs for easier parsing
	)
	return cmd
}

// runExpectSuccess runs mrctl and asserts exit code 0.
// Returns combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "mrctl %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs mrctl and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "mrctl %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// initGitRepo initialises a git repository in dir with an initial commit --
// the map phase's per-item worktrees are checked out from this repo's HEAD.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	setupCmds := [][]string{
		{"git", "init"},
		{"git", "config", "user.email", "test@example.com"},
		{"git", "config", "user.name", "Test User"},
	}
	for _, args := range setupCmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}

	keepFile := filepath.Join(dir, ".gitkeep")
	require.NoError(t, os.WriteFile(keepFile, []byte(""), 0o644))
	for _, args := range [][]string{
		{"git", "add", "."},
		{"git", "commit", "-m", "init"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}
}

// minimalConfig returns an mrctl.toml with a tight retry/parallelism budget
// suitable for a fast-running smoke test.
func minimalConfig() string {
	return `[job]
max_parallel = 2
max_retries = 1
`
}

// smokeJobSpec returns a job spec TOML that matches every "*.txt" file under
// the repo root and stamps a corresponding ".out" file next to each match --
// no agent configuration required since every step is a plain shell command.
func smokeJobSpec(name string) string {
	return `name = "` + name + `"
description = "e2e smoke job"

[map.input]
kind = "glob"
pattern = "*.txt"

[[map.steps]]
name = "stamp"
command_kind = "shell"
command_text = "echo stamped > {{ item.id }}.out"
`
}
