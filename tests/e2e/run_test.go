package e2e_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSmokeJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)
	tp.writeInputFile("a.txt", "hello\n")
	tp.writeInputFile("b.txt", "world\n")
	path := tp.writeJobSpec("job.toml", smokeJobSpec("smoke-job"))

	out := tp.runExpectSuccess("run", path)
	t.Logf("run output: %s", out)

	for _, stamped := range []string{"a.txt.out", "b.txt.out"} {
		_, statErr := os.Stat(filepath.Join(tp.Dir, stamped))
		assert.NoError(t, statErr, "%s should have been stamped by the map phase", stamped)
	}
}

func TestStatusAfterRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)
	tp.writeInputFile("a.txt", "hello\n")
	path := tp.writeJobSpec("job.toml", smokeJobSpec("status-job"))

	tp.runExpectSuccess("run", path)

	out := tp.runExpectSuccess("status")
	assert.Contains(t, out, "status-job")
}

func TestStatusWithNoPriorRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)

	out := tp.runExpectSuccess("status")
	assert.Contains(t, out, "No checkpoints found")
}

func TestDLQListEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)

	out := tp.runExpectSuccess("dlq", "list")
	assert.Contains(t, out, "No dead-lettered items")
}

func TestCleanupCommandWithNoWorkspaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)

	out := tp.runExpectSuccess("cleanup")
	_ = out // nothing to prune yet; just verify it doesn't error
}

func TestResumeListEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)

	out := tp.runExpectSuccess("resume", "--list")
	assert.Contains(t, out, "No checkpoints found")
}

func TestResumeWithoutArgsOrFlagsFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)

	out, exitCode := tp.runExpectFailure("resume")
	assert.NotEqual(t, 0, exitCode)
	assert.Contains(t, out, "job spec file is required")
}

func TestResumeAfterCompletedRunFindsNothingToResume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}
	t.Parallel()

	tp := newTestProject(t)
	tp.writeConfig(minimalConfig())
	initGitRepo(t, tp.Dir)
	tp.writeInputFile("a.txt", "hello\n")
	path := tp.writeJobSpec("job.toml", smokeJobSpec("resume-job"))

	tp.runExpectSuccess("run", path)

	// A completed job has no pending/in-progress items left to resume, but
	// the checkpoint should still be listed.
	out := tp.runExpectSuccess("resume", "--list")
	assert.Contains(t, out, "resume-job")

	_, statErr := os.Stat(filepath.Join(tp.Dir, ".mrctl", "checkpoints"))
	require.NoError(t, statErr, ".mrctl/checkpoints should exist after a run")
}
