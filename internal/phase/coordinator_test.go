package phase

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/workitem"
)

func newJob(t *testing.T) *job.Job {
	t.Helper()
	items, err := workitem.NewSet([]workitem.Item{{ID: "a"}})
	require.NoError(t, err)
	return job.New("job-1", "hash-v1", items)
}

func okRunner(phase job.Phase) func(context.Context, *job.Job) (*job.PhaseResult, error) {
	return func(context.Context, *job.Job) (*job.PhaseResult, error) {
		return &job.PhaseResult{Success: true}, nil
	}
}

func TestRun_AllPhasesSucceed(t *testing.T) {
	t.Parallel()
	j := newJob(t)
	var ran []job.Phase

	track := func(p job.Phase) func(context.Context, *job.Job) (*job.PhaseResult, error) {
		return func(context.Context, *job.Job) (*job.PhaseResult, error) {
			ran = append(ran, p)
			return &job.PhaseResult{Success: true}, nil
		}
	}

	c := New(Config{
		Setup:  track(job.PhaseSetup),
		Map:    track(job.PhaseMap),
		Reduce: track(job.PhaseReduce),
		Merge:  track(job.PhaseMerge),
	})

	err := c.Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, []job.Phase{job.PhaseSetup, job.PhaseMap, job.PhaseReduce, job.PhaseMerge}, ran)
	assert.Equal(t, job.PhaseComplete, j.State.CurrentPhase)
	assert.Equal(t, job.StatusCompleted, j.State.Status)
}

func TestRun_PhaseErrorStopsSequenceAndMarksFailed(t *testing.T) {
	t.Parallel()
	j := newJob(t)
	var ranReduce bool

	c := New(Config{
		Setup: okRunner(job.PhaseSetup),
		Map: func(context.Context, *job.Job) (*job.PhaseResult, error) {
			return nil, fmt.Errorf("boom")
		},
		Reduce: func(context.Context, *job.Job) (*job.PhaseResult, error) {
			ranReduce = true
			return &job.PhaseResult{Success: true}, nil
		},
	})

	err := c.Run(context.Background(), j)
	require.Error(t, err)
	assert.False(t, ranReduce)
	assert.Equal(t, job.StatusFailed, j.State.Status)
}

func TestRun_ContextCanceledMarksInterruptedNotFailed(t *testing.T) {
	t.Parallel()
	j := newJob(t)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints"))
	events := make(chan Event, 64)

	c := New(Config{
		Setup: okRunner(job.PhaseSetup),
		Map: func(ctx context.Context, _ *job.Job) (*job.PhaseResult, error) {
			return nil, fmt.Errorf("scheduler: %w", context.Canceled)
		},
		CheckpointStore: store,
		Events:          events,
	})

	err := c.Run(context.Background(), j)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, job.StatusInterrupted, j.State.Status)
	assert.Equal(t, job.PhaseMap, j.State.CurrentPhase, "cancellation leaves the phase where it was interrupted rather than forcing PhaseFailed")
	close(events)

	var sawInterrupted, sawFailed bool
	var beforeShutdownCheckpoints int
	for ev := range events {
		if ev.Type == EventJobInterrupted {
			sawInterrupted = true
		}
		if ev.Type == EventJobFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawInterrupted)
	assert.False(t, sawFailed, "cancellation must not also emit a job-failed event")

	list, err := store.List()
	require.NoError(t, err)
	for _, cp := range list {
		if cp.Reason == checkpoint.ReasonBeforeShutdown {
			beforeShutdownCheckpoints++
		}
	}
	assert.Equal(t, 1, beforeShutdownCheckpoints, "exactly one checkpoint must carry reason BeforeShutdown")
}

func TestRun_PhaseReportingFailureStopsSequence(t *testing.T) {
	t.Parallel()
	j := newJob(t)

	c := New(Config{
		Setup: okRunner(job.PhaseSetup),
		Map: func(context.Context, *job.Job) (*job.PhaseResult, error) {
			return &job.PhaseResult{Success: false, ItemsFailed: 1}, nil
		},
	})

	err := c.Run(context.Background(), j)
	require.Error(t, err)
	assert.Equal(t, job.StatusFailed, j.State.Status)
}

func TestRun_WritesFinalCheckpoint(t *testing.T) {
	t.Parallel()
	j := newJob(t)
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints"))

	c := New(Config{
		Setup:           okRunner(job.PhaseSetup),
		Map:             okRunner(job.PhaseMap),
		Reduce:          okRunner(job.PhaseReduce),
		Merge:           okRunner(job.PhaseMerge),
		CheckpointStore: store,
	})

	err := c.Run(context.Background(), j)
	require.NoError(t, err)

	list, err := store.List()
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestRun_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()
	j := newJob(t)
	events := make(chan Event, 64)

	c := New(Config{
		Setup:  okRunner(job.PhaseSetup),
		Map:    okRunner(job.PhaseMap),
		Reduce: okRunner(job.PhaseReduce),
		Merge:  okRunner(job.PhaseMerge),
		Events: events,
	})

	err := c.Run(context.Background(), j)
	require.NoError(t, err)
	close(events)

	var sawCompleted bool
	for ev := range events {
		if ev.Type == EventJobCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestNotifyItemSettled_NoopBeforeRun(t *testing.T) {
	t.Parallel()
	c := New(Config{})
	assert.NotPanics(t, func() { c.NotifyItemSettled() })
}
