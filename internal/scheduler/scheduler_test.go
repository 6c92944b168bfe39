package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abz10m/mrctl/internal/dlq"
	"github.com/abz10m/mrctl/internal/loop"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/worker"
	"github.com/abz10m/mrctl/internal/workitem"
	"github.com/abz10m/mrctl/internal/workspace"
)

type fakeWorkspaces struct {
	mu      sync.Mutex
	created int
	cleaned int
}

func (f *fakeWorkspaces) Create(_ context.Context, itemID, _ string) (*workspace.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &workspace.Handle{ID: itemID, Path: filepath.Join("/tmp", itemID)}, nil
}

func (f *fakeWorkspaces) Cleanup(_ context.Context, _ *workspace.Handle, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned++
	return nil
}

type scriptedRunner struct {
	mu      sync.Mutex
	outcome map[string]workitem.ResultStatus
	calls   map[string]int
}

func (r *scriptedRunner) Run(_ context.Context, in worker.Input, _ *variables.Store) workitem.AgentResult {
	r.mu.Lock()
	r.calls[in.Item.ID]++
	r.mu.Unlock()

	status := r.outcome[in.Item.ID]
	if status == "" {
		status = workitem.ResultSuccess
	}
	reason := ""
	if status != workitem.ResultSuccess {
		reason = "connection refused"
	}
	return workitem.AgentResult{ItemID: in.Item.ID, Status: status, Reason: reason}
}

func newSet(t *testing.T, ids ...string) *workitem.Set {
	t.Helper()
	items := make([]workitem.Item, len(ids))
	for i, id := range ids {
		items[i] = workitem.Item{ID: id}
	}
	set, err := workitem.NewSet(items)
	require.NoError(t, err)
	return set
}

func TestRunMapPhase_AllSucceed(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b", "c")
	runner := &scriptedRunner{outcome: map[string]workitem.ResultStatus{}, calls: map[string]int{}}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 2)
	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ItemsProcessed)
	assert.Equal(t, 3, result.ItemsSuccessful)
	assert.Equal(t, 0, result.ItemsFailed)
	assert.True(t, set.Drained())
	assert.Equal(t, 3, ws.created)
}

func TestRunMapPhase_ContextCanceledPropagatesAsError(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b", "c")
	runner := &scriptedRunner{outcome: map[string]workitem.ResultStatus{}, calls: map[string]int{}}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunMapPhase(ctx, set, variables.NewStore())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
}

func TestRunMapPhase_TransientFailureRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a")
	runner := &scriptedRunner{
		outcome: map[string]workitem.ResultStatus{"a": workitem.ResultFailed},
		calls:   map[string]int{},
	}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 2)

	// The item fails twice and is requeued each time (attempts 1 and 2 are
	// <= MaxRetries). RunMapPhase keeps dispatching requeued items until the
	// set is drained, so the runner's script is flipped to success after the
	// second settle and the third attempt succeeds within the same call.
	var settled int
	s.OnItemSettled = func() {
		settled++
		if settled == 2 {
			runner.mu.Lock()
			runner.outcome["a"] = workitem.ResultSuccess
			runner.mu.Unlock()
		}
	}

	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls["a"])
	assert.Equal(t, 1, result.ItemsSuccessful)
	assert.Equal(t, 0, result.ItemsFailed)
	assert.True(t, set.Drained())
}

func TestRunMapPhase_PermanentFailureDeadLetters(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a")
	runner := &scriptedRunnerWithReason{reason: "authentication failed"}
	ws := &fakeWorkspaces{}
	store := dlq.NewStore(filepath.Join(t.TempDir(), "dlq.jsonl"))
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, store, 2)
	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ItemsFailed)
	assert.True(t, set.Drained())
	assert.Equal(t, []string{"a"}, set.DeadLetteredItemIDs())

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Item.ID)
}

type scriptedRunnerWithReason struct {
	reason string
}

func (r *scriptedRunnerWithReason) Run(_ context.Context, in worker.Input, _ *variables.Store) workitem.AgentResult {
	return workitem.AgentResult{ItemID: in.Item.ID, Status: workitem.ResultFailed, Reason: r.reason}
}

func TestRunMapPhase_InvokesOnItemSettled(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b")
	runner := &scriptedRunner{outcome: map[string]workitem.ResultStatus{}, calls: map[string]int{}}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	var mu sync.Mutex
	var settled int
	s := New(runner, ws, policy, nil, 2)
	s.OnItemSettled = func() {
		mu.Lock()
		settled++
		mu.Unlock()
	}

	_, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
}

func TestRunMapPhase_WorkspaceCreateFailureIsTransient(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a")
	runner := &scriptedRunner{outcome: map[string]workitem.ResultStatus{}, calls: map[string]int{}}
	ws := &failingWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 1)
	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)
	// Transient, so retried within the pass: attempts 1-3 are requeued and the
	// fourth exceeds MaxRetries=3 and dead-letters (a permanent failure would
	// stop after one).
	assert.Equal(t, 4, result.ItemsProcessed)
	assert.Equal(t, []string{"a"}, set.DeadLetteredItemIDs())
}

type failingWorkspaces struct{}

func (failingWorkspaces) Create(context.Context, string, string) (*workspace.Handle, error) {
	return nil, fmt.Errorf("disk full")
}
func (failingWorkspaces) Cleanup(context.Context, *workspace.Handle, bool) error { return nil }

func TestRunMapPhase_AgentCircuitAbortsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b", "c", "d", "e")
	runner := &scriptedRunnerWithReason{reason: "connection refused"}
	ws := &fakeWorkspaces{}
	// A generous retry budget: items are requeued, not dead-lettered, so the
	// only thing that can stop the phase early is the circuit breaker.
	policy := dlq.NewPolicy(100, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 1)
	s.AgentCircuit = loop.NewAgentErrorRecovery(2, nil)

	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)

	assert.Equal(t, 2, result.ItemsProcessed)
	assert.False(t, set.Drained())
	assert.Equal(t, 5, set.PendingLen())
}

func TestRunMapPhase_AgentCircuitResetsOnSuccess(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b", "c")
	runner := &scriptedRunner{outcome: map[string]workitem.ResultStatus{}, calls: map[string]int{}}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(3, time.Millisecond, 10*time.Millisecond)

	s := New(runner, ws, policy, nil, 1)
	s.AgentCircuit = loop.NewAgentErrorRecovery(2, nil)

	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ItemsSuccessful)
	assert.True(t, set.Drained())
	assert.False(t, s.AgentCircuit.ShouldAbort())
}

func TestRunMapPhase_AgentCircuitDisabledWhenZero(t *testing.T) {
	t.Parallel()
	set := newSet(t, "a", "b", "c")
	runner := &scriptedRunnerWithReason{reason: "connection refused"}
	ws := &fakeWorkspaces{}
	policy := dlq.NewPolicy(1, time.Millisecond, 10*time.Millisecond)
	store := dlq.NewStore(filepath.Join(t.TempDir(), "dlq.jsonl"))

	s := New(runner, ws, policy, store, 1)
	s.AgentCircuit = loop.NewAgentErrorRecovery(0, nil)

	result, err := s.RunMapPhase(context.Background(), set, variables.NewStore())
	require.NoError(t, err)

	assert.True(t, set.Drained())
	assert.Equal(t, 3, result.ItemsFailed)
}
