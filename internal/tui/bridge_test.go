package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/phase"
)

// TestNewEventBridge verifies that NewEventBridge returns a usable EventBridge.
func TestNewEventBridge(t *testing.T) {
	t.Parallel()
	b := NewEventBridge()
	assert.NotNil(t, b)
}

// TestEventBridge_PhaseEventCmd_ReceivesEvent verifies that the returned
// tea.Cmd converts a phase.Event to a PhaseEventMsg.
func TestEventBridge_PhaseEventCmd_ReceivesEvent(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan phase.Event, 1)

	ts := time.Now()
	ch <- phase.Event{
		Phase:     job.PhaseMap,
		Type:      "phase_started",
		Message:   "map phase started",
		Timestamp: ts,
	}

	ctx := context.Background()
	cmd := b.PhaseEventCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	peMsg, ok := msg.(PhaseEventMsg)
	require.True(t, ok, "expected PhaseEventMsg, got %T", msg)

	assert.Equal(t, string(job.PhaseMap), peMsg.Phase)
	assert.Equal(t, "phase_started", peMsg.Type)
	assert.Equal(t, "map phase started", peMsg.Message)
	assert.Empty(t, peMsg.Err)
	assert.Equal(t, ts, peMsg.Timestamp)
}

// TestEventBridge_PhaseEventCmd_CarriesError verifies that a phase.Event
// carrying a non-nil Err is converted to a non-empty PhaseEventMsg.Err string.
func TestEventBridge_PhaseEventCmd_CarriesError(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan phase.Event, 1)
	ch <- phase.Event{
		Phase: job.PhaseReduce,
		Type:  "phase_failed",
		Err:   errors.New("worktree creation failed"),
	}

	ctx := context.Background()
	cmd := b.PhaseEventCmd(ctx, ch)
	msg := cmd().(PhaseEventMsg)

	assert.Equal(t, "worktree creation failed", msg.Err)
}

// TestEventBridge_PhaseEventCmd_ClosedChannel verifies that the command
// returns nil when the channel is closed.
func TestEventBridge_PhaseEventCmd_ClosedChannel(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan phase.Event)
	close(ch)

	ctx := context.Background()
	cmd := b.PhaseEventCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Nil(t, msg)
}

// TestEventBridge_PhaseEventCmd_CancelledContext verifies that the command
// returns nil when the context is cancelled.
func TestEventBridge_PhaseEventCmd_CancelledContext(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan phase.Event) // never receives

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	cmd := b.PhaseEventCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Nil(t, msg)
}

// TestEventBridge_ItemProgressCmd_ReceivesMsg verifies that ItemProgressCmd
// forwards ItemProgressMsg values unchanged.
func TestEventBridge_ItemProgressCmd_ReceivesMsg(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan ItemProgressMsg, 1)

	ts := time.Now()
	ch <- ItemProgressMsg{
		Phase:     "map",
		Completed: 5,
		Total:     10,
		Timestamp: ts,
	}

	ctx := context.Background()
	cmd := b.ItemProgressCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	ipMsg, ok := msg.(ItemProgressMsg)
	require.True(t, ok, "expected ItemProgressMsg, got %T", msg)

	assert.Equal(t, "map", ipMsg.Phase)
	assert.Equal(t, 5, ipMsg.Completed)
	assert.Equal(t, 10, ipMsg.Total)
}

// TestEventBridge_WorkerOutputCmd_ReceivesMsg verifies that WorkerOutputCmd
// forwards WorkerOutputMsg values unchanged.
func TestEventBridge_WorkerOutputCmd_ReceivesMsg(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan WorkerOutputMsg, 1)

	ts := time.Now()
	ch <- WorkerOutputMsg{
		ItemID:    "item-1",
		Line:      "hello world",
		Stream:    "stdout",
		Timestamp: ts,
	}

	ctx := context.Background()
	cmd := b.WorkerOutputCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	woMsg, ok := msg.(WorkerOutputMsg)
	require.True(t, ok, "expected WorkerOutputMsg, got %T", msg)

	assert.Equal(t, "item-1", woMsg.ItemID)
	assert.Equal(t, "hello world", woMsg.Line)
	assert.Equal(t, "stdout", woMsg.Stream)
	assert.Equal(t, ts, woMsg.Timestamp)
}

// TestEventBridge_WorkerStatusCmd_ReceivesMsg verifies that WorkerStatusCmd
// forwards WorkerStatusMsg values unchanged.
func TestEventBridge_WorkerStatusCmd_ReceivesMsg(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan WorkerStatusMsg, 1)

	ch <- WorkerStatusMsg{
		ItemID: "item-1",
		Status: WorkerRunning,
		Step:   "apply-patch",
	}

	ctx := context.Background()
	cmd := b.WorkerStatusCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	wsMsg, ok := msg.(WorkerStatusMsg)
	require.True(t, ok, "expected WorkerStatusMsg, got %T", msg)

	assert.Equal(t, "item-1", wsMsg.ItemID)
	assert.Equal(t, WorkerRunning, wsMsg.Status)
	assert.Equal(t, "apply-patch", wsMsg.Step)
}

// TestEventBridge_RetryBackoffCmd_ReceivesMsg verifies that RetryBackoffCmd
// forwards RetryBackoffMsg values unchanged.
func TestEventBridge_RetryBackoffCmd_ReceivesMsg(t *testing.T) {
	t.Parallel()

	b := NewEventBridge()
	ch := make(chan RetryBackoffMsg, 1)

	ch <- RetryBackoffMsg{
		ItemID: "item-1",
		Wait:   30 * time.Second,
	}

	ctx := context.Background()
	cmd := b.RetryBackoffCmd(ctx, ch)
	require.NotNil(t, cmd)

	msg := cmd()
	rbMsg, ok := msg.(RetryBackoffMsg)
	require.True(t, ok, "expected RetryBackoffMsg, got %T", msg)

	assert.Equal(t, "item-1", rbMsg.ItemID)
	assert.Equal(t, 30*time.Second, rbMsg.Wait)
}
