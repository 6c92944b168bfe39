package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ---------------------------------------------------------------------------
// Worker Messages
// ---------------------------------------------------------------------------

// WorkerOutputMsg represents a single line of output from a map-phase
// worker's step execution. Stream is either "stdout" or "stderr".
type WorkerOutputMsg struct {
	// ItemID is the work item whose step produced this output.
	ItemID string
	// Line is the raw text line received from the step's process.
	Line string
	// Stream indicates whether the line came from stdout or stderr.
	Stream string
	// Timestamp records when this line was received.
	Timestamp time.Time
}

// WorkerStatus represents the current lifecycle state of a map-phase worker
// processing one work item.
type WorkerStatus int

const (
	// WorkerIdle means no item is currently assigned to this worker slot.
	WorkerIdle WorkerStatus = iota
	// WorkerRunning means the worker is actively executing an item's steps.
	WorkerRunning
	// WorkerCompleted means the item finished successfully.
	WorkerCompleted
	// WorkerFailed means the item was dead-lettered after exhausting retries.
	WorkerFailed
	// WorkerRetrying means the item failed transiently and is queued for
	// another attempt after a backoff wait.
	WorkerRetrying
	// WorkerWaiting means the worker is waiting on workspace creation or a
	// backoff timer before starting the item.
	WorkerWaiting
)

// workerStatusStrings maps each WorkerStatus constant to its human-readable label.
var workerStatusStrings = []string{
	"idle",
	"running",
	"completed",
	"failed",
	"retrying",
	"waiting",
}

// String returns a human-readable label for the WorkerStatus.
// Returns "unknown" for values outside the defined range.
func (s WorkerStatus) String() string {
	if int(s) < 0 || int(s) >= len(workerStatusStrings) {
		return "unknown"
	}
	return workerStatusStrings[s]
}

// WorkerStatusMsg signals a worker lifecycle change for one item.
// It is dispatched whenever a worker transitions between states (e.g. from
// WorkerIdle to WorkerRunning when a new item is popped off pending).
type WorkerStatusMsg struct {
	// ItemID is the work item whose worker status changed.
	ItemID string
	// Status is the new lifecycle state.
	Status WorkerStatus
	// Step is the name of the step currently executing, if any.
	Step string
	// Detail is an optional human-readable description of the transition.
	Detail string
	// Timestamp records when the status transition occurred.
	Timestamp time.Time
}

// ---------------------------------------------------------------------------
// Phase Messages
// ---------------------------------------------------------------------------

// PhaseEventMsg mirrors a phase.Event from the coordinator: a transition
// into, through, or out of Setup, Map, Reduce or Merge.
type PhaseEventMsg struct {
	// Phase is the phase the event concerns (e.g. "map", "reduce").
	Phase string
	// Type categorizes the event (e.g. "phase_started", "phase_completed",
	// "checkpoint_written").
	Type string
	// Message is a human-readable description of the event.
	Message string
	// Err is set when the event reports a phase failure; empty otherwise.
	Err string
	// Timestamp records when the coordinator emitted this event.
	Timestamp time.Time
}

// ---------------------------------------------------------------------------
// Item Progress Messages
// ---------------------------------------------------------------------------

// ItemProgressMsg signals an update to the map-phase item-partition counts
// (spec's pending/in_progress/completed/failed/dead_lettered split), sourced
// from the scheduler's workitem.Set after each item settles.
type ItemProgressMsg struct {
	// Phase is the phase these counts belong to (almost always "map").
	Phase string
	// Pending, InProgress, Completed, Failed and DeadLettered are the
	// current size of each workitem.Set partition.
	Pending      int
	InProgress   int
	Completed    int
	Failed       int
	DeadLettered int
	// Total is the job's total item count.
	Total int
	// Timestamp records when this snapshot was taken.
	Timestamp time.Time
}

// ---------------------------------------------------------------------------
// Retry Backoff Messages
// ---------------------------------------------------------------------------

// RetryBackoffMsg signals that dlq.Policy.Decide chose to retry a failed
// item after a backoff wait. The TUI uses Wait/ResetAt to display a live
// countdown until the item is re-queued.
type RetryBackoffMsg struct {
	// ItemID is the item being retried.
	ItemID string
	// Wait is the backoff duration returned by dlq.Policy.Decide.
	Wait time.Duration
	// ResetAt is the absolute time the item becomes eligible for re-queue.
	ResetAt time.Time
	// Timestamp records when the backoff decision was made.
	Timestamp time.Time
}

// ---------------------------------------------------------------------------
// Internal TUI Messages
// ---------------------------------------------------------------------------

// TickMsg is sent periodically to trigger timer updates such as retry-backoff
// countdowns and elapsed-time displays.
type TickMsg struct {
	// Time is the wall-clock time at which the tick fired.
	Time time.Time
}

// ErrorMsg represents a non-fatal error to display in the event log.
// Fatal errors should cause program termination via tea.Quit; ErrorMsg is
// reserved for recoverable issues that the user should be aware of.
type ErrorMsg struct {
	// Source identifies the component that generated the error (e.g. "scheduler", "worker").
	Source string
	// Detail is the human-readable error description.
	Detail string
	// Timestamp records when the error was observed.
	Timestamp time.Time
}

// FocusChangedMsg signals that keyboard focus moved to a different panel.
// The TUI dispatches this message whenever the user navigates between the
// sidebar, worker panel, and event log.
type FocusChangedMsg struct {
	// Panel is the panel that has received focus.
	// FocusPanel is defined in app.go (same package).
	Panel FocusPanel
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// TickCmd returns a tea.Cmd that sends a single TickMsg after duration d.
// Use this helper instead of time.After in goroutines to stay within Bubble
// Tea's Elm architecture and avoid data races.
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// TickEvery returns a tea.Cmd that sends a TickMsg after duration d.
// The caller's Update handler should call TickEvery again upon receiving a
// TickMsg to create recurring ticks via the recursive scheduling pattern:
//
//	case TickMsg:
//	    // update state...
//	    return m, TickEvery(interval)
func TickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
