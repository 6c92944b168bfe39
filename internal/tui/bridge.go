package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abz10m/mrctl/internal/phase"
)

// EventBridge converts backend event types (phase.Event, item-progress
// snapshots, worker output lines) into TUI messages that the Bubble Tea
// runtime can dispatch to the App model. It is intended to be used as a
// tea.Cmd producer that reads from backend channels and forwards events into
// the Bubble Tea program.
//
// All methods are goroutine-safe: they spawn a background goroutine that
// reads from the given channel and returns a tea.Cmd that can be placed in a
// Batch. The goroutines respect the provided context for cancellation.
type EventBridge struct{}

// NewEventBridge creates a new EventBridge. No internal state is maintained;
// the struct exists to provide a namespaced API for the bridge helpers.
func NewEventBridge() EventBridge {
	return EventBridge{}
}

// PhaseEventCmd returns a tea.Cmd that reads a single phase.Event from ch
// and converts it to a PhaseEventMsg. The command sends nil when the channel
// is closed or ctx is done.
//
// Usage: call repeatedly inside App.Update to keep draining the channel:
//
//	case PhaseEventMsg:
//	    // handle...
//	    return a, bridge.PhaseEventCmd(ctx, ch)
func (b EventBridge) PhaseEventCmd(ctx context.Context, ch <-chan phase.Event) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			return convertPhaseEvent(ev)
		}
	}
}

// convertPhaseEvent maps a phase.Event to its TUI message.
func convertPhaseEvent(ev phase.Event) PhaseEventMsg {
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	return PhaseEventMsg{
		Phase:     string(ev.Phase),
		Type:      string(ev.Type),
		Message:   ev.Message,
		Err:       errText,
		Timestamp: ev.Timestamp,
	}
}

// ItemProgressCmd returns a tea.Cmd that reads a single ItemProgressMsg from
// ch and forwards it unchanged. The command sends nil when the channel is
// closed or ctx is done.
func (b EventBridge) ItemProgressCmd(ctx context.Context, ch <-chan ItemProgressMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		}
	}
}

// WorkerOutputCmd returns a tea.Cmd that reads a single WorkerOutputMsg from
// ch and forwards it unchanged. The command sends nil when the channel is
// closed or ctx is done.
//
// Because WorkerOutputMsg is already a TUI message type, no conversion is
// needed. This helper exists for symmetry with the other bridge methods.
func (b EventBridge) WorkerOutputCmd(ctx context.Context, ch <-chan WorkerOutputMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		}
	}
}

// WorkerStatusCmd returns a tea.Cmd that reads a single WorkerStatusMsg from
// ch and forwards it unchanged. The command sends nil when the channel is
// closed or ctx is done.
func (b EventBridge) WorkerStatusCmd(ctx context.Context, ch <-chan WorkerStatusMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		}
	}
}

// RetryBackoffCmd returns a tea.Cmd that reads a single RetryBackoffMsg from
// ch and forwards it unchanged. The command sends nil when the channel is
// closed or ctx is done.
func (b EventBridge) RetryBackoffCmd(ctx context.Context, ch <-chan RetryBackoffMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		}
	}
}

// SendPhaseEvent is a convenience function that sends a phase.Event to the
// Bubble Tea program p by converting it to a PhaseEventMsg. It is intended
// for use outside the Elm update loop (e.g. from the goroutine draining
// phase.Coordinator's event channel in internal/cli) when direct channel
// bridging is not used.
func SendPhaseEvent(p *tea.Program, ev phase.Event) {
	p.Send(convertPhaseEvent(ev))
}

// SendWorkerOutput is a convenience function that sends a WorkerOutputMsg to
// the Bubble Tea program p with the given item ID, output line, stream
// label, and timestamp.
func SendWorkerOutput(p *tea.Program, itemID, line, stream string, ts time.Time) {
	p.Send(WorkerOutputMsg{
		ItemID:    itemID,
		Line:      line,
		Stream:    stream,
		Timestamp: ts,
	})
}
