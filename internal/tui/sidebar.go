package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ---------------------------------------------------------------------------
// PhaseStatus
// ---------------------------------------------------------------------------

// PhaseStatus represents the lifecycle state of a job phase for display
// purposes in the sidebar.
type PhaseStatus int

const (
	// PhaseIdle means the phase is known but not currently active.
	PhaseIdle PhaseStatus = iota
	// PhaseRunning means the phase is actively executing.
	PhaseRunning
	// PhasePaused means the phase has been suspended mid-execution.
	PhasePaused
	// PhaseCompleted means the phase finished successfully.
	PhaseCompleted
	// PhaseFailed means the phase encountered a terminal error.
	PhaseFailed
)

// phaseStatusStrings maps each PhaseStatus constant to its string label.
var phaseStatusStrings = []string{
	"idle",
	"running",
	"paused",
	"completed",
	"failed",
}

// String returns a human-readable label for the PhaseStatus.
// Returns "unknown" for values outside the defined range.
func (s PhaseStatus) String() string {
	if int(s) < 0 || int(s) >= len(phaseStatusStrings) {
		return "unknown"
	}
	return phaseStatusStrings[s]
}

// phaseStatusFromEvent maps a PhaseEventMsg.Type string to a PhaseStatus.
// Unrecognised event types map to PhaseRunning so that any observed
// transition keeps the phase visible as active.
func phaseStatusFromEvent(msg PhaseEventMsg) PhaseStatus {
	if msg.Err != "" {
		return PhaseFailed
	}
	switch strings.ToLower(msg.Type) {
	case "phase_started", "started", "running":
		return PhaseRunning
	case "phase_paused", "paused", "waiting":
		return PhasePaused
	case "phase_completed", "completed", "done", "success":
		return PhaseCompleted
	case "phase_failed", "failed", "error":
		return PhaseFailed
	default:
		return PhaseRunning
	}
}

// ---------------------------------------------------------------------------
// PhaseEntry
// ---------------------------------------------------------------------------

// PhaseEntry holds the display data for a single job phase entry rendered in
// the sidebar phase list.
type PhaseEntry struct {
	// ID is the phase name, used as the deduplication key (e.g. "map").
	ID string
	// Status is the current lifecycle state.
	Status PhaseStatus
	// StartedAt records when the phase was first observed.
	StartedAt time.Time
	// Detail is optional context such as the last event message.
	Detail string
}

// ---------------------------------------------------------------------------
// ItemProgressSection
// ---------------------------------------------------------------------------

// ItemProgressSection tracks work-item partition counts for the sidebar. It
// is a value type; all mutations return a new copy, consistent with the
// Bubble Tea Elm-architecture pattern used throughout the TUI package.
type ItemProgressSection struct {
	theme Theme

	// phase is the name of the phase these counts belong to.
	phase string

	// Overall item counts across the active phase.
	total        int
	completed    int
	pending      int
	inProgress   int
	failed       int
	deadLettered int
}

// NewItemProgressSection creates an ItemProgressSection with the given theme
// and zero-initialised counters.
func NewItemProgressSection(theme Theme) ItemProgressSection {
	return ItemProgressSection{theme: theme}
}

// Update processes an ItemProgressMsg and returns the updated section.
func (ip ItemProgressSection) Update(msg ItemProgressMsg) ItemProgressSection {
	ip.phase = msg.Phase
	ip.total = clampNonNegative(msg.Total)
	ip.completed = clampNonNegative(msg.Completed)
	ip.pending = clampNonNegative(msg.Pending)
	ip.inProgress = clampNonNegative(msg.InProgress)
	ip.failed = clampNonNegative(msg.Failed)
	ip.deadLettered = clampNonNegative(msg.DeadLettered)

	if ip.completed > ip.total {
		ip.completed = ip.total
	}

	return ip
}

// clampNonNegative returns 0 for negative values and n otherwise.
func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// View renders the item progress section as a string constrained to width
// columns: a header naming the active phase, a progress bar for
// completed/total, and a one-line breakdown of pending/in-progress/failed/
// dead-lettered counts.
func (ip ItemProgressSection) View(width int) string {
	var sb strings.Builder

	header := "Items"
	if ip.phase != "" {
		header = fmt.Sprintf("Items: %s", ip.phase)
	}
	sb.WriteString(ip.theme.SidebarTitle.Render(header))
	sb.WriteString("\n")

	if ip.total == 0 {
		sb.WriteString(ip.theme.SidebarItem.Render("No items"))
		sb.WriteString("\n")
		return sb.String()
	}

	fraction := float64(ip.completed) / float64(ip.total)

	barWidth := width - 2 // 1-char padding each side
	if barWidth < 1 {
		barWidth = 1
	}

	sb.WriteString(ip.theme.ProgressBar(fraction, barWidth))
	sb.WriteString("\n")
	sb.WriteString(ip.theme.ProgressPercent.Render(fmt.Sprintf("%d%%", int(fraction*100))))
	sb.WriteString("\n")
	sb.WriteString(ip.theme.ProgressLabel.Render(fmt.Sprintf("%d/%d done", ip.completed, ip.total)))
	sb.WriteString("\n")

	breakdown := fmt.Sprintf("pending %d | running %d | failed %d | dlq %d",
		ip.pending, ip.inProgress, ip.failed, ip.deadLettered)
	sb.WriteString(ip.theme.SidebarItem.Render(breakdown))
	sb.WriteString("\n")

	return sb.String()
}

// ---------------------------------------------------------------------------
// ItemBackoff
// ---------------------------------------------------------------------------

// ItemBackoff tracks the retry-backoff state for a single work item.
// It is a value type used inside BackoffSection.
type ItemBackoff struct {
	// ItemID is the work item waiting on a backoff timer.
	ItemID string
	// ResetAt is the absolute time at which the item becomes eligible for
	// re-queue.
	ResetAt time.Time
	// Remaining is the time left until the item is re-queued, recalculated on
	// each TickMsg using time.Until(ResetAt).
	Remaining time.Duration
	// Active is true while the countdown is running (Remaining > 0).
	Active bool
}

// ---------------------------------------------------------------------------
// BackoffSection
// ---------------------------------------------------------------------------

// BackoffSection renders the retry-backoff status display in the sidebar.
// It tracks per-item state and drives a per-second countdown timer via
// TickCmd. It is a value type consistent with Bubble Tea's Elm architecture.
type BackoffSection struct {
	theme Theme
	// items maps item ID → backoff state.
	items map[string]*ItemBackoff
	// order holds item IDs in stable insertion order for rendering.
	order []string
}

// NewBackoffSection creates a BackoffSection initialised with the given
// theme and an empty item map.
func NewBackoffSection(theme Theme) BackoffSection {
	return BackoffSection{
		theme: theme,
		items: make(map[string]*ItemBackoff),
	}
}

// Update handles RetryBackoffMsg and TickMsg messages and returns the
// updated section together with a follow-up command.
//
//   - RetryBackoffMsg: registers or updates the named item's reset time,
//     marks it Active, and returns TickCmd(time.Second) to start the countdown.
//   - TickMsg: recalculates Remaining = time.Until(ResetAt) for every item
//     and clears Active when Remaining has reached zero. Returns TickCmd if any
//     item is still active; nil otherwise.
func (bs BackoffSection) Update(msg tea.Msg) (BackoffSection, tea.Cmd) {
	switch msg := msg.(type) {
	case RetryBackoffMsg:
		bs = bs.applyRetryBackoffMsg(msg)
		return bs, TickCmd(time.Second)

	case TickMsg:
		_ = msg // tick time not needed; Remaining is recalculated via time.Until(ResetAt)
		bs = bs.tick()
		if bs.HasActiveBackoff() {
			return bs, TickCmd(time.Second)
		}
		return bs, nil
	}

	return bs, nil
}

// applyRetryBackoffMsg updates (or inserts) the item entry from a
// RetryBackoffMsg. It copies the items map and order slice to honour
// value-receiver semantics.
func (bs BackoffSection) applyRetryBackoffMsg(msg RetryBackoffMsg) BackoffSection {
	key := msg.ItemID

	// Determine ResetAt: prefer the explicit ResetAt if non-zero; otherwise
	// derive from Wait relative to the message timestamp.
	resetAt := msg.ResetAt
	if resetAt.IsZero() {
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		resetAt = ts.Add(msg.Wait)
	}

	remaining := time.Until(resetAt)
	if remaining < 0 {
		remaining = 0
	}

	// Copy items map for immutability.
	newItems := make(map[string]*ItemBackoff, len(bs.items))
	for k, v := range bs.items {
		cp := *v
		newItems[k] = &cp
	}

	newOrder := bs.order
	if _, exists := newItems[key]; !exists {
		// Append to order only for new items; copy the slice first.
		newOrder = make([]string, len(bs.order)+1)
		copy(newOrder, bs.order)
		newOrder[len(bs.order)] = key
	}

	newItems[key] = &ItemBackoff{
		ItemID:    key,
		ResetAt:   resetAt,
		Remaining: remaining,
		Active:    true,
	}

	bs.items = newItems
	bs.order = newOrder
	return bs
}

// tick recalculates Remaining for every item and deactivates expired ones.
func (bs BackoffSection) tick() BackoffSection {
	if len(bs.items) == 0 {
		return bs
	}

	newItems := make(map[string]*ItemBackoff, len(bs.items))
	for k, v := range bs.items {
		cp := *v
		if cp.Active {
			cp.Remaining = time.Until(cp.ResetAt)
			if cp.Remaining <= 0 {
				cp.Remaining = 0
				cp.Active = false
			}
		}
		newItems[k] = &cp
	}

	bs.items = newItems
	return bs
}

// HasActiveBackoff returns true when at least one item currently has
// Active == true.
func (bs BackoffSection) HasActiveBackoff() bool {
	for _, ib := range bs.items {
		if ib.Active {
			return true
		}
	}
	return false
}

// View renders the "Retries" section header followed by one line per known
// item. Lines are truncated to fit within width columns.
//
// Format per item:
//   - No active backoff: "{id}: OK"
//   - Active backoff:    "{id}: WAIT M:SS"
//
// When no items are known, a placeholder "No retries" line is shown instead.
func (bs BackoffSection) View(width int) string {
	var sb strings.Builder

	sb.WriteString(bs.theme.SidebarTitle.Render("Retries"))
	sb.WriteString("\n")

	if len(bs.order) == 0 {
		sb.WriteString(bs.theme.SidebarItem.Render("No retries"))
		sb.WriteString("\n")
		return sb.String()
	}

	for _, key := range bs.order {
		ib, ok := bs.items[key]
		if !ok {
			continue
		}

		name := ib.ItemID
		if name == "" {
			name = key
		}

		var line string
		if ib.Active {
			countdown := formatCountdown(ib.Remaining)
			suffix := ": " + bs.theme.StatusWaiting.Render("WAIT "+countdown)
			if width > 0 {
				suffixWidth := lipgloss.Width(": WAIT " + countdown)
				nameAllowed := width - suffixWidth
				if nameAllowed < 1 {
					nameAllowed = 1
				}
				line = truncateName(name, nameAllowed) + suffix
			} else {
				line = name + suffix
			}
		} else {
			suffix := ": " + bs.theme.StatusCompleted.Render("OK")
			if width > 0 {
				suffixWidth := lipgloss.Width(": OK")
				nameAllowed := width - suffixWidth
				if nameAllowed < 1 {
					nameAllowed = 1
				}
				line = truncateName(name, nameAllowed) + suffix
			} else {
				line = name + suffix
			}
		}

		sb.WriteString(bs.theme.SidebarItem.Render(line))
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatCountdown formats a duration as "M:SS" (under 1 hour) or "H:MM:SS"
// (1 hour or more). Negative durations return "0:00".
func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}

	totalSec := int(d.Seconds())
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ---------------------------------------------------------------------------
// SidebarModel
// ---------------------------------------------------------------------------

// SidebarModel is the Bubble Tea sub-model for the sidebar panel.
// It maintains the phase list section, the item progress section, and the
// retry-backoff status section.
//
// Update returns (SidebarModel, tea.Cmd) — not (tea.Model, tea.Cmd) — so the
// parent App must store the returned value in its own sidebar field.
type SidebarModel struct {
	theme  Theme
	width  int
	height int

	// focused indicates whether the sidebar currently holds keyboard focus.
	focused bool

	// phases is the ordered list of tracked job phases.
	phases []PhaseEntry
	// phaseIndex maps PhaseEntry.ID → slice index for O(1) dedup.
	phaseIndex map[string]int
	// selectedIdx is the index of the currently highlighted phase.
	selectedIdx int
	// scrollOffset is the first visible row index inside the phase list.
	scrollOffset int

	// itemProgress tracks work-item partition counts for the active phase.
	itemProgress ItemProgressSection

	// backoffs holds the per-item retry-backoff countdown display.
	backoffs BackoffSection
}

// NewSidebarModel creates a SidebarModel with the given theme and an empty
// phase list. Dimensions default to zero until SetDimensions is called.
func NewSidebarModel(theme Theme) SidebarModel {
	return SidebarModel{
		theme:        theme,
		phaseIndex:   make(map[string]int),
		itemProgress: NewItemProgressSection(theme),
		backoffs:     NewBackoffSection(theme),
	}
}

// SetDimensions updates the sidebar panel size. This should be called
// whenever the parent App processes a tea.WindowSizeMsg.
func (m *SidebarModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// SetFocused sets whether the sidebar has keyboard focus. When focused is
// false, navigation key events are ignored.
func (m *SidebarModel) SetFocused(focused bool) {
	m.focused = focused
}

// SelectedPhase returns the ID of the currently selected phase, or an empty
// string when the phase list is empty.
func (m SidebarModel) SelectedPhase() string {
	if len(m.phases) == 0 {
		return ""
	}
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.phases) {
		return ""
	}
	return m.phases[m.selectedIdx].ID
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// Update processes incoming tea.Msg values and returns the updated model and
// any follow-up command.
//
// Handled messages:
//   - PhaseEventMsg     — adds or updates a phase in the list
//   - ItemProgressMsg   — updates work-item partition counters
//   - RetryBackoffMsg   — registers or updates an item's backoff countdown
//   - TickMsg           — advances the retry-backoff countdown timers
//   - FocusChangedMsg   — updates the focused flag
//   - tea.KeyMsg        — j/k/up/down navigation when focused
func (m SidebarModel) Update(msg tea.Msg) (SidebarModel, tea.Cmd) {
	switch msg := msg.(type) {
	case PhaseEventMsg:
		m = m.handlePhaseEvent(msg)

	case ItemProgressMsg:
		m.itemProgress = m.itemProgress.Update(msg)

	case RetryBackoffMsg:
		var cmd tea.Cmd
		m.backoffs, cmd = m.backoffs.Update(msg)
		return m, cmd

	case TickMsg:
		var cmd tea.Cmd
		m.backoffs, cmd = m.backoffs.Update(msg)
		return m, cmd

	case FocusChangedMsg:
		m.focused = msg.Panel == FocusSidebar

	case tea.KeyMsg:
		if m.focused {
			m = m.handleKeyMsg(msg)
		}
	}

	return m, nil
}

// handlePhaseEvent adds a new PhaseEntry or updates the status of an
// existing one. Phase name is used as the deduplication key.
func (m SidebarModel) handlePhaseEvent(msg PhaseEventMsg) SidebarModel {
	id := msg.Phase
	status := phaseStatusFromEvent(msg)

	if idx, exists := m.phaseIndex[id]; exists {
		// Update in place — create a new slice copy to stay immutable.
		updated := make([]PhaseEntry, len(m.phases))
		copy(updated, m.phases)
		updated[idx].Status = status
		updated[idx].Detail = msg.Message
		m.phases = updated
	} else {
		// Append a new entry.
		entry := PhaseEntry{
			ID:        id,
			Status:    status,
			StartedAt: msg.Timestamp,
			Detail:    msg.Message,
		}

		// Copy the map to preserve value-receiver immutability.
		newIndex := make(map[string]int, len(m.phaseIndex)+1)
		for k, v := range m.phaseIndex {
			newIndex[k] = v
		}
		newIndex[id] = len(m.phases)
		m.phaseIndex = newIndex

		m.phases = append(m.phases, entry)
	}

	return m
}

// handleKeyMsg processes navigation key events when the sidebar is focused.
func (m SidebarModel) handleKeyMsg(msg tea.KeyMsg) SidebarModel {
	n := len(m.phases)
	if n == 0 {
		return m
	}

	switch msg.Type {
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "j":
			m.selectedIdx = clampIdx(m.selectedIdx+1, n)
		case "k":
			m.selectedIdx = clampIdx(m.selectedIdx-1, n)
		}
	case tea.KeyDown:
		m.selectedIdx = clampIdx(m.selectedIdx+1, n)
	case tea.KeyUp:
		m.selectedIdx = clampIdx(m.selectedIdx-1, n)
	default:
	}

	m.scrollOffset = adjustScroll(m.scrollOffset, m.selectedIdx, m.listHeight())
	return m
}

// clampIdx clamps idx to [0, n-1].
func clampIdx(idx, n int) int {
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// adjustScroll ensures the selected row is visible in the scroll window.
// It returns the updated scroll offset.
func adjustScroll(offset, selected, visible int) int {
	if visible <= 0 {
		return 0
	}
	if selected < offset {
		return selected
	}
	if selected >= offset+visible {
		return selected - visible + 1
	}
	return offset
}

// ---------------------------------------------------------------------------
// View helpers
// ---------------------------------------------------------------------------

// listHeight returns the number of rows available for phase entries inside
// the sidebar, accounting for the section header and separators.
func (m SidebarModel) listHeight() int {
	const headerRows = 2 // header line + margin-bottom blank line
	h := m.height - headerRows
	if h < 0 {
		return 0
	}
	return h
}

// phaseIndicator returns a styled Unicode symbol for the given PhaseStatus.
//
//	PhaseRunning   → "●"  (theme.StatusRunning)
//	PhaseIdle      → "○"  (theme.StatusBlocked — muted)
//	PhasePaused    → "◌"  (theme.StatusWaiting)
//	PhaseCompleted → "✓"  (theme.StatusCompleted)
//	PhaseFailed    → "✗"  (theme.StatusFailed)
func (m SidebarModel) phaseIndicator(status PhaseStatus) string {
	switch status {
	case PhaseRunning:
		return m.theme.StatusRunning.Render("●")
	case PhasePaused:
		return m.theme.StatusWaiting.Render("◌")
	case PhaseCompleted:
		return m.theme.StatusCompleted.Render("✓")
	case PhaseFailed:
		return m.theme.StatusFailed.Render("✗")
	default: // PhaseIdle and unknown values
		return m.theme.StatusBlocked.Render("○")
	}
}

// truncateName truncates name to fit within maxWidth visible columns.
// If the name is wider it is shortened and an ellipsis "…" (1 column wide) is
// appended. If maxWidth <= 0 an empty string is returned.
func truncateName(name string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	w := lipgloss.Width(name)
	if w <= maxWidth {
		return name
	}
	// Walk runes until we consume maxWidth-1 columns (leave room for "…").
	target := maxWidth - 1
	var sb strings.Builder
	col := 0
	for _, r := range name {
		rw := lipgloss.Width(string(r))
		if col+rw > target {
			break
		}
		sb.WriteRune(r)
		col += rw
	}
	sb.WriteString("…")
	return sb.String()
}

// phaseListView renders the phase list section (header + entries or
// placeholder). It does not apply the outer container style; that is handled
// by View().
func (m SidebarModel) phaseListView() string {
	var sb strings.Builder

	// Header.
	header := m.theme.SidebarTitle.Render("PHASES")
	sb.WriteString(header)
	sb.WriteString("\n")

	if len(m.phases) == 0 {
		placeholder := m.theme.SidebarItem.Render("No phases")
		sb.WriteString(placeholder)
		return sb.String()
	}

	// Determine visible slice via scroll window.
	visible := m.listHeight()
	if visible < 1 {
		visible = 1
	}

	start := m.scrollOffset
	end := start + visible
	if end > len(m.phases) {
		end = len(m.phases)
	}

	nameWidth := m.width - 2 // indicator + space
	if nameWidth < 1 {
		nameWidth = 1
	}

	for i := start; i < end; i++ {
		entry := m.phases[i]
		indicator := m.phaseIndicator(entry.Status)
		name := truncateName(entry.ID, nameWidth)
		line := indicator + " " + name

		if i == m.selectedIdx {
			if m.focused {
				sb.WriteString(m.theme.SidebarActive.Render(line))
			} else {
				sb.WriteString(m.theme.SidebarInactive.Render(line))
			}
		} else {
			sb.WriteString(m.theme.SidebarItem.Render(line))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the full sidebar panel as a string sized to the configured
// width and height. Sections are stacked vertically:
//
//  1. Phase list
//  2. Separator
//  3. Retry backoffs
//  4. Separator
//  5. Item progress
//  6. Padding rows to fill height
func (m SidebarModel) View() string {
	if m.width == 0 && m.height == 0 {
		return ""
	}

	var sb strings.Builder

	// Section 1: phase list.
	sb.WriteString(m.phaseListView())
	sb.WriteString("\n")

	// Section 2: retry backoffs.
	sb.WriteString(m.backoffs.View(m.width))
	sb.WriteString("\n")

	// Section 3: item progress.
	sb.WriteString(m.itemProgress.View(m.width))
	sb.WriteString("\n")

	content := sb.String()

	// Count the lines already rendered so we can pad to full height.
	renderedLines := strings.Count(content, "\n")

	// Trim the trailing newline before padding so lipgloss does not add an
	// extra blank line at the top.
	content = strings.TrimRight(content, "\n")

	// Pad remaining rows with blank lines.
	remaining := m.height - renderedLines
	if remaining > 0 {
		content += strings.Repeat("\n", remaining)
	}

	// Apply the outer container style (border + padding) if width > 0.
	// SidebarContainer has BorderRight(true), which adds 1 column. Subtract
	// it from Width() so the total rendered width equals m.width.
	if m.width > 0 {
		innerWidth := m.width - 1 // 1 for the right border character
		if innerWidth < 0 {
			innerWidth = 0
		}
		return m.theme.SidebarContainer.
			Width(innerWidth).
			Render(content)
	}

	return content
}
