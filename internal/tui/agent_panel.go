package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MaxOutputLines is the maximum number of output lines retained per item in
// the ring buffer. Once the buffer is full, the oldest lines are overwritten.
const MaxOutputLines = 1000

// ---------------------------------------------------------------------------
// OutputBuffer
// ---------------------------------------------------------------------------

// OutputBuffer is a fixed-capacity ring buffer for worker output lines.
// When the buffer is full the oldest line is overwritten by the newest.
// The zero value is not usable; always construct via NewOutputBuffer.
type OutputBuffer struct {
	lines []string
	start int // logical ring-buffer start index (not pre-reduced)
	count int // number of valid entries currently in the buffer
	cap   int // maximum capacity
}

// NewOutputBuffer creates an OutputBuffer with the given capacity.
// If capacity is <= 0, it defaults to MaxOutputLines.
func NewOutputBuffer(capacity int) OutputBuffer {
	if capacity <= 0 {
		capacity = MaxOutputLines
	}
	return OutputBuffer{
		lines: make([]string, capacity),
		cap:   capacity,
	}
}

// Append adds a line to the buffer. When the buffer is at capacity the oldest
// line is evicted to make room for the new one.
func (b *OutputBuffer) Append(line string) {
	if b.count < b.cap {
		// Buffer still has room: write at the next free slot.
		b.lines[(b.start+b.count)%b.cap] = line
		b.count++
	} else {
		// Buffer is full: overwrite the oldest slot and advance start.
		b.lines[b.start%b.cap] = line
		b.start = (b.start + 1) % b.cap
		// count stays at cap.
	}
}

// Lines returns a slice of all buffered lines in order from oldest to newest.
// The returned slice is a newly allocated copy; mutations do not affect the
// buffer.
func (b OutputBuffer) Lines() []string {
	if b.count == 0 {
		return nil
	}
	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%b.cap]
	}
	return out
}

// Len returns the number of lines currently stored in the buffer.
func (b OutputBuffer) Len() int {
	return b.count
}

// ---------------------------------------------------------------------------
// ItemView
// ---------------------------------------------------------------------------

// ItemView holds the display state for a single work item within the worker
// panel. It owns a viewport for scrollable output and an OutputBuffer for the
// ring buffer of output lines.
type ItemView struct {
	itemID     string
	status     WorkerStatus
	step       string
	detail     string
	viewport   viewport.Model
	buffer     OutputBuffer
	autoScroll bool
}

// newItemView constructs an ItemView with autoScroll enabled and an
// OutputBuffer of MaxOutputLines capacity.
func newItemView(itemID string) *ItemView {
	vp := viewport.New(0, 0)
	return &ItemView{
		itemID:     itemID,
		status:     WorkerIdle,
		buffer:     NewOutputBuffer(MaxOutputLines),
		viewport:   vp,
		autoScroll: true,
	}
}

// rebuildContent replaces the viewport content with the current buffer lines,
// joined by newlines. Tab characters are normalised to four spaces.
func (iv *ItemView) rebuildContent() {
	lines := iv.buffer.Lines()
	// Normalise tabs to spaces.
	for i, l := range lines {
		lines[i] = strings.ReplaceAll(l, "\t", "    ")
	}
	iv.viewport.SetContent(strings.Join(lines, "\n"))
	if iv.autoScroll {
		iv.viewport.GotoBottom()
	}
}

// ---------------------------------------------------------------------------
// AgentPanelModel
// ---------------------------------------------------------------------------

// AgentPanelModel manages the tabbed work-item output display in the
// right-hand upper panel of the mrctl TUI. Each concurrently running item
// gets its own scrollable viewport; tabs allow switching between items when
// multiple are in flight.
//
// AgentPanelModel follows Bubble Tea's Elm architecture: Update returns a new
// value, and View is a pure function of the model state.
type AgentPanelModel struct {
	theme     Theme
	width     int
	height    int
	focused   bool
	items     map[string]*ItemView
	itemOrder []string // insertion-ordered item IDs
	activeTab int
}

// NewAgentPanelModel creates an AgentPanelModel with an empty item map and
// the default auto-scroll behaviour.
func NewAgentPanelModel(theme Theme) AgentPanelModel {
	return AgentPanelModel{
		theme: theme,
		items: make(map[string]*ItemView),
	}
}

// SetDimensions updates the panel width and height and resizes all item
// viewports accordingly. Items with autoScroll enabled are scrolled to the
// bottom, and the active item's content is rebuilt.
func (ap *AgentPanelModel) SetDimensions(width, height int) {
	ap.width = width
	ap.height = height

	vpHeight := ap.viewportHeight()

	for _, iv := range ap.items {
		iv.viewport.Width = width
		iv.viewport.Height = vpHeight
		if iv.autoScroll {
			iv.viewport.GotoBottom()
		}
	}

	// Rebuild content for the active item so the viewport reflects the new
	// dimensions immediately.
	if active := ap.activeItemView(); active != nil {
		active.rebuildContent()
	}
}

// SetFocused sets whether the worker panel currently holds keyboard focus.
// When false, all keyboard events are ignored.
func (ap *AgentPanelModel) SetFocused(focused bool) {
	ap.focused = focused
}

// ActiveItem returns the ID of the currently displayed item tab, or an
// empty string when no items are registered.
func (ap AgentPanelModel) ActiveItem() string {
	if len(ap.itemOrder) == 0 {
		return ""
	}
	if ap.activeTab < 0 || ap.activeTab >= len(ap.itemOrder) {
		return ap.itemOrder[0]
	}
	return ap.itemOrder[ap.activeTab]
}

// activeItemView returns the ItemView for the currently active tab,
// or nil when no items exist.
func (ap AgentPanelModel) activeItemView() *ItemView {
	id := ap.ActiveItem()
	if id == "" {
		return nil
	}
	return ap.items[id]
}

// viewportHeight returns the number of rows available for the viewport given
// the current panel dimensions. The header row is always reserved; the tab bar
// row is additionally reserved when there are 2+ items.
func (ap AgentPanelModel) viewportHeight() int {
	overhead := 1 // header row
	if len(ap.itemOrder) >= 2 {
		overhead++ // tab bar row
	}
	h := ap.height - overhead
	if h < 0 {
		h = 0
	}
	return h
}

// getOrCreateItem returns the ItemView for the given item ID, creating one if
// it does not yet exist and registering it in the ordered list.
func (ap *AgentPanelModel) getOrCreateItem(itemID string) *ItemView {
	if iv, ok := ap.items[itemID]; ok {
		return iv
	}
	iv := newItemView(itemID)
	iv.viewport.Width = ap.width
	iv.viewport.Height = ap.viewportHeight()
	ap.items[itemID] = iv
	ap.itemOrder = append(ap.itemOrder, itemID)
	return iv
}

// Update processes incoming tea.Msg values and returns the updated model and
// any follow-up command.
//
// Handled messages:
//   - WorkerOutputMsg   — appends a line to the named item's buffer and
//     updates the viewport if that item is currently active.
//   - WorkerStatusMsg   — updates the named item's status, step, and detail.
//   - FocusChangedMsg   — updates the focused flag.
//   - tea.KeyMsg        — scrolling and tab-switching when focused.
func (ap AgentPanelModel) Update(msg tea.Msg) (AgentPanelModel, tea.Cmd) {
	switch msg := msg.(type) {
	case WorkerOutputMsg:
		ap = ap.handleWorkerOutput(msg)

	case WorkerStatusMsg:
		ap = ap.handleWorkerStatus(msg)

	case FocusChangedMsg:
		ap.focused = msg.Panel == FocusAgentPanel

	case tea.KeyMsg:
		if ap.focused {
			return ap.handleKey(msg)
		}
	}

	return ap, nil
}

// handleWorkerOutput appends the line to the named item's ring buffer.
// If the item is currently the active tab, the viewport content is rebuilt
// and auto-scroll is applied.
func (ap AgentPanelModel) handleWorkerOutput(msg WorkerOutputMsg) AgentPanelModel {
	iv := ap.getOrCreateItem(msg.ItemID)
	iv.buffer.Append(msg.Line)

	// Rebuild the viewport only for the currently visible item to avoid
	// unnecessary string construction for background items.
	if ap.ActiveItem() == msg.ItemID {
		iv.rebuildContent()
	}

	return ap
}

// handleWorkerStatus updates the item's status, step, and detail fields.
func (ap AgentPanelModel) handleWorkerStatus(msg WorkerStatusMsg) AgentPanelModel {
	iv := ap.getOrCreateItem(msg.ItemID)
	iv.status = msg.Status
	iv.step = msg.Step
	iv.detail = msg.Detail
	return ap
}

// handleKey processes keyboard input when the panel is focused. Returns the
// updated model and an optional command.
//
// When only one item is registered and the user presses Tab, the key message
// is returned as a command so the parent model can advance focus to the next
// panel instead.
func (ap AgentPanelModel) handleKey(msg tea.KeyMsg) (AgentPanelModel, tea.Cmd) {
	// Guard against out-of-bounds activeTab.
	if ap.activeTab >= len(ap.itemOrder) {
		ap.activeTab = 0
	}

	n := len(ap.itemOrder)

	switch msg.Type {
	case tea.KeyTab:
		if n >= 2 {
			ap.activeTab = (ap.activeTab + 1) % n
			ap.switchToActiveTab()
			return ap, nil
		}
		// Single item: pass Tab through to parent for focus switching.
		return ap, func() tea.Msg { return msg }

	case tea.KeyShiftTab:
		if n >= 2 {
			ap.activeTab = (ap.activeTab - 1 + n) % n
			ap.switchToActiveTab()
			return ap, nil
		}
		return ap, func() tea.Msg { return msg }

	case tea.KeyDown:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.ScrollDown(1)
			if iv.viewport.AtBottom() {
				iv.autoScroll = true
			} else {
				iv.autoScroll = false
			}
		}
		return ap, nil

	case tea.KeyUp:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.ScrollUp(1)
			if iv.viewport.AtBottom() {
				iv.autoScroll = true
			} else {
				iv.autoScroll = false
			}
		}
		return ap, nil

	case tea.KeyPgDown:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.PageDown()
			if iv.viewport.AtBottom() {
				iv.autoScroll = true
			} else {
				iv.autoScroll = false
			}
		}
		return ap, nil

	case tea.KeyPgUp:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.PageUp()
			if iv.viewport.AtBottom() {
				iv.autoScroll = true
			} else {
				iv.autoScroll = false
			}
		}
		return ap, nil

	case tea.KeyHome:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.GotoTop()
			iv.autoScroll = false
		}
		return ap, nil

	case tea.KeyEnd:
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.GotoBottom()
			iv.autoScroll = true
		}
		return ap, nil

	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "j":
			iv := ap.activeItemView()
			if iv != nil {
				iv.viewport.ScrollDown(1)
				if iv.viewport.AtBottom() {
					iv.autoScroll = true
				} else {
					iv.autoScroll = false
				}
			}
		case "k":
			iv := ap.activeItemView()
			if iv != nil {
				iv.viewport.ScrollUp(1)
				if iv.viewport.AtBottom() {
					iv.autoScroll = true
				} else {
					iv.autoScroll = false
				}
			}
		case "g":
			iv := ap.activeItemView()
			if iv != nil {
				iv.viewport.GotoTop()
				iv.autoScroll = false
			}
		case "G":
			iv := ap.activeItemView()
			if iv != nil {
				iv.viewport.GotoBottom()
				iv.autoScroll = true
			}
		case "b":
			iv := ap.activeItemView()
			if iv != nil {
				iv.viewport.PageUp()
				if iv.viewport.AtBottom() {
					iv.autoScroll = true
				} else {
					iv.autoScroll = false
				}
			}
		}
		return ap, nil

	case tea.KeySpace:
		// Space = page down.
		iv := ap.activeItemView()
		if iv != nil {
			iv.viewport.PageDown()
			if iv.viewport.AtBottom() {
				iv.autoScroll = true
			} else {
				iv.autoScroll = false
			}
		}
		return ap, nil

	default:
	}

	return ap, nil
}

// switchToActiveTab rebuilds the active item's viewport content so the
// newly selected tab is rendered with up-to-date output. This is called
// after changing ap.activeTab.
func (ap *AgentPanelModel) switchToActiveTab() {
	// Adjust viewport height: adding the first item does not change the
	// overhead calculation, but switching between 2+ items might require
	// height adjustment when dimensions changed since last switch.
	vpHeight := ap.viewportHeight()
	if active := ap.activeItemView(); active != nil {
		active.viewport.Width = ap.width
		active.viewport.Height = vpHeight
		active.rebuildContent()
	}
}

// ---------------------------------------------------------------------------
// View helpers
// ---------------------------------------------------------------------------

// tabBarView renders the tab bar row when two or more items are present.
// Each tab shows the item ID; the active tab is rendered with
// AgentTabActive, the rest with AgentTab.
func (ap AgentPanelModel) tabBarView() string {
	var sb strings.Builder
	for i, id := range ap.itemOrder {
		if i == ap.activeTab {
			sb.WriteString(ap.theme.AgentTabActive.Render(id))
		} else {
			sb.WriteString(ap.theme.AgentTab.Render(id))
		}
	}
	return sb.String()
}

// agentHeaderView renders the single-line header for the active item showing
// the status indicator, item ID, and current step (if any).
func (ap AgentPanelModel) agentHeaderView() string {
	iv := ap.activeItemView()
	if iv == nil {
		return ap.theme.AgentHeader.Render("No item")
	}

	indicator := ap.theme.StatusIndicator(iv.status)
	label := iv.itemID
	if iv.step != "" {
		label = iv.itemID + "  " + iv.step
	}

	return indicator + " " + ap.theme.AgentHeader.Render(label)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the worker panel as a string. It returns an empty string when
// the panel dimensions have not been set. When no items are registered it
// shows a centred "Waiting for work items..." placeholder. Otherwise it
// renders an optional tab bar (2+ items), the item header, and the
// scrollable viewport output.
func (ap AgentPanelModel) View() string {
	if ap.width <= 0 || ap.height <= 0 {
		return ""
	}

	// Guard out-of-bounds activeTab.
	if ap.activeTab >= len(ap.itemOrder) {
		ap.activeTab = 0
	}

	// No items registered yet: show a placeholder.
	if len(ap.itemOrder) == 0 {
		placeholder := "Waiting for work items..."
		styled := ap.theme.AgentOutput.Render(placeholder)
		return lipgloss.Place(ap.width, ap.height, lipgloss.Center, lipgloss.Center, styled)
	}

	var sb strings.Builder

	// Tab bar (only when 2+ items).
	if len(ap.itemOrder) >= 2 {
		sb.WriteString(ap.tabBarView())
		sb.WriteString("\n")
	}

	// Item header line.
	sb.WriteString(ap.agentHeaderView())
	sb.WriteString("\n")

	// Viewport output.
	iv := ap.activeItemView()
	if iv != nil {
		sb.WriteString(iv.viewport.View())
	}

	return sb.String()
}
