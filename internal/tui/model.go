package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/util"
)

// loadTimeout bounds a single store round trip started from the UI.
const loadTimeout = 30 * time.Second

// KeyMap defines the keybindings for the TUI
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Prev       key.Binding
	Next       key.Binding
	Today      key.Binding
	Month      key.Binding
	Week       key.Binding
	Day        key.Binding
	Agenda     key.Binding
	Refresh    key.Binding
	Private    key.Binding
	Search     key.Binding
	Tab        key.Binding
	Quit       key.Binding
	Help       key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓", "down"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("ctrl+u", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("ctrl+d", "scroll down"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "previous"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "next"),
	),
	Today: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "today"),
	),
	Month: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "month"),
	),
	Week: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "week"),
	),
	Day: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "day"),
	),
	Agenda: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "agenda"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Private: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "private"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch panel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
}

// Panel focus for compact mode
type PanelFocus int

const (
	FocusList PanelFocus = iota
	FocusDetail
)

// Options configures a Model.
type Options struct {
	Title string
	// Optional; names the customer of the selected event.
	Customers core.CustomerDirectory
	// Optional; every notice triggers a re-fetch.
	Changes <-chan core.ChangeNotice
	Now     func() time.Time
}

// item is one event as listed, keyed by the day bucket it is drawn under.
type item struct {
	day   string
	event core.Event
}

// Model is the Bubble Tea model for the TUI
type Model struct {
	ctl  *calendar.Controller
	opts Options
	now  func() time.Time
	keys KeyMap

	snap    calendar.Snapshot
	loadGen uint64
	loading bool
	err     error

	selected     int
	selectedLine int
	names        map[string]string

	width         int
	height        int
	listWidth     int
	detailWidth   int
	contentHeight int
	listView      viewport.Model
	detailView    viewport.Model
	viewportReady bool
	compactMode   bool       // True when terminal is too narrow for side-by-side
	focusedPanel  PanelFocus // Which panel is shown in compact mode
	showHelp      bool

	searching bool
	search    textinput.Model
}

// NewModel creates a TUI over ctl. Nothing is fetched until Init.
func NewModel(ctl *calendar.Controller, opts Options) Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Title == "" {
		opts.Title = "crmcal"
	}
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "title, location, customer"
	search.CharLimit = 80

	return Model{
		ctl:     ctl,
		opts:    opts,
		now:     now,
		keys:    DefaultKeyMap,
		snap:    ctl.Snapshot(),
		loading: true,
		names:   make(map[string]string),
		search:  search,
	}
}

// Messages
type loadedMsg struct {
	gen uint64
	err error
}

type tickMsg time.Time

type changeMsg struct{ ok bool }

type nameMsg struct {
	id   string
	name string
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Minute, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init loads the initial range and starts the clock.
func (m Model) Init() tea.Cmd {
	ctl := m.ctl
	load := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		return loadedMsg{gen: 0, err: ctl.Refresh(ctx)}
	}
	return tea.Batch(load, tickCmd(), m.waitForChange())
}

// run starts op under a new load generation. Only the newest generation's
// result is applied; older ones are dropped when they arrive.
func (m *Model) run(op func(context.Context) error) tea.Cmd {
	m.loadGen++
	gen := m.loadGen
	m.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		return loadedMsg{gen: gen, err: op(ctx)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.opts.Changes
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		_, ok := <-ch
		return changeMsg{ok: ok}
	}
}

func (m Model) resolveSelected() tea.Cmd {
	ev, ok := m.selectedEvent()
	if !ok || ev.CustomerID == "" || m.opts.Customers == nil {
		return nil
	}
	if _, known := m.names[ev.CustomerID]; known {
		return nil
	}
	if name := m.ctl.CustomerName(ev.CustomerID); name != "" {
		m.names[ev.CustomerID] = name
		return nil
	}
	dir, id := m.opts.Customers, ev.CustomerID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		name, err := dir.ResolveDisplayName(ctx, id)
		if err != nil {
			return nameMsg{id: id}
		}
		return nameMsg{id: id, name: name}
	}
}

// items flattens the bucket index in day order.
func (m Model) items() []item {
	var out []item
	for _, k := range m.snap.Index.Keys() {
		for _, e := range m.snap.Index.ForKey(k) {
			out = append(out, item{day: k, event: e})
		}
	}
	return out
}

func (m Model) selectedEvent() (core.Event, bool) {
	items := m.items()
	if m.selected < 0 || m.selected >= len(items) {
		return core.Event{}, false
	}
	return items[m.selected].event, true
}

// focusDate is the day a view switch anchors on: the selected event's day,
// else the current anchor.
func (m Model) focusDate() time.Time {
	items := m.items()
	if m.selected >= 0 && m.selected < len(items) {
		loc := m.snap.Range.Start.Location()
		if t, err := time.ParseInLocation(calendar.DayKeyLayout, items[m.selected].day, loc); err == nil {
			return t
		}
	}
	return m.snap.Range.Anchor
}

// selectAfterLoad keeps the selected event when it survived the reload,
// otherwise picks the first event that has not ended yet.
func (m *Model) selectAfterLoad(prevID string) {
	items := m.items()
	if prevID != "" {
		for i, it := range items {
			if it.event.ID == prevID {
				m.selected = i
				return
			}
		}
	}
	now := m.now()
	m.selected = 0
	if !m.snap.Range.Contains(now) {
		return
	}
	for i, it := range items {
		if !it.event.EndOrStart().Before(now) {
			m.selected = i
			return
		}
	}
	if len(items) > 0 {
		m.selected = len(items) - 1
	}
}

// calculateLayout calculates responsive layout dimensions
func (m *Model) calculateLayout() {
	minHeight := 10

	width := m.width
	height := m.height
	if height < minHeight {
		height = minHeight
	}

	// Header: ~2 lines, Help: ~2 lines, Padding: ~2 lines
	m.contentHeight = height - 6
	if m.contentHeight < 5 {
		m.contentHeight = 5
	}

	compactThreshold := 80
	m.compactMode = width < compactThreshold

	if m.compactMode {
		m.listWidth = width - 4
		m.detailWidth = width - 4
		if m.listWidth < 30 {
			m.listWidth = 30
		}
		if m.detailWidth < 30 {
			m.detailWidth = 30
		}
		return
	}

	// The month grid needs room for seven cells.
	m.listWidth = width * 55 / 100
	if m.listWidth < 44 {
		m.listWidth = 44
	}
	if m.listWidth > 90 {
		m.listWidth = 90
	}
	m.detailWidth = width - m.listWidth - 5
	if m.detailWidth < 30 {
		m.detailWidth = 30
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.calculateLayout()

		listViewportHeight := m.contentHeight - 4
		if listViewportHeight < 1 {
			listViewportHeight = 1
		}
		listViewportWidth := m.listWidth - 4
		if listViewportWidth < 10 {
			listViewportWidth = 10
		}
		detailViewportHeight := m.contentHeight - 4
		if detailViewportHeight < 1 {
			detailViewportHeight = 1
		}
		detailViewportWidth := m.detailWidth - 4
		if detailViewportWidth < 10 {
			detailViewportWidth = 10
		}

		if !m.viewportReady {
			m.listView = viewport.New(listViewportWidth, listViewportHeight)
			m.listView.Style = lipgloss.NewStyle()
			m.detailView = viewport.New(detailViewportWidth, detailViewportHeight)
			m.detailView.Style = lipgloss.NewStyle()
			m.viewportReady = true
		} else {
			m.listView.Width = listViewportWidth
			m.listView.Height = listViewportHeight
			m.detailView.Width = detailViewportWidth
			m.detailView.Height = detailViewportHeight
		}
		m.search.Width = listViewportWidth - 4
		m.refreshContent()
		return m, nil

	case loadedMsg:
		if msg.gen != m.loadGen {
			// superseded
			return m, nil
		}
		prev, _ := m.selectedEvent()
		m.loading = false
		m.err = msg.err
		m.snap = m.ctl.Snapshot()
		m.selectAfterLoad(prev.ID)
		m.refreshContent()
		m.scrollListToSelection()
		return m, m.resolveSelected()

	case nameMsg:
		m.names[msg.id] = msg.name
		m.updateDetailContent()
		return m, nil

	case changeMsg:
		if !msg.ok {
			return m, nil
		}
		cmd := m.run(m.ctl.Invalidate)
		return m, tea.Batch(cmd, m.waitForChange())

	case tickMsg:
		// Redraw every minute so past and in-progress markers move
		m.refreshContent()
		return m, tickCmd()

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		f := m.ctl.Filter()
		f.Search = strings.TrimSpace(m.search.Value())
		return m, m.setFilter(f)
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.ctl.Filter().Search)
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *Model) setFilter(f calendar.Filter) tea.Cmd {
	ctl := m.ctl
	return m.run(func(ctx context.Context) error { return ctl.SetFilter(ctx, f) })
}

func (m *Model) switchView(view calendar.ViewType) tea.Cmd {
	ctl, date := m.ctl, m.focusDate()
	m.selected = 0
	return m.run(func(ctx context.Context) error { return ctl.NavigateTo(ctx, date, view) })
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			m.refreshContent()
			m.scrollListToSelection()
			m.detailView.GotoTop()
		}
		return m, m.resolveSelected()

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.items())-1 {
			m.selected++
			m.refreshContent()
			m.scrollListToSelection()
			m.detailView.GotoTop()
		}
		return m, m.resolveSelected()

	case key.Matches(msg, m.keys.ScrollUp):
		if m.compactMode && m.focusedPanel == FocusList {
			m.listView.ViewUp()
		} else {
			m.detailView.ViewUp()
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		if m.compactMode && m.focusedPanel == FocusList {
			m.listView.ViewDown()
		} else {
			m.detailView.ViewDown()
		}
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.selected = 0
		return m, m.run(m.ctl.NavigatePrevious)

	case key.Matches(msg, m.keys.Next):
		m.selected = 0
		return m, m.run(m.ctl.NavigateNext)

	case key.Matches(msg, m.keys.Today):
		m.selected = 0
		return m, m.run(m.ctl.NavigateToToday)

	case key.Matches(msg, m.keys.Month):
		return m, m.switchView(calendar.ViewMonth)
	case key.Matches(msg, m.keys.Week):
		return m, m.switchView(calendar.ViewWeek)
	case key.Matches(msg, m.keys.Day):
		return m, m.switchView(calendar.ViewDay)
	case key.Matches(msg, m.keys.Agenda):
		return m, m.switchView(calendar.ViewAgenda)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run(m.ctl.Refresh)

	case key.Matches(msg, m.keys.Private):
		f := m.ctl.Filter()
		f.ShowPrivate = !f.ShowPrivate
		return m, m.setFilter(f)

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.SetValue(m.ctl.Filter().Search)
		m.search.CursorEnd()
		return m, m.search.Focus()

	case key.Matches(msg, m.keys.Tab):
		if m.focusedPanel == FocusList {
			m.focusedPanel = FocusDetail
		} else {
			m.focusedPanel = FocusList
		}
		return m, nil
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()

	var content string
	switch {
	case m.loading && !m.snap.Loaded:
		content = lipgloss.NewStyle().
			Width(m.width-4).
			Height(m.contentHeight).
			Align(lipgloss.Center, lipgloss.Center).
			Render("Loading events...")
	case m.err != nil && !m.snap.Loaded:
		content = ErrorStyle.
			Width(m.width - 4).
			Height(m.contentHeight).
			Render(fmt.Sprintf("Error: %v", m.err))
	case m.compactMode:
		if m.showHelp {
			content = m.renderHelpPanel()
		} else if m.focusedPanel == FocusList {
			content = m.renderListPanel()
		} else {
			content = m.renderDetailPanel()
		}
	default:
		listPanel := m.renderListPanel()
		var rightPanel string
		if m.showHelp {
			rightPanel = m.renderHelpPanel()
		} else {
			rightPanel = m.renderDetailPanel()
		}
		content = lipgloss.JoinHorizontal(lipgloss.Top, listPanel, " ", rightPanel)
	}

	var footer string
	if m.searching {
		footer = HelpStyle.Render(m.search.View())
	} else {
		footer = m.renderHelp()
	}

	return AppStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content, footer),
	)
}

func rangeLabel(r calendar.ViewRange) string {
	switch r.Type {
	case calendar.ViewWeek:
		return r.Start.Format("Jan 2") + " - " + r.End.Format("Jan 2, 2006")
	case calendar.ViewDay:
		return r.Start.Format("Monday, January 2, 2006")
	case calendar.ViewAgenda:
		return "Agenda " + r.Start.Format("Jan 2") + " - " + r.End.Format("Jan 2, 2006")
	default:
		return r.Anchor.Format("January 2006")
	}
}

func (m Model) renderHeader() string {
	title := HeaderStyle.Render("📅 " + m.opts.Title)
	label := rangeLabel(m.snap.Range)
	if m.snap.Range.Contains(m.now()) && m.snap.Range.Type == calendar.ViewDay {
		label = "Today • " + label
	}
	date := lipgloss.NewStyle().Foreground(mutedColor).Render(label)

	parts := []string{title, "  ", date}

	var notes []string
	f := m.snap.Filter
	if f.ShowPrivate {
		notes = append(notes, "private shown")
	}
	if f.Search != "" {
		notes = append(notes, fmt.Sprintf("search %q", f.Search))
	}
	if len(f.EventTypes) > 0 {
		notes = append(notes, fmt.Sprintf("%d types", len(f.EventTypes)))
	}
	if len(notes) > 0 {
		parts = append(parts, "  ", FilterStyle.Render("["+strings.Join(notes, ", ")+"]"))
	}

	switch {
	case m.loading:
		parts = append(parts, "  ", MutedStyle.Render("loading..."))
	case m.err != nil:
		parts = append(parts, "  ", ErrorStyle.Render("fetch failed, showing last loaded range"))
	}

	if m.compactMode {
		panel := " [Calendar]"
		if m.focusedPanel == FocusDetail {
			panel = " [Details]"
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render(panel))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m *Model) refreshContent() {
	m.updateListContent()
	m.updateDetailContent()
}

// dayKeys returns the days the list panel draws, in order.
func (m Model) dayKeys(items []item) []string {
	switch m.snap.Range.Type {
	case calendar.ViewMonth:
		if m.selected >= 0 && m.selected < len(items) {
			return []string{items[m.selected].day}
		}
		return nil
	case calendar.ViewAgenda:
		return m.snap.Index.Keys()
	default:
		var keys []string
		for _, d := range m.snap.Range.Days() {
			keys = append(keys, calendar.DayKey(d))
		}
		return keys
	}
}

// updateListContent redraws the calendar panel and records the selected line.
func (m *Model) updateListContent() {
	if !m.viewportReady {
		return
	}
	width := m.listView.Width
	items := m.items()
	first := make(map[string]int)
	for i := len(items) - 1; i >= 0; i-- {
		first[items[i].day] = i
	}

	var lines []string
	if m.snap.Range.Type == calendar.ViewMonth {
		lines = append(lines, strings.Split(m.renderMonthGrid(width, items), "\n")...)
		lines = append(lines, "")
	}

	m.selectedLine = 0
	keys := m.dayKeys(items)
	if len(keys) == 0 {
		lines = append(lines, EmptyDayStyle.Render("No events"))
	}
	today := calendar.DayKey(m.now().In(m.snap.Range.Start.Location()))
	for _, k := range keys {
		header := DayHeaderStyle
		if k == today {
			header = TodayHeaderStyle
		}
		lines = append(lines, header.Render(dayLabel(k)))

		events := m.snap.Index.ForKey(k)
		if len(events) == 0 {
			lines = append(lines, EmptyDayStyle.Render("no events"))
			continue
		}
		base := first[k]
		for j, e := range events {
			idx := base + j
			if idx == m.selected {
				m.selectedLine = len(lines)
			}
			lines = append(lines, m.renderListItem(e, idx == m.selected, width))
		}
	}

	m.listView.SetContent(strings.Join(lines, "\n"))
}

func dayLabel(key string) string {
	t, err := time.Parse(calendar.DayKeyLayout, key)
	if err != nil {
		return key
	}
	return t.Format("Mon, Jan 2")
}

// renderMonthGrid draws the weeks of the range with an event count per day.
func (m Model) renderMonthGrid(width int, items []item) string {
	days := m.snap.Range.Days()
	if len(days) < 7 {
		return ""
	}
	cell := width / 7
	if cell < 5 {
		cell = 5
	}

	selectedKey := ""
	if m.selected >= 0 && m.selected < len(items) {
		selectedKey = items[m.selected].day
	}
	today := calendar.DayKey(m.now().In(days[0].Location()))
	month := m.snap.Range.Anchor.Month()

	var rows []string
	var head []string
	for _, d := range days[:7] {
		head = append(head, WeekdayStyle.Width(cell).Render(d.Weekday().String()[:2]))
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, head...))

	for i := 0; i+7 <= len(days); i += 7 {
		var cells []string
		for _, d := range days[i : i+7] {
			k := calendar.DayKey(d)
			label := fmt.Sprintf("%2d", d.Day())
			if n := len(m.snap.Index.ForKey(k)); n > 0 {
				label += fmt.Sprintf(" •%d", n)
			}
			style := CellStyle
			switch {
			case k == selectedKey:
				style = SelectedCellStyle
			case k == today:
				style = TodayCellStyle
			case d.Month() != month:
				style = OutsideCellStyle
			}
			cells = append(cells, style.Width(cell).Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}

// scrollListToSelection scrolls the list viewport to keep the selected item visible
func (m *Model) scrollListToSelection() {
	if !m.viewportReady {
		return
	}
	top := m.selectedLine
	bottom := top + 1
	if top < m.listView.YOffset {
		m.listView.SetYOffset(top)
	}
	if bottom > m.listView.YOffset+m.listView.Height {
		m.listView.SetYOffset(bottom - m.listView.Height)
	}
}

func (m Model) renderListPanel() string {
	scrollInfo := ""
	if n := m.snap.Index.Len(); n > 0 {
		scrollInfo = lipgloss.NewStyle().
			Foreground(mutedColor).
			Render(fmt.Sprintf(" (%d/%d)", m.selected+1, n))
	}
	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render(strings.ToUpper(string(m.snap.Range.Type[:1]))+string(m.snap.Range.Type[1:])) + scrollInfo

	return ListPanelStyle.Width(m.listWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, m.listView.View()),
	)
}

func (m Model) renderListItem(event core.Event, selected bool, maxWidth int) string {
	now := m.now()
	isPast := event.EndOrStart().Before(now)
	loc := m.snap.Range.Start.Location()

	timeStr := event.Start.In(loc).Format("15:04")
	if event.AllDay {
		timeStr = "all day"
	}
	var timeStyled string
	if isPast {
		timeStyled = PastTimeStyle.Render(timeStr)
	} else {
		timeStyled = TimeStyle.Render(timeStr)
	}

	marker := typeStyle(event.DisplayColor()).Render("●")

	icons := ""
	switch {
	case event.Status == core.StatusCancelled:
		icons += " ✗"
	case event.Status == core.StatusCompleted:
		icons += " ✓"
	case event.InProgress(now):
		icons += " 🟢"
	}
	if event.IsPrivate {
		icons += " 🔒"
	}
	if event.Priority == core.PriorityUrgent {
		icons += " !"
	}

	// Time (8) + marker (2) + icons (~6) + padding (~4)
	titleWidth := maxWidth - 20
	if titleWidth < 10 {
		titleWidth = 10
	}
	title := util.TruncateText(event.Title, titleWidth)

	line := fmt.Sprintf("%s %s %s%s", timeStyled, marker, title, icons)
	if selected {
		if isPast {
			return SelectedPastStyle.Render(line)
		}
		return SelectedItemStyle.Render(line)
	}
	if isPast {
		return PastItemStyle.Render(line)
	}
	return NormalItemStyle.Render(line)
}

// updateDetailContent updates the viewport with the current event details
func (m *Model) updateDetailContent() {
	if !m.viewportReady {
		return
	}
	event, ok := m.selectedEvent()
	if !ok {
		m.detailView.SetContent("")
		return
	}
	width := m.detailView.Width
	loc := m.snap.Range.Start.Location()
	var lines []string

	lines = append(lines, TitleStyle.Render(ansi.Wordwrap(event.Title, width, "")))
	lines = append(lines, "")

	lines = append(lines, renderField("🕐 When", formatEventTime(event, loc)))
	if d := event.Duration(); d > 0 && !event.AllDay {
		lines = append(lines, renderField("⏱️  Duration", util.FormatDuration(d)))
	}
	lines = append(lines, LabelStyle.Render("🏷️  Type")+" "+typeStyle(event.DisplayColor()).Render(humanize(string(event.Type))))
	lines = append(lines, renderField("📊 Status", formatStatus(event.Status)))
	lines = append(lines, LabelStyle.Render("⚡ Priority")+" "+priorityStyle(string(event.Priority)).Render(humanize(string(event.Priority))))

	if event.CustomerID != "" {
		name := m.names[event.CustomerID]
		if name == "" {
			name = m.ctl.CustomerName(event.CustomerID)
		}
		if name == "" {
			name = event.CustomerID
		}
		lines = append(lines, renderWrappedField("👤 Customer", name, width))
	}
	if event.Location != "" {
		lines = append(lines, renderWrappedField("📍 Location", event.Location, width))
	}
	if len(event.ReminderOffsets) > 0 {
		var parts []string
		for _, o := range event.ReminderOffsets {
			parts = append(parts, util.FormatDuration(time.Duration(o)*time.Minute)+" before")
		}
		lines = append(lines, renderWrappedField("🔔 Reminders", strings.Join(parts, ", "), width))
	}
	if event.IsPrivate {
		lines = append(lines, renderField("🔒 Private", "yes"))
	}

	now := m.now()
	switch {
	case event.InProgress(now):
		lines = append(lines, "")
		lines = append(lines, InProgressStyle.Render(fmt.Sprintf("🟢 IN PROGRESS • %s remaining", util.FormatDuration(event.End.Sub(now)))))
	case event.Start.After(now):
		lines = append(lines, "")
		lines = append(lines, lipgloss.NewStyle().Foreground(accentColor).Render(fmt.Sprintf("⏳ Starts in %s", util.FormatDuration(event.Start.Sub(now)))))
	case event.End != nil:
		lines = append(lines, "")
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("✓ Ended %s ago", util.FormatDuration(now.Sub(*event.End)))))
	}

	if event.Description != "" {
		lines = append(lines, "")
		lines = append(lines, LabelStyle.Render("📝 Notes"))
		lines = append(lines, ValueStyle.Render(ansi.Wordwrap(event.Description, width, "")))
	}

	if event.ProviderID != "" {
		lines = append(lines, "")
		lines = append(lines, StoreBadgeStyle.Render("from "+event.ProviderID))
	}

	m.detailView.SetContent(strings.Join(lines, "\n"))
}

func (m Model) renderDetailPanel() string {
	if _, ok := m.selectedEvent(); !ok {
		return DetailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(
			MutedStyle.Render("No event selected"),
		)
	}

	scrollInfo := ""
	if m.viewportReady && m.detailView.TotalLineCount() > m.detailView.Height {
		scrollPct := int(m.detailView.ScrollPercent() * 100)
		scrollInfo = lipgloss.NewStyle().
			Foreground(mutedColor).
			Render(fmt.Sprintf(" (%d%%)", scrollPct))
	}

	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render("Event Details") + scrollInfo

	return DetailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", m.detailView.View()),
	)
}

func (m Model) renderHelp() string {
	keys := []string{
		HelpKeyStyle.Render("↑/↓") + " select",
		HelpKeyStyle.Render("←/→") + " " + string(m.snap.Range.Type),
		HelpKeyStyle.Render("m/w/d/a") + " view",
		HelpKeyStyle.Render("t") + " today",
		HelpKeyStyle.Render("/") + " search",
		HelpKeyStyle.Render("p") + " private",
		HelpKeyStyle.Render("r") + " refresh",
		HelpKeyStyle.Render("q") + " quit",
	}
	fullLine := strings.Join(keys, "  •  ")

	if lipgloss.Width(fullLine) > m.width-4 {
		return HelpStyle.Render(HelpKeyStyle.Render("?") + " help")
	}
	return HelpStyle.Render(fullLine)
}

func (m Model) renderHelpPanel() string {
	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render("Keyboard Shortcuts")

	lines := []string{
		"",
		HelpKeyStyle.Render("  ↑ / ↓      ") + " Select event",
		HelpKeyStyle.Render("  ← / →      ") + " Previous / next range",
		HelpKeyStyle.Render("  t          ") + " Jump to today",
		HelpKeyStyle.Render("  m w d a    ") + " Month, week, day, agenda",
		HelpKeyStyle.Render("  /          ") + " Search (enter applies, esc cancels)",
		HelpKeyStyle.Render("  p          ") + " Show or hide private events",
		HelpKeyStyle.Render("  ctrl+u/d   ") + " Scroll detail panel",
		HelpKeyStyle.Render("  tab        ") + " Switch panel",
		HelpKeyStyle.Render("  r          ") + " Refresh events",
		HelpKeyStyle.Render("  q / ctrl+c ") + " Quit",
		"",
		MutedStyle.Render("  Press any key to close"),
	}

	panelWidth := m.detailWidth
	if m.compactMode {
		panelWidth = m.listWidth
	}
	return DetailPanelStyle.Width(panelWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n")),
	)
}

// Helper functions
func renderField(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

// renderWrappedField renders a label-value field, word-wrapping the value
// to fit within maxWidth. Continuation lines are indented to align with the value.
func renderWrappedField(label, value string, maxWidth int) string {
	labelRendered := LabelStyle.Render(label)
	labelWidth := lipgloss.Width(labelRendered) + 1
	valueWidth := maxWidth - labelWidth
	if valueWidth < 10 {
		valueWidth = 10
	}
	wrapLines := strings.Split(ansi.Wordwrap(value, valueWidth, ""), "\n")
	indent := strings.Repeat(" ", labelWidth)
	for i := 1; i < len(wrapLines); i++ {
		wrapLines[i] = indent + wrapLines[i]
	}
	return labelRendered + " " + ValueStyle.Render(strings.Join(wrapLines, "\n"))
}

func humanize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatEventTime(e core.Event, loc *time.Location) string {
	start := e.Start.In(loc)
	if e.AllDay {
		if e.End != nil {
			last := e.End.In(loc).AddDate(0, 0, -1)
			if !calendar.SameDay(start, last) && last.After(start) {
				return start.Format("Mon, Jan 2") + " - " + last.Format("Mon, Jan 2") + " (all day)"
			}
		}
		return start.Format("Mon, Jan 2") + " (all day)"
	}
	if e.End == nil {
		return start.Format("Mon, Jan 2, 15:04")
	}
	end := e.End.In(loc)
	if calendar.SameDay(start, end) {
		return fmt.Sprintf("%s, %s - %s", start.Format("Mon, Jan 2"), start.Format("15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Mon, Jan 2 15:04"), end.Format("Mon, Jan 2 15:04"))
}

func formatStatus(status core.EventStatus) string {
	label := humanize(string(status))
	switch status {
	case core.StatusCompleted, core.StatusConfirmed:
		return StatusDoneStyle.Render(label)
	case core.StatusCancelled:
		return StatusCancelledStyle.Render(label)
	case core.StatusRescheduled, core.StatusInProgress:
		return StatusPendingStyle.Render(label)
	default:
		return label
	}
}
