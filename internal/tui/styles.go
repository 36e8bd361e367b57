package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	fgColor        = lipgloss.Color("#F9FAFB") // Light
	pastColor      = lipgloss.Color("#52525B")

	// Layout styles
	AppStyle    = lipgloss.NewStyle().Padding(1, 2)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)

	// Calendar panel (left side)
	ListPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)

	// Detail panel (right side)
	DetailPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor).Padding(1, 2)

	// Event list item styles
	SelectedItemStyle = lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true).Padding(0, 1)
	SelectedPastStyle = lipgloss.NewStyle().Background(lipgloss.Color("#374151")).Foreground(lipgloss.Color("#9CA3AF")).Padding(0, 1)
	NormalItemStyle   = lipgloss.NewStyle().Foreground(fgColor).Padding(0, 1)
	PastItemStyle     = lipgloss.NewStyle().Foreground(pastColor).Faint(true).Padding(0, 1)
	TimeStyle         = lipgloss.NewStyle().Foreground(secondaryColor).Width(8)
	PastTimeStyle     = lipgloss.NewStyle().Foreground(pastColor).Faint(true).Width(8)

	// Day headers in week, day and agenda views
	DayHeaderStyle   = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	TodayHeaderStyle = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true).Underline(true)
	EmptyDayStyle    = lipgloss.NewStyle().Foreground(mutedColor).Italic(true).PaddingLeft(2)

	// Month grid cells
	WeekdayStyle      = lipgloss.NewStyle().Foreground(mutedColor).Bold(true)
	CellStyle         = lipgloss.NewStyle().Foreground(fgColor)
	OutsideCellStyle  = lipgloss.NewStyle().Foreground(pastColor).Faint(true)
	TodayCellStyle    = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	SelectedCellStyle = lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true)

	// Detail panel styles
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	LabelStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Width(14)
	ValueStyle  = lipgloss.NewStyle().Foreground(fgColor)
	MutedStyle  = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	ErrorStyle  = lipgloss.NewStyle().Foreground(errorColor)
	FilterStyle = lipgloss.NewStyle().Foreground(accentColor)

	StatusDoneStyle      = lipgloss.NewStyle().Foreground(secondaryColor)
	StatusCancelledStyle = lipgloss.NewStyle().Foreground(errorColor).Strikethrough(true)
	StatusPendingStyle   = lipgloss.NewStyle().Foreground(accentColor)

	// Help bar
	HelpStyle    = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
	HelpKeyStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	// In progress indicator
	InProgressStyle = lipgloss.NewStyle().Background(secondaryColor).Foreground(fgColor).Bold(true).Padding(0, 1)

	// Store badge
	StoreBadgeStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)

// typeStyle colors text with the event's display color.
func typeStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func priorityStyle(p string) lipgloss.Style {
	switch p {
	case "urgent":
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case "high":
		return lipgloss.NewStyle().Foreground(accentColor)
	case "low":
		return lipgloss.NewStyle().Foreground(mutedColor)
	default:
		return ValueStyle
	}
}
