package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/util"
)

var nextCmd = &cobra.Command{
	Use:   "next [N]",
	Short: "Show the next upcoming events",
	Long: `Show the next upcoming events, soonest first. Events already in progress
count as upcoming. N defaults to calendar.upcoming_limit.

Supports the same filters as the main command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	limit := cfg.Calendar.UpcomingLimit
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("%w: N must be a positive number, got %q", core.ErrInvalidInput, args[0])
		}
		limit = n
	}

	now := time.Now().In(displayZone)
	ctl, err := newController(now)
	if err != nil {
		return err
	}
	events, err := ctl.Upcoming(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No upcoming events found.")
		return nil
	}

	names := customerNames(cmd.Context(), ctl, events)
	printUpcoming(color.Output, events, names, now)
	return nil
}

// printUpcoming shows the first event (and anything starting with it) in
// detail, then the rest as a table.
func printUpcoming(w io.Writer, events []core.Event, names nameFunc, now time.Time) {
	first := events[0]
	concurrent := 1
	for concurrent < len(events) && events[concurrent].Start.Equal(first.Start) {
		concurrent++
	}

	fmt.Fprintln(w, separator)
	if concurrent > 1 {
		fmt.Fprintf(w, "  ⚠️  CONFLICT: %d EVENTS AT THE SAME TIME\n", concurrent)
	} else {
		fmt.Fprintln(w, "  NEXT EVENT")
	}
	fmt.Fprintln(w, separator)

	fmt.Fprintln(w)
	if first.InProgress(now) {
		fmt.Fprintf(w, "  🟢 IN PROGRESS - %s remaining\n", util.FormatDuration(first.End.Sub(now)))
	} else {
		fmt.Fprintf(w, "  ⏳ STARTS IN: %s\n", formatCountdown(first.Start.Sub(now)))
	}

	for i, e := range events[:concurrent] {
		fmt.Fprintln(w)
		if concurrent > 1 {
			fmt.Fprintf(w, "  EVENT %d of %d\n", i+1, concurrent)
			fmt.Fprintln(w, "  ─────────────────────────────────────────────")
		}
		printEventDetail(w, e, names, "  ")
	}

	if rest := events[concurrent:]; len(rest) > 0 {
		fmt.Fprintln(w)
		_, _ = color.New(color.Bold).Fprintln(w, "  Later")
		fmt.Fprintln(w, eventTable(rest, names, now, true))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
}

func formatCountdown(d time.Duration) string {
	if d < 0 {
		return "NOW"
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}

	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}
