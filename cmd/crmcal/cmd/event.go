package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/theakshaypant/crmcal/internal/core"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	Aliases: []string{"ev"},
	Short:   "Create, update or delete events in the primary store",
}

var eventCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an event",
	Long: `Create an event in the primary store.

Examples:
  crmcal event create --title "Roof inspection" --start "tomorrow 09:00" --end "tomorrow 11:00" --type assessment --customer-id c-104
  crmcal event create --title "Quote #88 expires" --start 2024-04-01 --all-day --type quote_expiry --reminders 1440`,
	Args: cobra.NoArgs,
	RunE: runEventCreate,
}

var eventUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of an event",
	Long: `Update an event. Only the flags you pass are changed.

Example:
  crmcal event update 6f1c... --status completed
  crmcal event update 6f1c... --start "friday 13:00" --clear-end`,
	Args: cobra.ExactArgs(1),
	RunE: runEventUpdate,
}

var eventDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an event",
	Args:    cobra.ExactArgs(1),
	RunE:    runEventDelete,
}

func init() {
	rootCmd.AddCommand(eventCmd)
	eventCmd.AddCommand(eventCreateCmd)
	eventCmd.AddCommand(eventUpdateCmd)
	eventCmd.AddCommand(eventDeleteCmd)

	addEventFlags(eventCreateCmd.Flags())
	addEventFlags(eventUpdateCmd.Flags())
	eventUpdateCmd.Flags().Bool("clear-end", false, "Remove the end time")
}

func addEventFlags(fs *pflag.FlagSet) {
	fs.String("title", "", "Event title")
	fs.String("description", "", "Notes")
	fs.String("location", "", "Location or site address")
	fs.String("start", "", "Start (YYYY-MM-DD, 'YYYY-MM-DD HH:MM', 'tomorrow 09:00', RFC 3339)")
	fs.String("end", "", "End, same formats as --start")
	fs.Bool("all-day", false, "All-day event")
	fs.String("type", "", "Event type (job, assessment, meeting, reminder, follow_up, quote_expiry, custom)")
	fs.String("status", "", "Status (scheduled, confirmed, in_progress, completed, cancelled, rescheduled)")
	fs.String("priority", "", "Priority (low, medium, high, urgent)")
	fs.String("color", "", "Display color, e.g. #3B82F6")
	fs.String("customer-id", "", "Customer ID")
	fs.Bool("is-private", false, "Hide from views unless private events are shown")
	fs.String("reminders", "", "Comma-separated reminder offsets in minutes before start")
}

// eventFlags reads the event flags of one command.
type eventFlags struct {
	fs  *pflag.FlagSet
	now time.Time
}

func (f eventFlags) changed(name string) bool { return f.fs.Changed(name) }

func (f eventFlags) str(name string) string {
	v, _ := f.fs.GetString(name)
	return v
}

func (f eventFlags) boolean(name string) bool {
	v, _ := f.fs.GetBool(name)
	return v
}

func (f eventFlags) when(name string) (time.Time, error) {
	t, err := parseDateTime(f.str(name), f.now)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func parseOffsets(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: reminder offset %q is not a non-negative number of minutes", core.ErrInvalidInput, part)
		}
		out = append(out, n)
	}
	return out, nil
}

// inputFromFlags builds a create payload.
func inputFromFlags(f eventFlags) (core.EventInput, error) {
	in := core.EventInput{
		Title:       f.str("title"),
		Description: f.str("description"),
		Location:    f.str("location"),
		AllDay:      f.boolean("all-day"),
		Type:        core.EventType(f.str("type")),
		Status:      core.EventStatus(f.str("status")),
		Priority:    core.Priority(f.str("priority")),
		Color:       f.str("color"),
		CustomerID:  f.str("customer-id"),
		IsPrivate:   f.boolean("is-private"),
	}
	if !f.changed("start") {
		return in, fmt.Errorf("%w: --start is required", core.ErrInvalidInput)
	}
	var err error
	if in.Start, err = f.when("start"); err != nil {
		return in, err
	}
	if f.changed("end") {
		end, err := f.when("end")
		if err != nil {
			return in, err
		}
		in.End = &end
	}
	if in.ReminderOffsets, err = parseOffsets(f.str("reminders")); err != nil {
		return in, err
	}
	in = in.WithDefaults()
	return in, in.Validate()
}

// patchFromFlags builds a partial update from the flags that were given.
func patchFromFlags(f eventFlags) (core.EventPatch, error) {
	var p core.EventPatch
	strField := func(name string) *string {
		if !f.changed(name) {
			return nil
		}
		v := f.str(name)
		return &v
	}
	p.Title = strField("title")
	p.Description = strField("description")
	p.Location = strField("location")
	p.Color = strField("color")
	p.CustomerID = strField("customer-id")

	if f.changed("start") {
		t, err := f.when("start")
		if err != nil {
			return p, err
		}
		p.Start = &t
	}
	if f.changed("end") {
		t, err := f.when("end")
		if err != nil {
			return p, err
		}
		p.End = &t
	}
	p.ClearEnd = f.boolean("clear-end")
	if p.ClearEnd && p.End != nil {
		return p, fmt.Errorf("%w: --end and --clear-end are mutually exclusive", core.ErrInvalidInput)
	}
	if f.changed("all-day") {
		v := f.boolean("all-day")
		p.AllDay = &v
	}
	if f.changed("is-private") {
		v := f.boolean("is-private")
		p.IsPrivate = &v
	}
	if f.changed("type") {
		t, err := core.ParseEventType(f.str("type"))
		if err != nil {
			return p, err
		}
		p.Type = &t
	}
	if f.changed("status") {
		s, err := core.ParseStatus(f.str("status"))
		if err != nil {
			return p, err
		}
		p.Status = &s
	}
	if f.changed("priority") {
		pr, err := core.ParsePriority(f.str("priority"))
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if f.changed("reminders") {
		offsets, err := parseOffsets(f.str("reminders"))
		if err != nil {
			return p, err
		}
		p.ReminderOffsets = &offsets
	}
	return p, p.Validate()
}

func runEventCreate(cmd *cobra.Command, args []string) error {
	now := time.Now().In(displayZone)
	in, err := inputFromFlags(eventFlags{fs: cmd.Flags(), now: now})
	if err != nil {
		return err
	}
	ctl, err := newController(now)
	if err != nil {
		return err
	}
	ev, err := ctl.Create(cmd.Context(), in)
	if err != nil && ev.ID == "" {
		return fmt.Errorf("failed to create event: %w", err)
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: event saved but the view could not be refreshed:", err)
	}

	fmt.Fprintf(color.Output, "✓ Created in %s\n\n", store.Name())
	printEventDetail(color.Output, ev, customerNames(cmd.Context(), ctl, []core.Event{ev}), "  ")
	return nil
}

func runEventUpdate(cmd *cobra.Command, args []string) error {
	now := time.Now().In(displayZone)
	patch, err := patchFromFlags(eventFlags{fs: cmd.Flags(), now: now})
	if err != nil {
		return err
	}
	ctl, err := newController(now)
	if err != nil {
		return err
	}
	ev, err := ctl.Update(cmd.Context(), args[0], patch)
	if err != nil && ev.ID == "" {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("event %s not found in %s", args[0], store.Name())
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: event saved but the view could not be refreshed:", err)
	}

	fmt.Fprintln(color.Output, "✓ Updated")
	fmt.Fprintln(color.Output)
	printEventDetail(color.Output, ev, customerNames(cmd.Context(), ctl, []core.Event{ev}), "  ")
	return nil
}

func runEventDelete(cmd *cobra.Command, args []string) error {
	ctl, err := newController(time.Now().In(displayZone))
	if err != nil {
		return err
	}
	err = ctl.Delete(cmd.Context(), args[0])
	var storeErr *core.StoreError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("event %s not found in %s", args[0], store.Name())
	case errors.As(err, &storeErr) && storeErr.Op == "delete":
		return fmt.Errorf("failed to delete event: %w", err)
	case err != nil:
		// Deleted; only the refresh afterwards failed.
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", err)
	}
	fmt.Printf("✓ Deleted %s\n", args[0])
	return nil
}
