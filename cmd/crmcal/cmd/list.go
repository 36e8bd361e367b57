package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print the calendar for a view and date",
	Long: `Print the events of a month, week, day or agenda view, grouped by day.

Examples:
  crmcal list --view week --date monday
  crmcal list --view agenda --types job,assessment --customer c-104
  crmcal list -q "roof" --private`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	// All view and filter flags are inherited from root as persistent flags
}

func runList(cmd *cobra.Command, args []string) error {
	now := time.Now().In(displayZone)
	ctl, err := newController(now)
	if err != nil {
		return err
	}
	if err := ctl.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	snap := ctl.Snapshot()
	names := customerNames(cmd.Context(), ctl, snap.Events)
	printRange(color.Output, snap, names, now)
	return nil
}
