package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/adapter/ics"
	"github.com/theakshaypant/crmcal/internal/util"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current view as iCalendar",
	Long: `Write the events of the current view (--view, --date and filters) as an
iCalendar file, for importing into another calendar app.

Example:
  crmcal export --view month --date 2024-04-01 -o april.ics`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	now := time.Now().In(displayZone)
	ctl, err := newController(now)
	if err != nil {
		return err
	}
	if err := ctl.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	snap := ctl.Snapshot()

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return ics.Export(cmd.OutOrStdout(), snap.Events, now)
	}

	path = expandPath(path)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := ics.Export(f, snap.Events, now); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}

	link := path
	if abs, err := filepath.Abs(path); err == nil {
		link = util.MakeHyperlink("file://"+abs, path)
	}
	fmt.Fprintf(os.Stderr, "✓ Exported %d events to %s\n", len(snap.Events), link)
	return nil
}
