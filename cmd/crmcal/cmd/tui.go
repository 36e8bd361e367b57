package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the interactive TUI",
	Long: `Launch an interactive terminal calendar. Starts on the view and date given
by --view and --date with the filter flags applied; press ? for keys.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctl, err := newController(time.Now().In(displayZone))
	if err != nil {
		return err
	}

	opts := tui.Options{Title: "crmcal · " + store.Name()}
	if dir, ok := store.(core.CustomerDirectory); ok {
		opts.Customers = dir
	}
	if n, ok := store.(core.ChangeNotifier); ok {
		changes, err := n.Changes(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, "Warning: live updates disabled:", err)
		} else {
			opts.Changes = changes
		}
	}

	m := tui.NewModel(ctl, opts)

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(cmd.Context()),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
