package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror remote stores into a local store for offline use",
	Long: `Copy the events of every non-local store into a local store, so the
calendar can be read without network access. A failing store is skipped.

Example:
  crmcal sync --to offline --days 60 --purge`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("to", "", "ID of the local store to mirror into (default: first local store)")
	syncCmd.Flags().Int("days", 90, "Number of days to mirror, starting today")
	syncCmd.Flags().Int("past-days", 7, "Number of days before today to mirror")
	syncCmd.Flags().Bool("purge", false, "Drop previously mirrored events of each store before writing")
}

func mirrorTarget(c config.Config, id string) (config.StoreConfig, error) {
	for _, sc := range c.Stores {
		if sc.Kind != config.KindLocal {
			continue
		}
		if id == "" || sc.ID == id {
			return sc, nil
		}
	}
	if id == "" {
		return config.StoreConfig{}, fmt.Errorf("no local store configured to mirror into")
	}
	return config.StoreConfig{}, fmt.Errorf("%q is not a configured local store", id)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	to, _ := cmd.Flags().GetString("to")
	days, _ := cmd.Flags().GetInt("days")
	pastDays, _ := cmd.Flags().GetInt("past-days")
	purge, _ := cmd.Flags().GetBool("purge")
	if days < 1 || pastDays < 0 {
		return fmt.Errorf("%w: --days must be positive and --past-days non-negative", core.ErrInvalidInput)
	}

	target, err := mirrorTarget(cfg, to)
	if err != nil {
		return err
	}
	opened, closeTarget, err := openStore(ctx, target, cfg.Calendar, log.WithStore(target.ID))
	if err != nil {
		return err
	}
	defer closeTarget()
	mirror, ok := opened.(core.Storage)
	if !ok {
		return fmt.Errorf("store %s cannot hold mirrored events", target.ID)
	}

	now := time.Now().In(displayZone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, displayZone)
	window := core.FetchOptions{
		Start:          today.AddDate(0, 0, -pastDays),
		End:            today.AddDate(0, 0, days),
		IncludePrivate: true,
	}

	bold := color.New(color.Bold)
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("Store"), bold.Sprint("Events"), "")

	for _, sc := range cfg.Stores {
		if sc.Kind == config.KindLocal {
			continue
		}
		src, closeSrc, err := openStore(ctx, sc, cfg.Calendar, log.WithStore(sc.ID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %v\n", err)
			tbl.AddRow(sc.DisplayName(), "-", color.RedString("unavailable"))
			continue
		}
		events, err := src.FetchEvents(ctx, window)
		closeSrc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", sc.ID, err)
			tbl.AddRow(sc.DisplayName(), "-", color.RedString("fetch failed"))
			continue
		}

		if purge {
			if err := mirror.PurgeProvider(ctx, sc.ID); err != nil {
				return fmt.Errorf("purge %s: %w", sc.ID, err)
			}
		}
		if err := mirror.SyncEvents(ctx, sc.ID, events); err != nil {
			return fmt.Errorf("mirror %s: %w", sc.ID, err)
		}

		held, err := mirror.ListEvents(ctx, core.EventFilter{Start: window.Start, End: window.End, ProviderIDs: []string{sc.ID}})
		if err != nil {
			return fmt.Errorf("list mirrored %s: %w", sc.ID, err)
		}
		tbl.AddRow(sc.DisplayName(), fmt.Sprintf("%d", len(events)), color.New(color.Faint).Sprintf("%d held", len(held)))
	}

	_, _ = bold.Printf("🔄 Mirrored into %s (%s to %s)\n", target.DisplayName(), window.Start.Format("Jan 2"), window.End.Format("Jan 2"))
	fmt.Println(separator)
	_, _ = fmt.Fprintln(color.Output, tbl)
	return nil
}
