package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/adapter/google"
	"github.com/theakshaypant/crmcal/internal/adapter/ics"
	"github.com/theakshaypant/crmcal/internal/adapter/local"
	"github.com/theakshaypant/crmcal/internal/adapter/outlook"
	"github.com/theakshaypant/crmcal/internal/adapter/overlay"
	"github.com/theakshaypant/crmcal/internal/adapter/postgres"
	"github.com/theakshaypant/crmcal/internal/adapter/sqlstore"
	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/logging"
	"github.com/theakshaypant/crmcal/internal/notify"
)

var storesCmd = &cobra.Command{
	Use:     "stores",
	Aliases: []string{"store"},
	Short:   "List configured event stores",
	Long: `List the configured event stores. With --calendars, Google and Outlook
stores are logged in and their available calendars are listed too.`,
	RunE: runStores,
}

func init() {
	rootCmd.AddCommand(storesCmd)
	storesCmd.Flags().Bool("calendars", false, "Log in to Google and Outlook stores and list their calendars")
}

// calendarLister is implemented by the Google and Outlook stores.
type calendarLister interface {
	Login(ctx context.Context) error
	Calendars(ctx context.Context) (map[string]string, error)
}

func runStores(cmd *cobra.Command, args []string) error {
	if len(cfg.Stores) == 0 {
		fmt.Println("No stores configured.")
		fmt.Println("\nAdd one under 'stores:' in", viperConfigHint())
		return nil
	}

	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("ID"), bold.Sprint("Name"), bold.Sprint("Kind"), bold.Sprint("Source"), "")
	for _, sc := range cfg.Stores {
		role := faint.Sprint("read")
		if sc.ID == cfg.PrimaryStore {
			role = color.GreenString("primary")
		}
		tbl.AddRow(sc.ID, sc.DisplayName(), sc.Kind, storeSource(sc), role)
	}
	_, _ = fmt.Fprintln(color.Output, tbl)

	withCalendars, _ := cmd.Flags().GetBool("calendars")
	if !withCalendars {
		return nil
	}

	for _, sc := range cfg.Stores {
		var lister calendarLister
		switch sc.Kind {
		case config.KindGoogle:
			lister = google.NewGoogleAdapter(sc.ID, sc.DisplayName(), expandPath(sc.CredentialsFile), expandPath(sc.TokenFile), sc.CalendarID)
		case config.KindOutlook:
			lister = outlook.NewOutlookAdapter(sc.ID, sc.DisplayName(), sc.ClientID, sc.TenantID, expandPath(sc.TokenFile), sc.CalendarID)
		default:
			continue
		}

		fmt.Println()
		_, _ = bold.Printf("📅 %s calendars:\n", sc.DisplayName())
		if err := lister.Login(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "  ⚠️  %v\n", err)
			continue
		}
		cals, err := lister.Calendars(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ⚠️  %v\n", err)
			continue
		}
		ids := make([]string, 0, len(cals))
		for id := range cals {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		ct := uitable.New()
		ct.Separator = "  "
		for _, id := range ids {
			ct.AddRow("  •", cals[id], faint.Sprint(id))
		}
		_, _ = fmt.Fprintln(color.Output, ct)
	}
	fmt.Println("\nTip: set calendar_id on a store to read a calendar other than the default")
	return nil
}

func storeSource(sc config.StoreConfig) string {
	switch sc.Kind {
	case config.KindGoogle, config.KindOutlook:
		if sc.CalendarID != "" {
			return sc.CalendarID
		}
		return "default calendar"
	case config.KindPostgres, config.KindMySQL:
		return "database"
	case config.KindICS:
		return sc.URL
	case config.KindLocal:
		return sc.Path
	}
	return ""
}

func viperConfigHint() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "~/.config/crmcal/config.yaml"
}

// openStore builds and connects the store described by sc.
func openStore(ctx context.Context, sc config.StoreConfig, calCfg config.CalendarConfig, log logrus.FieldLogger) (core.EventStore, func(), error) {
	noop := func() {}
	name := sc.DisplayName()

	switch sc.Kind {
	case config.KindGoogle:
		credsFile := expandPath(sc.CredentialsFile)
		tokenFile := expandPath(sc.TokenFile)
		if _, err := os.Stat(credsFile); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("store %s: credentials file not found: %s", sc.ID, credsFile)
		}
		if _, err := os.Stat(tokenFile); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("store %s: token file not found: %s\n\nRun 'crmcal auth --store %s' to authenticate", sc.ID, tokenFile, sc.ID)
		}
		a := google.NewGoogleAdapter(sc.ID, name, credsFile, tokenFile, sc.CalendarID)
		if err := a.Login(ctx); err != nil {
			return nil, nil, fmt.Errorf("store %s: login failed: %w", sc.ID, err)
		}
		return a, noop, nil

	case config.KindOutlook:
		if sc.ClientID == "" {
			return nil, nil, fmt.Errorf("store %s: client_id not configured for Outlook store", sc.ID)
		}
		tokenFile := expandPath(sc.TokenFile)
		if _, err := os.Stat(tokenFile); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("store %s: token file not found: %s\n\nRun 'crmcal auth --store %s' to authenticate with Microsoft", sc.ID, tokenFile, sc.ID)
		}
		a := outlook.NewOutlookAdapter(sc.ID, name, sc.ClientID, sc.TenantID, tokenFile, sc.CalendarID)
		if err := a.Login(ctx); err != nil {
			return nil, nil, fmt.Errorf("store %s: login failed: %w", sc.ID, err)
		}
		return a, noop, nil

	case config.KindPostgres:
		s, err := postgres.New(ctx, sc.ID, name, sc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		return s, s.Close, nil

	case config.KindMySQL:
		s, err := sqlstore.Open(ctx, sc.ID, name, sqlstore.Config{DSN: sc.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		return s, func() { _ = s.Close() }, nil

	case config.KindICS:
		source := sc.URL
		if source == "" {
			source = expandPath(sc.Path)
		}
		return ics.New(sc.ID, name, source, ics.WithLocation(calCfg.Location()), ics.WithLogger(log)), noop, nil

	case config.KindLocal:
		s, err := local.New(sc.ID, name, expandPath(sc.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		return s, noop, nil
	}
	return nil, nil, fmt.Errorf("store %s: unknown kind %q", sc.ID, sc.Kind)
}

// openStores opens every configured store and combines them: the primary
// receives writes, the rest are read alongside it. With redis configured,
// mutations are announced on the change channel.
func openStores(ctx context.Context, c config.Config, log *logging.Logger) (core.EventStore, func(), error) {
	if len(c.Stores) == 0 {
		return nil, nil, fmt.Errorf("no stores configured\n\nAdd one under 'stores:' in %s", viperConfigHint())
	}

	var (
		primary     core.EventStore
		secondaries []core.EventStore
		closers     []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, sc := range c.Stores {
		s, closer, err := openStore(ctx, sc, c.Calendar, log.WithStore(sc.ID))
		if err != nil {
			if sc.ID == c.PrimaryStore {
				closeAll()
				return nil, nil, err
			}
			// Like skipping an unreadable calendar: the rest still work.
			fmt.Fprintf(os.Stderr, "Warning: skipping %v\n", err)
			continue
		}
		closers = append(closers, closer)
		if sc.ID == c.PrimaryStore {
			primary = s
		} else {
			secondaries = append(secondaries, s)
		}
	}

	var combined core.EventStore = primary
	if len(secondaries) > 0 {
		combined = overlay.New(primary, secondaries, log.Entry)
	}

	if c.Redis.Enabled() {
		client, err := notify.NewClient(ctx, c.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		bus := notify.NewBroker(client, c.Redis.Channel, log.Entry)
		combined = notify.NewPublishingStore(combined, bus, log.Entry)
	}
	return combined, closeAll, nil
}
