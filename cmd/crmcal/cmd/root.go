package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theakshaypant/crmcal/internal/calendar"
	"github.com/theakshaypant/crmcal/internal/config"
	"github.com/theakshaypant/crmcal/internal/core"
	"github.com/theakshaypant/crmcal/internal/logging"
)

var (
	cfgFile string
	profile string

	cfg   config.Config
	log   *logging.Logger
	store core.EventStore
	// closeStore releases connections held by store.
	closeStore func()
)

var rootCmd = &cobra.Command{
	Use:   "crmcal",
	Short: "The calendar of your small-business CRM, in the terminal",
	Long: `crmcal shows the jobs, assessments, meetings and follow-ups of a small
business as a month, week, day or agenda calendar.

Events come from one or more stores (Postgres, MySQL, Google Calendar,
Outlook, ICS feeds or a local directory); the first configured store, or
primary_store, receives new events.`,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
	RunE:               runList,
	SilenceUsage:       true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps viper keys to the persistent flags bound to them.
var flagKeys = map[string]string{
	"log_level":             "log-level",
	"primary_store":         "store",
	"calendar.default_view": "view",
	"calendar.show_private": "private",
	"filter.types":          "types",
	"filter.statuses":       "statuses",
	"filter.priorities":     "priorities",
	"filter.customer":       "customer",
	"filter.search":         "search",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (inherited by all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/crmcal/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "config profile to use (e.g., office, field)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "Store that receives new events (default: first configured store)")

	// View and filter flags
	rootCmd.PersistentFlags().StringP("view", "v", "", "Calendar view: month, week, day or agenda")
	rootCmd.PersistentFlags().String("date", "today", "Date to show (YYYY-MM-DD, 'today', 'tomorrow', 'monday', etc.)")
	rootCmd.PersistentFlags().String("types", "", "Comma-separated event types (job, assessment, meeting, reminder, follow_up, quote_expiry, custom)")
	rootCmd.PersistentFlags().String("statuses", "", "Comma-separated statuses (scheduled, confirmed, in_progress, completed, cancelled, rescheduled)")
	rootCmd.PersistentFlags().String("priorities", "", "Comma-separated priorities (low, medium, high, urgent)")
	rootCmd.PersistentFlags().String("customer", "", "Only show events for this customer ID")
	rootCmd.PersistentFlags().Bool("private", false, "Include private events")
	rootCmd.PersistentFlags().StringP("search", "q", "", "Search titles, descriptions, locations and customer names")

	for key, flag := range flagKeys {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
	viper.BindPFlag("date", rootCmd.PersistentFlags().Lookup("date"))
}

func initConfig() {
	// A .env next to the working directory feeds CRMCAL_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Warning: could not load .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(configDir(home))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CRMCAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	applyProfile()
}

func configDir(home string) string {
	return filepath.Join(home, ".config", "crmcal")
}

// profileSettings can be overridden per profile.
var profileSettings = []string{
	"primary_store",
	"stores",
	"log_level",
	"log_format",
	"calendar.week_start",
	"calendar.default_view",
	"calendar.timezone",
	"calendar.show_private",
	"calendar.upcoming_limit",
	"calendar.upcoming_horizon_days",
	"filter.types",
	"filter.statuses",
	"filter.priorities",
	"filter.customer",
	"filter.search",
	"server.listen",
	"reminder.schedule",
	"reminder.notifier",
}

// applyProfile merges profile-specific settings over the top-level ones.
func applyProfile() {
	activeProfile := profile
	if activeProfile == "" {
		activeProfile = viper.GetString("default_profile")
	}
	if activeProfile == "" {
		return
	}

	profileKey := "profiles." + activeProfile
	if !viper.IsSet(profileKey) {
		fmt.Fprintf(os.Stderr, "Warning: profile '%s' not found in config\n", activeProfile)
		return
	}

	fmt.Fprintf(os.Stderr, "Using profile: %s\n", activeProfile)

	// A flag given on the command line always wins over the profile.
	for _, key := range profileSettings {
		profileSettingKey := profileKey + "." + key
		if viper.IsSet(profileSettingKey) && !isFlagExplicitlySet(key) {
			viper.Set(key, viper.Get(profileSettingKey))
		}
	}
}

func isFlagExplicitlySet(viperKey string) bool {
	flagName, ok := flagKeys[viperKey]
	if !ok {
		return false
	}
	f := rootCmd.PersistentFlags().Lookup(flagName)
	return f != nil && f.Changed
}

// storeless commands never open a store.
func storeless(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", "profile", "auth", "stores", "sync":
			return true
		}
	}
	return false
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "profile" ||
		cmd.Parent() != nil && cmd.Parent().Name() == "profile" {
		return nil
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	log = logging.NewWithOptions("crmcal", logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	displayZone = cfg.Calendar.Location()

	if storeless(cmd) {
		return nil
	}
	store, closeStore, err = openStores(cmd.Context(), cfg, log)
	return err
}

func teardown(cmd *cobra.Command, args []string) error {
	if closeStore != nil {
		closeStore()
		closeStore = nil
	}
	return nil
}

// filterFromFlags reads the filter flags (or their profile values).
func filterFromFlags() (calendar.Filter, error) {
	f := calendar.Filter{
		CustomerID:  strings.TrimSpace(viper.GetString("filter.customer")),
		ShowPrivate: viper.GetBool("calendar.show_private"),
		Search:      strings.TrimSpace(viper.GetString("filter.search")),
	}
	var err error
	if f.EventTypes, err = parseList(viper.GetString("filter.types"), core.ParseEventType); err != nil {
		return f, err
	}
	if f.Statuses, err = parseList(viper.GetString("filter.statuses"), core.ParseStatus); err != nil {
		return f, err
	}
	if f.Priorities, err = parseList(viper.GetString("filter.priorities"), core.ParsePriority); err != nil {
		return f, err
	}
	return f, nil
}

func parseList[T any](raw string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// controllerOptions builds controller options from config, the view flag and the date flag.
func controllerOptions(now time.Time) (calendar.Options, error) {
	loc := cfg.Calendar.Location()
	view, err := calendar.ParseViewType(viper.GetString("calendar.default_view"))
	if err != nil {
		return calendar.Options{}, err
	}
	anchor, err := parseDate(viper.GetString("date"), now.In(loc))
	if err != nil {
		return calendar.Options{}, err
	}
	filter, err := filterFromFlags()
	if err != nil {
		return calendar.Options{}, err
	}

	opts := calendar.Options{
		Calculator:      calendar.Calculator{WeekStart: cfg.Calendar.WeekStartDay(), Location: loc},
		Aggregator:      calendar.Aggregator{Location: loc},
		View:            view,
		Anchor:          anchor,
		Filter:          filter,
		Logger:          log.Entry,
		UpcomingHorizon: cfg.Calendar.UpcomingHorizon(),
	}
	if dir, ok := store.(core.CustomerDirectory); ok {
		opts.Customers = dir
	}
	return opts, nil
}

func newController(now time.Time) (*calendar.Controller, error) {
	opts, err := controllerOptions(now)
	if err != nil {
		return nil, err
	}
	opts.Now = func() time.Time { return time.Now().In(opts.Calculator.Location) }
	return calendar.NewController(store, opts), nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// parseDate parses a date relative to now in now's zone.
// Supports: YYYY-MM-DD, MM-DD, MM/DD, MM/DD/YYYY, "today", "tomorrow",
// "yesterday", weekday names and "next <weekday>". Empty means today.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	dayName := strings.TrimPrefix(s, "next ")
	if wd, ok := weekdays[dayName]; ok {
		daysUntil := int(wd - today.Weekday())
		if daysUntil <= 0 {
			daysUntil += 7
		}
		return today.AddDate(0, 0, daysUntil), nil
	}

	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	// Year-less forms are taken in the current year.
	for _, layout := range []string{"01-02", "01/02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	if t, err := time.ParseInLocation("01/02/2006", s, loc); err == nil {
		return t, nil
	}

	return today, fmt.Errorf("%w: unable to parse date: %s (use YYYY-MM-DD, 'today', 'tomorrow', or weekday names)", core.ErrInvalidInput, s)
}

// parseDateTime accepts RFC 3339, "YYYY-MM-DD HH:MM", "<date> HH:MM" or a bare date.
func parseDateTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := now.Location()
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if i := strings.LastIndex(s, " "); i > 0 {
		if clock, err := time.Parse("15:04", s[i+1:]); err == nil {
			day, err := parseDate(s[:i], now)
			if err != nil {
				return time.Time{}, err
			}
			return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
		}
	}
	return parseDate(s, now)
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
