package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage configuration profiles",
	Long: `Manage configuration profiles for different stores and filter presets.

Profiles let you switch quickly between, say, the office calendar with
every event type and a field profile that only shows today's jobs.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show profile settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileShow,
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new profile",
	Long: `Add a new profile from the view and filter flags.

Example:
  crmcal profile add field --view day --types job,assessment --store office_pg`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileAdd,
}

var profileSetDefaultCmd = &cobra.Command{
	Use:   "default <name>",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileSetDefault,
}

var profileEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Edit a profile's settings",
	Long: `Edit a profile's settings using flags. Only the flags you pass change.

Example:
  crmcal profile edit field --private=true --week-start monday`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileEdit,
}

// profileFlag ties a flag to the config key a profile stores it under.
type profileFlag struct {
	flag    string
	key     string
	section string
}

// Flags without a local definition are the inherited root flags.
var profileFlags = []profileFlag{
	{"store", "primary_store", "📁 Stores"},
	{"view", "calendar.default_view", "📅 Calendar"},
	{"week-start", "calendar.week_start", "📅 Calendar"},
	{"timezone", "calendar.timezone", "📅 Calendar"},
	{"upcoming-limit", "calendar.upcoming_limit", "📅 Calendar"},
	{"private", "calendar.show_private", "🔍 Filters"},
	{"types", "filter.types", "🔍 Filters"},
	{"statuses", "filter.statuses", "🔍 Filters"},
	{"priorities", "filter.priorities", "🔍 Filters"},
	{"customer", "filter.customer", "🔍 Filters"},
	{"search", "filter.search", "🔍 Filters"},
	{"log-level", "log_level", "📝 Logging"},
	{"log-format", "log_format", "📝 Logging"},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileSetDefaultCmd)
	profileCmd.AddCommand(profileEditCmd)

	for _, c := range []*cobra.Command{profileAddCmd, profileEditCmd} {
		c.Flags().String("week-start", "", "First day of the week: sunday or monday")
		c.Flags().String("timezone", "", "IANA timezone for the calendar, e.g. America/Chicago")
		c.Flags().Int("upcoming-limit", 0, "Default number of events for 'next'")
		c.Flags().String("log-format", "", "Log format: text or json")
	}
}

func runProfileList(cmd *cobra.Command, args []string) error {
	profiles := viper.GetStringMap("profiles")
	defaultProfile := viper.GetString("default_profile")

	if len(profiles) == 0 {
		fmt.Println("No profiles configured.")
		fmt.Println("\nAdd one with: crmcal profile add <name> --view=week --types=job")
		return nil
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	tbl := uitable.New()
	tbl.AddRow("", "PROFILE", "STORE", "VIEW")
	for _, name := range names {
		marker := ""
		if name == defaultProfile {
			marker = color.GreenString("*")
		}
		key := "profiles." + name
		tbl.AddRow(marker, name, viper.GetString(key+".primary_store"), viper.GetString(key+".calendar.default_view"))
	}
	fmt.Fprintln(color.Output, tbl)
	fmt.Println("\nUse 'crmcal profile show <name>' for details")

	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	var profileName string
	if len(args) > 0 {
		profileName = args[0]
	} else {
		profileName = viper.GetString("default_profile")
		if profileName == "" {
			return fmt.Errorf("no profile specified and no default profile set")
		}
	}

	profileKey := "profiles." + profileName
	if !viper.IsSet(profileKey) {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	fmt.Printf("Profile: %s\n", profileName)
	if profileName == viper.GetString("default_profile") {
		fmt.Println("(default)")
	}
	fmt.Println(separator)

	section := ""
	for _, pf := range profileFlags {
		key := profileKey + "." + pf.key
		if !viper.IsSet(key) {
			continue
		}
		if pf.section != section {
			section = pf.section
			fmt.Printf("\n%s:\n", section)
		}
		fmt.Printf("  %s: %v\n", pf.flag, viper.Get(key))
	}
	if stores := viper.Get(profileKey + ".stores"); stores != nil {
		fmt.Println("\n📁 Stores:")
		fmt.Println("  (profile defines its own store list)")
	}

	fmt.Println()
	return nil
}

// flagValue returns the typed value of a flag for writing to yaml.
func flagValue(f *pflag.Flag) interface{} {
	raw := f.Value.String()
	switch f.Value.Type() {
	case "bool":
		v, _ := strconv.ParseBool(raw)
		return v
	case "int":
		v, _ := strconv.Atoi(raw)
		return v
	}
	return raw
}

// setNested stores value under a dotted key, creating maps on the way.
func setNested(m map[string]interface{}, key string, value interface{}) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// applyProfileFlags copies every changed profile flag into profile.
func applyProfileFlags(cmd *cobra.Command, profile map[string]interface{}) bool {
	changed := false
	for _, pf := range profileFlags {
		f := cmd.Flags().Lookup(pf.flag)
		if f == nil || !f.Changed {
			continue
		}
		setNested(profile, pf.key, flagValue(f))
		changed = true
	}
	return changed
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	profileName := args[0]

	profileKey := "profiles." + profileName
	if viper.IsSet(profileKey) {
		return fmt.Errorf("profile '%s' already exists. Use 'crmcal profile edit %s' to modify it", profileName, profileName)
	}

	profile := make(map[string]interface{})
	applyProfileFlags(cmd, profile)

	if err := saveProfileToConfig(profileName, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	fmt.Printf("✓ Profile '%s' created\n", profileName)
	fmt.Printf("\nUse it with: crmcal -p %s\n", profileName)
	fmt.Printf("Set as default: crmcal profile default %s\n", profileName)

	return nil
}

func runProfileSetDefault(cmd *cobra.Command, args []string) error {
	profileName := args[0]

	profileKey := "profiles." + profileName
	if !viper.IsSet(profileKey) {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	if err := setDefaultProfileInConfig(profileName); err != nil {
		return fmt.Errorf("failed to set default profile: %w", err)
	}

	fmt.Printf("✓ Default profile set to '%s'\n", profileName)
	return nil
}

func runProfileEdit(cmd *cobra.Command, args []string) error {
	profileName := args[0]

	profileKey := "profiles." + profileName
	if !viper.IsSet(profileKey) {
		return fmt.Errorf("profile '%s' not found. Use 'crmcal profile add %s' to create it", profileName, profileName)
	}

	// Start from the file, not viper, so values viper merged from elsewhere stay out.
	file, err := loadConfigFile()
	if err != nil {
		return err
	}
	profile := file.profile(profileName)
	if profile == nil {
		profile = make(map[string]interface{})
	}

	if !applyProfileFlags(cmd, profile) {
		fmt.Println("No changes specified. Use flags to update settings:")
		fmt.Println("  crmcal profile edit", profileName, "--view=week --private=true")
		return nil
	}

	file.setProfile(profileName, profile)
	if err := file.save(); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	fmt.Printf("✓ Profile '%s' updated\n", profileName)
	return nil
}

// configFile is the raw yaml config, edited without viper so that keys and
// values outside profiles are written back untouched.
type configFile struct {
	path string
	data map[string]interface{}
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(configDir(home), "config.yaml")
}

// loadConfigFile reads the config file; a missing file is an empty config.
func loadConfigFile() (*configFile, error) {
	f := &configFile{path: getConfigPath()}
	raw, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.path, err)
		}
	}
	if f.data == nil {
		f.data = make(map[string]interface{})
	}
	return f, nil
}

// profile returns the named profile, creating the profiles map when absent.
func (f *configFile) profile(name string) map[string]interface{} {
	profiles, ok := f.data["profiles"].(map[string]interface{})
	if !ok {
		profiles = make(map[string]interface{})
		f.data["profiles"] = profiles
	}
	p, _ := profiles[name].(map[string]interface{})
	return p
}

func (f *configFile) setProfile(name string, p map[string]interface{}) {
	f.profile(name)
	f.data["profiles"].(map[string]interface{})[name] = p
}

func (f *configFile) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(f.data)
	if err != nil {
		return err
	}
	// Store configs can hold DSNs and secrets.
	return os.WriteFile(f.path, raw, 0600)
}

func saveProfileToConfig(name string, profile map[string]interface{}) error {
	f, err := loadConfigFile()
	if err != nil {
		return err
	}
	f.setProfile(name, profile)
	return f.save()
}

func setDefaultProfileInConfig(name string) error {
	f, err := loadConfigFile()
	if err != nil {
		return err
	}
	f.data["default_profile"] = name
	return f.save()
}
