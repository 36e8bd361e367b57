package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Store kinds understood by the command layer.
const (
	KindGoogle   = "google"
	KindOutlook  = "outlook"
	KindPostgres = "postgres"
	KindMySQL    = "mysql"
	KindICS      = "ics"
	KindLocal    = "local"
)

// StoreConfig describes one event store.
type StoreConfig struct {
	ID   string `mapstructure:"id" yaml:"id" validate:"required"`
	Name string `mapstructure:"name" yaml:"name"`
	Kind string `mapstructure:"kind" yaml:"kind" validate:"required,oneof=google outlook postgres mysql ics local"`

	// google
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file,omitempty"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file,omitempty"`
	CalendarID      string `mapstructure:"calendar_id" yaml:"calendar_id,omitempty"`

	// outlook
	ClientID string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	TenantID string `mapstructure:"tenant_id" yaml:"tenant_id,omitempty"`

	// postgres, mysql
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`

	// ics feed URL or file path
	URL string `mapstructure:"url" yaml:"url,omitempty"`

	// local
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// DisplayName returns Name, falling back to the ID.
func (s StoreConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// CalendarConfig holds view defaults.
type CalendarConfig struct {
	// WeekStart is "sunday" (default) or "monday".
	WeekStart   string `mapstructure:"week_start" yaml:"week_start"`
	DefaultView string `mapstructure:"default_view" yaml:"default_view" validate:"oneof=month week day agenda"`
	// Timezone is an IANA name; empty means the local zone.
	Timezone            string `mapstructure:"timezone" yaml:"timezone"`
	UpcomingLimit       int    `mapstructure:"upcoming_limit" yaml:"upcoming_limit" validate:"gte=1"`
	UpcomingHorizonDays int    `mapstructure:"upcoming_horizon_days" yaml:"upcoming_horizon_days" validate:"gte=1"`
	ShowPrivate         bool   `mapstructure:"show_private" yaml:"show_private"`
}

type AuthConfig struct {
	// Static bearer tokens accepted as-is.
	Tokens []string `mapstructure:"tokens" yaml:"tokens"`
	// HMAC secret for JWT bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return len(a.Tokens) > 0 || a.JWTSecret != ""
}

type ServerConfig struct {
	Listen string     `mapstructure:"listen" yaml:"listen" validate:"required"`
	Auth   AuthConfig `mapstructure:"auth" yaml:"auth"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// Channel carries store change notices.
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// Enabled reports whether a redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type ReminderConfig struct {
	// Schedule is a robfig/cron spec.
	Schedule string `mapstructure:"schedule" yaml:"schedule" validate:"required"`
	// Notifier is "log" or "redis".
	Notifier string `mapstructure:"notifier" yaml:"notifier" validate:"oneof=log redis"`
	// Dedupe is "memory" or "redis".
	Dedupe string `mapstructure:"dedupe" yaml:"dedupe" validate:"oneof=memory redis"`
	// Channel receives fired reminders when Notifier is redis.
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// Config is the top-level application configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=json text"`

	// PrimaryStore receives writes; the other stores are read alongside it.
	PrimaryStore string        `mapstructure:"primary_store" yaml:"primary_store"`
	Stores       []StoreConfig `mapstructure:"stores" yaml:"stores" validate:"dive"`

	Calendar CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Reminder ReminderConfig `mapstructure:"reminder" yaml:"reminder"`
}

// SetDefaults registers defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("calendar.week_start", "sunday")
	v.SetDefault("calendar.default_view", "month")
	v.SetDefault("calendar.upcoming_limit", 10)
	v.SetDefault("calendar.upcoming_horizon_days", 90)
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("redis.channel", "crmcal:changes")
	v.SetDefault("reminder.schedule", "@every 1m")
	v.SetDefault("reminder.notifier", "log")
	v.SetDefault("reminder.dedupe", "memory")
	v.SetDefault("reminder.channel", "crmcal:reminders")
}

// Load decodes, normalizes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Normalize fills in missing or unknown values so partially-filled configs still behave.
func (c *Config) Normalize() {
	c.Calendar.WeekStart = strings.ToLower(strings.TrimSpace(c.Calendar.WeekStart))
	switch c.Calendar.WeekStart {
	case "monday", "sunday":
	default:
		c.Calendar.WeekStart = "sunday"
	}

	c.Calendar.DefaultView = strings.ToLower(strings.TrimSpace(c.Calendar.DefaultView))
	if c.Calendar.DefaultView == "" {
		c.Calendar.DefaultView = "month"
	}
	if c.Calendar.UpcomingLimit <= 0 {
		c.Calendar.UpcomingLimit = 10
	}
	if c.Calendar.UpcomingHorizonDays <= 0 {
		c.Calendar.UpcomingHorizonDays = 90
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Reminder.Schedule == "" {
		c.Reminder.Schedule = "@every 1m"
	}
	if c.Reminder.Notifier == "" {
		c.Reminder.Notifier = "log"
	}
	if c.Reminder.Dedupe == "" {
		c.Reminder.Dedupe = "memory"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "crmcal:changes"
	}
	if c.Reminder.Channel == "" {
		c.Reminder.Channel = "crmcal:reminders"
	}
	for i := range c.Stores {
		c.Stores[i].Kind = strings.ToLower(c.Stores[i].Kind)
	}
	if c.PrimaryStore == "" && len(c.Stores) > 0 {
		c.PrimaryStore = c.Stores[0].ID
	}
}

// Validate checks field tags and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool)
	for _, s := range c.Stores {
		if seen[s.ID] {
			return fmt.Errorf("invalid config: duplicate store id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if c.PrimaryStore != "" && !seen[c.PrimaryStore] {
		return fmt.Errorf("invalid config: primary_store %q is not a configured store", c.PrimaryStore)
	}
	if (c.Reminder.Notifier == "redis" || c.Reminder.Dedupe == "redis") && !c.Redis.Enabled() {
		return fmt.Errorf("invalid config: reminder uses redis but redis.addr is empty")
	}
	if c.Calendar.Timezone != "" {
		if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
			return fmt.Errorf("invalid config: timezone: %w", err)
		}
	}
	return nil
}

// Store returns the store config with id.
func (c Config) Store(id string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.ID == id {
			return s, true
		}
	}
	return StoreConfig{}, false
}

// WeekStartDay returns the configured first weekday.
func (c CalendarConfig) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// Location returns the configured display zone, or time.Local.
func (c CalendarConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// UpcomingHorizon returns the upcoming window as a duration.
func (c CalendarConfig) UpcomingHorizon() time.Duration {
	return time.Duration(c.UpcomingHorizonDays) * 24 * time.Hour
}
