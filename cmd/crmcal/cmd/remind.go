package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/theakshaypant/crmcal/internal/notify"
	"github.com/theakshaypant/crmcal/internal/reminder"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run the reminder scheduler",
	Long: `Scan the stores on reminder.schedule (a cron spec, default "@every 1m")
and send a notice for every reminder offset that has come due.

Notices go to the log, or to a redis channel with reminder.notifier: redis.
Each event and offset fires once.`,
	RunE: runRemind,
}

func init() {
	rootCmd.AddCommand(remindCmd)
}

func runRemind(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := reminder.Options{
		Schedule: cfg.Reminder.Schedule,
		Logger:   log.Entry,
		Location: cfg.Calendar.Location(),
	}

	var client *redis.Client
	if cfg.Reminder.Notifier == "redis" || cfg.Reminder.Dedupe == "redis" {
		var err error
		client, err = notify.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
	}
	if cfg.Reminder.Notifier == "redis" {
		opts.Notifier = reminder.RedisNotifier{Client: client, Channel: cfg.Reminder.Channel}
	}
	if cfg.Reminder.Dedupe == "redis" {
		opts.Deduper = reminder.RedisDeduper{Client: client, Prefix: "crmcal:reminded:"}
	}

	s, err := reminder.New(store, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "🔔 Watching %s for reminders (%s)\n", store.Name(), cfg.Reminder.Schedule)
	return s.Run(ctx)
}
