package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theakshaypant/crmcal/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the calendar over HTTP",
	Long: `Serve the calendar API under /api/v1, plus /healthz and /metrics.

Requests are authenticated when server.auth.tokens or server.auth.jwt_secret
is configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (default 127.0.0.1:8080)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	calOpts, err := controllerOptions(time.Now().In(displayZone))
	if err != nil {
		return err
	}
	calOpts.Logger = nil

	srv := api.New(store, api.Options{
		Calendar:      calOpts,
		Auth:          cfg.Server.Auth,
		Logger:        log,
		Metrics:       api.NewMetrics(),
		UpcomingLimit: cfg.Calendar.UpcomingLimit,
	})
	return srv.Run(ctx, cfg.Server.Listen)
}
