package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"igparser/internal/scheduler"
	"igparser/pkg/errors"
	"igparser/pkg/scraper"
	"igparser/pkg/ui"
)

var (
	cronSpec   string
	listenAddr string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the parser on a schedule and on HTTP request",
	Long: `Keep the parser running as a daemon. A parse run starts on the cron schedule
(nightly by default) and whenever the backend calls:

  POST /parser/run?network_id=3   start a run (409 while one is active)
  GET  /healthz                   state of the scheduler and the last run

At most one run is active at a time.`,
	Example: `  # Nightly runs, HTTP trigger on :8080
  igparser serve

  # Every six hours on a custom port
  igparser serve --cron "0 */6 * * *" --listen :9000`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&cronSpec, "cron", "", "cron schedule for parse runs (default \"0 0 * * *\")")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default :8080)")
}

func runServe(cmd *cobra.Command, args []string) {
	flags := commandFlags(cmd)
	if cmd.Flags().Changed("cron") {
		flags["cron"] = cronSpec
	}
	if cmd.Flags().Changed("listen") {
		flags["listen"] = listenAddr
	}

	cfg := loadConfig(flags)
	log := initLogger(cfg)
	log.WithField("version", version).Info("Instagram Parser daemon starting")

	creds, err := resolveCredentials(cfg)
	if err != nil {
		log.WithError(err).Error("Instagram credentials unavailable")
		ui.PrintError("Instagram credentials unavailable", err.Error())
		os.Exit(errors.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintInfo("Schedule", cfg.Schedule.Cron)
	ui.PrintInfo("Listening on", cfg.Schedule.Listen)

	sched := scheduler.New(scraper.NewFromConfig(cfg, creds, log), cfg, log)
	if err := sched.Start(ctx); err != nil {
		log.WithError(err).Error("Scheduler stopped")
		ui.PrintError("Scheduler stopped", err.Error())
		stop()
		os.Exit(1)
	}
	ui.PrintSuccess("Scheduler stopped")
}
