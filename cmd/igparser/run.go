package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"igparser/pkg/errors"
	"igparser/pkg/scraper"
	"igparser/pkg/ui"
)

var maxPosts int

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [network_id]",
	Short: "Parse every account queued by the backend once",
	Long: `Sign in to Instagram, fetch the accounts queued for parsing and report
follower counts and recent post metrics for each of them.

The network id may be given as an argument, with --network-id or through
NETWORK_ID. Without one, accounts of every network are parsed.

The process exits with status 0 once the run completes, even when single
accounts failed, and with status 1 when it could not start or sign in.`,
	Example: `  # Parse accounts of every network
  igparser run

  # Parse accounts of network 3 only
  igparser run 3

  # Same, as the default command
  igparser 3`,
	Args: cobra.MaximumNArgs(1),
	Run:  runParse,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("network-id", "", "only parse accounts of this network")
	runCmd.Flags().IntVar(&maxPosts, "max-posts", 0, "maximum posts collected per account (default 10)")
}

func runParse(cmd *cobra.Command, args []string) {
	flags := commandFlags(cmd)
	if networkID, _ := cmd.Flags().GetString("network-id"); networkID != "" {
		flags["network-id"] = strings.TrimSpace(networkID)
	}
	if len(args) == 1 {
		flags["network-id"] = strings.TrimSpace(args[0])
	}
	if cmd.Flags().Changed("max-posts") {
		flags["max-posts"] = maxPosts
	}

	cfg := loadConfig(flags)
	log := initLogger(cfg)
	log.WithField("version", version).Info("Instagram Parser starting")

	creds, err := resolveCredentials(cfg)
	if err != nil {
		log.WithError(err).Error("Instagram credentials unavailable")
		ui.PrintError("Instagram credentials unavailable", err.Error())
		os.Exit(errors.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network := cfg.Scrape.NetworkID
	if network == "" {
		network = "all"
	}
	ui.PrintInfo("Network", network)

	s := scraper.NewFromConfig(cfg, creds, log)
	summary, err := s.Run(ctx, cfg.Scrape.NetworkID)
	ui.PrintSummary(summary)

	if err != nil {
		ui.PrintError("Parse run aborted", err.Error())
		stop()
		os.Exit(errors.ExitCode(err))
	}
	if summary.Cancelled {
		ui.PrintWarning("Parse run cancelled")
		return
	}
	ui.PrintSuccess("Parse run completed")
}
