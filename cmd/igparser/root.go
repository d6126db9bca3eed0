package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"igparser/pkg/auth"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/logger"
	"igparser/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile       string
	logLevel         string
	logDir           string
	backendURL       string
	credentialSource string
	headless         bool
	quiet            bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igparser",
	Short: "Collects follower counts and post engagement from Instagram accounts",
	Long: `Instagram Parser signs in to Instagram with a headless browser, visits every
account the backend queues for parsing and reports follower counts and recent
post metrics back to it.

Running igparser without a command starts a single parse run:

  igparser            parse accounts of every network
  igparser 3          parse accounts of network 3`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and runs it. A first
// argument that is not a known command is treated as the arguments of run.
func Execute() {
	rootCmd.SetArgs(defaultToRun(rootCmd, os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultToRun(root *cobra.Command, args []string) []string {
	if len(args) > 0 {
		switch args[0] {
		case "help", "-h", "--help", "--version", "completion":
			return args
		}
		if cmd, _, err := root.Find(args); err == nil && cmd != root {
			return args
		}
	}
	return append([]string{"run"}, args...)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igparser.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for parser.log and diagnostics (default /app/logs)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "backend base URL (default http://backend:8000)")
	rootCmd.PersistentFlags().StringVar(&credentialSource, "credential-source", "", "where to read the Instagram login from (env, keyring, file)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "run the browser without a window")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`Instagram Parser {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandFlags collects the flags set on the command line in the form
// config.MergeCommandLineFlags expects
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if set("log-level") {
		flags["log-level"] = logLevel
	}
	if set("log-dir") {
		flags["log-dir"] = logDir
	}
	if set("backend-url") {
		flags["backend-url"] = backendURL
	}
	if set("credential-source") {
		flags["credential-source"] = credentialSource
	}
	if set("headless") {
		flags["headless"] = headless
	}
	return flags
}

// loadConfig loads the configuration or exits with status 1
func loadConfig(flags map[string]interface{}) *config.Config {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	return cfg
}

// initLogger installs the global logger or exits with status 1
func initLogger(cfg *config.Config) logger.Logger {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	return logger.GetLogger()
}

// resolveCredentials returns the Instagram login for the configured source.
// Every failure is a startup configuration error.
func resolveCredentials(cfg *config.Config) (*auth.Credentials, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStartupConfig, "require_credentials", err)
	}

	manager, err := auth.NewManager(cfg.Instagram)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStartupConfig, "credential_manager", err)
	}

	return manager.Resolve(cfg.Instagram.CredentialSource, strings.TrimSpace(cfg.Instagram.Username))
}
