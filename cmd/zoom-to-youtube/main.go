package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/processor"
)

const defaultConfigFile = "config.yaml"

var (
	// Version information - will be set during build
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	outputDir  string
	verbose    bool
	dryRun     bool
	limit      int
)

// errConfiguration is returned after configuration guidance has been printed
var errConfiguration = errors.New("configuration is incomplete")

// buildRootCommand creates and configures the root command
func buildRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zoom-to-youtube",
		Short: "Publish Zoom cloud recordings to YouTube and announce them on Discord",
		Long: `zoom-to-youtube downloads the latest Zoom cloud recordings, uploads
them to YouTube as unlisted videos and posts the links to a Discord webhook.

Every step is tracked in a ledger so runs can be repeated safely:
- Recordings that finished every step are never touched again
- Interrupted recordings resume at the step that failed
- Repeated failures raise an alert on the error webhook
- Local copies are deleted after the retention period`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := initLogging(cfg); err != nil {
				return err
			}
			defer closeLogging()

			summary, err := runOnce(ctx, cfg)
			if err != nil {
				cmd.Printf("❌ Run failed: %v\n", err)
				if errs.IsAuth(err) {
					cmd.Printf("💡 Credentials were rejected. Run 'zoom-to-youtube auth zoom' or 'zoom-to-youtube auth youtube' to authorize again.\n")
				}
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}

	// Add subcommands
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createDaemonCommand())
	rootCmd.AddCommand(createLedgerCommand())
	rootCmd.AddCommand(createAuthCommand())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (default: config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "download directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log what would happen without downloading, uploading, notifying or writing the ledger")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0, "process the last N recordings (0 = use config)")

	// Add flag validation
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if limit < 0 {
			return fmt.Errorf("limit must be a positive number or 0, got: %d", limit)
		}
		return nil
	}

	return rootCmd
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, commit, and build information for zoom-to-youtube",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("zoom-to-youtube version %s\n", version)
			cmd.Printf("Commit: %s\n", commit)
			cmd.Printf("Build date: %s\n", buildDate)
		},
	}
}

// resolveConfigPath returns the --config value, or config.yaml when it exists
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// applyOverrides applies command-line flags on top of the loaded configuration
func applyOverrides(cfg *config.Config) {
	if outputDir != "" {
		cfg.Download.OutputDir = outputDir
	}
	if limit > 0 {
		cfg.Processing.LastMeetings = limit
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// loadConfig loads and validates the configuration, printing guidance when it is incomplete
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath := resolveConfigPath()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cmd.Printf("⚠️  Configuration Issue Detected\n\n")

		if strings.Contains(err.Error(), "failed to read config file") {
			cmd.Printf("Configuration file '%s' not found.\n\n", configPath)
		} else {
			cmd.Printf("Configuration error: %v\n\n", err)
		}

		cmd.Printf("To get started:\n")
		cmd.Printf("1. Run 'zoom-to-youtube config' to see the configuration structure\n")
		cmd.Printf("2. Put credentials in config.yaml, a .env file or the environment\n")
		cmd.Printf("3. Run 'zoom-to-youtube auth youtube' to create the YouTube token file\n")
		cmd.Printf("4. Run 'zoom-to-youtube --dry-run' to check what would be processed\n\n")

		hasEnvCreds := os.Getenv("ZOOM_CLIENT_ID") != "" &&
			os.Getenv("ZOOM_CLIENT_SECRET") != "" &&
			os.Getenv("YOUTUBE_CLIENT_ID") != "" &&
			os.Getenv("DISCORD_WEBHOOK_URL") != ""
		if hasEnvCreds {
			cmd.Printf("✅ Credentials found in environment variables.\n")
		} else {
			cmd.Printf("💡 Alternative: set environment variables instead of using a config file:\n")
			cmd.Printf("   export ZOOM_ACCOUNT_ID='your-account-id'\n")
			cmd.Printf("   export ZOOM_CLIENT_ID='your-client-id'\n")
			cmd.Printf("   export ZOOM_CLIENT_SECRET='your-client-secret'\n")
			cmd.Printf("   export YOUTUBE_CLIENT_ID='your-google-client-id'\n")
			cmd.Printf("   export YOUTUBE_CLIENT_SECRET='your-google-client-secret'\n")
			cmd.Printf("   export DISCORD_WEBHOOK_URL='https://discord.com/api/webhooks/...'\n\n")
		}

		cmd.Printf("For detailed help: zoom-to-youtube config\n")
		return nil, fmt.Errorf("%w: %v", errConfiguration, err)
	}

	applyOverrides(cfg)
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	if err := logging.InitializeLogging(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func closeLogging() {
	if logger := logging.GetDefaultLogger(); logger != nil {
		logger.Close()
	}
}

// runOnce performs a single pass with a fresh set of clients
func runOnce(ctx context.Context, cfg *config.Config) (*processor.RunSummary, error) {
	ctx = logging.WithRunID(ctx, logging.NewRunID())

	app, err := newApplication(cfg, dryRun)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	logging.LogItemAction(ctx, "run_start", "cli", map[string]interface{}{
		"limit":      cfg.Processing.LastMeetings,
		"dry_run":    dryRun,
		"output_dir": cfg.Download.OutputDir,
		"ledger":     cfg.Ledger.Path,
	})
	return app.Run(ctx)
}

// printSummary displays the outcome of a run
func printSummary(cmd *cobra.Command, summary *processor.RunSummary) {
	if dryRun {
		cmd.Printf("\n🔍 DRY RUN COMPLETED\n")
		cmd.Printf("Would have processed %d recording(s)\n", summary.Processed)
	} else if summary.Failed > 0 && summary.Processed == 0 {
		cmd.Printf("\n❌ RUN FINISHED WITH ERRORS\n")
	} else {
		cmd.Printf("\n✅ RUN COMPLETED\n")
	}

	cmd.Printf("   Listed:           %d\n", summary.Listed)
	cmd.Printf("   Processed:        %d\n", summary.Processed)
	cmd.Printf("   Already complete: %d\n", summary.AlreadyComplete)
	cmd.Printf("   Skipped:          %d\n", summary.Skipped)
	cmd.Printf("   Failed:           %d\n", summary.Failed)
	cmd.Printf("   Retried:          %d uploaded, %d notified\n", summary.Retry.Uploaded, summary.Retry.Notified)
	cmd.Printf("   Deleted:          %d\n", summary.Deleted)
	cmd.Printf("   Duration:         %s\n", summary.Duration.Round(time.Millisecond))

	if len(summary.Errors) > 0 && (verbose || summary.Failed > 0) {
		cmd.Printf("\n❌ Errors (%d):\n", len(summary.Errors))
		for _, err := range summary.Errors {
			cmd.Printf("   - %v\n", err)
		}
	}
}

func main() {
	rootCmd := buildRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
