package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/scheduler"
)

// createDaemonCommand creates the daemon subcommand
func createDaemonCommand() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run on a schedule",
		Long: `Run the pipeline on the cron schedule from schedule.cron (six fields,
seconds first; default "0 0 6 * * *"). The configuration file is watched
and reloaded on change, including the schedule. SIGINT or SIGTERM stops
the daemon after the current run returns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}
			defer closeLogging()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := &daemon{config: cfg}
			sched, err := scheduler.New(cfg.Schedule.Cron, d.run)
			if err != nil {
				return err
			}
			d.scheduler = sched

			if path := resolveConfigPath(); path != "" {
				watcher, err := config.NewWatcher(path, d.reload)
				if err != nil {
					logging.Warn("Config reload disabled: %v", err)
				} else {
					defer watcher.Close()
				}
			}

			if runNow {
				d.run(ctx)
			}

			sched.Start()
			cmd.Printf("🕒 Daemon started, next run at %s\n", sched.Next().Format(time.RFC3339))

			<-ctx.Done()
			cmd.Printf("Shutting down, waiting for the current run to finish...\n")
			<-sched.Stop().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}

// daemon runs scheduled passes with the most recently loaded configuration
type daemon struct {
	mu        sync.Mutex
	config    *config.Config
	scheduler *scheduler.Scheduler
}

func (d *daemon) current() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

func (d *daemon) run(ctx context.Context) {
	summary, err := runOnce(ctx, d.current())
	if err != nil {
		logging.Error("Scheduled run failed: %v", err)
		return
	}
	logging.Info("Scheduled run finished: %d processed, %d failed, next run at %s",
		summary.Processed, summary.Failed, d.scheduler.Next().Format(time.RFC3339))
}

// reload swaps in a changed configuration. An invalid file keeps the previous one.
func (d *daemon) reload(cfg *config.Config, err error) {
	if err != nil {
		logging.Error("Ignoring configuration change: %v", err)
		return
	}
	applyOverrides(cfg)

	if err := d.scheduler.Reschedule(cfg.Schedule.Cron); err != nil {
		logging.Error("Ignoring configuration change: %v", err)
		return
	}

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
	logging.Info("Configuration reloaded")
}
