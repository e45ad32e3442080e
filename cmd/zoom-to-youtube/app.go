package main

import (
	"context"
	"fmt"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/discord"
	"github.com/curtbushko/zoom-to-youtube/internal/download"
	"github.com/curtbushko/zoom-to-youtube/internal/filename"
	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
	"github.com/curtbushko/zoom-to-youtube/internal/processor"
	"github.com/curtbushko/zoom-to-youtube/internal/retention"
	"github.com/curtbushko/zoom-to-youtube/internal/youtube"
	"github.com/curtbushko/zoom-to-youtube/internal/zoom"
)

// application holds the clients of one run
type application struct {
	config *config.Config
	store  ledger.Store
	runner *processor.Runner
}

// newApplication wires the ledger, the collaborators and the processor from cfg
func newApplication(cfg *config.Config, dryRun bool) (*application, error) {
	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	records := ledger.New(store, cfg.Processing.ErrorNotificationThreshold)

	zoomClient, zoomAuth, err := zoom.NewClientFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create Zoom client: %w", err)
	}

	tokens, err := youtube.NewTokenSource(cfg.YouTube)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load YouTube credentials: %w", err)
	}

	retry := download.DefaultRetryConfig()
	if cfg.Download.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Download.RetryAttempts
	}
	downloader := zoom.NewDownloader(zoomAuth, download.NewManager(download.Config{
		Timeout: cfg.Download.TimeoutDuration(),
		Retry:   retry,
	}))

	webhooks := discord.NewClient(cfg.Discord)

	proc := processor.NewProcessor(records,
		filename.NewFolderNamer(filename.Options{Template: cfg.Download.FolderTemplate}),
		processor.Collaborators{
			Downloader: downloader,
			Uploader:   youtube.NewUploader(cfg.YouTube, tokens),
			Notifier:   webhooks,
			Alerter:    webhooks,
		},
		processor.Config{
			DownloadDir:           cfg.Download.OutputDir,
			MinVideoLengthSeconds: cfg.Processing.MinVideoLengthSeconds,
			Description:           cfg.YouTube.Description,
			Tags:                  cfg.YouTube.Tags,
			CategoryID:            cfg.YouTube.CategoryID,
			PrivacyStatus:         cfg.YouTube.PrivacyStatus,
			DryRun:                dryRun,
		})

	return &application{
		config: cfg,
		store:  store,
		runner: processor.NewRunner(proc, zoomClient, retention.NewSweeper(records, dryRun)),
	}, nil
}

// Run performs one pass with the configured limits
func (a *application) Run(ctx context.Context) (*processor.RunSummary, error) {
	return a.runner.Run(ctx, processor.RunOptions{
		Limit:     a.config.Processing.LastMeetings,
		Lookback:  a.config.Processing.Lookback(),
		Retention: a.config.Processing.Retention(),
	})
}

// Close releases the ledger
func (a *application) Close() error {
	return a.store.Close()
}
