package main

import (
	"github.com/spf13/cobra"
)

// createConfigCommand creates the config help subcommand
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration file structure and examples",
		Long:  "Display the configuration file structure, environment variables, authentication steps and examples",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(configHelp)
		},
	}
}

const configHelp = `Configuration File Structure (config.yaml):

ZOOM API CONFIGURATION (Required):
=================================
zoom:
  auth_mode: "server_to_server"            # server_to_server (default) or refresh_token
  account_id: "your_zoom_account_id"       # Required for server_to_server
  client_id: "your_zoom_client_id"
  client_secret: "your_zoom_client_secret"
  user_id: "me"                            # Whose recordings to list (default: me)
  token_file: ".zoom_refresh_token"        # refresh_token mode only
  requests_per_second: 10                  # Zoom API rate limit

YOUTUBE CONFIGURATION (Required):
================================
youtube:
  client_id: "your_google_client_id"
  client_secret: "your_google_client_secret"
  token_file: "youtube_token.json"         # Created by 'zoom-to-youtube auth youtube'
  description: "Uploaded via automation"
  tags: ["zoom", "meeting", "recording"]
  category_id: "22"
  privacy_status: "unlisted"               # private, unlisted or public
  chunk_size_mb: 4                         # Resumable upload chunk size

DISCORD CONFIGURATION:
=====================
discord:
  webhook_url: "https://discord.com/api/webhooks/..."        # Required, receives video links
  error_webhook_url: "https://discord.com/api/webhooks/..."  # Optional, receives failure alerts
  timeout_seconds: 10

DOWNLOAD CONFIGURATION:
======================
download:
  output_dir: "./downloaded_videos"
  folder_template: "{date} {time} - {topic}"   # Also {date_time}; the folder name is the video title
  retry_attempts: 3
  timeout_seconds: 300

PROCESSING CONFIGURATION:
========================
processing:
  last_meetings: 3                     # Recordings fetched per run
  lookback_days: 365                   # How far back to list recordings
  min_video_length_seconds: 60         # Shorter recordings are skipped for good
  retention_days: 10                   # Local copies older than this are deleted
  error_notification_threshold: 3      # Failures before an alert is sent

LEDGER CONFIGURATION:
====================
ledger:
  driver: "csv"                        # csv (default) or sqlite
  path: "./processed_recordings.csv"

LOGGING CONFIGURATION:
=====================
logging:
  level: "info"                        # debug, info, warn, error
  file: "./zoom_to_youtube.log"
  json_format: false

SCHEDULE CONFIGURATION (daemon):
===============================
schedule:
  cron: "0 0 6 * * *"                  # Seconds first; every day at 06:00

ENVIRONMENT VARIABLES:
=====================
Environment variables and a .env file in the working directory override the file:
  ZOOM_AUTH_MODE, ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID, ZOOM_CLIENT_SECRET, ZOOM_USER_ID
  YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, YOUTUBE_TOKEN_FILE
  YOUTUBE_DEFAULT_DESCRIPTION, YOUTUBE_DEFAULT_TAGS (comma separated), YOUTUBE_CATEGORY_ID
  DISCORD_WEBHOOK_URL, DISCORD_ERROR_WEBHOOK_URL
  DOWNLOAD_DIR, FOLDER_NAME_TEMPLATE
  LAST_MEETINGS_TO_PROCESS, LOOKBACK_DAYS, MIN_VIDEO_LENGTH_SECONDS
  VIDEO_RETENTION_DAYS, ERROR_NOTIFICATION_THRESHOLD
  CSV_TRACKER_PATH, LOG_FILE, SCHEDULE

AUTHENTICATION:
==============
1. Zoom Server-to-Server OAuth (recommended):
   - Account-level access, no user consent required
   - Required scopes: cloud_recording:read:list_user_recordings
2. Zoom refresh token:
   - Set zoom.auth_mode to refresh_token
   - Run 'zoom-to-youtube auth zoom' and follow the steps
3. YouTube:
   - Create an OAuth client in the Google Cloud console
   - Run 'zoom-to-youtube auth youtube' and follow the steps

EXAMPLE USAGE:
=============
  zoom-to-youtube --dry-run --verbose
  zoom-to-youtube --limit 5
  zoom-to-youtube daemon --run-now
  zoom-to-youtube ledger --pending

DIRECTORY STRUCTURE:
==================
downloaded_videos/
├── 2024-03-01 14-00 - Weekly Sync/
│   └── shared_screen_with_gallery_view.mp4
└── 2024-03-04 09-30 - Planning/
    └── gallery_view.mp4

TROUBLESHOOTING:
===============
- 'run the auth command first': the token file is missing, run the auth command
- Recordings listed as failed are retried on the next run; see 'zoom-to-youtube ledger --pending'
- Videos that are too short are marked skipped and never retried
`
