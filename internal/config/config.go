// Package config provides configuration management for the zoom-to-youtube application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Zoom authentication modes
const (
	ZoomAuthServerToServer = "server_to_server"
	ZoomAuthRefreshToken   = "refresh_token"
)

// Ledger drivers
const (
	LedgerDriverCSV    = "csv"
	LedgerDriverSQLite = "sqlite"
)

// ZoomConfig holds Zoom API authentication and connection settings
type ZoomConfig struct {
	AuthMode          string  `yaml:"auth_mode" json:"auth_mode"`
	AccountID         string  `yaml:"account_id" json:"account_id"`
	ClientID          string  `yaml:"client_id" json:"client_id"`
	ClientSecret      string  `yaml:"client_secret" json:"client_secret"`
	UserID            string  `yaml:"user_id" json:"user_id"`
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	TokenURL          string  `yaml:"token_url" json:"token_url"`
	TokenFile         string  `yaml:"token_file" json:"token_file"`
	RedirectURI       string  `yaml:"redirect_uri" json:"redirect_uri"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// YouTubeConfig holds YouTube upload credentials and video defaults
type YouTubeConfig struct {
	ClientID      string   `yaml:"client_id" json:"client_id"`
	ClientSecret  string   `yaml:"client_secret" json:"client_secret"`
	TokenFile     string   `yaml:"token_file" json:"token_file"`
	TokenURL      string   `yaml:"token_url" json:"token_url"`
	RedirectURI   string   `yaml:"redirect_uri" json:"redirect_uri"`
	UploadURL     string   `yaml:"upload_url" json:"upload_url"`
	Description   string   `yaml:"description" json:"description"`
	Tags          []string `yaml:"tags" json:"tags"`
	CategoryID    string   `yaml:"category_id" json:"category_id"`
	PrivacyStatus string   `yaml:"privacy_status" json:"privacy_status"`
	ChunkSizeMB   int      `yaml:"chunk_size_mb" json:"chunk_size_mb"`
}

// DiscordConfig holds webhook settings for notifications and error alerts
type DiscordConfig struct {
	WebhookURL      string `yaml:"webhook_url" json:"webhook_url"`
	ErrorWebhookURL string `yaml:"error_webhook_url" json:"error_webhook_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// DownloadConfig holds download-related settings
type DownloadConfig struct {
	OutputDir      string `yaml:"output_dir" json:"output_dir"`
	FolderTemplate string `yaml:"folder_template" json:"folder_template"`
	RetryAttempts  int    `yaml:"retry_attempts" json:"retry_attempts"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// TimeoutDuration returns the timeout as a time.Duration
func (d DownloadConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ProcessingConfig holds the batch and gating settings of a run
type ProcessingConfig struct {
	LastMeetings               int `yaml:"last_meetings" json:"last_meetings"`
	LookbackDays               int `yaml:"lookback_days" json:"lookback_days"`
	MinVideoLengthSeconds      int `yaml:"min_video_length_seconds" json:"min_video_length_seconds"`
	RetentionDays              int `yaml:"retention_days" json:"retention_days"`
	ErrorNotificationThreshold int `yaml:"error_notification_threshold" json:"error_notification_threshold"`
}

// Retention returns the retention horizon as a time.Duration
func (p ProcessingConfig) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// Lookback returns the listing window as a time.Duration
func (p ProcessingConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackDays) * 24 * time.Hour
}

// LedgerConfig selects the ledger backend
type LedgerConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	Console    bool   `yaml:"console" json:"console"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
}

// ScheduleConfig holds the daemon schedule
type ScheduleConfig struct {
	Cron string `yaml:"cron" json:"cron"`
}

// Config represents the complete application configuration
type Config struct {
	Zoom       ZoomConfig       `yaml:"zoom" json:"zoom"`
	YouTube    YouTubeConfig    `yaml:"youtube" json:"youtube"`
	Discord    DiscordConfig    `yaml:"discord" json:"discord"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Processing ProcessingConfig `yaml:"processing" json:"processing"`
	Ledger     LedgerConfig     `yaml:"ledger" json:"ledger"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Schedule   ScheduleConfig   `yaml:"schedule" json:"schedule"`
}

// LoadConfig loads configuration from an optional YAML file and a .env file,
// applies defaults and environment variable overrides, then validates
func LoadConfig(configPath string) (*Config, error) {
	config, err := loadUnvalidated(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadLenient loads configuration like LoadConfig but skips credential
// validation, for commands that only read local state
func LoadLenient(configPath string) (*Config, error) {
	return loadUnvalidated(configPath)
}

func loadUnvalidated(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.setDefaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := config.loadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// The ledger file name depends on a driver that may come from the environment
	if config.Ledger.Path == "" {
		if config.Ledger.Driver == LedgerDriverSQLite {
			config.Ledger.Path = "./processed_recordings.db"
		} else {
			config.Ledger.Path = "./processed_recordings.csv"
		}
	}

	return config, nil
}

// loadDotEnv populates the process environment from a .env file when present.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// setDefaults applies default values for missing configuration
func (c *Config) setDefaults() {
	// Zoom defaults
	if c.Zoom.AuthMode == "" {
		c.Zoom.AuthMode = ZoomAuthServerToServer
	}
	if c.Zoom.UserID == "" {
		c.Zoom.UserID = "me"
	}
	if c.Zoom.BaseURL == "" {
		c.Zoom.BaseURL = "https://api.zoom.us/v2"
	}
	if c.Zoom.TokenURL == "" {
		c.Zoom.TokenURL = "https://zoom.us/oauth/token"
	}
	if c.Zoom.TokenFile == "" {
		c.Zoom.TokenFile = ".zoom_refresh_token"
	}
	if c.Zoom.RedirectURI == "" {
		c.Zoom.RedirectURI = "http://localhost:8080/redirect"
	}
	if c.Zoom.RequestsPerSecond == 0 {
		c.Zoom.RequestsPerSecond = 10
	}

	// YouTube defaults
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.YouTube.TokenURL == "" {
		c.YouTube.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.YouTube.RedirectURI == "" {
		c.YouTube.RedirectURI = "http://localhost:8080"
	}
	if c.YouTube.UploadURL == "" {
		c.YouTube.UploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	}
	if c.YouTube.Description == "" {
		c.YouTube.Description = "Uploaded via automation"
	}
	if len(c.YouTube.Tags) == 0 {
		c.YouTube.Tags = []string{"zoom", "meeting", "recording"}
	}
	if c.YouTube.CategoryID == "" {
		c.YouTube.CategoryID = "22"
	}
	if c.YouTube.PrivacyStatus == "" {
		c.YouTube.PrivacyStatus = "unlisted"
	}
	if c.YouTube.ChunkSizeMB == 0 {
		c.YouTube.ChunkSizeMB = 4
	}

	// Discord defaults
	if c.Discord.TimeoutSeconds == 0 {
		c.Discord.TimeoutSeconds = 10
	}

	// Download defaults
	if c.Download.OutputDir == "" {
		c.Download.OutputDir = "./downloaded_videos"
	}
	if c.Download.FolderTemplate == "" {
		c.Download.FolderTemplate = "{date} {time} - {topic}"
	}
	if c.Download.RetryAttempts == 0 {
		c.Download.RetryAttempts = 3
	}
	if c.Download.TimeoutSeconds == 0 {
		c.Download.TimeoutSeconds = 300
	}

	// Processing defaults
	if c.Processing.LastMeetings == 0 {
		c.Processing.LastMeetings = 3
	}
	if c.Processing.LookbackDays == 0 {
		c.Processing.LookbackDays = 365
	}
	if c.Processing.MinVideoLengthSeconds == 0 {
		c.Processing.MinVideoLengthSeconds = 60
	}
	if c.Processing.RetentionDays == 0 {
		c.Processing.RetentionDays = 10
	}
	if c.Processing.ErrorNotificationThreshold == 0 {
		c.Processing.ErrorNotificationThreshold = 3
	}

	// Ledger defaults
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = LedgerDriverCSV
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "./zoom_to_youtube.log"
	}
	// Console output is always on; the file writer is the one that can be redirected
	c.Logging.Console = true

	// Schedule defaults: every day at 06:00
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 0 6 * * *"
	}
}

// loadFromEnvironment overrides configuration with environment variables
func (c *Config) loadFromEnvironment() error {
	setString := func(name string, target *string) {
		if val := os.Getenv(name); val != "" {
			*target = val
		}
	}
	setInt := func(name string, target *int) error {
		val := os.Getenv(name)
		if val == "" {
			return nil
		}
		parsed, err := cast.ToIntE(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", name, err)
		}
		*target = parsed
		return nil
	}

	setString("ZOOM_AUTH_MODE", &c.Zoom.AuthMode)
	setString("ZOOM_ACCOUNT_ID", &c.Zoom.AccountID)
	setString("ZOOM_CLIENT_ID", &c.Zoom.ClientID)
	setString("ZOOM_CLIENT_SECRET", &c.Zoom.ClientSecret)
	setString("ZOOM_USER_ID", &c.Zoom.UserID)
	setString("ZOOM_BASE_URL", &c.Zoom.BaseURL)
	setString("ZOOM_REFRESH_TOKEN_FILE", &c.Zoom.TokenFile)
	setString("ZOOM_REDIRECT_URI", &c.Zoom.RedirectURI)
	if val := os.Getenv("ZOOM_REQUESTS_PER_SECOND"); val != "" {
		rps, err := cast.ToFloat64E(val)
		if err != nil {
			return fmt.Errorf("ZOOM_REQUESTS_PER_SECOND must be a number: %w", err)
		}
		c.Zoom.RequestsPerSecond = rps
	}

	setString("YOUTUBE_CLIENT_ID", &c.YouTube.ClientID)
	setString("YOUTUBE_CLIENT_SECRET", &c.YouTube.ClientSecret)
	setString("YOUTUBE_TOKEN_FILE", &c.YouTube.TokenFile)
	setString("YOUTUBE_DEFAULT_DESCRIPTION", &c.YouTube.Description)
	setString("YOUTUBE_CATEGORY_ID", &c.YouTube.CategoryID)
	setString("YOUTUBE_PRIVACY_STATUS", &c.YouTube.PrivacyStatus)
	if val := os.Getenv("YOUTUBE_DEFAULT_TAGS"); val != "" {
		c.YouTube.Tags = SplitTags(val)
	}

	setString("DISCORD_WEBHOOK_URL", &c.Discord.WebhookURL)
	setString("DISCORD_ERROR_WEBHOOK_URL", &c.Discord.ErrorWebhookURL)

	setString("DOWNLOAD_DIR", &c.Download.OutputDir)
	setString("FOLDER_NAME_TEMPLATE", &c.Download.FolderTemplate)

	for name, target := range map[string]*int{
		"LAST_MEETINGS_TO_PROCESS":     &c.Processing.LastMeetings,
		"LOOKBACK_DAYS":                &c.Processing.LookbackDays,
		"MIN_VIDEO_LENGTH_SECONDS":     &c.Processing.MinVideoLengthSeconds,
		"VIDEO_RETENTION_DAYS":         &c.Processing.RetentionDays,
		"ERROR_NOTIFICATION_THRESHOLD": &c.Processing.ErrorNotificationThreshold,
	} {
		if err := setInt(name, target); err != nil {
			return err
		}
	}

	setString("LEDGER_DRIVER", &c.Ledger.Driver)
	setString("CSV_TRACKER_PATH", &c.Ledger.Path)
	setString("LEDGER_PATH", &c.Ledger.Path)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)
	if val := os.Getenv("LOG_JSON"); val != "" {
		jsonFormat, err := cast.ToBoolE(val)
		if err != nil {
			return fmt.Errorf("LOG_JSON must be a boolean: %w", err)
		}
		c.Logging.JSONFormat = jsonFormat
	}

	setString("SCHEDULE", &c.Schedule.Cron)

	return nil
}

// SplitTags splits a comma separated tag list, dropping blanks
func SplitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	// Validate Zoom configuration
	switch c.Zoom.AuthMode {
	case ZoomAuthServerToServer:
		if c.Zoom.AccountID == "" {
			return fmt.Errorf("zoom.account_id is required for server_to_server auth")
		}
	case ZoomAuthRefreshToken:
		if c.Zoom.TokenFile == "" {
			return fmt.Errorf("zoom.token_file is required for refresh_token auth")
		}
	default:
		return fmt.Errorf("zoom.auth_mode must be one of: %s, %s", ZoomAuthServerToServer, ZoomAuthRefreshToken)
	}
	if c.Zoom.ClientID == "" {
		return fmt.Errorf("zoom.client_id is required")
	}
	if c.Zoom.ClientSecret == "" {
		return fmt.Errorf("zoom.client_secret is required")
	}

	// Validate YouTube configuration
	if c.YouTube.ClientID == "" {
		return fmt.Errorf("youtube.client_id is required")
	}
	if c.YouTube.ClientSecret == "" {
		return fmt.Errorf("youtube.client_secret is required")
	}
	validPrivacy := map[string]bool{"private": true, "unlisted": true, "public": true}
	if !validPrivacy[c.YouTube.PrivacyStatus] {
		return fmt.Errorf("youtube.privacy_status must be one of: private, unlisted, public")
	}

	// Validate Discord configuration
	if c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required")
	}

	// Validate download and processing configuration
	if c.Download.RetryAttempts < 0 {
		return fmt.Errorf("download.retry_attempts must be >= 0")
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be greater than 0")
	}
	if c.Processing.LastMeetings <= 0 {
		return fmt.Errorf("processing.last_meetings must be greater than 0")
	}
	if c.Processing.MinVideoLengthSeconds < 0 {
		return fmt.Errorf("processing.min_video_length_seconds must be >= 0")
	}
	if c.Processing.ErrorNotificationThreshold <= 0 {
		return fmt.Errorf("processing.error_notification_threshold must be greater than 0")
	}

	// Validate ledger configuration
	if c.Ledger.Driver != LedgerDriverCSV && c.Ledger.Driver != LedgerDriverSQLite {
		return fmt.Errorf("ledger.driver must be one of: csv, sqlite")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
