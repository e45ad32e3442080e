// Package discord posts video links and error alerts to Discord webhooks
package discord

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// MaxContentLength is the longest message Discord accepts
const MaxContentLength = 2000

type message struct {
	Content string `json:"content"`
}

// Client posts messages to the configured webhooks
type Client struct {
	http            *resty.Client
	webhookURL      string
	errorWebhookURL string
}

// NewClient creates a webhook client. Alerts go to the error webhook, or to
// the main webhook when no error webhook is configured.
func NewClient(cfg config.DiscordConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		})

	errorWebhook := cfg.ErrorWebhookURL
	if errorWebhook == "" {
		errorWebhook = cfg.WebhookURL
	}

	return &Client{
		http:            r,
		webhookURL:      cfg.WebhookURL,
		errorWebhookURL: errorWebhook,
	}
}

// Notify posts the video URL to the main webhook
func (c *Client) Notify(ctx context.Context, url string) (bool, error) {
	ok, err := c.post(ctx, "notify", c.webhookURL, url)
	if ok {
		logging.InfoWithContext(ctx, "Discord notification sent: %s", url)
	}
	return ok, err
}

// Alert posts a bold message followed by details to the error webhook
func (c *Client) Alert(ctx context.Context, msg, details string) (bool, error) {
	content := "**" + msg + "**"
	if details != "" {
		content += "\n" + details
	}
	return c.post(ctx, "alert", c.errorWebhookURL, content)
}

func (c *Client) post(ctx context.Context, op, webhook, content string) (bool, error) {
	if webhook == "" {
		return false, &errs.NotificationError{Op: op, Message: "discord webhook is not configured"}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(message{Content: truncate(content, MaxContentLength)}).
		Post(webhook)
	if err != nil {
		return false, &errs.NotificationError{Op: op, Message: "discord webhook request failed", Err: err}
	}

	if !resp.IsSuccess() {
		return false, &errs.NotificationError{
			Op:         op,
			Message:    fmt.Sprintf("discord webhook returned %s", resp.Status()),
			StatusCode: resp.StatusCode(),
		}
	}
	return true, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
