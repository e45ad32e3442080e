package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
)

// DefaultPageSize is the page size requested from the recordings endpoint
const DefaultPageSize = 30

// ListRecordingsParams holds parameters for listing recordings
type ListRecordingsParams struct {
	From          time.Time
	To            time.Time
	PageSize      int
	NextPageToken string
}

// Client lists cloud recordings of a single Zoom user
type Client struct {
	httpClient *AuthenticatedRetryClient
	baseURL    string
	userID     string
}

// NewClient creates a new Zoom API client
func NewClient(httpClient *AuthenticatedRetryClient, baseURL, userID string) *Client {
	if userID == "" {
		userID = "me"
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userID:     userID,
	}
}

// NewClientFromConfig wires the authenticator, retry client and Zoom client
func NewClientFromConfig(cfg *config.Config) (*Client, Authenticator, error) {
	auth, err := NewAuthenticator(cfg.Zoom)
	if err != nil {
		return nil, nil, err
	}
	retryClient := NewRetryHTTPClient(HTTPClientConfigFromConfig(cfg))
	authClient := NewAuthenticatedRetryClient(retryClient, auth)
	return NewClient(authClient, cfg.Zoom.BaseURL, cfg.Zoom.UserID), auth, nil
}

// ListUserRecordings retrieves one page of cloud recordings
func (c *Client) ListUserRecordings(ctx context.Context, params ListRecordingsParams) (*ListRecordingsResponse, error) {
	endpoint := fmt.Sprintf("%s/users/%s/recordings", c.baseURL, url.PathEscape(c.userID))

	query := url.Values{}
	if !params.From.IsZero() {
		query.Set("from", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		query.Set("to", params.To.Format("2006-01-02"))
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	query.Set("page_size", strconv.Itoa(pageSize))
	if params.NextPageToken != "" {
		query.Set("next_page_token", params.NextPageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ListRecordingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// ListItems returns up to limit recorded meetings between from and to, in
// the order Zoom returns them. A limit <= 0 returns every meeting. Meetings
// that cannot be mapped to an item are logged and skipped.
func (c *Client) ListItems(ctx context.Context, limit int, from, to time.Time) ([]source.Item, error) {
	var items []source.Item
	params := ListRecordingsParams{From: from, To: to, PageSize: DefaultPageSize}

	for page := 1; ; page++ {
		response, err := c.ListUserRecordings(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list recordings (page %d): %w", page, err)
		}
		logging.DebugWithContext(ctx, "Found %d recordings in page %d", len(response.Meetings), page)

		for _, meeting := range response.Meetings {
			item, err := ToItem(meeting)
			if err != nil {
				logging.WarnWithContext(ctx, "Skipping meeting: %v", err)
				continue
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
		}

		if response.NextPageToken == "" {
			return items, nil
		}
		params.NextPageToken = response.NextPageToken
	}
}
