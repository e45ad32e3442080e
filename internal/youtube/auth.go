// Package youtube uploads videos through the YouTube Data API v3
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

const (
	// UploadScope is the only scope the uploader needs
	UploadScope = "https://www.googleapis.com/auth/youtube.upload"
	// AuthURL is Google's consent page
	AuthURL = "https://accounts.google.com/o/oauth2/auth"
)

// storedToken is the on-disk token format. It reads both the layout written
// by this tool and the authorized-user layout of Google's Python client
// ("token" instead of "access_token").
type storedToken struct {
	Token        string   `json:"token,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
	TokenType    string   `json:"token_type,omitempty"`
	RefreshToken string   `json:"refresh_token"`
	Expiry       string   `json:"expiry,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// OAuthConfig builds the OAuth2 client configuration for the upload scope
func OAuthConfig(cfg config.YouTubeConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{UploadScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

// LoadToken reads a token file. A missing file is an AuthError.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &errs.AuthError{
			Op:      "youtube token",
			Message: fmt.Sprintf("no token file at %s, run the auth command first", path),
		}
	}
	if err != nil {
		return nil, &errs.AuthError{Op: "youtube token", Message: "failed to read token file", Err: err}
	}

	var stored storedToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, &errs.AuthError{Op: "youtube token", Message: "failed to parse token file", Err: err}
	}

	token := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		TokenType:    stored.TokenType,
		RefreshToken: stored.RefreshToken,
	}
	if token.AccessToken == "" {
		token.AccessToken = stored.Token
	}
	if stored.Expiry != "" {
		for _, layout := range expiryLayouts {
			if t, err := time.Parse(layout, stored.Expiry); err == nil {
				token.Expiry = t
				break
			}
		}
	}

	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, &errs.AuthError{Op: "youtube token", Message: fmt.Sprintf("token file %s holds no credentials", path)}
	}
	return token, nil
}

// SaveToken writes a token file readable by LoadToken
func SaveToken(path string, token *oauth2.Token) error {
	stored := storedToken{
		Token:        token.AccessToken,
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Scopes:       []string{UploadScope},
	}
	if !token.Expiry.IsZero() {
		stored.Expiry = token.Expiry.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, path)
}

// persistingTokenSource refreshes through the OAuth2 endpoint and writes every
// new token back to the token file
type persistingTokenSource struct {
	base  oauth2.TokenSource
	path  string
	mu    sync.Mutex
	saved string
}

// NewTokenSource loads the token file and returns a source that refreshes
// and persists it
func NewTokenSource(cfg config.YouTubeConfig) (oauth2.TokenSource, error) {
	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	// The source lives for the whole run, independent of any request context
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})
	return &persistingTokenSource{
		base:  OAuthConfig(cfg).TokenSource(ctx, token),
		path:  cfg.TokenFile,
		saved: token.AccessToken,
	}, nil
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, tokenError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.saved {
		if err := SaveToken(s.path, token); err != nil {
			logging.Warn("Failed to persist refreshed YouTube token: %v", err)
		} else {
			logging.Debug("Refreshed YouTube token saved to %s", s.path)
			s.saved = token.AccessToken
		}
	}
	return token, nil
}

// tokenError maps a refresh failure. A rejected grant needs re-authorization,
// anything else may pass on a later run.
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return &errs.AuthError{
				Op:      "youtube token",
				Message: "refresh token expired or revoked, run the auth command to re-authorize",
				Err:     err,
			}
		}
	}
	if errs.IsAuth(err) {
		return err
	}
	return &errs.TransferError{Op: "youtube token", Message: "failed to refresh token", Err: err}
}

// AuthorizationURL returns the consent page that yields an offline code
func AuthorizationURL(cfg config.YouTubeConfig) string {
	return OAuthConfig(cfg).AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for a token and saves it
func ExchangeCode(ctx context.Context, cfg config.YouTubeConfig, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &errs.ValidationError{Op: "youtube auth", Message: "authorization code cannot be empty"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})
	token, err := OAuthConfig(cfg).Exchange(ctx, code)
	if err != nil {
		return &errs.AuthError{Op: "youtube auth", Message: "failed to exchange authorization code", Err: err}
	}
	if token.RefreshToken == "" {
		return &errs.AuthError{Op: "youtube auth", Message: "token response carried no refresh token"}
	}
	return SaveToken(cfg.TokenFile, token)
}
