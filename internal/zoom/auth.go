// Package zoom lists and downloads cloud recordings from the Zoom API
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
)

// AuthorizeURL is where users grant the refresh_token app access
const AuthorizeURL = "https://zoom.us/oauth/authorize"

// AccessToken represents an OAuth access token with metadata
type AccessToken struct {
	AccessToken string
	TokenType   string
	Scopes      []string
	ExpiresAt   time.Time
}

// IsExpired returns true if the token is expired or will expire within the buffer time
func (t *AccessToken) IsExpired(buffer time.Duration) bool {
	return time.Now().Add(buffer).After(t.ExpiresAt)
}

// Header returns the Authorization header value
func (t *AccessToken) Header() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + t.AccessToken
}

// tokenResponse represents the response from the OAuth token endpoint
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Authenticator provides access tokens for Zoom API calls
type Authenticator interface {
	GetAccessToken(ctx context.Context) (*AccessToken, error)
}

// NewAuthenticator creates the authenticator selected by cfg.AuthMode
func NewAuthenticator(cfg config.ZoomConfig) (Authenticator, error) {
	switch cfg.AuthMode {
	case config.ZoomAuthServerToServer, "":
		return NewServerToServerAuth(cfg), nil
	case config.ZoomAuthRefreshToken:
		return NewRefreshTokenAuth(cfg), nil
	default:
		return nil, fmt.Errorf("unknown zoom auth mode: %s", cfg.AuthMode)
	}
}

// ServerToServerAuth implements Server-to-Server OAuth authentication for Zoom
type ServerToServerAuth struct {
	config      config.ZoomConfig
	client      *http.Client
	cachedToken *AccessToken
	mu          sync.Mutex
}

// NewServerToServerAuth creates a new Server-to-Server OAuth authenticator
func NewServerToServerAuth(cfg config.ZoomConfig) *ServerToServerAuth {
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://zoom.us/oauth/token"
	}
	return &ServerToServerAuth{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccessToken returns the cached token or requests a new one
func (s *ServerToServerAuth) GetAccessToken(ctx context.Context) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedToken != nil && !s.cachedToken.IsExpired(5*time.Minute) {
		return s.cachedToken, nil
	}

	jwtToken, err := s.generateJWT()
	if err != nil {
		return nil, &errs.AuthError{Op: "zoom token", Message: "failed to generate JWT token", Err: err}
	}

	data := url.Values{}
	data.Set("grant_type", "account_credentials")
	data.Set("account_id", s.config.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &errs.AuthError{Op: "zoom token", Message: "failed to create OAuth request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+jwtToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &errs.AuthError{Op: "zoom token", Message: "failed to get access token", Err: err}
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &errs.AuthError{Op: "zoom token", Message: "failed to parse token response", Err: err}
	}

	if body.Error != "" {
		return nil, &errs.AuthError{Op: "zoom token", Message: fmt.Sprintf("%s: %s", body.Error, body.Reason)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.AuthError{Op: "zoom token", Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body.Reason)}
	}

	token := &AccessToken{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		ExpiresAt:   time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if body.Scope != "" {
		token.Scopes = strings.Fields(body.Scope)
	}

	s.cachedToken = token
	return token, nil
}

// generateJWT signs the client assertion sent with the token request
func (s *ServerToServerAuth) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      s.config.ClientID,
		"exp":      now.Add(time.Hour).Unix(),
		"iat":      now.Unix(),
		"aud":      "zoom",
		"appKey":   s.config.ClientID,
		"tokenExp": now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.ClientSecret))
}

// RefreshTokenAuth authenticates a user-level OAuth app with a stored
// refresh token. Zoom rotates refresh tokens, so every new one is written
// back to the token file.
type RefreshTokenAuth struct {
	oauth       *oauth2.Config
	tokenFile   string
	client      *http.Client
	source      oauth2.TokenSource
	lastRefresh string
	mu          sync.Mutex
}

// NewRefreshTokenAuth creates a refresh token authenticator
func NewRefreshTokenAuth(cfg config.ZoomConfig) *RefreshTokenAuth {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://zoom.us/oauth/token"
	}

	return &RefreshTokenAuth{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthorizeURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		tokenFile: cfg.TokenFile,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccessToken returns a valid access token, refreshing it when needed
func (a *RefreshTokenAuth) GetAccessToken(ctx context.Context) (*AccessToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.source == nil {
		refresh, err := a.readRefreshToken()
		if err != nil {
			return nil, err
		}
		// The token source outlives ctx, so it gets its own context
		oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, a.client)
		a.source = a.oauth.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: refresh})
		a.lastRefresh = refresh
	}

	token, err := a.source.Token()
	if err != nil {
		a.source = nil
		return nil, &errs.AuthError{
			Op:      "zoom token",
			Message: "refresh token rejected, run the auth command to re-authorize",
			Err:     err,
		}
	}

	if token.RefreshToken != "" && token.RefreshToken != a.lastRefresh {
		if err := a.writeRefreshToken(token.RefreshToken); err != nil {
			return nil, err
		}
		a.lastRefresh = token.RefreshToken
	}

	return &AccessToken{
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		ExpiresAt:   token.Expiry,
	}, nil
}

// AuthorizationURL returns the page where the user grants access
func (a *RefreshTokenAuth) AuthorizationURL() string {
	return a.oauth.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for tokens and stores the refresh token
func (a *RefreshTokenAuth) ExchangeCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return &errs.ValidationError{Op: "zoom auth", Message: "authorization code cannot be empty"}
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.oauth.Exchange(oauthCtx, strings.TrimSpace(code))
	if err != nil {
		return &errs.AuthError{Op: "zoom auth", Message: "failed to exchange authorization code", Err: err}
	}
	if token.RefreshToken == "" {
		return &errs.AuthError{Op: "zoom auth", Message: "token response carried no refresh token"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.source = nil
	a.lastRefresh = token.RefreshToken
	return a.writeRefreshToken(token.RefreshToken)
}

func (a *RefreshTokenAuth) readRefreshToken() (string, error) {
	data, err := os.ReadFile(a.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", &errs.AuthError{
			Op:      "zoom token",
			Message: fmt.Sprintf("no refresh token at %s, run the auth command first", a.tokenFile),
		}
	}
	if err != nil {
		return "", &errs.AuthError{Op: "zoom token", Message: "failed to read refresh token", Err: err}
	}

	refresh := strings.TrimSpace(string(data))
	if refresh == "" {
		return "", &errs.AuthError{Op: "zoom token", Message: fmt.Sprintf("refresh token file %s is empty", a.tokenFile)}
	}
	return refresh, nil
}

func (a *RefreshTokenAuth) writeRefreshToken(refresh string) error {
	if dir := filepath.Dir(a.tokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(a.tokenFile, []byte(refresh), 0600); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}
