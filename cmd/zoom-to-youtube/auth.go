package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/youtube"
	"github.com/curtbushko/zoom-to-youtube/internal/zoom"
)

// createAuthCommand creates the auth subcommand. Authorization happens in the
// browser; these commands print the URL and store the token for a code.
func createAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Zoom or YouTube",
	}
	cmd.AddCommand(createZoomAuthCommand())
	cmd.AddCommand(createYouTubeAuthCommand())
	return cmd
}

func createZoomAuthCommand() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "zoom",
		Short: "Store a Zoom refresh token (refresh_token auth mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLenient(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.Zoom.AuthMode != config.ZoomAuthRefreshToken {
				cmd.Printf("Zoom uses %s auth; no authorization step is needed.\n", cfg.Zoom.AuthMode)
				return nil
			}
			if cfg.Zoom.ClientID == "" || cfg.Zoom.ClientSecret == "" {
				return fmt.Errorf("zoom.client_id and zoom.client_secret are required")
			}

			auth := zoom.NewRefreshTokenAuth(cfg.Zoom)
			if code == "" {
				cmd.Printf("1. Open this URL and approve access:\n\n   %s\n\n", auth.AuthorizationURL())
				cmd.Printf("2. Copy the 'code' parameter from the page you are redirected to (%s)\n", cfg.Zoom.RedirectURI)
				cmd.Printf("3. Run: zoom-to-youtube auth zoom --code <code>\n")
				return nil
			}

			if err := auth.ExchangeCode(cmd.Context(), code); err != nil {
				return err
			}
			cmd.Printf("✅ Zoom refresh token saved to %s\n", cfg.Zoom.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code from the redirect URL")
	return cmd
}

func createYouTubeAuthCommand() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "youtube",
		Short: "Create the YouTube token file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLenient(resolveConfigPath())
			if err != nil {
				return err
			}
			if cfg.YouTube.ClientID == "" || cfg.YouTube.ClientSecret == "" {
				return fmt.Errorf("youtube.client_id and youtube.client_secret are required")
			}

			if code == "" {
				cmd.Printf("1. Open this URL and approve the YouTube upload scope:\n\n   %s\n\n", youtube.AuthorizationURL(cfg.YouTube))
				cmd.Printf("2. Copy the 'code' parameter from the page you are redirected to (%s)\n", cfg.YouTube.RedirectURI)
				cmd.Printf("3. Run: zoom-to-youtube auth youtube --code <code>\n")
				return nil
			}

			if err := youtube.ExchangeCode(cmd.Context(), cfg.YouTube, code); err != nil {
				return err
			}
			cmd.Printf("✅ YouTube token saved to %s\n", cfg.YouTube.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code from the redirect URL")
	return cmd
}
