package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/service/provider"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Providers holds CLI flags for the calendar provider adapters. ICS feeds
// need no configuration; OAuth providers are enabled by supplying their
// client credentials.
type Providers struct {
	redirectURL string

	googleClientID     string
	googleClientSecret string
	googleBaseURL      string

	outlookClientID     string
	outlookClientSecret string
	outlookBaseURL      string
}

// Flags returns CLI flags for provider configuration
func (p *Providers) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "oauth-redirect-url",
			Usage:       "Redirect URL registered with the OAuth providers",
			Category:    "Providers",
			Sources:     cli.EnvVars("HEARTHSYNC_OAUTH_REDIRECT_URL"),
			Destination: &p.redirectURL,
		},
		&cli.StringFlag{
			Name:        "google-client-id",
			Usage:       "Google OAuth client ID (enables the Google Calendar provider)",
			Category:    "Providers",
			Sources:     cli.EnvVars("HEARTHSYNC_GOOGLE_CLIENT_ID"),
			Destination: &p.googleClientID,
		},
		&cli.StringFlag{
			Name:        "google-client-secret",
			Usage:       "Google OAuth client secret",
			Category:    "Providers",
			Sources:     cli.EnvVars("HEARTHSYNC_GOOGLE_CLIENT_SECRET"),
			Destination: &p.googleClientSecret,
		},
		&cli.StringFlag{
			Name:        "google-api-base-url",
			Usage:       "Google Calendar API base URL",
			Category:    "Providers",
			Value:       "https://www.googleapis.com/calendar/v3",
			Sources:     cli.EnvVars("HEARTHSYNC_GOOGLE_API_BASE_URL"),
			Destination: &p.googleBaseURL,
		},
		&cli.StringFlag{
			Name:        "outlook-client-id",
			Usage:       "Microsoft OAuth client ID (enables the Outlook Calendar provider)",
			Category:    "Providers",
			Sources:     cli.EnvVars("HEARTHSYNC_OUTLOOK_CLIENT_ID"),
			Destination: &p.outlookClientID,
		},
		&cli.StringFlag{
			Name:        "outlook-client-secret",
			Usage:       "Microsoft OAuth client secret",
			Category:    "Providers",
			Sources:     cli.EnvVars("HEARTHSYNC_OUTLOOK_CLIENT_SECRET"),
			Destination: &p.outlookClientSecret,
		},
		&cli.StringFlag{
			Name:        "outlook-api-base-url",
			Usage:       "Microsoft Graph API base URL",
			Category:    "Providers",
			Value:       "https://graph.microsoft.com/v1.0/me",
			Sources:     cli.EnvVars("HEARTHSYNC_OUTLOOK_API_BASE_URL"),
			Destination: &p.outlookBaseURL,
		},
	}
}

// Configure builds the provider registry. The ICS adapter is always
// registered; OAuth adapters are registered when their credentials are set.
func (p *Providers) Configure() (*provider.Registry, error) {
	registry := provider.NewRegistry()
	registry.Register(types.ProviderICS, provider.NewICS())

	if p.googleClientID != "" {
		if p.googleClientSecret == "" {
			return nil, goerr.New("google-client-secret is required when google-client-id is set")
		}
		cfg := &oauth2.Config{
			ClientID:     p.googleClientID,
			ClientSecret: p.googleClientSecret,
			RedirectURL:  p.redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		}
		registry.Register(types.ProviderGoogleCalendar,
			provider.NewOAuthCalendar(types.ProviderGoogleCalendar, cfg, p.googleBaseURL))
		logging.Default().Info("Google Calendar provider enabled")
	}

	if p.outlookClientID != "" {
		if p.outlookClientSecret == "" {
			return nil, goerr.New("outlook-client-secret is required when outlook-client-id is set")
		}
		cfg := &oauth2.Config{
			ClientID:     p.outlookClientID,
			ClientSecret: p.outlookClientSecret,
			RedirectURL:  p.redirectURL,
			Endpoint:     endpoints.Microsoft,
			Scopes:       []string{"Calendars.Read", "offline_access"},
		}
		registry.Register(types.ProviderOutlookCalendar,
			provider.NewOAuthCalendar(types.ProviderOutlookCalendar, cfg, p.outlookBaseURL))
		logging.Default().Info("Outlook Calendar provider enabled")
	}

	return registry, nil
}
