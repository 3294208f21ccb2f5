package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"taskhub/internal/model"
)

// TokenRefresher exchanges a refresh token for a fresh credential.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error)
}

// OAuthClient is the client registration for one provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// OAuthSettings collects the registrations known to the process. Providers
// without a client id are not refreshable.
type OAuthSettings struct {
	CanvasBaseURL    string
	Canvas           OAuthClient
	MicrosoftTenant  string
	Microsoft        OAuthClient
	Google           OAuthClient
	Handshake        OAuthClient
	HandshakeBaseURL string
}

// OAuthRefresher refreshes credentials through each provider's token
// endpoint.
type OAuthRefresher struct {
	configs    map[model.Source]*oauth2.Config
	httpClient *http.Client
}

// NewOAuthRefresher returns nil when no provider is configured.
func NewOAuthRefresher(settings OAuthSettings, httpClient *http.Client) *OAuthRefresher {
	configs := make(map[model.Source]*oauth2.Config)

	if settings.Canvas.ClientID != "" {
		base := strings.TrimRight(settings.CanvasBaseURL, "/")
		if base == "" {
			base = "https://canvas.instructure.com"
		}
		configs[model.SourceCanvas] = newOAuthConfig(settings.Canvas, oauth2.Endpoint{
			AuthURL:  base + "/login/oauth2/auth",
			TokenURL: base + "/login/oauth2/token",
		})
	}
	if settings.Microsoft.ClientID != "" {
		tenant := settings.MicrosoftTenant
		if tenant == "" {
			tenant = "common"
		}
		configs[model.SourceOutlook] = newOAuthConfig(settings.Microsoft, microsoft.AzureADEndpoint(tenant))
	}
	if settings.Google.ClientID != "" {
		configs[model.SourceGoogleCalendar] = newOAuthConfig(settings.Google, google.Endpoint)
	}
	if settings.Handshake.ClientID != "" {
		base := strings.TrimRight(settings.HandshakeBaseURL, "/")
		if base == "" {
			base = "https://api.joinhandshake.com"
		}
		configs[model.SourceHandshake] = newOAuthConfig(settings.Handshake, oauth2.Endpoint{
			AuthURL:  base + "/oauth/authorize",
			TokenURL: base + "/oauth/token",
		})
	}

	if len(configs) == 0 {
		return nil
	}
	return &OAuthRefresher{configs: configs, httpClient: httpClient}
}

func newOAuthConfig(client OAuthClient, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     endpoint,
	}
}

// Supports reports whether refresh is configured for source.
func (r *OAuthRefresher) Supports(source model.Source) bool {
	if r == nil {
		return false
	}
	_, ok := r.configs[source]
	return ok
}

func (r *OAuthRefresher) Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	cfg, ok := r.configs[cred.Source]
	if !ok {
		return nil, fmt.Errorf("no oauth client configured for %s", cred.Source)
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%s credential has no refresh token", cred.Source)
	}
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// An already expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: cred.RefreshToken, Expiry: time.Unix(1, 0)}
	tok, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", cred.Source, err)
	}

	refreshed := cred
	refreshed.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	refreshed.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		refreshed.ExpiresAt = model.TimePtr(tok.Expiry)
	}
	return &refreshed, nil
}
