// Package keycloak implements the SimFocus client's Keycloak OIDC
// integration.  Two mutually exclusive modes exist behind one Service
// contract:
//
//   - backend-proxy: the backend owns the whole OIDC handshake; the client
//     only redirects to the backend's login endpoint and later receives a
//     token on the /auth/success landing.
//   - frontend-direct: the client performs the authorization code flow
//     itself against the Keycloak realm.
//
// The mode is selected once, at construction, and is not switchable without
// building a new Service.
package keycloak

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Mode selects which of the two authentication flows a Service implements.
type Mode string

const (
	// ModeBackendProxy delegates the OIDC handshake to the backend.
	ModeBackendProxy Mode = "backend-proxy"

	// ModeFrontendDirect performs the OIDC handshake in the client.
	ModeFrontendDirect Mode = "frontend-direct"
)

// OnLoadPolicy controls what Init attempts in frontend-direct mode.
type OnLoadPolicy string

const (
	// OnLoadLoginRequired expects an authenticated session after Init; a
	// silent refresh is attempted and failure is reported to the caller.
	OnLoadLoginRequired OnLoadPolicy = "login-required"

	// OnLoadCheckSSO probes for an existing session without requiring one.
	OnLoadCheckSSO OnLoadPolicy = "check-sso"
)

// Backend proxy endpoints, relative to the API base URL.  These must stay in
// lockstep with the backend's Keycloak routes.
const (
	BackendLoginPath   = "/api/auth/keycloak/login"
	BackendRefreshPath = "/api/auth/keycloak/refresh"
	BackendLogoutPath  = "/api/auth/keycloak/logout"
	BackendProfilePath = "/auth/me"
)

// Client-side redirect targets.
const (
	// CallbackPath receives the provider redirect in frontend-direct mode.
	CallbackPath = "/auth/callback"

	// SuccessPath is where the backend lands the browser after a successful
	// proxied login, carrying the token in the query string.
	SuccessPath = "/auth/success"

	// LoginPath is the post-logout landing.
	LoginPath = "/login"
)

// DefaultTokenRefreshInterval is how often the auto-refresh timer fires.
const DefaultTokenRefreshInterval = 30 * time.Second

// Config is the environment-provided Keycloak integration configuration.
type Config struct {
	// ServerURL is the Keycloak server base URL.
	ServerURL string `env:"SIMFOCUS_KEYCLOAK_SERVER_URL" envDefault:"https://keycloak.plfai.cn/"`

	// Realm is the Keycloak realm.
	Realm string `env:"SIMFOCUS_KEYCLOAK_REALM" envDefault:"simfocus"`

	// ClientID is the relying party id.
	ClientID string `env:"SIMFOCUS_KEYCLOAK_CLIENT_ID" envDefault:"simfocus-frontend"`

	// ClientSecret is the relying party secret; empty for public clients.
	ClientSecret string `env:"SIMFOCUS_KEYCLOAK_CLIENT_SECRET"`

	// APIBaseURL is the SimFocus backend base URL.
	APIBaseURL string `env:"SIMFOCUS_API_BASE_URL" envDefault:"http://localhost:8000"`

	// Origin is the client's own origin, used to build redirect URIs.
	Origin string `env:"SIMFOCUS_ORIGIN" envDefault:"http://localhost:5173"`

	// Mode selects backend-proxy or frontend-direct.
	Mode Mode `env:"SIMFOCUS_AUTH_MODE" envDefault:"backend-proxy"`

	// Enabled reports whether the Keycloak integration is active at all.
	Enabled bool `env:"SIMFOCUS_KEYCLOAK_ENABLED" envDefault:"false"`

	// OnLoad is the Init policy for frontend-direct mode.
	OnLoad OnLoadPolicy `env:"SIMFOCUS_KEYCLOAK_ON_LOAD" envDefault:"login-required"`

	// Scopes are requested in addition to the mandatory "openid" scope.
	Scopes []string `env:"SIMFOCUS_KEYCLOAK_SCOPES" envSeparator:" " envDefault:"profile email"`

	// TokenRefreshInterval is the auto-refresh timer period.
	TokenRefreshInterval time.Duration `env:"SIMFOCUS_KEYCLOAK_REFRESH_INTERVAL" envDefault:"30s"`

	// ProviderCA is an optional CA cert PEM to trust when talking to the
	// Keycloak server and the backend.
	ProviderCA string `env:"SIMFOCUS_PROVIDER_CA"`
}

// ConfigFromEnv parses a Config from the process environment and validates
// it.
func ConfigFromEnv() (*Config, error) {
	const op = "keycloak.ConfigFromEnv"
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("%s: unable to parse environment: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Validate the Keycloak configuration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("%s: server URL is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := url.Parse(c.ServerURL); err != nil {
		return fmt.Errorf("%s: server URL %s is invalid: %w", op, c.ServerURL, err)
	}
	if c.Realm == "" {
		return fmt.Errorf("%s: realm is empty: %w", op, ErrInvalidParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("%s: API base URL is empty: %w", op, ErrInvalidParameter)
	}
	switch c.Mode {
	case ModeBackendProxy, ModeFrontendDirect:
	default:
		return fmt.Errorf("%s: unsupported auth mode %q: %w", op, c.Mode, ErrInvalidParameter)
	}
	switch c.OnLoad {
	case OnLoadLoginRequired, OnLoadCheckSSO:
	default:
		return fmt.Errorf("%s: unsupported onLoad policy %q: %w", op, c.OnLoad, ErrInvalidParameter)
	}
	if c.TokenRefreshInterval <= 0 {
		return fmt.Errorf("%s: refresh interval not greater than zero: %w", op, ErrInvalidParameter)
	}
	return nil
}

// Issuer is the realm's OIDC issuer URL, used for discovery.
func (c *Config) Issuer() string {
	return strings.TrimSuffix(c.ServerURL, "/") + "/realms/" + c.Realm
}

// RedirectURI is where the provider sends the browser back to in
// frontend-direct mode.
func (c *Config) RedirectURI() string {
	return strings.TrimSuffix(c.Origin, "/") + CallbackPath
}

// PostLogoutRedirectURI is where an RP-initiated logout lands.
func (c *Config) PostLogoutRedirectURI() string {
	return strings.TrimSuffix(c.Origin, "/") + LoginPath
}

// BackendLoginURL is the backend's proxied Keycloak login endpoint.
func (c *Config) BackendLoginURL() string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + BackendLoginPath
}

// BackendRefreshURL is the backend's proxied token refresh endpoint.
func (c *Config) BackendRefreshURL() string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + BackendRefreshPath
}

// BackendLogoutURL is the backend's proxied logout endpoint.
func (c *Config) BackendLogoutURL() string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + BackendLogoutPath
}

// BackendProfileURL is the backend's current-user endpoint.
func (c *Config) BackendProfileURL() string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + BackendProfilePath
}
