package keycloak

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
)

// Service is the identity provider adapter contract shared by both auth
// modes.  A Service moves one way from uninitialized to initialized; calling
// Init again returns the first result.
type Service interface {
	// Init prepares the service for its mode.  In backend-proxy mode this
	// is bookkeeping only.  In frontend-direct mode it performs issuer
	// discovery and, per the onLoad policy, attempts silent authentication.
	// Failures are reported through the returned bool, never propagated;
	// callers must check it.
	Init(ctx context.Context) bool

	// Login starts the interactive flow for the mode.  It returns once the
	// redirect is dispatched; completion happens out-of-process via a later
	// callback.
	Login(ctx context.Context) error

	// Logout stops the auto-refresh timer first, then performs mode
	// specific teardown and clears local credential state.
	Logout(ctx context.Context) error

	// UpdateToken refreshes the access token if it is not valid for at
	// least minValidity more.  It reports success; it never propagates an
	// error.
	UpdateToken(ctx context.Context, minValidity time.Duration) bool

	// HandleBackendCallbackSuccess accepts the token delivered on the
	// /auth/success landing, persists it, and fetches the profile in the
	// background.
	HandleBackendCallbackSuccess(ctx context.Context, token string)

	// Authenticated reports whether the service currently holds a session.
	Authenticated() bool

	// Token returns the current access token, or "".
	Token() string

	// UserProfile returns the last fetched profile, or nil.
	UserProfile() api.Profile

	// Mode returns the service's auth mode.
	Mode() Mode

	// Done releases background resources (the auto-refresh timer).  It must
	// be called for every Service created.
	Done()
}

// NewService selects the Service implementation for cfg.Mode.  Supported
// options: WithLogger, WithHTTPClient, WithNavigator.
func NewService(cfg *Config, creds credstore.Store, opt ...Option) (Service, error) {
	const op = "keycloak.NewService"
	if cfg == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if creds == nil {
		return nil, fmt.Errorf("%s: credential store is nil: %w", op, ErrNilParameter)
	}
	opts := getSvcOpts(opt...)

	httpClient := opts.withHTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = newHTTPClient(cfg.ProviderCA)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}

	var svc Service
	var base *serviceBase
	switch cfg.Mode {
	case ModeFrontendDirect:
		s := &frontendDirectService{}
		base = &s.serviceBase
		svc = s
	default:
		s := &backendProxyService{}
		base = &s.serviceBase
		svc = s
	}
	base.cfg = cfg
	base.creds = creds
	base.navigator = opts.withNavigator
	base.httpClient = httpClient
	base.logger = opts.withLogger
	base.refresher = newRefresher(cfg.TokenRefreshInterval)
	return svc, nil
}

// newHTTPClient creates the http client used for direct calls to the
// Keycloak server and the backend's proxy endpoints, trusting the optional
// CA PEM.  These calls deliberately bypass api.Client so that an expired
// token during refresh cannot trigger the 401 forced-login path.
func newHTTPClient(caPEM string) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()
	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, api.ErrInvalidCACert
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: certPool}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   api.DefaultTimeout,
	}, nil
}
