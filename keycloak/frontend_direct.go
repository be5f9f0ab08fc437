package keycloak

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
)

// frontendDirectService performs the OIDC authorization code flow itself
// against the Keycloak realm: discovery at Init, an interactive redirect at
// Login, code exchange on the /auth/callback landing, and refresh grants for
// token renewal.
type frontendDirectService struct {
	serviceBase

	provider *oidc.Provider
	oauthCfg *oauth2.Config
	verifier *oidc.IDTokenVerifier

	// pending is the in-flight login attempt; exactly one can be pending.
	pending *loginAttempt

	idToken string
}

var _ Service = (*frontendDirectService)(nil)

// loginAttempt ties one interactive login to its callback.  The state is
// echoed by the provider; the nonce is bound into the id_token.  They must
// differ.
type loginAttempt struct {
	state string
	nonce string
}

// Mode implements Service.Mode.
func (s *frontendDirectService) Mode() Mode {
	return ModeFrontendDirect
}

// Init implements Service.Init.  It discovers the realm's issuer, then
// attempts silent authentication with the persisted refresh token.  Under
// the login-required policy a failed silent attempt also dispatches the
// interactive login redirect.  Any failure still marks the service
// initialized and reports false.
func (s *frontendDirectService) Init(ctx context.Context) bool {
	s.mu.Lock()
	if s.initialized {
		defer s.mu.Unlock()
		return s.initResult
	}
	s.initialized = true
	s.mu.Unlock()

	authenticated := s.initFrontendDirect(ctx)

	s.mu.Lock()
	s.initResult = authenticated
	s.mu.Unlock()

	if !authenticated && s.cfg.OnLoad == OnLoadLoginRequired && s.provider != nil {
		if err := s.Login(ctx); err != nil {
			s.logger.Error("unable to dispatch login redirect", "error", err)
		}
	}
	return authenticated
}

func (s *frontendDirectService) initFrontendDirect(ctx context.Context) bool {
	clientCtx := oidc.ClientContext(ctx, s.httpClient)

	provider, err := oidc.NewProvider(clientCtx, s.cfg.Issuer())
	if err != nil {
		s.logger.Error("keycloak discovery failed", "issuer", s.cfg.Issuer(), "error", err)
		return false
	}
	s.provider = provider
	s.oauthCfg = &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		RedirectURL:  s.cfg.RedirectURI(),
		Endpoint:     provider.Endpoint(),
		Scopes:       append([]string{oidc.ScopeOpenID}, s.cfg.Scopes...),
	}
	s.verifier = provider.Verifier(&oidc.Config{ClientID: s.cfg.ClientID})

	// silent authentication: a refresh grant with the persisted refresh
	// token stands in for the browser's SSO cookie check
	refreshToken, ok := s.creds.Get(credstore.KeyRefreshToken)
	if !ok || refreshToken == "" {
		return false
	}
	tok, err := s.refreshGrant(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("silent authentication failed", "error", err)
		return false
	}

	s.adoptToken(ctx, tok)
	return true
}

// Login implements Service.Login.  It generates a state and nonce for the
// attempt, then navigates to the provider's authorization URL.  Completion
// happens later, out-of-process, via HandleRedirectCallback.
func (s *frontendDirectService) Login(_ context.Context) error {
	const op = "frontendDirectService.Login"
	if s.oauthCfg == nil {
		s.logger.Error("keycloak client not initialized")
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	state, err := NewID("st")
	if err != nil {
		return fmt.Errorf("%s: unable to generate state: %w", op, err)
	}
	nonce, err := NewID("n")
	if err != nil {
		return fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}

	s.mu.Lock()
	s.pending = &loginAttempt{state: state, nonce: nonce}
	s.mu.Unlock()

	s.navigator.NavigateTo(s.oauthCfg.AuthCodeURL(state, oidc.Nonce(nonce)))
	return nil
}

// HandleRedirectCallback completes an interactive login.  The /auth/callback
// landing calls it with the state and code query parameters the provider
// sent back.  The state must match the pending attempt and the id_token's
// nonce must match the attempt's nonce.
func (s *frontendDirectService) HandleRedirectCallback(ctx context.Context, state, code string) error {
	const op = "frontendDirectService.HandleRedirectCallback"
	if s.oauthCfg == nil {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("%s: %w", op, ErrNoPendingLogin)
	}
	if state != pending.state {
		return fmt.Errorf("%s: %w", op, ErrInvalidCallbackState)
	}

	clientCtx := oidc.ClientContext(ctx, s.httpClient)
	tok, err := s.oauthCfg.Exchange(clientCtx, code)
	if err != nil {
		return fmt.Errorf("%s: unable to exchange auth code: %w", op, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrMissingIDToken)
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	if idToken.Nonce != pending.nonce {
		return fmt.Errorf("%s: %w", op, ErrInvalidNonce)
	}

	s.mu.Lock()
	s.pending = nil
	s.idToken = rawIDToken
	s.mu.Unlock()

	s.adoptToken(ctx, tok)
	return nil
}

// HandleBackendCallbackSuccess implements Service.HandleBackendCallbackSuccess.
// The profile fetch is fire-and-forget; failure leaves the profile nil.
func (s *frontendDirectService) HandleBackendCallbackSuccess(ctx context.Context, token string) {
	s.setTokens(token, "")

	go func() {
		if err := s.fetchProfile(ctx, token); err != nil {
			s.logger.Error("unable to fetch user profile", "error", err)
		}
	}()

	s.refresher.start(func() bool {
		return s.UpdateToken(context.Background(), 0)
	})
}

// UpdateToken implements Service.UpdateToken with a refresh grant.  While
// the access token is still valid beyond minValidity no network call is
// made.  Failure demotes the session and returns false; it never propagates.
func (s *frontendDirectService) UpdateToken(ctx context.Context, minValidity time.Duration) bool {
	if s.oauthCfg == nil {
		s.logger.Error("keycloak client not initialized")
		return false
	}
	if s.tokenValidFor(minValidity) {
		return true
	}

	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()
	if refreshToken == "" {
		if v, ok := s.creds.Get(credstore.KeyRefreshToken); ok {
			refreshToken = v
		}
	}
	if refreshToken == "" {
		s.demote()
		return false
	}

	tok, err := s.refreshGrant(ctx, refreshToken)
	if err != nil {
		s.logger.Error("token refresh failed", "error", err)
		s.demote()
		return false
	}
	s.setTokens(tok.AccessToken, tok.RefreshToken)
	return true
}

// Logout implements Service.Logout.  It stops the refresh timer, navigates
// to the provider's RP-initiated logout endpoint, and clears local
// credential state.
func (s *frontendDirectService) Logout(_ context.Context) error {
	s.refresher.stop()

	if s.provider != nil {
		s.navigator.NavigateTo(s.endSessionURL())
	}

	s.clearLocalAuth()
	s.mu.Lock()
	s.idToken = ""
	s.mu.Unlock()
	return nil
}

// adoptToken captures a freshly issued token pair, persists the access
// token, loads the user profile, and starts auto-refresh.
func (s *frontendDirectService) adoptToken(ctx context.Context, tok *oauth2.Token) {
	s.setTokens(tok.AccessToken, tok.RefreshToken)

	if err := s.loadUserProfile(ctx, tok); err != nil {
		s.logger.Error("unable to load user profile", "error", err)
	}

	s.refresher.start(func() bool {
		return s.UpdateToken(context.Background(), s.cfg.TokenRefreshInterval)
	})
}

// loadUserProfile fetches UserInfo claims from the provider.
func (s *frontendDirectService) loadUserProfile(ctx context.Context, tok *oauth2.Token) error {
	const op = "frontendDirectService.loadUserProfile"
	clientCtx := oidc.ClientContext(ctx, s.httpClient)
	userinfo, err := s.provider.UserInfo(clientCtx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("%s: userinfo request failed: %w", op, ErrUserInfoFailed)
	}
	var profile api.Profile
	if err := userinfo.Claims(&profile); err != nil {
		return fmt.Errorf("%s: unable to decode userinfo claims: %w", op, err)
	}
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	return nil
}

// refreshGrant redeems refreshToken for a new token pair.
func (s *frontendDirectService) refreshGrant(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	const op = "frontendDirectService.refreshGrant"
	clientCtx := oidc.ClientContext(ctx, s.httpClient)
	ts := s.oauthCfg.TokenSource(clientCtx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: refresh grant failed: %w", op, err)
	}
	return tok, nil
}

// tokenValidFor reports whether the current access token's exp claim is at
// least minValidity away.  The claim is read without signature verification;
// only the provider's word on expiry is needed here, not authenticity.
func (s *frontendDirectService) tokenValidFor(minValidity time.Duration) bool {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(time.Now().Add(minValidity))
}

// endSessionURL builds the realm's RP-initiated logout URL.
func (s *frontendDirectService) endSessionURL() string {
	q := url.Values{}
	q.Set("client_id", s.cfg.ClientID)
	q.Set("post_logout_redirect_uri", s.cfg.PostLogoutRedirectURI())
	s.mu.Lock()
	if s.idToken != "" {
		q.Set("id_token_hint", s.idToken)
	}
	s.mu.Unlock()
	return s.cfg.Issuer() + "/protocol/openid-connect/logout?" + q.Encode()
}
