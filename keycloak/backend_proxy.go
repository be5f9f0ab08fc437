package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/plf1996/simfocus-go/credstore"
)

// backendProxyService delegates the whole OIDC handshake to the backend.
// Login is a redirect to the backend's login endpoint; the token arrives
// later, out-of-process, on the /auth/success landing.
type backendProxyService struct {
	serviceBase
}

var _ Service = (*backendProxyService)(nil)

// refreshRequest is the body of the backend's proxied refresh and logout
// endpoints.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse is the body of a successful proxied refresh.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Mode implements Service.Mode.
func (s *backendProxyService) Mode() Mode {
	return ModeBackendProxy
}

// Init implements Service.Init.  Backend-proxy mode needs no provider
// session; initialization is bookkeeping only.
func (s *backendProxyService) Init(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return s.initResult
	}
	s.initialized = true
	s.initResult = true
	return true
}

// Login implements Service.Login by navigating to the backend's Keycloak
// login endpoint.  The backend redirects to Keycloak, handles the provider
// callback, and lands the browser on /auth/success with the token.
func (s *backendProxyService) Login(_ context.Context) error {
	s.navigator.NavigateTo(s.cfg.BackendLoginURL())
	return nil
}

// Logout implements Service.Logout.  The refresh timer is always stopped
// first.  The backend logout call is best-effort: a failure is logged and
// local credential state is cleared regardless.
func (s *backendProxyService) Logout(ctx context.Context) error {
	s.refresher.stop()

	if refreshToken, ok := s.creds.Get(credstore.KeyRefreshToken); ok && refreshToken != "" {
		if err := s.postTokenJSON(ctx, s.cfg.BackendLogoutURL(), refreshToken, nil); err != nil {
			s.logger.Error("backend logout failed", "error", err)
		}
	}

	s.clearLocalAuth()
	return nil
}

// HandleBackendCallbackSuccess implements Service.HandleBackendCallbackSuccess.
// The profile fetch is fire-and-forget: its failure is logged, never
// surfaced, and leaves the profile nil.
func (s *backendProxyService) HandleBackendCallbackSuccess(ctx context.Context, token string) {
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

// UpdateToken implements Service.UpdateToken against the backend's proxied
// refresh endpoint.  With no persisted refresh token it returns false
// without a network call.  Every failure is converted to a false return.
func (s *backendProxyService) UpdateToken(ctx context.Context, _ time.Duration) bool {
	refreshToken, ok := s.creds.Get(credstore.KeyRefreshToken)
	if !ok || refreshToken == "" {
		return false
	}

	var resp refreshResponse
	if err := s.postTokenJSON(ctx, s.cfg.BackendRefreshURL(), refreshToken, &resp); err != nil {
		s.logger.Error("backend token refresh failed", "error", err)
		s.demote()
		return false
	}
	if resp.AccessToken == "" {
		s.logger.Error("backend token refresh returned no access token")
		s.demote()
		return false
	}

	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return true
}

// postTokenJSON POSTs {refresh_token} to url and optionally decodes the
// response into out.
func (s *backendProxyService) postTokenJSON(ctx context.Context, url, refreshToken string, out interface{}) error {
	const op = "backendProxyService.postTokenJSON"
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("%s: unable to encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: unable to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: request returned status %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: unable to decode response: %w", op, err)
	}
	return nil
}
