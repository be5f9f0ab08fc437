package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
)

// serviceBase carries the state and collaborators both mode implementations
// share.
type serviceBase struct {
	cfg        *Config
	creds      credstore.Store
	navigator  api.Navigator
	httpClient *http.Client
	logger     hclog.Logger
	refresher  *refresher

	mu            sync.Mutex
	initialized   bool
	initResult    bool
	authenticated bool
	token         string
	refreshToken  string
	profile       api.Profile
}

// Authenticated implements Service.Authenticated.
func (s *serviceBase) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Token implements Service.Token.
func (s *serviceBase) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// UserProfile implements Service.UserProfile.
func (s *serviceBase) UserProfile() api.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Done implements Service.Done.
func (s *serviceBase) Done() {
	s.refresher.stop()
}

// setTokens updates the in-memory tokens and their persisted projection.  An
// empty refreshToken keeps the prior one.
func (s *serviceBase) setTokens(token, refreshToken string) {
	s.mu.Lock()
	s.token = token
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.authenticated = true
	s.mu.Unlock()

	if err := s.creds.Set(credstore.KeyToken, token); err != nil {
		s.logger.Error("unable to persist token", "error", err)
	}
	if refreshToken != "" {
		if err := s.creds.Set(credstore.KeyRefreshToken, refreshToken); err != nil {
			s.logger.Error("unable to persist refresh token", "error", err)
		}
	}
}

// clearLocalAuth resets in-memory state and removes the persisted
// credentials.
func (s *serviceBase) clearLocalAuth() {
	s.mu.Lock()
	s.token = ""
	s.refreshToken = ""
	s.profile = nil
	s.authenticated = false
	s.mu.Unlock()

	if err := s.creds.Remove(credstore.KeyToken); err != nil {
		s.logger.Error("unable to remove persisted token", "error", err)
	}
	if err := s.creds.Remove(credstore.KeyRefreshToken); err != nil {
		s.logger.Error("unable to remove persisted refresh token", "error", err)
	}
}

// demote marks the session unauthenticated without touching persisted state.
func (s *serviceBase) demote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
}

// fetchProfile GETs the backend's current-user endpoint with token and
// stores the result.  Failure leaves the profile untouched.
func (s *serviceBase) fetchProfile(ctx context.Context, token string) error {
	const op = "keycloak.fetchProfile"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BackendProfileURL(), nil)
	if err != nil {
		return fmt.Errorf("%s: unable to build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: profile request failed: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: profile request returned status %d: %w", op, resp.StatusCode, ErrUserInfoFailed)
	}

	var profile api.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return fmt.Errorf("%s: unable to decode profile: %w", op, err)
	}
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	return nil
}
