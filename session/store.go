// Package session owns the client's authenticated session: who is logged in,
// with which provider, and under which token.  It coordinates the API client,
// the credential store, and the optional Keycloak adapter so that the three
// never disagree about the session's state.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
	"github.com/plf1996/simfocus-go/keycloak"
)

// Auth provider names persisted under credstore.KeyAuthProvider.
const (
	ProviderLocal    = "local"
	ProviderKeycloak = "keycloak"
)

// Store holds the current session.  All exported methods are safe for
// concurrent use; lifecycle operations (Login, Register, Logout, the
// Keycloak entry points) additionally refuse to overlap and return ErrBusy
// instead of queueing.
type Store struct {
	client    *api.Client
	endpoints *api.Endpoints
	creds     credstore.Store
	adapter   keycloak.Service
	logger    hclog.Logger

	mu       sync.Mutex
	busy     bool
	token    string
	provider string
	user     api.Profile
}

// NewStore creates a session store over client and creds.  When a persisted
// token exists the session is restored: the client's default Authorization
// header is set immediately and the profile is fetched in the background, so
// IsAuthenticated may read false until that fetch lands.  Supported options:
// WithLogger, WithKeycloak.
func NewStore(client *api.Client, creds credstore.Store, opt ...Option) (*Store, error) {
	const op = "session.NewStore"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	if creds == nil {
		return nil, fmt.Errorf("%s: credential store is nil: %w", op, ErrNilParameter)
	}
	endpoints, err := api.NewEndpoints(client)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getStoreOpts(opt...)

	s := &Store{
		client:    client,
		endpoints: endpoints,
		creds:     creds,
		adapter:   opts.withKeycloak,
		logger:    opts.withLogger,
	}

	if token, ok := creds.Get(credstore.KeyToken); ok && token != "" {
		s.token = token
		if provider, ok := creds.Get(credstore.KeyAuthProvider); ok {
			s.provider = provider
		}
		client.SetAuthToken(token)
		go func() {
			if err := s.FetchUser(context.Background()); err != nil {
				s.logger.Warn("session restore failed", "error", err)
			}
		}()
	}
	return s, nil
}

// Login authenticates against the backend with local credentials and adopts
// the returned session.
func (s *Store) Login(ctx context.Context, creds api.Credentials) (api.Profile, error) {
	const op = "session.Store.Login"
	if err := s.begin(op); err != nil {
		return nil, err
	}
	defer s.end()

	resp, err := s.endpoints.Auth.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.adopt(resp.AccessToken, resp.User, ProviderLocal); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.User == nil {
		if err := s.fetchUser(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return s.User(), nil
}

// Register creates the account, then performs an implicit Login with the
// same credentials.
func (s *Store) Register(ctx context.Context, reg api.Registration) (api.Profile, error) {
	const op = "session.Store.Register"
	if _, err := s.endpoints.Auth.Register(ctx, reg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.Login(ctx, api.Credentials{Email: reg.Email, Password: reg.Password})
}

// LoginWithKeycloak starts the Keycloak flow: the adapter is initialized,
// then dispatches its interactive redirect.  The session is completed later
// by HandleKeycloakCallback (or by the adapter's own callback handling).
func (s *Store) LoginWithKeycloak(ctx context.Context) error {
	const op = "session.Store.LoginWithKeycloak"
	if s.adapter == nil {
		return fmt.Errorf("%s: %w", op, ErrKeycloakDisabled)
	}
	if err := s.begin(op); err != nil {
		return err
	}
	defer s.end()

	if s.adapter.Init(ctx) {
		// silent authentication already produced a session
		return s.adoptKeycloakSession(ctx, op)
	}
	if err := s.adapter.Login(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleKeycloakCallback adopts the token delivered on the callback landing.
// Unlike FetchUser elsewhere, a profile fetch failure here fails the whole
// callback: a token the backend will not honor is not a session.
func (s *Store) HandleKeycloakCallback(ctx context.Context, token string) error {
	const op = "session.Store.HandleKeycloakCallback"
	if s.adapter == nil {
		return fmt.Errorf("%s: %w", op, ErrKeycloakDisabled)
	}
	if err := s.begin(op); err != nil {
		return err
	}
	defer s.end()

	s.adapter.HandleBackendCallbackSuccess(ctx, token)
	if err := s.adopt(token, nil, ProviderKeycloak); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.fetchUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Logout tears the session down.  For a Keycloak session the adapter logs
// out first (which stops its refresh timer before anything else); local
// state is cleared unconditionally, even when the adapter reports an error.
func (s *Store) Logout(ctx context.Context) error {
	const op = "session.Store.Logout"
	if err := s.begin(op); err != nil {
		return err
	}
	defer s.end()

	if err := s.teardown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FetchUser refreshes the profile from the backend.  Without a token it is a
// no-op.  On failure the session is torn down in the background: the token
// was not honored, so keeping it only produces more failures.
func (s *Store) FetchUser(ctx context.Context) error {
	const op = "session.Store.FetchUser"
	if err := s.fetchUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateUser patches the current user and merges the backend's response into
// the session's profile.
func (s *Store) UpdateUser(ctx context.Context, patch map[string]interface{}) (api.Profile, error) {
	const op = "session.Store.UpdateUser"
	updated, err := s.endpoints.Users.UpdateMe(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	merged := api.Profile{}
	for k, v := range s.user {
		merged[k] = v
	}
	for k, v := range updated {
		merged[k] = v
	}
	s.user = merged
	s.mu.Unlock()
	return merged, nil
}

// IsAuthenticated reports whether the session holds both a token and a user.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.user != nil
}

// Token returns the session's access token, or "".
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Provider returns the session's auth provider name, or "".
func (s *Store) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// User returns the session's profile, or nil.
func (s *Store) User() api.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// begin marks a lifecycle operation in flight.
func (s *Store) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	s.busy = true
	return nil
}

func (s *Store) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// adopt installs a fresh session: memory, credential store, and the client's
// default header move together.
func (s *Store) adopt(token string, user api.Profile, provider string) error {
	if err := s.creds.Set(credstore.KeyToken, token); err != nil {
		return err
	}
	if err := s.creds.Set(credstore.KeyAuthProvider, provider); err != nil {
		return err
	}
	s.client.SetAuthToken(token)

	s.mu.Lock()
	s.token = token
	s.provider = provider
	if user != nil {
		s.user = user
	}
	s.mu.Unlock()
	return nil
}

// adoptKeycloakSession installs the session the adapter already holds.
func (s *Store) adoptKeycloakSession(ctx context.Context, op string) error {
	if err := s.adopt(s.adapter.Token(), nil, ProviderKeycloak); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.fetchUser(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) fetchUser(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return nil
	}

	profile, err := s.endpoints.Auth.Me(ctx)
	if err != nil {
		s.logger.Warn("profile fetch failed, tearing session down", "error", err)
		go func() {
			if terr := s.teardown(context.Background()); terr != nil {
				s.logger.Error("corrective logout failed", "error", terr)
			}
		}()
		return err
	}

	s.mu.Lock()
	s.user = profile
	s.mu.Unlock()
	return nil
}

// teardown clears the session without the in-flight guard so that both
// Logout and the corrective path in fetchUser can run it.
func (s *Store) teardown(ctx context.Context) error {
	s.mu.Lock()
	provider := s.provider
	s.mu.Unlock()

	var result *multierror.Error
	if provider == ProviderKeycloak && s.adapter != nil {
		if err := s.adapter.Logout(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := s.creds.Remove(credstore.KeyToken); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.creds.Remove(credstore.KeyRefreshToken); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.creds.Remove(credstore.KeyAuthProvider); err != nil {
		result = multierror.Append(result, err)
	}
	s.client.ClearAuthToken()

	s.mu.Lock()
	s.token = ""
	s.provider = ""
	s.user = nil
	s.mu.Unlock()
	return result.ErrorOrNil()
}
