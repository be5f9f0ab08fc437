package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plf1996/simfocus-go/api"
	"github.com/plf1996/simfocus-go/credstore"
	"github.com/plf1996/simfocus-go/keycloak"
)

// fakeBackend is a minimal auth backend.  Handlers for individual routes can
// be swapped per test; everything else answers 404.
type fakeBackend struct {
	srv *httptest.Server
	mux *http.ServeMux

	loginCalls    atomic.Int32
	registerCalls atomic.Int32
	meCalls       atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{mux: http.NewServeMux()}

	b.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, req *http.Request) {
		b.loginCalls.Add(1)
		var creds api.Credentials
		if err := json.NewDecoder(req.Body).Decode(&creds); err != nil || creds.Password != "hunter2" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error": map[string]string{"message": "invalid credentials", "code": "AUTH_ERROR"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "tok-" + creds.Email,
			"token_type":   "bearer",
			"user":         map[string]interface{}{"email": creds.Email, "username": "alice"},
		})
	})
	b.mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, req *http.Request) {
		b.registerCalls.Add(1)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"email": "new@example.com"})
	})
	b.mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, req *http.Request) {
		b.meCalls.Add(1)
		if req.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "no token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"email": "alice@example.com", "username": "alice"})
	})
	b.mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, req *http.Request) {
		var patch map[string]interface{}
		_ = json.NewDecoder(req.Body).Decode(&patch)
		patch["email"] = "alice@example.com"
		writeJSON(w, http.StatusOK, patch)
	})

	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testStore(t *testing.T, backend *fakeBackend, opt ...Option) (*Store, *credstore.MemStore) {
	t.Helper()
	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(t, err)
	s, err := NewStore(client, creds, opt...)
	require.NoError(t, err)
	return s, creds
}

func TestNewStore(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(err)

	_, err = NewStore(nil, creds)
	require.Error(err)
	assert.True(errors.Is(err, ErrNilParameter))

	_, err = NewStore(client, nil)
	require.Error(err)
	assert.True(errors.Is(err, ErrNilParameter))

	s, err := NewStore(client, creds)
	require.NoError(err)
	assert.False(s.IsAuthenticated())
	assert.Empty(s.Token())
}

func TestStore_Login(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, creds := testStore(t, backend)

	user, err := s.Login(context.Background(), api.Credentials{Email: "alice@example.com", Password: "hunter2"})
	require.NoError(err)
	require.NotNil(user)
	assert.Equal("alice", user["username"])

	assert.True(s.IsAuthenticated())
	assert.Equal("tok-alice@example.com", s.Token())
	assert.Equal(ProviderLocal, s.Provider())

	// memory and persisted state agree
	tok, ok := creds.Get(credstore.KeyToken)
	require.True(ok)
	assert.Equal(s.Token(), tok)
	provider, ok := creds.Get(credstore.KeyAuthProvider)
	require.True(ok)
	assert.Equal(ProviderLocal, provider)
}

func TestStore_LoginFailure(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, creds := testStore(t, backend)

	_, err := s.Login(context.Background(), api.Credentials{Email: "alice@example.com", Password: "wrong"})
	require.Error(err)
	var apiErr *api.Error
	require.True(errors.As(err, &apiErr))
	assert.Equal("invalid credentials", apiErr.Message)

	assert.False(s.IsAuthenticated())
	_, ok := creds.Get(credstore.KeyToken)
	assert.False(ok)
}

func TestStore_LoginBusy(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, _ := testStore(t, backend)

	// hold the in-flight guard open
	require.NoError(s.begin("test"))
	defer s.end()

	_, err := s.Login(context.Background(), api.Credentials{Email: "a@b.c", Password: "hunter2"})
	require.Error(err)
	assert.True(errors.Is(err, ErrBusy))

	err = s.Logout(context.Background())
	require.Error(err)
	assert.True(errors.Is(err, ErrBusy))
}

func TestStore_Register(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, _ := testStore(t, backend)

	user, err := s.Register(context.Background(), api.Registration{
		Email:    "alice@example.com",
		Password: "hunter2",
		Username: "alice",
	})
	require.NoError(err)
	require.NotNil(user)

	// registration performs an implicit login with the same credentials
	assert.Equal(int32(1), backend.registerCalls.Load())
	assert.Equal(int32(1), backend.loginCalls.Load())
	assert.True(s.IsAuthenticated())
	assert.Equal(ProviderLocal, s.Provider())
}

func TestStore_Logout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, creds := testStore(t, backend)

	_, err := s.Login(context.Background(), api.Credentials{Email: "alice@example.com", Password: "hunter2"})
	require.NoError(err)

	require.NoError(s.Logout(context.Background()))
	assert.False(s.IsAuthenticated())
	assert.Empty(s.Token())
	assert.Empty(s.Provider())
	assert.Nil(s.User())
	_, ok := creds.Get(credstore.KeyToken)
	assert.False(ok)
	_, ok = creds.Get(credstore.KeyAuthProvider)
	assert.False(ok)
}

func TestStore_FetchUser(t *testing.T) {
	t.Parallel()
	t.Run("no-token-no-network", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend(t)
		s, _ := testStore(t, backend)

		require.NoError(t, s.FetchUser(context.Background()))
		assert.Equal(t, int32(0), backend.meCalls.Load())
	})
	t.Run("failure-tears-session-down", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		backend := newFakeBackend(t)
		s, creds := testStore(t, backend)

		_, err := s.Login(context.Background(), api.Credentials{Email: "alice@example.com", Password: "hunter2"})
		require.NoError(err)

		// break the profile endpoint, then refresh
		backend.srv.Close()
		err = s.FetchUser(context.Background())
		require.Error(err)

		require.Eventually(func() bool {
			_, ok := creds.Get(credstore.KeyToken)
			return !ok && !s.IsAuthenticated()
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestStore_UpdateUser(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, _ := testStore(t, backend)

	_, err := s.Login(context.Background(), api.Credentials{Email: "alice@example.com", Password: "hunter2"})
	require.NoError(err)

	updated, err := s.UpdateUser(context.Background(), map[string]interface{}{"username": "alice2"})
	require.NoError(err)

	// the patch merges over the existing profile
	assert.Equal("alice2", updated["username"])
	assert.Equal("alice@example.com", updated["email"])
	assert.Equal("alice2", s.User()["username"])
}

func TestStore_Restore(t *testing.T) {
	t.Parallel()
	t.Run("persisted-token-restores-session", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		backend := newFakeBackend(t)
		creds := credstore.NewMemStore()
		require.NoError(creds.Set(credstore.KeyToken, "persisted-token"))
		require.NoError(creds.Set(credstore.KeyAuthProvider, ProviderLocal))

		client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
		require.NoError(err)
		s, err := NewStore(client, creds)
		require.NoError(err)

		assert.Equal("persisted-token", s.Token())
		assert.Equal(ProviderLocal, s.Provider())
		require.Eventually(s.IsAuthenticated, 2*time.Second, 10*time.Millisecond)
	})
	t.Run("stale-token-is-discarded", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		backend := newFakeBackend(t)
		backend.srv.Close() // backend gone: the restore fetch must fail
		creds := credstore.NewMemStore()
		require.NoError(creds.Set(credstore.KeyToken, "stale-token"))

		client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
		require.NoError(err)
		s, err := NewStore(client, creds)
		require.NoError(err)

		require.Eventually(func() bool {
			_, ok := creds.Get(credstore.KeyToken)
			return !ok && s.Token() == ""
		}, 2*time.Second, 10*time.Millisecond)
		require.False(s.IsAuthenticated())
	})
}

func TestStore_KeycloakDisabled(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	s, _ := testStore(t, backend)

	err := s.LoginWithKeycloak(context.Background())
	require.Error(err)
	assert.True(errors.Is(err, ErrKeycloakDisabled))

	err = s.HandleKeycloakCallback(context.Background(), "tok")
	require.Error(err)
	assert.True(errors.Is(err, ErrKeycloakDisabled))
}

// keycloakTestAdapter wires a backend-proxy adapter whose API base is the
// fake backend.
func keycloakTestAdapter(t *testing.T, backend *fakeBackend, creds credstore.Store, nav api.Navigator) keycloak.Service {
	t.Helper()
	cfg := &keycloak.Config{
		ServerURL:            "https://keycloak.example.com",
		Realm:                "simfocus",
		ClientID:             "simfocus-frontend",
		APIBaseURL:           backend.srv.URL,
		Origin:               "http://localhost:5173",
		Mode:                 keycloak.ModeBackendProxy,
		OnLoad:               keycloak.OnLoadCheckSSO,
		Enabled:              true,
		Scopes:               []string{"profile", "email"},
		TokenRefreshInterval: time.Minute,
	}
	svc, err := keycloak.NewService(cfg, creds, keycloak.WithNavigator(nav))
	require.NoError(t, err)
	t.Cleanup(svc.Done)
	return svc
}

func TestStore_KeycloakCallback(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	backend.mux.HandleFunc("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"email": "kc@example.com"})
	})

	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(err)
	adapter := keycloakTestAdapter(t, backend, creds, api.NavigatorFunc(func(string) {}))
	s, err := NewStore(client, creds, WithKeycloak(adapter))
	require.NoError(err)
	adapter.Init(context.Background())

	require.NoError(s.HandleKeycloakCallback(context.Background(), "kc-token"))

	assert.True(s.IsAuthenticated())
	assert.Equal("kc-token", s.Token())
	assert.Equal(ProviderKeycloak, s.Provider())
	provider, ok := creds.Get(credstore.KeyAuthProvider)
	require.True(ok)
	assert.Equal(ProviderKeycloak, provider)
}

func TestStore_KeycloakCallbackProfileFailure(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	backend := newFakeBackend(t)

	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(err)
	adapter := keycloakTestAdapter(t, backend, creds, api.NavigatorFunc(func(string) {}))
	s, err := NewStore(client, creds, WithKeycloak(adapter))
	require.NoError(err)
	adapter.Init(context.Background())

	// no backend: the profile fetch cannot succeed
	backend.srv.Close()
	err = s.HandleKeycloakCallback(context.Background(), "kc-token")
	require.Error(err)

	// the session must settle unauthenticated with nothing persisted
	require.Eventually(func() bool {
		_, ok := creds.Get(credstore.KeyToken)
		return !ok && !s.IsAuthenticated()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_KeycloakLoginDispatchesRedirect(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)

	var navigated []string
	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(err)
	adapter := keycloakTestAdapter(t, backend, creds, api.NavigatorFunc(func(url string) {
		navigated = append(navigated, url)
	}))
	s, err := NewStore(client, creds, WithKeycloak(adapter))
	require.NoError(err)

	require.NoError(s.LoginWithKeycloak(context.Background()))
	require.Len(navigated, 1)
	assert.Equal(backend.srv.URL+"/api/auth/keycloak/login", navigated[0])
	assert.False(s.IsAuthenticated())
}

func TestStore_KeycloakLogout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	backend := newFakeBackend(t)
	backend.mux.HandleFunc("/auth/me", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"email": "kc@example.com"})
	})
	backend.mux.HandleFunc("/api/auth/keycloak/logout", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	creds := credstore.NewMemStore()
	client, err := api.NewClient(backend.srv.URL, creds, api.NavigatorFunc(func(string) {}))
	require.NoError(err)
	adapter := keycloakTestAdapter(t, backend, creds, api.NavigatorFunc(func(string) {}))
	s, err := NewStore(client, creds, WithKeycloak(adapter))
	require.NoError(err)
	adapter.Init(context.Background())

	require.NoError(s.HandleKeycloakCallback(context.Background(), "kc-token"))
	require.NoError(s.Logout(context.Background()))

	assert.False(s.IsAuthenticated())
	assert.False(adapter.Authenticated())
	assert.Empty(s.Provider())
	_, ok := creds.Get(credstore.KeyToken)
	assert.False(ok)
	_, ok = creds.Get(credstore.KeyRefreshToken)
	assert.False(ok)
}
