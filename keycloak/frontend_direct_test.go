package keycloak

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plf1996/simfocus-go/credstore"
	"github.com/plf1996/simfocus-go/keycloak/oidctest"
)

// testDirectService builds a frontend-direct Service against an oidctest
// provider.
func testDirectService(t *testing.T, p *oidctest.Provider) (Service, *credstore.MemStore, *recordingNavigator) {
	t.Helper()

	cfg := testConfig()
	cfg.Mode = ModeFrontendDirect
	cfg.OnLoad = OnLoadCheckSSO
	cfg.TokenRefreshInterval = 30 * time.Second
	cfg.ServerURL, cfg.Realm = p.ServerURL(), p.Realm()

	p.SetClientCreds(cfg.ClientID, cfg.ClientSecret)

	creds := credstore.NewMemStore()
	nav := &recordingNavigator{}
	svc, err := NewService(cfg, creds, WithNavigator(nav))
	require.NoError(t, err)
	t.Cleanup(svc.Done)
	return svc, creds, nav
}

func TestFrontendDirect_InitWithoutSession(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	p := oidctest.Start(t, "simfocus")
	svc, _, nav := testDirectService(t, p)

	// check-sso with no persisted refresh token: initialized, not
	// authenticated, no redirect dispatched
	assert.False(svc.Init(context.Background()))
	assert.False(svc.Authenticated())
	assert.Empty(nav.targets)

	// re-entrant init returns the prior result
	assert.False(svc.Init(context.Background()))
}

func TestFrontendDirect_InitLoginRequiredDispatchesRedirect(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")

	cfg := testConfig()
	cfg.Mode = ModeFrontendDirect
	cfg.OnLoad = OnLoadLoginRequired
	cfg.ServerURL, cfg.Realm = p.ServerURL(), p.Realm()
	p.SetClientCreds(cfg.ClientID, cfg.ClientSecret)

	nav := &recordingNavigator{}
	svc, err := NewService(cfg, credstore.NewMemStore(), WithNavigator(nav))
	require.NoError(err)
	defer svc.Done()

	assert.False(svc.Init(context.Background()))
	require.Len(nav.targets, 1)
	assert.Contains(nav.targets[0], "client_id="+cfg.ClientID)
}

func TestFrontendDirect_InitSilentRefresh(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")
	p.SetRefreshToken("silent-refresh")

	svc, creds, _ := testDirectService(t, p)
	require.NoError(creds.Set(credstore.KeyRefreshToken, "silent-refresh"))

	require.True(svc.Init(context.Background()))
	assert.True(svc.Authenticated())
	assert.NotEmpty(svc.Token())

	// the fresh access token was persisted
	tok, ok := creds.Get(credstore.KeyToken)
	require.True(ok)
	assert.Equal(svc.Token(), tok)

	// profile was loaded from the userinfo endpoint
	profile := svc.UserProfile()
	require.NotNil(profile)
	assert.Equal("tester", profile["preferred_username"])
}

func TestFrontendDirect_InitDiscoveryFailure(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	cfg := testConfig()
	cfg.Mode = ModeFrontendDirect
	cfg.OnLoad = OnLoadCheckSSO
	cfg.ServerURL = "http://127.0.0.1:1" // nothing listens here

	svc, err := NewService(cfg, credstore.NewMemStore())
	require.NoError(err)
	defer svc.Done()

	// discovery failure still marks the service initialized and reports
	// false instead of propagating
	assert.False(svc.Init(context.Background()))
	assert.False(svc.Init(context.Background()))
}

func TestFrontendDirect_LoginBeforeInit(t *testing.T) {
	t.Parallel()
	p := oidctest.Start(t, "simfocus")
	svc, _, _ := testDirectService(t, p)

	err := svc.Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestFrontendDirect_LoginDispatchesAuthURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")
	svc, _, nav := testDirectService(t, p)
	svc.Init(context.Background())

	require.NoError(svc.Login(context.Background()))
	require.Len(nav.targets, 1)

	u, err := url.Parse(nav.targets[0])
	require.NoError(err)
	q := u.Query()
	assert.NotEmpty(q.Get("state"))
	assert.NotEmpty(q.Get("nonce"))
	assert.NotEqual(q.Get("state"), q.Get("nonce"))
	assert.Contains(q.Get("scope"), "openid")
	assert.Equal("http://localhost:5173/auth/callback", q.Get("redirect_uri"))
}

// completeLogin drives Login and the callback to an authenticated session,
// returning the state/nonce used.
func completeLogin(t *testing.T, svc Service, p *oidctest.Provider, nav *recordingNavigator) {
	t.Helper()
	require := require.New(t)

	require.NoError(svc.Login(context.Background()))
	u, err := url.Parse(nav.targets[len(nav.targets)-1])
	require.NoError(err)
	state, nonce := u.Query().Get("state"), u.Query().Get("nonce")

	p.SetExpectedAuthNonce(nonce)
	p.SetExpectedAuthCode("code-1")
	p.SetRefreshToken("refresh-1")

	direct, ok := svc.(*frontendDirectService)
	require.True(ok)
	require.NoError(direct.HandleRedirectCallback(context.Background(), state, "code-1"))
}

func TestFrontendDirect_CallbackRoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")
	svc, creds, nav := testDirectService(t, p)
	svc.Init(context.Background())

	completeLogin(t, svc, p, nav)

	assert.True(svc.Authenticated())
	assert.NotEmpty(svc.Token())
	tok, ok := creds.Get(credstore.KeyToken)
	require.True(ok)
	assert.Equal(svc.Token(), tok)
	ref, ok := creds.Get(credstore.KeyRefreshToken)
	require.True(ok)
	assert.Equal("refresh-1", ref)

	profile := svc.UserProfile()
	require.NotNil(profile)
	assert.Equal("test@example.com", profile["email"])
}

func TestFrontendDirect_CallbackRejectsWrongState(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")
	svc, creds, nav := testDirectService(t, p)
	svc.Init(context.Background())

	require.NoError(svc.Login(context.Background()))
	u, err := url.Parse(nav.targets[0])
	require.NoError(err)
	p.SetExpectedAuthNonce(u.Query().Get("nonce"))
	p.SetExpectedAuthCode("code-1")

	direct := svc.(*frontendDirectService)
	err = direct.HandleRedirectCallback(context.Background(), "forged-state", "code-1")
	require.Error(err)
	assert.True(errors.Is(err, ErrInvalidCallbackState))

	// nothing was stored
	assert.False(svc.Authenticated())
	_, ok := creds.Get(credstore.KeyToken)
	assert.False(ok)
}

func TestFrontendDirect_CallbackWithoutPendingLogin(t *testing.T) {
	t.Parallel()
	p := oidctest.Start(t, "simfocus")
	svc, _, _ := testDirectService(t, p)
	svc.Init(context.Background())

	direct := svc.(*frontendDirectService)
	err := direct.HandleRedirectCallback(context.Background(), "st_x", "code-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPendingLogin))
}

func TestFrontendDirect_UpdateToken(t *testing.T) {
	t.Parallel()
	t.Run("valid-token-short-circuits", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := oidctest.Start(t, "simfocus")
		svc, _, nav := testDirectService(t, p)
		svc.Init(context.Background())
		completeLogin(t, svc, p, nav)

		before := p.RefreshCalls()
		require.True(svc.UpdateToken(context.Background(), time.Minute))
		assert.Equal(before, p.RefreshCalls())
	})
	t.Run("expiring-token-refreshes", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := oidctest.Start(t, "simfocus")
		svc, creds, nav := testDirectService(t, p)
		svc.Init(context.Background())
		completeLogin(t, svc, p, nav)

		before := p.RefreshCalls()
		oldToken := svc.Token()
		require.True(svc.UpdateToken(context.Background(), time.Hour))
		assert.Greater(p.RefreshCalls(), before)
		assert.NotEqual(oldToken, svc.Token())

		// the rotated refresh token was persisted
		ref, ok := creds.Get(credstore.KeyRefreshToken)
		require.True(ok)
		assert.Equal("refresh-1-rotated", ref)
	})
	t.Run("refresh-failure-demotes", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		p := oidctest.Start(t, "simfocus")
		svc, _, nav := testDirectService(t, p)
		svc.Init(context.Background())
		completeLogin(t, svc, p, nav)
		p.FailRefresh(true)

		assert.False(svc.UpdateToken(context.Background(), time.Hour))
		assert.False(svc.Authenticated())
	})
	t.Run("uninitialized-returns-false", func(t *testing.T) {
		t.Parallel()
		p := oidctest.Start(t, "simfocus")
		svc, _, _ := testDirectService(t, p)
		assert.False(t, svc.UpdateToken(context.Background(), 0))
	})
}

func TestFrontendDirect_Logout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidctest.Start(t, "simfocus")
	svc, creds, nav := testDirectService(t, p)
	svc.Init(context.Background())
	completeLogin(t, svc, p, nav)

	require.NoError(svc.Logout(context.Background()))

	// the browser was sent to the RP-initiated logout endpoint
	last := nav.targets[len(nav.targets)-1]
	assert.Contains(last, "/protocol/openid-connect/logout")
	assert.Contains(last, "post_logout_redirect_uri")
	assert.Contains(last, "id_token_hint")

	assert.False(svc.Authenticated())
	assert.Empty(svc.Token())
	_, ok := creds.Get(credstore.KeyToken)
	assert.False(ok)
	_, ok = creds.Get(credstore.KeyRefreshToken)
	assert.False(ok)
}
