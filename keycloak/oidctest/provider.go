// Package oidctest provides a disposable in-process OIDC provider which
// makes writing tests against the frontend-direct flow much easier.  It
// serves discovery, token, userinfo, and JWKS endpoints over a local
// httptest server and signs tokens with a throwaway RSA key.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Provider is a local OIDC server for tests.
type Provider struct {
	t          *testing.T
	httpServer *httptest.Server
	realm      string

	privKey *rsa.PrivateKey
	jwks    jose.JSONWebKeySet

	mu               sync.Mutex
	clientID         string
	clientSecret     string
	expectedAuthCode string
	expectedNonce    string
	refreshToken     string
	replySubject     string
	replyUserinfo    map[string]interface{}
	accessTokenTTL   time.Duration
	refreshFails     bool
	refreshCalls     int
	tokensIssued     int
}

// Start creates and starts a disposable Provider.  Endpoints are served
// under a Keycloak style /realms/{realm} prefix.  The server is shut down
// via t.Cleanup.
func Start(t *testing.T, realm string) *Provider {
	t.Helper()
	require := require.New(t)

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	p := &Provider{
		t:       t,
		realm:   realm,
		privKey: privKey,
		jwks: jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{Key: privKey.Public(), KeyID: "test-key", Algorithm: string(jose.RS256), Use: "sig"},
			},
		},
		replySubject:   "test-subject",
		replyUserinfo:  map[string]interface{}{"email": "test@example.com", "preferred_username": "tester"},
		accessTokenTTL: 5 * time.Minute,
	}
	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Addr returns the provider's issuer URL, realm path included.
func (p *Provider) Addr() string {
	return p.httpServer.URL + "/realms/" + p.realm
}

// ServerURL returns the base URL of the underlying server, without the
// realm path.
func (p *Provider) ServerURL() string {
	return p.httpServer.URL
}

// Realm returns the realm name the provider serves.
func (p *Provider) Realm() string {
	return p.realm
}

// SetClientCreds configures the client the token endpoint accepts.
func (p *Provider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the one authorization code the token
// endpoint will redeem.
func (p *Provider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce embedded in issued id_tokens.
func (p *Provider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedNonce = nonce
}

// SetRefreshToken configures the refresh token the token endpoint accepts
// and returns.
func (p *Provider) SetRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshToken = token
}

// SetAccessTokenTTL configures the lifetime of issued access tokens.
func (p *Provider) SetAccessTokenTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenTTL = ttl
}

// FailRefresh makes every refresh grant fail with invalid_grant.
func (p *Provider) FailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshFails = fail
}

// RefreshCalls returns how many refresh grants the token endpoint has seen.
func (p *Provider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

// ServeHTTP implements the provider's endpoints.
func (p *Provider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path, ok := strings.CutPrefix(req.URL.Path, "/realms/"+p.realm)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch path {
	case "/.well-known/openid-configuration":
		p.writeJSON(w, http.StatusOK, map[string]interface{}{
			"issuer":                                p.Addr(),
			"authorization_endpoint":                p.Addr() + "/authorize",
			"token_endpoint":                        p.Addr() + "/token",
			"userinfo_endpoint":                     p.Addr() + "/userinfo",
			"jwks_uri":                              p.Addr() + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"response_types_supported":              []string{"code"},
			"subject_types_supported":               []string{"public"},
		})
	case "/jwks":
		p.writeJSON(w, http.StatusOK, p.jwks)
	case "/token":
		p.handleToken(w, req)
	case "/userinfo":
		p.handleUserinfo(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *Provider) handleToken(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		p.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.FormValue("grant_type") {
	case "authorization_code":
		if req.FormValue("code") != p.expectedAuthCode {
			p.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		p.writeTokens(w, true)
	case "refresh_token":
		p.refreshCalls++
		if p.refreshFails || req.FormValue("refresh_token") != p.refreshToken {
			p.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		p.refreshToken = fmt.Sprintf("%s-rotated", p.refreshToken)
		p.writeTokens(w, false)
	default:
		p.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

// writeTokens issues a token response.  Callers must hold p.mu.
func (p *Provider) writeTokens(w http.ResponseWriter, withIDToken bool) {
	now := time.Now()
	p.tokensIssued++
	accessToken := p.signToken(map[string]interface{}{
		"iss": p.Addr(),
		"sub": p.replySubject,
		"aud": p.clientID,
		"exp": now.Add(p.accessTokenTTL).Unix(),
		"iat": now.Unix(),
		// second-resolution iat/exp alone would make two tokens minted in
		// the same second byte-identical; jti keeps each token unique
		"jti": fmt.Sprintf("tok-%d", p.tokensIssued),
	})
	resp := map[string]interface{}{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(p.accessTokenTTL.Seconds()),
		"refresh_token": p.refreshToken,
	}
	if withIDToken {
		resp["id_token"] = p.signToken(map[string]interface{}{
			"iss":   p.Addr(),
			"sub":   p.replySubject,
			"aud":   p.clientID,
			"exp":   now.Add(5 * time.Minute).Unix(),
			"iat":   now.Unix(),
			"nonce": p.expectedNonce,
		})
	}
	p.writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) handleUserinfo(w http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	info := map[string]interface{}{"sub": p.replySubject}
	for k, v := range p.replyUserinfo {
		info[k] = v
	}
	p.writeJSON(w, http.StatusOK, info)
}

func (p *Provider) signToken(claims map[string]interface{}) string {
	p.t.Helper()
	require := require.New(p.t)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: p.privKey},
		(&jose.SignerOptions{}).WithHeader("kid", "test-key"),
	)
	require.NoError(err)

	raw, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(err)
	return raw
}

func (p *Provider) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.t.Errorf("oidctest: unable to encode response: %s", err)
	}
}
