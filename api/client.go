// Package api provides the HTTP client every SimFocus component uses to talk
// to the backend.  A single shared Client issues JSON requests under the /api
// base path, attaches the bearer token persisted in the credential store, and
// normalizes every failure into the one *Error shape callers handle.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"

	"github.com/plf1996/simfocus-go/credstore"
)

const (
	// BasePath is prefixed to every request path.
	BasePath = "/api"

	// DefaultTimeout bounds every request issued by the client.
	DefaultTimeout = 30 * time.Second

	// LoginPath is where the navigator is sent after an auth failure.
	LoginPath = "/login"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")
)

// Navigator abstracts forced navigation.  In the original browser client this
// is an assignment to window.location; shells supply whatever makes sense for
// them (open a browser, print the URL, record it in tests).
type Navigator interface {
	NavigateTo(url string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(url string)

func (f NavigatorFunc) NavigateTo(url string) { f(url) }

// Client issues authenticated JSON requests against the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credstore.Store
	navigator  Navigator
	logger     hclog.Logger

	mu           sync.RWMutex
	defaultToken string
}

// NewClient creates a Client for the backend at baseURL (scheme and host,
// without the /api suffix).  Supported options: WithTimeout, WithProviderCA,
// WithLogger, WithHTTPClient.
func NewClient(baseURL string, creds credstore.Store, navigator Navigator, opt ...Option) (*Client, error) {
	const op = "api.NewClient"
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base URL is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%s: base URL %s is invalid: %w", op, baseURL, err)
	}
	if creds == nil {
		return nil, fmt.Errorf("%s: credential store is nil: %w", op, ErrNilParameter)
	}
	if navigator == nil {
		return nil, fmt.Errorf("%s: navigator is nil: %w", op, ErrNilParameter)
	}
	opts := getClientOpts(opt...)

	httpClient := opts.withHTTPClient
	if httpClient == nil {
		tr := cleanhttp.DefaultPooledTransport()
		if opts.withProviderCA != "" {
			certPool := x509.NewCertPool()
			if ok := certPool.AppendCertsFromPEM([]byte(opts.withProviderCA)); !ok {
				return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
			}
			tr.TLSClientConfig = &tls.Config{RootCAs: certPool}
		}
		httpClient = &http.Client{
			Transport: tr,
			Timeout:   opts.withTimeout,
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		navigator:  navigator,
		logger:     opts.withLogger,
	}, nil
}

// SetAuthToken sets the default bearer token, used when the credential store
// holds no token.  It mirrors setting an axios default Authorization header.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultToken = token
}

// ClearAuthToken removes the default bearer token.
func (c *Client) ClearAuthToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultToken = ""
}

// Get issues a GET and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with the JSON encoding of in as the body.
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Patch issues a PATCH with the JSON encoding of in as the body.
func (c *Client) Patch(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do issues one request under the /api base path.  The bearer token is read
// from the credential store before every send; the settable default token is
// a fallback.  Every failure is returned as an *Error:
//
//   - 401/403: the persisted token is removed, the navigator is sent to
//     /login, and an *Error with the response status is returned.  This is
//     unconditional, regardless of which request failed.
//   - other non-2xx: the body is normalized (structured error fields first,
//     then "detail", then a generic message).
//   - no response received: {0, "network error", NETWORK_ERROR}.
//   - request could not be built: {0, "request configuration error", REQUEST_ERROR}.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		c.logger.Error("unable to build request", "method", method, "path", path, "error", err)
		return requestError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed without a response", "method", method, "path", path, "error", err)
		return networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.forceLogin(resp.StatusCode)
		return normalizeResponseError(resp.StatusCode, body)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return normalizeResponseError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Status:  resp.StatusCode,
			Message: "unable to decode response",
			Code:    CodeUnknownError,
			cause:   err,
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in interface{}) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+BasePath+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// bearerToken prefers the persisted token and falls back to the default one.
func (c *Client) bearerToken() string {
	if token, ok := c.creds.Get(credstore.KeyToken); ok && token != "" {
		return token
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultToken
}

// forceLogin invalidates the persisted token and redirects to the login view.
func (c *Client) forceLogin(status int) {
	c.logger.Warn("authorization failure, forcing login", "status", status)
	if err := c.creds.Remove(credstore.KeyToken); err != nil {
		c.logger.Error("unable to remove persisted token", "error", err)
	}
	c.navigator.NavigateTo(LoginPath)
}
