package keycloak

import "errors"

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrNotInitialized       = errors.New("service not initialized")
	ErrIDGeneratorFailed    = errors.New("id generation failed")
	ErrInvalidCallbackState = errors.New("callback state does not match login attempt")
	ErrNoPendingLogin       = errors.New("no pending login attempt")
	ErrMissingIDToken       = errors.New("id_token is missing")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrLoginFailed          = errors.New("login failed")
	ErrUserInfoFailed       = errors.New("user info failed")
)
