// Package credstore provides persistent key/value storage for the
// credentials a SimFocus client session needs across restarts: the access
// token, the refresh token, and the name of the auth provider that issued
// them.
package credstore

import (
	"errors"
	"fmt"
)

// Well-known credential keys.  Components agree on these names so that the
// session store, the HTTP client, and the Keycloak adapters all read and
// write the same records.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refresh_token"
	KeyAuthProvider = "auth_provider"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
)

// Store is origin-scoped persistent key/value storage.  It survives process
// restarts but not explicit removal.  Values are stored verbatim; no
// validation is performed.
type Store interface {
	// Get returns the value for key and whether the key was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any prior value.
	Set(key, value string) error

	// Remove deletes key.  Removing an absent key is not an error.
	Remove(key string) error
}

// StoreError indicates a credential storage failure.
type StoreError struct {
	Op    string
	Key   string
	Cause error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s credential", e.Op)
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Key)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
