package session

import "errors"

var (
	// ErrNilParameter is returned when a required parameter is nil.
	ErrNilParameter = errors.New("nil parameter")

	// ErrBusy is returned when a lifecycle operation (login, register,
	// logout, callback handling) is started while another is in flight.
	ErrBusy = errors.New("another auth operation is in flight")

	// ErrKeycloakDisabled is returned by the Keycloak entry points when the
	// store was built without a Keycloak adapter.
	ErrKeycloakDisabled = errors.New("keycloak is not enabled")
)
