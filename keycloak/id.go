package keycloak

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// NewID generates an ID with an optional prefix.  The ID generated is
// suitable for a login attempt's state or nonce.
func NewID(optionalPrefix string) (string, error) {
	const op = "keycloak.NewID"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	}
	return id, nil
}
