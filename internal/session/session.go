// Package session provides access to the persisted credential of the
// current sign-in. Components that need the identity receive an Accessor
// explicitly instead of reading shared globals.
package session

import "errors"

// ErrNotAuthenticated is returned when no usable credential is stored.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// Identity is the authenticated principal derived from the stored token.
type Identity struct {
	// UserID is the token's subject claim.
	UserID string
	Role   string
}

// Accessor exposes the current authenticated identity to collaborators.
type Accessor interface {
	// Token returns the raw bearer credential.
	// Returns ErrNotAuthenticated when none is stored or it has expired.
	Token() (string, error)

	// Identity returns the principal decoded from the stored token.
	Identity() (Identity, error)

	// Authenticated reports whether a usable credential is present.
	Authenticated() bool
}
