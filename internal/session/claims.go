package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// decodeIdentity pulls the subject and role claims out of a bearer token.
// The token is decoded, not verified: signature verification is the
// backend's job, the client only needs the claims. Expired tokens are
// treated as not authenticated so the caller can prompt for a new login.
func decodeIdentity(token string) (Identity, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: malformed token: %v", ErrNotAuthenticated, err)
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", ErrNotAuthenticated)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if time.Now().After(exp.Time) {
			return Identity{}, fmt.Errorf("%w: token expired", ErrNotAuthenticated)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrNotAuthenticated)
	}

	role, _ := claims["role"].(string)
	return Identity{UserID: sub, Role: role}, nil
}
