// Package identity consumes the external identity provider's bearer
// tokens. Verity never implements login; it verifies a signed token and
// extracts the decoded claim. Everything downstream (membership, roles)
// is resolved server-side from the uid.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Realms separate the two identity spaces sharing one provider.
// Researchers hold tenant memberships; participants are global
// interviewee identities. A token belongs to exactly one realm.
const (
	RealmResearcher  = "researcher"
	RealmParticipant = "participant"
)

// Claims is the decoded identity claim.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email,omitempty"`
	Realm      string `json:"realm,omitempty"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
}

// UID returns the identity provider's subject for this principal.
func (c *Claims) UID() string {
	return c.Subject
}

// Verifier validates a bearer token and returns its claims.
// The interface exists so handlers and middleware can be tested against a
// static implementation.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// ErrInvalidToken is returned for any token that fails verification.
// Callers must not surface the underlying reason.
var ErrInvalidToken = errors.New("invalid identity token")

// HMACVerifier verifies HS256 tokens signed with a shared secret
// configured alongside the identity provider.
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier creates a verifier for the given shared secret and
// expected issuer.
func NewHMACVerifier(secret []byte, issuer string) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity secret is required")
	}
	if issuer == "" {
		return nil, errors.New("identity issuer is required")
	}
	return &HMACVerifier{secret: secret, issuer: issuer}, nil
}

// Verify parses and validates a token, returning its claims.
func (v *HMACVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Realm != RealmResearcher && claims.Realm != RealmParticipant {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
