package interview

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of a generated access token. The token is the
// sole capability guarding a pending interview, so it is sized well past
// guessability (256 bits).
const tokenBytes = 32

// tokenPrefix marks Verity interview tokens for identification in logs
// and support tickets. It carries no authorization meaning.
const tokenPrefix = "ivt_"

// NewAccessToken generates an unguessable URL-safe access token.
func NewAccessToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
