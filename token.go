package accounts

import (
	"crypto/rand"
	"encoding/base64"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultTokenBytes is the entropy, in bytes, behind a verification token.
const DefaultTokenBytes = 24

// TokenGenerator produces opaque, unguessable verification tokens.
// It is a seam so tests can pin token values.
type TokenGenerator func() (string, error)

// GenerateVerificationToken returns a URL-safe random token.
func GenerateVerificationToken() (string, error) {
	buf := make([]byte, DefaultTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
