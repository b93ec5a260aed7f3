package attendance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy of a generated token. Tokens are hex encoded, so
// their printable length is twice this.
const TokenBytes = 16

// TokenGenerator produces opaque attendance tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokens draws tokens from crypto/rand.
type RandomTokens struct{}

// Generate returns 16 random bytes as 32 hex characters. It fails only when
// the system entropy source fails; there is no weaker fallback.
func (RandomTokens) Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}
