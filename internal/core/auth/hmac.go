package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"gitlab.com/tozd/go/errors"
)

// minTokenLength bounds brute force on a shared token.
const minTokenLength = 16

// ValidateToken rejects tokens too short to be used as a shared secret.
func ValidateToken(token string) error {
	if len(token) < minTokenLength {
		return ErrWeakToken
	}
	return nil
}

// tokenDigest keeps only a keyed hash of the configured token. Comparison
// is over fixed-length digests, so timing does not leak the token length.
type tokenDigest struct {
	key  []byte
	want []byte
}

func newTokenDigest(token string) (*tokenDigest, error) {
	key := make([]byte, sha256.Size)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Errorf("generating token key: %w", err)
	}
	return &tokenDigest{key: key, want: ComputeHMAC(key, token)}, nil
}

func (d *tokenDigest) matches(presented string) bool {
	return hmac.Equal(d.want, ComputeHMAC(d.key, presented))
}

// ComputeHMAC returns HMAC-SHA256 of message under key.
func ComputeHMAC(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
