// Package sha256 digests downloaded payloads so stored images can be traced
// back to the exact bytes that were fetched.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. Empty payloads are rejected.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("nothing to hash")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
