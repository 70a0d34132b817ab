// Package md5 provides the MD5 hasher used to derive cache keys.
package md5

import (
	"crypto/md5" // #nosec G501 -- cache keys, not a security boundary.
	"encoding/hex"
)

// Hasher implements cache.Hasher using MD5.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a lowercase hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:]), nil
}
