package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 16 bytes of hex randomness, optionally tagged with a prefix
// ("note", "jti", "rft") so identifiers are greppable in logs.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
