package util

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// maxKeyLength caps storage keys built from caller-supplied identifiers.
const maxKeyLength = 64

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CompactKey returns key unchanged when short, otherwise a 128-bit SHA-256
// prefix in hex.
func CompactKey(key string) string {
	if len(key) <= maxKeyLength {
		return key
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
