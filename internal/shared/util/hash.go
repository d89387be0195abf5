package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a short, store-safe identifier for an arbitrary key string.
// Used to keep cache keys bounded regardless of parameter length.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
