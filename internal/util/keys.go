package util

import (
	"crypto/sha256"
	"fmt"
)

// QueryKey returns a deterministic storage key for a canonical query
// descriptor: the prefix plus a short hash. Keeps arbitrary filter values
// out of the key space.
func QueryKey(prefix, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+16] // prefix + ":" + first 16 hex chars
}
