package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the cache key for a snippet: the SHA-256 hex
// digest of its exact UTF-8 bytes. Deterministic; snippets differing by
// a single byte produce different keys. Collisions are treated as
// identical input.
func Fingerprint(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}
