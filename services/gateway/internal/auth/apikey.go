package auth

import (
	"crypto/sha256"
	"strings"
)

// APIKeyValidator checks presented keys against the allow-list it was built
// with. Keys are held as SHA-256 digests.
type APIKeyValidator struct {
	digests map[[sha256.Size]byte]struct{}
}

// NewAPIKeyValidator builds a validator from keys. Surrounding whitespace is
// trimmed and blank entries are ignored.
func NewAPIKeyValidator(keys []string) *APIKeyValidator {
	digests := make(map[[sha256.Size]byte]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		digests[sha256.Sum256([]byte(k))] = struct{}{}
	}
	return &APIKeyValidator{digests: digests}
}

// IsValid reports whether key is in the allow-list. The empty key is never valid.
func (v *APIKeyValidator) IsValid(key string) bool {
	if key == "" {
		return false
	}
	_, ok := v.digests[sha256.Sum256([]byte(key))]
	return ok
}

// Len returns the number of distinct configured keys.
func (v *APIKeyValidator) Len() int {
	return len(v.digests)
}
