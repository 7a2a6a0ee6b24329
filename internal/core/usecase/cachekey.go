package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// buildCacheKey hashes the namespace, the model-version fingerprints, the
// user scope and the normalized query into one opaque key. Model versions are
// part of the hash, so bumping either one orphans every prior entry without an
// explicit delete pass.
func buildCacheKey(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
