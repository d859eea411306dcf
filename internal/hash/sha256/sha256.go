// Package sha256 fingerprints stored artifacts for HTTP caching.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the hex-encoded SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	return `"` + Digest(data) + `"`
}

// Matches reports whether an If-None-Match header value covers etag. Weak
// validators compare equal to their strong form.
func Matches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
