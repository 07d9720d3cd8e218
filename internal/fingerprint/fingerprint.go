// Package fingerprint computes the 32-bit, privacy-preserving identifiers
// used by the priority-system set. It promotes github.com/cespare/xxhash,
// which the teacher pulls in transitively through its Prometheus stack, to a
// direct dependency for this purpose.
package fingerprint

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Of normalizes name (trim, lowercase) and returns a 32-bit fingerprint.
// fingerprint.Of is a pure function of the normalized name: two names that
// normalize to the same string always produce the same fingerprint.
func Of(name string) uint32 {
	normalized := Normalize(name)
	digest := xxhash.Sum64String(normalized)
	return uint32(digest)
}

// Normalize trims whitespace and lowercases name, the canonical form
// fingerprints are computed from.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
