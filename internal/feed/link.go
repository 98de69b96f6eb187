package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CanonicalLink normalizes a raw feed link: surrounding whitespace is
// trimmed and trailing slashes are stripped. The result is stable under
// repeated application.
func CanonicalLink(raw string) string {
	s := strings.TrimSpace(raw)
	return strings.TrimRight(s, "/")
}

// Fingerprint derives the dedup key for a link: the sha256 of its
// canonical form, as a 64-character hex string. Equal fingerprints mean
// equal canonical links.
func Fingerprint(link string) string {
	sum := sha256.Sum256([]byte(CanonicalLink(link)))
	return hex.EncodeToString(sum[:])
}
