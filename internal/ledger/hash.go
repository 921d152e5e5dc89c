// Package ledger tracks tool invocations keyed by the content hash of the
// message that produced them, so past tool activity can be reattached when a
// conversation's context is rebuilt from raw history.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the SHA-256 hex digest of a message's textual content.
// Identical text always yields the identical digest, within and across runs.
// The digest is a lookup key, not an integrity check: distinct messages with
// identical text share a hash and therefore share replayed records.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
