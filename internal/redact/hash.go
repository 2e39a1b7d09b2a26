package redact

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// identifierHashLength is the number of hex characters kept from the digest.
const identifierHashLength = 8

// HashIdentifier returns a fixed-width one-way token for a reviewer
// identifier. The same input always yields the same token, and the token
// never equals its input.
//
// The token is a privacy control for grouping reviews by author within a
// bundle; it must not be stored next to the cleartext identifier.
func HashIdentifier(raw string) string {
	token := truncatedDigest(raw)
	if token == raw {
		// Only reachable for an 8 hex character input that is its own
		// digest prefix; rehash with a fixed prefix.
		token = truncatedDigest("uid:" + raw)
	}
	return token
}

func truncatedDigest(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:identifierHashLength]
}
