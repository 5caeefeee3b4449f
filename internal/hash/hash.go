package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/payanchor/payanchor/internal/canonical"
)

// Digest computes the lowercase hex sha256 of the canonical encoding of a
// record. Identical logical content always digests identically, regardless
// of field insertion order.
func Digest(record interface{}) (string, error) {
	enc, err := canonical.Encode(record)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}

// DigestBytes hashes raw bytes with the same digest used for records.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
