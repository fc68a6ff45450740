// Package canonicalize produces deterministic byte representations of Go
// values for content hashing, using RFC 8785 JSON Canonicalization Scheme.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS marshals v to JSON and then canonicalizes it per RFC 8785: object keys
// sorted, no insignificant whitespace, numbers in their shortest
// round-tripping form.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return canon, nil
}

// Hash returns the lowercase hex SHA-256 digest of the JCS-canonical form of v.
func Hash(v any) (string, error) {
	canon, err := JCS(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes, used when
// the caller has already produced canonical bytes (e.g. chaining a prior
// entry's hash into the next entry without re-marshalling it).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
