package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes H(v): the SHA-256 hex digest of the canonical bytes of v,
// without any trailing newline.
func Hash(v Value) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashExcluding computes H_excluding(obj, fields): the SHA-256 hex digest of
// obj's canonical bytes with the named top-level fields replaced by null.
// obj is not mutated; a shallow copy is hashed instead.
func HashExcluding(obj Object, fields ...string) (string, error) {
	copyObj := make(Object, len(obj))
	for k, v := range obj {
		copyObj[k] = v
	}
	for _, f := range fields {
		copyObj[f] = Null{}
	}
	return Hash(copyObj)
}

// HashBytes is the raw SHA-256 hex digest of arbitrary bytes (used for input
// manifest entries over file contents, not over canonical Values).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
