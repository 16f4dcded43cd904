package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

func HashString(s string) string {
	hasher := sha256.New()
	hasher.Write([]byte(s))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HashJSON hashes the canonical JSON encoding of v. Struct field order is
// fixed by the type, so equal values always produce equal digests.
func HashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value for hashing: %w", err)
	}
	return HashString(string(data)), nil
}
