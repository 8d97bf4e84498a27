package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/icrepl/internal/ir"
)

// marshalMessage converts a message to canonical JSON TEXT for storage.
func marshalMessage(m ir.Message) (string, error) {
	data, err := ir.MarshalMessage(m)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return string(data), nil
}

// unmarshalMessage parses a stored message.
func unmarshalMessage(data string) (ir.Message, error) {
	var m ir.Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return ir.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return m, nil
}

// sourceHash fingerprints a Candid source so that unchanged interfaces are
// not rewritten.
func sourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
