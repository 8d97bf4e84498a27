package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed message identity.
const (
	DomainMessage = "icrepl/message/v1"
)

// hashWithDomain computes SHA-256 over domain + 0x00 + data.
// The null byte separates the domain from the data unambiguously.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageDigest computes a content address for a signed message.
// Identical envelopes always share a digest, so persisting a batch twice
// stores each message once.
func MessageDigest(m Message) (string, error) {
	canonical, err := MarshalCanonical(m.object())
	if err != nil {
		return "", fmt.Errorf("MessageDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}
