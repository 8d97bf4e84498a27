package agent

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"slices"

	"github.com/aviate-labs/leb128"
)

// RequestID is the representation-independent hash of a request.
type RequestID [32]byte

// String returns the id as lowercase hex.
func (id RequestID) String() string { return hex.EncodeToString(id[:]) }

// ParseRequestID decodes a hex request id.
func ParseRequestID(s string) (RequestID, error) {
	var id RequestID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errInvalidRequestID
	}
	copy(id[:], b)
	return id, nil
}

// requestDomain prefixes the request id before signing.
var requestDomain = []byte("\x0Aic-request")

// ID computes the request id of r: every field is hashed as a key/value
// pair, the pairs are sorted and the concatenation is hashed again.
func (r Request) ID() RequestID {
	var pairs [][]byte
	add := func(key string, valueHash []byte) {
		k := sha256.Sum256([]byte(key))
		pairs = append(pairs, append(k[:], valueHash...))
	}
	add("request_type", hashBytes([]byte(r.Type)))
	add("sender", hashBytes(r.Sender))
	add("ingress_expiry", hashBytes(appendULEB(nil, r.IngressExpiry)))
	if r.CanisterID != nil {
		add("canister_id", hashBytes(r.CanisterID))
	}
	if r.MethodName != "" {
		add("method_name", hashBytes([]byte(r.MethodName)))
	}
	if r.Arg != nil {
		add("arg", hashBytes(r.Arg))
	}
	if r.Nonce != nil {
		add("nonce", hashBytes(r.Nonce))
	}
	if r.Paths != nil {
		var paths []byte
		for _, path := range r.Paths {
			var segs []byte
			for _, seg := range path {
				segs = append(segs, hashBytes(seg)...)
			}
			paths = append(paths, hashBytes(segs)...)
		}
		add("paths", hashBytes(paths))
	}
	slices.SortFunc(pairs, bytes.Compare)
	return RequestID(sha256.Sum256(bytes.Join(pairs, nil)))
}

func hashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func appendULEB(dst []byte, v uint64) []byte {
	b, _ := leb128.EncodeUnsigned(new(big.Int).SetUint64(v))
	return append(dst, b...)
}
