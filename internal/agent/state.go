package agent

import (
	"fmt"
	"strings"

	"github.com/roach88/icrepl/internal/ir"
)

// StatePath builds the labels of a read_state path:
//
//	time
//	canister <id> controllers | module_hash | metadata/<name>
//	subnet <id> public_key | canister_ranges
func StatePath(prefix string, id ir.Principal, path string) ([][]byte, error) {
	switch prefix {
	case "time":
		return [][]byte{[]byte("time")}, nil
	case "canister":
		labels := [][]byte{[]byte("canister"), principalBytes(id)}
		switch {
		case path == "controllers" || path == "module_hash":
			return append(labels, []byte(path)), nil
		case strings.HasPrefix(path, "metadata/"):
			return append(labels, []byte("metadata"), []byte(strings.TrimPrefix(path, "metadata/"))), nil
		}
	case "subnet":
		if path == "public_key" || path == "canister_ranges" {
			return [][]byte{[]byte("subnet"), principalBytes(id), []byte(path)}, nil
		}
	default:
		return nil, fmt.Errorf("unknown state prefix %q", prefix)
	}
	return nil, fmt.Errorf("unknown %s path %q", prefix, path)
}

// DecodeTime reads the LEB128 nanosecond timestamp of the time path.
func DecodeTime(leaf []byte) (uint64, error) {
	return readULEB(leaf)
}

// DecodeControllers reads the CBOR list of controller principals.
func DecodeControllers(leaf []byte) ([]ir.Principal, error) {
	var raw [][]byte
	if err := unmarshalCBOR(leaf, &raw); err != nil {
		return nil, fmt.Errorf("decode controllers: %w", err)
	}
	out := make([]ir.Principal, len(raw))
	for i, r := range raw {
		out[i] = ir.Principal{Raw: r}
	}
	return out, nil
}

// DecodeCanisterRanges reads the CBOR list of [start, end] canister ranges.
func DecodeCanisterRanges(leaf []byte) ([][2]ir.Principal, error) {
	var raw [][][]byte
	if err := unmarshalCBOR(leaf, &raw); err != nil {
		return nil, fmt.Errorf("decode canister ranges: %w", err)
	}
	out := make([][2]ir.Principal, len(raw))
	for i, r := range raw {
		if len(r) != 2 {
			return nil, fmt.Errorf("canister range %d has %d bounds", i, len(r))
		}
		out[i] = [2]ir.Principal{{Raw: r[0]}, {Raw: r[1]}}
	}
	return out, nil
}

// EncodeCBOR marshals v deterministically, for fake replicas and tests.
func EncodeCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}
