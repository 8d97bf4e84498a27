package agent

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/icrepl/internal/ir"
)

// RequestType is the request_type field of an envelope.
type RequestType string

const (
	RequestCall      RequestType = "call"
	RequestQuery     RequestType = "query"
	RequestReadState RequestType = "read_state"
)

var errInvalidRequestID = errors.New("request id must be 32 bytes")

// Request is the content of an envelope. Nil fields are omitted both from
// the encoding and from the request id; an empty CanisterID addresses the
// management canister.
type Request struct {
	Type          RequestType `cbor:"request_type"`
	CanisterID    []byte      `cbor:"canister_id"`
	MethodName    string      `cbor:"method_name"`
	Arg           []byte      `cbor:"arg"`
	Sender        []byte      `cbor:"sender"`
	IngressExpiry uint64      `cbor:"ingress_expiry"`
	Nonce         []byte      `cbor:"nonce"`
	Paths         [][][]byte  `cbor:"paths"`
}

// MarshalCBOR writes the request as a map holding only the present fields.
func (r Request) MarshalCBOR() ([]byte, error) {
	m := map[string]any{
		"request_type":   string(r.Type),
		"sender":         r.Sender,
		"ingress_expiry": r.IngressExpiry,
	}
	if r.CanisterID != nil {
		m["canister_id"] = r.CanisterID
	}
	if r.MethodName != "" {
		m["method_name"] = r.MethodName
	}
	if r.Arg != nil {
		m["arg"] = r.Arg
	}
	if r.Nonce != nil {
		m["nonce"] = r.Nonce
	}
	if r.Paths != nil {
		m["paths"] = r.Paths
	}
	return encMode.Marshal(m)
}

// Envelope wraps request content with the sender's key and signature.
type Envelope struct {
	Content      Request `cbor:"content"`
	SenderPubkey []byte  `cbor:"sender_pubkey,omitempty"`
	SenderSig    []byte  `cbor:"sender_sig,omitempty"`
}

// selfDescribeTag marks a CBOR document as CBOR.
const selfDescribeTag = 55799

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxNestedLevels: 64}).DecMode(); err != nil {
		panic(err)
	}
}

// MarshalEnvelope encodes e as self-described CBOR.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	return encMode.Marshal(cbor.Tag{Number: selfDescribeTag, Content: e})
}

// UnmarshalEnvelope decodes a signed envelope.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := unmarshalCBOR(data, &e); err != nil {
		return e, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// unmarshalCBOR decodes data, skipping a leading self-describe tag.
func unmarshalCBOR(data []byte, v any) error {
	data = bytes.TrimPrefix(data, []byte{0xd9, 0xd9, 0xf7})
	return decMode.Unmarshal(data, v)
}

// Canister returns the target canister of a call or query request.
func (r Request) Canister() (ir.Principal, error) {
	if r.CanisterID == nil {
		return ir.Principal{}, fmt.Errorf("%s request has no canister_id", r.Type)
	}
	return ir.Principal{Raw: bytes.Clone(r.CanisterID)}, nil
}
