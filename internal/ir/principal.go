package ir

import (
	"bytes"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"
)

// Principal is the address of a canister or user identity.
type Principal struct {
	Raw []byte
}

// ManagementCanister is the principal "aaaaa-aa".
var ManagementCanister = Principal{Raw: []byte{}}

// AnonymousPrincipal returns the anonymous principal "2vxsx-fae".
func AnonymousPrincipal() Principal {
	return Principal{Raw: []byte{0x04}}
}

// SelfAuthenticating derives the principal of a DER-encoded public key.
func SelfAuthenticating(derPublicKey []byte) Principal {
	return Principal{Raw: principal.NewSelfAuthenticating(derPublicKey).Raw}
}

// DecodePrincipal parses the textual representation of a principal. Only
// the canonical lowercase dash-grouped form is accepted.
func DecodePrincipal(text string) (Principal, error) {
	decoded, err := principal.Decode(text)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid principal %q: %w", text, err)
	}
	p := Principal{Raw: decoded.Raw}
	if p.String() != text {
		return Principal{}, fmt.Errorf("invalid principal %q: not in canonical form", text)
	}
	return p, nil
}

// MustDecodePrincipal is DecodePrincipal for constants.
func MustDecodePrincipal(text string) Principal {
	p, err := DecodePrincipal(text)
	if err != nil {
		panic(err)
	}
	return p
}

// String encodes the principal as dash-grouped lowercase base32 with a CRC32 prefix.
func (p Principal) String() string {
	return principal.Principal{Raw: p.Raw}.String()
}

// Equal compares raw bytes.
func (p Principal) Equal(o Principal) bool {
	return bytes.Equal(p.Raw, o.Raw)
}

// IsManagement reports whether p is the management canister.
func (p Principal) IsManagement() bool {
	return len(p.Raw) == 0
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	decoded, err := DecodePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
