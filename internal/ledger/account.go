// Package ledger derives ICP ledger account identifiers.
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"

	"github.com/roach88/icrepl/internal/ir"
)

// Governance is the NNS governance canister, owner of neuron accounts.
var Governance = ir.MustDecodePrincipal("rrkah-fqaaa-aaaaa-aaaaq-cai")

// Subaccount selects one of an owner's accounts.
type Subaccount [32]byte

// AccountIdentifier is a CRC32 checksum followed by a SHA-224 digest of
// the owner and subaccount.
type AccountIdentifier [32]byte

// ParseSubaccount checks that b is exactly 32 bytes.
func ParseSubaccount(b []byte) (Subaccount, error) {
	var s Subaccount
	if len(b) != len(s) {
		return s, fmt.Errorf("subaccount must be 32 bytes, got %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

// PrincipalSubaccount embeds a principal into a subaccount: one length
// byte followed by the principal bytes, zero padded.
func PrincipalSubaccount(p ir.Principal) Subaccount {
	var s Subaccount
	s[0] = byte(len(p.Raw))
	copy(s[1:], p.Raw)
	return s
}

// NeuronSubaccount is the governance subaccount staking a neuron for
// controller with the given memo nonce.
func NeuronSubaccount(controller ir.Principal, nonce uint64) Subaccount {
	h := sha256.New()
	h.Write([]byte{0x0c})
	h.Write([]byte("neuron-stake"))
	h.Write(controller.Raw)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])
	var s Subaccount
	copy(s[:], h.Sum(nil))
	return s
}

// NewAccountIdentifier derives the account of owner. A nil subaccount is
// the default (all zero) subaccount.
func NewAccountIdentifier(owner ir.Principal, sub *Subaccount) AccountIdentifier {
	if sub == nil {
		sub = &Subaccount{}
	}
	return AccountIdentifier(principal.NewAccountID(principal.Principal{Raw: owner.Raw}, [32]byte(*sub)).Bytes())
}

// NeuronAccount is the ledger account funding a neuron.
func NeuronAccount(controller ir.Principal, nonce uint64) AccountIdentifier {
	sub := NeuronSubaccount(controller, nonce)
	return NewAccountIdentifier(Governance, &sub)
}

// String returns the account as lowercase hex.
func (a AccountIdentifier) String() string { return hex.EncodeToString(a[:]) }
