package agent

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/icrepl/internal/ir"
)

// Identity signs requests on behalf of a sender principal.
type Identity interface {
	Sender() ir.Principal
	// PublicKey returns the DER encoded public key, or nil for anonymous.
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
}

// AnonymousIdentity sends unsigned requests as the anonymous principal.
type AnonymousIdentity struct{}

func (AnonymousIdentity) Sender() ir.Principal        { return ir.AnonymousPrincipal() }
func (AnonymousIdentity) PublicKey() []byte           { return nil }
func (AnonymousIdentity) Sign([]byte) ([]byte, error) { return nil, nil }

// ed25519DERPrefix is the SubjectPublicKeyInfo header for an Ed25519 key.
var ed25519DERPrefix = []byte{0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00}

// Ed25519Identity signs with an Ed25519 key.
type Ed25519Identity struct {
	key    ed25519.PrivateKey
	der    []byte
	sender ir.Principal
}

// NewEd25519Identity derives an identity from a 32 byte seed.
func NewEd25519Identity(seed []byte) (*Ed25519Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	der := append(bytes.Clone(ed25519DERPrefix), key.Public().(ed25519.PublicKey)...)
	return &Ed25519Identity{key: key, der: der, sender: ir.SelfAuthenticating(der)}, nil
}

func (id *Ed25519Identity) Sender() ir.Principal { return id.sender }
func (id *Ed25519Identity) PublicKey() []byte    { return id.der }

func (id *Ed25519Identity) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.key, msg), nil
}

// LoadPEM reads an Ed25519 identity from a PEM file in PKCS#8 form.
func LoadPEM(path string) (*Ed25519Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	id, err := ParsePEM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return id, nil
}

// ParsePEM decodes an Ed25519 private key. Both the plain PKCS#8 layout
// and the variant carrying the public key (as written by dfx) are accepted.
func ParsePEM(data []byte) (*Ed25519Identity, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type == "EC PRIVATE KEY" {
		return nil, errors.New("secp256k1 identities are not supported")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ed, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return NewEd25519Identity(ed.Seed())
	}
	// OCTET STRING { OCTET STRING (32) } holding the seed
	marker := []byte{0x04, 0x22, 0x04, 0x20}
	i := bytes.Index(block.Bytes, marker)
	if i < 0 || len(block.Bytes) < i+len(marker)+ed25519.SeedSize {
		return nil, errors.New("not an Ed25519 private key")
	}
	start := i + len(marker)
	return NewEd25519Identity(block.Bytes[start : start+ed25519.SeedSize])
}
