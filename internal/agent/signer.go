package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/icrepl/internal/ir"
)

// DefaultIngressExpiry is how far in the future signed requests expire.
const DefaultIngressExpiry = 4 * time.Minute

// Signed is a signed envelope together with its request id.
type Signed struct {
	RequestID RequestID
	Envelope  []byte
}

// Signer builds and signs request envelopes.
type Signer struct {
	identity Identity
	now      func() time.Time
	expiry   time.Duration
	nonce    func() ([]byte, error)
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock sets the time source used for ingress expiry.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// WithIngressExpiry overrides DefaultIngressExpiry.
func WithIngressExpiry(d time.Duration) SignerOption {
	return func(s *Signer) { s.expiry = d }
}

// WithNonce sets the nonce source for update calls.
func WithNonce(nonce func() ([]byte, error)) SignerOption {
	return func(s *Signer) { s.nonce = nonce }
}

// NewSigner returns a signer for id. Update calls get a UUIDv7 nonce.
func NewSigner(id Identity, opts ...SignerOption) *Signer {
	s := &Signer{
		identity: id,
		now:      time.Now,
		expiry:   DefaultIngressExpiry,
		nonce: func() ([]byte, error) {
			u, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			return u[:], nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sender returns the principal requests are signed for.
func (s *Signer) Sender() ir.Principal { return s.identity.Sender() }

func (s *Signer) base(t RequestType) Request {
	return Request{
		Type:          t,
		Sender:        s.identity.Sender().Raw,
		IngressExpiry: uint64(s.now().Add(s.expiry).UnixNano()),
	}
}

// SignQuery signs a query call.
func (s *Signer) SignQuery(canister ir.Principal, method string, arg []byte) (Signed, error) {
	r := s.base(RequestQuery)
	r.CanisterID = principalBytes(canister)
	r.MethodName = method
	r.Arg = arg
	return s.Sign(r)
}

// SignUpdate signs an update call.
func (s *Signer) SignUpdate(canister ir.Principal, method string, arg []byte) (Signed, error) {
	r := s.base(RequestCall)
	r.CanisterID = principalBytes(canister)
	r.MethodName = method
	r.Arg = arg
	nonce, err := s.nonce()
	if err != nil {
		return Signed{}, fmt.Errorf("nonce: %w", err)
	}
	r.Nonce = nonce
	return s.Sign(r)
}

// SignReadState signs a read_state request for paths.
func (s *Signer) SignReadState(paths [][][]byte) (Signed, error) {
	r := s.base(RequestReadState)
	r.Paths = paths
	return s.Sign(r)
}

// SignRequestStatus signs the read_state request that polls the status of id.
func (s *Signer) SignRequestStatus(id RequestID) (Signed, error) {
	return s.SignReadState(requestStatusPaths(id))
}

// Sign signs arbitrary request content.
func (s *Signer) Sign(r Request) (Signed, error) {
	id := r.ID()
	env := Envelope{Content: r}
	if pub := s.identity.PublicKey(); pub != nil {
		msg := append(append([]byte{}, requestDomain...), id[:]...)
		sig, err := s.identity.Sign(msg)
		if err != nil {
			return Signed{}, fmt.Errorf("sign request: %w", err)
		}
		env.SenderPubkey = pub
		env.SenderSig = sig
	}
	data, err := MarshalEnvelope(env)
	if err != nil {
		return Signed{}, fmt.Errorf("encode envelope: %w", err)
	}
	return Signed{RequestID: id, Envelope: data}, nil
}

func requestStatusPaths(id RequestID) [][][]byte {
	return [][][]byte{{[]byte("request_status"), id[:]}}
}

// principalBytes returns raw principal bytes, never nil.
func principalBytes(p ir.Principal) []byte {
	if p.Raw == nil {
		return []byte{}
	}
	return p.Raw
}
