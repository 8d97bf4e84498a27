package agent

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aviate-labs/agent-go/certification"
	"github.com/aviate-labs/agent-go/principal"

	"github.com/roach88/icrepl/internal/ir"
)

// MainnetRootKey is the DER-encoded BLS public key of the IC root subnet.
var MainnetRootKey = mustDecodeHex("308182301d060d2b0601040182dc7c0503010201060c2b0601040182dc7c05030201036100814c0e6ec71fab583b08bd81373c255c3c371b2e84863c98a4f1e08b74235d14fb5d9c0cd546d9685f913a0c0b2cc5341583bf4b4392e467db96d65b9bb4cb717112f8472e0d5a4d14505ffd7484b01291091c5f87b98883463f98091a0baaae")

// ErrUntrustedCertificate is returned for certificates that fail
// verification.
var ErrUntrustedCertificate = errors.New("certificate verification failed")

// Verifier checks that a certificate was signed by the network and may
// speak for canister.
type Verifier interface {
	Verify(raw []byte, canister ir.Principal) error
}

// RootKeyVerifier checks the BLS signature of a certificate against
// RootKey, following a subnet delegation when there is one.
type RootKeyVerifier struct {
	RootKey []byte
}

// Verify implements Verifier.
func (v RootKeyVerifier) Verify(raw []byte, canister ir.Principal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUntrustedCertificate, r)
		}
	}()
	var cert certification.Certificate
	if err := unmarshalCBOR(raw, &cert); err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedCertificate, err)
	}
	if err := certification.VerifyCertificate(cert, principal.Principal{Raw: canister.Raw}, v.RootKey); err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedCertificate, err)
	}
	return nil
}

// IsMainnet reports whether rawURL points at an IC mainnet boundary node.
func IsMainnet(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, domain := range []string{"icp0.io", "ic0.app", "icp-api.io"} {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// FetchRootKey reads the root key a replica advertises on its status
// endpoint. Only local replicas should be trusted this way.
func (a *Agent) FetchRootKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/api/v2/status", nil)
	if err != nil {
		return nil, err
	}
	body, err := a.do(req)
	if err != nil {
		return nil, err
	}
	var status struct {
		RootKey []byte `cbor:"root_key"`
	}
	if err := unmarshalCBOR(body, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if len(status.RootKey) == 0 {
		return nil, errors.New("replica status has no root key")
	}
	a.logger.Debug("fetched root key", "url", a.url)
	return status.RootKey, nil
}

// verify checks raw with the configured verifier, fetching the root key
// from the replica on first use when none was configured.
func (a *Agent) verify(ctx context.Context, raw []byte, canister ir.Principal) error {
	a.mu.Lock()
	v := a.verifier
	a.mu.Unlock()
	if v == nil {
		key, err := a.FetchRootKey(ctx)
		if err != nil {
			return fmt.Errorf("fetch root key: %w", err)
		}
		a.mu.Lock()
		if a.verifier == nil {
			a.verifier = RootKeyVerifier{RootKey: key}
		}
		v = a.verifier
		a.mu.Unlock()
	}
	return v.Verify(raw, canister)
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
