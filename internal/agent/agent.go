package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aviate-labs/leb128"

	"github.com/roach88/icrepl/internal/ir"
)

// DefaultPollInterval is the delay between request status polls.
const DefaultPollInterval = 500 * time.Millisecond

// RejectError is a rejection returned by the replica.
type RejectError struct {
	Code    uint64
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("the replica returned a rejection error: reject code %d, reject message %s", e.Code, e.Message)
}

// HTTPError is a non-success HTTP response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Agent talks to a replica over HTTP.
type Agent struct {
	url    string
	client *http.Client
	signer *Signer
	poll   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	verifier Verifier
}

// Option configures an Agent.
type Option func(*Agent)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) { a.poll = d }
}

// WithVerifier sets how read_state certificates are checked. Mainnet
// URLs default to MainnetRootKey; other replicas have their root key
// fetched on first use.
func WithVerifier(v Verifier) Option {
	return func(a *Agent) { a.verifier = v }
}

// WithRootKey trusts the DER-encoded root key der.
func WithRootKey(der []byte) Option {
	return WithVerifier(RootKeyVerifier{RootKey: der})
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New returns an agent for the replica at url.
func New(url string, signer *Signer, opts ...Option) *Agent {
	a := &Agent{
		url:    strings.TrimSuffix(url, "/"),
		client: http.DefaultClient,
		signer: signer,
		poll:   DefaultPollInterval,
		logger: slog.Default(),
	}
	if IsMainnet(url) {
		a.verifier = RootKeyVerifier{RootKey: MainnetRootKey}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// URL returns the replica URL.
func (a *Agent) URL() string { return a.url }

// Signer returns the signer used for requests.
func (a *Agent) Signer() *Signer { return a.signer }

// SignQuery signs a query without sending it.
func (a *Agent) SignQuery(canister ir.Principal, method string, arg []byte) (Signed, error) {
	return a.signer.SignQuery(canister, method, arg)
}

// SignUpdate signs an update call without sending it.
func (a *Agent) SignUpdate(canister ir.Principal, method string, arg []byte) (Signed, error) {
	return a.signer.SignUpdate(canister, method, arg)
}

// SignRequestStatus signs the status poll for a previously signed update.
func (a *Agent) SignRequestStatus(id RequestID) (Signed, error) {
	return a.signer.SignRequestStatus(id)
}

// Query performs a query call and returns the reply argument bytes.
func (a *Agent) Query(ctx context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	signed, err := a.signer.SignQuery(canister, method, arg)
	if err != nil {
		return nil, err
	}
	return a.SubmitQuery(ctx, effective, signed.Envelope)
}

// Update performs an update call and waits for its reply.
func (a *Agent) Update(ctx context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	signed, err := a.signer.SignUpdate(canister, method, arg)
	if err != nil {
		return nil, err
	}
	if err := a.SubmitCall(ctx, effective, signed.Envelope); err != nil {
		return nil, err
	}
	return a.wait(ctx, effective, signed.RequestID, func() ([]byte, error) {
		s, err := a.signer.SignRequestStatus(signed.RequestID)
		return s.Envelope, err
	})
}

// ReadState fetches a certificate covering paths.
func (a *Agent) ReadState(ctx context.Context, effective ir.Principal, paths [][][]byte) (*Certificate, error) {
	signed, err := a.signer.SignReadState(paths)
	if err != nil {
		return nil, err
	}
	return a.readStateSigned(ctx, effective, signed.Envelope)
}

type queryResponse struct {
	Status        string    `cbor:"status"`
	Reply         replyWire `cbor:"reply"`
	RejectCode    uint64    `cbor:"reject_code"`
	RejectMessage string    `cbor:"reject_message"`
}

type replyWire struct {
	Arg []byte `cbor:"arg"`
}

// SubmitQuery sends a signed query envelope.
func (a *Agent) SubmitQuery(ctx context.Context, effective ir.Principal, envelope []byte) ([]byte, error) {
	body, err := a.post(ctx, effective, "query", envelope)
	if err != nil {
		return nil, err
	}
	var resp queryResponse
	if err := unmarshalCBOR(body, &resp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	switch resp.Status {
	case "replied":
		return resp.Reply.Arg, nil
	case "rejected":
		return nil, &RejectError{Code: resp.RejectCode, Message: resp.RejectMessage}
	}
	return nil, fmt.Errorf("unexpected query status %q", resp.Status)
}

// SubmitCall sends a signed update envelope without waiting for the reply.
func (a *Agent) SubmitCall(ctx context.Context, effective ir.Principal, envelope []byte) error {
	_, err := a.post(ctx, effective, "call", envelope)
	return err
}

// PollSigned waits for the reply of id using a pre-signed request status
// envelope, as produced in offline mode.
func (a *Agent) PollSigned(ctx context.Context, effective ir.Principal, id RequestID, statusEnvelope []byte) ([]byte, error) {
	return a.wait(ctx, effective, id, func() ([]byte, error) { return statusEnvelope, nil })
}

func (a *Agent) readStateSigned(ctx context.Context, effective ir.Principal, envelope []byte) (*Certificate, error) {
	body, err := a.post(ctx, effective, "read_state", envelope)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Certificate []byte `cbor:"certificate"`
	}
	if err := unmarshalCBOR(body, &resp); err != nil {
		return nil, fmt.Errorf("decode read_state response: %w", err)
	}
	if err := a.verify(ctx, resp.Certificate, effective); err != nil {
		return nil, err
	}
	return ParseCertificate(resp.Certificate)
}

// wait polls the request status of id until it is replied or rejected.
func (a *Agent) wait(ctx context.Context, effective ir.Principal, id RequestID, envelope func() ([]byte, error)) ([]byte, error) {
	prefix := [][]byte{[]byte("request_status"), id[:]}
	path := func(leaf string) [][]byte { return append(append([][]byte{}, prefix...), []byte(leaf)) }
	for {
		env, err := envelope()
		if err != nil {
			return nil, err
		}
		cert, err := a.readStateSigned(ctx, effective, env)
		if err != nil {
			return nil, err
		}
		status, found := cert.Lookup(path("status")...)
		a.logger.Debug("request status", "request_id", id.String(), "status", string(status), "lookup", found.String())
		if found == LookupFound {
			switch string(status) {
			case "replied":
				reply, ok := cert.Lookup(path("reply")...)
				if ok != LookupFound {
					return nil, fmt.Errorf("request %s replied without a reply", id)
				}
				return reply, nil
			case "rejected":
				return nil, rejectFromCertificate(cert, path)
			case "done":
				return nil, fmt.Errorf("request %s is done and its reply was pruned", id)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.poll):
		}
	}
}

func rejectFromCertificate(cert *Certificate, path func(string) [][]byte) error {
	e := &RejectError{}
	if code, ok := cert.Lookup(path("reject_code")...); ok == LookupFound {
		n, err := readULEB(code)
		if err != nil {
			return fmt.Errorf("decode reject_code: %w", err)
		}
		e.Code = n
	}
	if msg, ok := cert.Lookup(path("reject_message")...); ok == LookupFound {
		e.Message = string(msg)
	}
	return e
}

func (a *Agent) post(ctx context.Context, effective ir.Principal, endpoint string, envelope []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v2/canister/%s/%s", a.url, effective, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/cbor")
	a.logger.Debug("replica request", "endpoint", endpoint, "canister", effective.String(), "bytes", len(envelope))
	return a.do(req)
}

func (a *Agent) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func readULEB(b []byte) (uint64, error) {
	v, err := leb128.DecodeUnsigned(bytes.NewReader(b))
	if err != nil || !v.IsUint64() {
		return 0, fmt.Errorf("invalid LEB128 %x", b)
	}
	return v.Uint64(), nil
}
