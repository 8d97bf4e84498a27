package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/ir"
)

// ReplicaURL is the address a Replica reports.
const ReplicaURL = "http://replica.test"

// Handler answers one method call with an encoded reply.
type Handler func(arg []byte) ([]byte, error)

// Call is one request seen by a Replica.
type Call struct {
	Kind      string // query, update, submit_query or submit_call
	Canister  ir.Principal
	Effective ir.Principal
	Method    string
	Arg       []byte
}

// Replica is an in-memory replica. Calls are answered by per-method
// handlers, and requests are signed with the anonymous identity on a
// DeterministicClock with counter nonces.
type Replica struct {
	Clock  *DeterministicClock
	signer *agent.Signer

	mu       sync.Mutex
	calls    []Call
	handlers map[string]Handler
	pending  map[agent.RequestID]agent.Request
	cert     *agent.Certificate
}

// NewReplica returns a replica with no methods.
func NewReplica() *Replica {
	clock := NewDeterministicClock()
	return &Replica{
		Clock: clock,
		signer: agent.NewSigner(agent.AnonymousIdentity{},
			agent.WithClock(clock.Now),
			agent.WithNonce(CounterNonce()),
		),
		handlers: map[string]Handler{},
		pending:  map[agent.RequestID]agent.Request{},
	}
}

// Handle installs fn for method on every canister.
func (r *Replica) Handle(method string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = fn
}

// Reply makes method answer with vals encoded by their own types.
func (r *Replica) Reply(method string, vals ...ir.Value) {
	r.Handle(method, func([]byte) ([]byte, error) { return candid.EncodeInferred(vals) })
}

// Reject makes method fail with msg.
func (r *Replica) Reject(method, msg string) {
	r.Handle(method, func([]byte) ([]byte, error) {
		return nil, &agent.RejectError{Code: 4, Message: msg}
	})
}

// ServeState makes ReadState return cert.
func (r *Replica) ServeState(cert *agent.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cert = cert
}

// Calls returns the requests seen so far, oldest first.
func (r *Replica) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Replica) dispatch(kind string, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Kind: kind, Canister: canister, Effective: effective, Method: method, Arg: arg})
	fn, ok := r.handlers[method]
	r.mu.Unlock()
	if !ok {
		return nil, &agent.RejectError{Code: 3, Message: fmt.Sprintf("canister has no method %s", method)}
	}
	return fn(arg)
}

func (r *Replica) URL() string { return ReplicaURL }

func (r *Replica) Query(_ context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	return r.dispatch("query", canister, effective, method, arg)
}

func (r *Replica) Update(_ context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	return r.dispatch("update", canister, effective, method, arg)
}

func (r *Replica) ReadState(context.Context, ir.Principal, [][][]byte) (*agent.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cert == nil {
		return nil, errors.New("read_state is not served")
	}
	return r.cert, nil
}

func (r *Replica) SignQuery(canister ir.Principal, method string, arg []byte) (agent.Signed, error) {
	return r.signer.SignQuery(canister, method, arg)
}

func (r *Replica) SignUpdate(canister ir.Principal, method string, arg []byte) (agent.Signed, error) {
	return r.signer.SignUpdate(canister, method, arg)
}

func (r *Replica) SignRequestStatus(id agent.RequestID) (agent.Signed, error) {
	return r.signer.SignRequestStatus(id)
}

func (r *Replica) SubmitQuery(_ context.Context, effective ir.Principal, envelope []byte) ([]byte, error) {
	env, err := agent.UnmarshalEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	canister, err := env.Content.Canister()
	if err != nil {
		return nil, err
	}
	return r.dispatch("submit_query", canister, effective, env.Content.MethodName, env.Content.Arg)
}

func (r *Replica) SubmitCall(_ context.Context, _ ir.Principal, envelope []byte) error {
	env, err := agent.UnmarshalEnvelope(envelope)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[env.Content.ID()] = env.Content
	return nil
}

func (r *Replica) PollSigned(_ context.Context, effective ir.Principal, id agent.RequestID, _ []byte) ([]byte, error) {
	r.mu.Lock()
	req, ok := r.pending[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("request %s was never submitted", id)
	}
	canister, err := req.Canister()
	if err != nil {
		return nil, err
	}
	return r.dispatch("submit_call", canister, effective, req.MethodName, req.Arg)
}
