package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
)

const (
	greeterID = "rrkah-fqaaa-aaaaa-aaaaq-cai"
	walletID  = "ryjl3-tyaaa-aaaaa-aaaba-cai"
)

const greeterDID = `service : {
  greet : (text) -> (text) query;
  inc : (nat) -> (nat);
}`

const walletDID = `service : {
  wallet_call : (record { canister : principal; method_name : text; args : blob; cycles : nat64 }) ->
    (variant { Ok : record { return : blob }; Err : text });
}`

// replicaCall is one request seen by fakeReplica.
type replicaCall struct {
	kind      string
	canister  ir.Principal
	effective ir.Principal
	method    string
	arg       []byte
}

// fakeReplica answers calls from per-method handlers and signs with the
// anonymous identity at a fixed time.
type fakeReplica struct {
	signer *agent.Signer

	mu       sync.Mutex
	calls    []replicaCall
	handlers map[string]func(arg []byte) ([]byte, error)
	pending  map[agent.RequestID]agent.Request
}

func newFakeReplica() *fakeReplica {
	return &fakeReplica{
		signer: agent.NewSigner(agent.AnonymousIdentity{},
			agent.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
			agent.WithNonce(func() ([]byte, error) { return []byte{1, 2, 3, 4}, nil }),
		),
		handlers: map[string]func([]byte) ([]byte, error){},
		pending:  map[agent.RequestID]agent.Request{},
	}
}

func (r *fakeReplica) handle(method string, fn func(arg []byte) ([]byte, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = fn
}

// reply makes method answer with vals encoded by their own types.
func (r *fakeReplica) reply(method string, vals ...ir.Value) {
	r.handle(method, func([]byte) ([]byte, error) { return candid.EncodeInferred(vals) })
}

func (r *fakeReplica) dispatch(kind string, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, replicaCall{kind: kind, canister: canister, effective: effective, method: method, arg: arg})
	fn, ok := r.handlers[method]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("canister has no method %s", method)
	}
	return fn(arg)
}

func (r *fakeReplica) recorded() []replicaCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]replicaCall(nil), r.calls...)
}

func (r *fakeReplica) URL() string { return "http://replica.test" }

func (r *fakeReplica) Query(_ context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	return r.dispatch("query", canister, effective, method, arg)
}

func (r *fakeReplica) Update(_ context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error) {
	return r.dispatch("update", canister, effective, method, arg)
}

func (r *fakeReplica) ReadState(context.Context, ir.Principal, [][][]byte) (*agent.Certificate, error) {
	return nil, errors.New("read_state is not served")
}

func (r *fakeReplica) SignQuery(canister ir.Principal, method string, arg []byte) (agent.Signed, error) {
	return r.signer.SignQuery(canister, method, arg)
}

func (r *fakeReplica) SignUpdate(canister ir.Principal, method string, arg []byte) (agent.Signed, error) {
	return r.signer.SignUpdate(canister, method, arg)
}

func (r *fakeReplica) SignRequestStatus(id agent.RequestID) (agent.Signed, error) {
	return r.signer.SignRequestStatus(id)
}

func (r *fakeReplica) SubmitQuery(_ context.Context, effective ir.Principal, envelope []byte) ([]byte, error) {
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

func (r *fakeReplica) SubmitCall(_ context.Context, _ ir.Principal, envelope []byte) error {
	env, err := agent.UnmarshalEnvelope(envelope)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[env.Content.ID()] = env.Content
	return nil
}

func (r *fakeReplica) PollSigned(_ context.Context, effective ir.Principal, id agent.RequestID, _ []byte) ([]byte, error) {
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

// testCanisters serves the greeter and wallet interfaces.
func testCanisters(t *testing.T) iface.Static {
	t.Helper()
	greeter, err := compiler.ParseDID(greeterDID)
	require.NoError(t, err)
	wallet, err := compiler.ParseDID(walletDID)
	require.NoError(t, err)
	return iface.Static{
		greeterID: {Source: greeterDID, Interface: greeter},
		walletID:  {Source: walletDID, Interface: wallet},
	}
}

// newTestEnv returns a top-level scope over replica with the test
// canisters known. stdout collects show and exec output.
func newTestEnv(t *testing.T, replica Transport, opts ...Option) (*Env, *bytes.Buffer) {
	t.Helper()
	var stdout bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{
		WithCache(iface.NewCache(testCanisters(t), logger)),
		WithOutput(&stdout, io.Discard),
		WithLogger(logger),
		WithBaseDir(t.TempDir()),
		WithWorkDir(t.TempDir()),
	}
	s := NewSession(replica, append(base, opts...)...)
	t.Cleanup(s.Close)
	return NewEnv(s), &stdout
}

func evalOK(t *testing.T, env *Env, exp ir.Exp) ir.Value {
	t.Helper()
	v, err := Eval(context.Background(), env, exp)
	require.NoError(t, err)
	return v
}

func runOK(t *testing.T, env *Env, stmts ...ir.Stmt) {
	t.Helper()
	require.NoError(t, RunAll(context.Background(), env, stmts))
}

func num(s string) ir.ExpNumber { return ir.ExpNumber(s) }

func text(s string) ir.ExpText { return ir.ExpText(s) }

func textArg(t *testing.T, arg []byte) string {
	t.Helper()
	vals, err := candid.Decode(arg, nil, []ir.Type{ir.Prim(ir.TypeText)})
	require.NoError(t, err)
	return string(vals[0].(ir.Text))
}
