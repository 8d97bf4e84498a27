package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
)

// unknownID is a canister without a known interface.
var unknownID = ir.Principal{Raw: []byte{0, 0, 0, 0, 0, 0, 0, 9, 1, 1}}.String()

func greetHandler(t *testing.T) func([]byte) ([]byte, error) {
	return func(arg []byte) ([]byte, error) {
		return candid.EncodeInferred([]ir.Value{ir.Text("hello " + textArg(t, arg))})
	}
}

func incHandler(t *testing.T) func([]byte) ([]byte, error) {
	return func(arg []byte) ([]byte, error) {
		vals, err := candid.Decode(arg, nil, []ir.Type{ir.Prim(ir.TypeNat)})
		require.NoError(t, err)
		next := ir.NatFromUint64(vals[0].(ir.Nat).Big().Uint64() + 1)
		return candid.Encode(nil, []ir.Type{ir.Prim(ir.TypeNat)}, []ir.Value{next})
	}
}

type memMessages struct{ entries []LoggedMessage }

func (m *memMessages) AppendMessage(_ context.Context, e LoggedMessage) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestCall_QueryUsesSignature(t *testing.T) {
	replica := newFakeReplica()
	replica.handle("greet", greetHandler(t))
	env, _ := newTestEnv(t, replica)

	runOK(t, env, ir.StmtLet{Name: "r", Exp: ir.Call(greeterID, "greet", text("bob"))})

	r, _ := env.Get("r")
	assert.Equal(t, ir.Text("hello bob"), r)
	last, _ := env.Get("_")
	assert.Equal(t, ir.Text("hello bob"), last)

	calls := replica.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "query", calls[0].kind)
	assert.Equal(t, greeterID, calls[0].canister.String())
	assert.Equal(t, greeterID, calls[0].effective.String())
}

func TestCall_UpdateDecodesTypedReply(t *testing.T) {
	replica := newFakeReplica()
	replica.handle("inc", incHandler(t))
	env, _ := newTestEnv(t, replica)

	v := evalOK(t, env, ir.Call(greeterID, "inc", num("41")))
	assert.True(t, ir.Equal(ir.NatFromUint64(42), v), "got %s", ir.Format(v))
	assert.Equal(t, "update", replica.recorded()[0].kind)
}

func TestCall_CanisterFromVariable(t *testing.T) {
	replica := newFakeReplica()
	replica.handle("greet", greetHandler(t))
	env, _ := newTestEnv(t, replica)
	env.Set("g", ir.Service{Principal: ir.MustDecodePrincipal(greeterID)})
	env.Set("s", ir.Text("nope"))

	v := evalOK(t, env, ir.Call("g", "greet", text("ann")))
	assert.Equal(t, ir.Text("hello ann"), v)

	_, err := Eval(context.Background(), env, ir.Call("s", "greet", text("ann")))
	require.Error(t, err)
	assert.Equal(t, "s is not a principal", err.Error())
	assert.Equal(t, ErrCodeResolution, CodeOf(err))
}

func TestCall_InferredTypesWithoutInterface(t *testing.T) {
	replica := newFakeReplica()
	replica.reply("echo", ir.Text("pong"), ir.Bool(true))
	env, _ := newTestEnv(t, replica)

	v := evalOK(t, env, ir.Call(unknownID, "echo", text("ping")))
	assert.True(t, ir.Equal(ir.Tuple(ir.Text("pong"), ir.Bool(true)), v), "got %s", ir.Format(v))

	calls := replica.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "update", calls[0].kind)
	assert.Equal(t, "ping", textArg(t, calls[0].arg))
}

func TestCall_MissingArguments(t *testing.T) {
	env, _ := newTestEnv(t, newFakeReplica())

	_, err := Eval(context.Background(), env, ir.ExpCall{Method: &ir.Method{Canister: greeterID, Method: "greet"}})
	require.Error(t, err)
	assert.Equal(t, "arguments required", err.Error())

	_, err = Eval(context.Background(), env, ir.ExpCall{Method: &ir.Method{Canister: unknownID, Method: "greet"}})
	require.Error(t, err)
	assert.Equal(t, "cannot get method type, please provide arguments", err.Error())
}

func TestCall_ArgumentTypeMismatch(t *testing.T) {
	env, _ := newTestEnv(t, newFakeReplica())

	_, err := Eval(context.Background(), env, ir.Call(greeterID, "greet", num("1")))
	require.Error(t, err)
	assert.Equal(t, ErrCodeSemantic, CodeOf(err))
}

func TestCall_TransportFailure(t *testing.T) {
	env, _ := newTestEnv(t, newFakeReplica())

	_, err := Eval(context.Background(), env, ir.Call(greeterID, "greet", text("x")))
	require.Error(t, err)
	assert.Equal(t, ErrCodeTransport, CodeOf(err))
	assert.Contains(t, err.Error(), "canister has no method greet")
}

func TestEffectiveID(t *testing.T) {
	fallback := ir.MustDecodePrincipal(walletID)
	s := NewSession(nil, WithDefaultEffectiveID(fallback))
	t.Cleanup(s.Close)
	target := ir.MustDecodePrincipal(greeterID)

	withTarget, err := candid.EncodeInferred([]ir.Value{ir.MustRecord(ir.F("canister_id", ir.PrincipalValue{Principal: target}))})
	require.NoError(t, err)
	noArgs, err := candid.EncodeInferred(nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		canister ir.Principal
		method   string
		arg      []byte
		want     ir.Principal
	}{
		{"ordinary canister", target, "greet", noArgs, target},
		{"management with canister_id", ir.ManagementCanister, "canister_status", withTarget, target},
		{"create_canister", ir.ManagementCanister, "create_canister", noArgs, fallback},
		{"raw_rand", ir.ManagementCanister, "raw_rand", noArgs, fallback},
		{"unknown management method", ir.ManagementCanister, "frobnicate", noArgs, fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.effectiveID(tt.canister, tt.method, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}

	_, err = s.effectiveID(ir.ManagementCanister, "install_code", noArgs)
	require.Error(t, err)
	assert.Equal(t, "install_code expects a record with a canister_id field", err.Error())
}

func TestOffline_SignsInsteadOfSending(t *testing.T) {
	replica := newFakeReplica()
	var sink bytes.Buffer
	store := &memMessages{}
	env, _ := newTestEnv(t, replica, WithOffline(&sink), WithMessageStore(store))

	runOK(t, env,
		ir.StmtLet{Name: "q", Exp: ir.Call(greeterID, "greet", text("bob"))},
		ir.StmtLet{Name: "u", Exp: ir.Call(greeterID, "inc", num("1"))},
	)
	assert.Empty(t, replica.recorded(), "offline calls reached the replica")

	q, _ := env.Get("q")
	assert.Equal(t, ir.Tuple(), q)

	msgs := env.Session().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].Seq)
	assert.Equal(t, int64(2), msgs[1].Seq)
	assert.Equal(t, msgs, store.entries)

	query := msgs[0].Message
	assert.True(t, query.IsQuery())
	assert.Nil(t, query.Ingress.RequestID)
	assert.Nil(t, query.RequestStatus)

	update := msgs[1].Message
	assert.Equal(t, ir.CallTypeUpdate, update.Ingress.CallType)
	require.NotNil(t, update.Ingress.RequestID)
	require.NotNil(t, update.RequestStatus)
	assert.Equal(t, *update.Ingress.RequestID, update.RequestStatus.RequestID)
	assert.Equal(t, greeterID, update.RequestStatus.CanisterID)

	raw, err := hex.DecodeString(update.Ingress.Content)
	require.NoError(t, err)
	envelope, err := agent.UnmarshalEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "inc", envelope.Content.MethodName)
	assert.Equal(t, *update.Ingress.RequestID, envelope.Content.ID().String())

	raw, err = hex.DecodeString(update.RequestStatus.Content)
	require.NoError(t, err)
	status, err := agent.UnmarshalEnvelope(raw)
	require.NoError(t, err)
	require.Len(t, status.Content.Paths, 1)
	assert.Equal(t, *update.Ingress.RequestID, hex.EncodeToString(status.Content.Paths[0][1]))

	lines := strings.Split(strings.TrimSpace(sink.String()), "\n")
	require.Len(t, lines, 2)
	var decoded ir.Message
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, update, decoded)
	assert.Contains(t, lines[0], `"request_id":null`)
	assert.Contains(t, lines[0], `"request_status":null`)
}

func TestOffline_ManagementRouting(t *testing.T) {
	replica := newFakeReplica()
	fallback := ir.MustDecodePrincipal(walletID)
	env, _ := newTestEnv(t, replica, WithOffline(io.Discard), WithDefaultEffectiveID(fallback))
	target := ir.MustDecodePrincipal(greeterID)

	runOK(t, env,
		ir.StmtLet{Name: "_", Exp: ir.Call("aaaaa-aa", "canister_status",
			ir.RecordExp(ir.FE("canister_id", ir.ExpPrincipal{Principal: target})))},
		ir.StmtLet{Name: "_", Exp: ir.Call("aaaaa-aa", "raw_rand")},
	)

	msgs := env.Session().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, greeterID, msgs[0].Message.RequestStatus.CanisterID)
	assert.Equal(t, walletID, msgs[1].Message.RequestStatus.CanisterID)
}

func TestOffline_RequiresSigner(t *testing.T) {
	env, _ := newTestEnv(t, nil, WithOffline(io.Discard))

	_, err := Eval(context.Background(), env, ir.Call(greeterID, "greet", text("x")))
	require.Error(t, err)
	assert.Equal(t, "no identity configured for signing", err.Error())
}

func TestSend_SubmitsSignedMessages(t *testing.T) {
	replica := newFakeReplica()
	replica.handle("greet", greetHandler(t))
	replica.handle("inc", incHandler(t))

	var sink bytes.Buffer
	offline, _ := newTestEnv(t, replica, WithOffline(&sink))
	runOK(t, offline,
		ir.StmtLet{Name: "_", Exp: ir.Call(greeterID, "greet", text("eve"))},
		ir.StmtLet{Name: "_", Exp: ir.Call(greeterID, "inc", num("9"))},
	)
	lines := strings.Split(strings.TrimSpace(sink.String()), "\n")
	require.Len(t, lines, 2)

	live, _ := newTestEnv(t, replica)
	v := evalOK(t, live, ir.Apply("send", ir.ExpBlob(lines[0])))
	assert.Equal(t, ir.Text("hello eve"), v)

	v = evalOK(t, live, ir.Apply("send", ir.ExpBlob(lines[1])))
	assert.True(t, ir.Equal(ir.NatFromUint64(10), v), "got %s", ir.Format(v))

	batch := "[" + strings.Join(lines, ",") + "]"
	v = evalOK(t, live, ir.Apply("send", ir.ExpBlob(batch)))
	assert.True(t, ir.Equal(ir.Tuple(ir.Text("hello eve"), ir.NatFromUint64(10)), v), "got %s", ir.Format(v))

	kinds := make([]string, 0, 4)
	for _, c := range replica.recorded() {
		kinds = append(kinds, c.kind)
	}
	assert.Equal(t, []string{"submit_query", "submit_call", "submit_query", "submit_call"}, kinds)
}

func TestSend_RejectsTamperedRequestID(t *testing.T) {
	replica := newFakeReplica()
	var sink bytes.Buffer
	offline, _ := newTestEnv(t, replica, WithOffline(&sink))
	runOK(t, offline, ir.StmtLet{Name: "_", Exp: ir.Call(greeterID, "inc", num("1"))})

	var m ir.Message
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(sink.Bytes()), &m))
	bad := strings.Repeat("00", 32)
	m.Ingress.RequestID = &bad
	data, err := json.Marshal(m)
	require.NoError(t, err)

	live, _ := newTestEnv(t, replica)
	_, err = Eval(context.Background(), live, ir.Apply("send", ir.ExpBlob(data)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request id mismatch")
}

func TestProxy_ForwardsThroughWallet(t *testing.T) {
	replica := newFakeReplica()
	canisters := testCanisters(t)
	wallet := canisters[walletID].Interface
	walletCall, ok := wallet.Method("wallet_call")
	require.True(t, ok)

	replica.handle("wallet_call", func(arg []byte) ([]byte, error) {
		vals, err := candid.DecodeUntyped(arg)
		require.NoError(t, err)
		req := vals[0].(ir.Record)
		method, _ := req.GetNamed("method_name")
		assert.Equal(t, ir.Text("greet"), method)
		forwarded, _ := req.GetNamed("args")
		b, _ := ir.BytesOf(forwarded)
		assert.Equal(t, "carol", textArg(t, b))

		inner, err := candid.EncodeInferred([]ir.Value{ir.Text("hello carol")})
		require.NoError(t, err)
		okReply := ir.Variant{Field: ir.F("Ok", ir.MustRecord(ir.F("return", ir.Blob(inner))))}
		reply, err := ir.Cast(wallet.Env, okReply, walletCall.Rets[0])
		require.NoError(t, err)
		return candid.Encode(wallet.Env, walletCall.Rets, []ir.Value{reply})
	})
	env, _ := newTestEnv(t, replica)

	v := evalOK(t, env, ir.ExpCall{
		Method: &ir.Method{Canister: greeterID, Method: "greet"},
		Args:   []ir.Exp{text("carol")},
		Mode:   ir.CallMode{Kind: ir.CallProxy, Relay: walletID},
	})
	assert.Equal(t, ir.Text("hello carol"), v)

	_, ok = env.Get("_msg")
	assert.False(t, ok, "proxy scope leaked into caller")

	calls := replica.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, walletID, calls[0].canister.String())
	assert.Equal(t, "update", calls[0].kind)
}

func TestProxy_UnknownRelay(t *testing.T) {
	env, _ := newTestEnv(t, newFakeReplica())

	_, err := Eval(context.Background(), env, ir.ExpCall{
		Method: &ir.Method{Canister: greeterID, Method: "greet"},
		Args:   []ir.Exp{text("carol")},
		Mode:   ir.CallMode{Kind: ir.CallProxy, Relay: unknownID},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), unknownID+" canister interface not found")
}

func TestProxy_RequiresMethod(t *testing.T) {
	env, _ := newTestEnv(t, newFakeReplica())

	var err error
	require.NotPanics(t, func() {
		_, err = Eval(context.Background(), env, ir.ExpCall{
			Args: []ir.Exp{text("carol")},
			Mode: ir.CallMode{Kind: ir.CallProxy, Relay: walletID},
		})
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeResolution, CodeOf(err))
	assert.Equal(t, "proxy call requires a method", err.Error())
}

func TestInitArgs_FromInterface(t *testing.T) {
	const did = `service : (record { owner : principal; limit : nat }) -> { get : () -> (nat) query }`
	parsed, err := compiler.ParseDID(did)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := iface.NewCache(iface.Static{greeterID: {Source: did, Interface: parsed}}, logger)
	env, _ := newTestEnv(t, nil, WithCache(cache))

	blob := evalOK(t, env, ir.ExpCall{
		Method: &ir.Method{Canister: greeterID, Method: ir.InitArgsMethod},
		Args: []ir.Exp{ir.RecordExp(
			ir.FE("owner", ir.ExpPrincipal{Principal: ir.AnonymousPrincipal()}),
			ir.FE("limit", num("3")),
		)},
		Mode: ir.CallMode{Kind: ir.CallEncode},
	})
	vals, err := candid.Decode(blob.(ir.Blob), parsed.Env, parsed.Init)
	require.NoError(t, err)
	limit, _ := vals[0].(ir.Record).GetNamed("limit")
	assert.True(t, ir.Equal(ir.NatFromUint64(3), limit))
}

// wasmWithSections builds a module holding only the given custom sections.
func wasmWithSections(sections map[string]string) []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	for _, name := range slices.Sorted(maps.Keys(sections)) {
		body := append([]byte{byte(len(name))}, name...)
		body = append(body, sections[name]...)
		out = append(out, 0x00)
		out = binary.AppendUvarint(out, uint64(len(body)))
		out = append(out, body...)
	}
	return out
}

func TestInitArgs_FromWasmMetadata(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	env.Set("wasm", ir.Blob(wasmWithSections(map[string]string{
		"icp:public candid:args":    "(record { limit : nat8 })",
		"icp:public candid:service": "service : { get : () -> (nat8) query }",
	})))

	blob := evalOK(t, env, ir.ExpCall{
		Method: &ir.Method{Canister: "wasm", Method: ir.InitArgsMethod},
		Args:   []ir.Exp{ir.RecordExp(ir.FE("limit", num("3")))},
		Mode:   ir.CallMode{Kind: ir.CallEncode},
	})
	vals, err := candid.DecodeUntyped(blob.(ir.Blob))
	require.NoError(t, err)
	limit, _ := vals[0].(ir.Record).GetNamed("limit")
	assert.Equal(t, ir.Nat8(3), limit)
}

func TestInitArgs_WasmWithoutMetadataInfersTypes(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	env.Set("wasm", ir.Blob(wasmWithSections(nil)))

	blob := evalOK(t, env, ir.ExpCall{
		Method: &ir.Method{Canister: "wasm", Method: ir.InitArgsMethod},
		Args:   []ir.Exp{num("3")},
		Mode:   ir.CallMode{Kind: ir.CallEncode},
	})
	vals, err := candid.DecodeUntyped(blob.(ir.Blob))
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.Number("3"), vals[0]))
}
