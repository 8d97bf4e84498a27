package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/ledger"
)

func registerIC() {
	register(
		&builtin{name: "account", minArgs: 1, maxArgs: 2, usage: "account expects principal", strict: builtinAccount},
		&builtin{name: "subaccount", minArgs: 1, maxArgs: 1, usage: "subaccount expects principal", strict: builtinSubaccount},
		&builtin{name: "neuron_account", minArgs: 2, maxArgs: 2, usage: "neuron_account expects (principal, nonce)", strict: builtinNeuronAccount},
		&builtin{name: "replica_url", minArgs: 0, maxArgs: 0, usage: "replica_url expects no arguments", strict: builtinReplicaURL},
		&builtin{name: "read_state", minArgs: 1, maxArgs: -1, usage: readStateUsage, strict: builtinReadState},
		&builtin{name: "send", minArgs: 1, maxArgs: 1, usage: "send expects a json blob", strict: builtinSend},
		&builtin{name: "flamegraph", minArgs: 3, maxArgs: 3, usage: "flamegraph expects (canister id, title name, svg file name)", strict: builtinFlamegraph},
	)
}

const readStateUsage = "read_state expects ([effective_id,] prefix, principal, path, ...)"

func builtinAccount(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	p, ok := args[0].(ir.PrincipalValue)
	if !ok {
		return nil, argShape("account expects principal")
	}
	var sub *ledger.Subaccount
	if len(args) == 2 {
		b, ok := args[1].(ir.Blob)
		if !ok {
			return nil, argShape("account expects principal")
		}
		s, err := ledger.ParseSubaccount(b)
		if err != nil {
			return nil, semantic("%v", err)
		}
		sub = &s
	}
	id := ledger.NewAccountIdentifier(p.Principal, sub)
	return ir.Blob(id[:]), nil
}

func builtinSubaccount(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	p, ok := args[0].(ir.PrincipalValue)
	if !ok {
		return nil, argShape("subaccount expects principal")
	}
	sub := ledger.PrincipalSubaccount(p.Principal)
	return ir.Blob(sub[:]), nil
}

func builtinNeuronAccount(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	p, ok := args[0].(ir.PrincipalValue)
	if !ok {
		return nil, argShape("neuron_account expects (principal, nonce)")
	}
	var nonce uint64
	switch n := args[1].(type) {
	case ir.Nat64:
		nonce = uint64(n)
	case ir.Number:
		v, err := n.Big()
		if err != nil || !v.IsUint64() {
			return nil, argShape("neuron_account expects (principal, nonce)")
		}
		nonce = v.Uint64()
	default:
		return nil, argShape("neuron_account expects (principal, nonce)")
	}
	id := ledger.NeuronAccount(p.Principal, nonce)
	return ir.Blob(id[:]), nil
}

func builtinReplicaURL(_ context.Context, env *Env, _ []ir.Value) (ir.Value, error) {
	if env.session.transport == nil {
		return ir.Text(""), nil
	}
	return ir.Text(env.session.transport.URL()), nil
}

func (s *Session) requireOnline(name string) error {
	if s.offline {
		return semantic("%s is not available in offline mode", name)
	}
	if s.transport == nil {
		return newError(ErrCodeTransport, "no replica configured")
	}
	return nil
}

// builtinReadState reads a certified state path:
//
//	read_state("time")
//	read_state("canister", id, "metadata/candid:service")
//	read_state(effective, "subnet", subnet_id, "public_key")
func builtinReadState(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	s := env.session
	if err := s.requireOnline("read_state"); err != nil {
		return nil, err
	}
	var effective *ir.Principal
	if p, ok := args[0].(ir.PrincipalValue); ok {
		effective = &p.Principal
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, argShape(readStateUsage)
	}
	prefix, ok := args[0].(ir.Text)
	if !ok {
		return nil, argShape(readStateUsage)
	}
	var id ir.Principal
	var rest string
	if prefix != "time" {
		if len(args) < 3 {
			return nil, argShape(readStateUsage)
		}
		p, ok := args[1].(ir.PrincipalValue)
		if !ok {
			return nil, argShape(readStateUsage)
		}
		id = p.Principal
		parts := make([]string, 0, len(args)-2)
		for _, a := range args[2:] {
			t, ok := a.(ir.Text)
			if !ok {
				return nil, argShape(readStateUsage)
			}
			parts = append(parts, string(t))
		}
		rest = strings.Join(parts, "/")
	}
	path, err := agent.StatePath(string(prefix), id, rest)
	if err != nil {
		return nil, argShape("%v", err)
	}
	target := s.effective
	switch {
	case effective != nil:
		target = *effective
	case prefix == "canister":
		target = id
	}
	cert, err := s.transport.ReadState(ctx, target, [][][]byte{path})
	if err != nil {
		return nil, transport(err)
	}
	leaf, status := cert.Lookup(path...)
	if status != agent.LookupFound {
		return nil, semantic("state path %s is %s", strings.TrimSuffix(string(prefix)+"/"+rest, "/"), status)
	}
	return decodeStateLeaf(string(prefix), rest, leaf)
}

func decodeStateLeaf(prefix, path string, leaf []byte) (ir.Value, error) {
	switch {
	case prefix == "time":
		t, err := agent.DecodeTime(leaf)
		if err != nil {
			return nil, semantic("%v", err)
		}
		return ir.NatFromUint64(t), nil
	case path == "controllers":
		ps, err := agent.DecodeControllers(leaf)
		if err != nil {
			return nil, semantic("%v", err)
		}
		vec := make(ir.Vec, len(ps))
		for i, p := range ps {
			vec[i] = ir.PrincipalValue{Principal: p}
		}
		return vec, nil
	case path == "canister_ranges":
		ranges, err := agent.DecodeCanisterRanges(leaf)
		if err != nil {
			return nil, semantic("%v", err)
		}
		vec := make(ir.Vec, len(ranges))
		for i, r := range ranges {
			vec[i] = ir.Tuple(ir.PrincipalValue{Principal: r[0]}, ir.PrincipalValue{Principal: r[1]})
		}
		return vec, nil
	case strings.HasPrefix(path, "metadata/") && utf8.Valid(leaf):
		return ir.Text(leaf), nil
	}
	return ir.Blob(leaf), nil
}

// builtinSend submits messages signed earlier in offline mode. The blob
// holds one message as JSON, or an array of them.
func builtinSend(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	s := env.session
	if err := s.requireOnline("send"); err != nil {
		return nil, err
	}
	blob, ok := args[0].(ir.Blob)
	if !ok {
		return nil, argShape("send expects a json blob")
	}
	text := strings.TrimSpace(string(blob))
	switch {
	case strings.HasPrefix(text, "{"):
		var m ir.Message
		if err := json.Unmarshal(blob, &m); err != nil {
			return nil, semantic("invalid message: %v", err)
		}
		vals, err := s.send(ctx, m)
		if err != nil {
			return nil, err
		}
		return ir.ArgsToValue(vals), nil
	case strings.HasPrefix(text, "["):
		var ms []ir.Message
		if err := json.Unmarshal(blob, &ms); err != nil {
			return nil, semantic("invalid message: %v", err)
		}
		results := make([]ir.Value, len(ms))
		for i, m := range ms {
			s.logger.Info("sending message", "index", i+1, "total", len(ms), "url", s.transport.URL())
			vals, err := s.send(ctx, m)
			if err != nil {
				return nil, err
			}
			results[i] = ir.ArgsToValue(vals)
		}
		return ir.Tuple(results...), nil
	}
	return nil, argShape("not a valid json message")
}

// send submits one signed message and decodes its reply with the target
// method's return types when the interface is known.
func (s *Session) send(ctx context.Context, m ir.Message) ([]ir.Value, error) {
	envelope, err := hex.DecodeString(m.Ingress.Content)
	if err != nil {
		return nil, semantic("invalid message content: %v", err)
	}
	env, err := agent.UnmarshalEnvelope(envelope)
	if err != nil {
		return nil, semantic("%v", err)
	}
	req := env.Content
	canister, err := req.Canister()
	if err != nil {
		return nil, semantic("%v", err)
	}
	info := &MethodInfo{CanisterID: canister}
	if ci, err := s.cache.Get(ctx, canister); err == nil && ci.Interface != nil {
		if f, ok := ci.Interface.Method(req.MethodName); ok {
			info.Signature = &Signature{Env: ci.Interface.Env, Func: f}
		}
	}

	var reply []byte
	switch m.Ingress.CallType {
	case ir.CallTypeQuery:
		effective, err := s.effectiveID(canister, req.MethodName, req.Arg)
		if err != nil {
			return nil, err
		}
		if reply, err = s.transport.SubmitQuery(ctx, effective, envelope); err != nil {
			return nil, transport(err)
		}
	case ir.CallTypeUpdate:
		if m.RequestStatus == nil || m.Ingress.RequestID == nil {
			return nil, semantic("update message without request status")
		}
		id := req.ID()
		if id.String() != *m.Ingress.RequestID {
			return nil, semantic("request id mismatch: message says %s, content hashes to %s", *m.Ingress.RequestID, id)
		}
		effective, err := ir.DecodePrincipal(m.RequestStatus.CanisterID)
		if err != nil {
			return nil, semantic("%v", err)
		}
		status, err := hex.DecodeString(m.RequestStatus.Content)
		if err != nil {
			return nil, semantic("invalid request status content: %v", err)
		}
		if err := s.transport.SubmitCall(ctx, effective, envelope); err != nil {
			return nil, transport(err)
		}
		if reply, err = s.transport.PollSigned(ctx, effective, id, status); err != nil {
			return nil, transport(err)
		}
	default:
		return nil, semantic("unknown call type %q", m.Ingress.CallType)
	}
	return decodeReply(info.Signature, reply)
}
