package engine

import (
	"context"
	"fmt"

	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/ir"
)

// evalCall evaluates a call in one of its three modes.
func (e *Env) evalCall(ctx context.Context, c ir.ExpCall) (ir.Value, error) {
	var args []ir.Value
	if c.Args != nil {
		vals, err := e.evalArgs(ctx, c.Args)
		if err != nil {
			return nil, err
		}
		args = vals
	}
	var info *MethodInfo
	if c.Method != nil {
		var err error
		if info, err = e.resolveMethod(ctx, *c.Method, c.Mode.Kind == ir.CallEncode); err != nil {
			return nil, err
		}
	}
	arg, err := encodeArgs(info, args)
	if err != nil {
		return nil, err
	}
	switch c.Mode.Kind {
	case ir.CallEncode:
		return ir.Blob(arg), nil
	case ir.CallProxy:
		if c.Method == nil {
			return nil, newError(ErrCodeResolution, "proxy call requires a method")
		}
		return e.proxyCall(ctx, *c.Method, c.Mode.Relay, arg)
	}
	if c.Method == nil {
		return nil, newError(ErrCodeResolution, "call requires a method")
	}
	return e.session.profiledCall(ctx, info, c.Method.Method, arg)
}

// encodeArgs serializes args against the resolved signature, or with
// inferred types when there is none. A nil args means the arguments were
// omitted.
func encodeArgs(info *MethodInfo, args []ir.Value) ([]byte, error) {
	if info != nil && info.Signature != nil {
		if args == nil {
			return nil, argShape("arguments required")
		}
		vals, err := ir.CastArgs(info.Signature.Env, args, info.Signature.Func.Args)
		if err != nil {
			return nil, wrapError(ErrCodeSemantic, err, "cannot encode arguments")
		}
		b, err := candid.Encode(info.Signature.Env, info.Signature.Func.Args, vals)
		if err != nil {
			return nil, wrapError(ErrCodeSemantic, err, "cannot encode arguments")
		}
		return b, nil
	}
	if args == nil {
		return nil, newError(ErrCodeResolution, "cannot get method type, please provide arguments")
	}
	b, err := candid.EncodeInferred(args)
	if err != nil {
		return nil, wrapError(ErrCodeSemantic, err, "cannot encode arguments")
	}
	return b, nil
}

// decodeReply decodes reply bytes with the return types of sig when known.
func decodeReply(sig *Signature, reply []byte) ([]ir.Value, error) {
	var vals []ir.Value
	var err error
	if sig != nil {
		vals, err = candid.Decode(reply, sig.Env, sig.Func.Rets)
	} else {
		vals, err = candid.DecodeUntyped(reply)
	}
	if err != nil {
		return nil, wrapError(ErrCodeSemantic, err, "cannot decode reply")
	}
	return vals, nil
}

// invoke performs a single call, or signs it in offline mode. Queries are
// chosen by the signature's mode; unknown signatures are sent as updates.
func (s *Session) invoke(ctx context.Context, info *MethodInfo, method string, arg []byte) ([]ir.Value, error) {
	effective, err := s.effectiveID(info.CanisterID, method, arg)
	if err != nil {
		return nil, err
	}
	query := info.Signature != nil && info.Signature.Func.IsQuery()
	if s.offline {
		return nil, s.sign(ctx, info.CanisterID, effective, method, arg, query)
	}
	if s.transport == nil {
		return nil, newError(ErrCodeTransport, "no replica configured")
	}
	var reply []byte
	if query {
		reply, err = s.transport.Query(ctx, info.CanisterID, effective, method, arg)
	} else {
		reply, err = s.transport.Update(ctx, info.CanisterID, effective, method, arg)
	}
	if err != nil {
		return nil, transport(err)
	}
	return decodeReply(info.Signature, reply)
}

// sign records a signed request in the message log. The call itself yields
// no values.
func (s *Session) sign(ctx context.Context, canister, effective ir.Principal, method string, arg []byte, query bool) error {
	if s.transport == nil {
		return newError(ErrCodeTransport, "no identity configured for signing")
	}
	var msg ir.Message
	if query {
		signed, err := s.transport.SignQuery(canister, method, arg)
		if err != nil {
			return transport(err)
		}
		msg = queryMessage(signed)
	} else {
		signed, err := s.transport.SignUpdate(canister, method, arg)
		if err != nil {
			return transport(err)
		}
		status, err := s.transport.SignRequestStatus(signed.RequestID)
		if err != nil {
			return transport(err)
		}
		msg = updateMessage(signed, status, effective)
	}
	if _, err := s.log.Append(ctx, msg); err != nil {
		return transport(err)
	}
	return nil
}

// profiledCall wraps invoke. For live update calls to an instrumented
// canister the instruction counter is sampled before and after the call
// and the result becomes (result, record { __cost = delta }).
func (s *Session) profiledCall(ctx context.Context, info *MethodInfo, method string, arg []byte) (ir.Value, error) {
	profile := !s.offline && info.Profiling != nil &&
		(info.Signature == nil || !info.Signature.Func.IsQuery())
	var before int64
	if profile {
		var err error
		if before, err = s.cycles(ctx, info.CanisterID); err != nil {
			return nil, err
		}
	}
	vals, err := s.invoke(ctx, info, method, arg)
	if err != nil {
		return nil, err
	}
	if !profile {
		return ir.ArgsToValue(vals), nil
	}
	after, err := s.cycles(ctx, info.CanisterID)
	if err != nil {
		return nil, err
	}
	cost := after - before
	fmt.Fprintf(s.stdout, "Cost: %d Wasm instructions\n", cost)
	costRec := ir.Record{{Label: ir.NamedLabel(costField), Value: ir.Int64(cost)}}
	return ir.Tuple(ir.ArgsToValue(vals), costRec), nil
}

// proxyCall forwards encoded arguments through the wallet_call method of
// relay, then decodes the forwarded reply as the return type of m. Both
// steps run in a child scope whose "_" is the result.
func (e *Env) proxyCall(ctx context.Context, m ir.Method, relay string, arg []byte) (ir.Value, error) {
	canister, err := e.resolvePrincipal(m.Canister)
	if err != nil {
		return nil, err
	}
	relayID, err := e.resolvePrincipal(relay)
	if err != nil {
		return nil, err
	}
	if _, err := e.session.cache.Get(ctx, relayID); err != nil {
		return nil, wrapError(ErrCodeResolution, err, "%s canister interface not found", relayID)
	}
	child := e.Spawn()
	child.Set("_msg", ir.Blob(arg))
	script := []ir.Stmt{
		ir.StmtLet{Name: "_", Exp: ir.Call(relayID.String(), "wallet_call", ir.RecordExp(
			ir.FE("args", ir.Var("_msg")),
			ir.FE("cycles", ir.ExpNumber("0")),
			ir.FE("method_name", ir.ExpText(m.Method)),
			ir.FE("canister", ir.ExpPrincipal{Principal: canister}),
		))},
		ir.StmtLet{Name: "_", Exp: ir.ExpDecode{
			Method: &ir.Method{Canister: canister.String(), Method: m.Method},
			Blob: ir.ExpPath{Name: "_", Selectors: []ir.Selector{
				{Kind: ir.SelectField, Field: "Ok"},
				{Kind: ir.SelectField, Field: "return"},
			}},
		}},
	}
	for _, stmt := range script {
		if err := Run(ctx, child, stmt); err != nil {
			return nil, err
		}
	}
	v, _ := child.Get("_")
	return v, nil
}
