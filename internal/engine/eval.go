package engine

import (
	"context"

	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/ir"
)

// Eval reduces an expression to a value.
func Eval(ctx context.Context, env *Env, exp ir.Exp) (ir.Value, error) {
	switch e := exp.(type) {
	case ir.ExpPath:
		v, ok := env.vars[e.Name]
		if !ok {
			return nil, newError(ErrCodeResolution, "Undefined variable %s", e.Name)
		}
		return env.project(ctx, v, e.Selectors)
	case ir.ExpAnnVal:
		v, err := Eval(ctx, env, e.Exp)
		if err != nil {
			return nil, err
		}
		cast, err := ir.Cast(ir.TypeEnv{}, v, e.Type)
		if err != nil {
			return nil, wrapError(ErrCodeSemantic, err, "casting to type %s fails", e.Type)
		}
		return cast, nil
	case ir.ExpFail:
		if _, err := Eval(ctx, env, e.Exp); err != nil {
			return ir.Text(err.Error()), nil
		}
		return nil, newError(ErrCodeAssertion, "Expects an error state")
	case ir.ExpApply:
		return env.apply(ctx, e)
	case ir.ExpDecode:
		return env.evalDecode(ctx, e)
	case ir.ExpParCall:
		return env.evalParCall(ctx, e)
	case ir.ExpCall:
		return env.evalCall(ctx, e)
	case ir.ExpBool:
		return ir.Bool(e), nil
	case ir.ExpNull:
		return ir.Null{}, nil
	case ir.ExpText:
		return ir.Text(e), nil
	case ir.ExpNumber:
		return ir.Number(e), nil
	case ir.ExpFloat64:
		return ir.Float64(e), nil
	case ir.ExpPrincipal:
		return ir.PrincipalValue{Principal: e.Principal}, nil
	case ir.ExpService:
		return ir.Service{Principal: e.Principal}, nil
	case ir.ExpFunc:
		return ir.FuncRef{Principal: e.Principal, Method: e.Method}, nil
	case ir.ExpBlob:
		return ir.Blob(e), nil
	case ir.ExpOpt:
		v, err := Eval(ctx, env, e.Exp)
		if err != nil {
			return nil, err
		}
		return ir.Opt{V: v}, nil
	case ir.ExpVec:
		vals, err := env.evalArgs(ctx, e)
		if err != nil {
			return nil, err
		}
		return ir.Vec(vals), nil
	case ir.ExpRecord:
		fields := make([]ir.Field, len(e))
		for i, f := range e {
			v, err := Eval(ctx, env, f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = ir.Field{Label: f.Label, Value: v}
		}
		rec, err := ir.NewRecord(fields...)
		if err != nil {
			return nil, semantic("%v", err)
		}
		return rec, nil
	case ir.ExpVariant:
		v, err := Eval(ctx, env, e.Field.Value)
		if err != nil {
			return nil, err
		}
		return ir.Variant{Field: ir.Field{Label: e.Field.Label, Value: v}, Index: e.Index}, nil
	}
	return nil, semantic("cannot evaluate %T", exp)
}

// evalArgs evaluates expressions left to right. The result is never nil.
func (e *Env) evalArgs(ctx context.Context, exps []ir.Exp) ([]ir.Value, error) {
	vals := make([]ir.Value, 0, len(exps))
	for _, x := range exps {
		v, err := Eval(ctx, e, x)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (e *Env) evalDecode(ctx context.Context, d ir.ExpDecode) (ir.Value, error) {
	blob, err := Eval(ctx, e, d.Blob)
	if err != nil {
		return nil, err
	}
	data, ok := ir.BytesOf(blob)
	if vec, isVec := blob.(ir.Vec); isVec && len(vec) == 0 {
		// An empty vec has no element type, so it is not a vec nat8.
		ok = false
	}
	if !ok {
		return nil, semantic("not a blob")
	}
	if d.Method == nil {
		vals, err := candid.DecodeUntyped(data)
		if err != nil {
			return nil, wrapError(ErrCodeSemantic, err, "cannot decode blob")
		}
		return ir.ArgsToValue(vals), nil
	}
	info, err := e.resolveMethod(ctx, *d.Method, false)
	if err != nil {
		return nil, err
	}
	vals, err := decodeReply(info.Signature, data)
	if err != nil {
		return nil, err
	}
	return ir.ArgsToValue(vals), nil
}
