package engine

import (
	"context"
	"fmt"

	"github.com/roach88/icrepl/internal/ir"
)

// Run executes one statement in env.
func Run(ctx context.Context, env *Env, stmt ir.Stmt) error {
	switch st := stmt.(type) {
	case ir.StmtLet:
		v, err := Eval(ctx, env, st.Exp)
		if err != nil {
			return err
		}
		env.bind(st.Name, v, ir.IsCall(st.Exp))
	case ir.StmtShow:
		v, err := Eval(ctx, env, st.Exp)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.session.stdout, ir.Format(v))
		env.bind("_", v, ir.IsCall(st.Exp))
	case ir.StmtAssert:
		return execAssert(ctx, env, st)
	case ir.StmtFunc:
		env.Define(st.Name, Func{Params: st.Params, Body: st.Body})
	default:
		return fmt.Errorf("unsupported statement %T", stmt)
	}
	return nil
}

// RunAll executes statements in order, stopping at the first error.
func RunAll(ctx context.Context, env *Env, stmts []ir.Stmt) error {
	for _, st := range stmts {
		if err := Run(ctx, env, st); err != nil {
			return err
		}
	}
	return nil
}

// bind assigns v to name. The result of a call is also bound to "_", with
// a profiling cost split off into __cost_<name>.
func (e *Env) bind(name string, v ir.Value, isCall bool) {
	if isCall {
		var cost *ir.Int64
		v, cost = extractCost(v)
		if cost != nil {
			e.vars["__cost_"+name] = *cost
		}
		e.vars["_"] = v
	}
	e.vars[name] = v
}

func execAssert(ctx context.Context, env *Env, st ir.StmtAssert) error {
	left, err := Eval(ctx, env, st.Left)
	if err != nil {
		return err
	}
	right, err := Eval(ctx, env, st.Right)
	if err != nil {
		return err
	}
	equal := ir.Equal(left, right)
	if !equal {
		if cast, err := ir.Cast(ir.TypeEnv{}, right, left.Type()); err == nil {
			equal = ir.Equal(left, cast)
		}
	}
	switch st.Op {
	case ir.AssertEqual:
		if !equal {
			return newError(ErrCodeAssertion, "assertion failed: %s is not equal to %s", ir.Format(left), ir.Format(right))
		}
	case ir.AssertNotEqual:
		if equal {
			return newError(ErrCodeAssertion, "assertion failed: %s is equal to %s", ir.Format(left), ir.Format(right))
		}
	default:
		return fmt.Errorf("unknown assert operator %q", st.Op)
	}
	return nil
}
