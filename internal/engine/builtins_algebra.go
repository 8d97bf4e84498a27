package engine

import (
	"context"
	"math/big"

	"github.com/roach88/icrepl/internal/ir"
)

func registerAlgebra() {
	register(
		&builtin{name: "concat", minArgs: 2, maxArgs: 2, usage: "concat expects two vec, record or text", strict: builtinConcat},
		&builtin{name: "stringify", minArgs: 0, maxArgs: -1, strict: builtinStringify},
		&builtin{name: "not", minArgs: 1, maxArgs: 1, usage: "not expects a bool value", strict: builtinNot},
	)
	for _, name := range []string{"eq", "neq"} {
		register(&builtin{name: name, minArgs: 2, maxArgs: 2, usage: name + " expects two values", strict: equality(name)})
	}
	for _, name := range []string{"and", "or"} {
		register(&builtin{name: name, minArgs: 2, maxArgs: 2, usage: name + " expects bool values", strict: logic(name)})
	}
	for _, name := range []string{"lt", "lte", "gt", "gte", "add", "sub", "mul", "div"} {
		register(&builtin{name: name, minArgs: 2, maxArgs: 2, usage: name + " expects two numbers", strict: arith(name)})
	}
}

func builtinConcat(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	switch a := args[0].(type) {
	case ir.Vec:
		if b, ok := args[1].(ir.Vec); ok {
			out := make(ir.Vec, 0, len(a)+len(b))
			return append(append(out, a...), b...), nil
		}
	case ir.Blob:
		if b, ok := args[1].(ir.Blob); ok {
			out := make(ir.Blob, 0, len(a)+len(b))
			return append(append(out, a...), b...), nil
		}
	case ir.Text:
		if b, ok := args[1].(ir.Text); ok {
			return a + b, nil
		}
	case ir.Record:
		if b, ok := args[1].(ir.Record); ok {
			rec, err := a.Concat(b)
			if err != nil {
				return nil, semantic("%v", err)
			}
			return rec, nil
		}
	}
	return nil, argShape("concat expects two vec, record or text")
}

func builtinStringify(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	var s string
	for _, a := range args {
		s += ir.Stringify(a)
	}
	return ir.Text(s), nil
}

func builtinNot(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	b, ok := args[0].(ir.Bool)
	if !ok {
		return nil, argShape("not expects a bool value")
	}
	return !b, nil
}

// equality compares values of identical type tags only.
func equality(name string) func(context.Context, *Env, []ir.Value) (ir.Value, error) {
	return func(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
		if !ir.SameType(args[0], args[1]) {
			return nil, semantic("%s expects two values of the same type", name)
		}
		eq := ir.Equal(args[0], args[1])
		if name == "neq" {
			return ir.Bool(!eq), nil
		}
		return ir.Bool(eq), nil
	}
}

func logic(name string) func(context.Context, *Env, []ir.Value) (ir.Value, error) {
	return func(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
		a, ok1 := args[0].(ir.Bool)
		b, ok2 := args[1].(ir.Bool)
		if !ok1 || !ok2 {
			return nil, argShape("%s expects bool values", name)
		}
		if name == "and" {
			return a && b, nil
		}
		return a || b, nil
	}
}

func isFloat(v ir.Value) bool {
	switch v.(type) {
	case ir.Float32, ir.Float64:
		return true
	}
	return false
}

// arith compares or combines two numbers. If either is a float both are
// read as float64; otherwise both are read as integers and integer
// results are unresolved numbers.
func arith(name string) func(context.Context, *Env, []ir.Value) (ir.Value, error) {
	return func(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
		if isFloat(args[0]) || isFloat(args[1]) {
			a, err1 := ir.ToFloat(args[0])
			b, err2 := ir.ToFloat(args[1])
			if err1 != nil || err2 != nil {
				return nil, argShape("%s expects two numbers", name)
			}
			return floatOp(name, a, b), nil
		}
		a, err1 := ir.ToBig(args[0])
		b, err2 := ir.ToBig(args[1])
		if err1 != nil || err2 != nil {
			return nil, argShape("%s expects two numbers", name)
		}
		return intOp(name, a, b)
	}
}

func floatOp(name string, a, b float64) ir.Value {
	switch name {
	case "add":
		return ir.Float64(a + b)
	case "sub":
		return ir.Float64(a - b)
	case "mul":
		return ir.Float64(a * b)
	case "div":
		return ir.Float64(a / b)
	case "lt":
		return ir.Bool(a < b)
	case "lte":
		return ir.Bool(a <= b)
	case "gt":
		return ir.Bool(a > b)
	}
	return ir.Bool(a >= b)
}

func intOp(name string, a, b *big.Int) (ir.Value, error) {
	n := new(big.Int)
	switch name {
	case "add":
		n.Add(a, b)
	case "sub":
		n.Sub(a, b)
	case "mul":
		n.Mul(a, b)
	case "div":
		if b.Sign() == 0 {
			return nil, semantic("division by zero")
		}
		n.Quo(a, b)
	case "lt":
		return ir.Bool(a.Cmp(b) < 0), nil
	case "lte":
		return ir.Bool(a.Cmp(b) <= 0), nil
	case "gt":
		return ir.Bool(a.Cmp(b) > 0), nil
	default:
		return ir.Bool(a.Cmp(b) >= 0), nil
	}
	return ir.Number(n.String()), nil
}
