package engine

import (
	"context"
	"math/big"

	"github.com/roach88/icrepl/internal/ir"
)

// project applies a chain of selectors to v.
func (e *Env) project(ctx context.Context, v ir.Value, selectors []ir.Selector) (ir.Value, error) {
	for _, sel := range selectors {
		var err error
		if v, err = e.selectOne(ctx, v, sel); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *Env) selectOne(ctx context.Context, v ir.Value, sel ir.Selector) (ir.Value, error) {
	switch sel.Kind {
	case ir.SelectOption:
		switch o := v.(type) {
		case ir.Opt:
			return o.V, nil
		case ir.None, ir.Null:
			return nil, semantic("cannot unwrap null")
		}
	case ir.SelectIndex:
		idx, err := e.index(ctx, sel.Index)
		if err != nil {
			return nil, err
		}
		switch c := v.(type) {
		case ir.Vec:
			if !idx.IsUint64() || idx.Uint64() >= uint64(len(c)) {
				return nil, semantic("index %s out of bound %d", idx, len(c))
			}
			return c[idx.Uint64()], nil
		case ir.Blob:
			if !idx.IsUint64() || idx.Uint64() >= uint64(len(c)) {
				return nil, semantic("index %s out of bound %d", idx, len(c))
			}
			return ir.Nat8(c[idx.Uint64()]), nil
		case ir.Record:
			if idx.IsUint64() && idx.Uint64() <= 0xffffffff {
				if f, ok := c.Get(ir.IDLabel(uint32(idx.Uint64()))); ok {
					return f, nil
				}
			}
			return nil, semantic("record field %s not found", idx)
		}
	case ir.SelectField:
		switch c := v.(type) {
		case ir.Record:
			if f, ok := c.GetNamed(sel.Field); ok {
				return f, nil
			}
			return nil, semantic("record field %s not found", sel.Field)
		case ir.Variant:
			if c.Field.Label.ID == ir.IDLHash(sel.Field) {
				return c.Field.Value, nil
			}
			return nil, semantic("variant field %s not found", sel.Field)
		}
	case ir.SelectMap:
		if vec, ok := v.(ir.Vec); ok {
			out := make(ir.Vec, len(vec))
			for i, item := range vec {
				r, err := ApplyFunc(ctx, e, sel.Func, []ir.Value{item})
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		}
	case ir.SelectFilter:
		if vec, ok := v.(ir.Vec); ok {
			out := ir.Vec{}
			for _, item := range vec {
				r, err := ApplyFunc(ctx, e, sel.Func, []ir.Value{item})
				if err != nil {
					return nil, err
				}
				keep, ok := r.(ir.Bool)
				if !ok {
					return nil, semantic("filter expects %s to return a bool", sel.Func)
				}
				if keep {
					out = append(out, item)
				}
			}
			return out, nil
		}
	case ir.SelectFold:
		if vec, ok := v.(ir.Vec); ok {
			acc, err := Eval(ctx, e, sel.Init)
			if err != nil {
				return nil, err
			}
			for _, item := range vec {
				if acc, err = ApplyFunc(ctx, e, sel.Func, []ir.Value{acc, item}); err != nil {
					return nil, err
				}
			}
			return acc, nil
		}
	}
	return nil, semantic("%s cannot be applied to %s", selectorName(sel), ir.Format(v))
}

func (e *Env) index(ctx context.Context, exp ir.Exp) (*big.Int, error) {
	v, err := Eval(ctx, e, exp)
	if err != nil {
		return nil, err
	}
	n, err := ir.ToBig(v)
	if err != nil {
		return nil, semantic("index must be a number: %v", err)
	}
	return n, nil
}

func selectorName(sel ir.Selector) string {
	switch sel.Kind {
	case ir.SelectOption:
		return "?"
	case ir.SelectIndex:
		return "index"
	case ir.SelectField:
		return "." + sel.Field
	case ir.SelectMap:
		return "map " + sel.Func
	case ir.SelectFilter:
		return "filter " + sel.Func
	}
	return "fold " + sel.Func
}
