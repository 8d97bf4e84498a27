package ir

import (
	"fmt"
	"math"
	"math/big"
)

// Cast converts v to type t following Candid coercion rules:
// numeric literals are fixed to the target width, nat widens to int, any
// numeric converts to float, non-optional values are wrapped into opt,
// blobs and vec nat8 interchange, record fields are matched by label and
// variants are re-tagged with the index of their field in t.
func Cast(env TypeEnv, v Value, t Type) (Value, error) {
	t, err := env.Trace(t)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case TypeReserved:
		return Reserved{}, nil
	case TypeOpt:
		return castOpt(env, v, *t.Elem)
	}
	if t.Kind.IsNumeric() {
		return castNumber(v, t.Kind)
	}
	switch t.Kind {
	case TypeNull:
		if _, ok := v.(Null); ok {
			return v, nil
		}
	case TypeBool:
		if _, ok := v.(Bool); ok {
			return v, nil
		}
	case TypeText:
		if _, ok := v.(Text); ok {
			return v, nil
		}
	case TypePrincipal:
		if _, ok := v.(PrincipalValue); ok {
			return v, nil
		}
	case TypeService:
		if _, ok := v.(Service); ok {
			return v, nil
		}
	case TypeFunc:
		if _, ok := v.(FuncRef); ok {
			return v, nil
		}
	case TypeVec:
		return castVec(env, v, *t.Elem)
	case TypeRecord:
		return castRecord(env, v, t)
	case TypeVariant:
		return castVariant(env, v, t)
	}
	return nil, fmt.Errorf("type mismatch: %s cannot be of type %s", v, t)
}

// CastArgs casts an argument list against a type list. Missing trailing
// arguments are accepted when their type is opt, null or reserved.
func CastArgs(env TypeEnv, vals []Value, types []Type) ([]Value, error) {
	if len(vals) > len(types) {
		return nil, fmt.Errorf("wrong number of arguments: expected %d, got %d", len(types), len(vals))
	}
	out := make([]Value, len(types))
	for i, t := range types {
		if i >= len(vals) {
			traced, err := env.Trace(t)
			if err != nil {
				return nil, err
			}
			switch traced.Kind {
			case TypeOpt:
				out[i] = None{}
			case TypeNull:
				out[i] = Null{}
			case TypeReserved:
				out[i] = Reserved{}
			default:
				return nil, fmt.Errorf("wrong number of arguments: expected %d, got %d", len(types), len(vals))
			}
			continue
		}
		v, err := Cast(env, vals[i], t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func castOpt(env TypeEnv, v Value, elem Type) (Value, error) {
	switch val := v.(type) {
	case Null, None, Reserved:
		return None{}, nil
	case Opt:
		inner, err := Cast(env, val.V, elem)
		if err != nil {
			return None{}, nil
		}
		return Opt{V: inner}, nil
	}
	traced, err := env.Trace(elem)
	if err != nil {
		return nil, err
	}
	if traced.Kind == TypeNull || traced.Kind == TypeReserved || traced.Kind == TypeOpt {
		return None{}, nil
	}
	inner, err := Cast(env, v, elem)
	if err != nil {
		return None{}, nil
	}
	return Opt{V: inner}, nil
}

func castVec(env TypeEnv, v Value, elem Type) (Value, error) {
	traced, err := env.Trace(elem)
	if err != nil {
		return nil, err
	}
	if traced.Kind == TypeNat8 {
		if b, ok := v.(Blob); ok {
			return b, nil
		}
	}
	var items []Value
	switch val := v.(type) {
	case Vec:
		items = val
	case Blob:
		items = make([]Value, len(val))
		for i, b := range val {
			items[i] = Nat8(b)
		}
	default:
		return nil, fmt.Errorf("type mismatch: %s cannot be of type vec %s", v, elem)
	}
	out := make(Vec, len(items))
	for i, item := range items {
		c, err := Cast(env, item, elem)
		if err != nil {
			return nil, fmt.Errorf("vec element %d: %w", i, err)
		}
		out[i] = c
	}
	if traced.Kind == TypeNat8 {
		b, _ := BytesOf(out)
		return Blob(b), nil
	}
	return out, nil
}

func castRecord(env TypeEnv, v Value, t Type) (Value, error) {
	rec, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("type mismatch: %s cannot be of type %s", v, t)
	}
	out := make(Record, 0, len(t.Fields))
	for _, ft := range t.Fields {
		fv, present := rec.Get(ft.Label)
		if !present {
			traced, err := env.Trace(ft.Type)
			if err != nil {
				return nil, err
			}
			switch traced.Kind {
			case TypeOpt:
				fv = None{}
			case TypeReserved:
				fv = Reserved{}
			case TypeNull:
				fv = Null{}
			default:
				return nil, fmt.Errorf("record field %s not found", ft.Label)
			}
		}
		c, err := Cast(env, fv, ft.Type)
		if err != nil {
			return nil, fmt.Errorf("record field %s: %w", ft.Label, err)
		}
		out = append(out, Field{Label: ft.Label, Value: c})
	}
	return out, nil
}

func castVariant(env TypeEnv, v Value, t Type) (Value, error) {
	variant, ok := v.(Variant)
	if !ok {
		return nil, fmt.Errorf("type mismatch: %s cannot be of type %s", v, t)
	}
	for i, ft := range t.Fields {
		if ft.Label.ID != variant.Field.Label.ID {
			continue
		}
		c, err := Cast(env, variant.Field.Value, ft.Type)
		if err != nil {
			return nil, fmt.Errorf("variant field %s: %w", ft.Label, err)
		}
		return Variant{Field: Field{Label: ft.Label, Value: c}, Index: uint64(i)}, nil
	}
	return nil, fmt.Errorf("variant field %s not found in %s", variant.Field.Label, t)
}

// castNumber coerces a numeric value to kind k. Untyped literals take any
// numeric kind that can hold them. Typed values keep their kind, except
// that nat widens to int and floats convert between widths, since float
// literals are float64.
func castNumber(v Value, k TypeKind) (Value, error) {
	if _, literal := v.(Number); !literal {
		from := v.Type().Kind
		switch {
		case from == k:
			return v, nil
		case from == TypeNat && k == TypeInt:
			return NewInt(v.(Nat).Big()), nil
		case from.IsFloat() && k.IsFloat():
		default:
			return nil, fmt.Errorf("type mismatch: %s cannot be of type %s", v, Prim(k))
		}
	}
	if k.IsFloat() {
		f, err := ToFloat(v)
		if err != nil {
			return nil, err
		}
		if k == TypeFloat32 {
			return Float32(f), nil
		}
		return Float64(f), nil
	}
	n, err := ToBig(v)
	if err != nil {
		return nil, err
	}
	return FixInteger(n, k)
}

// FixInteger converts an arbitrary-precision integer to the integer kind k,
// failing when the value is out of range.
func FixInteger(n *big.Int, k TypeKind) (Value, error) {
	outOfRange := fmt.Errorf("%s is out of range for %s", n, Prim(k))
	switch k {
	case TypeNat:
		if n.Sign() < 0 {
			return nil, outOfRange
		}
		return Nat{v: new(big.Int).Set(n)}, nil
	case TypeInt:
		return Int{v: new(big.Int).Set(n)}, nil
	case TypeNat8, TypeNat16, TypeNat32, TypeNat64:
		bits := map[TypeKind]uint{TypeNat8: 8, TypeNat16: 16, TypeNat32: 32, TypeNat64: 64}[k]
		if n.Sign() < 0 || n.BitLen() > int(bits) {
			return nil, outOfRange
		}
		u := n.Uint64()
		switch k {
		case TypeNat8:
			return Nat8(u), nil
		case TypeNat16:
			return Nat16(u), nil
		case TypeNat32:
			return Nat32(u), nil
		}
		return Nat64(u), nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		bits := map[TypeKind]uint{TypeInt8: 8, TypeInt16: 16, TypeInt32: 32, TypeInt64: 64}[k]
		lo := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), bits-1))
		hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits-1), big.NewInt(1))
		if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
			return nil, outOfRange
		}
		i := n.Int64()
		switch k {
		case TypeInt8:
			return Int8(i), nil
		case TypeInt16:
			return Int16(i), nil
		case TypeInt32:
			return Int32(i), nil
		}
		return Int64(i), nil
	}
	return nil, fmt.Errorf("%s is not an integer type", Prim(k))
}

// ToBig reads any integer value as a big.Int. Floats are rejected.
func ToBig(v Value) (*big.Int, error) {
	switch n := v.(type) {
	case Number:
		return n.Big()
	case Nat:
		return n.Big(), nil
	case Int:
		return n.Big(), nil
	case Nat8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case Nat16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case Nat32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case Nat64:
		return new(big.Int).SetUint64(uint64(n)), nil
	case Int8:
		return big.NewInt(int64(n)), nil
	case Int16:
		return big.NewInt(int64(n)), nil
	case Int32:
		return big.NewInt(int64(n)), nil
	case Int64:
		return big.NewInt(int64(n)), nil
	}
	return nil, fmt.Errorf("type mismatch: %s is not an integer", v)
}

// ToFloat reads any numeric value as a float64.
func ToFloat(v Value) (float64, error) {
	switch f := v.(type) {
	case Float64:
		return float64(f), nil
	case Float32:
		return float64(f), nil
	}
	n, err := ToBig(v)
	if err != nil {
		return 0, fmt.Errorf("type mismatch: %s is not a number", v)
	}
	f, acc := new(big.Float).SetInt(n).Float64()
	if math.IsInf(f, 0) && acc != big.Exact {
		return 0, fmt.Errorf("%s is out of range for float64", n)
	}
	return f, nil
}
