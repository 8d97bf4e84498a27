package ir

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// Value is a sealed interface representing evaluated script values.
// Only the types declared in this file implement it.
type Value interface {
	// Type returns the type tag used for equality checks and inferred encoding.
	Type() Type
	value()
}

// Bool is a boolean value.
type Bool bool

// Null is the unit value.
type Null struct{}

// Text is a UTF-8 string value.
type Text string

// Number is an integer literal whose width has not been fixed yet.
// It stays textual until a cast or arithmetic resolves it.
type Number string

// Nat is an arbitrary-precision natural number.
type Nat struct{ v *big.Int }

// Int is an arbitrary-precision integer.
type Int struct{ v *big.Int }

// Fixed-width numeric values.
type (
	Nat8    uint8
	Nat16   uint16
	Nat32   uint32
	Nat64   uint64
	Int8    int8
	Int16   int16
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
)

// Opt is a present optional value.
type Opt struct{ V Value }

// None is an absent optional value.
type None struct{}

// Vec is a vector of values.
type Vec []Value

// Blob is a byte vector.
type Blob []byte

// Field is a labelled record or variant member.
type Field struct {
	Label Label
	Value Value
}

// Record is a set of fields sorted by label id. Use NewRecord to build one.
type Record []Field

// Variant holds a single chosen field and its discriminant index.
type Variant struct {
	Field Field
	Index uint64
}

// PrincipalValue is a principal used as a value.
type PrincipalValue struct{ Principal Principal }

// Service is a reference to a canister as a service.
type Service struct{ Principal Principal }

// FuncRef is a reference to a method of a canister.
type FuncRef struct {
	Principal Principal
	Method    string
}

// Reserved is the value of the reserved type.
type Reserved struct{}

func (Bool) value()           {}
func (Null) value()           {}
func (Text) value()           {}
func (Number) value()         {}
func (Nat) value()            {}
func (Int) value()            {}
func (Nat8) value()           {}
func (Nat16) value()          {}
func (Nat32) value()          {}
func (Nat64) value()          {}
func (Int8) value()           {}
func (Int16) value()          {}
func (Int32) value()          {}
func (Int64) value()          {}
func (Float32) value()        {}
func (Float64) value()        {}
func (Opt) value()            {}
func (None) value()           {}
func (Vec) value()            {}
func (Blob) value()           {}
func (Record) value()         {}
func (Variant) value()        {}
func (PrincipalValue) value() {}
func (Service) value()        {}
func (FuncRef) value()        {}
func (Reserved) value()       {}

// NewNat copies n into a Nat. Negative inputs are rejected.
func NewNat(n *big.Int) (Nat, error) {
	if n.Sign() < 0 {
		return Nat{}, fmt.Errorf("nat cannot be negative: %s", n)
	}
	return Nat{v: new(big.Int).Set(n)}, nil
}

// NatFromUint64 builds a Nat from a machine integer.
func NatFromUint64(n uint64) Nat {
	return Nat{v: new(big.Int).SetUint64(n)}
}

// NewInt copies n into an Int.
func NewInt(n *big.Int) Int {
	return Int{v: new(big.Int).Set(n)}
}

// IntFromInt64 builds an Int from a machine integer.
func IntFromInt64(n int64) Int {
	return Int{v: big.NewInt(n)}
}

// Big returns a copy of the underlying integer.
func (n Nat) Big() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.v)
}

// Big returns a copy of the underlying integer.
func (n Int) Big() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.v)
}

// Big parses the literal as an integer.
func (n Number) Big() (*big.Int, error) {
	s := strings.ReplaceAll(string(n), "_", "")
	base := 10
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, s = 16, s[2:]
	}
	v, ok := new(big.Int).SetString(sign+s, base)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", string(n))
	}
	return v, nil
}

// NewRecord sorts fields by label id and rejects repeated labels.
func NewRecord(fields ...Field) (Record, error) {
	sorted, err := SortFields(fields)
	if err != nil {
		return nil, err
	}
	return Record(sorted), nil
}

// MustRecord is NewRecord for literals known to be valid.
func MustRecord(fields ...Field) Record {
	r, err := NewRecord(fields...)
	if err != nil {
		panic(err)
	}
	return r
}

// F is a shorthand for a named field.
// Example: MustRecord(F("owner", PrincipalValue{p}), F("amount", NatFromUint64(1)))
func F(name string, v Value) Field {
	return Field{Label: NamedLabel(name), Value: v}
}

// Tuple builds a record with positional labels 0..n-1.
func Tuple(vals ...Value) Record {
	fields := make(Record, len(vals))
	for i, v := range vals {
		fields[i] = Field{Label: UnnamedLabel(uint32(i)), Value: v}
	}
	return fields
}

// ArgsToValue collapses a decoded argument list: a single argument is
// returned as is, anything else becomes a tuple record.
func ArgsToValue(vals []Value) Value {
	if len(vals) == 1 {
		return vals[0]
	}
	return Tuple(vals...)
}

// Get returns the field with the given label.
func (r Record) Get(l Label) (Value, bool) {
	i := slices.IndexFunc(r, func(f Field) bool { return f.Label.ID == l.ID })
	if i < 0 {
		return nil, false
	}
	return r[i].Value, true
}

// GetNamed returns the field with the given symbolic name.
func (r Record) GetNamed(name string) (Value, bool) {
	return r.Get(NamedLabel(name))
}

// Concat merges two records, failing if any label repeats.
func (r Record) Concat(o Record) (Record, error) {
	fields := make([]Field, 0, len(r)+len(o))
	fields = append(fields, r...)
	fields = append(fields, o...)
	return NewRecord(fields...)
}

// Type implementations.

func (Bool) Type() Type           { return Prim(TypeBool) }
func (Null) Type() Type           { return Prim(TypeNull) }
func (Text) Type() Type           { return Prim(TypeText) }
func (Number) Type() Type         { return Prim(TypeInt) }
func (Nat) Type() Type            { return Prim(TypeNat) }
func (Int) Type() Type            { return Prim(TypeInt) }
func (Nat8) Type() Type           { return Prim(TypeNat8) }
func (Nat16) Type() Type          { return Prim(TypeNat16) }
func (Nat32) Type() Type          { return Prim(TypeNat32) }
func (Nat64) Type() Type          { return Prim(TypeNat64) }
func (Int8) Type() Type           { return Prim(TypeInt8) }
func (Int16) Type() Type          { return Prim(TypeInt16) }
func (Int32) Type() Type          { return Prim(TypeInt32) }
func (Int64) Type() Type          { return Prim(TypeInt64) }
func (Float32) Type() Type        { return Prim(TypeFloat32) }
func (Float64) Type() Type        { return Prim(TypeFloat64) }
func (o Opt) Type() Type          { return OptOf(o.V.Type()) }
func (None) Type() Type           { return OptOf(Prim(TypeEmpty)) }
func (Blob) Type() Type           { return BlobType() }
func (PrincipalValue) Type() Type { return Prim(TypePrincipal) }
func (Reserved) Type() Type       { return Prim(TypeReserved) }

func (v Vec) Type() Type {
	if len(v) == 0 {
		return VecOf(Prim(TypeEmpty))
	}
	return VecOf(v[0].Type())
}

func (r Record) Type() Type {
	fields := make([]FieldType, len(r))
	for i, f := range r {
		fields[i] = FieldType{Label: f.Label, Type: f.Value.Type()}
	}
	return Type{Kind: TypeRecord, Fields: fields}
}

func (v Variant) Type() Type {
	return Type{Kind: TypeVariant, Fields: []FieldType{{Label: v.Field.Label, Type: v.Field.Value.Type()}}}
}

func (Service) Type() Type {
	return Type{Kind: TypeService}
}

func (FuncRef) Type() Type {
	return Type{Kind: TypeFunc, Func: &FuncType{}}
}

// BytesOf extracts the bytes of a blob or a vec of nat8 values.
func BytesOf(v Value) ([]byte, bool) {
	switch val := v.(type) {
	case Blob:
		return []byte(val), true
	case Vec:
		out := make([]byte, len(val))
		for i, e := range val {
			b, ok := e.(Nat8)
			if !ok {
				return nil, false
			}
			out[i] = byte(b)
		}
		return out, true
	}
	return nil, false
}
