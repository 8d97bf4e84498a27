package ir

import (
	"fmt"
	"slices"
	"strings"
)

// TypeKind enumerates Candid type constructors.
type TypeKind int

const (
	TypeNull TypeKind = iota + 1
	TypeBool
	TypeNat
	TypeInt
	TypeNat8
	TypeNat16
	TypeNat32
	TypeNat64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeText
	TypeReserved
	TypeEmpty
	TypePrincipal
	TypeOpt
	TypeVec
	TypeRecord
	TypeVariant
	TypeFunc
	TypeService
	TypeVar
)

var primitiveNames = map[TypeKind]string{
	TypeNull:      "null",
	TypeBool:      "bool",
	TypeNat:       "nat",
	TypeInt:       "int",
	TypeNat8:      "nat8",
	TypeNat16:     "nat16",
	TypeNat32:     "nat32",
	TypeNat64:     "nat64",
	TypeInt8:      "int8",
	TypeInt16:     "int16",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeText:      "text",
	TypeReserved:  "reserved",
	TypeEmpty:     "empty",
	TypePrincipal: "principal",
}

// PrimitiveByName maps a Candid primitive type name to its kind.
func PrimitiveByName(name string) (TypeKind, bool) {
	for k, n := range primitiveNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Type is a Candid type. Compound types keep their children in Elem, Fields,
// Func or Methods; TypeVar refers to a named definition in a TypeEnv.
type Type struct {
	Kind    TypeKind
	Elem    *Type
	Fields  []FieldType
	Func    *FuncType
	Methods []MethodType
	Name    string
}

// FieldType is a labelled member of a record or variant type.
type FieldType struct {
	Label Label
	Type  Type
}

// FuncType is a method signature.
type FuncType struct {
	Args  []Type
	Rets  []Type
	Modes []string
}

// MethodType is a named entry of a service type.
type MethodType struct {
	Name string
	Func FuncType
}

// Prim returns a primitive type.
func Prim(k TypeKind) Type { return Type{Kind: k} }

// OptOf returns opt t.
func OptOf(t Type) Type { return Type{Kind: TypeOpt, Elem: &t} }

// VecOf returns vec t.
func VecOf(t Type) Type { return Type{Kind: TypeVec, Elem: &t} }

// BlobType returns vec nat8.
func BlobType() Type { return VecOf(Prim(TypeNat8)) }

// VarOf returns a reference to a named type definition.
func VarOf(name string) Type { return Type{Kind: TypeVar, Name: name} }

// RecordOf returns a record type with fields sorted by label id.
func RecordOf(fields ...FieldType) Type {
	return Type{Kind: TypeRecord, Fields: sortFieldTypes(fields)}
}

// VariantOf returns a variant type with fields sorted by label id.
func VariantOf(fields ...FieldType) Type {
	return Type{Kind: TypeVariant, Fields: sortFieldTypes(fields)}
}

func sortFieldTypes(fields []FieldType) []FieldType {
	out := slices.Clone(fields)
	slices.SortStableFunc(out, func(a, b FieldType) int {
		switch {
		case a.Label.ID < b.Label.ID:
			return -1
		case a.Label.ID > b.Label.ID:
			return 1
		}
		return 0
	})
	return out
}

// IsQuery reports whether the function is dispatched as a query.
func (f FuncType) IsQuery() bool {
	return slices.Contains(f.Modes, "query") || slices.Contains(f.Modes, "composite_query")
}

// IsNumeric reports whether the kind is an integer or float type.
func (k TypeKind) IsNumeric() bool {
	return k >= TypeNat && k <= TypeFloat64
}

// IsFloat reports whether the kind is float32 or float64.
func (k TypeKind) IsFloat() bool {
	return k == TypeFloat32 || k == TypeFloat64
}

// Equal reports structural type equality. Var types compare by name.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypeOpt, TypeVec:
		return t.Elem.Equal(*o.Elem)
	case TypeRecord, TypeVariant:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Label.ID != o.Fields[i].Label.ID || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	case TypeFunc:
		return t.Func.Equal(*o.Func)
	case TypeService:
		if len(t.Methods) != len(o.Methods) {
			return false
		}
		for i := range t.Methods {
			if t.Methods[i].Name != o.Methods[i].Name || !t.Methods[i].Func.Equal(o.Methods[i].Func) {
				return false
			}
		}
		return true
	case TypeVar:
		return t.Name == o.Name
	}
	return true
}

// Equal reports structural signature equality.
func (f FuncType) Equal(o FuncType) bool {
	return typesEqual(f.Args, o.Args) && typesEqual(f.Rets, o.Rets) && slices.Equal(f.Modes, o.Modes)
}

func typesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String renders the type in Candid syntax.
func (t Type) String() string {
	if n, ok := primitiveNames[t.Kind]; ok {
		return n
	}
	switch t.Kind {
	case TypeOpt:
		return "opt " + t.Elem.String()
	case TypeVec:
		if t.Elem.Kind == TypeNat8 {
			return "blob"
		}
		return "vec " + t.Elem.String()
	case TypeRecord:
		return "record " + fieldTypesString(t.Fields, true)
	case TypeVariant:
		return "variant " + fieldTypesString(t.Fields, false)
	case TypeFunc:
		return "func " + t.Func.String()
	case TypeService:
		var b strings.Builder
		b.WriteString("service {")
		for _, m := range t.Methods {
			fmt.Fprintf(&b, " %s : %s;", quoteIfNeeded(m.Name), m.Func.String())
		}
		b.WriteString(" }")
		return b.String()
	case TypeVar:
		return t.Name
	}
	return "unknown"
}

func fieldTypesString(fields []FieldType, record bool) string {
	if len(fields) == 0 {
		return "{}"
	}
	tuple := record && isTupleLabels(fieldLabels(fields))
	parts := make([]string, len(fields))
	for i, f := range fields {
		switch {
		case tuple:
			parts[i] = f.Type.String()
		case !record && f.Type.Kind == TypeNull:
			parts[i] = f.Label.String()
		default:
			parts[i] = f.Label.String() + " : " + f.Type.String()
		}
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

func fieldLabels(fields []FieldType) []Label {
	out := make([]Label, len(fields))
	for i, f := range fields {
		out[i] = f.Label
	}
	return out
}

// isTupleLabels reports whether labels are exactly 0..n-1.
func isTupleLabels(labels []Label) bool {
	for i, l := range labels {
		if l.Kind == LabelNamed || l.ID != uint32(i) {
			return false
		}
	}
	return len(labels) > 0
}

// String renders the signature as `(args) -> (rets) modes`.
func (f FuncType) String() string {
	s := "(" + joinTypes(f.Args) + ") -> (" + joinTypes(f.Rets) + ")"
	for _, m := range f.Modes {
		s += " " + m
	}
	return s
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func quoteIfNeeded(s string) string {
	if isIdentifier(s) {
		return s
	}
	return fmt.Sprintf("%q", s)
}

// TypeEnv holds named type definitions.
type TypeEnv map[string]Type

// Trace resolves Var indirections until a concrete type is reached.
func (env TypeEnv) Trace(t Type) (Type, error) {
	seen := 0
	for t.Kind == TypeVar {
		next, ok := env[t.Name]
		if !ok {
			return Type{}, fmt.Errorf("unbound type identifier %s", t.Name)
		}
		t = next
		seen++
		if seen > len(env) {
			return Type{}, fmt.Errorf("type %s is an infinite alias", t.Name)
		}
	}
	return t, nil
}

// Merge copies all definitions of other into env. Conflicting
// definitions with different structure fail.
func (env TypeEnv) Merge(other TypeEnv) error {
	for name, t := range other {
		if existing, ok := env[name]; ok && !existing.Equal(t) {
			return fmt.Errorf("conflicting definitions for type %s", name)
		}
		env[name] = t
	}
	return nil
}
