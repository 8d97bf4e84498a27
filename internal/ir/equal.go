package ir

import "bytes"

// SameType reports whether two values carry identical type tags.
func SameType(a, b Value) bool {
	return a.Type().Equal(b.Type())
}

// Equal reports structural equality. Blobs and vec nat8 compare by content,
// unresolved numbers compare by numeric value against Int.
func Equal(a, b Value) bool {
	if ab, ok := BytesOf(a); ok {
		if bb, ok := BytesOf(b); ok {
			return bytes.Equal(ab, bb)
		}
	}
	switch x := a.(type) {
	case Number:
		xv, err := x.Big()
		if err != nil {
			return false
		}
		switch y := b.(type) {
		case Number:
			yv, err := y.Big()
			return err == nil && xv.Cmp(yv) == 0
		case Int:
			return xv.Cmp(y.Big()) == 0
		}
		return false
	case Int:
		switch y := b.(type) {
		case Int:
			return x.Big().Cmp(y.Big()) == 0
		case Number:
			return Equal(y, x)
		}
		return false
	case Nat:
		y, ok := b.(Nat)
		return ok && x.Big().Cmp(y.Big()) == 0
	case Opt:
		y, ok := b.(Opt)
		return ok && Equal(x.V, y.V)
	case Vec:
		y, ok := b.(Vec)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Record:
		y, ok := b.(Record)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i].Label.ID != y[i].Label.ID || !Equal(x[i].Value, y[i].Value) {
				return false
			}
		}
		return true
	case Variant:
		y, ok := b.(Variant)
		return ok && x.Field.Label.ID == y.Field.Label.ID && Equal(x.Field.Value, y.Field.Value)
	case PrincipalValue:
		y, ok := b.(PrincipalValue)
		return ok && x.Principal.Equal(y.Principal)
	case Service:
		y, ok := b.(Service)
		return ok && x.Principal.Equal(y.Principal)
	case FuncRef:
		y, ok := b.(FuncRef)
		return ok && x.Principal.Equal(y.Principal) && x.Method == y.Method
	}
	return a == b
}
