package candid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/icrepl/internal/ir"
)

var magic = []byte("DIDL")

// Encode serializes values against the declared argument types. Values
// are cast to their types first, so unresolved numbers and untagged
// variants are accepted.
func Encode(env ir.TypeEnv, types []ir.Type, values []ir.Value) ([]byte, error) {
	cast, err := ir.CastArgs(env, values, types)
	if err != nil {
		return nil, err
	}
	b := newTableBuilder(env)
	refs := make([]int64, len(types))
	for i, t := range types {
		if refs[i], err = b.ref(t); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	buf.Write(magic)
	b.write(&buf)
	writeULEB(&buf, uint64(len(refs)))
	for _, r := range refs {
		writeSLEB(&buf, r)
	}
	for i, v := range cast {
		if err := encodeValue(&buf, env, types[i], v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeInferred serializes values using the types they carry.
// Unresolved numbers are sent as int.
func EncodeInferred(values []ir.Value) ([]byte, error) {
	types := make([]ir.Type, len(values))
	for i, v := range values {
		types[i] = v.Type()
	}
	return Encode(nil, types, values)
}

func encodeValue(buf *bytes.Buffer, env ir.TypeEnv, t ir.Type, v ir.Value) error {
	t, err := env.Trace(t)
	if err != nil {
		return err
	}
	switch t.Kind {
	case ir.TypeNull, ir.TypeReserved:
		return nil
	case ir.TypeEmpty:
		return fmt.Errorf("cannot encode a value of type empty")
	case ir.TypeBool:
		b, ok := v.(ir.Bool)
		if !ok {
			return mismatch(v, t)
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case ir.TypeNat:
		n, err := ir.ToBig(v)
		if err != nil {
			return err
		}
		return writeBigULEB(buf, n)
	case ir.TypeInt:
		n, err := ir.ToBig(v)
		if err != nil {
			return err
		}
		writeBigSLEB(buf, n)
	case ir.TypeNat8, ir.TypeNat16, ir.TypeNat32, ir.TypeNat64,
		ir.TypeInt8, ir.TypeInt16, ir.TypeInt32, ir.TypeInt64:
		return writeFixed(buf, v, t)
	case ir.TypeFloat32:
		f, ok := v.(ir.Float32)
		if !ok {
			return mismatch(v, t)
		}
		buf.Write(binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))))
	case ir.TypeFloat64:
		f, ok := v.(ir.Float64)
		if !ok {
			return mismatch(v, t)
		}
		buf.Write(binary.LittleEndian.AppendUint64(nil, math.Float64bits(float64(f))))
	case ir.TypeText:
		s, ok := v.(ir.Text)
		if !ok {
			return mismatch(v, t)
		}
		writeULEB(buf, uint64(len(s)))
		buf.WriteString(string(s))
	case ir.TypePrincipal:
		p, ok := v.(ir.PrincipalValue)
		if !ok {
			return mismatch(v, t)
		}
		writePrincipal(buf, p.Principal)
	case ir.TypeOpt:
		switch o := v.(type) {
		case ir.None, ir.Null, ir.Reserved:
			buf.WriteByte(0)
		case ir.Opt:
			buf.WriteByte(1)
			return encodeValue(buf, env, *t.Elem, o.V)
		default:
			return mismatch(v, t)
		}
	case ir.TypeVec:
		if bs, ok := v.(ir.Blob); ok {
			writeULEB(buf, uint64(len(bs)))
			buf.Write(bs)
			return nil
		}
		items, ok := v.(ir.Vec)
		if !ok {
			return mismatch(v, t)
		}
		writeULEB(buf, uint64(len(items)))
		for i, item := range items {
			if err := encodeValue(buf, env, *t.Elem, item); err != nil {
				return fmt.Errorf("vec element %d: %w", i, err)
			}
		}
	case ir.TypeRecord:
		rec, ok := v.(ir.Record)
		if !ok {
			return mismatch(v, t)
		}
		for _, f := range t.Fields {
			fv, ok := rec.Get(f.Label)
			if !ok {
				return fmt.Errorf("record field %s not found", f.Label)
			}
			if err := encodeValue(buf, env, f.Type, fv); err != nil {
				return fmt.Errorf("record field %s: %w", f.Label, err)
			}
		}
	case ir.TypeVariant:
		variant, ok := v.(ir.Variant)
		if !ok {
			return mismatch(v, t)
		}
		for i, f := range t.Fields {
			if f.Label.ID == variant.Field.Label.ID {
				writeULEB(buf, uint64(i))
				return encodeValue(buf, env, f.Type, variant.Field.Value)
			}
		}
		return fmt.Errorf("variant field %s not found in %s", variant.Field.Label, t)
	case ir.TypeService:
		s, ok := v.(ir.Service)
		if !ok {
			return mismatch(v, t)
		}
		writePrincipal(buf, s.Principal)
	case ir.TypeFunc:
		f, ok := v.(ir.FuncRef)
		if !ok {
			return mismatch(v, t)
		}
		buf.WriteByte(1)
		writePrincipal(buf, f.Principal)
		writeULEB(buf, uint64(len(f.Method)))
		buf.WriteString(f.Method)
	default:
		return fmt.Errorf("cannot encode type %s", t)
	}
	return nil
}

func writePrincipal(buf *bytes.Buffer, p ir.Principal) {
	buf.WriteByte(1)
	writeULEB(buf, uint64(len(p.Raw)))
	buf.Write(p.Raw)
}

func writeFixed(buf *bytes.Buffer, v ir.Value, t ir.Type) error {
	var b []byte
	switch n := v.(type) {
	case ir.Nat8:
		b = []byte{byte(n)}
	case ir.Nat16:
		b = binary.LittleEndian.AppendUint16(nil, uint16(n))
	case ir.Nat32:
		b = binary.LittleEndian.AppendUint32(nil, uint32(n))
	case ir.Nat64:
		b = binary.LittleEndian.AppendUint64(nil, uint64(n))
	case ir.Int8:
		b = []byte{byte(n)}
	case ir.Int16:
		b = binary.LittleEndian.AppendUint16(nil, uint16(n))
	case ir.Int32:
		b = binary.LittleEndian.AppendUint32(nil, uint32(n))
	case ir.Int64:
		b = binary.LittleEndian.AppendUint64(nil, uint64(n))
	default:
		return mismatch(v, t)
	}
	if !v.Type().Equal(t) {
		return mismatch(v, t)
	}
	buf.Write(b)
	return nil
}

func mismatch(v ir.Value, t ir.Type) error {
	return fmt.Errorf("type mismatch: %s cannot be of type %s", v, t)
}
