package candid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/roach88/icrepl/internal/ir"
)

const maxDepth = 512

// DefaultQuota is the decoding cost budget of one message. Every decoded
// value spends one unit, so zero-sized elements like those of vec null
// are paid for even though they consume no input.
const DefaultQuota = 1 << 21

// ErrQuotaExceeded reports a message whose decoding cost is over budget.
var ErrQuotaExceeded = errors.New("decoding cost exceeds the quota")

type options struct {
	quota int
}

// Option configures decoding.
type Option func(*options)

// WithQuota overrides DefaultQuota.
func WithQuota(n int) Option {
	return func(o *options) { o.quota = n }
}

// DecodeUntyped reads a message using only its own type table. Field
// labels come back as numeric ids.
func DecodeUntyped(data []byte, opts ...Option) ([]ir.Value, error) {
	o := options{quota: DefaultQuota}
	for _, opt := range opts {
		opt(&o)
	}
	r := &reader{data: data}
	if err := readMagic(r); err != nil {
		return nil, err
	}
	table, err := readTable(r)
	if err != nil {
		return nil, err
	}
	refs, err := readRefs(r)
	if err != nil {
		return nil, fmt.Errorf("argument types: %w", err)
	}
	for _, ref := range refs {
		if _, err := table.resolve(ref); err != nil {
			return nil, err
		}
	}
	d := &decoder{r: r, table: table, budget: o.quota, quota: o.quota}
	vals := make([]ir.Value, len(refs))
	for i, ref := range refs {
		v, err := d.value(ref, 0)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		vals[i] = v
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after arguments", r.remaining())
	}
	return vals, nil
}

// Decode reads a message and coerces its values to the expected types.
// Extra trailing arguments are dropped and missing optional ones are
// filled with none.
func Decode(data []byte, env ir.TypeEnv, types []ir.Type, opts ...Option) ([]ir.Value, error) {
	vals, err := DecodeUntyped(data, opts...)
	if err != nil {
		return nil, err
	}
	if len(vals) > len(types) {
		vals = vals[:len(types)]
	}
	return ir.CastArgs(env, vals, types)
}

func readMagic(r *reader) error {
	head, err := r.bytes(len(magic))
	if err != nil || !bytes.Equal(head, magic) {
		return errors.New("wrong magic number: not a Candid message")
	}
	return nil
}

type decoder struct {
	r      *reader
	table  *wireTable
	budget int
	quota  int
}

func (d *decoder) spend(n int) error {
	if n > d.budget {
		d.budget = 0
		return fmt.Errorf("%w of %d", ErrQuotaExceeded, d.quota)
	}
	d.budget -= n
	return nil
}

func (d *decoder) value(ref int64, depth int) (ir.Value, error) {
	if depth > maxDepth {
		return nil, errors.New("value nesting is too deep")
	}
	if err := d.spend(1); err != nil {
		return nil, err
	}
	t, err := d.table.resolve(ref)
	if err != nil {
		return nil, err
	}
	r := d.r
	switch t.op {
	case opNull:
		return ir.Null{}, nil
	case opReserved:
		return ir.Reserved{}, nil
	case opEmpty:
		return nil, errors.New("cannot decode a value of type empty")
	case opBool:
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, fmt.Errorf("invalid bool byte %d", b)
		}
		return ir.Bool(b == 1), nil
	case opNat:
		n, err := r.bigULEB()
		if err != nil {
			return nil, err
		}
		return ir.NewNat(n)
	case opInt:
		n, err := r.bigSLEB()
		if err != nil {
			return nil, err
		}
		return ir.NewInt(n), nil
	case opNat8, opInt8:
		b, err := r.bytes(1)
		if err != nil {
			return nil, err
		}
		if t.op == opNat8 {
			return ir.Nat8(b[0]), nil
		}
		return ir.Int8(int8(b[0])), nil
	case opNat16, opInt16:
		b, err := r.bytes(2)
		if err != nil {
			return nil, err
		}
		u := binary.LittleEndian.Uint16(b)
		if t.op == opNat16 {
			return ir.Nat16(u), nil
		}
		return ir.Int16(int16(u)), nil
	case opNat32, opInt32, opFloat32:
		b, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		u := binary.LittleEndian.Uint32(b)
		switch t.op {
		case opNat32:
			return ir.Nat32(u), nil
		case opInt32:
			return ir.Int32(int32(u)), nil
		}
		return ir.Float32(math.Float32frombits(u)), nil
	case opNat64, opInt64, opFloat64:
		b, err := r.bytes(8)
		if err != nil {
			return nil, err
		}
		u := binary.LittleEndian.Uint64(b)
		switch t.op {
		case opNat64:
			return ir.Nat64(u), nil
		case opInt64:
			return ir.Int64(int64(u)), nil
		}
		return ir.Float64(math.Float64frombits(u)), nil
	case opText:
		n, err := r.length(1)
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, errors.New("text is not valid UTF-8")
		}
		return ir.Text(b), nil
	case opPrincipal:
		p, err := d.principal()
		if err != nil {
			return nil, err
		}
		return ir.PrincipalValue{Principal: p}, nil
	case opOpt:
		tag, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			return ir.None{}, nil
		case 1:
			v, err := d.value(t.elem, depth+1)
			if err != nil {
				return nil, err
			}
			return ir.Opt{V: v}, nil
		}
		return nil, fmt.Errorf("invalid opt tag %d", tag)
	case opVec:
		elem, err := d.table.resolve(t.elem)
		if err != nil {
			return nil, err
		}
		if elem.op == opNat8 {
			n, err := r.length(1)
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(n)
			if err != nil {
				return nil, err
			}
			return ir.Blob(bytes.Clone(b)), nil
		}
		n, err := r.length(0)
		if err != nil {
			return nil, err
		}
		if n > d.budget {
			return nil, d.spend(n)
		}
		items := make(ir.Vec, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			v, err := d.value(t.elem, depth+1)
			if err != nil {
				return nil, fmt.Errorf("vec element %d: %w", i, err)
			}
			items = append(items, v)
		}
		return items, nil
	case opRecord:
		rec := make(ir.Record, len(t.fields))
		for i, f := range t.fields {
			v, err := d.value(f.ref, depth+1)
			if err != nil {
				return nil, fmt.Errorf("record field %d: %w", f.id, err)
			}
			rec[i] = ir.Field{Label: ir.IDLabel(f.id), Value: v}
		}
		return rec, nil
	case opVariant:
		idx, err := r.uleb()
		if err != nil {
			return nil, err
		}
		if idx >= uint64(len(t.fields)) {
			return nil, fmt.Errorf("variant index %d out of range", idx)
		}
		f := t.fields[idx]
		v, err := d.value(f.ref, depth+1)
		if err != nil {
			return nil, err
		}
		return ir.Variant{Field: ir.Field{Label: ir.IDLabel(f.id), Value: v}, Index: idx}, nil
	case opService:
		p, err := d.principal()
		if err != nil {
			return nil, err
		}
		return ir.Service{Principal: p}, nil
	case opFunc:
		tag, err := r.byte()
		if err != nil {
			return nil, err
		}
		if tag != 1 {
			return nil, errors.New("opaque function references are not supported")
		}
		p, err := d.principal()
		if err != nil {
			return nil, err
		}
		n, err := r.length(1)
		if err != nil {
			return nil, err
		}
		m, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		return ir.FuncRef{Principal: p, Method: string(m)}, nil
	}
	return nil, fmt.Errorf("unsupported type opcode %d", t.op)
}

func (d *decoder) principal() (ir.Principal, error) {
	tag, err := d.r.byte()
	if err != nil {
		return ir.Principal{}, err
	}
	if tag != 1 {
		return ir.Principal{}, errors.New("opaque references are not supported")
	}
	n, err := d.r.length(1)
	if err != nil {
		return ir.Principal{}, err
	}
	if n > 29 {
		return ir.Principal{}, fmt.Errorf("principal is %d bytes, longer than 29", n)
	}
	b, err := d.r.bytes(n)
	if err != nil {
		return ir.Principal{}, err
	}
	return ir.Principal{Raw: bytes.Clone(b)}, nil
}
