package candid

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/roach88/icrepl/internal/ir"
)

// Type opcodes.
const (
	opNull      = -1
	opBool      = -2
	opNat       = -3
	opInt       = -4
	opNat8      = -5
	opNat16     = -6
	opNat32     = -7
	opNat64     = -8
	opInt8      = -9
	opInt16     = -10
	opInt32     = -11
	opInt64     = -12
	opFloat32   = -13
	opFloat64   = -14
	opText      = -15
	opReserved  = -16
	opEmpty     = -17
	opOpt       = -18
	opVec       = -19
	opRecord    = -20
	opVariant   = -21
	opFunc      = -22
	opService   = -23
	opPrincipal = -24
)

var primOpcodes = map[ir.TypeKind]int64{
	ir.TypeNull:      opNull,
	ir.TypeBool:      opBool,
	ir.TypeNat:       opNat,
	ir.TypeInt:       opInt,
	ir.TypeNat8:      opNat8,
	ir.TypeNat16:     opNat16,
	ir.TypeNat32:     opNat32,
	ir.TypeNat64:     opNat64,
	ir.TypeInt8:      opInt8,
	ir.TypeInt16:     opInt16,
	ir.TypeInt32:     opInt32,
	ir.TypeInt64:     opInt64,
	ir.TypeFloat32:   opFloat32,
	ir.TypeFloat64:   opFloat64,
	ir.TypeText:      opText,
	ir.TypeReserved:  opReserved,
	ir.TypeEmpty:     opEmpty,
	ir.TypePrincipal: opPrincipal,
}

var modeCodes = map[string]byte{
	"query":           1,
	"oneway":          2,
	"composite_query": 3,
}

// tableBuilder assigns type table indices while encoding.
type tableBuilder struct {
	env     ir.TypeEnv
	entries [][]byte
	dedup   map[string]int64
	vars    map[string]int64
}

func newTableBuilder(env ir.TypeEnv) *tableBuilder {
	return &tableBuilder{
		env:   env,
		dedup: map[string]int64{},
		vars:  map[string]int64{},
	}
}

// ref returns the opcode or table index for t, adding entries as needed.
func (b *tableBuilder) ref(t ir.Type) (int64, error) {
	if op, ok := primOpcodes[t.Kind]; ok {
		return op, nil
	}
	if t.Kind == ir.TypeVar {
		if idx, ok := b.vars[t.Name]; ok {
			return idx, nil
		}
		traced, err := b.env.Trace(t)
		if err != nil {
			return 0, err
		}
		if op, ok := primOpcodes[traced.Kind]; ok {
			return op, nil
		}
		// Reserve the slot first so recursive references resolve to it.
		idx := int64(len(b.entries))
		b.entries = append(b.entries, nil)
		b.vars[t.Name] = idx
		entry, err := b.entry(traced)
		if err != nil {
			return 0, err
		}
		b.entries[idx] = entry
		return idx, nil
	}
	entry, err := b.entry(t)
	if err != nil {
		return 0, err
	}
	if idx, ok := b.dedup[string(entry)]; ok {
		return idx, nil
	}
	idx := int64(len(b.entries))
	b.entries = append(b.entries, entry)
	b.dedup[string(entry)] = idx
	return idx, nil
}

func (b *tableBuilder) entry(t ir.Type) ([]byte, error) {
	var buf bytes.Buffer
	switch t.Kind {
	case ir.TypeOpt, ir.TypeVec:
		ref, err := b.ref(*t.Elem)
		if err != nil {
			return nil, err
		}
		if t.Kind == ir.TypeOpt {
			writeSLEB(&buf, opOpt)
		} else {
			writeSLEB(&buf, opVec)
		}
		writeSLEB(&buf, ref)
	case ir.TypeRecord, ir.TypeVariant:
		refs := make([]int64, len(t.Fields))
		for i, f := range t.Fields {
			ref, err := b.ref(f.Type)
			if err != nil {
				return nil, err
			}
			refs[i] = ref
		}
		if t.Kind == ir.TypeRecord {
			writeSLEB(&buf, opRecord)
		} else {
			writeSLEB(&buf, opVariant)
		}
		writeULEB(&buf, uint64(len(t.Fields)))
		for i, f := range t.Fields {
			writeULEB(&buf, uint64(f.Label.ID))
			writeSLEB(&buf, refs[i])
		}
	case ir.TypeFunc:
		if err := b.funcEntry(&buf, *t.Func); err != nil {
			return nil, err
		}
	case ir.TypeService:
		methods := slices.Clone(t.Methods)
		slices.SortFunc(methods, func(x, y ir.MethodType) int {
			return bytes.Compare([]byte(x.Name), []byte(y.Name))
		})
		refs := make([]int64, len(methods))
		for i, m := range methods {
			ref, err := b.ref(ir.Type{Kind: ir.TypeFunc, Func: &m.Func})
			if err != nil {
				return nil, err
			}
			refs[i] = ref
		}
		writeSLEB(&buf, opService)
		writeULEB(&buf, uint64(len(methods)))
		for i, m := range methods {
			writeULEB(&buf, uint64(len(m.Name)))
			buf.WriteString(m.Name)
			writeSLEB(&buf, refs[i])
		}
	default:
		return nil, fmt.Errorf("cannot build type table entry for %s", t)
	}
	return buf.Bytes(), nil
}

func (b *tableBuilder) funcEntry(buf *bytes.Buffer, f ir.FuncType) error {
	args := make([]int64, len(f.Args))
	for i, a := range f.Args {
		ref, err := b.ref(a)
		if err != nil {
			return err
		}
		args[i] = ref
	}
	rets := make([]int64, len(f.Rets))
	for i, r := range f.Rets {
		ref, err := b.ref(r)
		if err != nil {
			return err
		}
		rets[i] = ref
	}
	writeSLEB(buf, opFunc)
	writeULEB(buf, uint64(len(args)))
	for _, r := range args {
		writeSLEB(buf, r)
	}
	writeULEB(buf, uint64(len(rets)))
	for _, r := range rets {
		writeSLEB(buf, r)
	}
	writeULEB(buf, uint64(len(f.Modes)))
	for _, m := range f.Modes {
		code, ok := modeCodes[m]
		if !ok {
			return fmt.Errorf("unknown function mode %q", m)
		}
		buf.WriteByte(code)
	}
	return nil
}

// write emits the type table section.
func (b *tableBuilder) write(buf *bytes.Buffer) {
	writeULEB(buf, uint64(len(b.entries)))
	for _, e := range b.entries {
		buf.Write(e)
	}
}

// wireType is a decoded type table entry or primitive.
type wireType struct {
	op     int64
	elem   int64
	fields []wireField
	fn     *wireFunc
}

type wireField struct {
	id  uint32
	ref int64
}

type wireFunc struct {
	args, rets []int64
	modes      []string
}

// wireTable is the parsed type table of a message.
type wireTable struct {
	entries []wireType
}

func readTable(r *reader) (*wireTable, error) {
	n, err := r.length(1)
	if err != nil {
		return nil, fmt.Errorf("type table length: %w", err)
	}
	t := &wireTable{entries: make([]wireType, n)}
	for i := range n {
		op, err := r.sleb()
		if err != nil {
			return nil, fmt.Errorf("type table entry %d: %w", i, err)
		}
		e := wireType{op: op}
		switch op {
		case opOpt, opVec:
			if e.elem, err = r.sleb(); err != nil {
				return nil, err
			}
		case opRecord, opVariant:
			count, err := r.length(2)
			if err != nil {
				return nil, err
			}
			var prev int64 = -1
			for range count {
				id, err := r.uleb()
				if err != nil {
					return nil, err
				}
				if id > 0xffffffff {
					return nil, fmt.Errorf("field id %d out of range", id)
				}
				if int64(id) <= prev {
					return nil, fmt.Errorf("field id %d is not in increasing order", id)
				}
				prev = int64(id)
				ref, err := r.sleb()
				if err != nil {
					return nil, err
				}
				e.fields = append(e.fields, wireField{id: uint32(id), ref: ref})
			}
		case opFunc:
			fn := &wireFunc{}
			if fn.args, err = readRefs(r); err != nil {
				return nil, err
			}
			if fn.rets, err = readRefs(r); err != nil {
				return nil, err
			}
			count, err := r.length(1)
			if err != nil {
				return nil, err
			}
			for range count {
				code, err := r.byte()
				if err != nil {
					return nil, err
				}
				mode := ""
				for name, c := range modeCodes {
					if c == code {
						mode = name
					}
				}
				if mode == "" {
					return nil, fmt.Errorf("unknown function mode %d", code)
				}
				fn.modes = append(fn.modes, mode)
			}
			e.fn = fn
		case opService:
			count, err := r.length(2)
			if err != nil {
				return nil, err
			}
			for range count {
				nameLen, err := r.length(1)
				if err != nil {
					return nil, err
				}
				if _, err := r.bytes(nameLen); err != nil {
					return nil, err
				}
				if _, err := r.sleb(); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unsupported type table opcode %d", op)
		}
		t.entries[i] = e
	}
	for i, e := range t.entries {
		refs := []int64{e.elem}
		for _, f := range e.fields {
			refs = append(refs, f.ref)
		}
		if e.fn != nil {
			refs = append(append(refs, e.fn.args...), e.fn.rets...)
		}
		for _, ref := range refs {
			if ref >= int64(len(t.entries)) || (ref < 0 && !isPrimOp(ref)) {
				return nil, fmt.Errorf("type table entry %d references unknown type %d", i, ref)
			}
		}
	}
	return t, nil
}

func readRefs(r *reader) ([]int64, error) {
	n, err := r.length(1)
	if err != nil {
		return nil, err
	}
	refs := make([]int64, n)
	for i := range refs {
		if refs[i], err = r.sleb(); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// resolve returns the table entry for ref, or a primitive pseudo-entry.
func (t *wireTable) resolve(ref int64) (wireType, error) {
	if ref < 0 {
		if !isPrimOp(ref) {
			return wireType{}, fmt.Errorf("unknown type opcode %d", ref)
		}
		return wireType{op: ref}, nil
	}
	if ref >= int64(len(t.entries)) {
		return wireType{}, fmt.Errorf("type index %d out of range", ref)
	}
	return t.entries[ref], nil
}

func isPrimOp(op int64) bool {
	return (op <= opNull && op >= opEmpty) || op == opPrincipal
}
