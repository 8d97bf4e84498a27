package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/icrepl/internal/ir"
)

var funcModes = map[string]bool{"query": true, "oneway": true, "composite_query": true}

// ParseType parses a single Candid type such as `vec record { nat; text }`.
// Type names that are not primitives become references into a TypeEnv.
func ParseType(src string) (ir.Type, error) {
	p, err := newParser(src)
	if err != nil {
		return ir.Type{}, err
	}
	t, err := p.parseType()
	if err != nil {
		return ir.Type{}, err
	}
	if err := p.resolveAliases(nil); err != nil {
		return ir.Type{}, err
	}
	return t, p.expectEOF()
}

func (p *parser) parseType() (ir.Type, error) {
	tok := p.peek()
	if tok.kind != tokIdent {
		return ir.Type{}, p.errorf("expected a type, found %s", tok)
	}
	p.next()
	switch tok.text {
	case "opt", "vec":
		elem, err := p.parseType()
		if err != nil {
			return ir.Type{}, err
		}
		if tok.text == "opt" {
			return ir.OptOf(elem), nil
		}
		return ir.VecOf(elem), nil
	case "blob":
		return ir.BlobType(), nil
	case "record", "variant":
		fields, err := p.parseFieldTypes(tok.text == "record")
		if err != nil {
			return ir.Type{}, err
		}
		if tok.text == "record" {
			return ir.RecordOf(fields...), nil
		}
		return ir.VariantOf(fields...), nil
	case "func":
		f, err := p.parseFuncType()
		if err != nil {
			return ir.Type{}, err
		}
		return ir.Type{Kind: ir.TypeFunc, Func: &f}, nil
	case "service":
		methods, err := p.parseServiceBody()
		if err != nil {
			return ir.Type{}, err
		}
		return ir.Type{Kind: ir.TypeService, Methods: methods}, nil
	}
	if k, ok := ir.PrimitiveByName(tok.text); ok {
		return ir.Prim(k), nil
	}
	return ir.VarOf(tok.text), nil
}

// parseLabel reads a field name, quoted name or numeric id.
func (p *parser) parseLabel() (ir.Label, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent, tokText:
		return ir.NamedLabel(tok.text), nil
	case tokNumber:
		id, err := strconv.ParseUint(strings.ReplaceAll(tok.text, "_", ""), 10, 32)
		if err != nil {
			return ir.Label{}, p.errorf("invalid field id %s", tok.text)
		}
		return ir.IDLabel(uint32(id)), nil
	}
	return ir.Label{}, p.errorf("expected a field label, found %s", tok)
}

// isLabelThen reports whether the next tokens are a label followed by sep.
func (p *parser) isLabelThen(sep string) bool {
	k := p.peek().kind
	if k != tokIdent && k != tokText && k != tokNumber {
		return false
	}
	next := p.peekAt(1)
	return next.kind == tokPunct && next.text == sep
}

func (p *parser) parseFieldTypes(record bool) ([]ir.FieldType, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var fields []ir.FieldType
	var next uint32
	for !p.isPunct("}") {
		var f ir.FieldType
		switch {
		case p.isLabelThen(":"):
			l, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			p.next()
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			f = ir.FieldType{Label: l, Type: t}
		case !record:
			l, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			f = ir.FieldType{Label: l, Type: ir.Prim(ir.TypeNull)}
		default:
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			f = ir.FieldType{Label: ir.UnnamedLabel(next), Type: t}
		}
		next = f.Label.ID + 1
		fields = append(fields, f)
		if !p.accept(";") {
			break
		}
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	sorted := ir.RecordOf(fields...).Fields
	labels := make([]ir.Label, len(sorted))
	for i, f := range sorted {
		labels[i] = f.Label
	}
	if err := ir.CheckUnique(labels); err != nil {
		return nil, p.errorf("%v", err)
	}
	return fields, nil
}

// parseTuple reads `(T, name : T, ...)`; argument names are discarded.
func (p *parser) parseTuple() ([]ir.Type, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	types := []ir.Type{}
	for !p.isPunct(")") {
		if p.isLabelThen(":") {
			p.next()
			p.next()
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
		if !p.accept(",") {
			break
		}
	}
	return types, p.expect(")")
}

func (p *parser) parseFuncType() (ir.FuncType, error) {
	args, err := p.parseTuple()
	if err != nil {
		return ir.FuncType{}, err
	}
	if err := p.expect("->"); err != nil {
		return ir.FuncType{}, err
	}
	rets, err := p.parseTuple()
	if err != nil {
		return ir.FuncType{}, err
	}
	f := ir.FuncType{Args: args, Rets: rets}
	for p.peek().kind == tokIdent && funcModes[p.peek().text] {
		f.Modes = append(f.Modes, p.next().text)
	}
	return f, nil
}

// parseServiceBody reads `{ name : functype; other : FuncAlias; }`.
func (p *parser) parseServiceBody() ([]ir.MethodType, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var methods []ir.MethodType
	var aliases []string
	for !p.isPunct("}") {
		name := p.next()
		if name.kind != tokIdent && name.kind != tokText {
			return nil, p.errorf("expected a method name, found %s", name)
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		m := ir.MethodType{Name: name.text}
		alias := ""
		if p.isPunct("(") {
			f, err := p.parseFuncType()
			if err != nil {
				return nil, err
			}
			m.Func = f
		} else {
			ref := p.next()
			if ref.kind != tokIdent {
				return nil, p.errorf("expected a function type, found %s", ref)
			}
			alias = ref.text
		}
		methods = append(methods, m)
		aliases = append(aliases, alias)
		if !p.accept(";") {
			break
		}
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	for i, alias := range aliases {
		if alias != "" {
			p.pending = append(p.pending, pendingAlias{method: &methods[i], name: alias})
		}
	}
	return methods, nil
}

// pendingAlias is a method declared with a named func type, resolved once
// every type definition has been read.
type pendingAlias struct {
	method *ir.MethodType
	name   string
}

// resolveAliases fills in methods declared through func type names.
func (p *parser) resolveAliases(env ir.TypeEnv) error {
	for _, a := range p.pending {
		t, err := env.Trace(ir.VarOf(a.name))
		if err != nil {
			return err
		}
		if t.Kind != ir.TypeFunc {
			return fmt.Errorf("method %s: %s is not a function type", a.method.Name, a.name)
		}
		a.method.Func = *t.Func
	}
	p.pending = nil
	return nil
}
