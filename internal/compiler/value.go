package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/icrepl/internal/ir"
)

// ParseExp parses a Candid value literal, optionally annotated with a type
// (`1 : nat8`), into a literal expression tree.
func ParseExp(src string) (ir.Exp, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.parseAnnVal()
	if err != nil {
		return nil, err
	}
	return e, p.expectEOF()
}

// ParseValue parses a Candid value literal and reduces it to a value.
func ParseValue(src string) (ir.Value, error) {
	e, err := ParseExp(src)
	if err != nil {
		return nil, err
	}
	return LiteralValue(e)
}

// ParseArgs parses a parenthesized argument list such as `(1, "a")`.
func ParseArgs(src string) ([]ir.Value, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var vals []ir.Value
	for !p.isPunct(")") {
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		v, err := LiteralValue(e)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return vals, p.expectEOF()
}

func (p *parser) parseAnnVal() (ir.Exp, error) {
	e, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if p.accept(":") {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.resolveAliases(nil); err != nil {
			return nil, err
		}
		return ir.ExpAnnVal{Exp: e, Type: t}, nil
	}
	return e, nil
}

func (p *parser) parseValue() (ir.Exp, error) {
	tok := p.peek()
	switch tok.kind {
	case tokText:
		p.next()
		return ir.ExpText(tok.text), nil
	case tokNumber:
		p.next()
		return ir.ExpNumber(tok.text), nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(strings.ReplaceAll(tok.text, "_", ""), 64)
		if err != nil {
			return nil, p.errorf("invalid float %s", tok.text)
		}
		return ir.ExpFloat64(f), nil
	case tokPunct:
		if tok.text == "(" {
			p.next()
			e, err := p.parseAnnVal()
			if err != nil {
				return nil, err
			}
			return e, p.expect(")")
		}
	case tokIdent:
		p.next()
		switch tok.text {
		case "true", "false":
			return ir.ExpBool(tok.text == "true"), nil
		case "null":
			return ir.ExpNull{}, nil
		case "opt":
			e, err := p.parseAnnVal()
			if err != nil {
				return nil, err
			}
			return ir.ExpOpt{Exp: e}, nil
		case "vec":
			return p.parseVec()
		case "record":
			return p.parseRecord()
		case "variant":
			return p.parseVariant()
		case "blob":
			s, err := p.expectText()
			if err != nil {
				return nil, err
			}
			return ir.ExpBlob(s), nil
		case "principal", "service":
			id, err := p.expectPrincipal()
			if err != nil {
				return nil, err
			}
			if tok.text == "service" {
				return ir.ExpService{Principal: id}, nil
			}
			return ir.ExpPrincipal{Principal: id}, nil
		case "func":
			id, err := p.expectPrincipal()
			if err != nil {
				return nil, err
			}
			if err := p.expect("."); err != nil {
				return nil, err
			}
			m := p.next()
			if m.kind != tokIdent && m.kind != tokText {
				return nil, p.errorf("expected a method name, found %s", m)
			}
			return ir.ExpFunc{Principal: id, Method: m.text}, nil
		}
		p.pos--
		if p.script {
			return p.parseScriptTerm()
		}
	}
	return nil, p.errorf("expected a value, found %s", tok)
}

func (p *parser) expectText() (string, error) {
	t := p.next()
	if t.kind != tokText {
		return "", p.errorf("expected a text literal, found %s", t)
	}
	return t.text, nil
}

func (p *parser) expectPrincipal() (ir.Principal, error) {
	s, err := p.expectText()
	if err != nil {
		return ir.Principal{}, err
	}
	id, err := ir.DecodePrincipal(s)
	if err != nil {
		return ir.Principal{}, p.errorf("%v", err)
	}
	return id, nil
}

func (p *parser) parseVec() (ir.Exp, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	items := ir.ExpVec{}
	for !p.isPunct("}") {
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if !p.accept(";") {
			break
		}
	}
	return items, p.expect("}")
}

func (p *parser) parseRecord() (ir.Exp, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	fields := ir.ExpRecord{}
	var next uint32
	for !p.isPunct("}") {
		var f ir.FieldExp
		if p.isLabelThen("=") {
			l, err := p.parseLabel()
			if err != nil {
				return nil, err
			}
			p.next()
			f.Label = l
		} else {
			f.Label = ir.UnnamedLabel(next)
		}
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		f.Value = e
		next = f.Label.ID + 1
		fields = append(fields, f)
		if !p.accept(";") {
			break
		}
	}
	return fields, p.expect("}")
}

func (p *parser) parseVariant() (ir.Exp, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	l, err := p.parseLabel()
	if err != nil {
		return nil, err
	}
	var e ir.Exp = ir.ExpNull{}
	if p.accept("=") {
		if e, err = p.parseAnnVal(); err != nil {
			return nil, err
		}
	}
	p.accept(";")
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return ir.ExpVariant{Field: ir.FieldExp{Label: l, Value: e}}, nil
}

// LiteralValue reduces an expression made only of literals and type
// annotations to a value. Variables, calls and functions are rejected.
func LiteralValue(e ir.Exp) (ir.Value, error) {
	switch x := e.(type) {
	case ir.ExpBool:
		return ir.Bool(x), nil
	case ir.ExpNull:
		return ir.Null{}, nil
	case ir.ExpText:
		return ir.Text(x), nil
	case ir.ExpNumber:
		return ir.Number(x), nil
	case ir.ExpFloat64:
		return ir.Float64(x), nil
	case ir.ExpBlob:
		return ir.Blob(x), nil
	case ir.ExpPrincipal:
		return ir.PrincipalValue{Principal: x.Principal}, nil
	case ir.ExpService:
		return ir.Service{Principal: x.Principal}, nil
	case ir.ExpFunc:
		return ir.FuncRef{Principal: x.Principal, Method: x.Method}, nil
	case ir.ExpOpt:
		v, err := LiteralValue(x.Exp)
		if err != nil {
			return nil, err
		}
		return ir.Opt{V: v}, nil
	case ir.ExpVec:
		out := make(ir.Vec, len(x))
		for i, item := range x {
			v, err := LiteralValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case ir.ExpRecord:
		fields := make([]ir.Field, len(x))
		for i, f := range x {
			v, err := LiteralValue(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = ir.Field{Label: f.Label, Value: v}
		}
		return ir.NewRecord(fields...)
	case ir.ExpVariant:
		v, err := LiteralValue(x.Field.Value)
		if err != nil {
			return nil, err
		}
		return ir.Variant{Field: ir.Field{Label: x.Field.Label, Value: v}, Index: x.Index}, nil
	case ir.ExpAnnVal:
		v, err := LiteralValue(x.Exp)
		if err != nil {
			return nil, err
		}
		out, err := ir.Cast(nil, v, x.Type)
		if err != nil {
			return nil, fmt.Errorf("casting to type %s fails: %w", x.Type, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not a literal", e)
}
