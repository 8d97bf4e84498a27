package compiler

import (
	"github.com/roach88/icrepl/internal/ir"
)

// ParseScript parses a sequence of script statements:
//
//	let r = call ledger.account_balance(record { account = acc });
//	assert r.e8s == (0 : nat64);
//	function double(n) { add(n, n) };
//	show double(21)
//
// Semicolons between statements are optional. A bare expression at the top
// level is shown; inside a function body it becomes the return value.
func ParseScript(src string) ([]ir.Stmt, error) {
	p, err := newScriptParser(src)
	if err != nil {
		return nil, err
	}
	stmts, err := p.parseStmts(false)
	if err != nil {
		return nil, err
	}
	return stmts, p.expectEOF()
}

// ParseStmt parses exactly one statement.
func ParseStmt(src string) (ir.Stmt, error) {
	p, err := newScriptParser(src)
	if err != nil {
		return nil, err
	}
	st, err := p.parseStmt(false)
	if err != nil {
		return nil, err
	}
	p.accept(";")
	return st, p.expectEOF()
}

// ParseScriptExp parses a script expression, which may reference
// variables, call canisters or apply functions.
func ParseScriptExp(src string) (ir.Exp, error) {
	p, err := newScriptParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.parseAnnVal()
	if err != nil {
		return nil, err
	}
	return e, p.expectEOF()
}

func newScriptParser(src string) (*parser, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.script = true
	return p, nil
}

// parseStmts reads statements until end of input or a closing brace.
func (p *parser) parseStmts(inFunc bool) ([]ir.Stmt, error) {
	stmts := []ir.Stmt{}
	for p.peek().kind != tokEOF && !p.isPunct("}") {
		if p.accept(";") {
			continue
		}
		st, err := p.parseStmt(inFunc)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

func (p *parser) parseStmt(inFunc bool) (ir.Stmt, error) {
	switch {
	case p.accept("let"):
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		return ir.StmtLet{Name: name, Exp: e}, nil
	case p.accept("show"):
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		return ir.StmtShow{Exp: e}, nil
	case p.accept("assert"):
		return p.parseAssert()
	case p.accept("function"):
		return p.parseFunction()
	}
	e, err := p.parseAnnVal()
	if err != nil {
		return nil, err
	}
	if inFunc {
		return ir.StmtLet{Name: "_", Exp: e}, nil
	}
	return ir.StmtShow{Exp: e}, nil
}

func (p *parser) parseAssert() (ir.Stmt, error) {
	left, err := p.parseAnnVal()
	if err != nil {
		return nil, err
	}
	var op ir.AssertOp
	switch {
	case p.accept("=="):
		op = ir.AssertEqual
	case p.accept("!="):
		op = ir.AssertNotEqual
	default:
		return nil, p.errorf("expected == or !=, found %s", p.peek())
	}
	right, err := p.parseAnnVal()
	if err != nil {
		return nil, err
	}
	return ir.StmtAssert{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseFunction() (ir.Stmt, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	params := []string{}
	for !p.isPunct(")") {
		param, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
		if !p.accept(",") {
			break
		}
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	body, err := p.parseStmts(true)
	if err != nil {
		return nil, err
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return ir.StmtFunc{Name: name, Params: params, Body: body}, nil
}

// parseScriptTerm parses the non-literal forms of a script expression.
func (p *parser) parseScriptTerm() (ir.Exp, error) {
	tok := p.peek()
	if tok.kind != tokIdent {
		return nil, p.errorf("expected an expression, found %s", tok)
	}
	switch tok.text {
	case "call":
		p.next()
		mode := ir.CallMode{Kind: ir.CallLive}
		if p.accept("as") {
			relay, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			mode = ir.CallMode{Kind: ir.CallProxy, Relay: relay}
		}
		m, err := p.parseMethod()
		if err != nil {
			return nil, err
		}
		args, err := p.parseOptionalArgs()
		if err != nil {
			return nil, err
		}
		return ir.ExpCall{Method: &m, Args: args, Mode: mode}, nil
	case "encode":
		p.next()
		call := ir.ExpCall{Mode: ir.CallMode{Kind: ir.CallEncode}}
		if !p.isPunct("(") {
			m, err := p.parseMethod()
			if err != nil {
				return nil, err
			}
			call.Method = &m
		}
		args, err := p.parseOptionalArgs()
		if err != nil {
			return nil, err
		}
		if call.Method == nil && args == nil {
			return nil, p.errorf("encode needs a method or an argument list")
		}
		call.Args = args
		return call, nil
	case "par_call":
		p.next()
		return p.parseParCall()
	case "decode":
		p.next()
		d := ir.ExpDecode{}
		if p.accept("as") {
			m, err := p.parseMethod()
			if err != nil {
				return nil, err
			}
			d.Method = &m
		}
		blob, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		d.Blob = blob
		return d, nil
	case "fail":
		p.next()
		e, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return ir.ExpFail{Exp: e}, nil
	}

	p.next()
	if p.isPunct("(") {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return ir.ExpApply{Func: tok.text, Args: args}, nil
	}
	path := ir.ExpPath{Name: tok.text}
	for {
		sel, ok, err := p.parseSelector()
		if err != nil {
			return nil, err
		}
		if !ok {
			return path, nil
		}
		path.Selectors = append(path.Selectors, sel)
	}
}

// parseSelector reads one projection step: [i], .field, ?, .map(f),
// .filter(f) or .fold(init, f).
func (p *parser) parseSelector() (ir.Selector, bool, error) {
	switch {
	case p.accept("?"):
		return ir.Selector{Kind: ir.SelectOption}, true, nil
	case p.accept("["):
		idx, err := p.parseAnnVal()
		if err != nil {
			return ir.Selector{}, false, err
		}
		return ir.Selector{Kind: ir.SelectIndex, Index: idx}, true, p.expect("]")
	case p.isPunct("."):
		p.next()
		name := p.next()
		switch name.kind {
		case tokNumber:
			return ir.Selector{Kind: ir.SelectIndex, Index: ir.ExpNumber(name.text)}, true, nil
		case tokIdent, tokText:
		default:
			return ir.Selector{}, false, p.errorf("expected a field name, found %s", name)
		}
		if name.kind == tokIdent && p.isPunct("(") {
			switch name.text {
			case "map", "filter":
				fn, err := p.parseSelectorFunc()
				if err != nil {
					return ir.Selector{}, false, err
				}
				kind := ir.SelectMap
				if name.text == "filter" {
					kind = ir.SelectFilter
				}
				return ir.Selector{Kind: kind, Func: fn}, true, nil
			case "fold":
				p.next()
				init, err := p.parseAnnVal()
				if err != nil {
					return ir.Selector{}, false, err
				}
				if err := p.expect(","); err != nil {
					return ir.Selector{}, false, err
				}
				fn, err := p.expectIdent()
				if err != nil {
					return ir.Selector{}, false, err
				}
				return ir.Selector{Kind: ir.SelectFold, Init: init, Func: fn}, true, p.expect(")")
			}
		}
		return ir.Selector{Kind: ir.SelectField, Field: name.text}, true, nil
	}
	return ir.Selector{}, false, nil
}

func (p *parser) parseSelectorFunc() (string, error) {
	if err := p.expect("("); err != nil {
		return "", err
	}
	fn, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	return fn, p.expect(")")
}

// parseMethod reads canister.method where either side may be a text
// literal, as in "aaaaa-aa".raw_rand.
func (p *parser) parseMethod() (ir.Method, error) {
	canister := p.next()
	if canister.kind != tokIdent && canister.kind != tokText {
		return ir.Method{}, p.errorf("expected a canister, found %s", canister)
	}
	if err := p.expect("."); err != nil {
		return ir.Method{}, err
	}
	method := p.next()
	if method.kind != tokIdent && method.kind != tokText {
		return ir.Method{}, p.errorf("expected a method name, found %s", method)
	}
	return ir.Method{Canister: canister.text, Method: method.text}, nil
}

// parseOptionalArgs returns nil when no argument list follows.
func (p *parser) parseOptionalArgs() ([]ir.Exp, error) {
	if !p.isPunct("(") {
		return nil, nil
	}
	return p.parseArgList()
}

func (p *parser) parseArgList() ([]ir.Exp, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	args := []ir.Exp{}
	for !p.isPunct(")") {
		e, err := p.parseAnnVal()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if !p.accept(",") {
			break
		}
	}
	return args, p.expect(")")
}

func (p *parser) parseParCall() (ir.Exp, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}
	var calls []ir.FuncCall
	for !p.isPunct("]") {
		m, err := p.parseMethod()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		calls = append(calls, ir.FuncCall{Method: m, Args: args})
		if !p.accept(",") && !p.accept(";") {
			break
		}
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, p.errorf("par_call needs at least one call")
	}
	return ir.ExpParCall{Calls: calls}, nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", p.errorf("expected an identifier, found %s", t)
	}
	return t.text, nil
}
