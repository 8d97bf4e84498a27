package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/icrepl/internal/ir"
)

// ParseDID compiles a Candid interface description:
//
//	type Tokens = record { e8s : nat64 };
//	service : (InitArgs) -> {
//	  account_balance : (record { account : blob }) -> (Tokens) query;
//	}
//
// Imports are not supported. A file without a service declaration yields
// an interface with no methods.
func ParseDID(src string) (*ir.Interface, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	iface := ir.NewInterface()
	if err := p.parseDefs(iface.Env); err != nil {
		return nil, err
	}
	var methods []ir.MethodType
	var service string
	if p.accept("service") {
		if p.peek().kind == tokIdent {
			p.next()
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			if iface.Init, err = p.parseTuple(); err != nil {
				return nil, err
			}
			if err := p.expect("->"); err != nil {
				return nil, err
			}
		}
		switch {
		case p.isPunct("{"):
			if methods, err = p.parseServiceBody(); err != nil {
				return nil, err
			}
		case p.peek().kind == tokIdent:
			service = p.next().text
		default:
			return nil, p.errorf("expected a service type, found %s", p.peek())
		}
		p.accept(";")
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	if err := p.resolveAliases(iface.Env); err != nil {
		return nil, err
	}
	if service != "" {
		t, err := iface.Env.Trace(ir.VarOf(service))
		if err != nil {
			return nil, err
		}
		if t.Kind != ir.TypeService {
			return nil, fmt.Errorf("%s is not a service type", service)
		}
		methods = t.Methods
	}
	for _, m := range methods {
		if _, dup := iface.Methods[m.Name]; dup {
			return nil, fmt.Errorf("duplicate method %s", m.Name)
		}
		iface.Methods[m.Name] = m.Func
	}
	if errs := ValidateInterface(iface); len(errs) > 0 {
		return nil, joinValidation(errs)
	}
	return iface, nil
}

// parseDefs reads leading `type Name = T;` definitions into env.
func (p *parser) parseDefs(env ir.TypeEnv) error {
	for {
		switch {
		case p.isKeyword("type"):
			p.next()
			name := p.next()
			if name.kind != tokIdent {
				return p.errorf("expected a type name, found %s", name)
			}
			if err := p.expect("="); err != nil {
				return err
			}
			t, err := p.parseType()
			if err != nil {
				return err
			}
			if _, dup := env[name.text]; dup {
				return p.errorf("duplicate type definition %s", name.text)
			}
			env[name.text] = t
			p.accept(";")
		case p.isKeyword("import"):
			return p.errorf("imports are not supported")
		default:
			return nil
		}
	}
}

// ParseInitArgs parses constructor argument metadata: optional type
// definitions followed by an argument tuple, e.g. `type A = nat; (A, text)`.
func ParseInitArgs(src string) (ir.TypeEnv, []ir.Type, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, nil, err
	}
	env := ir.TypeEnv{}
	if err := p.parseDefs(env); err != nil {
		return nil, nil, err
	}
	args, err := p.parseTuple()
	if err != nil {
		return nil, nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, nil, err
	}
	if err := p.resolveAliases(env); err != nil {
		return nil, nil, err
	}
	return env, args, nil
}

// MergeInitArgs combines a service description with separately published
// constructor arguments. Definitions from both must agree.
func MergeInitArgs(service, args string) (*ir.Interface, error) {
	iface, err := ParseDID(service)
	if err != nil {
		return nil, fmt.Errorf("candid:service: %w", err)
	}
	env, init, err := ParseInitArgs(args)
	if err != nil {
		return nil, fmt.Errorf("candid:args: %w", err)
	}
	if err := iface.Env.Merge(env); err != nil {
		return nil, err
	}
	iface.Init = init
	if errs := ValidateInterface(iface); len(errs) > 0 {
		return nil, joinValidation(errs)
	}
	return iface, nil
}

func joinValidation(errs []ValidationError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}
