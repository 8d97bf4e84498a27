package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	cuetoken "cuelang.org/go/cue/token"

	"github.com/roach88/icrepl/internal/ir"
)

// Canister is a canister alias declared in configuration.
type Canister struct {
	Name string
	ID   ir.Principal
	// DID is a path to a .did file, resolved by the caller.
	DID string
	// Interface holds inline method declarations; nil when none are given.
	Interface *ir.Interface
}

// CompileCanisters reads every alias under a `canisters` struct:
//
//	canisters: {
//		counter: {
//			id: "rrkah-fqaaa-aaaaa-aaaaq-cai"
//			types: Count: "nat"
//			methods: {
//				get: { rets: ["Count"], mode: "query" }
//				inc: { args: ["nat"] }
//			}
//		}
//		ledger: { id: "ryjl3-tyaaa-aaaaa-aaaba-cai", did: "ledger.did" }
//	}
func CompileCanisters(v cue.Value) ([]Canister, error) {
	if !v.Exists() {
		return nil, nil
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Canister
	for iter.Next() {
		c, err := CompileCanister(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// CompileCanister parses one canister declaration. The alias is taken
// from the last path selector.
func CompileCanister(v cue.Value) (*Canister, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	c := &Canister{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		c.Name = sels[len(sels)-1].String()
	}

	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return nil, &CompileError{Field: c.Name + ".id", Message: "canister id is required", Pos: v.Pos()}
	}
	idText, err := idVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if c.ID, err = ir.DecodePrincipal(idText); err != nil {
		return nil, &CompileError{Field: c.Name + ".id", Message: err.Error(), Pos: idVal.Pos()}
	}

	if didVal := v.LookupPath(cue.ParsePath("did")); didVal.Exists() {
		if c.DID, err = didVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	methodsVal := v.LookupPath(cue.ParsePath("methods"))
	typesVal := v.LookupPath(cue.ParsePath("types"))
	initVal := v.LookupPath(cue.ParsePath("init"))
	if !methodsVal.Exists() && !typesVal.Exists() && !initVal.Exists() {
		return c, nil
	}
	if c.DID != "" {
		return nil, &CompileError{
			Field:   c.Name,
			Message: "did and inline methods are mutually exclusive",
			Pos:     v.Pos(),
		}
	}

	iface := ir.NewInterface()
	if typesVal.Exists() {
		iter, err := typesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := compileTypeString(iter.Value(), fmt.Sprintf("%s.types.%s", c.Name, iter.Label()))
			if err != nil {
				return nil, err
			}
			iface.Env[iter.Label()] = t
		}
	}
	if initVal.Exists() {
		if iface.Init, err = compileTypeList(initVal, c.Name+".init"); err != nil {
			return nil, err
		}
	}
	if methodsVal.Exists() {
		iter, err := methodsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			f, err := compileMethod(iter.Value(), c.Name+".methods."+iter.Label())
			if err != nil {
				return nil, err
			}
			iface.Methods[iter.Label()] = f
		}
	}

	if errs := ValidateInterface(iface); len(errs) > 0 {
		return nil, &CompileError{Field: c.Name, Message: joinValidation(errs).Error(), Pos: v.Pos()}
	}
	c.Interface = iface
	return c, nil
}

func compileMethod(v cue.Value, field string) (ir.FuncType, error) {
	var f ir.FuncType
	var err error
	if args := v.LookupPath(cue.ParsePath("args")); args.Exists() {
		if f.Args, err = compileTypeList(args, field+".args"); err != nil {
			return f, err
		}
	}
	if rets := v.LookupPath(cue.ParsePath("rets")); rets.Exists() {
		if f.Rets, err = compileTypeList(rets, field+".rets"); err != nil {
			return f, err
		}
	}
	if f.Args == nil {
		f.Args = []ir.Type{}
	}
	if f.Rets == nil {
		f.Rets = []ir.Type{}
	}
	if modeVal := v.LookupPath(cue.ParsePath("mode")); modeVal.Exists() {
		mode, err := modeVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		if mode != "" {
			if !funcModes[mode] {
				return f, &CompileError{Field: field + ".mode", Message: fmt.Sprintf("unknown mode %q", mode), Pos: modeVal.Pos()}
			}
			f.Modes = []string{mode}
		}
	}
	return f, nil
}

func compileTypeList(v cue.Value, field string) ([]ir.Type, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	types := []ir.Type{}
	for i := 0; iter.Next(); i++ {
		t, err := compileTypeString(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// compileTypeString parses a CUE string holding Candid type syntax.
func compileTypeString(v cue.Value, field string) (ir.Type, error) {
	if v.IncompleteKind() != cue.StringKind {
		return ir.Type{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected Candid type text, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	s, err := v.String()
	if err != nil {
		return ir.Type{}, formatCUEError(err)
	}
	t, err := ParseType(strings.TrimSpace(s))
	if err != nil {
		return ir.Type{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return t, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     cuetoken.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// first error with a position wins
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
