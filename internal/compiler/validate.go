package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/icrepl/internal/ir"
)

// Interface validation error codes (E200-E299).
const (
	ErrUnboundType     = "E201" // reference to an undefined type name
	ErrAliasCycle      = "E202" // type aliases that never reach a constructor
	ErrOnewayReturns   = "E203" // oneway method declares return values
	ErrUnknownMode     = "E204" // unknown function annotation
	ErrEmptyMethodName = "E205" // method name is empty
)

// ValidationError is a problem found in a compiled interface.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateInterface checks a compiled interface and returns every problem
// found, sorted by field.
func ValidateInterface(iface *ir.Interface) []ValidationError {
	var errs []ValidationError

	for name, t := range iface.Env {
		for _, ref := range referencedNames(t, nil) {
			if _, ok := iface.Env[ref]; !ok {
				errs = append(errs, ValidationError{
					Field:   "type " + name,
					Message: fmt.Sprintf("undefined type %s", ref),
					Code:    ErrUnboundType,
				})
			}
		}
	}
	for _, c := range AnalyzeTypeCycles(iface.Env) {
		if c.Level == "error" {
			errs = append(errs, ValidationError{
				Field:   "type " + c.Path[0],
				Message: c.Message,
				Code:    ErrAliasCycle,
			})
		}
	}

	check := func(field string, f ir.FuncType) {
		for _, t := range append(slices.Clone(f.Args), f.Rets...) {
			for _, ref := range referencedNames(t, nil) {
				if _, ok := iface.Env[ref]; !ok {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("undefined type %s", ref),
						Code:    ErrUnboundType,
					})
				}
			}
		}
		for _, m := range f.Modes {
			if !funcModes[m] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("unknown annotation %q", m),
					Code:    ErrUnknownMode,
				})
			}
		}
		if slices.Contains(f.Modes, "oneway") && len(f.Rets) > 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "oneway methods cannot return values",
				Code:    ErrOnewayReturns,
			})
		}
	}
	for _, name := range iface.MethodNames() {
		if name == "" {
			errs = append(errs, ValidationError{
				Field:   "method",
				Message: "method name is empty",
				Code:    ErrEmptyMethodName,
			})
		}
		check("method "+name, iface.Methods[name])
	}
	if iface.Init != nil {
		check("init", ir.FuncType{Args: iface.Init})
	}

	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		switch {
		case a.Field < b.Field:
			return -1
		case a.Field > b.Field:
			return 1
		}
		return 0
	})
	return errs
}
