package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxCallDepth bounds nested user-function applications.
const DefaultMaxCallDepth = 1000

// DepthExceededError is returned when nested user-function applications
// exceed the session's limit, as with a function that recurses on every
// path:
//
//	function loop(n) { loop(n) };
//	loop(1)
//
// The whole statement fails; no partial result is bound.
type DepthExceededError struct {
	Func  string // The function whose application crossed the limit
	Depth int    // Nesting depth reached
	Limit int    // Maximum allowed depth
}

// Error implements the error interface.
func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("function %s exceeded max call depth: %d > %d limit", e.Func, e.Depth, e.Limit)
}

// IsDepthExceededError returns true if the error is a DepthExceededError.
// Uses errors.As to handle wrapped errors.
func IsDepthExceededError(err error) bool {
	var de *DepthExceededError
	return errors.As(err, &de)
}

// enter returns the depth a function body applied from e runs at, or an
// error once the session's limit is crossed.
func (e *Env) enter(name string) (int, error) {
	depth := e.depth + 1
	if limit := e.session.maxDepth; depth > limit {
		return 0, &EvalError{Code: ErrCodeSemantic, Err: &DepthExceededError{Func: name, Depth: depth, Limit: limit}}
	}
	return depth, nil
}
