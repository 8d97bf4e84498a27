package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation holds.
	Pass bool

	// Output holds the lines printed by show statements, in order.
	Output []string

	// Messages are the messages signed in offline mode.
	Messages []engine.LoggedMessage

	// Calls are the requests seen by the in-memory replica. Nil when the
	// scenario ran against another transport.
	Calls []testutil.Call

	// Err is the error the script stopped with, if any.
	Err error

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Output: []string{}, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Transcript renders the result deterministically for golden comparison:
// output lines, then one line per signed message, then the error.
func (r *Result) Transcript() string {
	var b strings.Builder
	for _, line := range r.Output {
		fmt.Fprintf(&b, "%s\n", line)
	}
	for _, m := range r.Messages {
		canister := "-"
		if m.Message.RequestStatus != nil {
			canister = m.Message.RequestStatus.CanisterID
		}
		fmt.Fprintf(&b, "message %d %s %s\n", m.Seq, m.Message.Ingress.CallType, canister)
	}
	for _, c := range r.Calls {
		fmt.Fprintf(&b, "call %s %s\n", c.Kind, c.Method)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", r.Err)
	}
	return b.String()
}
