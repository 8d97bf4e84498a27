package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes the output to help debug the failure.
type AssertionError struct {
	Type     string   // Expectation that failed
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Output   []string // Full output for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Output) > 0 {
		fmt.Fprintf(&buf, "\nFull output:\n")
		for i, line := range e.Output {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every expectation against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, expect Expectation) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	add(assertError(result, expect.Error))
	if expect.Output != nil {
		add(assertOutput(result, expect.Output))
	}
	for _, want := range expect.OutputContains {
		add(assertOutputContains(result, want))
	}
	if expect.Messages != nil {
		add(assertMessageCount(result, *expect.Messages))
	}
	if expect.Calls != nil {
		add(assertCalls(result, expect.Calls))
	}
	return errs
}

// assertError checks the script failed with want in its message, or did
// not fail when want is empty.
func assertError(result *Result, want string) error {
	switch {
	case want == "" && result.Err == nil:
		return nil
	case want == "":
		return &AssertionError{
			Type:     "error",
			Expected: "no error",
			Actual:   result.Err.Error(),
			Output:   result.Output,
		}
	case result.Err == nil:
		return &AssertionError{
			Type:     "error",
			Expected: fmt.Sprintf("error containing %q", want),
			Actual:   "no error",
			Output:   result.Output,
		}
	case !strings.Contains(result.Err.Error(), want):
		return &AssertionError{
			Type:     "error",
			Expected: fmt.Sprintf("error containing %q", want),
			Actual:   result.Err.Error(),
			Output:   result.Output,
		}
	}
	return nil
}

func assertOutput(result *Result, want []string) error {
	if slices.Equal(result.Output, want) {
		return nil
	}
	return &AssertionError{
		Type:     "output",
		Expected: strings.Join(want, " | "),
		Actual:   strings.Join(result.Output, " | "),
		Output:   result.Output,
	}
}

func assertOutputContains(result *Result, want string) error {
	for _, line := range result.Output {
		if strings.Contains(line, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     "output_contains",
		Expected: fmt.Sprintf("a line containing %q", want),
		Actual:   "not found in output",
		Output:   result.Output,
	}
}

func assertMessageCount(result *Result, want int) error {
	if len(result.Messages) == want {
		return nil
	}
	return &AssertionError{
		Type:     "messages",
		Expected: fmt.Sprintf("%d signed messages", want),
		Actual:   fmt.Sprintf("%d signed messages", len(result.Messages)),
		Output:   result.Output,
	}
}

// assertCalls compares the replica's methods in order. Calls run by
// par_call may arrive in any order, so they are compared as a multiset.
func assertCalls(result *Result, want []string) error {
	got := make([]string, len(result.Calls))
	for i, c := range result.Calls {
		got[i] = c.Method
	}
	if slices.Equal(got, want) {
		return nil
	}
	sortedGot, sortedWant := slices.Sorted(slices.Values(got)), slices.Sorted(slices.Values(want))
	if slices.Equal(sortedGot, sortedWant) {
		return nil
	}
	return &AssertionError{
		Type:     "calls",
		Expected: strings.Join(want, ", "),
		Actual:   strings.Join(got, ", "),
		Output:   result.Output,
	}
}
