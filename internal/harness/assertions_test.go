package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/testutil"
)

func intPtr(n int) *int { return &n }

func TestAssertError(t *testing.T) {
	ok := &Result{}
	failed := &Result{Err: errors.New("assertion failed: 1 is not equal to 2")}

	assert.NoError(t, assertError(ok, ""))
	assert.NoError(t, assertError(failed, "not equal"))
	assert.Error(t, assertError(ok, "not equal"))
	assert.Error(t, assertError(failed, ""))
	assert.Error(t, assertError(failed, "timeout"))
}

func TestAssertOutput(t *testing.T) {
	r := &Result{Output: []string{"1", "2"}}

	assert.NoError(t, assertOutput(r, []string{"1", "2"}))
	err := assertOutput(r, []string{"1"})
	var ae *AssertionError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 | 2", ae.Actual)

	assert.NoError(t, assertOutputContains(r, "2"))
	assert.Error(t, assertOutputContains(r, "3"))
}

func TestAssertMessageCount(t *testing.T) {
	r := &Result{Messages: []engine.LoggedMessage{{Seq: 1}}}
	assert.NoError(t, assertMessageCount(r, 1))
	assert.Error(t, assertMessageCount(r, 0))
}

func TestAssertCalls_AllowsParallelReordering(t *testing.T) {
	r := &Result{Calls: []testutil.Call{{Method: "b"}, {Method: "a"}}}
	assert.NoError(t, assertCalls(r, []string{"b", "a"}))
	assert.NoError(t, assertCalls(r, []string{"a", "b"}))
	assert.Error(t, assertCalls(r, []string{"a"}))
}

func TestEvaluateAssertions_SkipsUnsetExpectations(t *testing.T) {
	r := &Result{Output: []string{"x"}}
	assert.Empty(t, EvaluateAssertions(r, Expectation{}))
	assert.Len(t, EvaluateAssertions(r, Expectation{Messages: intPtr(2), Output: []string{}}), 2)
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{Type: "output", Expected: "a", Actual: "b", Output: []string{"b"}}
	assert.Equal(t, "Assertion failed: output\n  Expected: a\n  Actual: b\n\nFull output:\n  [1] b\n", err.Error())
}

func TestTranscript(t *testing.T) {
	r := &Result{
		Output: []string{`"hi"`},
		Calls:  []testutil.Call{{Kind: "query", Method: "greet"}},
		Err:    errors.New("boom"),
	}
	assert.Equal(t, "\"hi\"\ncall query greet\nerror: boom\n", r.Transcript())
}
