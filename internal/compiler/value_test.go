package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

func TestParseValueFormats(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"true", "true"},
		{"null", "null"},
		{`"hello"`, `"hello"`},
		{"42", "42"},
		{"-3", "-3"},
		{"42 : nat", "42 : nat"},
		{"1000 : nat64", "1_000 : nat64"},
		{"-5 : int", "-5 : int"},
		{"2.5", "2.5 : float64"},
		{"opt 1", "opt 1"},
		{"vec { 1; 2; 3 }", "vec { 1; 2; 3 }"},
		{"vec {}", "vec {}"},
		{`blob "\00ab"`, `blob "\00ab"`},
		{`record { b = "x"; a = 1 }`, `record { a = 1; b = "x" }`},
		{`record { 1; "x" }`, `record { 1; "x" }`},
		{"variant { ok }", "variant { ok }"},
		{`variant { err = "boom" }`, `variant { err = "boom" }`},
		{`principal "aaaaa-aa"`, `principal "aaaaa-aa"`},
		{`service "2vxsx-fae"`, `service "2vxsx-fae"`},
		{`func "aaaaa-aa".create_canister`, `func "aaaaa-aa".create_canister`},
		{"(7 : nat8)", "7 : nat8"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := ParseValue(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ir.Format(v))
		})
	}
}

func TestParseValueCastsAnnotations(t *testing.T) {
	v, err := ParseValue("vec { 1; 2 } : vec nat8")
	require.NoError(t, err)
	assert.Equal(t, ir.Blob{1, 2}, v)

	v, err = ParseValue(`variant { Err = "x" } : variant { Ok : nat; Err : text }`)
	require.NoError(t, err)
	variant, ok := v.(ir.Variant)
	require.True(t, ok)
	assert.Equal(t, uint64(1), variant.Index)

	v, err = ParseValue("record { a = 1 } : record { a : nat; b : opt text }")
	require.NoError(t, err)
	assert.Equal(t, "record { a = 1 : nat; b = null }", ir.Format(v))
}

func TestParseValueErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"out of range", "300 : nat8", "casting to type nat8 fails"},
		{"duplicate field", "record { a = 1; a = 2 }", "duplicate label"},
		{"bad principal", `principal "not-a-principal"`, ""},
		{"missing value", "opt", "expected a value"},
		{"unclosed vec", "vec { 1; 2", `expected "}"`},
		{"bare identifier", "foo", "expected a value"},
		{"trailing", "1 2", "unexpected 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseValue(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseArgs(t *testing.T) {
	vals, err := ParseArgs(`(1 : nat, "two", opt true)`)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "1 : nat", ir.Format(vals[0]))
	assert.Equal(t, ir.Text("two"), vals[1])
	assert.Equal(t, ir.Opt{V: ir.Bool(true)}, vals[2])

	vals, err = ParseArgs("()")
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestParseExpKeepsStructure(t *testing.T) {
	e, err := ParseExp("record { owner = principal \"aaaaa-aa\"; n = 3 : nat }")
	require.NoError(t, err)
	rec, ok := e.(ir.ExpRecord)
	require.True(t, ok)
	require.Len(t, rec, 2)
	assert.Equal(t, "owner", rec[0].Label.Name)
	_, annotated := rec[1].Value.(ir.ExpAnnVal)
	assert.True(t, annotated)
}

func TestLiteralValueRejectsNonLiterals(t *testing.T) {
	_, err := LiteralValue(ir.Var("x"))
	assert.ErrorContains(t, err, "is not a literal")
}
