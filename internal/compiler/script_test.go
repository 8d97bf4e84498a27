package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

func TestParseScriptStatements(t *testing.T) {
	src := `
		// greeting
		let r = call greeter.greet("a");
		show r
		assert r == "hello, a"
		assert r != "x";
		function double(n) { let m = add(n, n); m }
		double(2)
	`
	stmts, err := ParseScript(src)
	require.NoError(t, err)
	require.Len(t, stmts, 6)

	assert.Equal(t, ir.StmtLet{Name: "r", Exp: ir.Call("greeter", "greet", ir.ExpText("a"))}, stmts[0])
	assert.Equal(t, ir.StmtShow{Exp: ir.Var("r")}, stmts[1])
	assert.Equal(t, ir.StmtAssert{Left: ir.Var("r"), Op: ir.AssertEqual, Right: ir.ExpText("hello, a")}, stmts[2])
	assert.Equal(t, ir.AssertNotEqual, stmts[3].(ir.StmtAssert).Op)
	assert.Equal(t, ir.StmtFunc{
		Name:   "double",
		Params: []string{"n"},
		Body: []ir.Stmt{
			ir.StmtLet{Name: "m", Exp: ir.Apply("add", ir.Var("n"), ir.Var("n"))},
			ir.StmtLet{Name: "_", Exp: ir.Var("m")},
		},
	}, stmts[4])
	assert.Equal(t, ir.StmtShow{Exp: ir.Apply("double", ir.ExpNumber("2"))}, stmts[5])
}

func TestParseScriptCalls(t *testing.T) {
	tests := []struct {
		src  string
		want ir.Exp
	}{
		{
			"call c.m()",
			ir.ExpCall{Method: &ir.Method{Canister: "c", Method: "m"}, Args: []ir.Exp{}},
		},
		{
			"call c.m",
			ir.ExpCall{Method: &ir.Method{Canister: "c", Method: "m"}},
		},
		{
			`call "aaaaa-aa".raw_rand()`,
			ir.ExpCall{Method: &ir.Method{Canister: "aaaaa-aa", Method: "raw_rand"}, Args: []ir.Exp{}},
		},
		{
			"call as wallet c.m(1)",
			ir.ExpCall{
				Method: &ir.Method{Canister: "c", Method: "m"},
				Args:   []ir.Exp{ir.ExpNumber("1")},
				Mode:   ir.CallMode{Kind: ir.CallProxy, Relay: "wallet"},
			},
		},
		{
			"encode c.m(x)",
			ir.ExpCall{
				Method: &ir.Method{Canister: "c", Method: "m"},
				Args:   []ir.Exp{ir.Var("x")},
				Mode:   ir.CallMode{Kind: ir.CallEncode},
			},
		},
		{
			`encode (1, "a")`,
			ir.ExpCall{Args: []ir.Exp{ir.ExpNumber("1"), ir.ExpText("a")}, Mode: ir.CallMode{Kind: ir.CallEncode}},
		},
		{
			"decode as c.m b",
			ir.ExpDecode{Method: &ir.Method{Canister: "c", Method: "m"}, Blob: ir.Var("b")},
		},
		{
			"decode b",
			ir.ExpDecode{Blob: ir.Var("b")},
		},
		{
			"par_call [a.f(1), b.g()]",
			ir.ExpParCall{Calls: []ir.FuncCall{
				{Method: ir.Method{Canister: "a", Method: "f"}, Args: []ir.Exp{ir.ExpNumber("1")}},
				{Method: ir.Method{Canister: "b", Method: "g"}, Args: []ir.Exp{}},
			}},
		},
		{
			"fail call c.m()",
			ir.ExpFail{Exp: ir.ExpCall{Method: &ir.Method{Canister: "c", Method: "m"}, Args: []ir.Exp{}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseScriptExp(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e)
		})
	}
}

func TestParseScriptSelectors(t *testing.T) {
	e, err := ParseScriptExp("xs[0].owner?.map(f).filter(g).fold(0, h).1")
	require.NoError(t, err)
	assert.Equal(t, ir.ExpPath{Name: "xs", Selectors: []ir.Selector{
		{Kind: ir.SelectIndex, Index: ir.ExpNumber("0")},
		{Kind: ir.SelectField, Field: "owner"},
		{Kind: ir.SelectOption},
		{Kind: ir.SelectMap, Func: "f"},
		{Kind: ir.SelectFilter, Func: "g"},
		{Kind: ir.SelectFold, Init: ir.ExpNumber("0"), Func: "h"},
		{Kind: ir.SelectIndex, Index: ir.ExpNumber("1")},
	}}, e)
}

func TestParseScriptLiteralsWithVariables(t *testing.T) {
	e, err := ParseScriptExp("record { owner = me; amount = (10 : nat64) }")
	require.NoError(t, err)
	assert.Equal(t, ir.RecordExp(
		ir.FE("owner", ir.Var("me")),
		ir.FE("amount", ir.ExpAnnVal{Exp: ir.ExpNumber("10"), Type: ir.Prim(ir.TypeNat64)}),
	), e)

	e, err = ParseScriptExp("(opt x) : opt nat")
	require.NoError(t, err)
	ann, ok := e.(ir.ExpAnnVal)
	require.True(t, ok)
	assert.Equal(t, ir.ExpOpt{Exp: ir.Var("x")}, ann.Exp)
}

func TestParseValueRejectsVariables(t *testing.T) {
	_, err := ParseValue("record { a = x }")
	assert.Error(t, err)
}

func TestParseStmt(t *testing.T) {
	st, err := ParseStmt("let x = 1;")
	require.NoError(t, err)
	assert.Equal(t, ir.StmtLet{Name: "x", Exp: ir.ExpNumber("1")}, st)

	_, err = ParseStmt("let x = 1 let y = 2")
	assert.Error(t, err)
}

func TestParseScriptErrors(t *testing.T) {
	tests := []string{
		"let = 1",
		"assert x",
		"assert x = 1",
		"call c",
		"par_call []",
		"encode",
		"function f(a { }",
		"x[0",
		"show }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := ParseScript(src)
			assert.Error(t, err)
		})
	}
}

func TestIsIncomplete(t *testing.T) {
	tests := []struct {
		src        string
		incomplete bool
	}{
		{"function f(x) {", true},
		{"let r = call c.m(", true},
		{`show "abc`, true},
		{"record { a = 1;\n", true},
		{"show 1 )", false},
		{"let = 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseScript(tt.src)
			require.Error(t, err)
			assert.Equal(t, tt.incomplete, IsIncomplete(err))
		})
	}
	assert.False(t, IsIncomplete(nil))
}
