package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

func TestRun_ShowPrintsAndBinds(t *testing.T) {
	env, stdout := newTestEnv(t, nil)

	runOK(t, env, ir.StmtShow{Exp: ir.RecordExp(ir.FE("a", ir.ExpAnnVal{Exp: num("1"), Type: ir.Prim(ir.TypeNat)}))})

	assert.Equal(t, "record { a = 1 : nat }\n", stdout.String())
	v, ok := env.Get("_")
	require.True(t, ok)
	assert.IsType(t, ir.Record{}, v)
}

func TestRun_LetDoesNotTouchLastResult(t *testing.T) {
	env, _ := newTestEnv(t, nil)

	runOK(t, env, ir.StmtLet{Name: "x", Exp: num("1")})

	_, ok := env.Get("_")
	assert.False(t, ok)
	assert.Equal(t, []string{"x"}, env.Names())
}

func TestRun_Assert(t *testing.T) {
	nat := func(s string) ir.Exp { return ir.ExpAnnVal{Exp: num(s), Type: ir.Prim(ir.TypeNat)} }

	tests := []struct {
		name    string
		stmt    ir.StmtAssert
		wantErr string
	}{
		{"equal numbers", ir.StmtAssert{Left: num("1"), Op: ir.AssertEqual, Right: num("1")}, ""},
		{"right cast to left type", ir.StmtAssert{Left: nat("1"), Op: ir.AssertEqual, Right: num("1")}, ""},
		{"opt widening", ir.StmtAssert{Left: ir.ExpOpt{Exp: text("a")}, Op: ir.AssertEqual, Right: text("a")}, ""},
		{"not equal holds", ir.StmtAssert{Left: text("a"), Op: ir.AssertNotEqual, Right: text("b")}, ""},
		{"equal fails", ir.StmtAssert{Left: nat("1"), Op: ir.AssertEqual, Right: num("2")}, "assertion failed: 1 : nat is not equal to 2"},
		{"not equal fails", ir.StmtAssert{Left: text("a"), Op: ir.AssertNotEqual, Right: text("a")}, `assertion failed: "a" is equal to "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _ := newTestEnv(t, nil)
			err := Run(context.Background(), env, tt.stmt)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsAssertion(err))
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestRun_StopsAtFirstError(t *testing.T) {
	env, _ := newTestEnv(t, nil)

	err := RunAll(context.Background(), env, []ir.Stmt{
		ir.StmtLet{Name: "a", Exp: num("1")},
		ir.StmtLet{Name: "b", Exp: ir.Var("missing")},
		ir.StmtLet{Name: "c", Exp: num("3")},
	})
	require.Error(t, err)
	_, ok := env.Get("c")
	assert.False(t, ok)
}

func TestBind_SplitsProfilingCost(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	result := ir.Tuple(ir.Text("ok"), ir.Record{{Label: ir.NamedLabel(costField), Value: ir.Int64(150)}})

	env.bind("r", result, true)

	r, _ := env.Get("r")
	assert.Equal(t, ir.Text("ok"), r)
	last, _ := env.Get("_")
	assert.Equal(t, ir.Text("ok"), last)
	cost, ok := env.Get("__cost_r")
	require.True(t, ok)
	assert.Equal(t, ir.Int64(150), cost)
}

func TestBind_PlainTupleIsKept(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	pair := ir.Tuple(ir.Text("a"), ir.Text("b"))

	env.bind("r", pair, true)

	r, _ := env.Get("r")
	assert.Equal(t, pair, r)
	_, ok := env.Get("__cost_r")
	assert.False(t, ok)
}

func TestEnv_SpawnCopiesScope(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	env.Set("a", ir.Number("1"))
	env.Set("_", ir.Number("2"))
	env.Define("f", Func{})

	child := env.Spawn()
	child.Set("b", ir.Number("3"))

	_, ok := child.Get("a")
	assert.True(t, ok)
	_, ok = child.Get("_")
	assert.False(t, ok)
	_, ok = env.Get("b")
	assert.False(t, ok)
	assert.Contains(t, child.funcs, "f")
	assert.Same(t, env.Session(), child.Session())
}
