package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/greet_online.yaml")
	require.NoError(t, err)

	assert.Equal(t, "greet_online", s.Name)
	assert.Equal(t, "testdata/scenarios", s.BaseDir)
	assert.Equal(t, "greeter.did", s.Canisters["greeter"].DID)
	assert.Equal(t, []string{"greet", "inc"}, s.Expect.Calls)

	stmts, err := s.Statements()
	require.NoError(t, err)
	assert.Len(t, stmts, 5)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled field
scirpt: show 1
`))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "description: d\nscript: show 1\n", "name is required"},
		{"no description", "name: n\nscript: show 1\n", "description is required"},
		{"no statements", "name: n\ndescription: d\n", "script or steps are required"},
		{
			"bad principal",
			"name: n\ndescription: d\nscript: show 1\ncanisters:\n  c:\n    id: not-a-principal!\n",
			"canisters.c",
		},
		{
			"did and candid",
			"name: n\ndescription: d\nscript: show 1\ncanisters:\n  c:\n    id: aaaaa-aa\n    did: c.did\n    candid: 'service : {}'\n",
			"mutually exclusive",
		},
		{
			"reply key",
			"name: n\ndescription: d\nscript: show 1\nreplies:\n  greet: '(1)'\n",
			"key must be alias.method",
		},
		{
			"reply alias",
			"name: n\ndescription: d\nscript: show 1\nreplies:\n  other.greet: '(1)'\n",
			"unknown canister",
		},
		{"script syntax", "name: n\ndescription: d\nscript: let = 1\n", "script"},
		{
			"step without exp",
			"name: n\ndescription: d\nsteps:\n  - let: x\n",
			"steps[0]: exp is required",
		},
		{
			"two statement kinds",
			"name: n\ndescription: d\nsteps:\n  - let: x\n    show: x\n    exp: '1'\n",
			"only one of",
		},
		{
			"equals and differs",
			"name: n\ndescription: d\nsteps:\n  - assert: x\n    equals: '1'\n    differs: '2'\n",
			"mutually exclusive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStatements_Steps(t *testing.T) {
	s := &Scenario{
		Script: "let a = 1",
		Steps: []Step{
			{Function: "twice", Params: []string{"x"}, Body: []Step{{Exp: "add(x, x)"}}},
			{Assert: "twice(a)", Differs: "3"},
			{Exp: "a"},
		},
	}
	stmts, err := s.Statements()
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Equal(t, ir.StmtLet{Name: "a", Exp: ir.ExpNumber("1")}, stmts[0])
	assert.Equal(t, ir.StmtFunc{
		Name:   "twice",
		Params: []string{"x"},
		Body:   []ir.Stmt{ir.StmtLet{Name: "_", Exp: ir.Apply("add", ir.Var("x"), ir.Var("x"))}},
	}, stmts[1])
	assert.Equal(t, ir.StmtAssert{
		Left:  ir.Apply("twice", ir.Var("a")),
		Op:    ir.AssertNotEqual,
		Right: ir.ExpNumber("3"),
	}, stmts[2])
	assert.Equal(t, ir.StmtShow{Exp: ir.Var("a")}, stmts[3])
}

func TestScenarioFilesParse(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			assert.NoError(t, err)
		})
	}
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
