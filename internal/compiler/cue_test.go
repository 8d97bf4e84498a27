package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileCUE(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileCanistersInline(t *testing.T) {
	v := compileCUE(t, `
		canisters: {
			counter: {
				id: "rrkah-fqaaa-aaaaa-aaaaq-cai"
				types: Count: "nat"
				init: ["opt Count"]
				methods: {
					get: { rets: ["Count"], mode: "query" }
					inc: { args: ["nat"] }
				}
			}
			ledger: {
				id: "ryjl3-tyaaa-aaaaa-aaaba-cai"
				did: "ledger.did"
			}
		}
	`)

	got, err := CompileCanisters(v.LookupPath(cue.ParsePath("canisters")))
	require.NoError(t, err)
	require.Len(t, got, 2)

	counter := got[0]
	assert.Equal(t, "counter", counter.Name)
	assert.Equal(t, "rrkah-fqaaa-aaaaa-aaaaq-cai", counter.ID.String())
	require.NotNil(t, counter.Interface)
	assert.Equal(t, []string{"get", "inc"}, counter.Interface.MethodNames())
	get, _ := counter.Interface.Method("get")
	assert.True(t, get.IsQuery())
	assert.Equal(t, "() -> (Count) query", get.String())
	inc, _ := counter.Interface.Method("inc")
	assert.Equal(t, "(nat) -> ()", inc.String())
	require.Len(t, counter.Interface.Init, 1)

	ledger := got[1]
	assert.Equal(t, "ledger", ledger.Name)
	assert.Equal(t, "ledger.did", ledger.DID)
	assert.Nil(t, ledger.Interface)
}

func TestCompileCanisterMissingPath(t *testing.T) {
	v := compileCUE(t, `other: 1`)
	got, err := CompileCanisters(v.LookupPath(cue.ParsePath("canisters")))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompileCanisterErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing id", `c: { did: "x.did" }`, "canister id is required"},
		{"bad id", `c: { id: "nope!" }`, "c.id"},
		{"id not a string", `c: { id: 42 }`, ""},
		{"bad type text", `c: { id: "aaaaa-aa", methods: f: { args: ["record {"] } }`, "c.methods.f.args[0]"},
		{"type not a string", `c: { id: "aaaaa-aa", types: A: 3 }`, "expected Candid type text"},
		{"unknown mode", `c: { id: "aaaaa-aa", methods: f: { mode: "fast" } }`, `unknown mode "fast"`},
		{"did and methods", `c: { id: "aaaaa-aa", did: "a.did", methods: f: {} }`, "mutually exclusive"},
		{"unbound type", `c: { id: "aaaaa-aa", methods: f: { args: ["Missing"] } }`, "E201"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compileCUE(t, tt.src)
			_, err := CompileCanister(v.LookupPath(cue.ParsePath("c")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "counter.id", Message: "canister id is required"}
	assert.Equal(t, "counter.id: canister id is required", err.Error())
}
