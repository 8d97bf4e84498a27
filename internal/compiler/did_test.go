package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

const ledgerDID = `
type Tokens = record { e8s : nat64 };
type AccountBalanceArgs = record { account : blob };
type TransferResult = variant { Ok : nat64; Err : text };
type Notify = func (nat64) -> () oneway;

service : (record { minting_account : text }) -> {
  account_balance : (AccountBalanceArgs) -> (Tokens) query;
  transfer : (record { to : blob; amount : Tokens }) -> (TransferResult);
  notify : Notify;
}
`

func TestParseDIDLedger(t *testing.T) {
	iface, err := ParseDID(ledgerDID)
	require.NoError(t, err)

	assert.Equal(t, []string{"account_balance", "notify", "transfer"}, iface.MethodNames())
	assert.Len(t, iface.Env, 4)
	require.Len(t, iface.Init, 1)
	assert.Equal(t, "record { minting_account : text }", iface.Init[0].String())

	balance, ok := iface.Method("account_balance")
	require.True(t, ok)
	assert.True(t, balance.IsQuery())
	assert.Equal(t, "(AccountBalanceArgs) -> (Tokens) query", balance.String())

	transfer, _ := iface.Method("transfer")
	assert.False(t, transfer.IsQuery())

	notify, _ := iface.Method("notify")
	assert.Equal(t, []string{"oneway"}, notify.Modes)
}

func TestParseDIDNamedService(t *testing.T) {
	iface, err := ParseDID(`
		type Counter = service { get : () -> (nat) query; inc : () -> () };
		service counter : Counter
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "inc"}, iface.MethodNames())
	assert.Nil(t, iface.Init)
}

func TestParseDIDRecursiveType(t *testing.T) {
	iface, err := ParseDID(`
		type List = opt record { head : nat; tail : List };
		service : { sum : (List) -> (nat) query }
	`)
	require.NoError(t, err)
	cycles := AnalyzeTypeCycles(iface.Env)
	require.Len(t, cycles, 1)
	assert.Equal(t, "info", cycles[0].Level)
	assert.Equal(t, []string{"List", "List"}, cycles[0].Path)
}

func TestParseDIDNoService(t *testing.T) {
	iface, err := ParseDID(`type A = nat;`)
	require.NoError(t, err)
	assert.Empty(t, iface.Methods)
	assert.Contains(t, iface.Env, "A")
}

func TestParseDIDErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"alias cycle", "type A = B; type B = A; service : {}", "E202"},
		{"unbound type", "service : { f : (Missing) -> () }", "E201"},
		{"oneway returns", "service : { f : () -> (nat) oneway }", "E203"},
		{"duplicate method", "service : { f : () -> (); f : () -> () }", "duplicate method f"},
		{"duplicate type", "type A = nat; type A = text;", "duplicate type definition A"},
		{"import", `import "other.did"; service : {}`, "imports are not supported"},
		{"method alias not func", "type A = nat; service : { f : A }", "A is not a function type"},
		{"service alias not service", "type A = nat; service : A", "A is not a service type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDID(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseInitArgs(t *testing.T) {
	env, args, err := ParseInitArgs(`type Mode = variant { install; upgrade }; (Mode, opt text)`)
	require.NoError(t, err)
	assert.Contains(t, env, "Mode")
	require.Len(t, args, 2)
	assert.Equal(t, ir.VarOf("Mode"), args[0])
	assert.Equal(t, "opt text", args[1].String())
}

func TestMergeInitArgs(t *testing.T) {
	iface, err := MergeInitArgs(
		`type Cfg = record { owner : principal }; service : { get : () -> (Cfg) query }`,
		`type Cfg = record { owner : principal }; (Cfg)`,
	)
	require.NoError(t, err)
	assert.Equal(t, []ir.Type{ir.VarOf("Cfg")}, iface.Init)

	_, err = MergeInitArgs(
		`type Cfg = record { owner : principal }; service : {}`,
		`type Cfg = nat; (Cfg)`,
	)
	assert.ErrorContains(t, err, "conflicting definitions for type Cfg")

	_, err = MergeInitArgs(`service : {}`, `(`)
	assert.ErrorContains(t, err, "candid:args")
}
