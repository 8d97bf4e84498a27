package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/icrepl/internal/ir"
)

func TestValidateInterface(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*ir.Interface)
		codes []string
	}{
		{
			name:  "valid",
			setup: func(i *ir.Interface) { i.Methods["get"] = ir.FuncType{Rets: []ir.Type{ir.Prim(ir.TypeNat)}, Modes: []string{"query"}} },
		},
		{
			name:  "unbound in method",
			setup: func(i *ir.Interface) { i.Methods["get"] = ir.FuncType{Args: []ir.Type{ir.VarOf("X")}} },
			codes: []string{ErrUnboundType},
		},
		{
			name:  "unbound in env",
			setup: func(i *ir.Interface) { i.Env["A"] = ir.OptOf(ir.VarOf("Missing")) },
			codes: []string{ErrUnboundType},
		},
		{
			name: "alias cycle",
			setup: func(i *ir.Interface) {
				i.Env["A"] = ir.VarOf("B")
				i.Env["B"] = ir.VarOf("A")
			},
			codes: []string{ErrAliasCycle},
		},
		{
			name:  "oneway with returns",
			setup: func(i *ir.Interface) { i.Methods["f"] = ir.FuncType{Rets: []ir.Type{ir.Prim(ir.TypeNat)}, Modes: []string{"oneway"}} },
			codes: []string{ErrOnewayReturns},
		},
		{
			name:  "unknown mode",
			setup: func(i *ir.Interface) { i.Methods["f"] = ir.FuncType{Modes: []string{"fast"}} },
			codes: []string{ErrUnknownMode},
		},
		{
			name:  "empty method name",
			setup: func(i *ir.Interface) { i.Methods[""] = ir.FuncType{} },
			codes: []string{ErrEmptyMethodName},
		},
		{
			name:  "unbound init arg",
			setup: func(i *ir.Interface) { i.Init = []ir.Type{ir.VarOf("Cfg")} },
			codes: []string{ErrUnboundType},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iface := ir.NewInterface()
			tt.setup(iface)
			errs := ValidateInterface(iface)
			codes := []string{}
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			if tt.codes == nil {
				tt.codes = []string{}
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestValidateCollectsAllErrorsSorted(t *testing.T) {
	iface := ir.NewInterface()
	iface.Methods["z"] = ir.FuncType{Args: []ir.Type{ir.VarOf("Q")}}
	iface.Methods["a"] = ir.FuncType{Modes: []string{"fast"}}

	errs := ValidateInterface(iface)
	require.Len(t, errs, 2)
	assert.Equal(t, "method a", errs[0].Field)
	assert.Equal(t, "method z", errs[1].Field)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "method get", Message: "undefined type X", Code: ErrUnboundType}
	assert.Equal(t, "[E201] method get: undefined type X", err.Error())
}
