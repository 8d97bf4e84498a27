package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastNumbers(t *testing.T) {
	tests := []struct {
		name    string
		in      Value
		to      Type
		want    Value
		wantErr bool
	}{
		{"number to nat8", Number("255"), Prim(TypeNat8), Nat8(255), false},
		{"number overflows nat8", Number("256"), Prim(TypeNat8), nil, true},
		{"negative to nat", Number("-1"), Prim(TypeNat), nil, true},
		{"number to int16", Number("-32768"), Prim(TypeInt16), Int16(-32768), false},
		{"nat widens to int", NatFromUint64(5), Prim(TypeInt), IntFromInt64(5), false},
		{"number to float64", Number("2"), Prim(TypeFloat64), Float64(2), false},
		{"float stays float", Float64(1.5), Prim(TypeFloat32), Float32(1.5), false},
		{"text to nat fails", Text("1"), Prim(TypeNat), nil, true},
		{"float to int fails", Float64(1), Prim(TypeInt), nil, true},
		{"nat8 keeps its kind", Nat8(7), Prim(TypeNat8), Nat8(7), false},
		{"float32 widens", Float32(0.5), Prim(TypeFloat64), Float64(0.5), false},
		{"nat64 does not narrow", Nat64(1), Prim(TypeNat8), nil, true},
		{"nat8 does not widen to nat16", Nat8(1), Prim(TypeNat16), nil, true},
		{"int is not a nat", IntFromInt64(1), Prim(TypeNat), nil, true},
		{"int is not a float", IntFromInt64(1), Prim(TypeFloat32), nil, true},
		{"int8 is not an int", Int8(1), Prim(TypeInt), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cast(nil, tt.in, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", got)
			assert.Equal(t, tt.to.Kind, got.Type().Kind)
		})
	}
}

func TestCastOpt(t *testing.T) {
	got, err := Cast(nil, Number("1"), OptOf(Prim(TypeNat)))
	require.NoError(t, err)
	assert.Equal(t, Opt{V: NatFromUint64(1)}, got)

	got, err = Cast(nil, Null{}, OptOf(Prim(TypeNat)))
	require.NoError(t, err)
	assert.Equal(t, None{}, got)

	// A mismatching payload decays to none rather than failing.
	got, err = Cast(nil, Opt{V: Text("x")}, OptOf(Prim(TypeNat)))
	require.NoError(t, err)
	assert.Equal(t, None{}, got)
}

func TestCastBlobAndVec(t *testing.T) {
	got, err := Cast(nil, Vec{Number("1"), Number("2")}, BlobType())
	require.NoError(t, err)
	assert.Equal(t, Blob{1, 2}, got)

	got, err = Cast(nil, Vec{Nat8(4)}, BlobType())
	require.NoError(t, err)
	assert.Equal(t, Blob{4}, got)

	_, err = Cast(nil, Blob{3}, VecOf(Prim(TypeNat)))
	assert.Error(t, err)
}

func TestCastRecordFillsOptionalFields(t *testing.T) {
	ty := RecordOf(
		FieldType{Label: NamedLabel("owner"), Type: Prim(TypeText)},
		FieldType{Label: NamedLabel("memo"), Type: OptOf(Prim(TypeNat64))},
	)
	got, err := Cast(nil, MustRecord(F("owner", Text("me"))), ty)
	require.NoError(t, err)
	rec := got.(Record)
	memo, ok := rec.GetNamed("memo")
	require.True(t, ok)
	assert.Equal(t, None{}, memo)

	_, err = Cast(nil, MustRecord(F("memo", Number("1"))), ty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record field owner not found")
}

func TestCastVariantRetagsIndex(t *testing.T) {
	ty := VariantOf(
		FieldType{Label: NamedLabel("Ok"), Type: Prim(TypeNat)},
		FieldType{Label: NamedLabel("Err"), Type: Prim(TypeText)},
	)
	got, err := Cast(nil, Variant{Field: F("Err", Text("bad"))}, ty)
	require.NoError(t, err)
	v := got.(Variant)
	// Fields sort by hash: Ok (17724) before Err (3456837).
	assert.Equal(t, uint64(1), v.Index)
	assert.Equal(t, Text("bad"), v.Field.Value)

	got, err = Cast(nil, Variant{Field: F("Ok", Number("1")), Index: 5}, ty)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.(Variant).Index)

	_, err = Cast(nil, Variant{Field: F("Nope", Null{})}, ty)
	assert.Error(t, err)
}

func TestCastThroughTypeEnv(t *testing.T) {
	env := TypeEnv{"Amount": Prim(TypeNat64)}
	got, err := Cast(env, Number("9"), VarOf("Amount"))
	require.NoError(t, err)
	assert.Equal(t, Nat64(9), got)

	_, err = Cast(env, Number("9"), VarOf("Missing"))
	assert.Error(t, err)
}

func TestCastArgs(t *testing.T) {
	types := []Type{Prim(TypeText), OptOf(Prim(TypeNat))}
	got, err := CastArgs(nil, []Value{Text("a")}, types)
	require.NoError(t, err)
	assert.Equal(t, []Value{Text("a"), None{}}, got)

	_, err = CastArgs(nil, []Value{Text("a"), Number("1"), Number("2")}, types)
	assert.Error(t, err)
}
