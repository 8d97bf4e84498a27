// Package candid implements the Candid binary wire format ("DIDL").
//
// Encode serializes values against declared argument types, EncodeInferred
// derives the types from the values themselves, Decode reads a message and
// coerces it to expected types, and DecodeUntyped returns the values as
// described by the message's own type table.
package candid
