package engine

import (
	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
)

// effectiveID returns the canister a call is routed through. Calls to an
// ordinary canister route to the canister itself. Management canister
// methods that take a canister_id argument route to that canister; the
// others use the session's default effective id.
func (s *Session) effectiveID(canister ir.Principal, method string, arg []byte) (ir.Principal, error) {
	if !canister.IsManagement() {
		return canister, nil
	}
	if !iface.CanisterIDArg(method) {
		return s.effective, nil
	}
	vals, err := candid.DecodeUntyped(arg)
	if err != nil {
		return ir.Principal{}, semantic("%s: cannot decode arguments: %v", method, err)
	}
	if len(vals) > 0 {
		if rec, ok := vals[0].(ir.Record); ok {
			if v, ok := rec.GetNamed("canister_id"); ok {
				if p, ok := v.(ir.PrincipalValue); ok {
					return p.Principal, nil
				}
			}
		}
	}
	return ir.Principal{}, semantic("%s expects a record with a canister_id field", method)
}
