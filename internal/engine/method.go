package engine

import (
	"context"
	"strings"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/wasm"
)

// Signature is a method type together with the type definitions it
// refers to.
type Signature struct {
	Env  ir.TypeEnv
	Func ir.FuncType
}

// MethodInfo is a resolved call target.
type MethodInfo struct {
	CanisterID ir.Principal
	// Signature is nil when the method type is unknown; arguments are then
	// encoded with types inferred from their values.
	Signature *Signature
	// Profiling is set for canisters instrumented for profiling.
	Profiling map[uint16]string
}

// resolvePrincipal reads a canister reference: a variable holding a
// principal, or principal text.
func (e *Env) resolvePrincipal(name string) (ir.Principal, error) {
	if v, ok := e.vars[name]; ok {
		switch p := v.(type) {
		case ir.PrincipalValue:
			return p.Principal, nil
		case ir.Service:
			return p.Principal, nil
		}
		return ir.Principal{}, newError(ErrCodeResolution, "%s is not a principal", name)
	}
	p, err := ir.DecodePrincipal(name)
	if err != nil {
		return ir.Principal{}, wrapError(ErrCodeResolution, err, "cannot resolve canister %s", name)
	}
	return p, nil
}

// resolveMethod determines the address and, when known, the signature of m.
//
// Encoding __init_args against a variable holding a Wasm module reads the
// init argument types from the module metadata. Otherwise the signature
// comes from the interface cache; a canister whose interface cannot be
// fetched resolves with no signature.
func (e *Env) resolveMethod(ctx context.Context, m ir.Method, encode bool) (*MethodInfo, error) {
	logger := e.session.logger
	if encode && m.Method == ir.InitArgsMethod {
		if blob, ok := e.vars[m.Canister].(ir.Blob); ok {
			return initArgsFromWasm(blob, e)
		}
	}
	id, err := e.resolvePrincipal(m.Canister)
	if err != nil {
		return nil, err
	}
	info := &MethodInfo{CanisterID: id}
	ci, err := e.session.cache.Get(ctx, id)
	if err != nil {
		logger.Debug("no interface", "canister", id.String(), "error", err)
		return info, nil
	}
	info.Profiling = ci.Profiling
	if ci.Interface == nil {
		return info, nil
	}
	if m.Method == ir.InitArgsMethod {
		if ci.Interface.Init == nil {
			logger.Warn("no init args in did file, use types inferred from textual value", "canister", m.Canister)
			return info, nil
		}
		info.Signature = &Signature{Env: ci.Interface.Env, Func: ir.FuncType{Args: ci.Interface.Init, Rets: []ir.Type{}}}
		return info, nil
	}
	f, ok := ci.Interface.Method(m.Method)
	if !ok {
		if !strings.HasPrefix(m.Method, "__") {
			logger.Warn("cannot get type for "+m.String()+", use types inferred from textual value")
		}
		return info, nil
	}
	info.Signature = &Signature{Env: ci.Interface.Env, Func: f}
	return info, nil
}

// initArgsFromWasm resolves init argument types from the candid:args and
// candid:service metadata of a module that is not deployed yet.
func initArgsFromWasm(module ir.Blob, e *Env) (*MethodInfo, error) {
	info := &MethodInfo{CanisterID: ir.AnonymousPrincipal()}
	m, err := wasm.Parse(module)
	if err != nil {
		return nil, semantic("%v", err)
	}
	args, ok := m.Metadata("candid:args")
	if !ok {
		e.session.logger.Warn("no candid:args metadata in the Wasm module, use types inferred from textual value")
		return info, nil
	}
	service := "service : {}"
	if src, ok := m.Metadata("candid:service"); ok {
		service = string(src)
	}
	merged, err := compiler.MergeInitArgs(service, string(args))
	if err != nil {
		return nil, wrapError(ErrCodeResolution, err, "invalid init arg types")
	}
	info.Signature = &Signature{Env: merged.Env, Func: ir.FuncType{Args: merged.Init, Rets: []ir.Type{}}}
	return info, nil
}
