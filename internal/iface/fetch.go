package iface

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/ir"
)

// Replica is the part of the agent used to fetch metadata.
type Replica interface {
	ReadState(ctx context.Context, effective ir.Principal, paths [][][]byte) (*agent.Certificate, error)
	Query(ctx context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error)
}

// tmpHackMethod is served by canisters built before metadata sections existed.
const tmpHackMethod = "__get_candid_interface_tmp_hack"

// profilingNames is the Candid type of the "name" metadata section written
// by ic-wasm instrumentation.
var profilingNames = ir.VecOf(ir.RecordOf(
	ir.FieldType{Label: ir.UnnamedLabel(0), Type: ir.Prim(ir.TypeNat16)},
	ir.FieldType{Label: ir.UnnamedLabel(1), Type: ir.Prim(ir.TypeText)},
))

// Metadata fetches interfaces from a live replica: the candid:service
// metadata section first, then the legacy query method.
type Metadata struct {
	Replica Replica
}

func (m Metadata) Fetch(ctx context.Context, id ir.Principal) (*CanisterInfo, error) {
	source, err := m.source(ctx, id)
	if err != nil {
		return nil, err
	}
	iface, err := compiler.ParseDID(source)
	if err != nil {
		return nil, fmt.Errorf("parse interface of %s: %w", id, err)
	}
	info := &CanisterInfo{Source: source, Interface: iface}
	if names, err := m.readMetadata(ctx, id, "name"); err == nil {
		if info.Profiling, err = DecodeProfilingNames(names); err != nil {
			return nil, fmt.Errorf("decode profiling names of %s: %w", id, err)
		}
	}
	return info, nil
}

func (m Metadata) source(ctx context.Context, id ir.Principal) (string, error) {
	if b, err := m.readMetadata(ctx, id, "candid:service"); err == nil {
		return string(b), nil
	}
	arg, err := candid.EncodeInferred(nil)
	if err != nil {
		return "", err
	}
	reply, err := m.Replica.Query(ctx, id, id, tmpHackMethod, arg)
	if err != nil {
		return "", &NotFoundError{ID: id.String()}
	}
	vals, err := candid.Decode(reply, nil, []ir.Type{ir.Prim(ir.TypeText)})
	if err != nil {
		return "", fmt.Errorf("decode %s reply: %w", tmpHackMethod, err)
	}
	return string(vals[0].(ir.Text)), nil
}

var errNoMetadata = errors.New("metadata not found")

func (m Metadata) readMetadata(ctx context.Context, id ir.Principal, name string) ([]byte, error) {
	path, err := agent.StatePath("canister", id, "metadata/"+name)
	if err != nil {
		return nil, err
	}
	cert, err := m.Replica.ReadState(ctx, id, [][][]byte{path})
	if err != nil {
		return nil, err
	}
	b, status := cert.Lookup(path...)
	if status != agent.LookupFound {
		return nil, errNoMetadata
	}
	return b, nil
}

// DecodeProfilingNames decodes a Candid `vec record { nat16; text }`.
func DecodeProfilingNames(data []byte) (map[uint16]string, error) {
	vals, err := candid.Decode(data, nil, []ir.Type{profilingNames})
	if err != nil {
		return nil, err
	}
	out := map[uint16]string{}
	entries, _ := vals[0].(ir.Vec)
	for _, e := range entries {
		rec := e.(ir.Record)
		idx, _ := rec.Get(ir.UnnamedLabel(0))
		name, _ := rec.Get(ir.UnnamedLabel(1))
		out[uint16(idx.(ir.Nat16))] = string(name.(ir.Text))
	}
	return out, nil
}

// Static serves interfaces declared in configuration.
type Static map[string]*CanisterInfo

// Fetch implements Fetcher.
func (s Static) Fetch(_ context.Context, id ir.Principal) (*CanisterInfo, error) {
	if info, ok := s[id.String()]; ok {
		return info, nil
	}
	return nil, &NotFoundError{ID: id.String()}
}

// LoadDID compiles a .did file.
func LoadDID(path string) (*CanisterInfo, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	iface, err := compiler.ParseDID(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &CanisterInfo{Source: string(src), Interface: iface}, nil
}

// Chain tries each fetcher in order and returns the first success.
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context, id ir.Principal) (*CanisterInfo, error) {
	var errs []error
	for _, f := range c {
		info, err := f.Fetch(ctx, id)
		if err == nil {
			return info, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, &NotFoundError{ID: id.String()}
	}
	return nil, errors.Join(errs...)
}

// SourceStore persists interface sources between sessions.
type SourceStore interface {
	GetInterface(ctx context.Context, id string) (string, bool, error)
	PutInterface(ctx context.Context, id, source string) error
}

// Persistent consults a SourceStore before Next and records what Next
// finds. Profiling names are not persisted.
type Persistent struct {
	Store SourceStore
	Next  Fetcher
}

func (p Persistent) Fetch(ctx context.Context, id ir.Principal) (*CanisterInfo, error) {
	src, ok, err := p.Store.GetInterface(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if ok {
		iface, err := compiler.ParseDID(src)
		if err != nil {
			return nil, fmt.Errorf("stored interface of %s: %w", id, err)
		}
		return &CanisterInfo{Source: src, Interface: iface}, nil
	}
	info, err := p.Next.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Source != "" {
		if err := p.Store.PutInterface(ctx, id.String(), info.Source); err != nil {
			return nil, err
		}
	}
	return info, nil
}
