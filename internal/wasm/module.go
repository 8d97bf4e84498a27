// Package wasm reads canister metadata out of Wasm modules and drives the
// external ic-wasm tool for profiling instrumentation.
package wasm

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/aviate-labs/leb128"
)

var (
	wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}
	gzipMagic = []byte{0x1f, 0x8b}
)

// CustomSection is a named custom section of a module.
type CustomSection struct {
	Name    string
	Content []byte
}

// Module holds the custom sections of a parsed module.
type Module struct {
	Custom []CustomSection
}

// Parse reads the section headers of a module, gunzipping it first when
// needed. Only custom sections are retained.
func Parse(data []byte) (*Module, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gunzip module: %w", err)
		}
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("gunzip module: %w", err)
		}
	}
	if len(data) < 8 || !bytes.Equal(data[:4], wasmMagic) {
		return nil, errors.New("not a wasm module")
	}
	m := &Module{}
	r := &reader{data: data, pos: 8}
	for r.pos < len(r.data) {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.uleb()
		if err != nil {
			return nil, err
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		if id != 0 {
			continue
		}
		sr := &reader{data: body}
		name, err := sr.name()
		if err != nil {
			return nil, fmt.Errorf("custom section name: %w", err)
		}
		m.Custom = append(m.Custom, CustomSection{Name: name, Content: body[sr.pos:]})
	}
	return m, nil
}

// Section returns the content of the first custom section called name.
func (m *Module) Section(name string) ([]byte, bool) {
	for _, s := range m.Custom {
		if s.Name == name {
			return s.Content, true
		}
	}
	return nil, false
}

// Metadata returns canister metadata published under name, public or private.
func (m *Module) Metadata(name string) ([]byte, bool) {
	for _, vis := range []string{"icp:public ", "icp:private "} {
		if c, ok := m.Section(vis + name); ok {
			return c, true
		}
	}
	return nil, false
}

// MetadataNames lists the metadata entries of the module.
func (m *Module) MetadataNames() []string {
	var out []string
	for _, s := range m.Custom {
		for _, vis := range []string{"icp:public ", "icp:private "} {
			if rest, ok := strings.CutPrefix(s.Name, vis); ok {
				out = append(out, rest)
			}
		}
	}
	return out
}

type reader struct {
	data []byte
	pos  int
}

var errEOF = errors.New("unexpected end of module")

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, errEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// uleb reads a u32 as used for wasm sizes and counts.
func (r *reader) uleb() (int, error) {
	if r.pos >= len(r.data) {
		return 0, errEOF
	}
	br := bytes.NewReader(r.data[r.pos:])
	v, err := leb128.DecodeUnsigned(br)
	if err != nil {
		return 0, errEOF
	}
	r.pos = len(r.data) - br.Len()
	if !v.IsUint64() || v.Uint64() > math.MaxUint32 {
		return 0, fmt.Errorf("LEB128 value %s overflows u32", v)
	}
	return int(v.Uint64()), nil
}

func (r *reader) name() (string, error) {
	n, err := r.uleb()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
