package wasm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ProfilingConfig controls instrumentation.
type ProfilingConfig struct {
	// StartPage puts the trace in stable memory from this page on; nil
	// keeps it in heap memory. Page zero is a valid start.
	StartPage *uint32
	// PageLimit bounds the pages used from StartPage; only meaningful
	// with StartPage set.
	PageLimit *uint32
	// TraceOnlyFuncs restricts tracing to the named functions.
	TraceOnlyFuncs []string
}

// Instrumenter rewrites a module so that it records a profiling trace.
type Instrumenter interface {
	Instrument(ctx context.Context, module []byte, cfg ProfilingConfig) ([]byte, error)
}

// ICWasm runs the ic-wasm command line tool.
type ICWasm struct {
	// Path is the executable, "ic-wasm" by default.
	Path string
}

// Args returns the ic-wasm arguments for instrumenting in into out.
func (cfg ProfilingConfig) Args(in, out string) []string {
	args := []string{in, "-o", out, "instrument"}
	if cfg.StartPage != nil {
		args = append(args, "--start-page", strconv.FormatUint(uint64(*cfg.StartPage), 10))
		if cfg.PageLimit != nil {
			args = append(args, "--page-limit", strconv.FormatUint(uint64(*cfg.PageLimit), 10))
		}
	}
	for _, f := range cfg.TraceOnlyFuncs {
		args = append(args, "--trace-only", f)
	}
	return args
}

// Instrument writes module to a scratch directory, runs ic-wasm on it and
// returns the instrumented bytes.
func (w ICWasm) Instrument(ctx context.Context, module []byte, cfg ProfilingConfig) ([]byte, error) {
	bin := w.Path
	if bin == "" {
		bin = "ic-wasm"
	}
	dir, err := os.MkdirTemp("", "icrepl-wasm-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.wasm")
	if err := os.WriteFile(in, module, 0o600); err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, cfg.Args(in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s instrument: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return os.ReadFile(out)
}
