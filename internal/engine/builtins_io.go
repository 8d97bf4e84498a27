package engine

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/wasm"
)

func registerIO() {
	register(
		&builtin{name: "file", minArgs: 1, maxArgs: 1, usage: "file expects file path", strict: builtinFile},
		&builtin{name: "gzip", minArgs: 1, maxArgs: 1, usage: "gzip expects blob", strict: builtinGzip},
		&builtin{name: "exec", minArgs: 1, maxArgs: -1, usage: "exec expects (text command, ...text args)", strict: builtinExec},
		&builtin{name: "output", minArgs: 2, maxArgs: 2, usage: "output expects (file path, content)", strict: builtinOutput},
		&builtin{name: "wasm_profiling", minArgs: 1, maxArgs: 2, usage: "wasm_profiling expects file path and optionally record for config", strict: builtinWasmProfiling},
	)
}

func builtinFile(_ context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	name, ok := args[0].(ir.Text)
	if !ok {
		return nil, argShape("file expects file path")
	}
	path := env.session.inputPath(string(name))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrCodeTransport, err, "cannot read %s", path)
	}
	return ir.Blob(data), nil
}

func builtinGzip(_ context.Context, _ *Env, args []ir.Value) (ir.Value, error) {
	data, ok := args[0].(ir.Blob)
	if !ok {
		return nil, argShape("gzip expects blob")
	}
	var buf bytes.Buffer
	if err := compress(&buf, data); err != nil {
		return nil, err
	}
	return ir.Blob(buf.Bytes()), nil
}

func compress(dst io.Writer, data []byte) error {
	w := gzip.NewWriter(dst)
	if _, err := w.Write(data); err != nil {
		return wrapError(ErrCodeTransport, err, "gzip")
	}
	if err := w.Close(); err != nil {
		return wrapError(ErrCodeTransport, err, "gzip")
	}
	return nil
}

// builtinOutput appends content to a file and returns it.
func builtinOutput(_ context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	name, ok1 := args[0].(ir.Text)
	content, ok2 := args[1].(ir.Text)
	if !ok1 || !ok2 {
		return nil, argShape("output expects (file path, content)")
	}
	f, err := os.OpenFile(env.session.outputPath(string(name)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, transport(err)
	}
	if _, err := f.WriteString(string(content)); err != nil {
		f.Close()
		return nil, transport(err)
	}
	if err := f.Close(); err != nil {
		return nil, transport(err)
	}
	return content, nil
}

// lockedWriter lets the stdout and stderr readers of exec share a
// destination.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// execOptions is the optional trailing record of exec.
type execOptions struct {
	cwd     string
	silence bool
}

func parseExecOptions(env *Env, rec ir.Record) (execOptions, error) {
	var opts execOptions
	if v, ok := rec.GetNamed("cwd"); ok {
		p, ok := v.(ir.Text)
		if !ok {
			return opts, argShape("cwd expects a string")
		}
		opts.cwd = env.session.inputPath(string(p))
	}
	if v, ok := rec.GetNamed("silence"); ok {
		b, ok := v.(ir.Bool)
		if !ok {
			return opts, argShape("silence expects a boolean")
		}
		opts.silence = bool(b)
	}
	return opts, nil
}

// builtinExec runs a command, echoing its output unless silenced. The last
// line of stdout is parsed as a Candid value, falling back to text.
func builtinExec(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	name, ok := args[0].(ir.Text)
	if !ok {
		return nil, argShape("exec expects (text command, ...text args)")
	}
	var cmdArgs []string
	var opts execOptions
	for i, a := range args[1:] {
		switch v := a.(type) {
		case ir.Text:
			cmdArgs = append(cmdArgs, string(v))
		case ir.Record:
			if i != len(args)-2 {
				return nil, argShape("exec expects string arguments")
			}
			var err error
			if opts, err = parseExecOptions(env, v); err != nil {
				return nil, err
			}
		default:
			return nil, argShape("exec expects string arguments")
		}
	}
	cmd := exec.CommandContext(ctx, string(name), cmdArgs...)
	cmd.Dir = opts.cwd
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, transport(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, transport(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, transport(err)
	}

	var (
		last string
		mu   sync.Mutex
		wg   sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), math.MaxInt32)
		for sc.Scan() {
			last = sc.Text()
			if !opts.silence {
				mu.Lock()
				fmt.Fprintln(env.session.stdout, last)
				mu.Unlock()
			}
		}
	}()
	go func() {
		defer wg.Done()
		if opts.silence {
			io.Copy(io.Discard, stderr)
			return
		}
		io.Copy(&lockedWriter{mu: &mu, w: env.session.stderr}, stderr)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, newError(ErrCodeTransport, "exec failed with status %d", exitErr.ExitCode())
		}
		return nil, transport(err)
	}
	if v, err := compiler.ParseValue(last); err == nil {
		return v, nil
	}
	return ir.Text(last), nil
}

// builtinWasmProfiling instruments a Wasm file for profiling:
//
//	wasm_profiling("app.wasm", record { start_page = 16; page_limit = 32; trace_only_funcs = vec { "inc" } })
func builtinWasmProfiling(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	name, ok := args[0].(ir.Text)
	if !ok {
		return nil, argShape("wasm_profiling expects file path and optionally record for config")
	}
	var cfg wasm.ProfilingConfig
	if len(args) == 2 {
		rec, ok := args[1].(ir.Record)
		if !ok {
			return nil, argShape("wasm_profiling expects file path and optionally record for config")
		}
		var err error
		if cfg, err = profilingConfig(rec); err != nil {
			return nil, err
		}
	}
	path := env.session.inputPath(string(name))
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrCodeTransport, err, "cannot read %s", path)
	}
	out, err := env.session.instrumenter.Instrument(ctx, module, cfg)
	if err != nil {
		return nil, transport(err)
	}
	return ir.Blob(out), nil
}

func profilingConfig(rec ir.Record) (wasm.ProfilingConfig, error) {
	var cfg wasm.ProfilingConfig
	if v, ok := rec.GetNamed("start_page"); ok {
		n, err := asUint32(v)
		if err != nil {
			return cfg, argShape("start_page expects a number")
		}
		cfg.StartPage = &n
		if v, ok := rec.GetNamed("page_limit"); ok {
			limit, err := asUint32(v)
			if err != nil {
				return cfg, argShape("page_limit expects a number")
			}
			cfg.PageLimit = &limit
		}
	}
	if v, ok := rec.GetNamed("trace_only_funcs"); ok {
		vec, ok := v.(ir.Vec)
		if !ok {
			return cfg, argShape("trace_only_funcs expects a vector of function names")
		}
		for _, f := range vec {
			if name, ok := f.(ir.Text); ok {
				cfg.TraceOnlyFuncs = append(cfg.TraceOnlyFuncs, string(name))
			}
		}
	}
	return cfg, nil
}

func asUint32(v ir.Value) (uint32, error) {
	n, err := ir.ToBig(v)
	if err != nil {
		return 0, err
	}
	u, err := ir.FixInteger(n, ir.TypeNat32)
	if err != nil {
		return 0, err
	}
	return uint32(u.(ir.Nat32)), nil
}
