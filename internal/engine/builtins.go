package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/icrepl/internal/ir"
)

// builtin describes a function provided by the engine. Exactly one of
// lazy and strict is set: lazy handlers receive unevaluated arguments.
type builtin struct {
	name    string
	minArgs int
	maxArgs int // -1 for no limit
	usage   string
	lazy    func(ctx context.Context, env *Env, args []ir.Exp) (ir.Value, error)
	strict  func(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error)
}

func (b *builtin) usageError() error {
	return argShape("%s", b.usage)
}

// builtins is filled in init to break the initialization cycle through Eval.
var builtins = map[string]*builtin{}

func register(bs ...*builtin) {
	for _, b := range bs {
		if _, dup := builtins[b.name]; dup {
			panic("duplicate builtin " + b.name)
		}
		builtins[b.name] = b
	}
}

func init() {
	register(
		&builtin{name: "ite", minArgs: 3, maxArgs: 3, usage: "ite expects a bool, true branch and false branch", lazy: builtinIte},
		&builtin{name: "exist", minArgs: 1, maxArgs: 1, usage: "exist expects an expression", lazy: builtinExist},
		&builtin{name: "export", minArgs: 2, maxArgs: -1, usage: "export expects at least two arguments", lazy: builtinExport},
	)
	registerAlgebra()
	registerIO()
	registerIC()
}

// apply dispatches a function application to a builtin or a user function.
func (e *Env) apply(ctx context.Context, a ir.ExpApply) (ir.Value, error) {
	b, ok := builtins[a.Func]
	if ok && (len(a.Args) < b.minArgs || (b.maxArgs >= 0 && len(a.Args) > b.maxArgs)) {
		return nil, b.usageError()
	}
	if ok && b.lazy != nil {
		return b.lazy(ctx, e, a.Args)
	}
	args, err := e.evalArgs(ctx, a.Args)
	if err != nil {
		return nil, err
	}
	if ok {
		return b.strict(ctx, e, args)
	}
	return ApplyFunc(ctx, e, a.Func, args)
}

// ApplyFunc calls the user function name with already evaluated
// arguments. The body runs in a child scope and the function returns the
// child's "_", or null when the body never set it.
func ApplyFunc(ctx context.Context, env *Env, name string, args []ir.Value) (ir.Value, error) {
	f, ok := env.funcs[name]
	if !ok {
		return nil, newError(ErrCodeResolution, "Unknown function %s", name)
	}
	if len(f.Params) != len(args) {
		return nil, argShape("%s expects %d arguments, but %d is provided", name, len(f.Params), len(args))
	}
	depth, err := env.enter(name)
	if err != nil {
		return nil, err
	}
	child := env.Spawn()
	child.depth = depth
	for i, p := range f.Params {
		child.vars[p] = args[i]
	}
	if err := RunAll(ctx, child, f.Body); err != nil {
		return nil, err
	}
	if v, ok := child.vars["_"]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

func builtinIte(ctx context.Context, env *Env, args []ir.Exp) (ir.Value, error) {
	cond, err := Eval(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	b, ok := cond.(ir.Bool)
	if !ok {
		return nil, argShape("ite expects the first argument to be a boolean expression")
	}
	if b {
		return Eval(ctx, env, args[1])
	}
	return Eval(ctx, env, args[2])
}

func builtinExist(ctx context.Context, env *Env, args []ir.Exp) (ir.Value, error) {
	_, err := Eval(ctx, env, args[0])
	return ir.Bool(err == nil), nil
}

// builtinExport writes `let <name> = <value>;` for each variable argument.
func builtinExport(ctx context.Context, env *Env, args []ir.Exp) (ir.Value, error) {
	p, err := Eval(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	path, ok := p.(ir.Text)
	if !ok {
		return nil, argShape("export expects first argument to be a file path")
	}
	type binding struct {
		name string
		val  ir.Value
	}
	var out []binding
	for _, a := range args[1:] {
		ref, ok := a.(ir.ExpPath)
		if !ok {
			return nil, argShape("export expects variables")
		}
		v, err := Eval(ctx, env, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, binding{ref.Name, v})
	}
	f, err := os.Create(env.session.outputPath(string(path)))
	if err != nil {
		return nil, transport(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, b := range out {
		fmt.Fprintf(w, "let %s = %s;\n", b.name, ir.Format(b.val))
	}
	if err := w.Flush(); err != nil {
		return nil, transport(err)
	}
	return ir.Null{}, nil
}

// inputPath resolves a path read by a script.
func (s *Session) inputPath(p string) string {
	return resolvePath(s.baseDir, p)
}

// outputPath resolves a path written by a script.
func (s *Session) outputPath(p string) string {
	return resolvePath(s.workDir, p)
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}
