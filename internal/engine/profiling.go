package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/ir"
)

// costField carries the instruction cost of a profiled call.
const costField = "__cost"

// extractCost splits the (result, record { __cost }) pair built by
// profiledCall.
func extractCost(v ir.Value) (ir.Value, *ir.Int64) {
	rec, ok := v.(ir.Record)
	if !ok || len(rec) != 2 || rec[0].Label.ID != 0 || rec[1].Label.ID != 1 {
		return v, nil
	}
	costRec, ok := rec[1].Value.(ir.Record)
	if !ok || len(costRec) != 1 {
		return v, nil
	}
	c, ok := costRec.GetNamed(costField)
	if !ok {
		return v, nil
	}
	cost, ok := c.(ir.Int64)
	if !ok {
		return v, nil
	}
	return rec[0].Value, &cost
}

// cycles reads the instruction counter of an instrumented canister.
func (s *Session) cycles(ctx context.Context, id ir.Principal) (int64, error) {
	arg, err := candid.EncodeInferred(nil)
	if err != nil {
		return 0, err
	}
	reply, err := s.transport.Query(ctx, id, id, "__get_cycles", arg)
	if err != nil {
		return 0, transport(err)
	}
	vals, err := candid.Decode(reply, nil, []ir.Type{ir.Prim(ir.TypeInt64)})
	if err != nil {
		return 0, wrapError(ErrCodeSemantic, err, "decode __get_cycles reply")
	}
	return int64(vals[0].(ir.Int64)), nil
}

// traceEntry is one record of a profiling trace: a function id, negated
// on exit, and the instruction counter at that point.
type traceEntry struct {
	id    int32
	count int64
}

var traceTypes = []ir.Type{
	ir.VecOf(ir.RecordOf(
		ir.FieldType{Label: ir.UnnamedLabel(0), Type: ir.Prim(ir.TypeInt32)},
		ir.FieldType{Label: ir.UnnamedLabel(1), Type: ir.Prim(ir.TypeInt64)},
	)),
	ir.OptOf(ir.Prim(ir.TypeInt32)),
}

// profilingTrace pages through __get_profiling until the canister reports
// no further index.
func (s *Session) profilingTrace(ctx context.Context, id ir.Principal) ([]traceEntry, error) {
	var trace []traceEntry
	idx := int32(0)
	for {
		arg, err := candid.Encode(nil, []ir.Type{ir.Prim(ir.TypeInt32)}, []ir.Value{ir.Int32(idx)})
		if err != nil {
			return nil, err
		}
		reply, err := s.transport.Query(ctx, id, id, "__get_profiling", arg)
		if err != nil {
			return nil, transport(err)
		}
		vals, err := candid.Decode(reply, nil, traceTypes)
		if err != nil {
			return nil, wrapError(ErrCodeSemantic, err, "decode __get_profiling reply")
		}
		for _, e := range vals[0].(ir.Vec) {
			rec := e.(ir.Record)
			trace = append(trace, traceEntry{id: int32(rec[0].Value.(ir.Int32)), count: int64(rec[1].Value.(ir.Int64))})
		}
		next, ok := vals[1].(ir.Opt)
		if !ok {
			return trace, nil
		}
		idx = int32(next.V.(ir.Int32))
	}
}

// foldStacks turns a trace into folded stack lines ("a;b;c self_cost")
// and returns the total cost of the outermost calls.
func foldStacks(trace []traceEntry, names map[uint16]string) ([]string, uint64, error) {
	type frame struct {
		id       int32
		start    int64
		children int64
	}
	var stack []frame
	var prefix []string
	var lines []string
	var total uint64
	prev := ""
	for _, e := range trace {
		if e.id >= 0 {
			stack = append(stack, frame{id: e.id, start: e.count})
			name := "__start"
			if e.id < 1<<15-1 {
				if n, ok := names[uint16(e.id)]; ok {
					name = n
				} else {
					name = fmt.Sprintf("func_%d", e.id)
				}
			}
			prefix = append(prefix, name)
			continue
		}
		if len(stack) == 0 {
			return nil, 0, semantic("pop empty stack")
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.id != -e.id {
			return nil, 0, semantic("func id mismatch")
		}
		cost := e.count - top.start
		folded := strings.Join(prefix, ";")
		prefix = prefix[:len(prefix)-1]
		if len(stack) > 0 {
			stack[len(stack)-1].children += cost
		} else {
			total += uint64(cost)
		}
		if folded == prev {
			lines = append(lines, strings.Join(append(prefix, "spacer"), ";")+" 0")
		}
		lines = append(lines, fmt.Sprintf("%s %d", folded, cost-top.children))
		prev = folded
	}
	return lines, total, nil
}

// builtinFlamegraph fetches the profiling trace of an instrumented canister,
// renders it as an SVG flame graph and returns the total cost.
func builtinFlamegraph(ctx context.Context, env *Env, args []ir.Value) (ir.Value, error) {
	s := env.session
	cid, ok1 := args[0].(ir.PrincipalValue)
	title, ok2 := args[1].(ir.Text)
	file, ok3 := args[2].(ir.Text)
	if !ok1 || !ok2 || !ok3 {
		return nil, argShape("flamegraph expects (canister id, title name, svg file name)")
	}
	if err := s.requireOnline("flamegraph"); err != nil {
		return nil, err
	}
	info, err := s.cache.Get(ctx, cid.Principal)
	if err != nil || info.Profiling == nil {
		return nil, semantic("%s is not instrumented", cid.Principal)
	}
	path := s.outputPath(string(file))
	if filepath.Ext(path) == "" {
		path += ".svg"
	}
	trace, err := s.profilingTrace(ctx, cid.Principal)
	if err != nil {
		return nil, err
	}
	if len(trace) == 0 {
		fmt.Fprintln(s.stdout, "No profiling trace is generated")
		return ir.NatFromUint64(0), nil
	}
	lines, total, err := foldStacks(trace, info.Profiling)
	if err != nil {
		return nil, err
	}
	svg := renderFlamegraph(string(title), lines)
	if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
		return nil, transport(err)
	}
	return ir.NatFromUint64(total), nil
}
