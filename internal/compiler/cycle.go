package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/icrepl/internal/ir"
)

// CycleWarning describes a cycle among named type definitions.
//
// Recursion through a constructor (`type List = opt record { ...; List }`)
// is legal and reported at info level. A cycle made only of aliases
// (`type A = B; type B = A;`) has no finite meaning and is an error.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"` // "error" or "info"
}

// AnalyzeTypeCycles finds cycles in the definitions of env.
//
// It builds two graphs over type names: one following every reference and
// one following only bare aliases, then runs Tarjan's algorithm on each.
// Results are sorted by path for stable output.
func AnalyzeTypeCycles(env ir.TypeEnv) []CycleWarning {
	if len(env) == 0 {
		return []CycleWarning{}
	}
	refs, aliases := buildTypeGraphs(env)

	var out []CycleWarning
	inAliasCycle := map[string]bool{}
	for _, scc := range tarjanSCC(aliases) {
		if len(scc) > 1 || hasSelfLoop(scc[0], aliases) {
			path := reconstructCyclePath(scc, aliases)
			for _, n := range scc {
				inAliasCycle[n] = true
			}
			out = append(out, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("type alias cycle: %s", strings.Join(path, " → ")),
				Level:   "error",
			})
		}
	}
	for _, scc := range tarjanSCC(refs) {
		if inAliasCycle[scc[0]] {
			continue
		}
		if len(scc) > 1 || hasSelfLoop(scc[0], refs) {
			path := reconstructCyclePath(scc, refs)
			out = append(out, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("recursive type: %s", strings.Join(path, " → ")),
				Level:   "info",
			})
		}
	}
	slices.SortFunc(out, func(a, b CycleWarning) int {
		return slices.Compare(a.Path, b.Path)
	})
	if out == nil {
		return []CycleWarning{}
	}
	return out
}

// typeGraph maps a type name to the names it references.
type typeGraph map[string][]string

func buildTypeGraphs(env ir.TypeEnv) (refs, aliases typeGraph) {
	refs, aliases = typeGraph{}, typeGraph{}
	for name, t := range env {
		refs[name] = referencedNames(t, nil)
		aliases[name] = []string{}
		if t.Kind == ir.TypeVar {
			if _, ok := env[t.Name]; ok {
				aliases[name] = []string{t.Name}
			}
		}
	}
	for name, targets := range refs {
		kept := targets[:0]
		for _, target := range targets {
			if _, ok := env[target]; ok {
				kept = append(kept, target)
			}
		}
		slices.Sort(kept)
		refs[name] = slices.Compact(kept)
	}
	return refs, aliases
}

// referencedNames collects every Var name reachable inside t without
// following definitions.
func referencedNames(t ir.Type, acc []string) []string {
	switch t.Kind {
	case ir.TypeVar:
		acc = append(acc, t.Name)
	case ir.TypeOpt, ir.TypeVec:
		acc = referencedNames(*t.Elem, acc)
	case ir.TypeRecord, ir.TypeVariant:
		for _, f := range t.Fields {
			acc = referencedNames(f.Type, acc)
		}
	case ir.TypeFunc:
		acc = funcNames(*t.Func, acc)
	case ir.TypeService:
		for _, m := range t.Methods {
			acc = funcNames(m.Func, acc)
		}
	}
	return acc
}

func funcNames(f ir.FuncType, acc []string) []string {
	for _, a := range f.Args {
		acc = referencedNames(a, acc)
	}
	for _, r := range f.Rets {
		acc = referencedNames(r, acc)
	}
	return acc
}

func hasSelfLoop(node string, graph typeGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in sorted order so results do not depend on map iteration.
func tarjanSCC(graph typeGraph) [][]string {
	var (
		counter int
		stack   []string
		index   = map[string]int{}
		low     = map[string]int{}
		onStack = map[string]bool{}
		sccs    [][]string
	)

	var visit func(string)
	visit = func(v string) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside scc from its first member until
// it returns to the start.
func reconstructCyclePath(scc []string, graph typeGraph) []string {
	members := map[string]bool{}
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{}
	for current := start; ; {
		visited[current] = true
		next := ""
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		current = next
	}
}
