package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/icrepl/internal/candid"
	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/testutil"
)

// Harness is the scenario execution engine.
type Harness struct {
	transport engine.Transport
	replica   *testutil.Replica
	logger    *slog.Logger
	workDir   string
}

// Option configures a Harness.
type Option func(*Harness)

// WithTransport runs scenarios against t instead of an in-memory replica.
// Scenario replies are ignored.
func WithTransport(t engine.Transport) Option {
	return func(h *Harness) { h.transport = t }
}

// WithLogger sets the logger for warnings and progress.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithWorkDir sets where scripts write files. Defaults to the scenario's
// directory.
func WithWorkDir(dir string) Option {
	return func(h *Harness) { h.workDir = dir }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Compile canister interfaces and statements
// 2. Create a session over the transport (in-memory replica by default)
// 3. Bind canister aliases and run the statements
// 4. Evaluate expectations
//
// A script failure is reported in Result.Err, not as an error; Run fails
// only when the scenario itself cannot be set up.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}

	canisters, err := compileCanisters(scenario)
	if err != nil {
		return nil, err
	}
	stmts, err := scenario.Statements()
	if err != nil {
		return nil, err
	}

	var fetcher iface.Fetcher = canisters
	if h.transport == nil {
		h.replica = testutil.NewReplica()
		if err := installReplies(h.replica, scenario, canisters); err != nil {
			return nil, err
		}
		h.transport = h.replica
	} else {
		fetcher = iface.Chain{canisters, iface.Metadata{Replica: h.transport}}
	}

	workDir := h.workDir
	if workDir == "" {
		workDir = scenario.BaseDir
	}
	var stdout bytes.Buffer
	sessionOpts := []engine.Option{
		engine.WithCache(iface.NewCache(fetcher, h.logger)),
		engine.WithOutput(&stdout, io.Discard),
		engine.WithLogger(h.logger),
		engine.WithBaseDir(scenario.BaseDir),
		engine.WithWorkDir(workDir),
	}
	if scenario.Offline {
		sessionOpts = append(sessionOpts, engine.WithOffline(io.Discard))
	}
	session := engine.NewSession(h.transport, sessionOpts...)
	defer session.Close()

	env := engine.NewEnv(session)
	for alias, c := range scenario.Canisters {
		id, _ := ir.DecodePrincipal(c.ID)
		env.Set(alias, ir.PrincipalValue{Principal: id})
	}

	result := NewResult()
	result.Err = engine.RunAll(ctx, env, stmts)
	result.Output = splitLines(stdout.String())
	result.Messages = session.Messages()
	if h.replica != nil {
		result.Calls = h.replica.Calls()
	}

	for _, msg := range EvaluateAssertions(result, scenario.Expect) {
		result.AddError(msg)
	}
	h.logger.Info("scenario finished",
		"name", scenario.Name,
		"pass", result.Pass,
		"output_lines", len(result.Output),
		"messages", len(result.Messages),
	)
	return result, nil
}

// compileCanisters loads every declared interface, keyed by principal.
func compileCanisters(s *Scenario) (iface.Static, error) {
	out := iface.Static{}
	for alias, c := range s.Canisters {
		id, err := ir.DecodePrincipal(c.ID)
		if err != nil {
			return nil, fmt.Errorf("canisters.%s: %w", alias, err)
		}
		switch {
		case c.DID != "":
			path := c.DID
			if !filepath.IsAbs(path) && s.BaseDir != "" {
				path = filepath.Join(s.BaseDir, path)
			}
			info, err := iface.LoadDID(path)
			if err != nil {
				return nil, fmt.Errorf("canisters.%s: %w", alias, err)
			}
			out[id.String()] = info
		case c.Candid != "":
			parsed, err := compiler.ParseDID(c.Candid)
			if err != nil {
				return nil, fmt.Errorf("canisters.%s: %w", alias, err)
			}
			out[id.String()] = &iface.CanisterInfo{Source: c.Candid, Interface: parsed}
		}
	}
	return out, nil
}

// installReplies registers the scenario's canned answers. Values are cast to
// the method's return types when the interface is known.
func installReplies(r *testutil.Replica, s *Scenario, canisters iface.Static) error {
	for key, src := range s.Replies {
		alias, method, _ := strings.Cut(key, ".")
		vals, err := compiler.ParseArgs(src)
		if err != nil {
			return fmt.Errorf("replies.%s: %w", key, err)
		}
		id, _ := ir.DecodePrincipal(s.Canisters[alias].ID)

		var reply []byte
		info, known := canisters[id.String()]
		if known && info.Interface != nil {
			fn, ok := info.Interface.Method(method)
			if !ok {
				return fmt.Errorf("replies.%s: %s has no method %s", key, alias, method)
			}
			reply, err = candid.Encode(info.Interface.Env, fn.Rets, vals)
		} else {
			reply, err = candid.EncodeInferred(vals)
		}
		if err != nil {
			return fmt.Errorf("replies.%s: %w", key, err)
		}
		r.Handle(method, func([]byte) ([]byte, error) { return reply, nil })
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// RunFile loads and runs a scenario file.
func RunFile(ctx context.Context, path string, opts ...Option) (*Scenario, *Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("scenario file: %w", err)
	}
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario, opts...)
	return scenario, result, err
}
