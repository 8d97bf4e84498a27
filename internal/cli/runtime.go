package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/engine"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/store"
)

// Runtime is an open evaluation session with everything it owns.
type Runtime struct {
	Config  *Config
	Agent   *agent.Agent
	Store   *store.Store // nil without a database
	Session *engine.Session
	Env     *engine.Env

	sink io.Closer
}

// resolveConfig loads the configuration file, if any, and applies flag
// overrides.
func (o *RootOptions) resolveConfig() (*Config, error) {
	cfg := &Config{}
	if o.Config != "" {
		loaded, err := LoadConfig(o.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Replica != "" {
		cfg.Replica = o.Replica
	}
	if o.PEM != "" {
		cfg.Identity = o.PEM
	}
	if o.DB != "" {
		cfg.DB = o.DB
	}
	if o.Output != "" {
		cfg.Output = o.Output
	}
	if o.Offline {
		cfg.Offline = true
	}
	if cfg.Replica == "" {
		cfg.Replica = "local"
	}
	return cfg, nil
}

// openRuntime builds a session from the configuration. Input files named
// by the script are resolved against baseDir.
func openRuntime(ctx context.Context, opts *RootOptions, cmd *cobra.Command, baseDir string) (*Runtime, error) {
	logger := opts.logger()
	cfg, err := opts.resolveConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	rt := &Runtime{Config: cfg}

	var id agent.Identity = agent.AnonymousIdentity{}
	if cfg.Identity != "" {
		pem, err := agent.LoadPEM(cfg.Identity)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load identity", err)
		}
		id = pem
	}
	rt.Agent = agent.New(ReplicaURL(cfg.Replica), agent.NewSigner(id), agent.WithLogger(logger))

	static, err := cfg.Interfaces()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load interfaces", err)
	}
	var fetcher iface.Fetcher = iface.Metadata{Replica: rt.Agent}
	clock := engine.NewClock()
	if cfg.DB != "" {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		rt.Store = st
		last, err := st.LastSeq(ctx)
		if err != nil {
			rt.Close()
			return nil, WrapExitError(ExitCommandError, "failed to read message log", err)
		}
		clock = engine.NewClockAt(last)
		fetcher = iface.Persistent{Store: st, Next: fetcher}
		logger.Debug("database ready", "path", cfg.DB, "session", st.Session(), "last_seq", last)
	}

	workDir, _ := os.Getwd()
	sessionOpts := []engine.Option{
		engine.WithCache(iface.NewCache(iface.Chain{static, fetcher}, logger)),
		engine.WithClock(clock),
		engine.WithLogger(logger),
		engine.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		engine.WithBaseDir(baseDir),
		engine.WithWorkDir(workDir),
		engine.WithWorkers(cfg.Workers),
	}
	if rt.Store != nil {
		sessionOpts = append(sessionOpts, engine.WithMessageStore(rt.Store))
	}
	if cfg.EffectiveID != "" {
		eid, _ := ir.DecodePrincipal(cfg.EffectiveID)
		sessionOpts = append(sessionOpts, engine.WithDefaultEffectiveID(eid))
	}
	if cfg.Offline {
		var sink io.Writer = cmd.OutOrStdout()
		if cfg.Output != "" {
			f, err := os.Create(cfg.Output)
			if err != nil {
				rt.Close()
				return nil, WrapExitError(ExitCommandError, "failed to create message output", err)
			}
			rt.sink = f
			sink = f
		}
		sessionOpts = append(sessionOpts, engine.WithOffline(sink))
	}

	rt.Session = engine.NewSession(rt.Agent, sessionOpts...)
	rt.Env = engine.NewEnv(rt.Session)
	for _, c := range cfg.Canisters {
		rt.Env.Set(c.Name, ir.PrincipalValue{Principal: c.ID})
	}
	logger.Debug("session ready",
		"replica", rt.Agent.URL(),
		"sender", rt.Agent.Signer().Sender().String(),
		"offline", cfg.Offline,
		"canisters", len(cfg.Canisters),
	)
	return rt, nil
}

// Close releases the session, the message output and the database.
func (r *Runtime) Close() error {
	if r.Session != nil {
		r.Session.Close()
	}
	var firstErr error
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			firstErr = fmt.Errorf("close message output: %w", err)
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close database: %w", err)
		}
	}
	return firstErr
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// scriptDir is the directory input files of a script resolve against.
func scriptDir(path string) string {
	if path == "-" {
		return "."
	}
	return filepath.Dir(path)
}
