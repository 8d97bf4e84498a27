package engine

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/roach88/icrepl/internal/agent"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
	"github.com/roach88/icrepl/internal/wasm"
)

// Transport is the replica connection used by a session. *agent.Agent
// implements it.
type Transport interface {
	URL() string
	Query(ctx context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error)
	Update(ctx context.Context, canister, effective ir.Principal, method string, arg []byte) ([]byte, error)
	ReadState(ctx context.Context, effective ir.Principal, paths [][][]byte) (*agent.Certificate, error)
	SignQuery(canister ir.Principal, method string, arg []byte) (agent.Signed, error)
	SignUpdate(canister ir.Principal, method string, arg []byte) (agent.Signed, error)
	SignRequestStatus(id agent.RequestID) (agent.Signed, error)
	SubmitQuery(ctx context.Context, effective ir.Principal, envelope []byte) ([]byte, error)
	SubmitCall(ctx context.Context, effective ir.Principal, envelope []byte) error
	PollSigned(ctx context.Context, effective ir.Principal, id agent.RequestID, statusEnvelope []byte) ([]byte, error)
}

// DefaultWorkers is the size of the parallel call pool.
const DefaultWorkers = 10

// Session holds the state shared by every scope of one script run.
type Session struct {
	transport    Transport
	cache        *iface.Cache
	log          *MessageLog
	offline      bool
	effective    ir.Principal
	baseDir      string
	workDir      string
	stdout       io.Writer
	stderr       io.Writer
	instrumenter wasm.Instrumenter
	logger       *slog.Logger
	workers      int
	maxDepth     int
	pool         *Pool
}

// Option configures a Session.
type Option func(*Session)

// WithCache sets the interface cache. By default interfaces are fetched
// from the transport's metadata.
func WithCache(c *iface.Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithOffline makes calls sign their requests instead of sending them.
// Each signed message is written to sink as a JSON line.
func WithOffline(sink io.Writer) Option {
	return func(s *Session) {
		s.offline = true
		s.log.sink = sink
	}
}

// WithMessageStore persists every signed message.
func WithMessageStore(store MessageStore) Option {
	return func(s *Session) { s.log.store = store }
}

// WithClock sets the clock stamping signed messages.
func WithClock(c *Clock) Option {
	return func(s *Session) { s.log.clock = c }
}

// WithDefaultEffectiveID sets the effective canister id for management
// calls that do not name a canister.
func WithDefaultEffectiveID(id ir.Principal) Option {
	return func(s *Session) { s.effective = id }
}

// WithBaseDir sets the directory input files are resolved against.
func WithBaseDir(dir string) Option {
	return func(s *Session) { s.baseDir = dir }
}

// WithWorkDir sets the directory output files are resolved against.
func WithWorkDir(dir string) Option {
	return func(s *Session) { s.workDir = dir }
}

// WithOutput sets where show, exec and profiling output go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Session) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithInstrumenter sets the wasm profiling instrumenter.
func WithInstrumenter(w wasm.Instrumenter) Option {
	return func(s *Session) { s.instrumenter = w }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithWorkers sets the parallel call pool size.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxCallDepth bounds nested user-function applications.
func WithMaxCallDepth(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// NewSession creates a session over t. Close releases its worker pool.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport:    t,
		log:          &MessageLog{clock: NewClock()},
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		instrumenter: wasm.ICWasm{},
		logger:       slog.Default(),
		workers:      DefaultWorkers,
		maxDepth:     DefaultMaxCallDepth,
		effective:    ir.ManagementCanister,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		var f iface.Fetcher
		if t != nil {
			f = iface.Metadata{Replica: t}
		}
		s.cache = iface.NewCache(f, s.logger)
	}
	s.pool = NewPool(s.workers)
	return s
}

// Close stops the worker pool.
func (s *Session) Close() {
	s.pool.Close()
}

// Messages returns the messages signed so far.
func (s *Session) Messages() []LoggedMessage { return s.log.Entries() }

// Offline reports whether calls are signed instead of sent.
func (s *Session) Offline() bool { return s.offline }

// Cache returns the interface cache.
func (s *Session) Cache() *iface.Cache { return s.cache }

// Func is a user-defined function.
type Func struct {
	Params []string
	Body   []ir.Stmt
}

// Env is a variable scope. The reserved name "_" holds the result of the
// most recent call or show.
type Env struct {
	session *Session
	vars    map[string]ir.Value
	funcs   map[string]Func
	depth   int
}

// NewEnv returns an empty top-level scope of s.
func NewEnv(s *Session) *Env {
	return &Env{session: s, vars: map[string]ir.Value{}, funcs: map[string]Func{}}
}

// Session returns the session the scope belongs to.
func (e *Env) Session() *Session { return e.session }

// Get returns the value bound to name.
func (e *Env) Get(name string) (ir.Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Set binds name to v.
func (e *Env) Set(name string, v ir.Value) { e.vars[name] = v }

// Define registers a user function.
func (e *Env) Define(name string, f Func) { e.funcs[name] = f }

// Names returns the bound variable names in sorted order.
func (e *Env) Names() []string {
	return slices.Sorted(maps.Keys(e.vars))
}

// Spawn returns a child scope sharing the session. The child starts with
// a copy of the parent's variables, minus "_", and functions.
func (e *Env) Spawn() *Env {
	child := &Env{session: e.session, vars: maps.Clone(e.vars), funcs: maps.Clone(e.funcs), depth: e.depth}
	delete(child.vars, "_")
	return child
}
