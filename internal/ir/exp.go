package ir

// Exp is a node of the expression tree handed to the evaluator.
// Expressions are immutable once built.
type Exp interface {
	exp()
}

// CallKind selects how a Call expression is executed.
type CallKind int

const (
	// CallLive sends the call to the replica (or signs it when offline).
	CallLive CallKind = iota
	// CallEncode only serializes the arguments.
	CallEncode
	// CallProxy forwards the encoded arguments through a relay wallet.
	CallProxy
)

// String returns the script keyword for the call kind.
func (k CallKind) String() string {
	switch k {
	case CallEncode:
		return "encode"
	case CallProxy:
		return "proxy"
	default:
		return "call"
	}
}

// CallMode is a call kind plus the relay target for proxy calls.
type CallMode struct {
	Kind  CallKind
	Relay string
}

// Method names a method on a symbolic target. Canister is either a
// variable holding a principal or the principal text itself.
type Method struct {
	Canister string
	Method   string
}

// String renders the method as target.method.
func (m Method) String() string {
	return m.Canister + "." + m.Method
}

// InitArgsMethod is the pseudo-method that resolves constructor argument types.
const InitArgsMethod = "__init_args"

// FuncCall is one entry of a parallel call.
type FuncCall struct {
	Method Method
	Args   []Exp
}

// FieldExp is a labelled sub-expression of a record or variant literal.
type FieldExp struct {
	Label Label
	Value Exp
}

// SelectorKind is the kind of projection step.
type SelectorKind int

const (
	// SelectIndex picks a vec element or a record field by numeric id.
	SelectIndex SelectorKind = iota
	// SelectField picks a record or variant field by name.
	SelectField
	// SelectOption unwraps an opt value.
	SelectOption
	// SelectMap applies a function to every vec element.
	SelectMap
	// SelectFilter keeps vec elements for which a function returns true.
	SelectFilter
	// SelectFold reduces a vec with a function and an initial value.
	SelectFold
)

// Selector is one projection step applied after a variable lookup.
type Selector struct {
	Kind  SelectorKind
	Index Exp    // SelectIndex
	Field string // SelectField
	Func  string // SelectMap, SelectFilter, SelectFold
	Init  Exp    // SelectFold
}

// ExpPath is a variable reference followed by projections.
type ExpPath struct {
	Name      string
	Selectors []Selector
}

// ExpAnnVal casts the value of Exp to Type.
type ExpAnnVal struct {
	Exp  Exp
	Type Type
}

// ExpCall invokes a method. Method is nil only for encode of a bare
// argument list. Args is nil when omitted.
type ExpCall struct {
	Method *Method
	Args   []Exp
	Mode   CallMode
}

// ExpParCall runs independent calls concurrently.
type ExpParCall struct {
	Calls []FuncCall
}

// ExpDecode decodes a blob, typed by the return types of Method when present.
type ExpDecode struct {
	Method *Method
	Blob   Exp
}

// ExpApply calls a builtin or user-defined function.
type ExpApply struct {
	Func string
	Args []Exp
}

// ExpFail expects Exp to fail and yields its error text.
type ExpFail struct {
	Exp Exp
}

// Literal expressions.
type (
	ExpBool      bool
	ExpNull      struct{}
	ExpText      string
	ExpNumber    string
	ExpFloat64   float64
	ExpOpt       struct{ Exp Exp }
	ExpBlob      []byte
	ExpVec       []Exp
	ExpRecord    []FieldExp
	ExpPrincipal struct{ Principal Principal }
	ExpService   struct{ Principal Principal }
	ExpFunc      struct {
		Principal Principal
		Method    string
	}
)

// ExpVariant is a variant literal. Index defaults to 0 until a cast re-tags it.
type ExpVariant struct {
	Field FieldExp
	Index uint64
}

func (ExpPath) exp()      {}
func (ExpAnnVal) exp()    {}
func (ExpCall) exp()      {}
func (ExpParCall) exp()   {}
func (ExpDecode) exp()    {}
func (ExpApply) exp()     {}
func (ExpFail) exp()      {}
func (ExpBool) exp()      {}
func (ExpNull) exp()      {}
func (ExpText) exp()      {}
func (ExpNumber) exp()    {}
func (ExpFloat64) exp()   {}
func (ExpOpt) exp()       {}
func (ExpBlob) exp()      {}
func (ExpVec) exp()       {}
func (ExpRecord) exp()    {}
func (ExpVariant) exp()   {}
func (ExpPrincipal) exp() {}
func (ExpService) exp()   {}
func (ExpFunc) exp()      {}

// IsCall reports whether e is a live call. Parallel calls are not included.
func IsCall(e Exp) bool {
	c, ok := e.(ExpCall)
	return ok && c.Mode.Kind == CallLive
}

// Var is shorthand for a bare variable reference.
func Var(name string) ExpPath {
	return ExpPath{Name: name}
}

// Call builds a live call expression.
func Call(canister, method string, args ...Exp) ExpCall {
	return ExpCall{Method: &Method{Canister: canister, Method: method}, Args: nonNil(args)}
}

// Apply builds a function application.
func Apply(fn string, args ...Exp) ExpApply {
	return ExpApply{Func: fn, Args: args}
}

// RecordExp builds a record literal from named fields.
func RecordExp(fields ...FieldExp) ExpRecord {
	return ExpRecord(fields)
}

// FE is shorthand for a named field expression.
func FE(name string, v Exp) FieldExp {
	return FieldExp{Label: NamedLabel(name), Value: v}
}

func nonNil(args []Exp) []Exp {
	if args == nil {
		return []Exp{}
	}
	return args
}
