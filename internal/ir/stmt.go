package ir

// Stmt is a script statement.
type Stmt interface {
	stmt()
}

// AssertOp is the comparison used by an assert statement.
type AssertOp string

const (
	AssertEqual    AssertOp = "=="
	AssertNotEqual AssertOp = "!="
)

// StmtLet binds the value of Exp to Name.
type StmtLet struct {
	Name string
	Exp  Exp
}

// StmtShow evaluates Exp and prints it.
type StmtShow struct {
	Exp Exp
}

// StmtAssert compares two expressions.
type StmtAssert struct {
	Left  Exp
	Op    AssertOp
	Right Exp
}

// StmtFunc defines a user function.
type StmtFunc struct {
	Name   string
	Params []string
	Body   []Stmt
}

func (StmtLet) stmt()    {}
func (StmtShow) stmt()   {}
func (StmtAssert) stmt() {}
func (StmtFunc) stmt()   {}
