package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/ir"
)

// Scenario is a script plus the canisters it talks to and what it must
// produce.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Offline signs calls instead of sending them.
	Offline bool `yaml:"offline,omitempty"`

	// Canisters maps aliases to canister declarations.
	Canisters map[string]CanisterDecl `yaml:"canisters,omitempty"`

	// Replies are canned answers keyed by alias.method.
	Replies map[string]string `yaml:"replies,omitempty"`

	// Script is script text run before Steps.
	Script string `yaml:"script,omitempty"`

	// Steps are structured statements.
	Steps []Step `yaml:"steps,omitempty"`

	// Expect describes the outcome.
	Expect Expectation `yaml:"expect"`

	// BaseDir resolves relative .did paths and script file operations.
	// Set by LoadScenario to the scenario file's directory.
	BaseDir string `yaml:"-"`
}

// CanisterDecl names a canister and where its interface comes from.
type CanisterDecl struct {
	ID     string `yaml:"id"`
	DID    string `yaml:"did,omitempty"`
	Candid string `yaml:"candid,omitempty"`
}

// Step is one structured statement. Exactly one of Let, Show, Assert,
// Function or Exp is set.
type Step struct {
	Let      string   `yaml:"let,omitempty"`
	Show     string   `yaml:"show,omitempty"`
	Assert   string   `yaml:"assert,omitempty"`
	Function string   `yaml:"function,omitempty"`
	Exp      string   `yaml:"exp,omitempty"`
	Equals   string   `yaml:"equals,omitempty"`
	Differs  string   `yaml:"differs,omitempty"`
	Params   []string `yaml:"params,omitempty"`
	Body     []Step   `yaml:"body,omitempty"`
}

// Expectation is what a scenario run must produce.
type Expectation struct {
	Output         []string `yaml:"output,omitempty"`
	OutputContains []string `yaml:"output_contains,omitempty"`
	Error          string   `yaml:"error,omitempty"`
	Messages       *int     `yaml:"messages,omitempty"`
	Calls          []string `yaml:"calls,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.BaseDir = filepath.Dir(path)
	return s, nil
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(s.Script) == "" && len(s.Steps) == 0 {
		return fmt.Errorf("script or steps are required")
	}
	for alias, c := range s.Canisters {
		if c.ID == "" {
			return fmt.Errorf("canisters.%s: id is required", alias)
		}
		if _, err := ir.DecodePrincipal(c.ID); err != nil {
			return fmt.Errorf("canisters.%s: %w", alias, err)
		}
		if c.DID != "" && c.Candid != "" {
			return fmt.Errorf("canisters.%s: did and candid are mutually exclusive", alias)
		}
	}
	for key := range s.Replies {
		alias, _, ok := strings.Cut(key, ".")
		if !ok {
			return fmt.Errorf("replies.%s: key must be alias.method", key)
		}
		if _, known := s.Canisters[alias]; !known {
			return fmt.Errorf("replies.%s: unknown canister %q", key, alias)
		}
	}
	if s.Expect.Messages != nil && *s.Expect.Messages < 0 {
		return fmt.Errorf("expect.messages must be non-negative")
	}
	if _, err := s.Statements(); err != nil {
		return err
	}
	return nil
}

// Statements compiles the script block followed by the steps.
func (s *Scenario) Statements() ([]ir.Stmt, error) {
	var stmts []ir.Stmt
	if strings.TrimSpace(s.Script) != "" {
		parsed, err := compiler.ParseScript(s.Script)
		if err != nil {
			return nil, fmt.Errorf("script: %w", err)
		}
		stmts = append(stmts, parsed...)
	}
	steps, err := compileSteps(s.Steps, "steps", false)
	if err != nil {
		return nil, err
	}
	return append(stmts, steps...), nil
}

func compileSteps(steps []Step, path string, inFunc bool) ([]ir.Stmt, error) {
	out := make([]ir.Stmt, 0, len(steps))
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		st, err := compileStep(step, at, inFunc)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func compileStep(step Step, at string, inFunc bool) (ir.Stmt, error) {
	set := 0
	for _, s := range []string{step.Let, step.Show, step.Assert, step.Function} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("%s: only one of let, show, assert or function may be set", at)
	}
	exp := func(field, src string) (ir.Exp, error) {
		if src == "" {
			return nil, fmt.Errorf("%s: %s is required", at, field)
		}
		e, err := compiler.ParseScriptExp(src)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", at, field, err)
		}
		return e, nil
	}

	switch {
	case step.Let != "":
		e, err := exp("exp", step.Exp)
		if err != nil {
			return nil, err
		}
		return ir.StmtLet{Name: step.Let, Exp: e}, nil
	case step.Show != "":
		e, err := exp("show", step.Show)
		if err != nil {
			return nil, err
		}
		return ir.StmtShow{Exp: e}, nil
	case step.Assert != "":
		left, err := exp("assert", step.Assert)
		if err != nil {
			return nil, err
		}
		op, rightSrc := ir.AssertEqual, step.Equals
		if step.Differs != "" {
			if step.Equals != "" {
				return nil, fmt.Errorf("%s: equals and differs are mutually exclusive", at)
			}
			op, rightSrc = ir.AssertNotEqual, step.Differs
		}
		right, err := exp("equals", rightSrc)
		if err != nil {
			return nil, err
		}
		return ir.StmtAssert{Left: left, Op: op, Right: right}, nil
	case step.Function != "":
		body, err := compileSteps(step.Body, at+".body", true)
		if err != nil {
			return nil, err
		}
		params := step.Params
		if params == nil {
			params = []string{}
		}
		return ir.StmtFunc{Name: step.Function, Params: params, Body: body}, nil
	}
	e, err := exp("exp", step.Exp)
	if err != nil {
		return nil, err
	}
	if inFunc {
		return ir.StmtLet{Name: "_", Exp: e}, nil
	}
	return ir.StmtShow{Exp: e}, nil
}
