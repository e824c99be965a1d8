// Package policy provides CEL-based admission policies for retrieval
// candidate selection. A policy is a boolean CEL expression evaluated
// against a candidate cell's attributes; cells for which the expression is
// false are excluded from scoring.
//
// Policies make the store's exclusion rules configurable without code
// changes. A caller that wants to skip fragile or overloaded cells might
// install:
//
//	p, err := policy.Compile(`stability >= 0.4 && projections < 32`)
//	if err != nil {
//	    return err
//	}
//	store, err := patternstore.New(patternstore.WithAdmissionPolicy(p))
package policy

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// Candidate exposes the cell attributes visible to a policy expression.
type Candidate struct {
	// Stability is the cell's current health stability in [0, 1].
	Stability float64

	// State is the cell's lifecycle state: "volatile", "linked" or
	// "compacted".
	State string

	// Projections is the number of projections the cell holds.
	Projections int

	// Coherence is the cell's diagnostic coherence in [0, 1].
	Coherence float64

	// Tier is the label of the tier holding the cell.
	Tier string
}

// Policy is a compiled admission expression. Safe for concurrent use.
type Policy struct {
	source  string
	program cel.Program
}

// Compile builds a policy from a CEL expression. The expression must
// evaluate to a boolean and may reference the variables stability (double),
// state (string), projections (int), coherence (double) and tier (string).
func Compile(expr string) (*Policy, error) {
	if expr == "" {
		return nil, fmt.Errorf("policy: empty expression")
	}

	env, err := cel.NewEnv(
		cel.Variable("stability", cel.DoubleType),
		cel.Variable("state", cel.StringType),
		cel.Variable("projections", cel.IntType),
		cel.Variable("coherence", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: compile %q: %w", expr, issues.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("policy: expression %q evaluates to %s, want bool", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: build program: %w", err)
	}

	return &Policy{source: expr, program: program}, nil
}

// Source returns the expression the policy was compiled from.
func (p *Policy) Source() string { return p.source }

// Admit evaluates the policy against a candidate. Evaluation errors reject
// the candidate and are returned for logging.
func (p *Policy) Admit(c Candidate) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"stability":   c.Stability,
		"state":       c.State,
		"projections": c.Projections,
		"coherence":   c.Coherence,
		"tier":        c.Tier,
	})
	if err != nil {
		return false, fmt.Errorf("policy: eval %q: %w", p.source, err)
	}
	admitted, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: expression %q produced %T, want bool", p.source, out.Value())
	}
	return admitted, nil
}
