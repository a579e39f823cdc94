// Package formula compiles and evaluates the restricted arithmetic expressions
// used for custom billing dimensions. Formulas originate from external
// configuration, so the grammar is deliberately tiny: number literals, named
// variables, the operators + - * / // % **, parentheses, and a fixed whitelist
// of functions (abs, min, max, round, int, float). There is no attribute
// access, no assignment and no control flow.
package formula

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// ErrFormula is the base error wrapped by every compile and evaluation
// failure, including non-integer or negative results.
var ErrFormula = errors.New("formula error")

var evalCtx = apd.BaseContext.WithPrecision(34)

// Program is a compiled formula, safe for repeated evaluation.
type Program struct {
	source string
	root   node
}

// Compile parses the expression and returns a reusable Program.
func Compile(expr string) (*Program, error) {
	p := &parser{lex: newLexer(expr)}
	if err := p.next(); err != nil {
		return nil, compileErr(expr, err)
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, compileErr(expr, err)
	}
	if p.tok.kind != tkEOF {
		return nil, compileErr(expr, fmt.Errorf("unexpected %q", p.tok.text))
	}
	return &Program{source: expr, root: root}, nil
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.source }

// Eval evaluates the program against the variable mapping and applies the
// rounding policy: the raw result must be finite and non-negative, and is
// truncated toward zero to an integer. Referencing a name absent from vars,
// dividing by zero, or producing a negative result all fail with an error
// wrapping ErrFormula.
func (p *Program) Eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	raw, err := p.root.eval(vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", p.source, err)
	}
	if raw.Form != apd.Finite {
		return nil, fmt.Errorf("evaluate %q: non-finite result %s: %w", p.source, raw.String(), ErrFormula)
	}
	if raw.Negative && !raw.IsZero() {
		return nil, fmt.Errorf("evaluate %q: negative result %s: %w", p.source, raw.String(), ErrFormula)
	}
	var out apd.Decimal
	if _, err := evalCtx.Floor(&out, raw); err != nil {
		return nil, fmt.Errorf("evaluate %q: %v: %w", p.source, err, ErrFormula)
	}
	return &out, nil
}

func compileErr(expr string, err error) error {
	return fmt.Errorf("compile %q: %v: %w", expr, err, ErrFormula)
}
