package formula

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// functions is the fixed whitelist of callable names.
var functions = map[string]struct{}{
	"abs":   {},
	"min":   {},
	"max":   {},
	"round": {},
	"int":   {},
	"float": {},
}

type node interface {
	eval(vars map[string]*apd.Decimal) (*apd.Decimal, error)
}

type numberNode struct {
	val apd.Decimal
}

func newNumberNode(text string) (*numberNode, error) {
	n := &numberNode{}
	if _, _, err := n.val.SetString(text); err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return n, nil
}

func (n *numberNode) eval(map[string]*apd.Decimal) (*apd.Decimal, error) {
	var out apd.Decimal
	out.Set(&n.val)
	return &out, nil
}

type varNode struct {
	name string
}

func (n *varNode) eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	v, ok := vars[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown identifier %q: %w", n.name, ErrFormula)
	}
	var out apd.Decimal
	out.Set(v)
	return &out, nil
}

type negNode struct {
	operand node
}

func (n *negNode) eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}
	var out apd.Decimal
	if _, err := evalCtx.Neg(&out, v); err != nil {
		return nil, opErr("-", err)
	}
	return &out, nil
}

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n *binaryNode) eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	a, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	b, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	var out apd.Decimal
	switch n.op {
	case "+":
		_, err = evalCtx.Add(&out, a, b)
	case "-":
		_, err = evalCtx.Sub(&out, a, b)
	case "*":
		_, err = evalCtx.Mul(&out, a, b)
	case "/":
		if b.IsZero() {
			return nil, fmt.Errorf("division by zero: %w", ErrFormula)
		}
		_, err = evalCtx.Quo(&out, a, b)
	case "//":
		if b.IsZero() {
			return nil, fmt.Errorf("division by zero: %w", ErrFormula)
		}
		var q apd.Decimal
		if _, err = evalCtx.Quo(&q, a, b); err == nil {
			_, err = evalCtx.Floor(&out, &q)
		}
	case "%":
		if b.IsZero() {
			return nil, fmt.Errorf("modulo by zero: %w", ErrFormula)
		}
		_, err = evalCtx.Rem(&out, a, b)
	case "**":
		_, err = evalCtx.Pow(&out, a, b)
	default:
		return nil, fmt.Errorf("unsupported operator %q: %w", n.op, ErrFormula)
	}
	if err != nil {
		return nil, opErr(n.op, err)
	}
	if out.Form != apd.Finite {
		return nil, fmt.Errorf("operator %q produced non-finite value: %w", n.op, ErrFormula)
	}
	return &out, nil
}

type callNode struct {
	fn   string
	args []node
}

func (n *callNode) eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	args := make([]*apd.Decimal, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	var out apd.Decimal
	var err error
	switch n.fn {
	case "abs":
		_, err = evalCtx.Abs(&out, args[0])
	case "min":
		out.Set(args[0])
		for _, a := range args[1:] {
			if a.Cmp(&out) < 0 {
				out.Set(a)
			}
		}
	case "max":
		out.Set(args[0])
		for _, a := range args[1:] {
			if a.Cmp(&out) > 0 {
				out.Set(a)
			}
		}
	case "round":
		// Half-even.
		_, err = evalCtx.RoundToIntegralValue(&out, args[0])
	case "int":
		// Truncation toward zero.
		if args[0].Negative {
			_, err = evalCtx.Ceil(&out, args[0])
		} else {
			_, err = evalCtx.Floor(&out, args[0])
		}
	case "float":
		out.Set(args[0])
	default:
		return nil, fmt.Errorf("unknown function %q: %w", n.fn, ErrFormula)
	}
	if err != nil {
		return nil, opErr(n.fn, err)
	}
	return &out, nil
}

func opErr(op string, err error) error {
	return fmt.Errorf("operator %q: %v: %w", op, err, ErrFormula)
}
