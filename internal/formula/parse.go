package formula

import (
	"fmt"
	"unicode"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkNumber
	tkIdent
	tkOp
	tkLParen
	tkRParen
	tkComma
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input []rune
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: []rune(input)}
}

func (l *lexer) nextToken() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tkEOF}, nil
	}

	c := l.input[l.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		return l.lexNumber()
	case unicode.IsLetter(c) || c == '_':
		return l.lexIdent()
	case c == '(':
		l.pos++
		return token{kind: tkLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tkRParen, text: ")"}, nil
	case c == ',':
		l.pos++
		return token{kind: tkComma, text: ","}, nil
	case c == '+' || c == '-' || c == '%':
		l.pos++
		return token{kind: tkOp, text: string(c)}, nil
	case c == '*':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '*' {
			l.pos++
			return token{kind: tkOp, text: "**"}, nil
		}
		return token{kind: tkOp, text: "*"}, nil
	case c == '/':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '/' {
			l.pos++
			return token{kind: tkOp, text: "//"}, nil
		}
		return token{kind: tkOp, text: "/"}, nil
	default:
		return token{}, fmt.Errorf("unexpected character %q", string(c))
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	sawDigit := false
	sawDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c >= '0' && c <= '9' {
			sawDigit = true
			l.pos++
			continue
		}
		if c == '.' {
			if sawDot {
				return token{}, fmt.Errorf("malformed number %q", string(l.input[start:l.pos+1]))
			}
			sawDot = true
			l.pos++
			continue
		}
		break
	}
	text := string(l.input[start:l.pos])
	if !sawDigit {
		return token{}, fmt.Errorf("malformed number %q", text)
	}
	return token{kind: tkNumber, text: text}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			l.pos++
			continue
		}
		break
	}
	return token{kind: tkIdent, text: string(l.input[start:l.pos])}, nil
}

// parser implements the grammar with Python-like precedence:
//
//	expr    = mulExpr (("+" | "-") mulExpr)*
//	mulExpr = unary (("*" | "/" | "//" | "%") unary)*
//	unary   = "-" unary | power
//	power   = primary ("**" unary)?
//	primary = NUMBER | IDENT | IDENT "(" expr ("," expr)* ")" | "(" expr ")"
type parser struct {
	lex   *lexer
	tok   token
	depth int
}

const maxDepth = 64

func (p *parser) next() error {
	tok, err := p.lex.nextToken()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseExpr() (node, error) {
	if p.depth++; p.depth > maxDepth {
		return nil, fmt.Errorf("expression too deeply nested")
	}
	defer func() { p.depth-- }()

	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMul() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkOp &&
		(p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "//" || p.tok.text == "%") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.depth++; p.depth > maxDepth {
		return nil, fmt.Errorf("expression too deeply nested")
	}
	defer func() { p.depth-- }()

	if p.tok.kind == tkOp && p.tok.text == "-" {
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tkOp && p.tok.text == "**" {
		if err := p.next(); err != nil {
			return nil, err
		}
		// Right-associative; the exponent may carry a unary minus.
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tkNumber:
		n, err := newNumberNode(p.tok.text)
		if err != nil {
			return nil, err
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return n, nil

	case tkIdent:
		name := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind != tkLParen {
			return &varNode{name: name}, nil
		}
		return p.parseCall(name)

	case tkLParen:
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tkRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return inner, nil

	case tkEOF:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}
}

func (p *parser) parseCall(name string) (node, error) {
	if _, ok := functions[name]; !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if err := p.next(); err != nil { // consume "("
		return nil, err
	}
	var args []node
	if p.tok.kind != tkRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.kind != tkComma {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.kind != tkRParen {
		return nil, fmt.Errorf("missing closing parenthesis in call to %q", name)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := checkArity(name, len(args)); err != nil {
		return nil, err
	}
	return &callNode{fn: name, args: args}, nil
}

func checkArity(name string, n int) error {
	switch name {
	case "min", "max":
		if n < 2 {
			return fmt.Errorf("%s expects at least 2 arguments, got %d", name, n)
		}
	default:
		if n != 1 {
			return fmt.Errorf("%s expects exactly 1 argument, got %d", name, n)
		}
	}
	return nil
}
