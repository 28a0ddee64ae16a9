package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anadama/anadama/internal/dag"
)

// evalFormula evaluates a small arithmetic expression referencing the
// identifiers "depends" (the task's dependency count) and "cores", per
// spec.md §4.5 ("A 'formula' is a string referencing depends and cores...
// evaluated against runtime values to produce an int"). Supports +, -, *, /
// and parentheses over int operands; this is deliberately narrow -- it
// exists to let memory/time scale with input size, not to be a general
// expression language.
func evalFormula(formula string, t *dag.Task, cores int) (int, error) {
	vars := map[string]float64{
		"depends": float64(len(t.Depends)),
		"cores":   float64(cores),
	}
	p := &formulaParser{tokens: tokenizeFormula(formula), vars: vars}
	v, err := p.parseExpr()
	if err != nil {
		return 0, fmt.Errorf("formula %q: %w", formula, err)
	}
	if !p.atEnd() {
		return 0, fmt.Errorf("formula %q: unexpected trailing input", formula)
	}
	return int(v), nil
}

func tokenizeFormula(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t':
			flush()
		case strings.ContainsRune("+-*/()", r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type formulaParser struct {
	tokens []string
	pos    int
	vars   map[string]float64
}

func (p *formulaParser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *formulaParser) peek() string {
	if p.atEnd() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *formulaParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *formulaParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			v += rhs
		} else {
			v -= rhs
		}
	}
	return v, nil
}

func (p *formulaParser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.next()
		rhs, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			v *= rhs
		} else {
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		}
	}
	return v, nil
}

func (p *formulaParser) parseFactor() (float64, error) {
	tok := p.next()
	switch {
	case tok == "":
		return 0, fmt.Errorf("unexpected end of expression")
	case tok == "(":
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.next() != ")" {
			return 0, fmt.Errorf("expected closing parenthesis")
		}
		return v, nil
	case tok == "-":
		v, err := p.parseFactor()
		return -v, err
	default:
		if v, ok := p.vars[tok]; ok {
			return v, nil
		}
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("unknown identifier or number %q", tok)
		}
		return n, nil
	}
}
