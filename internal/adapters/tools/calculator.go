package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/eleven-am/specter/internal/domain"
)

var errDivisionByZero = errors.New("division by zero")

// Calculate evaluates an arithmetic expression over + - * / // % ** and
// unary signs. // and % floor toward negative infinity. ** binds tighter
// than a leading sign and associates to the right.
func Calculate(expression string) (float64, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	p := &exprParser{tokens: tokens}
	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.tokens) {
		return 0, fmt.Errorf("unexpected token %q", p.tokens[p.pos].text)
	}
	return value, nil
}

func calculatorTool(_ context.Context, params map[string]interface{}) (interface{}, error) {
	expression, ok := stringParam(params, "expression")
	if !ok || strings.TrimSpace(expression) == "" {
		return domain.ToolFail("expression is required"), nil
	}
	value, err := Calculate(expression)
	if err != nil {
		return domain.ToolFail(err.Error()), nil
	}
	return domain.ToolOK(value), nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
}

func tokenize(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == '_') {
				i++
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && unicode.IsDigit(runes[j]) {
					i = j
					for i < len(runes) && unicode.IsDigit(runes[i]) {
						i++
					}
				}
			}
			text := string(runes[start:i])
			v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, value: v})
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case r == '*' || r == '/':
			if i+1 < len(runes) && runes[i+1] == r {
				tokens = append(tokens, token{kind: tokOp, text: string([]rune{r, r})})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, text: string(r)})
			i++
		case r == '+' || r == '-' || r == '%':
			tokens = append(tokens, token{kind: tokOp, text: string(r)})
			i++
		default:
			return nil, fmt.Errorf("unsupported expression: unexpected %q", string(r))
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty expression")
	}
	return tokens, nil
}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) peekOp(ops ...string) (string, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.tokens[p.pos].text == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp("+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peekOp("*", "/", "//", "%")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, errDivisionByZero
			}
			left /= right
		case "//":
			if right == 0 {
				return 0, errDivisionByZero
			}
			left = math.Floor(left / right)
		case "%":
			if right == 0 {
				return 0, errDivisionByZero
			}
			left = left - right*math.Floor(left/right)
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if op, ok := p.peekOp("+", "-"); ok {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if _, ok := p.peekOp("**"); !ok {
		return base, nil
	}
	p.pos++
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if base == 0 && exp < 0 {
		return 0, errDivisionByZero
	}
	return math.Pow(base, exp), nil
}

func (p *exprParser) parseAtom() (float64, error) {
	if p.pos >= len(p.tokens) {
		return 0, errors.New("unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	switch tok.kind {
	case tokNumber:
		p.pos++
		return tok.value, nil
	case tokLParen:
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokRParen {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected token %q", tok.text)
	}
}
