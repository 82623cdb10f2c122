package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// PARSER — Precedence-climbing parser for FQL
// ============================================================================
// Grammar (lowest to highest precedence):
//
//	program  = { stmt (NEWLINE | ';') }
//	stmt     = IDENT '=' expr | expr
//	expr     = or
//	or       = and { 'or' and }
//	and      = not { 'and' not }
//	not      = 'not' not | cmp
//	cmp      = add { ('=='|'!='|'<'|'<='|'>'|'>=') add }
//	add      = mul { ('+'|'-') mul }
//	mul      = unary { ('*'|'/'|'%') unary }
//	unary    = '-' unary | '+' unary | postfix
//	postfix  = primary { '[' expr ']' }
//	primary  = NUMBER | STRING | true | false | none | IDENT
//	         | IDENT '(' args ')' | '[' exprs ']' | '(' expr ')'
//
// Calls are checked against the function whitelist while parsing, so a
// program naming an unknown function is rejected before anything runs.
// ============================================================================

type parser struct {
	toks []token
	i    int
	cur  token
}

// Parse parses FQL source into a Program.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	p.cur = toks[0]
	return p.parseProgram()
}

func (p *parser) next() {
	if p.i < len(p.toks)-1 {
		p.i++
	}
	p.cur = p.toks[p.i]
}

func (p *parser) peek() token {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) isSymbol(sym string) bool { return p.cur.typ == tSymbol && p.cur.val == sym }
func (p *parser) isKeyword(kw string) bool { return p.cur.typ == tKeyword && p.cur.val == kw }

func (p *parser) expectSymbol(sym string) error {
	if !p.isSymbol(sym) {
		return p.errf("expected %q, found %s", sym, p.cur.describe())
	}
	p.next()
	return nil
}

func (p *parser) errf(format string, a ...any) error {
	return &SyntaxError{Pos: p.cur.pos, Msg: fmt.Sprintf(format, a...)}
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur.typ != tEOF {
		if p.cur.typ == tNewline {
			p.next()
			continue
		}
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, st)
		if p.cur.typ != tNewline && p.cur.typ != tEOF {
			return nil, p.errf("unexpected %s after statement", p.cur.describe())
		}
	}
	if len(prog.Stmts) == 0 {
		return nil, &SyntaxError{Pos: Position{Line: 1, Col: 1}, Msg: "empty program"}
	}
	return prog, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	pos := p.cur.pos
	if p.cur.typ == tIdent {
		if nt := p.peek(); nt.typ == tSymbol && nt.val == "=" {
			target := p.cur.val
			p.next()
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return Stmt{}, err
			}
			return Stmt{Pos: pos, Target: target, Expr: e}, nil
		}
	}
	e, err := p.parseExpr()
	if err != nil {
		return Stmt{}, err
	}
	if p.isSymbol("=") {
		return Stmt{}, p.errf("can only assign to a plain name")
	}
	return Stmt{Pos: pos, Expr: e}, nil
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		pos := p.cur.pos
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{At: pos, Op: "or", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		pos := p.cur.pos
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{At: pos, Op: "and", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.isKeyword("not") {
		pos := p.cur.pos
		p.next()
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{At: pos, Op: "not", X: e}, nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (Expr, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	for p.cur.typ == tSymbol {
		switch p.cur.val {
		case "==", "!=", "<", "<=", ">", ">=":
			op, pos := p.cur.val, p.cur.pos
			p.next()
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{At: pos, Op: op, X: left, Y: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("+") || p.isSymbol("-") {
		op, pos := p.cur.val, p.cur.pos
		p.next()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{At: pos, Op: op, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseMulDiv() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("*") || p.isSymbol("/") || p.isSymbol("%") {
		op, pos := p.cur.val, p.cur.pos
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{At: pos, Op: op, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isSymbol("-") || p.isSymbol("+") {
		op, pos := p.cur.val, p.cur.pos
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return e, nil
		}
		return &UnaryExpr{At: pos, Op: "-", X: e}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isSymbol("["):
			pos := p.cur.pos
			p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			e = &IndexExpr{At: pos, X: e, Index: idx}
		case p.isSymbol("("):
			return nil, p.errf("only built-in functions can be called")
		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.cur
	switch tok.typ {
	case tNumber:
		p.next()
		f, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.val)}
		}
		return &Literal{At: tok.pos, Value: dataset.Number(f)}, nil

	case tString:
		p.next()
		return &Literal{At: tok.pos, Value: dataset.String(tok.val)}, nil

	case tKeyword:
		switch tok.val {
		case "true", "false":
			p.next()
			return &Literal{At: tok.pos, Value: dataset.Bool(tok.val == "true")}, nil
		case "none":
			p.next()
			return &Literal{At: tok.pos, Value: dataset.Missing()}, nil
		}
		return nil, p.errf("unexpected keyword %q", tok.val)

	case tIdent:
		p.next()
		if p.isSymbol("(") {
			return p.parseCall(tok)
		}
		return &Ident{At: tok.pos, Name: tok.val}, nil

	case tSymbol:
		switch tok.val {
		case "(":
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.next()
			elems, err := p.parseExprList("]")
			if err != nil {
				return nil, err
			}
			return &ListExpr{At: tok.pos, Elems: elems}, nil
		}
	}
	return nil, p.errf("unexpected %s", tok.describe())
}

func (p *parser) parseExprList(closer string) ([]Expr, error) {
	var elems []Expr
	for !p.isSymbol(closer) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.isSymbol(",") {
			p.next()
			continue
		}
		if !p.isSymbol(closer) {
			return nil, p.errf("expected ',' or %q, found %s", closer, p.cur.describe())
		}
	}
	p.next()
	return elems, nil
}

func (p *parser) parseCall(name token) (Expr, error) {
	fn, ok := builtins[name.val]
	if !ok {
		return nil, &SyntaxError{Pos: name.pos, Msg: unknownFunctionMessage(name.val)}
	}
	p.next() // (

	call := &CallExpr{At: name.pos, Func: name.val}
	for !p.isSymbol(")") {
		if p.cur.typ == tIdent && p.peek().typ == tSymbol && p.peek().val == "=" {
			kw := p.cur
			if !fn.allowsKwarg(kw.val) {
				return nil, &SyntaxError{Pos: kw.pos, Msg: fmt.Sprintf("%s() has no argument named %q", name.val, kw.val)}
			}
			p.next()
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, Kwarg{Name: kw.val, Value: e})
		} else {
			if len(call.Kwargs) > 0 {
				return nil, p.errf("positional argument follows keyword argument")
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, e)
		}
		if p.isSymbol(",") {
			p.next()
			continue
		}
		if !p.isSymbol(")") {
			return nil, p.errf("expected ',' or ')', found %s", p.cur.describe())
		}
	}
	p.next()

	if n := len(call.Args); n < fn.minArgs || (fn.maxArgs >= 0 && n > fn.maxArgs) {
		return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("%s() takes %s, got %d", name.val, fn.arity(), n)}
	}
	return call, nil
}

func unknownFunctionMessage(name string) string {
	lower := strings.ToLower(name)
	if _, ok := builtins[lower]; ok {
		return fmt.Sprintf("unknown function %q (did you mean %s?)", name, lower)
	}
	return fmt.Sprintf("unknown function %q; available functions: %s", name, strings.Join(FunctionNames(), ", "))
}

// FunctionNames lists the whitelisted functions in sorted order.
func FunctionNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
