package engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// LEXER — Tokenizes FQL program text
// ============================================================================
// FQL is line oriented: a newline (or ';') ends a statement, except inside
// parentheses or brackets where it is plain whitespace. '#' starts a comment.
// ============================================================================

type tokenType int

const (
	tEOF tokenType = iota
	tNewline
	tIdent
	tNumber
	tString
	tSymbol  // ( ) [ ] , = + - * / % == != < <= > >=
	tKeyword // and or not true false none
)

func (t tokenType) String() string {
	switch t {
	case tEOF:
		return "end of program"
	case tNewline:
		return "end of line"
	case tIdent:
		return "name"
	case tNumber:
		return "number"
	case tString:
		return "string"
	case tSymbol:
		return "symbol"
	case tKeyword:
		return "keyword"
	}
	return "token"
}

// Position is a 1-based line/column location in program text.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string { return fmt.Sprintf("line %d:%d", p.Line, p.Col) }

type token struct {
	typ tokenType
	val string
	pos Position
}

func (t token) describe() string {
	switch t.typ {
	case tEOF, tNewline:
		return t.typ.String()
	case tString:
		return fmt.Sprintf("string %q", t.val)
	}
	return fmt.Sprintf("%q", t.val)
}

type lexer struct {
	s     string
	pos   int
	line  int
	col   int
	depth int // open ( and [
}

func newLexer(s string) *lexer { return &lexer{s: s, line: 1, col: 1} }

// tokenize lexes the whole program up front so the parser can look ahead.
func tokenize(src string) ([]token, error) {
	lx := newLexer(src)
	var toks []token
	for {
		tok, err := lx.nextToken()
		if err != nil {
			return nil, err
		}
		// Collapse blank lines.
		if tok.typ == tNewline && (len(toks) == 0 || toks[len(toks)-1].typ == tNewline) {
			continue
		}
		toks = append(toks, tok)
		if tok.typ == tEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[lx.pos:])
	return r
}

func (lx *lexer) peekN(n int) rune {
	p := lx.pos
	for i := 0; i < n; i++ {
		if p >= len(lx.s) {
			return 0
		}
		_, sz := utf8.DecodeRuneInString(lx.s[p:])
		p += sz
	}
	if p >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[p:])
	return r
}

func (lx *lexer) next() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(lx.s[lx.pos:])
	lx.pos += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) here() Position { return Position{Line: lx.line, Col: lx.col} }

func (lx *lexer) errf(pos Position, format string, a ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, a...)}
}

// skipSpace skips blanks and comments but stops at a statement-ending newline.
func (lx *lexer) skipSpace() {
	for {
		r := lx.peek()
		switch {
		case r == 0:
			return
		case r == '#':
			for lx.peek() != 0 && lx.peek() != '\n' {
				lx.next()
			}
		case r == '\\' && (lx.peekN(1) == '\n' || (lx.peekN(1) == '\r' && lx.peekN(2) == '\n')):
			// line continuation
			lx.next()
			for lx.peek() != '\n' {
				lx.next()
			}
			lx.next()
		case r == '\n' && lx.depth == 0:
			return
		case unicode.IsSpace(r):
			lx.next()
		default:
			return
		}
	}
}

func (lx *lexer) nextToken() (token, error) {
	lx.skipSpace()
	start := lx.here()
	r := lx.peek()

	switch {
	case r == 0:
		return token{typ: tEOF, pos: start}, nil

	case r == '\n' || r == ';':
		lx.next()
		return token{typ: tNewline, val: string(r), pos: start}, nil

	case r == '\'' || r == '"':
		return lx.lexString(start)

	case unicode.IsDigit(r) || (r == '.' && unicode.IsDigit(lx.peekN(1))):
		return lx.lexNumber(start)

	case unicode.IsLetter(r) || r == '_':
		var sb strings.Builder
		for {
			ch := lx.peek()
			if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
				sb.WriteRune(lx.next())
				continue
			}
			break
		}
		val := sb.String()
		if kw, ok := keyword(val); ok {
			return token{typ: tKeyword, val: kw, pos: start}, nil
		}
		return token{typ: tIdent, val: val, pos: start}, nil
	}

	// Symbols and 2-char operators
	switch r {
	case '(', '[':
		lx.next()
		lx.depth++
		return token{typ: tSymbol, val: string(r), pos: start}, nil
	case ')', ']':
		lx.next()
		if lx.depth > 0 {
			lx.depth--
		}
		return token{typ: tSymbol, val: string(r), pos: start}, nil
	case ',', '+', '-', '*', '/', '%':
		lx.next()
		if r == '*' && lx.peek() == '*' {
			return token{}, lx.errf(start, "operator ** is not supported")
		}
		return token{typ: tSymbol, val: string(r), pos: start}, nil
	case '=', '<', '>', '!':
		a := lx.next()
		if lx.peek() == '=' {
			lx.next()
			return token{typ: tSymbol, val: string(a) + "=", pos: start}, nil
		}
		if a == '!' {
			return token{}, lx.errf(start, "unexpected '!' (use not)")
		}
		return token{typ: tSymbol, val: string(a), pos: start}, nil
	case '.':
		return token{}, lx.errf(start, "attribute access with '.' is not supported; use the built-in functions instead")
	case '&', '|', '~':
		return token{}, lx.errf(start, "operator %q is not supported (use and, or, not)", r)
	}
	return token{}, lx.errf(start, "unexpected character %q", r)
}

func (lx *lexer) lexString(start Position) (token, error) {
	quote := lx.next()
	var sb strings.Builder
	for {
		ch := lx.next()
		switch ch {
		case 0, '\n':
			return token{}, lx.errf(start, "unterminated string")
		case quote:
			return token{typ: tString, val: sb.String(), pos: start}, nil
		case '\\':
			esc := lx.next()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			case 0:
				return token{}, lx.errf(start, "unterminated string")
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(ch)
		}
	}
}

// lexNumber accepts 12, 12.5, .5, 1e6, 1_000.
func (lx *lexer) lexNumber(start Position) (token, error) {
	var sb strings.Builder
	dot, exp := false, false
	for {
		ch := lx.peek()
		switch {
		case unicode.IsDigit(ch):
			sb.WriteRune(lx.next())
		case ch == '_' && unicode.IsDigit(lx.peekN(1)):
			lx.next()
		case ch == '.' && !dot && !exp:
			if unicode.IsLetter(lx.peekN(1)) {
				return token{}, lx.errf(lx.here(), "attribute access with '.' is not supported; use the built-in functions instead")
			}
			dot = true
			sb.WriteRune(lx.next())
		case (ch == 'e' || ch == 'E') && !exp:
			nxt := lx.peekN(1)
			if !unicode.IsDigit(nxt) && !((nxt == '+' || nxt == '-') && unicode.IsDigit(lx.peekN(2))) {
				return token{typ: tNumber, val: sb.String(), pos: start}, nil
			}
			exp = true
			sb.WriteRune(lx.next())
			if nxt == '+' || nxt == '-' {
				sb.WriteRune(lx.next())
			}
		default:
			return token{typ: tNumber, val: sb.String(), pos: start}, nil
		}
	}
}

// keyword recognizes FQL keywords. Boolean and none literals also accept the
// capitalized spellings models tend to produce.
func keyword(word string) (string, bool) {
	switch word {
	case "and", "or", "not", "true", "false", "none":
		return word, true
	case "True", "TRUE":
		return "true", true
	case "False", "FALSE":
		return "false", true
	case "None", "null":
		return "none", true
	}
	return "", false
}
