package engine

import (
	"fmt"

	"github.com/spektr-org/finchat/dataset"
)

// ============================================================================
// AST — Parsed FQL program
// ============================================================================

// Program is a parsed FQL program: statements run top to bottom.
type Program struct {
	Stmts []Stmt
}

// Stmt is either an assignment (Target set) or a bare expression.
type Stmt struct {
	Pos    Position
	Target string
	Expr   Expr
}

// Expr is any FQL expression node.
type Expr interface {
	Pos() Position
}

type (
	// Literal is a number, string, boolean or none constant.
	Literal struct {
		At    Position
		Value dataset.Value
	}

	// Ident names a variable, dataset or (in row context) a column.
	Ident struct {
		At   Position
		Name string
	}

	// ListExpr is [a, b, c].
	ListExpr struct {
		At    Position
		Elems []Expr
	}

	// UnaryExpr is -x or not x.
	UnaryExpr struct {
		At Position
		Op string
		X  Expr
	}

	// BinaryExpr is x op y.
	BinaryExpr struct {
		At Position
		Op string
		X  Expr
		Y  Expr
	}

	// CallExpr is fn(args..., name=value...). Only whitelisted functions parse.
	CallExpr struct {
		At     Position
		Func   string
		Args   []Expr
		Kwargs []Kwarg
	}

	// IndexExpr is x[i]: a table column, a series element or a list element.
	IndexExpr struct {
		At    Position
		X     Expr
		Index Expr
	}
)

// Kwarg is a name=value call argument.
type Kwarg struct {
	Name  string
	Value Expr
}

func (e *Literal) Pos() Position    { return e.At }
func (e *Ident) Pos() Position      { return e.At }
func (e *ListExpr) Pos() Position   { return e.At }
func (e *UnaryExpr) Pos() Position  { return e.At }
func (e *BinaryExpr) Pos() Position { return e.At }
func (e *CallExpr) Pos() Position   { return e.At }
func (e *IndexExpr) Pos() Position  { return e.At }

// SyntaxError reports a lexing or parsing failure.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg) }
