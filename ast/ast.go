// Package ast defines the language-neutral syntax tree consumed by the
// interpreter and the MIR builder (spec.md §4.2). It plays the same role
// for this core that go/ast plays for the Go toolchain: a plain, owned
// tree with no aliasing of subtrees, so that two independent
// consumers — the interpreter and the MIR builder — can each walk it
// without surprising the other.
//
// The tokenizer/parser that produces this tree is out of scope (spec.md
// §1); this package only defines the node shapes.
package ast

// Span is the source location of a Node, used for diagnostics. Every
// Node carries one (spec.md §4.2).
type Span struct {
	File        string
	Line, Col   int
	EndLine     int
	EndCol      int
}

// Node is the common interface of every AST node.
type Node interface {
	Span() Span
}

type base struct {
	span Span
}

func (b base) Span() Span { return b.span }

// NewBase is used by parser/builder code (outside this package, e.g.
// tests and fixtures) to construct the embeddable base of a node.
func NewBase(s Span) base { return base{span: s} }

// ---- Expressions ----

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

type exprBase struct{ base }

func (exprBase) exprNode() {}

// IntLiteral is an integer literal.
type IntLiteral struct {
	exprBase
	Value int64
}

// FloatLiteral is a float literal.
type FloatLiteral struct {
	exprBase
	Value float64
}

// StringLiteral is a string literal.
type StringLiteral struct {
	exprBase
	Value string
}

// BoolLiteral is a boolean literal.
type BoolLiteral struct {
	exprBase
	Value bool
}

// NullLiteral is the `null` literal.
type NullLiteral struct{ exprBase }

// Ident is a reference to a local/outbox variable or a static/global
// name.
type Ident struct {
	exprBase
	Name string
}

// Me is the `me` receiver expression.
type Me struct{ exprBase }

// BinaryExpr is a binary operator expression (arithmetic, excluding
// logical and/or and comparisons, which have their own node kinds to
// keep short-circuit and ordering semantics explicit to every
// consumer).
type BinaryExpr struct {
	exprBase
	Op          string // "+", "-", "*", "/", "%"
	Left, Right Expr
}

// UnaryExpr is a unary operator expression (e.g. "-", "not" uses
// NotExpr instead, to keep logical operators grouped together).
type UnaryExpr struct {
	exprBase
	Op string
	X  Expr
}

// CompareExpr is a comparison expression: ==, !=, <, <=, >, >=, and the
// identity operator `is`.
type CompareExpr struct {
	exprBase
	Op          string
	Left, Right Expr
}

// LogicalExpr is `and`/`or`, which must short-circuit.
type LogicalExpr struct {
	exprBase
	Op          string // "and" | "or"
	Left, Right Expr
}

// NotExpr is logical negation.
type NotExpr struct {
	exprBase
	X Expr
}

// FieldAccess is `receiver.field`.
type FieldAccess struct {
	exprBase
	Receiver Expr
	Field    string
}

// MethodCall is `receiver.method(args)`.
type MethodCall struct {
	exprBase
	Receiver Expr
	Method   string
	Args     []Expr
}

// DelegationCall is `from Parent.method(args)`, forcing dispatch at the
// named parent level regardless of the dynamic type (spec.md §4.2,
// §4.3).
type DelegationCall struct {
	exprBase
	Parent string
	Method string
	Args   []Expr
}

// NewExpr is `new TypeName(args)`.
type NewExpr struct {
	exprBase
	TypeName string
	Args     []Expr
}

// NowaitExpr spawns a future (`nowait expr`).
type NowaitExpr struct {
	exprBase
	X Expr
}

// AwaitExpr synchronizes on a future (`await expr`).
type AwaitExpr struct {
	exprBase
	X Expr
}

// ---- Statements ----

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

type stmtBase struct{ base }

func (stmtBase) stmtNode() {}

// ExprStmt wraps an expression evaluated for effect.
type ExprStmt struct {
	stmtBase
	X Expr
}

// VarKind distinguishes `local` from `outbox` declarations (spec.md
// §3.4).
type VarKind int

const (
	VarLocal VarKind = iota
	VarOutbox
)

// VarDecl declares a `local` or `outbox` binding, optionally with an
// initializer.
type VarDecl struct {
	stmtBase
	Kind VarKind
	Name string
	Init Expr // nil if uninitialized
}

// Assign is `name = expr` or `receiver.field = expr`, for an
// already-declared name or field.
type Assign struct {
	stmtBase
	Target Expr // *Ident or *FieldAccess
	Value  Expr
}

// Block is a sequence of statements forming a lexical scope.
type Block struct {
	stmtBase
	Stmts []Stmt
}

// If is `if cond { then } else { else_ }`. Else may be nil.
type If struct {
	stmtBase
	Cond Expr
	Then *Block
	Else *Block
}

// Loop is `loop(condition) { body }`.
type Loop struct {
	stmtBase
	Cond Expr
	Body *Block
}

// Break exits the innermost enclosing Loop.
type Break struct{ stmtBase }

// Return returns from the current function, with an optional value.
type Return struct {
	stmtBase
	Value Expr // nil for a bare `return`
}

// Using imports a namespace (`using ns`).
type Using struct {
	stmtBase
	Namespace string
}

// Include textually/logically includes another source unit.
type Include struct {
	stmtBase
	Path string
}

// ---- Declarations ----

// Param is a method/function parameter.
type Param struct {
	Name string
}

// MethodDecl declares a method, optionally marked `override` (spec.md
// §3.3, §4.3: required when redefining an inherited method).
type MethodDecl struct {
	base
	Name     string
	Params   []Param
	Body     *Block
	Override bool
}

// BoxDecl declares a user-defined Box type: a name, an ordered field
// list from `init { ... }`, at most one parent via `from ParentName`,
// a method set, and a static flag for the program's designated
// singleton entry type.
type BoxDecl struct {
	base
	Name    string
	Parent  string // "" if none
	Fields  []string
	Methods []*MethodDecl
	Static  bool
}

// Program is the root of a parsed source unit: a sequence of Box
// declarations plus top-level using/include directives.
type Program struct {
	base
	Uses     []*Using
	Includes []*Include
	Boxes    []*BoxDecl
}
