// Package ast defines the Abstract Syntax Tree node types for instrument
// driver source files. The tree covers only what the metadata extractor
// inspects: class definitions, method signatures, assignments, and the
// expression forms that appear on their right-hand sides.
package ast

// SourceLocation tracks the position of an AST node in source code
type SourceLocation struct {
	Line   int // Line number (1-indexed)
	Column int // Column number (1-indexed)
}

// Node is the base interface for all AST nodes
type Node interface {
	Location() SourceLocation
	node()
}

// Module is the root node of a parsed driver file
type Module struct {
	Body []Stmt
}

func (m *Module) node() {}

// Location returns the source location of the module
func (m *Module) Location() SourceLocation {
	if len(m.Body) > 0 {
		return m.Body[0].Location()
	}
	return SourceLocation{Line: 1, Column: 1}
}

// Stmt is implemented by all statement nodes
type Stmt interface {
	Node
	stmt()
}

// ClassDef represents a class definition with its base-class names and body
type ClassDef struct {
	Name  string
	Bases []string
	Body  []Stmt
	Loc   SourceLocation
}

func (c *ClassDef) node() {}
func (c *ClassDef) stmt() {}

// Location returns the source location of the class definition
func (c *ClassDef) Location() SourceLocation { return c.Loc }

// HasBase reports whether name is one of the declared base classes
func (c *ClassDef) HasBase(name string) bool {
	for _, b := range c.Bases {
		if b == name {
			return true
		}
	}
	return false
}

// FuncDef represents a method or function definition. The body retains only
// the statements the parser models (assignments and nested definitions);
// control flow is skipped.
type FuncDef struct {
	Name       string
	Args       []string // Positional parameter names, 'self' included
	Decorators []Expr
	Returns    string // Return annotation rendered as dotted text, or ""
	Body       []Stmt
	Loc        SourceLocation
}

func (f *FuncDef) node() {}
func (f *FuncDef) stmt() {}

// Location returns the source location of the function definition
func (f *FuncDef) Location() SourceLocation { return f.Loc }

// Assign represents a single-target assignment: `target = value` or
// `obj.attr = value`.
type Assign struct {
	Target *Target
	Value  Expr
	Loc    SourceLocation
}

func (a *Assign) node() {}
func (a *Assign) stmt() {}

// Location returns the source location of the assignment
func (a *Assign) Location() SourceLocation { return a.Loc }

// Target is the left-hand side of an assignment. Object is empty for a bare
// name (`channel = ...`) and holds the receiver for attribute targets
// (`self.channel = ...`).
type Target struct {
	Object string
	Name   string
}

// Expr is implemented by all expression nodes
type Expr interface {
	Node
	expr()
}

// Name is a bare identifier
type Name struct {
	ID  string
	Loc SourceLocation
}

func (n *Name) node() {}
func (n *Name) expr() {}

// Location returns the source location of the name
func (n *Name) Location() SourceLocation { return n.Loc }

// Attribute is dotted access: Value.Attr
type Attribute struct {
	Value Expr
	Attr  string
	Loc   SourceLocation
}

func (a *Attribute) node() {}
func (a *Attribute) expr() {}

// Location returns the source location of the attribute access
func (a *Attribute) Location() SourceLocation { return a.Loc }

// Call is a function or method call
type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []Keyword
	Loc      SourceLocation
}

func (c *Call) node() {}
func (c *Call) expr() {}

// Location returns the source location of the call
func (c *Call) Location() SourceLocation { return c.Loc }

// Keyword is a keyword argument in a call
type Keyword struct {
	Arg   string
	Value Expr
}

// ConstantKind discriminates the value held by a Constant
type ConstantKind int

const (
	// ConstString is a string literal
	ConstString ConstantKind = iota
	// ConstInt is an integer literal
	ConstInt
	// ConstFloat is a floating point literal
	ConstFloat
	// ConstBool is True or False
	ConstBool
	// ConstNone is the None literal
	ConstNone
)

// Constant is a literal value
type Constant struct {
	Kind  ConstantKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Loc   SourceLocation
}

func (c *Constant) node() {}
func (c *Constant) expr() {}

// Location returns the source location of the constant
func (c *Constant) Location() SourceLocation { return c.Loc }

// List is a list or tuple display; the extractor treats both alike
type List struct {
	Elts []Expr
	Loc  SourceLocation
}

func (l *List) node() {}
func (l *List) expr() {}

// Location returns the source location of the list
func (l *List) Location() SourceLocation { return l.Loc }

// UnaryOp is unary plus or minus applied to an operand
type UnaryOp struct {
	Op      byte // '+' or '-'
	Operand Expr
	Loc     SourceLocation
}

func (u *UnaryOp) node() {}
func (u *UnaryOp) expr() {}

// Location returns the source location of the unary expression
func (u *UnaryOp) Location() SourceLocation { return u.Loc }

// Opaque marks an expression shape the parser recognized syntactically but
// does not model (dict displays, comprehensions, arithmetic, subscripts).
// The extractor's constant folder rejects it, which is what triggers the
// drop-one-property policy.
type Opaque struct {
	Text string // Best-effort rendering for diagnostics
	Loc  SourceLocation
}

func (o *Opaque) node() {}
func (o *Opaque) expr() {}

// Location returns the source location of the opaque expression
func (o *Opaque) Location() SourceLocation { return o.Loc }

// DottedName renders an expression as dotted text if it is a Name or a chain
// of Attributes ending in a Name. Returns "" otherwise.
func DottedName(e Expr) string {
	switch v := e.(type) {
	case *Name:
		return v.ID
	case *Attribute:
		base := DottedName(v.Value)
		if base == "" {
			return ""
		}
		return base + "." + v.Attr
	}
	return ""
}
