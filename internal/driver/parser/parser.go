// Package parser builds a driver AST from a token stream. It is a tolerant
// recursive-descent parser: class definitions, method signatures, and
// assignments are modeled precisely, while every other statement form is
// skipped as an opaque logical line (or indented suite). Driver code is
// never executed.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gometr/gometr/internal/driver/ast"
	"github.com/gometr/gometr/internal/driver/lexer"
)

// ParseError represents a syntax error encountered during parsing
type ParseError struct {
	Message string
	Line    int
	Column  int
}

// Error implements the error interface
func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser transforms a stream of tokens into an AST
type Parser struct {
	tokens  []lexer.Token
	current int
	errors  []ParseError
}

// New creates a new parser for the given token stream
func New(tokens []lexer.Token) *Parser {
	return &Parser{
		tokens: tokens,
		errors: make([]ParseError, 0),
	}
}

// ParseSource tokenizes and parses driver source text in one step. Lex
// errors are reported alongside parse errors.
func ParseSource(source string) (*ast.Module, []ParseError) {
	tokens, lexErrs := lexer.New(source).ScanTokens()
	p := New(tokens)
	for _, le := range lexErrs {
		p.errors = append(p.errors, ParseError{Message: le.Message, Line: le.Line, Column: le.Column})
	}
	module, parseErrs := p.Parse()
	return module, parseErrs
}

// Parse parses the token stream and returns the AST and any errors
func (p *Parser) Parse() (*ast.Module, []ParseError) {
	module := &ast.Module{Body: make([]ast.Stmt, 0)}

	for !p.isAtEnd() {
		if stmt := p.parseStatement(); stmt != nil {
			module.Body = append(module.Body, stmt)
		}
	}

	return module, p.errors
}

// parseStatement parses one statement, returning nil for statements the
// extractor does not model (which are consumed and discarded).
func (p *Parser) parseStatement() ast.Stmt {
	// Skip blank logical lines and stray block tokens left behind by
	// recovery.
	for p.match(lexer.TOKEN_NEWLINE) || p.match(lexer.TOKEN_INDENT) || p.match(lexer.TOKEN_DEDENT) {
		if p.isAtEnd() {
			return nil
		}
	}
	if p.isAtEnd() {
		return nil
	}

	switch p.peek().Type {
	case lexer.TOKEN_AT:
		return p.parseDecorated()
	case lexer.TOKEN_CLASS:
		return p.parseClass()
	case lexer.TOKEN_DEF:
		return p.parseFunc(nil)
	case lexer.TOKEN_PASS:
		p.advance()
		p.match(lexer.TOKEN_NEWLINE)
		return nil
	case lexer.TOKEN_IDENTIFIER:
		if stmt := p.tryParseAssign(); stmt != nil {
			return stmt
		}
		p.skipLogicalLine()
		return nil
	default:
		p.skipLogicalLine()
		return nil
	}
}

// parseDecorated collects decorator lines, then parses the decorated def.
// Decorated classes are parsed too, with the decorators dropped.
func (p *Parser) parseDecorated() ast.Stmt {
	decorators := make([]ast.Expr, 0, 1)
	for p.check(lexer.TOKEN_AT) {
		p.advance()
		decorators = append(decorators, p.parseExpr())
		p.match(lexer.TOKEN_NEWLINE)
	}

	switch p.peek().Type {
	case lexer.TOKEN_DEF:
		return p.parseFunc(decorators)
	case lexer.TOKEN_CLASS:
		return p.parseClass()
	default:
		p.error(p.peek(), "expected 'def' or 'class' after decorator")
		p.skipLogicalLine()
		return nil
	}
}

// parseClass parses `class Name(Base, ...):` and its indented body
func (p *Parser) parseClass() ast.Stmt {
	classToken := p.advance() // 'class'

	nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "expected class name")
	if nameToken.Type == lexer.TOKEN_ERROR {
		p.skipLogicalLine()
		return nil
	}

	class := &ast.ClassDef{
		Name:  nameToken.Lexeme,
		Bases: make([]string, 0, 1),
		Body:  make([]ast.Stmt, 0),
		Loc:   tokenLocation(classToken),
	}

	if p.match(lexer.TOKEN_LPAREN) {
		for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
			base := p.parseExpr()
			if name := ast.DottedName(base); name != "" {
				class.Bases = append(class.Bases, name)
			}
			if !p.match(lexer.TOKEN_COMMA) {
				break
			}
		}
		if !p.match(lexer.TOKEN_RPAREN) {
			p.error(p.peek(), "expected ')' after base class list")
			p.skipLogicalLine()
			return class
		}
	}

	if !p.match(lexer.TOKEN_COLON) {
		p.error(p.peek(), "expected ':' after class header")
		p.skipLogicalLine()
		return class
	}
	p.match(lexer.TOKEN_NEWLINE)

	if !p.match(lexer.TOKEN_INDENT) {
		// One-liner class body (`class X(Y): pass`) carries nothing we need.
		p.skipLogicalLine()
		return class
	}

	for !p.check(lexer.TOKEN_DEDENT) && !p.isAtEnd() {
		if stmt := p.parseStatement(); stmt != nil {
			class.Body = append(class.Body, stmt)
		}
	}
	p.match(lexer.TOKEN_DEDENT)

	return class
}

// parseFunc parses a def header, records the signature, and skips the body
func (p *Parser) parseFunc(decorators []ast.Expr) ast.Stmt {
	defToken := p.advance() // 'def'

	nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "expected function name")
	if nameToken.Type == lexer.TOKEN_ERROR {
		p.skipLogicalLine()
		return nil
	}

	fn := &ast.FuncDef{
		Name:       nameToken.Lexeme,
		Args:       make([]string, 0, 4),
		Decorators: decorators,
		Loc:        tokenLocation(defToken),
	}

	if !p.match(lexer.TOKEN_LPAREN) {
		p.error(p.peek(), "expected '(' after function name")
		p.skipLogicalLine()
		return fn
	}
	p.parseParams(fn)

	if p.match(lexer.TOKEN_ARROW) {
		fn.Returns = ast.DottedName(p.parseExpr())
	}

	if !p.match(lexer.TOKEN_COLON) {
		p.error(p.peek(), "expected ':' after function signature")
	}

	// Parse the body with the same tolerant statement loop used at module
	// level: assignments such as `self.channel = Channel.build(...)` inside
	// __init__ are what bind subsystems to instruments.
	for !p.isAtEnd() && !p.check(lexer.TOKEN_NEWLINE) {
		p.advance()
	}
	p.match(lexer.TOKEN_NEWLINE)
	if p.match(lexer.TOKEN_INDENT) {
		for !p.check(lexer.TOKEN_DEDENT) && !p.isAtEnd() {
			if stmt := p.parseStatement(); stmt != nil {
				fn.Body = append(fn.Body, stmt)
			}
		}
		p.match(lexer.TOKEN_DEDENT)
	}

	return fn
}

// parseParams scans a parameter list, capturing positional parameter names
// and stepping over annotations, defaults, and star parameters.
func (p *Parser) parseParams(fn *ast.FuncDef) {
	for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
		star := false
		for p.check(lexer.TOKEN_STAR) || p.check(lexer.TOKEN_OP) {
			star = true
			p.advance()
		}
		if p.check(lexer.TOKEN_IDENTIFIER) {
			name := p.advance().Lexeme
			if !star {
				fn.Args = append(fn.Args, name)
			}
		}
		// Step over `: annotation` and `= default` up to the next comma at
		// this nesting level.
		depth := 0
		for !p.isAtEnd() {
			t := p.peek().Type
			if depth == 0 && (t == lexer.TOKEN_COMMA || t == lexer.TOKEN_RPAREN) {
				break
			}
			switch t {
			case lexer.TOKEN_LPAREN, lexer.TOKEN_LBRACKET, lexer.TOKEN_LBRACE:
				depth++
			case lexer.TOKEN_RPAREN, lexer.TOKEN_RBRACKET, lexer.TOKEN_RBRACE:
				depth--
			}
			p.advance()
		}
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}
	if !p.match(lexer.TOKEN_RPAREN) {
		p.error(p.peek(), "expected ')' after parameters")
	}
}

// tryParseAssign attempts to parse `name = expr` or `recv.name = expr`.
// Returns nil without consuming anything when the line is not a simple
// assignment.
func (p *Parser) tryParseAssign() ast.Stmt {
	start := p.current
	first := p.advance() // identifier

	target := &ast.Target{Name: first.Lexeme}
	if p.check(lexer.TOKEN_DOT) && p.checkAt(1, lexer.TOKEN_IDENTIFIER) {
		p.advance()
		attr := p.advance()
		target.Object = first.Lexeme
		target.Name = attr.Lexeme
	}

	if !p.match(lexer.TOKEN_EQUAL) {
		p.current = start
		return nil
	}

	value := p.parseExpr()
	// Chained or tuple assignments fall outside the modeled subset; consume
	// the remainder of the line either way so recovery stays in sync.
	p.skipLogicalLine()

	return &ast.Assign{
		Target: target,
		Value:  value,
		Loc:    tokenLocation(first),
	}
}

// parseExpr parses one expression of the modeled subset. Anything beyond
// the subset collapses into an Opaque node spanning the rest of the
// expression at the current nesting level.
func (p *Parser) parseExpr() ast.Expr {
	expr := p.parseUnary()

	// A binary operator after a complete primary means the expression is
	// outside the modeled subset.
	switch p.peek().Type {
	case lexer.TOKEN_PLUS, lexer.TOKEN_MINUS, lexer.TOKEN_STAR, lexer.TOKEN_OP:
		loc := tokenLocation(p.peek())
		text := p.skipExpression()
		return &ast.Opaque{Text: text, Loc: loc}
	}
	return expr
}

func (p *Parser) parseUnary() ast.Expr {
	if p.check(lexer.TOKEN_PLUS) || p.check(lexer.TOKEN_MINUS) {
		opToken := p.advance()
		operand := p.parseUnary()
		return &ast.UnaryOp{Op: opToken.Lexeme[0], Operand: operand, Loc: tokenLocation(opToken)}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()

	for {
		switch {
		case p.check(lexer.TOKEN_DOT) && p.checkAt(1, lexer.TOKEN_IDENTIFIER):
			dot := p.advance()
			attr := p.advance()
			expr = &ast.Attribute{Value: expr, Attr: attr.Lexeme, Loc: tokenLocation(dot)}
		case p.check(lexer.TOKEN_LPAREN):
			expr = p.parseCall(expr)
		case p.check(lexer.TOKEN_LBRACKET):
			// Subscripts are not modeled.
			loc := tokenLocation(p.peek())
			p.skipBalanced(lexer.TOKEN_LBRACKET, lexer.TOKEN_RBRACKET)
			expr = &ast.Opaque{Text: "subscript", Loc: loc}
		default:
			return expr
		}
	}
}

func (p *Parser) parseCall(fn ast.Expr) ast.Expr {
	lparen := p.advance() // '('
	call := &ast.Call{
		Func:     fn,
		Args:     make([]ast.Expr, 0, 2),
		Keywords: make([]ast.Keyword, 0, 2),
		Loc:      tokenLocation(lparen),
	}

	for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
		if p.check(lexer.TOKEN_IDENTIFIER) && p.checkAt(1, lexer.TOKEN_EQUAL) {
			key := p.advance().Lexeme
			p.advance() // '='
			call.Keywords = append(call.Keywords, ast.Keyword{Arg: key, Value: p.parseExpr()})
		} else {
			call.Args = append(call.Args, p.parseExpr())
		}
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}
	if !p.match(lexer.TOKEN_RPAREN) {
		p.error(p.peek(), "expected ')' after call arguments")
		p.skipLogicalLine()
	}
	return call
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.peek()
	loc := tokenLocation(t)

	switch t.Type {
	case lexer.TOKEN_IDENTIFIER:
		p.advance()
		return &ast.Name{ID: t.Lexeme, Loc: loc}
	case lexer.TOKEN_STRING:
		p.advance()
		return &ast.Constant{Kind: ast.ConstString, Str: t.Lexeme, Loc: loc}
	case lexer.TOKEN_NUMBER:
		p.advance()
		return numberConstant(t, loc)
	case lexer.TOKEN_TRUE:
		p.advance()
		return &ast.Constant{Kind: ast.ConstBool, Bool: true, Loc: loc}
	case lexer.TOKEN_FALSE:
		p.advance()
		return &ast.Constant{Kind: ast.ConstBool, Bool: false, Loc: loc}
	case lexer.TOKEN_NONE:
		p.advance()
		return &ast.Constant{Kind: ast.ConstNone, Loc: loc}
	case lexer.TOKEN_LBRACKET:
		return p.parseList(lexer.TOKEN_RBRACKET)
	case lexer.TOKEN_LPAREN:
		return p.parseParenthesized()
	case lexer.TOKEN_LBRACE:
		p.skipBalanced(lexer.TOKEN_LBRACE, lexer.TOKEN_RBRACE)
		return &ast.Opaque{Text: "dict or set display", Loc: loc}
	case lexer.TOKEN_STAR:
		// Star-arg in a call: consume and treat the rest as opaque.
		p.advance()
		text := p.skipExpression()
		return &ast.Opaque{Text: "*" + text, Loc: loc}
	default:
		p.error(t, fmt.Sprintf("unexpected token %s in expression", t.Type))
		p.advance()
		return &ast.Opaque{Text: t.Lexeme, Loc: loc}
	}
}

// parseList parses a list display. Tuples reuse this via
// parseParenthesized; the extractor treats both identically.
func (p *Parser) parseList(closing lexer.TokenType) ast.Expr {
	open := p.advance()
	list := &ast.List{Elts: make([]ast.Expr, 0, 4), Loc: tokenLocation(open)}

	for !p.check(closing) && !p.isAtEnd() {
		list.Elts = append(list.Elts, p.parseExpr())
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}
	if !p.match(closing) {
		p.error(p.peek(), fmt.Sprintf("expected '%s'", closing))
		p.skipLogicalLine()
	}
	return list
}

// parseParenthesized handles both grouping parens and tuple displays
func (p *Parser) parseParenthesized() ast.Expr {
	open := p.advance() // '('
	if p.match(lexer.TOKEN_RPAREN) {
		return &ast.List{Loc: tokenLocation(open)}
	}

	first := p.parseExpr()
	if p.match(lexer.TOKEN_RPAREN) {
		return first
	}

	tuple := &ast.List{Elts: []ast.Expr{first}, Loc: tokenLocation(open)}
	for p.match(lexer.TOKEN_COMMA) {
		if p.check(lexer.TOKEN_RPAREN) {
			break
		}
		tuple.Elts = append(tuple.Elts, p.parseExpr())
	}
	if !p.match(lexer.TOKEN_RPAREN) {
		p.error(p.peek(), "expected ')'")
		p.skipLogicalLine()
	}
	return tuple
}

func numberConstant(t lexer.Token, loc ast.SourceLocation) ast.Expr {
	text := strings.ReplaceAll(t.Lexeme, "_", "")
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &ast.Constant{Kind: ast.ConstInt, Int: i, Loc: loc}
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return &ast.Opaque{Text: t.Lexeme, Loc: loc}
	}
	return &ast.Constant{Kind: ast.ConstFloat, Float: f, Loc: loc}
}

// Recovery helpers

// skipLogicalLine consumes tokens through the next NEWLINE. If the line
// opens an indented suite (a compound statement such as if/for/with), the
// whole suite is consumed too.
func (p *Parser) skipLogicalLine() {
	for !p.isAtEnd() && !p.check(lexer.TOKEN_NEWLINE) {
		if p.check(lexer.TOKEN_DEDENT) {
			// Never walk out of the enclosing block while recovering.
			return
		}
		p.advance()
	}
	p.match(lexer.TOKEN_NEWLINE)

	if p.check(lexer.TOKEN_INDENT) {
		p.skipBlock()
	}
}

// skipBlock consumes a balanced INDENT..DEDENT region
func (p *Parser) skipBlock() {
	depth := 0
	for !p.isAtEnd() {
		switch p.peek().Type {
		case lexer.TOKEN_INDENT:
			depth++
		case lexer.TOKEN_DEDENT:
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}

// skipExpression consumes the rest of an expression at the current bracket
// nesting level and returns its raw text for diagnostics.
func (p *Parser) skipExpression() string {
	var sb strings.Builder
	depth := 0
	for !p.isAtEnd() {
		t := p.peek().Type
		if depth == 0 {
			switch t {
			case lexer.TOKEN_COMMA, lexer.TOKEN_RPAREN, lexer.TOKEN_RBRACKET,
				lexer.TOKEN_RBRACE, lexer.TOKEN_NEWLINE, lexer.TOKEN_COLON:
				return strings.TrimSpace(sb.String())
			}
		}
		switch t {
		case lexer.TOKEN_LPAREN, lexer.TOKEN_LBRACKET, lexer.TOKEN_LBRACE:
			depth++
		case lexer.TOKEN_RPAREN, lexer.TOKEN_RBRACKET, lexer.TOKEN_RBRACE:
			depth--
		}
		sb.WriteString(p.advance().Lexeme)
		sb.WriteByte(' ')
	}
	return strings.TrimSpace(sb.String())
}

// skipBalanced consumes from an opening bracket through its matching close
func (p *Parser) skipBalanced(open, close lexer.TokenType) {
	depth := 0
	for !p.isAtEnd() {
		t := p.peek().Type
		if t == open {
			depth++
		} else if t == close {
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}

// Token stream helpers

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TOKEN_EOF
}

func (p *Parser) peek() lexer.Token {
	if p.current >= len(p.tokens) {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[p.current]
}

func (p *Parser) advance() lexer.Token {
	t := p.peek()
	if p.current < len(p.tokens)-1 {
		p.current++
	} else {
		p.current = len(p.tokens)
	}
	return t
}

func (p *Parser) check(tokType lexer.TokenType) bool {
	return p.peek().Type == tokType
}

func (p *Parser) checkAt(offset int, tokType lexer.TokenType) bool {
	idx := p.current + offset
	if idx >= len(p.tokens) {
		return false
	}
	return p.tokens[idx].Type == tokType
}

func (p *Parser) match(tokType lexer.TokenType) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(tokType lexer.TokenType, message string) lexer.Token {
	if p.check(tokType) {
		return p.advance()
	}
	p.error(p.peek(), message)
	return lexer.Token{Type: lexer.TOKEN_ERROR}
}

func (p *Parser) error(t lexer.Token, message string) {
	p.errors = append(p.errors, ParseError{Message: message, Line: t.Line, Column: t.Column})
}

func tokenLocation(t lexer.Token) ast.SourceLocation {
	return ast.SourceLocation{Line: t.Line, Column: t.Column}
}
