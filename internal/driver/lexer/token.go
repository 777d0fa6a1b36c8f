package lexer

import "fmt"

// TokenType represents the type of a token in a driver source file
type TokenType int

const (
	// TOKEN_EOF marks the end of the token stream.
	TOKEN_EOF TokenType = iota
	// TOKEN_ERROR represents a lexical error encountered during scanning.
	TOKEN_ERROR

	// TOKEN_NEWLINE terminates a logical line.
	TOKEN_NEWLINE
	// TOKEN_INDENT opens a new indentation block.
	TOKEN_INDENT
	// TOKEN_DEDENT closes an indentation block.
	TOKEN_DEDENT

	// TOKEN_CLASS marks the 'class' keyword.
	TOKEN_CLASS
	// TOKEN_DEF marks the 'def' keyword.
	TOKEN_DEF
	// TOKEN_PASS marks the 'pass' keyword.
	TOKEN_PASS
	// TOKEN_TRUE marks the 'True' literal.
	TOKEN_TRUE
	// TOKEN_FALSE marks the 'False' literal.
	TOKEN_FALSE
	// TOKEN_NONE marks the 'None' literal.
	TOKEN_NONE

	// TOKEN_IDENTIFIER is a bare name.
	TOKEN_IDENTIFIER
	// TOKEN_NUMBER is an integer or floating point literal.
	TOKEN_NUMBER
	// TOKEN_STRING is a string literal with quotes stripped.
	TOKEN_STRING

	// TOKEN_LPAREN is '('.
	TOKEN_LPAREN
	// TOKEN_RPAREN is ')'.
	TOKEN_RPAREN
	// TOKEN_LBRACKET is '['.
	TOKEN_LBRACKET
	// TOKEN_RBRACKET is ']'.
	TOKEN_RBRACKET
	// TOKEN_LBRACE is '{'.
	TOKEN_LBRACE
	// TOKEN_RBRACE is '}'.
	TOKEN_RBRACE
	// TOKEN_COMMA is ','.
	TOKEN_COMMA
	// TOKEN_COLON is ':'.
	TOKEN_COLON
	// TOKEN_DOT is '.'.
	TOKEN_DOT
	// TOKEN_EQUAL is a bare '=' (assignment, not comparison).
	TOKEN_EQUAL
	// TOKEN_AT is '@' introducing a decorator.
	TOKEN_AT
	// TOKEN_STAR is '*' (star-args in signatures).
	TOKEN_STAR
	// TOKEN_PLUS is unary or binary '+'.
	TOKEN_PLUS
	// TOKEN_MINUS is unary or binary '-'.
	TOKEN_MINUS
	// TOKEN_ARROW is '->' in a return annotation.
	TOKEN_ARROW
	// TOKEN_OP is any other operator or punctuation the extractor does not
	// interpret. The parser skips over these when recovering a line.
	TOKEN_OP
)

var tokenNames = map[TokenType]string{
	TOKEN_EOF:        "EOF",
	TOKEN_ERROR:      "ERROR",
	TOKEN_NEWLINE:    "NEWLINE",
	TOKEN_INDENT:     "INDENT",
	TOKEN_DEDENT:     "DEDENT",
	TOKEN_CLASS:      "class",
	TOKEN_DEF:        "def",
	TOKEN_PASS:       "pass",
	TOKEN_TRUE:       "True",
	TOKEN_FALSE:      "False",
	TOKEN_NONE:       "None",
	TOKEN_IDENTIFIER: "identifier",
	TOKEN_NUMBER:     "number",
	TOKEN_STRING:     "string",
	TOKEN_LPAREN:     "(",
	TOKEN_RPAREN:     ")",
	TOKEN_LBRACKET:   "[",
	TOKEN_RBRACKET:   "]",
	TOKEN_LBRACE:     "{",
	TOKEN_RBRACE:     "}",
	TOKEN_COMMA:      ",",
	TOKEN_COLON:      ":",
	TOKEN_DOT:        ".",
	TOKEN_EQUAL:      "=",
	TOKEN_AT:         "@",
	TOKEN_STAR:       "*",
	TOKEN_PLUS:       "+",
	TOKEN_MINUS:      "-",
	TOKEN_ARROW:      "->",
	TOKEN_OP:         "operator",
}

// String returns a human-readable name for the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token represents a single lexical token
type Token struct {
	Type   TokenType
	Lexeme string // Raw text of the token (quotes stripped for strings)
	Line   int    // Line number (1-indexed)
	Column int    // Column number (1-indexed)
}

// keywords maps reserved words the extractor cares about to token types.
// Every other Python keyword is lexed as a plain identifier; the parser
// skips statements it does not recognize, so it never needs to know about
// 'import', 'if', 'for', and friends.
var keywords = map[string]TokenType{
	"class": TOKEN_CLASS,
	"def":   TOKEN_DEF,
	"pass":  TOKEN_PASS,
	"True":  TOKEN_TRUE,
	"False": TOKEN_FALSE,
	"None":  TOKEN_NONE,
}

// LexError represents an error encountered during lexing
type LexError struct {
	Message string // Error message
	Line    int    // Line number where error occurred
	Column  int    // Column number where error occurred
	Lexeme  string // The problematic text
}

// Error implements the error interface
func (e LexError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}
