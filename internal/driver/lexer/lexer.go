// Package lexer provides lexical analysis for instrument driver source
// files. Drivers are written in Python; the lexer understands the subset the
// metadata extractor needs, including significant indentation, and degrades
// gracefully on everything else by emitting generic operator tokens.
package lexer

import (
	"fmt"
	"strings"
)

// tabWidth is the number of columns a tab advances when measuring
// indentation. Drivers in the wild indent with spaces; tabs are accepted but
// mixing the two within one block is undefined, as in Python itself.
const tabWidth = 8

// Lexer tokenizes driver source code.
//
// Lexer instances are not safe for concurrent use. Create one per source
// text via New().
type Lexer struct {
	source  string
	start   int // Start position of current token
	current int // Current position in source
	line    int // Current line number (1-indexed)
	column  int // Current column number (1-indexed)

	tokens []Token
	errors []LexError

	// Indentation state. bracketDepth suppresses NEWLINE/INDENT/DEDENT
	// inside (), [] and {} the way Python's tokenizer joins implicit
	// continuation lines.
	indents      []int
	bracketDepth int
	atLineStart  bool
}

// New creates a new Lexer for the given source code
func New(source string) *Lexer {
	return &Lexer{
		source:      source,
		line:        1,
		column:      1,
		tokens:      make([]Token, 0),
		errors:      make([]LexError, 0),
		indents:     []int{0},
		atLineStart: true,
	}
}

// ScanTokens tokenizes the entire source and returns tokens and errors
func (l *Lexer) ScanTokens() ([]Token, []LexError) {
	for !l.isAtEnd() {
		if l.atLineStart && l.bracketDepth == 0 {
			l.scanIndentation()
			if l.isAtEnd() {
				break
			}
		}
		l.start = l.current
		l.scanToken()
	}

	// Close any open logical line, then unwind the indent stack.
	if len(l.tokens) > 0 && l.lastEmitted() != TOKEN_NEWLINE {
		l.addSynthetic(TOKEN_NEWLINE)
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.addSynthetic(TOKEN_DEDENT)
	}
	l.tokens = append(l.tokens, Token{Type: TOKEN_EOF, Line: l.line, Column: l.column})

	return l.tokens, l.errors
}

// scanIndentation measures leading whitespace at the start of a logical line
// and emits INDENT/DEDENT tokens against the indent stack. Blank and
// comment-only lines are consumed without affecting indentation.
func (l *Lexer) scanIndentation() {
	for {
		width := 0
		for !l.isAtEnd() {
			switch l.peek() {
			case ' ':
				width++
			case '\t':
				width += tabWidth - (width % tabWidth)
			default:
				goto measured
			}
			l.advance()
		}
	measured:
		if l.isAtEnd() {
			return
		}
		c := l.peek()
		if c == '\n' {
			l.advance()
			l.line++
			l.column = 1
			continue
		}
		if c == '#' {
			l.skipLineComment()
			continue
		}
		if c == '\r' {
			l.advance()
			continue
		}

		l.atLineStart = false
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.addSynthetic(TOKEN_INDENT)
		case width < top:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.addSynthetic(TOKEN_DEDENT)
			}
			if l.indents[len(l.indents)-1] != width {
				l.addError(fmt.Sprintf("inconsistent dedent to column %d", width))
			}
		}
		return
	}
}

// scanToken processes the next token
func (l *Lexer) scanToken() {
	c := l.advance()

	switch {
	case c == '(' || c == '[' || c == '{':
		l.bracketDepth++
		l.scanDelimiter(c)
	case c == ')' || c == ']' || c == '}':
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
		l.scanDelimiter(c)
	case c == ',':
		l.addToken(TOKEN_COMMA)
	case c == ':':
		// ':=' is irrelevant to drivers; lex it as a generic operator.
		if l.match('=') {
			l.addToken(TOKEN_OP)
		} else {
			l.addToken(TOKEN_COLON)
		}
	case c == '.':
		l.addToken(TOKEN_DOT)
	case c == '@':
		l.addToken(TOKEN_AT)
	case c == '*':
		if l.match('*') || l.match('=') {
			l.addToken(TOKEN_OP)
		} else {
			l.addToken(TOKEN_STAR)
		}
	case c == '+':
		if l.match('=') {
			l.addToken(TOKEN_OP)
		} else {
			l.addToken(TOKEN_PLUS)
		}
	case c == '-':
		switch {
		case l.match('>'):
			l.addToken(TOKEN_ARROW)
		case l.match('='):
			l.addToken(TOKEN_OP)
		default:
			l.addToken(TOKEN_MINUS)
		}
	case c == '=':
		if l.match('=') {
			l.addToken(TOKEN_OP)
		} else {
			l.addToken(TOKEN_EQUAL)
		}
	case c == '<' || c == '>' || c == '!' || c == '%' || c == '/' ||
		c == '&' || c == '|' || c == '^' || c == '~' || c == ';':
		// Operators the extractor never interprets. Fold compound forms
		// (<=, //, !=, ...) into a single generic token.
		l.match('=')
		l.match(byte(c))
		l.addToken(TOKEN_OP)
	case c == '#':
		l.backup()
		l.skipLineComment()
	case c == '"' || c == '\'':
		l.scanString(c)
	case c == '\\':
		// Explicit line continuation: swallow the newline.
		l.match('\r')
		if l.match('\n') {
			l.line++
			l.column = 1
		}
	case c == ' ' || c == '\r' || c == '\t':
		// Ignore interior whitespace
	case c == '\n':
		l.line++
		l.column = 1
		if l.bracketDepth == 0 {
			if len(l.tokens) > 0 && l.lastEmitted() != TOKEN_NEWLINE {
				l.addNewline()
			}
			l.atLineStart = true
		}
	case isDigit(c):
		l.scanNumber()
	case isAlpha(c):
		l.scanIdentifier()
	default:
		l.addError(fmt.Sprintf("unexpected character %q", c))
	}
}

func (l *Lexer) scanDelimiter(c byte) {
	switch c {
	case '(':
		l.addToken(TOKEN_LPAREN)
	case ')':
		l.addToken(TOKEN_RPAREN)
	case '[':
		l.addToken(TOKEN_LBRACKET)
	case ']':
		l.addToken(TOKEN_RBRACKET)
	case '{':
		l.addToken(TOKEN_LBRACE)
	case '}':
		l.addToken(TOKEN_RBRACE)
	}
}

// scanString scans a single-, double- or triple-quoted string. String
// prefixes (r, b, f, u) are consumed by scanIdentifier, which calls back in
// here when a quote immediately follows a prefix identifier.
func (l *Lexer) scanString(quote byte) {
	triple := false
	if l.peek() == quote && l.peekNext() == quote {
		l.advance()
		l.advance()
		triple = true
	}

	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '\\' && !l.isAtEnd() {
			l.advance()
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			case '\n':
				l.line++
				l.column = 1
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			continue
		}
		if c == '\n' {
			if !triple {
				l.addError("unterminated string literal")
				return
			}
			l.line++
			l.column = 1
			sb.WriteByte(c)
			l.advance()
			continue
		}
		if c == quote {
			if !triple {
				l.advance()
				l.addStringToken(sb.String())
				return
			}
			if l.peekNext() == quote && l.peekAt(2) == quote {
				l.advance()
				l.advance()
				l.advance()
				l.addStringToken(sb.String())
				return
			}
		}
		sb.WriteByte(c)
		l.advance()
	}
	l.addError("unterminated string literal")
}

func (l *Lexer) scanNumber() {
	for isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		next := l.peekNext()
		if isDigit(next) || next == '+' || next == '-' {
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	l.addToken(TOKEN_NUMBER)
}

func (l *Lexer) scanIdentifier() {
	for isAlphaNumeric(l.peek()) {
		l.advance()
	}
	lexeme := l.source[l.start:l.current]

	// String prefix directly followed by a quote: rf'...', b"...", etc.
	if len(lexeme) <= 2 && (l.peek() == '"' || l.peek() == '\'') && isStringPrefix(lexeme) {
		quote := l.advance()
		l.scanString(quote)
		return
	}

	if tokType, ok := keywords[lexeme]; ok {
		l.addToken(tokType)
		return
	}
	l.addToken(TOKEN_IDENTIFIER)
}

func isStringPrefix(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'r', 'R', 'b', 'B', 'f', 'F', 'u', 'U':
		default:
			return false
		}
	}
	return true
}

func (l *Lexer) skipLineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

// Helper methods

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advance() byte {
	c := l.source[l.current]
	l.current++
	l.column++
	return c
}

func (l *Lexer) backup() {
	l.current--
	l.column--
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	l.column++
	return true
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekNext() byte {
	return l.peekAt(1)
}

func (l *Lexer) peekAt(offset int) byte {
	if l.current+offset >= len(l.source) {
		return 0
	}
	return l.source[l.current+offset]
}

func (l *Lexer) addToken(tokType TokenType) {
	lexeme := l.source[l.start:l.current]
	l.tokens = append(l.tokens, Token{
		Type:   tokType,
		Lexeme: lexeme,
		Line:   l.line,
		Column: l.column - len(lexeme),
	})
}

// addNewline is addToken for the newline consumed just before line/column
// were reset.
func (l *Lexer) addNewline() {
	l.tokens = append(l.tokens, Token{Type: TOKEN_NEWLINE, Lexeme: "\n", Line: l.line - 1})
}

// addSynthetic emits a token with no corresponding source text
// (INDENT/DEDENT and the final NEWLINE).
func (l *Lexer) addSynthetic(tokType TokenType) {
	l.tokens = append(l.tokens, Token{Type: tokType, Line: l.line, Column: 1})
}

func (l *Lexer) addStringToken(value string) {
	l.tokens = append(l.tokens, Token{
		Type:   TOKEN_STRING,
		Lexeme: value,
		Line:   l.line,
		Column: l.column - (l.current - l.start),
	})
}

func (l *Lexer) addError(message string) {
	l.errors = append(l.errors, LexError{
		Message: message,
		Line:    l.line,
		Column:  l.column,
		Lexeme:  l.source[l.start:l.current],
	})
}

func (l *Lexer) lastEmitted() TokenType {
	return l.tokens[len(l.tokens)-1].Type
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}
