package tinybasic

import (
	"strconv"
)

// TokenType classifies a lexical token of a statement.
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_NUMBER
	TOKEN_STRING
	TOKEN_IDENTIFIER
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_MULTIPLY
	TOKEN_DIVIDE
	TOKEN_MOD
	TOKEN_AND
	TOKEN_OR
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_EQ
	TOKEN_NE
	TOKEN_LT
	TOKEN_LE
	TOKEN_GT
	TOKEN_GE
	TOKEN_COMMA
	TOKEN_SEMICOLON
	TOKEN_ILLEGAL
)

// Token is one lexical token. NumVal is set for numbers, Value holds the
// identifier name or the unquoted string.
type Token struct {
	Type   TokenType
	Value  string
	NumVal int
}

// Lexer splits a single statement into tokens. Input is expected in the
// canonical lowercase form.
type Lexer struct {
	input string
	pos   int
}

// NewLexer returns a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\r') {
		l.pos++
	}
}

// Rest returns the unread input after blanks.
func (l *Lexer) Rest() string {
	l.skipWhitespace()
	return l.input[l.pos:]
}

// NextToken returns the next token, TOKEN_EOF at the end.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TOKEN_EOF}
	}

	c := l.input[l.pos]
	switch {
	case c >= '0' && c <= '9':
		start := l.pos
		for l.pos < len(l.input) && l.input[l.pos] >= '0' && l.input[l.pos] <= '9' {
			l.pos++
		}
		text := l.input[start:l.pos]
		n, err := strconv.Atoi(text)
		if err != nil {
			return Token{Type: TOKEN_ILLEGAL, Value: text}
		}
		return Token{Type: TOKEN_NUMBER, Value: text, NumVal: n}
	case c >= 'a' && c <= 'z':
		start := l.pos
		for l.pos < len(l.input) && l.input[l.pos] >= 'a' && l.input[l.pos] <= 'z' {
			l.pos++
		}
		return Token{Type: TOKEN_IDENTIFIER, Value: l.input[start:l.pos]}
	case c == '"':
		l.pos++
		start := l.pos
		for l.pos < len(l.input) && l.input[l.pos] != '"' {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return Token{Type: TOKEN_ILLEGAL, Value: l.input[start-1:]}
		}
		s := l.input[start:l.pos]
		l.pos++
		return Token{Type: TOKEN_STRING, Value: s}
	}

	l.pos++
	switch c {
	case '+':
		return Token{Type: TOKEN_PLUS, Value: "+"}
	case '-':
		return Token{Type: TOKEN_MINUS, Value: "-"}
	case '*':
		return Token{Type: TOKEN_MULTIPLY, Value: "*"}
	case '/':
		return Token{Type: TOKEN_DIVIDE, Value: "/"}
	case '%':
		return Token{Type: TOKEN_MOD, Value: "%"}
	case '&':
		return Token{Type: TOKEN_AND, Value: "&"}
	case '|':
		return Token{Type: TOKEN_OR, Value: "|"}
	case '(':
		return Token{Type: TOKEN_LPAREN, Value: "("}
	case ')':
		return Token{Type: TOKEN_RPAREN, Value: ")"}
	case ',':
		return Token{Type: TOKEN_COMMA, Value: ","}
	case ';':
		return Token{Type: TOKEN_SEMICOLON, Value: ";"}
	case '=':
		return Token{Type: TOKEN_EQ, Value: "="}
	case '<':
		if l.pos < len(l.input) {
			switch l.input[l.pos] {
			case '=':
				l.pos++
				return Token{Type: TOKEN_LE, Value: "<="}
			case '>':
				l.pos++
				return Token{Type: TOKEN_NE, Value: "<>"}
			}
		}
		return Token{Type: TOKEN_LT, Value: "<"}
	case '>':
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
			return Token{Type: TOKEN_GE, Value: ">="}
		}
		return Token{Type: TOKEN_GT, Value: ">"}
	}
	return Token{Type: TOKEN_ILLEGAL, Value: string(c)}
}
