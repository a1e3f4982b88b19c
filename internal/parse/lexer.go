// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/canonical/sqltype/internal/diag"
)

// Dialect selects the lexical and syntactic flavour of SQL being parsed.
type Dialect int

const (
	MariaDB Dialect = iota
	PostgreSQL
)

func (d Dialect) String() string {
	if d == PostgreSQL {
		return "postgres"
	}
	return "mariadb"
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokInt
	tokFloat
	tokString
	tokHex
	tokPlaceholder
	tokNumbered
	tokOp
)

var tokenKindNames = []string{
	tokEOF:         "end of input",
	tokIdent:       "identifier",
	tokQuotedIdent: "quoted identifier",
	tokInt:         "integer",
	tokFloat:       "number",
	tokString:      "string",
	tokHex:         "hex literal",
	tokPlaceholder: "placeholder",
	tokNumbered:    "placeholder",
	tokOp:          "operator",
}

func (k tokenKind) String() string {
	return tokenKindNames[k]
}

// token is a lexical unit of the input.
type token struct {
	kind tokenKind
	// text is the identifier name, the operator, the digits of a number or the
	// decoded contents of a string or quoted identifier.
	text string
	span diag.Span
}

// is reports whether the token is the given operator or the given keyword,
// ignoring case. Quoted identifiers are never keywords.
func (t token) is(s string) bool {
	switch t.kind {
	case tokOp:
		return t.text == s
	case tokIdent:
		return strings.EqualFold(t.text, s)
	}
	return false
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string '" + t.text + "'"
	case tokQuotedIdent:
		return "identifier " + t.text
	}
	return "\"" + t.text + "\""
}

// lexer splits SQL text into tokens.
type lexer struct {
	input   string
	dialect Dialect
	pos     int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
}

func (l *lexer) init(input string, dialect Dialect) {
	l.input = input
	l.dialect = dialect
	l.pos = 0
	l.nextPos = 0
	l.char = 0
	l.advanceChar()
}

// advanceChar moves the lexer to the next rune. It returns false at the end
// of the input.
func (l *lexer) advanceChar() bool {
	l.pos = l.nextPos
	if l.pos >= len(l.input) {
		l.pos = len(l.input)
		l.char = 0
		return false
	}
	c, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.char = c
	l.nextPos = l.pos + size
	return true
}

// peekChar returns true if the current char equals the one passed as parameter.
func (l *lexer) peekChar(c rune) bool {
	return l.pos < len(l.input) && l.char == c
}

// peekNext returns the rune after the current one, or 0 at the end of input.
func (l *lexer) peekNext() rune {
	if l.nextPos >= len(l.input) {
		return 0
	}
	c, _ := utf8.DecodeRuneInString(l.input[l.nextPos:])
	return c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. We return true in that case, otherwise we return false.
func (l *lexer) skipChar(c rune) bool {
	if l.peekChar(c) {
		l.advanceChar()
		return true
	}
	return false
}

func (l *lexer) errorf(kind diag.Kind, start int, format string, args ...any) *diag.Error {
	return diag.Errorf(kind, diag.Span{Start: start, End: l.pos}, format, args...)
}

// skipComment jumps over a comment at the current position. Versioned
// comments of the form /*! ... */ are treated as ordinary comments.
func (l *lexer) skipComment() (bool, error) {
	start := l.pos
	switch {
	case l.char == '-' && l.peekNext() == '-':
		l.skipToLineEnd()
		return true, nil
	case l.char == '#' && l.dialect == MariaDB:
		l.skipToLineEnd()
		return true, nil
	case l.char == '/' && l.peekNext() == '*':
		l.advanceChar()
		l.advanceChar()
		for l.pos < len(l.input) {
			if l.skipChar('*') {
				if l.skipChar('/') {
					return true, nil
				}
				continue
			}
			l.advanceChar()
		}
		return false, l.errorf(diag.UnterminatedLiteral, start, "missing closing */ in comment")
	}
	return false, nil
}

func (l *lexer) skipToLineEnd() {
	for l.pos < len(l.input) && l.char != '\n' {
		l.advanceChar()
	}
}

// skipBlanks advances over whitespace and comments.
func (l *lexer) skipBlanks() error {
	for l.pos < len(l.input) {
		if unicode.IsSpace(l.char) {
			l.advanceChar()
			continue
		}
		ok, err := l.skipComment()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '$'
}

func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// operators is ordered so that longer operators are matched first.
var operators = []string{
	"<=>", "<<", ">>", "<=", ">=", "<>", "!=", "||", "&&", ":=", "::",
	"=", "<", ">", "+", "-", "*", "/", "%", "^", "&", "|", "~", "!",
	"(", ")", ",", ".", ";", ":", "@",
}

// next returns the next token of the input.
func (l *lexer) next() (token, error) {
	if err := l.skipBlanks(); err != nil {
		return token{}, err
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, span: diag.Span{Start: start, End: start}}, nil
	}
	tok := func(kind tokenKind, text string) (token, error) {
		return token{kind: kind, text: text, span: diag.Span{Start: start, End: l.pos}}, nil
	}

	c := l.char
	switch {
	case (c == 'x' || c == 'X') && l.peekNext() == '\'':
		l.advanceChar()
		s, err := l.lexQuoted('\'', false)
		if err != nil {
			return token{}, err
		}
		for _, h := range s {
			if !isHexDigit(h) {
				return token{}, l.errorf(diag.UnexpectedToken, start, "invalid hex literal")
			}
		}
		return tok(tokHex, s)
	case c == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X'):
		l.advanceChar()
		l.advanceChar()
		digits := l.pos
		for isHexDigit(l.char) {
			l.advanceChar()
		}
		if l.pos == digits {
			return token{}, l.errorf(diag.UnexpectedToken, start, "invalid hex literal")
		}
		return tok(tokHex, l.input[digits:l.pos])
	case isDigit(c) || (c == '.' && isDigit(l.peekNext())):
		return l.lexNumber(start)
	case isInitialNameChar(c):
		for isNameChar(l.char) {
			l.advanceChar()
		}
		return tok(tokIdent, l.input[start:l.pos])
	case c == '\'':
		s, err := l.lexQuoted('\'', l.dialect == MariaDB)
		if err != nil {
			return token{}, err
		}
		return tok(tokString, s)
	case c == '"':
		if l.dialect == PostgreSQL {
			s, err := l.lexQuoted('"', false)
			if err != nil {
				return token{}, err
			}
			return tok(tokQuotedIdent, s)
		}
		s, err := l.lexQuoted('"', true)
		if err != nil {
			return token{}, err
		}
		return tok(tokString, s)
	case c == '`' && l.dialect == MariaDB:
		s, err := l.lexQuoted('`', false)
		if err != nil {
			return token{}, err
		}
		return tok(tokQuotedIdent, s)
	case c == '?':
		l.advanceChar()
		return tok(tokPlaceholder, "?")
	case c == '$' && isDigit(l.peekNext()):
		l.advanceChar()
		digits := l.pos
		for isDigit(l.char) {
			l.advanceChar()
		}
		return tok(tokNumbered, l.input[digits:l.pos])
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.pos:], op) {
			for range op {
				l.advanceChar()
			}
			return tok(tokOp, op)
		}
	}
	l.advanceChar()
	return token{}, l.errorf(diag.UnexpectedToken, start, "unexpected character %q", c)
}

// lexQuoted reads a quoted string or identifier starting at the opening quote
// and returns its decoded contents. A doubled quote stands for a single one.
// Backslash escapes are decoded when backslash is set.
func (l *lexer) lexQuoted(quote rune, backslash bool) (string, error) {
	start := l.pos
	l.advanceChar()
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.char
		l.advanceChar()
		switch {
		case c == quote:
			if l.skipChar(quote) {
				b.WriteRune(quote)
				continue
			}
			return b.String(), nil
		case c == '\\' && backslash:
			if l.pos >= len(l.input) {
				break
			}
			b.WriteString(unescape(l.char))
			l.advanceChar()
		default:
			b.WriteRune(c)
		}
	}
	if quote == '\'' || (quote == '"' && backslash) {
		return "", l.errorf(diag.UnterminatedLiteral, start, "missing closing quote in string literal")
	}
	return "", l.errorf(diag.UnterminatedLiteral, start, "missing closing quote in identifier")
}

func unescape(c rune) string {
	switch c {
	case '0':
		return "\x00"
	case 'n':
		return "\n"
	case 'r':
		return "\r"
	case 't':
		return "\t"
	case 'b':
		return "\b"
	case 'Z':
		return "\x1a"
	case '%', '_':
		// Kept escaped so that LIKE patterns see them.
		return "\\" + string(c)
	}
	return string(c)
}

func (l *lexer) lexNumber(start int) (token, error) {
	kind := tokInt
	for isDigit(l.char) {
		l.advanceChar()
	}
	if l.peekChar('.') {
		kind = tokFloat
		l.advanceChar()
		for isDigit(l.char) {
			l.advanceChar()
		}
	}
	if l.char == 'e' || l.char == 'E' {
		next := l.peekNext()
		if isDigit(next) || next == '+' || next == '-' {
			kind = tokFloat
			l.advanceChar()
			if l.char == '+' || l.char == '-' {
				l.advanceChar()
			}
			if !isDigit(l.char) {
				return token{}, l.errorf(diag.UnexpectedToken, start, "invalid number")
			}
			for isDigit(l.char) {
				l.advanceChar()
			}
		}
	}
	if isInitialNameChar(l.char) {
		for isNameChar(l.char) {
			l.advanceChar()
		}
		return token{}, l.errorf(diag.UnexpectedToken, start, "invalid number %q", l.input[start:l.pos])
	}
	return token{kind: kind, text: l.input[start:l.pos], span: diag.Span{Start: start, End: l.pos}}, nil
}

// tokenize splits the whole input into tokens. The last token is always
// tokEOF.
func tokenize(input string, dialect Dialect) ([]token, error) {
	var l lexer
	l.init(input, dialect)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}
