// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strings"

	"github.com/canonical/sqltype/internal/diag"
)

// Parser turns SQL text into syntax trees. A Parser may be reused but is not
// safe for concurrent use.
type Parser struct {
	dialect Dialect
	input   string
	toks    []token
	pos     int
	// placeholders counts the placeholders parsed so far in the current
	// statement.
	placeholders int
	// sawQuestion and sawNumbered record the placeholder styles seen in the
	// current statement, which may not be mixed.
	sawQuestion bool
	sawNumbered bool
}

// NewParser returns a reference to a new parser for the given dialect.
func NewParser(dialect Dialect) *Parser {
	return &Parser{dialect: dialect}
}

// Dialect returns the dialect the parser was created with.
func (p *Parser) Dialect() Dialect {
	return p.dialect
}

// init resets the state of the parser and tokenizes the input.
func (p *Parser) init(input string) error {
	p.input = input
	p.pos = 0
	p.resetStatement()
	toks, err := tokenize(input, p.dialect)
	if err != nil {
		return err
	}
	p.toks = toks
	return nil
}

func (p *Parser) resetStatement() {
	p.placeholders = 0
	p.sawQuestion = false
	p.sawNumbered = false
}

// Parse parses a single DML statement: SELECT, INSERT, REPLACE, UPDATE or
// DELETE. A trailing semicolon is allowed. Errors are *diag.Error values
// located in input.
func (p *Parser) Parse(input string) (stmt Statement, err error) {
	defer func() {
		if e, ok := err.(*diag.Error); ok {
			err = e.Locate(input)
		}
	}()
	if err := p.init(input); err != nil {
		return nil, err
	}
	if p.peek().kind == tokEOF {
		return nil, p.unexpected("a statement")
	}
	stmt, err = p.parseDML()
	if err != nil {
		return nil, err
	}
	p.skipOp(";")
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

// ParseScript parses a sequence of semicolon separated DDL statements, as
// found in a schema file. Statements that do not affect table definitions
// are returned as *Ignored.
func (p *Parser) ParseScript(input string) (stmts []Statement, err error) {
	defer func() {
		if e, ok := err.(*diag.Error); ok {
			// Syntax errors in a schema are reported as malformed DDL.
			if e.Kind == diag.UnexpectedToken {
				e.Kind = diag.MalformedDDL
			}
			err = e.Locate(input)
		}
	}()
	if err := p.init(input); err != nil {
		return nil, err
	}
	for {
		for p.skipOp(";") {
		}
		if p.peek().kind == tokEOF {
			return stmts, nil
		}
		p.resetStatement()
		stmt, err := p.parseDDL()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if !p.skipOp(";") && p.peek().kind != tokEOF {
			return nil, p.unexpected("; between statements")
		}
	}
}

// ParseExpr parses a standalone expression.
func (p *Parser) ParseExpr(input string) (expr Expr, err error) {
	defer func() {
		if e, ok := err.(*diag.Error); ok {
			err = e.Locate(input)
		}
	}()
	if err := p.init(input); err != nil {
		return nil, err
	}
	expr, err = p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.unexpected("end of expression")
	}
	return expr, nil
}

func (p *Parser) parseDML() (Statement, error) {
	t := p.peek()
	switch {
	case t.is("SELECT"):
		return p.parseSelect()
	case t.is("INSERT"), t.is("REPLACE"):
		return p.parseInsert()
	case t.is("UPDATE"):
		return p.parseUpdate()
	case t.is("DELETE"):
		return p.parseDelete()
	case t.is("("):
		return nil, p.unsupported(t.span, "parenthesised statement")
	case t.is("WITH"):
		return nil, p.unsupported(t.span, "WITH")
	}
	return nil, p.unexpected("SELECT, INSERT, REPLACE, UPDATE or DELETE")
}

// peek returns the current token without consuming it.
func (p *Parser) peek() token {
	return p.toks[p.pos]
}

// peekAt returns the token n positions ahead of the current one.
func (p *Parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

// advance consumes and returns the current token. The final EOF token is
// never consumed.
func (p *Parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// prevEnd returns the end offset of the last consumed token.
func (p *Parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].span.End
}

// spanFrom returns the span from start to the end of the last consumed token.
func (p *Parser) spanFrom(start int) diag.Span {
	return diag.Span{Start: start, End: p.prevEnd()}
}

// checkpoint stores the token position so that the parser can backtrack.
type checkpoint struct {
	parser *Parser
	pos    int
}

func (p *Parser) save() *checkpoint {
	return &checkpoint{parser: p, pos: p.pos}
}

func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
}

// skipOp consumes the current token if it is the given operator.
func (p *Parser) skipOp(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

// skipKeyword consumes the current token if it is the given keyword.
func (p *Parser) skipKeyword(kw string) bool {
	if t := p.peek(); t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

// skipKeywords consumes the given sequence of keywords, or nothing if they
// do not all match.
func (p *Parser) skipKeywords(kws ...string) bool {
	cp := p.save()
	for _, kw := range kws {
		if !p.skipKeyword(kw) {
			cp.restore()
			return false
		}
	}
	return true
}

func (p *Parser) expectOp(op string) error {
	if !p.skipOp(op) {
		return p.unexpected("\"" + op + "\"")
	}
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.skipKeyword(kw) {
		return p.unexpected(kw)
	}
	return nil
}

func (p *Parser) unexpected(expected string) *diag.Error {
	t := p.peek()
	return diag.Errorf(diag.UnexpectedToken, t.span, "expected %s but found %s", expected, t.describe())
}

func (p *Parser) unsupported(span diag.Span, what string) *diag.Error {
	return diag.Errorf(diag.UnsupportedConstruct, span, "%s is not supported", what)
}

// reserved lists the keywords that cannot be used as unquoted identifiers
// or aliases.
var reserved = map[string]bool{
	"ALL": true, "ALTER": true, "AND": true, "AS": true, "ASC": true,
	"BETWEEN": true, "BY": true, "CASE": true, "CREATE": true, "CROSS": true,
	"DEFAULT": true, "DELETE": true, "DESC": true, "DISTINCT": true, "DIV": true,
	"DROP": true, "DUPLICATE": true, "ELSE": true, "END": true, "EXCEPT": true,
	"EXISTS": true, "FALSE": true, "FETCH": true, "FOR": true, "FROM": true,
	"FORCE": true, "FULL": true, "GROUP": true, "HAVING": true, "IN": true, "INNER": true,
	"IGNORE": true, "INSERT": true, "INTERSECT": true, "INTERVAL": true, "INTO": true, "IS": true,
	"JOIN": true, "LEFT": true, "LIKE": true, "LIMIT": true, "LOCK": true,
	"MOD": true, "NATURAL": true, "NOT": true, "NULL": true, "OFFSET": true,
	"ON": true, "OR": true, "ORDER": true, "OUTER": true, "REGEXP": true,
	"REPLACE": true, "RETURNING": true, "RIGHT": true, "RLIKE": true,
	"SELECT": true, "SET": true, "STRAIGHT_JOIN": true, "THEN": true,
	"TRUE": true, "UNION": true, "UPDATE": true, "USE": true, "USING": true, "VALUES": true,
	"WHEN": true, "WHERE": true, "WINDOW": true, "WITH": true, "XOR": true,
}

func isReserved(t token) bool {
	return t.kind == tokIdent && reserved[strings.ToUpper(t.text)]
}

// parseIdent parses an identifier, either bare and not reserved, or quoted.
func (p *Parser) parseIdent(what string) (Ident, error) {
	t := p.peek()
	if t.kind == tokQuotedIdent || (t.kind == tokIdent && !isReserved(t)) {
		p.advance()
		return Ident{Name: t.text, At: t.span}, nil
	}
	return Ident{}, p.unexpected(what)
}

// parseAnyIdent parses an identifier where reserved words are allowed, such
// as after a dot.
func (p *Parser) parseAnyIdent(what string) (Ident, error) {
	t := p.peek()
	if t.kind == tokQuotedIdent || t.kind == tokIdent {
		p.advance()
		return Ident{Name: t.text, At: t.span}, nil
	}
	return Ident{}, p.unexpected(what)
}

// parseQualifiedName parses name or schema.name and returns the last part.
func (p *Parser) parseQualifiedName(what string) (Ident, error) {
	id, err := p.parseIdent(what)
	if err != nil {
		return Ident{}, err
	}
	if p.peek().is(".") {
		p.advance()
		last, err := p.parseAnyIdent(what)
		if err != nil {
			return Ident{}, err
		}
		last.At = id.At.Join(last.At)
		return last, nil
	}
	return id, nil
}

// parseIdentList parses a parenthesised, comma separated list of column
// names. Index prefix lengths and sort directions are skipped.
func (p *Parser) parseIdentList() ([]Ident, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var ids []Ident
	for {
		id, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if p.peek().is("(") && p.peekAt(1).kind == tokInt && p.peekAt(2).is(")") {
			p.pos += 3
		}
		if !p.skipKeyword("ASC") {
			p.skipKeyword("DESC")
		}
		if !p.skipOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return ids, nil
}

// parseAlias parses an optional [AS] alias. String literals are accepted as
// aliases.
func (p *Parser) parseAlias() (string, error) {
	explicit := p.skipKeyword("AS")
	t := p.peek()
	switch {
	case t.kind == tokQuotedIdent, t.kind == tokString, t.kind == tokIdent && !isReserved(t):
		p.advance()
		return t.text, nil
	case explicit:
		return "", p.unexpected("alias")
	}
	return "", nil
}

// skipBalanced consumes tokens up to the next comma or closing parenthesis
// at the current nesting depth, or the end of the statement.
func (p *Parser) skipBalanced() {
	depth := 0
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return
		case t.is(";") && depth == 0:
			return
		case t.is("("):
			depth++
		case t.is(")"):
			if depth == 0 {
				return
			}
			depth--
		case t.is(",") && depth == 0:
			return
		}
		p.advance()
	}
}

// skipStatement consumes tokens up to the end of the current statement.
func (p *Parser) skipStatement() {
	for {
		t := p.peek()
		if t.kind == tokEOF || t.is(";") {
			return
		}
		p.advance()
	}
}
