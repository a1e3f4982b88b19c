// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strconv"
	"strings"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/types"
)

// listPlaceholder is the identifier that stands for a list of values inside
// IN (...).
const listPlaceholder = "_LIST_"

// parseExpr parses an expression with MariaDB operator precedence, from
// loosest to tightest binding:
//
//	OR, ||
//	XOR
//	AND, &&
//	NOT
//	comparisons, IS, LIKE, REGEXP, IN, BETWEEN
//	|
//	&
//	<< >>
//	+ -
//	* / DIV % MOD
//	^
//	unary - + ~ !
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) binary(op BinaryOperator, left, right Expr) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right, At: left.Span().Join(right.Span())}
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if !t.is("OR") && !(t.is("||") && p.dialect == MariaDB) {
			return left, nil
		}
		p.advance()
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = p.binary(OpOr, left, right)
	}
}

func (p *Parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("XOR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = p.binary(OpXor, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.skipKeyword("AND") || p.skipOp("&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = p.binary(OpAnd, left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	t := p.peek()
	if t.is("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: OpNot, Operand: operand, At: t.span.Join(operand.Span())}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]BinaryOperator{
	"=":   OpEq,
	"<=>": OpNullSafeEq,
	"<>":  OpNe,
	"!=":  OpNe,
	"<":   OpLt,
	"<=":  OpLe,
	">":   OpGt,
	">=":  OpGe,
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if op, ok := comparisonOps[t.text]; ok && t.kind == tokOp {
			p.advance()
			if p.peek().is("ANY") || p.peek().is("ALL") || p.peek().is("SOME") {
				return nil, p.unsupported(p.peek().span, "quantified comparison")
			}
			right, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}
			left = p.binary(op, left, right)
			continue
		}
		if t.is("IS") {
			left, err = p.parseIs(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		cp := p.save()
		not := p.skipKeyword("NOT")
		t = p.peek()
		switch {
		case t.is("LIKE"):
			p.advance()
			left, err = p.parseLike(left, not)
		case t.is("REGEXP"), t.is("RLIKE"):
			p.advance()
			var right Expr
			right, err = p.parseBitOr()
			if err == nil {
				b := p.binary(OpRegexp, left, right)
				b.Not = not
				left = b
			}
		case t.is("IN"):
			p.advance()
			left, err = p.parseIn(left, not)
		case t.is("BETWEEN"):
			p.advance()
			left, err = p.parseBetween(left, not)
		default:
			cp.restore()
			return left, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseIs(left Expr) (Expr, error) {
	p.advance()
	not := p.skipKeyword("NOT")
	var v IsValue
	switch t := p.peek(); {
	case t.is("NULL"):
		v = IsNull
	case t.is("TRUE"):
		v = IsTrue
	case t.is("FALSE"):
		v = IsFalse
	case t.is("UNKNOWN"):
		v = IsUnknown
	default:
		return nil, p.unexpected("NULL, TRUE, FALSE or UNKNOWN")
	}
	p.advance()
	return &Is{Expr: left, Value: v, Not: not, At: p.spanFrom(left.Span().Start)}, nil
}

func (p *Parser) parseLike(left Expr, not bool) (Expr, error) {
	right, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	b := p.binary(OpLike, left, right)
	b.Not = not
	if p.skipKeyword("ESCAPE") {
		b.Escape, err = p.parsePrimary()
		if err != nil {
			return nil, err
		}
		b.At = p.spanFrom(b.At.Start)
	}
	return b, nil
}

func (p *Parser) parseIn(left Expr, not bool) (Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	if p.peek().is("SELECT") {
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &InSubquery{Expr: left, Select: sel, Not: not, At: p.spanFrom(left.Span().Start)}, nil
	}
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.skipOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &InList{Expr: left, List: list, Not: not, At: p.spanFrom(left.Span().Start)}, nil
}

func (p *Parser) parseBetween(left Expr, not bool) (Expr, error) {
	low, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AND"); err != nil {
		return nil, err
	}
	high, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	return &Between{Expr: left, Low: low, High: high, Not: not, At: left.Span().Join(high.Span())}, nil
}

// parseLeftAssoc parses a left associative chain of operators from ops
// whose operands are parsed by next.
func (p *Parser) parseLeftAssoc(next func() (Expr, error), ops func(t token) (BinaryOperator, bool)) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops(p.peek())
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = p.binary(op, left, right)
	}
}

func (p *Parser) parseBitOr() (Expr, error) {
	return p.parseLeftAssoc(p.parseBitAnd, func(t token) (BinaryOperator, bool) {
		return OpBitOr, t.is("|")
	})
}

func (p *Parser) parseBitAnd() (Expr, error) {
	return p.parseLeftAssoc(p.parseShift, func(t token) (BinaryOperator, bool) {
		return OpBitAnd, t.is("&")
	})
}

func (p *Parser) parseShift() (Expr, error) {
	return p.parseLeftAssoc(p.parseAdditive, func(t token) (BinaryOperator, bool) {
		switch {
		case t.is("<<"):
			return OpShiftLeft, true
		case t.is(">>"):
			return OpShiftRight, true
		}
		return 0, false
	})
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseLeftAssoc(p.parseMultiplicative, func(t token) (BinaryOperator, bool) {
		switch {
		case t.is("+"):
			return OpAdd, true
		case t.is("-"):
			return OpSub, true
		case t.is("||") && p.dialect == PostgreSQL:
			return OpConcat, true
		}
		return 0, false
	})
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseLeftAssoc(p.parseBitXor, func(t token) (BinaryOperator, bool) {
		switch {
		case t.is("*"):
			return OpMul, true
		case t.is("/"):
			return OpDiv, true
		case t.is("DIV"):
			return OpIntDiv, true
		case t.is("%"), t.is("MOD"):
			return OpMod, true
		}
		return 0, false
	})
}

func (p *Parser) parseBitXor() (Expr, error) {
	return p.parseLeftAssoc(p.parseUnary, func(t token) (BinaryOperator, bool) {
		return OpBitXor, t.is("^")
	})
}

func (p *Parser) parseUnary() (Expr, error) {
	t := p.peek()
	var op UnaryOperator
	switch {
	case t.is("-"):
		op = OpNeg
	case t.is("+"):
		op = OpPlus
	case t.is("~"):
		op = OpBitNot
	case t.is("!"):
		op = OpNot
	case t.is("BINARY"):
		// BINARY only changes the collation of its operand.
		p.advance()
		return p.parseUnary()
	default:
		return p.parsePrimary()
	}
	p.advance()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	span := t.span.Join(operand.Span())
	// Fold the sign into numeric literals so that range checks see the
	// negative value.
	if lit, ok := operand.(*Literal); ok && op == OpNeg && (lit.Value.Kind == types.LitInt || lit.Value.Kind == types.LitFloat) {
		return &Literal{Value: lit.Value.Negate(), At: span}, nil
	}
	if lit, ok := operand.(*Literal); ok && op == OpPlus && (lit.Value.Kind == types.LitInt || lit.Value.Kind == types.LitFloat) {
		return &Literal{Value: lit.Value, At: span}, nil
	}
	return &UnaryOp{Op: op, Operand: operand, At: span}, nil
}

// niladic lists the functions that may be called without parentheses.
var niladic = map[string]bool{
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"CURRENT_TIME":      true,
	"LOCALTIME":         true,
	"LOCALTIMESTAMP":    true,
	"CURRENT_USER":      true,
	"UTC_TIMESTAMP":     true,
	"UTC_DATE":          true,
}

// callableKeywords are reserved words that are also function names.
var callableKeywords = map[string]bool{
	"VALUES":  true,
	"REPLACE": true,
	"LEFT":    true,
	"RIGHT":   true,
	"MOD":     true,
	"INSERT":  true,
}

func (p *Parser) parsePrimary() (Expr, error) {
	e, err := p.parsePrimaryNoCollate()
	if err != nil {
		return nil, err
	}
	// COLLATE only affects comparisons of text.
	if p.skipKeyword("COLLATE") {
		if _, err := p.parseAnyIdent("collation"); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (p *Parser) parsePrimaryNoCollate() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.advance()
		return intLiteral(t)
	case tokFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, diag.Errorf(diag.UnexpectedToken, t.span, "invalid number %q", t.text)
		}
		return &Literal{Value: types.Literal{Kind: types.LitFloat, Float: f}, At: t.span}, nil
	case tokString:
		p.advance()
		return &Literal{Value: types.Literal{Kind: types.LitString, Str: t.text}, At: t.span}, nil
	case tokHex:
		p.advance()
		return &Literal{Value: types.Literal{Kind: types.LitBytes, Str: t.text}, At: t.span}, nil
	case tokPlaceholder:
		return p.parsePlaceholder()
	case tokNumbered:
		return p.parsePlaceholder()
	case tokOp:
		if t.is("(") {
			return p.parseParenthesised()
		}
		return nil, p.unexpected("expression")
	case tokQuotedIdent:
		return p.parseColumnRef()
	case tokEOF:
		return nil, p.unexpected("expression")
	}

	upper := strings.ToUpper(t.text)
	switch upper {
	case "NULL":
		p.advance()
		return &Literal{Value: types.Literal{Kind: types.LitNull}, At: t.span}, nil
	case "TRUE", "FALSE":
		p.advance()
		return &Literal{Value: types.Literal{Kind: types.LitBool, Bool: upper == "TRUE"}, At: t.span}, nil
	case "CASE":
		return p.parseCase()
	case "CAST":
		return p.parseCast()
	case "CONVERT":
		if p.peekAt(1).is("(") {
			return p.parseConvert()
		}
	case "EXISTS":
		p.advance()
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &Exists{Select: sel, At: p.spanFrom(t.span.Start)}, nil
	case "INTERVAL":
		p.advance()
		e, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		unit, err := p.parseAnyIdent("interval unit")
		if err != nil {
			return nil, err
		}
		return &Interval{Expr: e, Unit: strings.ToUpper(unit.Name), At: p.spanFrom(t.span.Start)}, nil
	case "DEFAULT":
		if !p.peekAt(1).is("(") {
			p.advance()
			return &Default{At: t.span}, nil
		}
	case "DATE", "TIME", "TIMESTAMP":
		// Typed literals such as DATE '2020-01-01'.
		if next := p.peekAt(1); next.kind == tokString {
			p.advance()
			p.advance()
			return &Cast{
				Expr: &Literal{Value: types.Literal{Kind: types.LitString, Str: next.text}, At: next.span},
				Type: TypeName{Name: strings.ToLower(upper), At: t.span},
				At:   p.spanFrom(t.span.Start),
			}, nil
		}
	case listPlaceholder:
		return p.parsePlaceholder()
	}

	if p.peekAt(1).is("(") && (!isReserved(t) || callableKeywords[upper]) {
		return p.parseFunctionCall()
	}
	if niladic[upper] {
		p.advance()
		return &FunctionCall{Name: upper, At: t.span}, nil
	}
	if isReserved(t) {
		return nil, p.unexpected("expression")
	}
	return p.parseColumnRef()
}

func intLiteral(t token) (Expr, error) {
	mag, err := strconv.ParseUint(t.text, 10, 64)
	if err != nil {
		// Integers beyond 64 bits are treated as floating point.
		f, ferr := strconv.ParseFloat(t.text, 64)
		if ferr != nil {
			return nil, diag.Errorf(diag.UnexpectedToken, t.span, "invalid number %q", t.text)
		}
		return &Literal{Value: types.Literal{Kind: types.LitFloat, Float: f}, At: t.span}, nil
	}
	return &Literal{Value: types.Literal{Kind: types.LitInt, Mag: mag}, At: t.span}, nil
}

func (p *Parser) parsePlaceholder() (Expr, error) {
	t := p.advance()
	ph := &Placeholder{Index: p.placeholders, At: t.span}
	switch t.kind {
	case tokNumbered:
		if p.dialect != PostgreSQL {
			return nil, p.unsupported(t.span, "numbered placeholder $"+t.text)
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n == 0 {
			return nil, diag.Errorf(diag.UnexpectedToken, t.span, "invalid placeholder $%s", t.text)
		}
		ph.Number = n
		p.sawNumbered = true
	case tokPlaceholder:
		if p.dialect == PostgreSQL {
			return nil, p.unsupported(t.span, "placeholder ?")
		}
		p.sawQuestion = true
	default:
		ph.List = true
	}
	if p.sawNumbered && p.sawQuestion {
		return nil, diag.Errorf(diag.UnexpectedToken, t.span, "cannot mix ? and $n placeholders")
	}
	p.placeholders++
	return ph, nil
}

func (p *Parser) parseParenthesised() (Expr, error) {
	open := p.advance()
	if p.peek().is("SELECT") {
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &Subquery{Select: sel, At: p.spanFrom(open.span.Start)}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().is(",") {
		return nil, p.unsupported(p.spanFrom(open.span.Start), "row constructor")
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return e, nil
}

// parseColumnRef parses col, table.col or schema.table.col.
func (p *Parser) parseColumnRef() (Expr, error) {
	first, err := p.parseIdent("column name")
	if err != nil {
		return nil, err
	}
	parts := []Ident{first}
	for len(parts) < 3 && p.peek().is(".") {
		p.advance()
		if p.peek().is("*") {
			// t.* is only valid in a select list, which handles it itself.
			return nil, p.unexpected("column name")
		}
		id, err := p.parseAnyIdent("column name")
		if err != nil {
			return nil, err
		}
		parts = append(parts, id)
	}
	ref := &ColumnRef{Column: parts[len(parts)-1].Name, At: p.spanFrom(first.At.Start)}
	if len(parts) > 1 {
		ref.Table = parts[len(parts)-2].Name
	}
	return ref, nil
}

func (p *Parser) parseFunctionCall() (Expr, error) {
	name := p.advance()
	p.advance()
	call := &FunctionCall{Name: strings.ToUpper(name.text)}
	if p.skipOp("*") {
		call.Star = true
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		call.At = p.spanFrom(name.span.Start)
		return call, nil
	}
	call.Distinct = p.skipKeyword("DISTINCT")
	if !call.Distinct {
		p.skipKeyword("ALL")
	}
	if !p.peek().is(")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.skipOp(",") {
				break
			}
		}
	}
	if call.Name == "GROUP_CONCAT" {
		if p.skipKeywords("ORDER", "BY") {
			items, err := p.parseOrderItems()
			if err != nil {
				return nil, err
			}
			call.OrderBy = items
		}
		if p.skipKeyword("SEPARATOR") {
			sep, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			call.Separator = sep
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if p.peek().is("OVER") {
		return nil, p.unsupported(p.peek().span, "window function")
	}
	call.At = p.spanFrom(name.span.Start)
	return call, nil
}

func (p *Parser) parseCase() (Expr, error) {
	start := p.advance()
	c := &Case{}
	if !p.peek().is("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.skipKeyword("WHEN") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, When{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		return nil, p.unexpected("WHEN")
	}
	if p.skipKeyword("ELSE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = e
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	c.At = p.spanFrom(start.span.Start)
	return c, nil
}

func (p *Parser) parseCast() (Expr, error) {
	start := p.advance()
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	tn, err := p.parseCastType()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &Cast{Expr: e, Type: tn, At: p.spanFrom(start.span.Start)}, nil
}

func (p *Parser) parseConvert() (Expr, error) {
	start := p.advance()
	p.advance()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.skipKeyword("USING") {
		if _, err := p.parseAnyIdent("character set"); err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &Cast{Expr: e, Type: TypeName{Name: "char"}, At: p.spanFrom(start.span.Start)}, nil
	}
	if err := p.expectOp(","); err != nil {
		return nil, err
	}
	tn, err := p.parseCastType()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &Cast{Expr: e, Type: tn, At: p.spanFrom(start.span.Start)}, nil
}

// parseCastType parses the target of CAST, which also allows SIGNED and
// UNSIGNED [INTEGER].
func (p *Parser) parseCastType() (TypeName, error) {
	t := p.peek()
	switch {
	case t.is("SIGNED"), t.is("UNSIGNED"):
		p.advance()
		if !p.skipKeyword("INTEGER") {
			p.skipKeyword("INT")
		}
		return TypeName{Name: "bigint", Unsigned: t.is("UNSIGNED"), At: p.spanFrom(t.span.Start)}, nil
	}
	return p.parseTypeName()
}
