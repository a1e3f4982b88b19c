// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import "github.com/canonical/sqltype/internal/diag"

// selectModifiers are MariaDB query hints that do not affect the result.
var selectModifiers = []string{
	"HIGH_PRIORITY", "STRAIGHT_JOIN", "SQL_SMALL_RESULT", "SQL_BIG_RESULT",
	"SQL_BUFFER_RESULT", "SQL_CACHE", "SQL_NO_CACHE", "SQL_CALC_FOUND_ROWS",
}

func (p *Parser) parseSelect() (*Select, error) {
	start := p.advance()
	sel := &Select{}
	for {
		switch {
		case p.skipKeyword("DISTINCT"), p.skipKeyword("DISTINCTROW"):
			sel.Distinct = true
			continue
		case p.skipKeyword("ALL"):
			continue
		}
		skipped := false
		for _, m := range selectModifiers {
			if p.skipKeyword(m) {
				skipped = true
			}
		}
		if !skipped {
			break
		}
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	sel.Items = items

	if p.skipKeyword("FROM") {
		sel.From, err = p.parseTableRefs()
		if err != nil {
			return nil, err
		}
	}
	if p.skipKeyword("WHERE") {
		if sel.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.skipKeywords("GROUP", "BY") {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if !p.skipKeyword("ASC") {
				p.skipKeyword("DESC")
			}
			if !p.skipOp(",") {
				break
			}
		}
		if p.peek().is("WITH") && p.peekAt(1).is("ROLLUP") {
			return nil, p.unsupported(p.peek().span, "WITH ROLLUP")
		}
	}
	if p.skipKeyword("HAVING") {
		if sel.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t.is("UNION") || t.is("INTERSECT") || t.is("EXCEPT") {
		return nil, p.unsupported(t.span, "compound SELECT")
	}
	if p.skipKeywords("ORDER", "BY") {
		if sel.OrderBy, err = p.parseOrderItems(); err != nil {
			return nil, err
		}
	}
	if p.skipKeyword("LIMIT") {
		if sel.Limit, sel.Offset, err = p.parseLimit(true); err != nil {
			return nil, err
		}
	} else if p.skipKeyword("OFFSET") {
		// PostgreSQL allows OFFSET without LIMIT.
		if sel.Offset, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	switch {
	case p.skipKeywords("FOR", "UPDATE"), p.skipKeywords("FOR", "SHARE"),
		p.skipKeywords("LOCK", "IN", "SHARE", "MODE"):
		if !p.skipKeyword("NOWAIT") {
			p.skipKeywords("SKIP", "LOCKED")
		}
	}
	sel.At = p.spanFrom(start.span.Start)
	return sel, nil
}

// parseLimit parses the LIMIT clause after the keyword. The MariaDB form
// LIMIT offset, count is accepted when allowOffset is set.
func (p *Parser) parseLimit(allowOffset bool) (limit, offset Expr, err error) {
	limit, err = p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if !allowOffset {
		return limit, nil, nil
	}
	if p.skipOp(",") {
		offset = limit
		if limit, err = p.parseExpr(); err != nil {
			return nil, nil, err
		}
	} else if p.skipKeyword("OFFSET") {
		if offset, err = p.parseExpr(); err != nil {
			return nil, nil, err
		}
	}
	return limit, offset, nil
}

func (p *Parser) parseSelectItems() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.skipOp(",") {
			return items, nil
		}
	}
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	t := p.peek()
	if t.is("*") {
		p.advance()
		return SelectItem{Star: true, At: t.span}, nil
	}
	if (t.kind == tokIdent || t.kind == tokQuotedIdent) && p.peekAt(1).is(".") && p.peekAt(2).is("*") {
		p.pos += 3
		return SelectItem{Star: true, Table: t.text, At: p.spanFrom(t.span.Start)}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	alias, err := p.parseAlias()
	if err != nil {
		return SelectItem{}, err
	}
	return SelectItem{Expr: e, Alias: alias, At: p.spanFrom(t.span.Start)}, nil
}

func (p *Parser) parseOrderItems() ([]OrderItem, error) {
	var items []OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: e}
		if p.skipKeyword("DESC") {
			item.Desc = true
		} else {
			p.skipKeyword("ASC")
		}
		if p.skipKeyword("NULLS") {
			if !p.skipKeyword("FIRST") {
				if err := p.expectKeyword("LAST"); err != nil {
					return nil, err
				}
			}
		}
		items = append(items, item)
		if !p.skipOp(",") {
			return items, nil
		}
	}
}

// parseTableRefs parses a comma separated FROM list.
func (p *Parser) parseTableRefs() ([]TableExpr, error) {
	var refs []TableExpr
	for {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
		if !p.skipOp(",") {
			return refs, nil
		}
	}
}

// parseTableRef parses a table factor followed by any number of joins.
func (p *Parser) parseTableRef() (TableExpr, error) {
	left, err := p.parseTableFactor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		kind, ok, err := p.parseJoinKind()
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseTableFactor()
		if err != nil {
			return nil, err
		}
		join := &Join{Kind: kind, Left: left, Right: right}
		switch {
		case p.skipKeyword("ON"):
			if join.On, err = p.parseExpr(); err != nil {
				return nil, err
			}
		case p.skipKeyword("USING"):
			if join.Using, err = p.parseIdentList(); err != nil {
				return nil, err
			}
		case kind == LeftJoin || kind == RightJoin || kind == FullJoin:
			return nil, p.unexpected("ON or USING")
		}
		join.At = p.spanFrom(left.Span().Start)
		if join.At.Start > t.span.Start {
			join.At.Start = t.span.Start
		}
		left = join
	}
}

// parseJoinKind consumes the keywords introducing a join, if any.
func (p *Parser) parseJoinKind() (JoinKind, bool, error) {
	t := p.peek()
	switch {
	case t.is("JOIN"), t.is("STRAIGHT_JOIN"):
		p.advance()
		return InnerJoin, true, nil
	case t.is("INNER"):
		p.advance()
		return InnerJoin, true, p.expectKeyword("JOIN")
	case t.is("CROSS"):
		p.advance()
		return CrossJoin, true, p.expectKeyword("JOIN")
	case t.is("LEFT"), t.is("RIGHT"), t.is("FULL"):
		p.advance()
		p.skipKeyword("OUTER")
		kind := LeftJoin
		if t.is("RIGHT") {
			kind = RightJoin
		} else if t.is("FULL") {
			kind = FullJoin
		}
		return kind, true, p.expectKeyword("JOIN")
	case t.is("NATURAL"):
		return 0, false, p.unsupported(t.span, "NATURAL JOIN")
	}
	return 0, false, nil
}

func (p *Parser) parseTableFactor() (TableExpr, error) {
	t := p.peek()
	if t.is("(") {
		p.advance()
		if p.peek().is("SELECT") {
			sel, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			alias, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			if alias == "" {
				return nil, diag.Errorf(diag.UnexpectedToken, p.spanFrom(t.span.Start), "every derived table must have an alias")
			}
			return &DerivedTable{Select: sel, Alias: alias, At: p.spanFrom(t.span.Start)}, nil
		}
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return ref, nil
	}
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	// Index hints do not affect typing.
	for p.peek().is("USE") || p.peek().is("FORCE") || p.peek().is("IGNORE") {
		if !(p.peekAt(1).is("INDEX") || p.peekAt(1).is("KEY")) {
			break
		}
		p.pos += 2
		p.skipBalancedGroup()
	}
	return &TableName{Name: name.Name, Alias: alias, At: p.spanFrom(t.span.Start)}, nil
}

// skipBalancedGroup skips a parenthesised group of tokens, if present.
func (p *Parser) skipBalancedGroup() {
	if !p.skipOp("(") {
		return
	}
	p.skipBalanced()
	for p.skipOp(",") {
		p.skipBalanced()
	}
	p.skipOp(")")
}
