// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

func (p *Parser) parseUpdate() (*Update, error) {
	start := p.advance()
	upd := &Update{}
	p.skipKeyword("LOW_PRIORITY")
	p.skipKeyword("IGNORE")

	var err error
	if upd.Tables, err = p.parseTableRefs(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	if upd.Set, err = p.parseAssignments(); err != nil {
		return nil, err
	}
	if p.peek().is("FROM") {
		return nil, p.unsupported(p.peek().span, "UPDATE ... FROM")
	}
	if p.skipKeyword("WHERE") {
		if upd.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.skipKeywords("ORDER", "BY") {
		if upd.OrderBy, err = p.parseOrderItems(); err != nil {
			return nil, err
		}
	}
	if p.skipKeyword("LIMIT") {
		if upd.Limit, _, err = p.parseLimit(false); err != nil {
			return nil, err
		}
	}
	if p.peek().is("RETURNING") {
		return nil, p.unsupported(p.peek().span, "UPDATE ... RETURNING")
	}
	upd.At = p.spanFrom(start.span.Start)
	return upd, nil
}
