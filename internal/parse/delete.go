// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

func (p *Parser) parseDelete() (*Delete, error) {
	start := p.advance()
	del := &Delete{}
	for _, m := range []string{"LOW_PRIORITY", "QUICK", "IGNORE"} {
		p.skipKeyword(m)
	}
	if !p.skipKeyword("FROM") {
		return nil, p.unsupported(p.peek().span, "multi-table DELETE")
	}
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	del.Table = &TableName{Name: name.Name, Alias: alias, At: p.spanFrom(name.At.Start)}
	if p.peek().is(",") || p.peek().is("USING") || p.peek().is("JOIN") {
		return nil, p.unsupported(p.peek().span, "multi-table DELETE")
	}
	if p.skipKeyword("WHERE") {
		if del.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.skipKeywords("ORDER", "BY") {
		if del.OrderBy, err = p.parseOrderItems(); err != nil {
			return nil, err
		}
	}
	if p.skipKeyword("LIMIT") {
		if del.Limit, _, err = p.parseLimit(false); err != nil {
			return nil, err
		}
	}
	if p.skipKeyword("RETURNING") {
		if del.Returning, err = p.parseSelectItems(); err != nil {
			return nil, err
		}
	}
	del.At = p.spanFrom(start.span.Start)
	return del, nil
}
