// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

// parseInsert parses INSERT and REPLACE statements in their VALUES, SET and
// SELECT forms.
func (p *Parser) parseInsert() (*Insert, error) {
	start := p.advance()
	ins := &Insert{Replace: start.is("REPLACE")}
	for _, m := range []string{"LOW_PRIORITY", "DELAYED", "HIGH_PRIORITY"} {
		p.skipKeyword(m)
	}
	ins.Ignore = p.skipKeyword("IGNORE")
	p.skipKeyword("INTO")

	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	ins.Table = &TableName{Name: name.Name, At: name.At}
	if p.skipKeyword("AS") {
		alias, err := p.parseIdent("alias")
		if err != nil {
			return nil, err
		}
		ins.Table.Alias = alias.Name
		ins.Table.At = p.spanFrom(name.At.Start)
	}

	if p.peek().is("(") && !p.peekAt(1).is("SELECT") {
		if ins.Columns, err = p.parseIdentList(); err != nil {
			return nil, err
		}
	}

	t := p.peek()
	switch {
	case t.is("VALUES"), t.is("VALUE"):
		p.advance()
		if ins.Rows, err = p.parseValueRows(); err != nil {
			return nil, err
		}
	case t.is("SET"):
		if len(ins.Columns) > 0 {
			return nil, p.unexpected("VALUES or SELECT")
		}
		p.advance()
		if ins.Set, err = p.parseAssignments(); err != nil {
			return nil, err
		}
	case t.is("SELECT"):
		if ins.Query, err = p.parseSelect(); err != nil {
			return nil, err
		}
	case t.is("("):
		p.advance()
		if ins.Query, err = p.parseSelect(); err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	default:
		return nil, p.unexpected("VALUES, SET or SELECT")
	}

	if !ins.Replace && p.skipKeywords("ON", "DUPLICATE", "KEY", "UPDATE") {
		if ins.OnDuplicate, err = p.parseAssignments(); err != nil {
			return nil, err
		}
	}
	if p.peek().is("ON") && p.peekAt(1).is("CONFLICT") {
		return nil, p.unsupported(p.peek().span, "ON CONFLICT")
	}
	if p.skipKeyword("RETURNING") {
		if ins.Returning, err = p.parseSelectItems(); err != nil {
			return nil, err
		}
	}
	ins.At = p.spanFrom(start.span.Start)
	return ins, nil
}

func (p *Parser) parseValueRows() ([][]Expr, error) {
	var rows [][]Expr
	for {
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		var row []Expr
		if !p.peek().is(")") {
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				row = append(row, e)
				if !p.skipOp(",") {
					break
				}
			}
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if !p.skipOp(",") {
			return rows, nil
		}
	}
}

// parseAssignments parses a comma separated list of col = value.
func (p *Parser) parseAssignments() ([]Assignment, error) {
	var as []Assignment
	for {
		e, err := p.parseColumnRef()
		if err != nil {
			return nil, err
		}
		col := e.(*ColumnRef)
		if !p.skipOp("=") && !p.skipOp(":=") {
			return nil, p.unexpected("\"=\"")
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		as = append(as, Assignment{Column: col, Value: v})
		if !p.skipOp(",") {
			return as, nil
		}
	}
}
