// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strings"

	"github.com/canonical/sqltype/internal/diag"
)

// ignoredStatements start statements that may appear in a schema file but do
// not change table definitions.
var ignoredStatements = map[string]bool{
	"SET":       true,
	"LOCK":      true,
	"UNLOCK":    true,
	"USE":       true,
	"INSERT":    true,
	"REPLACE":   true,
	"UPDATE":    true,
	"DELETE":    true,
	"COMMIT":    true,
	"BEGIN":     true,
	"START":     true,
	"GRANT":     true,
	"COMMENT":   true,
	"DELIMITER": true,
}

// parseDDL parses one statement of a schema script.
func (p *Parser) parseDDL() (Statement, error) {
	t := p.peek()
	switch {
	case t.is("CREATE"):
		return p.parseCreate()
	case t.is("DROP"):
		return p.parseDrop()
	case t.is("ALTER"):
		return p.parseAlter()
	case t.kind == tokIdent && ignoredStatements[strings.ToUpper(t.text)]:
		return p.ignore(t)
	}
	return nil, diag.Errorf(diag.MalformedDDL, t.span, "unsupported schema statement starting with %s", t.describe())
}

func (p *Parser) ignore(start token) (Statement, error) {
	p.skipStatement()
	return &Ignored{Keyword: strings.ToUpper(start.text), At: p.spanFrom(start.span.Start)}, nil
}

func (p *Parser) parseCreate() (Statement, error) {
	start := p.advance()
	p.skipKeywords("OR", "REPLACE")
	p.skipKeyword("TEMPORARY")
	switch t := p.peek(); {
	case t.is("TABLE"):
		return p.parseCreateTable(start)
	case t.is("DATABASE"), t.is("SCHEMA"), t.is("INDEX"), t.is("UNIQUE"), t.is("FULLTEXT"),
		t.is("SPATIAL"), t.is("VIEW"), t.is("TRIGGER"), t.is("PROCEDURE"), t.is("FUNCTION"),
		t.is("SEQUENCE"), t.is("EXTENSION"), t.is("TYPE"), t.is("USER"), t.is("EVENT"):
		return p.ignore(start)
	}
	return nil, diag.Errorf(diag.MalformedDDL, p.peek().span, "expected TABLE after CREATE but found %s", p.peek().describe())
}

func (p *Parser) parseCreateTable(start token) (Statement, error) {
	p.advance()
	ct := &CreateTable{}
	ct.IfNotExists = p.skipKeywords("IF", "NOT", "EXISTS")
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	ct.Name = name

	if p.skipKeyword("LIKE") {
		like, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		ct.Like = &like
		ct.At = p.spanFrom(start.span.Start)
		return ct, nil
	}
	if p.peek().is("AS") || p.peek().is("SELECT") {
		return nil, p.unsupported(p.peek().span, "CREATE TABLE ... SELECT")
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	for {
		if err := p.parseTableElement(ct); err != nil {
			return nil, err
		}
		if !p.skipOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	// Table options and partitioning do not affect typing.
	p.skipStatement()
	ct.At = p.spanFrom(start.span.Start)
	return ct, nil
}

// parseTableElement parses a column definition or a table constraint inside
// CREATE TABLE.
func (p *Parser) parseTableElement(ct *CreateTable) error {
	t := p.peek()
	if t.is("CONSTRAINT") {
		p.advance()
		if !p.peek().is("PRIMARY") && !p.peek().is("UNIQUE") && !p.peek().is("FOREIGN") && !p.peek().is("CHECK") {
			if _, err := p.parseAnyIdent("constraint name"); err != nil {
				return err
			}
		}
		t = p.peek()
	}
	switch {
	case t.is("PRIMARY"):
		p.advance()
		if err := p.expectKeyword("KEY"); err != nil {
			return err
		}
		p.skipIndexType()
		cols, err := p.parseIdentList()
		if err != nil {
			return err
		}
		if len(ct.PrimaryKey) > 0 {
			return diag.Errorf(diag.MalformedDDL, p.spanFrom(t.span.Start), "multiple primary keys defined")
		}
		ct.PrimaryKey = cols
		p.skipBalanced()
		return nil
	case t.is("KEY"), t.is("INDEX"), t.is("UNIQUE"), t.is("FULLTEXT"), t.is("SPATIAL"),
		t.is("FOREIGN"), t.is("CHECK"), t.is("PERIOD"):
		p.skipBalanced()
		return nil
	}
	def, err := p.parseColumnDef()
	if err != nil {
		return err
	}
	ct.Columns = append(ct.Columns, def)
	return nil
}

func (p *Parser) skipIndexType() {
	if p.skipKeyword("USING") {
		p.advance()
	}
}

// parseColumnDef parses a column name, its type and its attributes.
func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.parseIdent("column name")
	if err != nil {
		return ColumnDef{}, diag.Errorf(diag.MalformedDDL, p.peek().span, "expected column definition but found %s", p.peek().describe())
	}
	def := ColumnDef{Name: name}
	if def.Type, err = p.parseTypeName(); err != nil {
		return ColumnDef{}, err
	}
	if err := p.parseColumnAttributes(&def); err != nil {
		return ColumnDef{}, err
	}
	if strings.HasSuffix(def.Type.Name, "serial") {
		def.AutoIncrement = true
		def.NotNull = true
	}
	def.At = p.spanFrom(name.At.Start)
	return def, nil
}

// parseTypeName parses a column type such as INT(11) UNSIGNED,
// VARCHAR(255), DOUBLE PRECISION or ENUM('a','b').
func (p *Parser) parseTypeName() (TypeName, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return TypeName{}, diag.Errorf(diag.MalformedDDL, t.span, "expected type name but found %s", t.describe())
	}
	p.advance()
	tn := TypeName{Name: strings.ToLower(t.text)}
	switch {
	case tn.Name == "double" && p.skipKeyword("PRECISION"):
	case tn.Name == "character" && p.skipKeyword("VARYING"):
		tn.Name = "varchar"
	case tn.Name == "long" && p.skipKeyword("VARCHAR"):
		tn.Name = "mediumtext"
	}
	if p.skipOp("(") {
		for {
			a := p.advance()
			switch a.kind {
			case tokInt, tokString, tokIdent, tokQuotedIdent:
				tn.Args = append(tn.Args, a.text)
			default:
				return TypeName{}, diag.Errorf(diag.MalformedDDL, a.span, "unexpected %s in type arguments", a.describe())
			}
			if !p.skipOp(",") {
				break
			}
		}
		if !p.skipOp(")") {
			return TypeName{}, diag.Errorf(diag.MalformedDDL, p.peek().span, "expected \")\" but found %s", p.peek().describe())
		}
	}
	if (tn.Name == "timestamp" || tn.Name == "time") && (p.peek().is("WITH") || p.peek().is("WITHOUT")) {
		with := p.advance().is("WITH")
		if !p.skipKeywords("TIME", "ZONE") {
			return TypeName{}, diag.Errorf(diag.MalformedDDL, p.peek().span, "expected TIME ZONE")
		}
		if with {
			tn.Name += "tz"
		}
	}
	for {
		switch {
		case p.skipKeyword("UNSIGNED"):
			tn.Unsigned = true
			continue
		case p.skipKeyword("SIGNED"), p.skipKeyword("ZEROFILL"):
			continue
		}
		break
	}
	tn.At = p.spanFrom(t.span.Start)
	return tn, nil
}

// parseColumnAttributes parses the attributes following a column type.
func (p *Parser) parseColumnAttributes(def *ColumnDef) error {
	for {
		t := p.peek()
		switch {
		case t.is("NOT"):
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return err
			}
			def.NotNull = true
		case t.is("NULL"):
			p.advance()
			def.NotNull = false
		case t.is("DEFAULT"):
			p.advance()
			e, err := p.parseDefault()
			if err != nil {
				return err
			}
			def.Default = e
		case t.is("AUTO_INCREMENT"), t.is("AUTOINCREMENT"):
			p.advance()
			def.AutoIncrement = true
		case t.is("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return err
			}
			def.PrimaryKey = true
		case t.is("KEY"):
			p.advance()
			def.PrimaryKey = true
		case t.is("UNIQUE"):
			p.advance()
			p.skipKeyword("KEY")
		case t.is("COMMENT"):
			p.advance()
			if p.advance().kind != tokString {
				return diag.Errorf(diag.MalformedDDL, p.spanFrom(t.span.Start), "expected string after COMMENT")
			}
		case t.is("COLLATE"), t.is("CHARSET"):
			p.advance()
			p.advance()
		case t.is("CHARACTER"):
			p.advance()
			if err := p.expectKeyword("SET"); err != nil {
				return err
			}
			p.advance()
		case t.is("ON"):
			p.advance()
			if err := p.expectKeyword("UPDATE"); err != nil {
				return err
			}
			if _, err := p.parseDefault(); err != nil {
				return err
			}
		case t.is("GENERATED"), t.is("AS"):
			if t.is("GENERATED") {
				p.advance()
				if !p.skipKeywords("ALWAYS", "AS") {
					if p.skipKeywords("BY", "DEFAULT", "AS", "IDENTITY") || p.skipKeywords("ALWAYS", "AS", "IDENTITY") {
						def.AutoIncrement = true
						p.skipBalancedGroup()
						continue
					}
					return diag.Errorf(diag.MalformedDDL, p.peek().span, "expected ALWAYS AS after GENERATED")
				}
			} else {
				p.advance()
			}
			if err := p.expectOp("("); err != nil {
				return err
			}
			if _, err := p.parseExpr(); err != nil {
				return err
			}
			if err := p.expectOp(")"); err != nil {
				return err
			}
			def.Generated = true
			for _, kw := range []string{"VIRTUAL", "STORED", "PERSISTENT"} {
				p.skipKeyword(kw)
			}
		case t.is("REFERENCES"):
			p.advance()
			if _, err := p.parseQualifiedName("table name"); err != nil {
				return err
			}
			p.skipBalancedGroup()
			for p.skipKeyword("ON") {
				p.advance()
				switch {
				case p.skipKeywords("SET", "NULL"), p.skipKeywords("SET", "DEFAULT"), p.skipKeywords("NO", "ACTION"):
				default:
					p.advance()
				}
			}
			p.skipKeywords("MATCH", "FULL")
		case t.is("CHECK"):
			p.advance()
			p.skipBalancedGroup()
		case t.is("CONSTRAINT"):
			p.advance()
			p.advance()
		case t.is("INVISIBLE"), t.is("VISIBLE"), t.is("STORAGE"), t.is("COLUMN_FORMAT"):
			p.advance()
			if t.is("STORAGE") || t.is("COLUMN_FORMAT") {
				p.advance()
			}
		default:
			return nil
		}
	}
}

// parseDefault parses a default value: a literal, a signed number, a
// niladic function, a function call or a parenthesised expression.
func (p *Parser) parseDefault() (Expr, error) {
	if p.peek().is("(") {
		return p.parsePrimary()
	}
	e, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// PostgreSQL casts such as 'x'::text.
	for p.skipOp("::") {
		if _, err := p.parseTypeName(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	start := p.advance()
	p.skipKeyword("TEMPORARY")
	if !p.peek().is("TABLE") && !p.peek().is("TABLES") {
		return p.ignore(start)
	}
	p.advance()
	dt := &DropTable{}
	dt.IfExists = p.skipKeywords("IF", "EXISTS")
	for {
		name, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		dt.Names = append(dt.Names, name)
		if !p.skipOp(",") {
			break
		}
	}
	if !p.skipKeyword("RESTRICT") {
		p.skipKeyword("CASCADE")
	}
	dt.At = p.spanFrom(start.span.Start)
	return dt, nil
}

func (p *Parser) parseAlter() (Statement, error) {
	start := p.advance()
	p.skipKeyword("ONLINE")
	p.skipKeyword("IGNORE")
	if !p.skipKeyword("TABLE") {
		return p.ignore(start)
	}
	p.skipKeywords("IF", "EXISTS")
	p.skipKeyword("ONLY")
	name, err := p.parseQualifiedName("table name")
	if err != nil {
		return nil, err
	}
	at := &AlterTable{Name: name}
	for {
		specs, err := p.parseAlterSpec()
		if err != nil {
			return nil, err
		}
		at.Specs = append(at.Specs, specs...)
		if !p.skipOp(",") {
			break
		}
	}
	if t := p.peek(); t.kind != tokEOF && !t.is(";") {
		return nil, diag.Errorf(diag.MalformedDDL, t.span, "unexpected %s in ALTER TABLE", t.describe())
	}
	at.At = p.spanFrom(start.span.Start)
	return at, nil
}

// parseAlterSpec parses one action of ALTER TABLE. ADD with a parenthesised
// list of columns yields one spec per column.
func (p *Parser) parseAlterSpec() ([]AlterSpec, error) {
	t := p.peek()
	spec := AlterSpec{}
	finish := func() ([]AlterSpec, error) {
		spec.At = p.spanFrom(t.span.Start)
		return []AlterSpec{spec}, nil
	}
	ignore := func() ([]AlterSpec, error) {
		p.skipBalanced()
		spec.Action = IgnoredAlter
		return finish()
	}

	switch {
	case t.is("ADD"):
		p.advance()
		if p.peek().is("CONSTRAINT") {
			p.advance()
			if !p.peek().is("PRIMARY") {
				p.advance()
			}
		}
		switch n := p.peek(); {
		case n.is("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			p.skipIndexType()
			cols, err := p.parseIdentList()
			if err != nil {
				return nil, err
			}
			spec.Action = AddPrimaryKey
			spec.Columns = cols
			p.skipBalanced()
			return finish()
		case n.is("KEY"), n.is("INDEX"), n.is("UNIQUE"), n.is("FULLTEXT"), n.is("SPATIAL"),
			n.is("FOREIGN"), n.is("CHECK"), n.is("PARTITION"):
			return ignore()
		}
		p.skipKeyword("COLUMN")
		spec.IfExists = p.skipKeywords("IF", "NOT", "EXISTS")
		if p.skipOp("(") {
			var specs []AlterSpec
			for {
				def, err := p.parseColumnDef()
				if err != nil {
					return nil, err
				}
				specs = append(specs, AlterSpec{Action: AddColumn, Column: def, IfExists: spec.IfExists, At: def.At})
				if !p.skipOp(",") {
					break
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return specs, nil
		}
		spec.Action = AddColumn
		return p.finishColumnSpec(&spec, finish)
	case t.is("MODIFY"):
		p.advance()
		p.skipKeyword("COLUMN")
		spec.Action = ModifyColumn
		spec.IfExists = p.skipKeywords("IF", "EXISTS")
		return p.finishColumnSpec(&spec, finish)
	case t.is("CHANGE"):
		p.advance()
		p.skipKeyword("COLUMN")
		spec.Action = ChangeColumn
		spec.IfExists = p.skipKeywords("IF", "EXISTS")
		target, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		spec.Target = target
		return p.finishColumnSpec(&spec, finish)
	case t.is("DROP"):
		p.advance()
		switch n := p.peek(); {
		case n.is("PRIMARY"):
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			spec.Action = DropPrimaryKey
			return finish()
		case n.is("INDEX"), n.is("KEY"), n.is("FOREIGN"), n.is("CONSTRAINT"), n.is("CHECK"), n.is("PARTITION"):
			return ignore()
		}
		p.skipKeyword("COLUMN")
		spec.Action = DropColumn
		spec.IfExists = p.skipKeywords("IF", "EXISTS")
		target, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		spec.Target = target
		if !p.skipKeyword("RESTRICT") {
			p.skipKeyword("CASCADE")
		}
		return finish()
	case t.is("RENAME"):
		p.advance()
		if p.skipKeyword("COLUMN") {
			target, err := p.parseIdent("column name")
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("TO"); err != nil {
				return nil, err
			}
			newName, err := p.parseIdent("column name")
			if err != nil {
				return nil, err
			}
			spec.Action = RenameColumn
			spec.Target = target
			spec.NewName = newName
			return finish()
		}
		if p.peek().is("INDEX") || p.peek().is("KEY") {
			return ignore()
		}
		if !p.skipKeyword("TO") {
			p.skipKeyword("AS")
		}
		newName, err := p.parseQualifiedName("table name")
		if err != nil {
			return nil, err
		}
		spec.Action = RenameTable
		spec.NewName = newName
		return finish()
	case t.is("ALTER"):
		p.advance()
		p.skipKeyword("COLUMN")
		target, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		spec.Target = target
		switch {
		case p.skipKeywords("SET", "DEFAULT"):
			if spec.Column.Default, err = p.parseDefault(); err != nil {
				return nil, err
			}
			spec.Action = SetColumnDefault
		case p.skipKeywords("DROP", "DEFAULT"):
			spec.Action = DropColumnDefault
		case p.skipKeywords("SET", "NOT", "NULL"), p.skipKeywords("DROP", "NOT", "NULL"):
			return nil, p.unsupported(p.spanFrom(t.span.Start), "ALTER COLUMN ... NOT NULL")
		default:
			return ignore()
		}
		return finish()
	}
	return ignore()
}

// finishColumnSpec parses the column definition and optional position of
// ADD, MODIFY and CHANGE.
func (p *Parser) finishColumnSpec(spec *AlterSpec, finish func() ([]AlterSpec, error)) ([]AlterSpec, error) {
	def, err := p.parseColumnDef()
	if err != nil {
		return nil, err
	}
	spec.Column = def
	if p.skipKeyword("FIRST") {
		spec.First = true
	} else if p.skipKeyword("AFTER") {
		after, err := p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
		spec.After = &after
	}
	return finish()
}
