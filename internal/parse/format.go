// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"fmt"
	"strings"
)

// Format returns a canonical SQL rendering of a node. Every binary
// operation is parenthesised so that the structure of the tree is visible.
func Format(n Node) string {
	var f formatter
	f.node(n)
	return f.String()
}

type formatter struct {
	strings.Builder
}

func (f *formatter) printf(format string, args ...any) {
	fmt.Fprintf(f, format, args...)
}

func (f *formatter) node(n Node) {
	switch n := n.(type) {
	case Expr:
		f.expr(n)
	case Statement:
		f.stmt(n)
	case TableExpr:
		f.table(n)
	default:
		f.printf("%v", n)
	}
}

func (f *formatter) exprs(es []Expr) {
	for i, e := range es {
		if i > 0 {
			f.WriteString(", ")
		}
		f.expr(e)
	}
}

var unaryOperatorNames = []string{
	OpNot:    "NOT ",
	OpNeg:    "-",
	OpPlus:   "+",
	OpBitNot: "~",
}

var isValueNames = []string{
	IsNull:    "NULL",
	IsTrue:    "TRUE",
	IsFalse:   "FALSE",
	IsUnknown: "UNKNOWN",
}

func (f *formatter) expr(e Expr) {
	switch e := e.(type) {
	case *ColumnRef:
		f.WriteString(e.String())
	case *Literal:
		f.WriteString(e.Value.String())
	case *Placeholder:
		switch {
		case e.List:
			f.WriteString(listPlaceholder)
		case e.Number > 0:
			f.printf("$%d", e.Number)
		default:
			f.WriteString("?")
		}
	case *BinaryOp:
		f.WriteString("(")
		f.expr(e.Left)
		f.WriteString(" ")
		if e.Not {
			f.WriteString("NOT ")
		}
		f.WriteString(e.Op.String())
		f.WriteString(" ")
		f.expr(e.Right)
		if e.Escape != nil {
			f.WriteString(" ESCAPE ")
			f.expr(e.Escape)
		}
		f.WriteString(")")
	case *UnaryOp:
		f.WriteString("(")
		f.WriteString(unaryOperatorNames[e.Op])
		f.expr(e.Operand)
		f.WriteString(")")
	case *FunctionCall:
		f.WriteString(e.Name)
		f.WriteString("(")
		if e.Star {
			f.WriteString("*")
		}
		if e.Distinct {
			f.WriteString("DISTINCT ")
		}
		f.exprs(e.Args)
		if len(e.OrderBy) > 0 {
			f.WriteString(" ORDER BY ")
			f.orderBy(e.OrderBy)
		}
		if e.Separator != nil {
			f.WriteString(" SEPARATOR ")
			f.expr(e.Separator)
		}
		f.WriteString(")")
	case *Subquery:
		f.WriteString("(")
		f.stmt(e.Select)
		f.WriteString(")")
	case *Exists:
		f.WriteString("EXISTS (")
		f.stmt(e.Select)
		f.WriteString(")")
	case *InList:
		f.WriteString("(")
		f.expr(e.Expr)
		f.not(e.Not)
		f.WriteString(" IN (")
		f.exprs(e.List)
		f.WriteString("))")
	case *InSubquery:
		f.WriteString("(")
		f.expr(e.Expr)
		f.not(e.Not)
		f.WriteString(" IN (")
		f.stmt(e.Select)
		f.WriteString("))")
	case *Between:
		f.WriteString("(")
		f.expr(e.Expr)
		f.not(e.Not)
		f.WriteString(" BETWEEN ")
		f.expr(e.Low)
		f.WriteString(" AND ")
		f.expr(e.High)
		f.WriteString(")")
	case *Is:
		f.WriteString("(")
		f.expr(e.Expr)
		f.WriteString(" IS ")
		if e.Not {
			f.WriteString("NOT ")
		}
		f.WriteString(isValueNames[e.Value])
		f.WriteString(")")
	case *Case:
		f.WriteString("CASE ")
		if e.Operand != nil {
			f.expr(e.Operand)
			f.WriteString(" ")
		}
		for _, w := range e.Whens {
			f.WriteString("WHEN ")
			f.expr(w.Cond)
			f.WriteString(" THEN ")
			f.expr(w.Result)
			f.WriteString(" ")
		}
		if e.Else != nil {
			f.WriteString("ELSE ")
			f.expr(e.Else)
			f.WriteString(" ")
		}
		f.WriteString("END")
	case *Cast:
		f.WriteString("CAST(")
		f.expr(e.Expr)
		f.WriteString(" AS ")
		f.WriteString(e.Type.String())
		f.WriteString(")")
	case *Interval:
		f.WriteString("INTERVAL ")
		f.expr(e.Expr)
		f.WriteString(" ")
		f.WriteString(e.Unit)
	case *Default:
		f.WriteString("DEFAULT")
	default:
		f.printf("%T", e)
	}
}

func (f *formatter) not(not bool) {
	if not {
		f.WriteString(" NOT")
	}
}

// String returns the type as it would be written in DDL.
func (t TypeName) String() string {
	s := t.Name
	if len(t.Args) > 0 {
		s += "(" + strings.Join(t.Args, ",") + ")"
	}
	if t.Unsigned {
		s += " unsigned"
	}
	return s
}

func (f *formatter) items(items []SelectItem) {
	for i, item := range items {
		if i > 0 {
			f.WriteString(", ")
		}
		switch {
		case item.Star && item.Table != "":
			f.WriteString(item.Table + ".*")
		case item.Star:
			f.WriteString("*")
		default:
			f.expr(item.Expr)
			if item.Alias != "" {
				f.WriteString(" AS " + item.Alias)
			}
		}
	}
}

func (f *formatter) orderBy(items []OrderItem) {
	for i, item := range items {
		if i > 0 {
			f.WriteString(", ")
		}
		f.expr(item.Expr)
		if item.Desc {
			f.WriteString(" DESC")
		}
	}
}

func (f *formatter) table(t TableExpr) {
	switch t := t.(type) {
	case *TableName:
		f.WriteString(t.Name)
		if t.Alias != "" {
			f.WriteString(" AS " + t.Alias)
		}
	case *Join:
		f.WriteString("(")
		f.table(t.Left)
		f.WriteString(" " + t.Kind.String() + " ")
		f.table(t.Right)
		if t.On != nil {
			f.WriteString(" ON ")
			f.expr(t.On)
		}
		if len(t.Using) > 0 {
			f.WriteString(" USING (")
			f.idents(t.Using)
			f.WriteString(")")
		}
		f.WriteString(")")
	case *DerivedTable:
		f.WriteString("(")
		f.stmt(t.Select)
		f.WriteString(") AS " + t.Alias)
	}
}

func (f *formatter) tables(ts []TableExpr) {
	for i, t := range ts {
		if i > 0 {
			f.WriteString(", ")
		}
		f.table(t)
	}
}

func (f *formatter) idents(ids []Ident) {
	for i, id := range ids {
		if i > 0 {
			f.WriteString(", ")
		}
		f.WriteString(id.Name)
	}
}

func (f *formatter) assignments(as []Assignment) {
	for i, a := range as {
		if i > 0 {
			f.WriteString(", ")
		}
		f.WriteString(a.Column.String() + " = ")
		f.expr(a.Value)
	}
}

func (f *formatter) whereOrderLimit(where Expr, orderBy []OrderItem, limit, offset Expr) {
	if where != nil {
		f.WriteString(" WHERE ")
		f.expr(where)
	}
	if len(orderBy) > 0 {
		f.WriteString(" ORDER BY ")
		f.orderBy(orderBy)
	}
	if limit != nil {
		f.WriteString(" LIMIT ")
		f.expr(limit)
	}
	if offset != nil {
		f.WriteString(" OFFSET ")
		f.expr(offset)
	}
}

func (f *formatter) stmt(s Statement) {
	switch s := s.(type) {
	case *Select:
		f.WriteString("SELECT ")
		if s.Distinct {
			f.WriteString("DISTINCT ")
		}
		f.items(s.Items)
		if len(s.From) > 0 {
			f.WriteString(" FROM ")
			f.tables(s.From)
		}
		if s.Where != nil {
			f.WriteString(" WHERE ")
			f.expr(s.Where)
		}
		if len(s.GroupBy) > 0 {
			f.WriteString(" GROUP BY ")
			f.exprs(s.GroupBy)
		}
		if s.Having != nil {
			f.WriteString(" HAVING ")
			f.expr(s.Having)
		}
		f.whereOrderLimit(nil, s.OrderBy, s.Limit, s.Offset)
	case *Insert:
		if s.Replace {
			f.WriteString("REPLACE ")
		} else {
			f.WriteString("INSERT ")
		}
		if s.Ignore {
			f.WriteString("IGNORE ")
		}
		f.WriteString("INTO ")
		f.table(s.Table)
		if len(s.Columns) > 0 {
			f.WriteString(" (")
			f.idents(s.Columns)
			f.WriteString(")")
		}
		switch {
		case s.Query != nil:
			f.WriteString(" ")
			f.stmt(s.Query)
		case len(s.Set) > 0:
			f.WriteString(" SET ")
			f.assignments(s.Set)
		default:
			f.WriteString(" VALUES ")
			for i, row := range s.Rows {
				if i > 0 {
					f.WriteString(", ")
				}
				f.WriteString("(")
				f.exprs(row)
				f.WriteString(")")
			}
		}
		if len(s.OnDuplicate) > 0 {
			f.WriteString(" ON DUPLICATE KEY UPDATE ")
			f.assignments(s.OnDuplicate)
		}
		if len(s.Returning) > 0 {
			f.WriteString(" RETURNING ")
			f.items(s.Returning)
		}
	case *Update:
		f.WriteString("UPDATE ")
		f.tables(s.Tables)
		f.WriteString(" SET ")
		f.assignments(s.Set)
		f.whereOrderLimit(s.Where, s.OrderBy, s.Limit, nil)
	case *Delete:
		f.WriteString("DELETE FROM ")
		f.table(s.Table)
		f.whereOrderLimit(s.Where, s.OrderBy, s.Limit, nil)
		if len(s.Returning) > 0 {
			f.WriteString(" RETURNING ")
			f.items(s.Returning)
		}
	case *CreateTable:
		f.WriteString("CREATE TABLE " + s.Name.Name)
		if s.Like != nil {
			f.WriteString(" LIKE " + s.Like.Name)
			return
		}
		f.WriteString(" (")
		for i := range s.Columns {
			if i > 0 {
				f.WriteString(", ")
			}
			f.columnDef(&s.Columns[i])
		}
		if len(s.PrimaryKey) > 0 {
			f.WriteString(", PRIMARY KEY (")
			f.idents(s.PrimaryKey)
			f.WriteString(")")
		}
		f.WriteString(")")
	case *DropTable:
		f.WriteString("DROP TABLE ")
		if s.IfExists {
			f.WriteString("IF EXISTS ")
		}
		f.idents(s.Names)
	case *AlterTable:
		f.WriteString("ALTER TABLE " + s.Name.Name + " ")
		for i := range s.Specs {
			if i > 0 {
				f.WriteString(", ")
			}
			f.alterSpec(&s.Specs[i])
		}
	case *Ignored:
		f.WriteString("<ignored " + s.Keyword + ">")
	}
}

func (f *formatter) columnDef(d *ColumnDef) {
	f.WriteString(d.Name.Name + " " + d.Type.String())
	if d.NotNull {
		f.WriteString(" NOT NULL")
	}
	if d.AutoIncrement {
		f.WriteString(" AUTO_INCREMENT")
	}
	if d.PrimaryKey {
		f.WriteString(" PRIMARY KEY")
	}
	if d.Default != nil {
		f.WriteString(" DEFAULT ")
		f.expr(d.Default)
	}
	if d.Generated {
		f.WriteString(" GENERATED")
	}
}

func (f *formatter) alterSpec(s *AlterSpec) {
	position := func() {
		if s.First {
			f.WriteString(" FIRST")
		} else if s.After != nil {
			f.WriteString(" AFTER " + s.After.Name)
		}
	}
	switch s.Action {
	case AddColumn:
		f.WriteString("ADD COLUMN ")
		f.columnDef(&s.Column)
		position()
	case ModifyColumn:
		f.WriteString("MODIFY COLUMN ")
		f.columnDef(&s.Column)
		position()
	case ChangeColumn:
		f.WriteString("CHANGE COLUMN " + s.Target.Name + " ")
		f.columnDef(&s.Column)
		position()
	case DropColumn:
		f.WriteString("DROP COLUMN " + s.Target.Name)
	case RenameColumn:
		f.WriteString("RENAME COLUMN " + s.Target.Name + " TO " + s.NewName.Name)
	case SetColumnDefault:
		f.WriteString("ALTER COLUMN " + s.Target.Name + " SET DEFAULT ")
		f.expr(s.Column.Default)
	case DropColumnDefault:
		f.WriteString("ALTER COLUMN " + s.Target.Name + " DROP DEFAULT")
	case AddPrimaryKey:
		f.WriteString("ADD PRIMARY KEY (")
		f.idents(s.Columns)
		f.WriteString(")")
	case DropPrimaryKey:
		f.WriteString("DROP PRIMARY KEY")
	case RenameTable:
		f.WriteString("RENAME TO " + s.NewName.Name)
	default:
		f.WriteString("<ignored>")
	}
}
