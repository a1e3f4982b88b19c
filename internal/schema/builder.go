// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"strings"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
)

// builder applies DDL statements to a catalog in order.
type builder struct {
	cat *Catalog
}

func (b *builder) apply(stmt parse.Statement) *diag.Error {
	switch stmt := stmt.(type) {
	case *parse.CreateTable:
		return b.createTable(stmt)
	case *parse.DropTable:
		for _, name := range stmt.Names {
			if b.cat.Table(name.Name) == nil {
				if stmt.IfExists {
					continue
				}
				return diag.Errorf(diag.UnknownTableForAlter, name.At, "cannot drop unknown table %q", name.Name)
			}
			b.cat.remove(name.Name)
		}
	case *parse.AlterTable:
		t := b.cat.Table(stmt.Name.Name)
		if t == nil {
			return diag.Errorf(diag.UnknownTableForAlter, stmt.Name.At, "cannot alter unknown table %q", stmt.Name.Name)
		}
		for i := range stmt.Specs {
			if err := b.alter(t, &stmt.Specs[i]); err != nil {
				return err
			}
		}
	case *parse.Ignored:
	default:
		return diag.Errorf(diag.MalformedDDL, stmt.Span(), "unexpected statement in schema")
	}
	return nil
}

func (b *builder) createTable(stmt *parse.CreateTable) *diag.Error {
	name := stmt.Name.Name
	if b.cat.Table(name) != nil {
		if stmt.IfNotExists {
			return nil
		}
		return diag.Errorf(diag.DuplicateTable, stmt.Name.At, "table %q already exists", name)
	}
	if stmt.Like != nil {
		src := b.cat.Table(stmt.Like.Name)
		if src == nil {
			return diag.Errorf(diag.UnknownTableForAlter, stmt.Like.At, "cannot copy unknown table %q", stmt.Like.Name)
		}
		b.cat.add(src.clone(name))
		return nil
	}

	t := &Table{Name: name}
	for i := range stmt.Columns {
		def := &stmt.Columns[i]
		if t.Column(def.Name.Name) != nil {
			return diag.Errorf(diag.MalformedDDL, def.Name.At, "duplicate column %q", def.Name.Name)
		}
		col, err := b.column(name, def)
		if err != nil {
			return err
		}
		t.Columns = append(t.Columns, col)
		if def.PrimaryKey {
			if len(t.PrimaryKey) > 0 {
				return diag.Errorf(diag.MalformedDDL, def.At, "multiple primary keys defined")
			}
			t.PrimaryKey = []string{col.Name}
		}
	}
	if len(stmt.PrimaryKey) > 0 {
		if len(t.PrimaryKey) > 0 {
			return diag.Errorf(diag.MalformedDDL, stmt.PrimaryKey[0].At, "multiple primary keys defined")
		}
		if err := setPrimaryKey(t, stmt.PrimaryKey, diag.MalformedDDL); err != nil {
			return err
		}
	}
	b.cat.add(t)
	return nil
}

// column derives a catalog column from its definition.
func (b *builder) column(table string, def *parse.ColumnDef) (*Column, *diag.Error) {
	typ, err := ColumnType(def.Type, b.cat.dialect)
	if err != nil {
		return nil, err.(*diag.Error)
	}
	serial := def.Type.Name == "serial" && b.cat.dialect == parse.MariaDB
	return &Column{
		Name:          def.Name.Name,
		Table:         table,
		Type:          typ,
		Nullable:      !def.NotNull && !def.AutoIncrement && !def.PrimaryKey && !serial,
		AutoIncrement: def.AutoIncrement || serial,
		PrimaryKey:    def.PrimaryKey,
		HasDefault:    def.HasDefault() || serial,
		Generated:     def.Generated,
	}, nil
}

// setPrimaryKey marks the named columns as the primary key. Primary key
// columns are never null.
func setPrimaryKey(t *Table, cols []parse.Ident, kind diag.Kind) *diag.Error {
	var names []string
	for _, id := range cols {
		c := t.Column(id.Name)
		if c == nil {
			return diag.Errorf(kind, id.At, "unknown column %q in primary key of table %q", id.Name, t.Name)
		}
		c.PrimaryKey = true
		c.Nullable = false
		names = append(names, c.Name)
	}
	t.PrimaryKey = names
	return nil
}

func (b *builder) alter(t *Table, spec *parse.AlterSpec) *diag.Error {
	switch spec.Action {
	case parse.AddColumn:
		if t.Column(spec.Column.Name.Name) != nil {
			if spec.IfExists {
				return nil
			}
			return diag.Errorf(diag.MalformedDDL, spec.Column.Name.At, "duplicate column %q", spec.Column.Name.Name)
		}
		col, err := b.column(t.Name, &spec.Column)
		if err != nil {
			return err
		}
		if err := b.place(t, col, -1, spec); err != nil {
			return err
		}
		if spec.Column.PrimaryKey {
			return b.addPrimaryKey(t, []parse.Ident{spec.Column.Name}, spec.At)
		}
	case parse.ModifyColumn, parse.ChangeColumn:
		target := spec.Target
		if spec.Action == parse.ModifyColumn {
			target = spec.Column.Name
		}
		i := t.columnIndex(target.Name)
		if i < 0 {
			if spec.IfExists {
				return nil
			}
			return diag.Errorf(diag.UnknownColumnForAlter, target.At, "unknown column %q in table %q", target.Name, t.Name)
		}
		old := t.Columns[i]
		if j := t.columnIndex(spec.Column.Name.Name); j >= 0 && j != i {
			return diag.Errorf(diag.MalformedDDL, spec.Column.Name.At, "duplicate column %q", spec.Column.Name.Name)
		}
		col, err := b.column(t.Name, &spec.Column)
		if err != nil {
			return err
		}
		if old.PrimaryKey {
			col.PrimaryKey = true
			col.Nullable = false
			renamePrimaryKey(t, old.Name, col.Name)
		}
		if err := b.place(t, col, i, spec); err != nil {
			return err
		}
		if spec.Column.PrimaryKey && !old.PrimaryKey {
			return b.addPrimaryKey(t, []parse.Ident{spec.Column.Name}, spec.At)
		}
	case parse.DropColumn:
		i := t.columnIndex(spec.Target.Name)
		if i < 0 {
			if spec.IfExists {
				return nil
			}
			return diag.Errorf(diag.UnknownColumnForAlter, spec.Target.At, "unknown column %q in table %q", spec.Target.Name, t.Name)
		}
		name := t.Columns[i].Name
		t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
		for k, pk := range t.PrimaryKey {
			if strings.EqualFold(pk, name) {
				t.PrimaryKey = append(t.PrimaryKey[:k], t.PrimaryKey[k+1:]...)
				break
			}
		}
	case parse.RenameColumn:
		c := t.Column(spec.Target.Name)
		if c == nil {
			return diag.Errorf(diag.UnknownColumnForAlter, spec.Target.At, "unknown column %q in table %q", spec.Target.Name, t.Name)
		}
		if other := t.Column(spec.NewName.Name); other != nil && other != c {
			return diag.Errorf(diag.MalformedDDL, spec.NewName.At, "duplicate column %q", spec.NewName.Name)
		}
		renamePrimaryKey(t, c.Name, spec.NewName.Name)
		c.Name = spec.NewName.Name
	case parse.SetColumnDefault, parse.DropColumnDefault:
		c := t.Column(spec.Target.Name)
		if c == nil {
			return diag.Errorf(diag.UnknownColumnForAlter, spec.Target.At, "unknown column %q in table %q", spec.Target.Name, t.Name)
		}
		c.HasDefault = spec.Action == parse.SetColumnDefault || c.AutoIncrement || c.Generated
	case parse.AddPrimaryKey:
		return b.addPrimaryKey(t, spec.Columns, spec.At)
	case parse.DropPrimaryKey:
		for _, c := range t.Columns {
			c.PrimaryKey = false
		}
		t.PrimaryKey = nil
	case parse.RenameTable:
		if other := b.cat.Table(spec.NewName.Name); other != nil && other != t {
			return diag.Errorf(diag.DuplicateTable, spec.NewName.At, "table %q already exists", spec.NewName.Name)
		}
		b.cat.remove(t.Name)
		t.Name = spec.NewName.Name
		for _, c := range t.Columns {
			c.Table = t.Name
		}
		b.cat.add(t)
	case parse.IgnoredAlter:
	}
	return nil
}

func (b *builder) addPrimaryKey(t *Table, cols []parse.Ident, at diag.Span) *diag.Error {
	if len(t.PrimaryKey) > 0 {
		return diag.Errorf(diag.MalformedDDL, at, "multiple primary keys defined for table %q", t.Name)
	}
	return setPrimaryKey(t, cols, diag.UnknownColumnForAlter)
}

func renamePrimaryKey(t *Table, from, to string) {
	for k, pk := range t.PrimaryKey {
		if strings.EqualFold(pk, from) {
			t.PrimaryKey[k] = to
		}
	}
}

// place puts col into t. When i is a valid index the column at i is
// replaced, otherwise col is appended. FIRST and AFTER in spec move the
// column.
func (b *builder) place(t *Table, col *Column, i int, spec *parse.AlterSpec) *diag.Error {
	if i >= 0 {
		t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	} else {
		i = len(t.Columns)
	}
	switch {
	case spec.First:
		i = 0
	case spec.After != nil:
		j := t.columnIndex(spec.After.Name)
		if j < 0 {
			return diag.Errorf(diag.UnknownColumnForAlter, spec.After.At, "unknown column %q in table %q", spec.After.Name, t.Name)
		}
		i = j + 1
	}
	t.Columns = append(t.Columns, nil)
	copy(t.Columns[i+1:], t.Columns[i:])
	t.Columns[i] = col
	return nil
}
