// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package schema builds a Catalog of tables and columns from schema text.

The schema text is a sequence of DDL statements, as written by hand or by a
database dump tool, applied in order: DROP TABLE removes a table, CREATE
TABLE defines one and ALTER TABLE changes it in place. Statements that do not
affect column types, such as SET, LOCK TABLES or CREATE INDEX, are skipped.

A Catalog is immutable once built and may be shared between goroutines.
*/
package schema

import (
	"strings"

	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/types"
)

// Column is a column of a table.
type Column struct {
	Name          string
	Table         string
	Type          types.Type
	Nullable      bool
	AutoIncrement bool
	PrimaryKey    bool
	// HasDefault is set when inserts may omit the column: it has a DEFAULT
	// clause, is AUTO_INCREMENT or is generated.
	HasDefault bool
	Generated  bool
}

// Full returns the type of the column together with its nullability.
func (c *Column) Full() types.Full {
	return types.Full{Type: c.Type, Nullable: c.Nullable}
}

// Table is a table definition.
type Table struct {
	Name string
	// Columns are in declaration order.
	Columns []*Column
	// PrimaryKey lists the primary key columns in key order.
	PrimaryKey []string
}

// Column returns the column with the given name, ignoring case, or nil.
func (t *Table) Column(name string) *Column {
	if i := t.columnIndex(name); i >= 0 {
		return t.Columns[i]
	}
	return nil
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (t *Table) clone(name string) *Table {
	nt := &Table{Name: name, PrimaryKey: append([]string(nil), t.PrimaryKey...)}
	for _, c := range t.Columns {
		nc := *c
		nc.Table = name
		nt.Columns = append(nt.Columns, &nc)
	}
	return nt
}

// Catalog is the set of tables defined by a schema.
type Catalog struct {
	dialect parse.Dialect
	tables  map[string]*Table
	// order holds the lower case table names in definition order.
	order []string
}

func newCatalog(dialect parse.Dialect) *Catalog {
	return &Catalog{dialect: dialect, tables: map[string]*Table{}}
}

// Dialect returns the SQL dialect of the schema.
func (c *Catalog) Dialect() parse.Dialect {
	return c.dialect
}

// Table returns the table with the given name, ignoring case, or nil.
func (c *Catalog) Table(name string) *Table {
	return c.tables[strings.ToLower(name)]
}

// Tables returns the tables in the order they were first defined.
func (c *Catalog) Tables() []*Table {
	ts := make([]*Table, 0, len(c.order))
	for _, name := range c.order {
		ts = append(ts, c.tables[name])
	}
	return ts
}

func (c *Catalog) add(t *Table) {
	key := strings.ToLower(t.Name)
	c.tables[key] = t
	c.order = append(c.order, key)
}

func (c *Catalog) remove(name string) {
	key := strings.ToLower(name)
	delete(c.tables, key)
	for i, n := range c.order {
		if n == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Options configure schema parsing.
type Options struct {
	// Dialect is used when the schema text does not declare its own.
	Dialect parse.Dialect
}

// productMarker introduces the dialect declaration on the first line of a
// schema, for example "-- sql-product: postgres".
const productMarker = "sql-product:"

// DetectDialect reports the dialect declared on the first line of the
// schema text, if any.
func DetectDialect(text string) (parse.Dialect, bool) {
	first, _, _ := strings.Cut(text, "\n")
	i := indexFold(first, productMarker)
	if i < 0 {
		return parse.MariaDB, false
	}
	product := strings.TrimSpace(first[i+len(productMarker):])
	product = strings.ToLower(strings.TrimSuffix(product, "*/"))
	words := strings.Fields(product)
	if len(words) == 0 {
		return parse.MariaDB, false
	}
	switch words[0] {
	case "postgres", "postgresql":
		return parse.PostgreSQL, true
	case "mariadb", "mysql":
		return parse.MariaDB, true
	}
	return parse.MariaDB, false
}

// indexFold returns the byte offset in s of the first case-insensitive match
// of the ASCII string marker, or -1.
func indexFold(s, marker string) int {
	for i := 0; i+len(marker) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}

// Parse builds a catalog from schema text. Errors are *diag.Error values
// located in text.
func Parse(text string, opts Options) (*Catalog, error) {
	dialect := opts.Dialect
	if d, ok := DetectDialect(text); ok {
		dialect = d
	}
	stmts, err := parse.NewParser(dialect).ParseScript(text)
	if err != nil {
		return nil, err
	}
	b := builder{cat: newCatalog(dialect)}
	for _, stmt := range stmts {
		if err := b.apply(stmt); err != nil {
			return nil, err.Locate(text)
		}
	}
	return b.cat, nil
}
