// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/check"
	"github.com/canonical/sqltype/internal/expr"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/schema"
)

// Dialect selects the SQL flavour of a schema and its queries.
type Dialect = parse.Dialect

const (
	MariaDB    = parse.MariaDB
	PostgreSQL = parse.PostgreSQL
)

// Table and TableColumn describe the catalog built from a schema.
type (
	Table       = schema.Table
	TableColumn = schema.Column
)

// Options configure schema parsing and query checking.
type Options struct {
	// Dialect is used when the schema text does not declare its own.
	Dialect Dialect
	// Functions adds to or replaces the built in functions of the dialect.
	Functions Registry
}

// SchemaFileName is the name of the schema file looked up by
// FindSchemaFile.
const SchemaFileName = "sqltype-schema.sql"

// Schema is a parsed schema. Statements are checked against it when they
// are prepared. A Schema is never modified once parsed and may be used
// concurrently.
type Schema struct {
	cat   *schema.Catalog
	funcs Registry
}

// ParseSchema applies the DDL statements of text in order and returns the
// resulting Schema.
func ParseSchema(text string, opts Options) (*Schema, error) {
	cat, err := schema.Parse(text, schema.Options{Dialect: opts.Dialect})
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse schema")
	}
	return &Schema{cat: cat, funcs: opts.Functions}, nil
}

// MustParseSchema is the same as [ParseSchema] except that it panics on
// error.
func MustParseSchema(text string, opts Options) *Schema {
	s, err := ParseSchema(text, opts)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSchema reads and parses the schema file at path.
func LoadSchema(path string, opts Options) (*Schema, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load schema")
	}
	s, err := ParseSchema(string(text), opts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

// FindSchemaFile looks for SchemaFileName in dir and each of its parents
// and returns the path of the first one found.
func FindSchemaFile(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "cannot find schema")
	}
	for {
		path := filepath.Join(dir, SchemaFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Errorf("cannot find schema: no %s in %s or its parents", SchemaFileName, dir)
		}
		dir = parent
	}
}

// Dialect returns the dialect of the schema.
func (s *Schema) Dialect() Dialect {
	return s.cat.Dialect()
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	return s.cat.Table(name)
}

// Tables returns the tables of the schema in creation order.
func (s *Schema) Tables() []*Table {
	return s.cat.Tables()
}

// Prepare parses query, checks it against the schema and returns the
// resulting [Statement]. A statement can be used with any [DB].
func (s *Schema) Prepare(query string) (*Statement, error) {
	stmt, err := parse.NewParser(s.cat.Dialect()).Parse(query)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse query")
	}
	res, err := check.Check(s.cat, stmt, query, check.Options{Functions: s.funcs})
	if err != nil {
		return nil, errors.Wrap(err, "cannot check query")
	}
	b, err := expr.Resolve(query, s.cat.Dialect(), res)
	if err != nil {
		return nil, err
	}
	return stmtCache.newStatement(b), nil
}

// MustPrepare is the same as [Schema.Prepare] except that it panics on
// error.
func (s *Schema) MustPrepare(query string) *Statement {
	stmt, err := s.Prepare(query)
	if err != nil {
		panic(err)
	}
	return stmt
}
