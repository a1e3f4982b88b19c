// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package check assigns types to the parameters and result columns of a parsed
statement by checking it against a schema catalog.

Column references are resolved against the tables of the statement, with
the columns of the nullable side of an outer join made nullable. Every
expression is typed bottom up. Placeholders start with an unknown type and
are gathered into unification groups, which are constrained by every
context a placeholder is used in and resolved once the whole statement has
been checked. A placeholder whose group is never constrained is an error.
*/
package check

import (
	"sort"
	"strings"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/schema"
	"github.com/canonical/sqltype/internal/types"
)

// Options configure the checker.
type Options struct {
	// Functions adds to or replaces the built in functions of the dialect.
	Functions Registry
}

// Param is a parameter slot of a checked statement.
type Param struct {
	types.Full
	// Number is n for a $n placeholder and zero for ?.
	Number int
	// List is set for a _LIST_ placeholder, which takes a list of values.
	List bool
	// Span is the first occurrence of the placeholder in the query.
	Span diag.Span
	// Uses holds every occurrence of the placeholder. Only numbered
	// placeholders occur more than once.
	Uses []diag.Span
}

// Column is a result column of a checked statement.
type Column struct {
	types.Full
	Name string
	// Table is the table the column was read from when the result is a
	// plain column reference.
	Table string
	Span  diag.Span
}

// Result holds the parameters of a statement in call order and its result
// columns in projection order.
type Result struct {
	Params  []Param
	Columns []Column
}

// slot is the state of a parameter during checking.
type slot struct {
	g      *group
	number int
	list   bool
	span   diag.Span
	uses   []diag.Span
}

// projected is a checked select list entry.
type projected struct {
	typed
	name  string
	table string
	span  diag.Span
}

type checker struct {
	cat   *schema.Catalog
	query string
	funcs Registry
	// slots holds the parameters by placeholder index, or by number for
	// numbered placeholders.
	slots    map[int]*slot
	numbered bool
	// values is the target table while checking ON DUPLICATE KEY UPDATE,
	// where VALUES(col) refers to the inserted value.
	values *schema.Table
}

// env is the context an expression is checked in.
type env struct {
	sc *scope
	// clause names the clause being checked for error messages.
	clause string
	// aggregates is set where aggregate functions may be used.
	aggregates bool
	// aliases is set where select list aliases are visible.
	aliases bool
}

// Check checks stmt, parsed from query, against the catalog. Errors are
// *diag.Error values located in query.
func Check(cat *schema.Catalog, stmt parse.Statement, query string, opts Options) (*Result, error) {
	funcs := DefaultFunctions(cat.Dialect())
	for name, f := range opts.Functions {
		funcs[strings.ToUpper(name)] = f
	}
	c := &checker{cat: cat, query: query, funcs: funcs, slots: map[int]*slot{}}
	res, err := c.check(stmt)
	if err != nil {
		if e, ok := err.(*diag.Error); ok {
			return nil, e.Locate(query)
		}
		return nil, err
	}
	return res, nil
}

func (c *checker) check(stmt parse.Statement) (*Result, error) {
	var proj []projected
	var err error
	switch stmt := stmt.(type) {
	case *parse.Select:
		proj, err = c.selectStmt(stmt, nil)
	case *parse.Insert:
		proj, err = c.insert(stmt)
	case *parse.Update:
		err = c.update(stmt)
	case *parse.Delete:
		proj, err = c.delete(stmt)
	default:
		return nil, diag.Errorf(diag.UnsupportedConstruct, stmt.Span(), "only SELECT, INSERT, REPLACE, UPDATE and DELETE statements can be checked")
	}
	if err != nil {
		return nil, err
	}
	return c.finish(stmt, proj)
}

// finish resolves the placeholder groups and builds the result.
func (c *checker) finish(stmt parse.Statement, proj []projected) (*Result, error) {
	keys := make([]int, 0, len(c.slots))
	for k := range c.slots {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	res := &Result{}
	for i, k := range keys {
		s := c.slots[k]
		if c.numbered && k != i+1 {
			return nil, diag.Errorf(diag.AmbiguousPlaceholder, stmt.Span(), "cannot determine the type of placeholder $%d: it is not used", i+1)
		}
		root := s.g.find()
		if root.typ.Kind == types.Unknown || root.typ.Kind == types.Null {
			return nil, diag.Errorf(diag.AmbiguousPlaceholder, s.span, "cannot determine the type of placeholder %s", c.source(s.span))
		}
		res.Params = append(res.Params, Param{
			Full:   types.Full{Type: root.typ, Nullable: root.nullSeen && root.nullable},
			Number: s.number,
			List:   s.list,
			Span:   s.span,
			Uses:   s.uses,
		})
	}
	for _, p := range proj {
		res.Columns = append(res.Columns, Column{Full: p.current(), Name: p.name, Table: p.table, Span: p.span})
	}
	return res, nil
}

// source returns the query text of span.
func (c *checker) source(span diag.Span) string {
	if span.Start < 0 || span.End > len(c.query) || span.Start > span.End {
		return ""
	}
	return c.query[span.Start:span.End]
}

func (c *checker) placeholder(p *parse.Placeholder) (*group, error) {
	if p.List && c.cat.Dialect() == parse.PostgreSQL {
		return nil, diag.Errorf(diag.UnsupportedConstruct, p.At, "_LIST_ is not supported with $n placeholders")
	}
	key := p.Index
	if p.Number > 0 {
		key = p.Number
		c.numbered = true
	}
	s, ok := c.slots[key]
	if !ok {
		s = &slot{g: &group{}, number: p.Number, list: p.List, span: p.At}
		c.slots[key] = s
	} else if s.list != p.List {
		return nil, diag.Errorf(diag.TypeMismatch, p.At, "placeholder %s is used both as a list and as a single value", c.source(p.At))
	}
	s.uses = append(s.uses, p.At)
	return s.g, nil
}

func (c *checker) selectStmt(s *parse.Select, parent *scope) ([]projected, error) {
	sc := &scope{parent: parent, grouped: len(s.GroupBy) > 0}
	if err := c.addTables(sc, s.From); err != nil {
		return nil, err
	}
	if s.Where != nil {
		if _, err := c.condition(s.Where, env{sc: sc, clause: "WHERE"}); err != nil {
			return nil, err
		}
	}
	proj, err := c.items(s.Items, env{sc: sc, aggregates: true})
	if err != nil {
		return nil, err
	}
	sc.aliases = map[string]projected{}
	for _, p := range proj {
		if _, ok := sc.aliases[strings.ToLower(p.name)]; !ok {
			sc.aliases[strings.ToLower(p.name)] = p
		}
	}
	for _, e := range s.GroupBy {
		if isPosition(e) {
			continue
		}
		if _, err := c.expr(e, env{sc: sc, clause: "GROUP BY", aliases: true}); err != nil {
			return nil, err
		}
	}
	if s.Having != nil {
		if _, err := c.condition(s.Having, env{sc: sc, clause: "HAVING", aggregates: true, aliases: true}); err != nil {
			return nil, err
		}
	}
	if err := c.orderBy(s.OrderBy, env{sc: sc, clause: "ORDER BY", aggregates: true, aliases: true}); err != nil {
		return nil, err
	}
	if err := c.limit(s.Limit); err != nil {
		return nil, err
	}
	if err := c.limit(s.Offset); err != nil {
		return nil, err
	}
	return proj, nil
}

// isPosition reports whether e is an integer literal used as a select list
// position in GROUP BY or ORDER BY.
func isPosition(e parse.Expr) bool {
	l, ok := e.(*parse.Literal)
	return ok && l.Value.Kind == types.LitInt
}

func (c *checker) orderBy(items []parse.OrderItem, en env) error {
	for _, item := range items {
		if isPosition(item.Expr) {
			continue
		}
		if _, err := c.expr(item.Expr, en); err != nil {
			return err
		}
	}
	return nil
}

// limit checks a LIMIT or OFFSET value, which is a non-negative integer.
func (c *checker) limit(e parse.Expr) error {
	if e == nil {
		return nil
	}
	x, err := c.expr(e, env{sc: &scope{}, clause: "LIMIT"})
	if err != nil {
		return err
	}
	switch {
	case x.g != nil:
		if err := constrain(x.g, u64, e.Span()); err != nil {
			return err
		}
		x.g.allowNull(false)
	case x.lit != nil:
		if _, err := types.WidenForLiteral(*x.lit, u64); err != nil {
			return mismatchAt(e.Span(), err)
		}
	case !x.IsInteger():
		return mismatchAt(e.Span(), &types.MismatchError{From: x.Type, To: u64, Reason: "expected a row count"})
	}
	return nil
}

// items checks a select list or RETURNING clause.
func (c *checker) items(items []parse.SelectItem, en env) ([]projected, error) {
	var proj []projected
	for _, item := range items {
		if item.Star {
			srcs := en.sc.sources
			if item.Table != "" {
				src := en.sc.source(item.Table)
				if src == nil {
					return nil, diag.Errorf(diag.UnknownTable, item.At, "unknown table %q", item.Table)
				}
				srcs = []*source{src}
			}
			if len(srcs) == 0 {
				return nil, diag.Errorf(diag.UnknownTable, item.At, "no tables used")
			}
			for _, src := range srcs {
				for _, col := range src.columns {
					r := ref{src: src, col: col}
					proj = append(proj, projected{typed: typed{Full: r.full()}, name: col.name, table: src.tableName(), span: item.At})
				}
			}
			continue
		}
		x, err := c.expr(item.Expr, en)
		if err != nil {
			return nil, err
		}
		p := projected{typed: x, name: item.Alias, span: item.At}
		if cr, ok := item.Expr.(*parse.ColumnRef); ok {
			if r, _, err := c.resolve(en, cr); err == nil && r.src != nil {
				p.table = r.src.tableName()
			}
			if p.name == "" {
				p.name = cr.Column
			}
		}
		if p.name == "" {
			p.name = c.source(item.Expr.Span())
		}
		proj = append(proj, p)
	}
	return proj, nil
}

// store checks that x may be stored in col. Inserting NULL into an
// AUTO_INCREMENT column generates a value.
func (c *checker) store(col *schema.Column, x typed, span diag.Span, insert bool) error {
	allowNull := col.Nullable || (insert && col.AutoIncrement)
	if x.g != nil {
		if err := constrain(x.g, col.Type, span); err != nil {
			return err
		}
		x.g.allowNull(allowNull)
		return nil
	}
	if x.Kind == types.Null {
		if !allowNull {
			return diag.Errorf(diag.NullIntoNotNull, span, "column %q of table %q cannot be NULL", col.Name, col.Table)
		}
		return nil
	}
	if x.lit != nil {
		if _, err := types.WidenForLiteral(*x.lit, col.Type); err != nil {
			return mismatchAt(span, err)
		}
		return nil
	}
	if !assignable(x.Type, col.Type) {
		return mismatchAt(span, &types.MismatchError{From: x.Type, To: col.Type, Reason: "cannot store in column " + col.Name})
	}
	if x.Nullable && !allowNull {
		return diag.Errorf(diag.NullIntoNotNull, span, "column %q of table %q cannot be NULL: the value may be NULL", col.Name, col.Table)
	}
	return nil
}

// assign checks a value stored in col.
func (c *checker) assign(col *schema.Column, e parse.Expr, en env, insert bool) error {
	if _, ok := e.(*parse.Default); ok {
		if insert && !col.HasDefault && !col.Nullable {
			return diag.Errorf(diag.NullIntoNotNull, e.Span(), "column %q of table %q has no default value", col.Name, col.Table)
		}
		return nil
	}
	x, err := c.expr(e, en)
	if err != nil {
		return err
	}
	return c.store(col, x, e.Span(), insert)
}

// target resolves the column of an assignment in INSERT ... SET or ON
// DUPLICATE KEY UPDATE.
func target(src *source, cr *parse.ColumnRef) (*schema.Column, error) {
	if cr.Table != "" && !strings.EqualFold(cr.Table, src.name) {
		return nil, diag.Errorf(diag.UnknownTable, cr.At, "unknown table %q", cr.Table)
	}
	col := src.table.Column(cr.Column)
	if col == nil {
		return nil, diag.Errorf(diag.UnknownColumn, cr.At, "unknown column %q in table %q", cr.Column, src.table.Name)
	}
	return col, nil
}

func (c *checker) insert(s *parse.Insert) ([]projected, error) {
	t := c.cat.Table(s.Table.Name)
	if t == nil {
		return nil, diag.Errorf(diag.UnknownTable, s.Table.At, "unknown table %q", s.Table.Name)
	}
	src := tableSource(t, s.Table.RefName())
	sc := &scope{sources: []*source{src}}
	en := env{sc: sc, clause: "VALUES"}

	listed := map[*schema.Column]bool{}
	var cols []*schema.Column
	for _, id := range s.Columns {
		col := t.Column(id.Name)
		if col == nil {
			return nil, diag.Errorf(diag.UnknownColumn, id.At, "unknown column %q in table %q", id.Name, t.Name)
		}
		if listed[col] {
			return nil, diag.Errorf(diag.AmbiguousColumn, id.At, "column %q is specified twice", id.Name)
		}
		listed[col] = true
		cols = append(cols, col)
	}
	explicit := len(s.Columns) > 0 || len(s.Set) > 0
	if !explicit {
		cols = t.Columns
	}

	switch {
	case len(s.Set) > 0:
		for _, a := range s.Set {
			col, err := target(src, a.Column)
			if err != nil {
				return nil, err
			}
			if listed[col] {
				return nil, diag.Errorf(diag.AmbiguousColumn, a.Column.At, "column %q is specified twice", a.Column.Column)
			}
			listed[col] = true
			if err := c.assign(col, a.Value, en, true); err != nil {
				return nil, err
			}
		}
	case s.Query != nil:
		proj, err := c.selectStmt(s.Query, nil)
		if err != nil {
			return nil, err
		}
		if len(proj) != len(cols) {
			return nil, diag.Errorf(diag.ArityMismatch, s.Query.At, "query returns %d columns but %d are inserted", len(proj), len(cols))
		}
		for i, p := range proj {
			if err := c.store(cols[i], p.typed, p.span, true); err != nil {
				return nil, err
			}
		}
	default:
		for _, row := range s.Rows {
			if len(row) != len(cols) {
				span := s.Table.At
				if len(row) > 0 {
					span = row[0].Span().Join(row[len(row)-1].Span())
				}
				return nil, diag.Errorf(diag.ArityMismatch, span, "%d values for %d columns", len(row), len(cols))
			}
			for i, e := range row {
				if err := c.assign(cols[i], e, en, true); err != nil {
					return nil, err
				}
			}
		}
	}

	if explicit {
		for _, col := range t.Columns {
			if !listed[col] && !col.Nullable && !col.HasDefault {
				return nil, diag.Errorf(diag.NullIntoNotNull, s.Table.At, "column %q of table %q has no default value and is not set", col.Name, t.Name)
			}
		}
	}

	if len(s.OnDuplicate) > 0 {
		c.values = t
		for _, a := range s.OnDuplicate {
			col, err := target(src, a.Column)
			if err != nil {
				return nil, err
			}
			if err := c.assign(col, a.Value, env{sc: sc, clause: "ON DUPLICATE KEY UPDATE"}, false); err != nil {
				return nil, err
			}
		}
		c.values = nil
	}
	return c.items(s.Returning, env{sc: sc, clause: "RETURNING"})
}

func (c *checker) update(s *parse.Update) error {
	sc := &scope{}
	if err := c.addTables(sc, s.Tables); err != nil {
		return err
	}
	en := env{sc: sc, clause: "SET"}
	for _, a := range s.Set {
		r, _, err := c.resolve(env{sc: sc}, a.Column)
		if err != nil {
			return err
		}
		if r.col.col == nil {
			return diag.Errorf(diag.UnsupportedConstruct, a.Column.At, "column %q of derived table %q cannot be updated", a.Column.Column, r.src.name)
		}
		if err := c.assign(r.col.col, a.Value, en, false); err != nil {
			return err
		}
	}
	if s.Where != nil {
		if _, err := c.condition(s.Where, env{sc: sc, clause: "WHERE"}); err != nil {
			return err
		}
	}
	if err := c.orderBy(s.OrderBy, env{sc: sc, clause: "ORDER BY"}); err != nil {
		return err
	}
	return c.limit(s.Limit)
}

func (c *checker) delete(s *parse.Delete) ([]projected, error) {
	sc := &scope{}
	if _, err := c.addTable(sc, s.Table); err != nil {
		return nil, err
	}
	if s.Where != nil {
		if _, err := c.condition(s.Where, env{sc: sc, clause: "WHERE"}); err != nil {
			return nil, err
		}
	}
	if err := c.orderBy(s.OrderBy, env{sc: sc, clause: "ORDER BY"}); err != nil {
		return nil, err
	}
	if err := c.limit(s.Limit); err != nil {
		return nil, err
	}
	return c.items(s.Returning, env{sc: sc, clause: "RETURNING"})
}
