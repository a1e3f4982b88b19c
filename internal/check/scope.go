// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package check

import (
	"strings"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/schema"
	"github.com/canonical/sqltype/internal/types"
)

// source is a table or derived table visible in a query.
type source struct {
	// name is the name the source is referred to by, its alias if it has
	// one.
	name string
	// table is the catalog table, nil for derived tables.
	table   *schema.Table
	columns []*sourceColumn
	// outer is set when the source is on the nullable side of an outer
	// join.
	outer bool
}

type sourceColumn struct {
	name string
	typ  types.Full
	// col is the catalog column, nil for columns of derived tables.
	col *schema.Column
}

func tableSource(t *schema.Table, name string) *source {
	src := &source{name: name, table: t}
	for _, col := range t.Columns {
		src.columns = append(src.columns, &sourceColumn{name: col.Name, typ: col.Full(), col: col})
	}
	return src
}

func (s *source) column(name string) *sourceColumn {
	for _, c := range s.columns {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// tableName returns the name of the catalog table of the source, or the
// empty string.
func (s *source) tableName() string {
	if s.table == nil {
		return ""
	}
	return s.table.Name
}

// scope holds the sources of a single query block. Subqueries have the
// enclosing query block as parent so that correlated references resolve.
type scope struct {
	parent  *scope
	sources []*source
	// merged holds the columns joined with USING.
	merged []*merge
	// aliases holds the select list by lower case alias.
	aliases map[string]projected
	// grouped is set when the query has a GROUP BY clause.
	grouped bool
}

func (sc *scope) source(name string) *source {
	for _, src := range sc.sources {
		if strings.EqualFold(src.name, name) {
			return src
		}
	}
	return nil
}

func (sc *scope) add(src *source, at diag.Span) error {
	if sc.source(src.name) != nil {
		return diag.Errorf(diag.AmbiguousColumn, at, "table name %q is used more than once", src.name)
	}
	sc.sources = append(sc.sources, src)
	return nil
}

// ref is a resolved column reference.
type ref struct {
	src *source
	col *sourceColumn
}

// merge is a column shared by the sides of joins with USING. An unqualified
// reference names the column of the first source that is not on the
// nullable side of an outer join.
type merge struct {
	name string
	refs []ref
}

func (m *merge) covers(src *source) bool {
	for _, r := range m.refs {
		if r.src == src {
			return true
		}
	}
	return false
}

func (m *merge) preferred() ref {
	for _, r := range m.refs {
		if !r.src.outer {
			return r
		}
	}
	return m.refs[0]
}

// mergeOf returns the merge of the USING column name that covers every
// source of refs, or nil.
func (sc *scope) mergeOf(name string, refs []ref) *merge {
	for _, m := range sc.merged {
		if !strings.EqualFold(m.name, name) {
			continue
		}
		all := true
		for _, r := range refs {
			all = all && m.covers(r.src)
		}
		if all {
			return m
		}
	}
	return nil
}

func (r ref) full() types.Full {
	f := r.col.typ
	if r.src.outer {
		f.Nullable = true
	}
	return f
}

// resolve finds the column a reference names, searching the enclosing
// scopes when the innermost has no match.
func (c *checker) resolve(en env, cr *parse.ColumnRef) (ref, *projected, error) {
	for sc := en.sc; sc != nil; sc = sc.parent {
		if cr.Table != "" {
			src := sc.source(cr.Table)
			if src == nil {
				continue
			}
			col := src.column(cr.Column)
			if col == nil {
				return ref{}, nil, diag.Errorf(diag.UnknownColumn, cr.At, "unknown column %q in table %q", cr.Column, src.name)
			}
			return ref{src: src, col: col}, nil, nil
		}
		var matches []ref
		for _, src := range sc.sources {
			if col := src.column(cr.Column); col != nil {
				matches = append(matches, ref{src: src, col: col})
			}
		}
		switch {
		case len(matches) == 1:
			return matches[0], nil, nil
		case len(matches) > 1:
			if m := sc.mergeOf(cr.Column, matches); m != nil {
				return m.preferred(), nil, nil
			}
			return ref{}, nil, diag.Errorf(diag.AmbiguousColumn, cr.At, "column %q is ambiguous: it is in tables %q and %q",
				cr.Column, matches[0].src.name, matches[1].src.name)
		}
		if en.aliases && sc == en.sc {
			if p, ok := sc.aliases[strings.ToLower(cr.Column)]; ok {
				return ref{}, &p, nil
			}
		}
	}
	if cr.Table != "" {
		return ref{}, nil, diag.Errorf(diag.UnknownTable, cr.At, "unknown table %q", cr.Table)
	}
	return ref{}, nil, diag.Errorf(diag.UnknownColumn, cr.At, "unknown column %q", cr.Column)
}

// addTables adds the sources of a FROM clause to the scope.
func (c *checker) addTables(sc *scope, from []parse.TableExpr) error {
	for _, te := range from {
		if _, err := c.addTable(sc, te); err != nil {
			return err
		}
	}
	return nil
}

// addTable adds the sources of te to the scope and returns them.
func (c *checker) addTable(sc *scope, te parse.TableExpr) ([]*source, error) {
	switch te := te.(type) {
	case *parse.TableName:
		t := c.cat.Table(te.Name)
		if t == nil {
			return nil, diag.Errorf(diag.UnknownTable, te.At, "unknown table %q", te.Name)
		}
		src := tableSource(t, te.RefName())
		return []*source{src}, sc.add(src, te.At)
	case *parse.DerivedTable:
		proj, err := c.selectStmt(te.Select, nil)
		if err != nil {
			return nil, err
		}
		src := &source{name: te.Alias}
		for _, p := range proj {
			if src.column(p.name) != nil {
				return nil, diag.Errorf(diag.AmbiguousColumn, p.span, "duplicate column %q in derived table %q", p.name, te.Alias)
			}
			src.columns = append(src.columns, &sourceColumn{name: p.name, typ: p.current()})
		}
		return []*source{src}, sc.add(src, te.At)
	case *parse.Join:
		left, err := c.addTable(sc, te.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.addTable(sc, te.Right)
		if err != nil {
			return nil, err
		}
		switch te.Kind {
		case parse.LeftJoin:
			markOuter(right)
		case parse.RightJoin:
			markOuter(left)
		case parse.FullJoin:
			markOuter(left)
			markOuter(right)
		}
		if te.On != nil {
			if _, err := c.condition(te.On, env{sc: sc, clause: "ON"}); err != nil {
				return nil, err
			}
		}
		for _, id := range te.Using {
			if err := c.using(sc, left, right, id); err != nil {
				return nil, err
			}
		}
		return append(left, right...), nil
	}
	return nil, diag.Errorf(diag.Internal, te.Span(), "unexpected table expression %T", te)
}

func markOuter(srcs []*source) {
	for _, src := range srcs {
		src.outer = true
	}
}

// using checks a USING column, which must be in both sides of the join, and
// merges the columns of both sides.
func (c *checker) using(sc *scope, left, right []*source, id parse.Ident) error {
	l, err := usingSide(sc, left, id)
	if err != nil {
		return err
	}
	r, err := usingSide(sc, right, id)
	if err != nil {
		return err
	}
	lt, rt := l[0].col.typ.Type, r[0].col.typ.Type
	if !types.Comparable(lt, rt) {
		return mismatchAt(id.At, &types.MismatchError{From: lt, To: rt, Reason: "values cannot be compared"})
	}
	m := &merge{name: id.Name, refs: append(l, r...)}
	kept := sc.merged[:0]
	for _, old := range sc.merged {
		if !strings.EqualFold(old.name, id.Name) || !m.covers(old.refs[0].src) {
			kept = append(kept, old)
		}
	}
	sc.merged = append(kept, m)
	return nil
}

// usingSide returns the columns named id in one side of a join. More than
// one is ambiguous unless an earlier USING merged them.
func usingSide(sc *scope, srcs []*source, id parse.Ident) ([]ref, error) {
	var refs []ref
	for _, src := range srcs {
		if col := src.column(id.Name); col != nil {
			refs = append(refs, ref{src: src, col: col})
		}
	}
	switch {
	case len(refs) == 0:
		return nil, diag.Errorf(diag.UnknownColumn, id.At, "unknown column %q in USING clause", id.Name)
	case len(refs) > 1 && sc.mergeOf(id.Name, refs) == nil:
		return nil, diag.Errorf(diag.AmbiguousColumn, id.At, "column %q in USING clause is ambiguous: it is in tables %q and %q",
			id.Name, refs[0].src.name, refs[1].src.name)
	}
	return refs, nil
}
