// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/sqltype/internal/check"
	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/types"
)

// Binding is a checked statement ready to have arguments bound to it.
type Binding struct {
	query   string
	dialect parse.Dialect
	params  []check.Param
	columns []check.Column
	// lists holds the indexes of the list parameters in params.
	lists []int
}

// Resolve builds the binding of query from its checked result.
func Resolve(query string, dialect parse.Dialect, res *check.Result) (*Binding, error) {
	b := &Binding{query: query, dialect: dialect}
	for i, p := range res.Params {
		if p.Kind == types.Unknown {
			return nil, diag.Errorf(diag.Internal, p.Span, "internal error: parameter %d has no type", i+1).Locate(query)
		}
		if p.List {
			if dialect == parse.PostgreSQL {
				return nil, diag.Errorf(diag.Internal, p.Span, "internal error: list parameter with $n placeholders").Locate(query)
			}
			b.lists = append(b.lists, i)
		}
		b.params = append(b.params, p)
	}
	for _, col := range res.Columns {
		if col.Kind == types.Unknown {
			return nil, diag.Errorf(diag.Internal, col.Span, "internal error: column %q has no type", col.Name).Locate(query)
		}
		b.columns = append(b.columns, col)
	}
	return b, nil
}

// Params returns the parameter slots in call order.
func (b *Binding) Params() []check.Param {
	return b.params
}

// Columns returns the result columns in projection order.
func (b *Binding) Columns() []check.Column {
	return b.columns
}

// SQL returns the query as written.
func (b *Binding) SQL() string {
	return b.query
}

// HasOutputs reports whether the statement returns rows.
func (b *Binding) HasOutputs() bool {
	return len(b.columns) > 0
}

// Cacheable reports whether every call of the statement sends the same SQL
// to the driver, which is the case when it has no list parameters.
func (b *Binding) Cacheable() bool {
	return len(b.lists) == 0
}
