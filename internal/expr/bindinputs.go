// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/check"
	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/typeinfo"
)

// BindInputs checks the input arguments against the parameter slots and
// returns the PrimedQuery ready for use with the database. There is one
// argument per slot, a slice for a list slot.
func (b *Binding) BindInputs(args ...any) (pq *PrimedQuery, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "invalid input parameter")
		}
	}()

	if len(args) != len(b.params) {
		return nil, diag.Errorf(diag.ArgumentMismatch, diag.Span{}, "expected %d arguments but got %d", len(b.params), len(args))
	}

	var params []any
	var sqlBuilder sqlBuilder
	last := 0
	for i, p := range b.params {
		if !p.List {
			if err := typeinfo.CheckValue(args[i], p.Full); err != nil {
				return nil, b.argumentError(i, p, err)
			}
			params = append(params, args[i])
			continue
		}
		vals, err := listValues(args[i], p)
		if err != nil {
			return nil, b.argumentError(i, p, err)
		}
		sqlBuilder.write(b.query[last:p.Span.Start])
		sqlBuilder.writeInputs(len(vals))
		last = p.Span.End
		params = append(params, vals...)
	}
	sqlBuilder.write(b.query[last:])

	return &PrimedQuery{sql: sqlBuilder.getSQL(), params: params, columns: b.columns}, nil
}

// argumentError locates err at the first occurrence of the parameter.
func (b *Binding) argumentError(i int, p check.Param, err error) error {
	return diag.Errorf(diag.ArgumentMismatch, p.Span, "argument %d: %s", i+1, err).Locate(b.query)
}

// listValues returns the elements of the slice argument of a list slot,
// each checked against the element type of the slot.
func listValues(arg any, p check.Param) ([]any, error) {
	v := reflect.ValueOf(arg)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, errors.Errorf("need slice for _LIST_, got %T", arg)
	}
	if v.Len() == 0 {
		return nil, errors.New("cannot pass empty slice for _LIST_")
	}
	vals := make([]any, 0, v.Len())
	for j := 0; j < v.Len(); j++ {
		val := v.Index(j).Interface()
		if err := typeinfo.CheckValue(val, p.Full); err != nil {
			return nil, errors.Wrapf(err, "element %d", j)
		}
		vals = append(vals, val)
	}
	return vals, nil
}

// sqlBuilder is used to generate SQL string piece by piece using the struct
// methods.
type sqlBuilder struct {
	buf bytes.Buffer
}

// writeInputs writes n driver placeholders to the sqlBuilder.
func (b *sqlBuilder) writeInputs(n int) {
	b.writeCommaSeperatedList(make([]string, n), func(int, string) string {
		return "?"
	})
}

// writeCommaSeperatedList writes out the provided list using the writer to
// generate each element.
func (b *sqlBuilder) writeCommaSeperatedList(list []string, writer func(i int, s string) string) {
	for i, s := range list {
		if i != 0 {
			b.buf.WriteString(", ")
		}
		b.buf.WriteString(writer(i, s))
	}
}

// write writes the SQL to the sqlBuilder.
func (b *sqlBuilder) write(sql string) {
	b.buf.WriteString(sql)
}

// getSQL returns the generated SQL string
func (b *sqlBuilder) getSQL() string {
	return b.buf.String()
}
