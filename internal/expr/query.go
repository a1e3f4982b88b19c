// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/check"
	"github.com/canonical/sqltype/internal/typeinfo"
)

// PrimedQuery contains all concrete values needed to run a statement on a
// database.
type PrimedQuery struct {
	// sql is the SQL sent to the driver.
	sql string
	// params are the driver arguments in placeholder order.
	params  []any
	columns []check.Column
}

// SQL returns the SQL string to send to the database.
func (pq *PrimedQuery) SQL() string {
	return pq.sql
}

// Params returns the query parameters to pass with the SQL to a database.
func (pq *PrimedQuery) Params() []any {
	return pq.params
}

// HasOutputs returns true if the query has result columns.
func (pq *PrimedQuery) HasOutputs() bool {
	return len(pq.columns) > 0
}

// ScanArgs produces a list of pointers to be passed to rows.Scan. After a
// successful call, the onSuccess function must be invoked. The columns
// argument holds the column names reported by the driver.
//
// The output arguments are either one pointer per column, scanned into in
// column order, or structs and maps, where a column is scanned into the
// struct field with a matching db tag or else into the map.
func (pq *PrimedQuery) ScanArgs(columns []string, outputArgs []any) (ptrs []any, onSuccess func(), err error) {
	if len(columns) != len(pq.columns) {
		return nil, nil, errors.Errorf("internal error: driver returned %d columns, statement has %d", len(columns), len(pq.columns))
	}
	cols := make([]typeinfo.Column, len(pq.columns))
	for i, col := range pq.columns {
		cols[i] = typeinfo.Column{Name: col.Name, Type: col.Full}
	}

	var proxies []*typeinfo.ScanProxy
	if typeinfo.IsPositional(outputArgs) {
		if len(outputArgs) != len(cols) {
			return nil, nil, errors.Errorf("expected %d output arguments but got %d", len(cols), len(outputArgs))
		}
		for i, arg := range outputArgs {
			ptr, proxy, err := typeinfo.ScanTarget(arg, cols[i])
			if err != nil {
				return nil, nil, err
			}
			ptrs = append(ptrs, ptr)
			if proxy != nil {
				proxies = append(proxies, proxy)
			}
		}
	} else {
		typeToValue, order, err := typeinfo.ValidateOutputs(outputArgs)
		if err != nil {
			return nil, nil, err
		}
		outputs, err := typeinfo.MatchOutputs(cols, typeToValue, order)
		if err != nil {
			return nil, nil, err
		}
		for _, out := range outputs {
			ptr, proxy, err := out.LocateScanTarget(typeToValue)
			if err != nil {
				return nil, nil, err
			}
			ptrs = append(ptrs, ptr)
			if proxy != nil {
				proxies = append(proxies, proxy)
			}
		}
	}

	onSuccess = func() {
		for _, sp := range proxies {
			sp.OnSuccess()
		}
	}
	return ptrs, onSuccess, nil
}
