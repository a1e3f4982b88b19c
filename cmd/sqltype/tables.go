// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/canonical/sqltype"
)

// placeholder returns how p is written in the query.
func placeholder(p sqltype.Param) string {
	switch {
	case p.Number > 0:
		return "$" + strconv.Itoa(p.Number)
	case p.List:
		return "_LIST_"
	}
	return "?"
}

// writeStatement writes the parameters and result columns of stmt as a
// table.
func writeStatement(w io.Writer, stmt *sqltype.Statement) {
	params, columns := stmt.Params(), stmt.Columns()
	if len(params) == 0 && len(columns) == 0 {
		fmt.Fprintln(w, "no parameters or result columns")
		return
	}
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"#", "Kind", "Name", "Type"})
	t.SetAutoWrapText(false)
	for i, p := range params {
		t.Append([]string{strconv.Itoa(i + 1), "param", placeholder(p), p.Full.String()})
	}
	for i, c := range columns {
		name := c.Name
		if c.Table != "" {
			name = c.Table + "." + c.Name
		}
		t.Append([]string{strconv.Itoa(i + 1), "column", name, c.Full.String()})
	}
	t.Render()
}

// writeTables writes the columns of the given tables.
func writeTables(w io.Writer, tables []*sqltype.Table) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "no tables")
		return
	}
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Table", "Column", "Type", "Key", "Extra"})
	t.SetAutoWrapText(false)
	t.SetAutoMergeCells(true)
	for _, table := range tables {
		for _, col := range table.Columns {
			var key string
			if col.PrimaryKey {
				key = "PRI"
			}
			t.Append([]string{table.Name, col.Name, col.Full().String(), key, columnExtra(col)})
		}
	}
	t.Render()
}

func columnExtra(col *sqltype.TableColumn) string {
	switch {
	case col.AutoIncrement:
		return "auto_increment"
	case col.Generated:
		return "generated"
	case col.HasDefault:
		return "default"
	}
	return ""
}
