// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command sqltypecheck checks the SQL queries of Go packages against the
// database schema. It can be run on its own or as a vet tool:
//
//	go vet -vettool=$(which sqltypecheck) -sqltype.schema=schema.sql ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/canonical/sqltype/internal/analyzer"
)

func main() { singlechecker.Main(analyzer.Analyzer) }
