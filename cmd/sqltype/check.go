// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype"
)

// query is a query to check and the name it is reported under.
type query struct {
	name string
	text string
}

func runCheck(args []string, e *env) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var sf schemaFlags
	sf.register(fs)
	file := fs.String("f", "", "read semicolon separated queries from `file` (- for stdin)")
	verbose := fs.Bool("v", false, "print progress")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: sqltype check [flags] [query ...]\n\n")
		fmt.Fprintf(fs.Output(), "Checks each query against the schema and prints its parameters and result\ncolumns. Without queries, prints the tables of the schema.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}

	prog := newProgress(e.stderr, *verbose)
	schema, path, err := sf.load(e.stderr)
	if err != nil {
		return err
	}
	prog.verbosef("loaded %s: %d tables, %s dialect", path, len(schema.Tables()), schema.Dialect())

	var queries []query
	for i, text := range fs.Args() {
		queries = append(queries, query{name: fmt.Sprintf("query %d", i+1), text: text})
	}
	if *file != "" {
		fromFile, err := readQueries(*file, e.stdin)
		if err != nil {
			return err
		}
		queries = append(queries, fromFile...)
	}
	if len(queries) == 0 {
		writeTables(e.stdout, schema.Tables())
		return nil
	}

	failed := 0
	for i, q := range queries {
		if i > 0 {
			fmt.Fprintln(e.stdout)
		}
		stmt, err := schema.Prepare(q.text)
		if err != nil {
			failed++
			fmt.Fprint(e.stderr, sqltype.Render(q.name, q.text, err))
			continue
		}
		fmt.Fprintf(e.stdout, "%s:\n", q.name)
		writeStatement(e.stdout, stmt)
	}
	prog.verbosef("checked %d queries, %d failed", len(queries), failed)
	if failed > 0 {
		return errFailed
	}
	return nil
}

// readQueries reads the queries of a file, or of stdin when path is "-".
func readQueries(path string, stdin io.Reader) ([]query, error) {
	var text []byte
	var err error
	if path == "-" {
		path = "stdin"
		text, err = io.ReadAll(stdin)
	} else {
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot read queries")
	}
	var queries []query
	for i, stmt := range splitStatements(string(text)) {
		queries = append(queries, query{name: fmt.Sprintf("%s#%d", path, i+1), text: stmt})
	}
	return queries, nil
}

// splitStatements splits text at the semicolons that are outside quotes
// and comments. Blank statements are dropped.
func splitStatements(text string) []string {
	var stmts []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	start := 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'' || c == '"' || c == '`':
			for i++; i < len(text); i++ {
				if text[i] == '\\' && c != '`' {
					i++
				} else if text[i] == c {
					if i+1 < len(text) && text[i+1] == c {
						i++
						continue
					}
					break
				}
			}
		case c == '#' || c == '-' && strings.HasPrefix(text[i:], "--"):
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '/' && strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}
		case c == ';':
			emit(text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		emit(text[start:])
	}
	return stmts
}
