// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command sqltype checks SQL queries against a database schema.
//
// Usage:
//
//	sqltype check [flags] [query ...]
//	sqltype repl [flags]
//	sqltype serve [flags]
//
// check prints the parameters and result columns of each query, or the
// tables of the schema when no query is given. repl checks queries
// interactively and serve checks them over HTTP.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype"
)

// errFailed is returned by commands that have already reported their
// errors.
var errFailed = errors.New("failed")

// env holds the standard streams of a command.
type env struct {
	stdin          io.Reader
	stdout, stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(args []string, e *env) error
}

var commands = []command{
	{"check", "check queries against the schema", runCheck},
	{"repl", "check queries interactively", runREPL},
	{"serve", "serve the checker over HTTP", runServe},
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("sqltype: ")
	e := &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := run(os.Args[1:], e); err != nil {
		if err != errFailed {
			log.Print(err)
		}
		os.Exit(1)
	}
}

func run(args []string, e *env) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "-help" {
		usage(e.stdout)
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			err := cmd.run(args[1:], e)
			if err == flag.ErrHelp {
				return nil
			}
			return err
		}
	}
	usage(e.stderr)
	return errors.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: sqltype <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-6s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, "\nRun \"sqltype <command> -h\" for the flags of a command.\n")
}

// schemaFlags are the flags shared by every command.
type schemaFlags struct {
	path    string
	dialect string
}

func (sf *schemaFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.path, "schema", "", "schema file (default: nearest "+sqltype.SchemaFileName+")")
	fs.StringVar(&sf.dialect, "dialect", "mariadb", "dialect when the schema does not declare one: mariadb or postgres")
}

// load reads and parses the schema. Schema errors are rendered against the
// schema text on stderr.
func (sf *schemaFlags) load(stderr io.Writer) (*sqltype.Schema, string, error) {
	var opts sqltype.Options
	switch strings.ToLower(sf.dialect) {
	case "mariadb", "mysql":
		opts.Dialect = sqltype.MariaDB
	case "postgres", "postgresql":
		opts.Dialect = sqltype.PostgreSQL
	default:
		return nil, "", errors.Errorf("unknown dialect %q", sf.dialect)
	}

	path := sf.path
	if path == "" {
		var err error
		if path, err = sqltype.FindSchemaFile("."); err != nil {
			return nil, "", err
		}
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "cannot load schema")
	}
	schema, err := sqltype.ParseSchema(string(text), opts)
	if err != nil {
		fmt.Fprint(stderr, sqltype.Render(path, string(text), err))
		return nil, "", errFailed
	}
	return schema, path, nil
}

// parseFlags parses args into fs. The flag package has already reported
// bad flags by the time an error is returned.
func parseFlags(fs *flag.FlagSet, e *env, args []string) error {
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return errFailed
	}
	return nil
}
