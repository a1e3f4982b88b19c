// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/canonical/sqltype"
)

const (
	prompt         = "sqltype> "
	continuePrompt = "      -> "
)

const replHelp = `Enter a query terminated by ; to check it.
  \d          list the tables of the schema
  \d <table>  describe a table
  \h          show this help
  \q          quit
`

// repl checks the queries typed into it one line at a time.
type repl struct {
	schema      *sqltype.Schema
	out, errOut io.Writer
	buf         strings.Builder
	n           int
}

func runREPL(args []string, e *env) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	var sf schemaFlags
	sf.register(fs)
	history := fs.String("history", defaultHistoryFile(), "history `file`, empty for none")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	schema, path, err := sf.load(e.stderr)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     *history,
		InterruptPrompt: "^C",
		EOFPrompt:       `\q`,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	r := &repl{schema: schema, out: rl.Stdout(), errOut: rl.Stderr()}
	fmt.Fprintf(r.out, "Checking against %s (%d tables, %s). Type \\h for help.\n", path, len(schema.Tables()), schema.Dialect())
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if r.buf.Len() == 0 && line == "" {
				return nil
			}
			r.buf.Reset()
			rl.SetPrompt(prompt)
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if !r.line(line) {
			return nil
		}
		if r.buf.Len() > 0 {
			rl.SetPrompt(continuePrompt)
		} else {
			rl.SetPrompt(prompt)
		}
	}
}

func defaultHistoryFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sqltype_history")
}

// line handles a line of input and reports whether the session continues.
func (r *repl) line(line string) bool {
	trimmed := strings.TrimSpace(line)
	if r.buf.Len() == 0 && strings.HasPrefix(trimmed, `\`) {
		return r.command(trimmed)
	}
	if trimmed == "" && r.buf.Len() == 0 {
		return true
	}
	if r.buf.Len() > 0 {
		r.buf.WriteByte('\n')
	}
	r.buf.WriteString(line)
	if strings.HasSuffix(trimmed, ";") {
		text := r.buf.String()
		r.buf.Reset()
		r.check(text)
	}
	return true
}

func (r *repl) command(cmd string) bool {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case `\q`:
		return false
	case `\h`, `\?`:
		fmt.Fprint(r.out, replHelp)
	case `\d`:
		if arg == "" {
			writeTables(r.out, r.schema.Tables())
			break
		}
		t := r.schema.Table(arg)
		if t == nil {
			fmt.Fprintf(r.errOut, "no table %q\n", arg)
			break
		}
		writeTables(r.out, []*sqltype.Table{t})
	default:
		fmt.Fprintf(r.errOut, "unknown command %s, type \\h for help\n", name)
	}
	return true
}

func (r *repl) check(text string) {
	r.n++
	stmt, err := r.schema.Prepare(text)
	if err != nil {
		fmt.Fprint(r.errOut, sqltype.Render(fmt.Sprintf("query %d", r.n), text, err))
		return
	}
	writeStatement(r.out, stmt)
}
