// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package diag holds the located diagnostics shared by the schema parser, the
// query parser and the type checker.
package diag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies a diagnostic.
type Kind int

const (
	// Schema errors.
	DuplicateTable Kind = iota + 1
	UnknownTableForAlter
	UnknownColumnForAlter
	MalformedDDL

	// Parse errors.
	UnexpectedToken
	UnterminatedLiteral
	UnsupportedConstruct

	// Type errors.
	UnknownTable
	UnknownColumn
	AmbiguousColumn
	TypeMismatch
	AmbiguousPlaceholder
	NullIntoNotNull
	ArityMismatch
	UnsupportedFunctionSignature

	// ArgumentMismatch is reported when call-site arguments do not match the
	// parameters of a checked statement.
	ArgumentMismatch

	// Internal means a checker invariant was violated.
	Internal
)

var kindNames = map[Kind]string{
	DuplicateTable:               "DuplicateTable",
	UnknownTableForAlter:         "UnknownTableForAlter",
	UnknownColumnForAlter:        "UnknownColumnForAlter",
	MalformedDDL:                 "MalformedDDL",
	UnexpectedToken:              "UnexpectedToken",
	UnterminatedLiteral:          "UnterminatedLiteral",
	UnsupportedConstruct:         "UnsupportedConstruct",
	UnknownTable:                 "UnknownTable",
	UnknownColumn:                "UnknownColumn",
	AmbiguousColumn:              "AmbiguousColumn",
	TypeMismatch:                 "TypeMismatch",
	AmbiguousPlaceholder:         "AmbiguousPlaceholder",
	NullIntoNotNull:              "NullIntoNotNull",
	ArityMismatch:                "ArityMismatch",
	UnsupportedFunctionSignature: "UnsupportedFunctionSignature",
	ArgumentMismatch:             "ArgumentMismatch",
	Internal:                     "Internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Category returns the family the kind belongs to: "schema", "parse", "type",
// "argument" or "internal".
func (k Kind) Category() string {
	switch {
	case k >= DuplicateTable && k <= MalformedDDL:
		return "schema"
	case k >= UnexpectedToken && k <= UnsupportedConstruct:
		return "parse"
	case k >= UnknownTable && k <= UnsupportedFunctionSignature:
		return "type"
	case k == ArgumentMismatch:
		return "argument"
	}
	return "internal"
}

// Span is a half open byte range [Start, End) in the source text.
type Span struct {
	Start, End int
}

// Join returns the smallest span covering both s and o.
func (s Span) Join(o Span) Span {
	if o.Start < s.Start {
		s.Start = o.Start
	}
	if o.End > s.End {
		s.End = o.End
	}
	return s
}

// Error is a located diagnostic. Line and Column are 1-based and are zero
// until the error has been located in its source with Locate.
type Error struct {
	Kind   Kind
	Msg    string
	Span   Span
	Line   int
	Column int
	// multiline is set by Locate when the source spans more than one line.
	multiline bool
}

// Errorf returns a new diagnostic of the given kind at span.
func Errorf(kind Kind, span Span, format string, args ...any) *Error {
	return &Error{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Line == 0:
		return e.Msg
	case e.multiline:
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
	default:
		return fmt.Sprintf("column %d: %s", e.Column, e.Msg)
	}
}

// Locate fills in the line and column of the error from its span start and
// returns the error.
func (e *Error) Locate(source string) *Error {
	e.Line, e.Column = Position(source, e.Span.Start)
	e.multiline = strings.ContainsRune(source, '\n')
	return e
}

// Position converts a byte offset in source to a 1-based line and column.
// Columns count runes, not bytes.
func Position(source string, offset int) (line, column int) {
	if offset > len(source) {
		offset = len(source)
	}
	if offset < 0 {
		offset = 0
	}
	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if source[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, utf8.RuneCountInString(source[lineStart:offset]) + 1
}

// Render returns a report in the style of a compiler diagnostic: a header
// with the kind and location, the offending source line and a caret run
// under the span.
func Render(name, source string, e *Error) string {
	line, col := Position(source, e.Span.Start)
	lines := strings.Split(source, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "error[%s]: %s\n", e.Kind, e.Msg)
	fmt.Fprintf(&b, "  --> %s:%d:%d\n", name, line, col)
	if line-1 >= len(lines) {
		return b.String()
	}
	text := lines[line-1]
	gutter := fmt.Sprintf("%d", line)
	pad := strings.Repeat(" ", len(gutter))
	fmt.Fprintf(&b, "%s |\n", pad)
	fmt.Fprintf(&b, "%s | %s\n", gutter, text)

	width := 1
	if e.Span.End > e.Span.Start {
		end := e.Span.End
		start := e.Span.Start
		if start > len(source) {
			start = len(source)
		}
		lineEnd := strings.LastIndex(source[:start], "\n") + 1 + len(text)
		if end > lineEnd {
			end = lineEnd
		}
		if end > e.Span.Start && end <= len(source) {
			width = utf8.RuneCountInString(source[e.Span.Start:end])
		}
	}
	if width < 1 {
		width = 1
	}
	fmt.Fprintf(&b, "%s | %s%s\n", pad, strings.Repeat(" ", col-1), strings.Repeat("^", width))
	return b.String()
}
