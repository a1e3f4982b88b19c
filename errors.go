// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/diag"
)

// Error is a located diagnostic. Use errors.As to get the Error of a
// failed Prepare, ParseSchema or Query.
type Error = diag.Error

// ErrorKind classifies an Error.
type ErrorKind = diag.Kind

const (
	DuplicateTable        = diag.DuplicateTable
	UnknownTableForAlter  = diag.UnknownTableForAlter
	UnknownColumnForAlter = diag.UnknownColumnForAlter
	MalformedDDL          = diag.MalformedDDL

	UnexpectedToken      = diag.UnexpectedToken
	UnterminatedLiteral  = diag.UnterminatedLiteral
	UnsupportedConstruct = diag.UnsupportedConstruct

	UnknownTable                 = diag.UnknownTable
	UnknownColumn                = diag.UnknownColumn
	AmbiguousColumn              = diag.AmbiguousColumn
	TypeMismatch                 = diag.TypeMismatch
	AmbiguousPlaceholder         = diag.AmbiguousPlaceholder
	NullIntoNotNull              = diag.NullIntoNotNull
	ArityMismatch                = diag.ArityMismatch
	UnsupportedFunctionSignature = diag.UnsupportedFunctionSignature

	ArgumentMismatch = diag.ArgumentMismatch
	Internal         = diag.Internal
)

// Span is a byte range of schema or query text.
type Span = diag.Span

// Render returns a report of err in the style of a compiler diagnostic,
// pointing at the offending part of source. Errors that are not located
// diagnostics are rendered as their message.
func Render(name, source string, err error) string {
	var e *diag.Error
	if !errors.As(err, &e) {
		return err.Error() + "\n"
	}
	return diag.Render(name, source, e)
}
