// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"github.com/canonical/sqltype/internal/check"
	"github.com/canonical/sqltype/internal/types"
)

// Type is the semantic type of a value: a kind with its width, signedness,
// length or members.
type Type = types.Type

// FullType is a Type together with whether it admits NULL.
type FullType = types.Full

// TypeKind is the kind of a Type.
type TypeKind = types.Kind

const (
	BoolKind      = types.Bool
	IntKind       = types.Int
	FloatKind     = types.Float
	TextKind      = types.Text
	BytesKind     = types.Bytes
	DateKind      = types.Date
	TimeKind      = types.Time
	DateTimeKind  = types.DateTime
	TimestampKind = types.Timestamp
	EnumKind      = types.Enum
	SetKind       = types.Set
	JSONKind      = types.JSON
)

// Constructors of types, for use in function signatures.
var (
	TypeOf   = types.Of
	Integer  = types.Integer
	Floating = types.Floating
	TextOf   = types.TextOf
	NotNull  = types.NotNull
	Nullable = types.Nullable
)

// Param is a parameter slot of a statement. Column is a result column.
type (
	Param  = check.Param
	Column = check.Column
)

// Registry maps upper case function names to their signatures. Function
// and FunctionArg describe a signature.
type (
	Registry    = check.Registry
	Function    = check.Function
	FunctionArg = check.Arg
)

// DefaultFunctions returns the built in functions of the dialect.
func DefaultFunctions(dialect Dialect) Registry {
	return check.DefaultFunctions(dialect)
}
