// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package types defines the semantic SQL types assigned to query parameters and
result columns, and the rules for coercing and unifying them.

A Type is a base type: a kind plus the width and signedness of integers and
floats, the maximum length of text, or the members of an enum or set.
Nullability is orthogonal to the base type and is carried by Full.

Unknown is the type of a placeholder before any context has constrained it.
It must be resolved before a statement binding is finalised.
*/
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the kind of a base type.
type Kind int

const (
	Unknown Kind = iota
	Null
	Bool
	Int
	Float
	Text
	Bytes
	Date
	Time
	DateTime
	Timestamp
	Enum
	Set
	JSON
)

var kindNames = []string{
	Unknown:   "unknown",
	Null:      "null",
	Bool:      "bool",
	Int:       "int",
	Float:     "float",
	Text:      "text",
	Bytes:     "bytes",
	Date:      "date",
	Time:      "time",
	DateTime:  "datetime",
	Timestamp: "timestamp",
	Enum:      "enum",
	Set:       "set",
	JSON:      "json",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Type is a base SQL type. The zero value is Unknown.
type Type struct {
	Kind Kind
	// Width is the size in bits of an Int (8, 16, 32 or 64) or a Float (32
	// or 64).
	Width int
	// Unsigned is only meaningful for Int.
	Unsigned bool
	// MaxLen bounds the length of Text in characters. Zero means unbounded.
	MaxLen uint32
	// Values lists the members of an Enum or Set.
	Values []string
}

// Full is a base type together with its nullability.
type Full struct {
	Type
	Nullable bool
}

// Of returns the type of the given kind with no further attributes.
func Of(k Kind) Type {
	return Type{Kind: k}
}

// Integer returns an integer type of the given width.
func Integer(width int, unsigned bool) Type {
	return Type{Kind: Int, Width: width, Unsigned: unsigned}
}

// Floating returns a floating point type of the given width.
func Floating(width int) Type {
	return Type{Kind: Float, Width: width}
}

// TextOf returns a text type bounded to maxLen characters, or unbounded if
// maxLen is zero.
func TextOf(maxLen uint32) Type {
	return Type{Kind: Text, MaxLen: maxLen}
}

// EnumOf returns an enum type with the given members.
func EnumOf(values ...string) Type {
	return Type{Kind: Enum, Values: values}
}

// SetOf returns a set type with the given members.
func SetOf(values ...string) Type {
	return Type{Kind: Set, Values: values}
}

// NotNull returns t as a non-nullable Full.
func NotNull(t Type) Full {
	return Full{Type: t}
}

// Nullable returns t as a nullable Full.
func Nullable(t Type) Full {
	return Full{Type: t, Nullable: true}
}

// IsInteger reports whether t is an integer type.
func (t Type) IsInteger() bool {
	return t.Kind == Int
}

// IsNumeric reports whether t is an integer or floating point type.
func (t Type) IsNumeric() bool {
	return t.Kind == Int || t.Kind == Float
}

// IsTemporal reports whether t is a date or time type.
func (t Type) IsTemporal() bool {
	switch t.Kind {
	case Date, Time, DateTime, Timestamp:
		return true
	}
	return false
}

// IsTextual reports whether values of t are carried as strings.
func (t Type) IsTextual() bool {
	switch t.Kind {
	case Text, Enum, Set, JSON:
		return true
	}
	return false
}

// Equal reports whether t and o are the same type.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Width != o.Width || t.Unsigned != o.Unsigned || t.MaxLen != o.MaxLen {
		return false
	}
	if len(t.Values) != len(o.Values) {
		return false
	}
	for i := range t.Values {
		if t.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.Kind {
	case Int:
		if t.Unsigned {
			return "u" + strconv.Itoa(t.Width)
		}
		return "i" + strconv.Itoa(t.Width)
	case Float:
		return "f" + strconv.Itoa(t.Width)
	case Text:
		if t.MaxLen > 0 {
			return fmt.Sprintf("text(%d)", t.MaxLen)
		}
		return "text"
	case Enum, Set:
		quoted := make([]string, len(t.Values))
		for i, v := range t.Values {
			quoted[i] = "'" + v + "'"
		}
		return t.Kind.String() + "(" + strings.Join(quoted, ",") + ")"
	}
	return t.Kind.String()
}

func (f Full) String() string {
	if f.Nullable && f.Kind != Null {
		return "nullable " + f.Type.String()
	}
	return f.Type.String()
}

// Range returns the smallest and largest value of an integer type as a
// sign/magnitude pair: the minimum is -minMag and the maximum is max.
func (t Type) Range() (minMag uint64, max uint64) {
	if t.Unsigned {
		if t.Width >= 64 {
			return 0, ^uint64(0)
		}
		return 0, 1<<uint(t.Width) - 1
	}
	return 1 << uint(t.Width-1), 1<<uint(t.Width-1) - 1
}

// Fits reports whether the integer with the given sign and magnitude is
// within the range of the integer type t.
func (t Type) Fits(neg bool, mag uint64) bool {
	minMag, max := t.Range()
	if neg {
		return mag <= minMag
	}
	return mag <= max
}

// MismatchError is returned when two types cannot be coerced or unified.
type MismatchError struct {
	From, To Type
	// Reason optionally qualifies the mismatch.
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("type mismatch: %s and %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("type mismatch: %s and %s", e.From, e.To)
}
