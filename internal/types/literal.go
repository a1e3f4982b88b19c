// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package types

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// LiteralKind is the syntactic class of a literal value.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitInt
	LitFloat
	LitString
	LitBool
	LitBytes
)

// Literal is a constant value written in the query text. Integers are kept as
// a sign and a 64 bit magnitude so that both the full signed and the full
// unsigned 64 bit ranges can be checked before any narrowing.
type Literal struct {
	Kind  LiteralKind
	Neg   bool
	Mag   uint64
	Float float64
	Str   string
	Bool  bool
}

// Negate returns the literal with its sign flipped. Only numeric literals
// change.
func (l Literal) Negate() Literal {
	switch l.Kind {
	case LitInt:
		if l.Mag != 0 {
			l.Neg = !l.Neg
		}
	case LitFloat:
		l.Float = -l.Float
	}
	return l
}

// Natural returns the type a literal has with no context: the smallest signed
// integer that holds it, f64, text, bytes, bool or null.
func (l Literal) Natural() Type {
	switch l.Kind {
	case LitInt:
		for _, w := range []int{8, 16, 32, 64} {
			if t := Integer(w, false); t.Fits(l.Neg, l.Mag) {
				return t
			}
		}
		return Integer(64, true)
	case LitFloat:
		return Floating(64)
	case LitString:
		return TextOf(0)
	case LitBool:
		return Of(Bool)
	case LitBytes:
		return Of(Bytes)
	}
	return Of(Null)
}

var (
	dateLayouts     = []string{"2006-01-02"}
	dateTimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02"}
	timeRx          = regexp.MustCompile(`^-?\d{1,3}:\d{2}(:\d{2}(\.\d{1,6})?)?$`)
)

func parsesAs(s string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// WidenForLiteral checks that the literal can be stored in a value of the
// target type, including integer range and text length, and returns the type
// the literal takes in that context.
func WidenForLiteral(l Literal, target Type) (Type, error) {
	mismatch := func(reason string) (Type, error) {
		return Type{}, &MismatchError{From: l.Natural(), To: target, Reason: reason}
	}
	if target.Kind == Unknown {
		return l.Natural(), nil
	}
	if l.Kind == LitNull || target.Kind == Null {
		return target, nil
	}
	switch l.Kind {
	case LitInt:
		switch target.Kind {
		case Int:
			if !target.Fits(l.Neg, l.Mag) {
				return mismatch("literal " + l.String() + " out of range")
			}
			return target, nil
		case Float:
			return target, nil
		case Bool:
			if l.Neg || l.Mag > 1 {
				return mismatch("only 0 and 1 can be used as booleans")
			}
			return target, nil
		}
	case LitFloat:
		switch target.Kind {
		case Float:
			if target.Width == 32 && math.Abs(l.Float) > math.MaxFloat32 {
				return mismatch("literal out of range")
			}
			return target, nil
		case Int:
			return mismatch("cannot use a floating point literal as an integer")
		}
	case LitBool:
		switch target.Kind {
		case Bool, Int:
			return target, nil
		}
	case LitBytes:
		switch target.Kind {
		case Bytes, Text:
			return target, nil
		}
	case LitString:
		return widenString(l.Str, target, mismatch)
	}
	return mismatch("")
}

func widenString(s string, target Type, mismatch func(string) (Type, error)) (Type, error) {
	switch target.Kind {
	case Text:
		if target.MaxLen > 0 && uint32(utf8.RuneCountInString(s)) > target.MaxLen {
			return mismatch("string literal longer than column")
		}
		return target, nil
	case Bytes:
		return target, nil
	case Enum:
		if !member(s, target.Values) {
			return mismatch("'" + s + "' is not a member")
		}
		return target, nil
	case Set:
		if s == "" {
			return target, nil
		}
		for _, item := range strings.Split(s, ",") {
			if !member(item, target.Values) {
				return mismatch("'" + item + "' is not a member")
			}
		}
		return target, nil
	case JSON:
		if !json.Valid([]byte(s)) {
			return mismatch("invalid JSON literal")
		}
		return target, nil
	case Date:
		if !parsesAs(s, dateLayouts) {
			return mismatch("invalid date literal")
		}
		return target, nil
	case DateTime, Timestamp:
		if !parsesAs(s, dateTimeLayouts) {
			return mismatch("invalid datetime literal")
		}
		return target, nil
	case Time:
		if !timeRx.MatchString(s) {
			return mismatch("invalid time literal")
		}
		return target, nil
	}
	return mismatch("")
}

func member(s string, values []string) bool {
	for _, v := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		s := strconv.FormatUint(l.Mag, 10)
		if l.Neg {
			return "-" + s
		}
		return s
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitString:
		return "'" + l.Str + "'"
	case LitBool:
		if l.Bool {
			return "TRUE"
		}
		return "FALSE"
	case LitBytes:
		return "x'" + l.Str + "'"
	}
	return "NULL"
}
