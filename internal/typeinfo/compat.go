// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/types"
)

var (
	scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerInterface  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType         = reflect.TypeOf(time.Time{})
	bytesType        = reflect.TypeOf([]byte(nil))
)

// integerType returns the semantic type of a Go integer kind.
func integerType(k reflect.Kind) (types.Type, bool) {
	switch k {
	case reflect.Int8:
		return types.Integer(8, false), true
	case reflect.Int16:
		return types.Integer(16, false), true
	case reflect.Int32:
		return types.Integer(32, false), true
	case reflect.Int64, reflect.Int:
		return types.Integer(64, false), true
	case reflect.Uint8:
		return types.Integer(8, true), true
	case reflect.Uint16:
		return types.Integer(16, true), true
	case reflect.Uint32:
		return types.Integer(32, true), true
	case reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return types.Integer(64, true), true
	}
	return types.Type{}, false
}

// holds reports whether every value of the integer type t is in the range
// of the integer type g.
func holds(g, t types.Type) bool {
	tMin, tMax := t.Range()
	gMin, gMax := g.Range()
	return tMin <= gMin && tMax <= gMax
}

func isAny(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.NumMethod() == 0
}

// ScanCompatible reports whether a result column of type f may be scanned
// into a Go value of type t. Nullable columns need a target that can hold
// NULL: a pointer, an sql.Scanner or an interface.
func ScanCompatible(t reflect.Type, f types.Full) error {
	switch {
	case isAny(t), reflect.PointerTo(t).Implements(scannerInterface):
		return nil
	case t.Kind() == reflect.Pointer:
		return baseCompatible(t.Elem(), f.Type)
	case f.Nullable:
		return errors.Errorf("cannot scan nullable %s into %s, need a pointer", f.Type, t)
	}
	return baseCompatible(t, f.Type)
}

// baseCompatible reports whether a Go type can represent every value of the
// semantic type t.
func baseCompatible(gt reflect.Type, t types.Type) error {
	if isAny(gt) || reflect.PointerTo(gt).Implements(scannerInterface) {
		return nil
	}
	ok := false
	k := gt.Kind()
	switch t.Kind {
	case types.Null:
		ok = true
	case types.Bool:
		_, isInt := integerType(k)
		ok = k == reflect.Bool || isInt
	case types.Int:
		if g, isInt := integerType(k); isInt {
			ok = holds(g, t)
		} else if k == reflect.Float64 {
			ok = t.Width <= 32
		}
	case types.Float:
		ok = k == reflect.Float64 || (k == reflect.Float32 && t.Width == 32)
	case types.Text, types.Enum, types.Set, types.JSON, types.Bytes:
		ok = k == reflect.String || k == reflect.Slice && gt.Elem().Kind() == reflect.Uint8
	case types.Date, types.DateTime, types.Timestamp:
		ok = gt == timeType
	case types.Time:
		ok = gt == timeType || k == reflect.String
	}
	if !ok {
		return errors.Errorf("cannot use %s for %s", gt, t)
	}
	return nil
}

// CheckValue reports whether the Go value v may be passed for a parameter
// of type f. Integers are checked against the range of the parameter and
// strings against its length and members.
func CheckValue(v any, f types.Full) error {
	if v == nil {
		if !f.Nullable {
			return errors.Errorf("cannot pass nil for non-nullable %s", f.Type)
		}
		return nil
	}
	if _, ok := v.(driver.Valuer); ok {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			if !f.Nullable {
				return errors.Errorf("cannot pass nil %s for non-nullable %s", rv.Type(), f.Type)
			}
			return nil
		}
		if rv.Type().Implements(valuerInterface) {
			return nil
		}
		rv = rv.Elem()
	}
	return checkBase(rv, f.Type)
}

func checkBase(rv reflect.Value, t types.Type) error {
	k := rv.Kind()
	if g, isInt := integerType(k); isInt && (t.Kind == types.Int || t.Kind == types.Bool) {
		if t.Kind == types.Bool {
			return nil
		}
		var neg bool
		var mag uint64
		if g.Unsigned {
			mag = rv.Uint()
		} else if n := rv.Int(); n < 0 {
			neg, mag = true, uint64(-(n+1))+1
		} else {
			mag = uint64(n)
		}
		if !t.Fits(neg, mag) {
			return errors.Errorf("value %v out of range for %s", rv.Interface(), t)
		}
		return nil
	}
	if k == reflect.String {
		s := rv.String()
		switch t.Kind {
		case types.Text:
			if t.MaxLen > 0 && utf8.RuneCountInString(s) > int(t.MaxLen) {
				return errors.Errorf("string of length %d is longer than %s", utf8.RuneCountInString(s), t)
			}
			return nil
		case types.Enum, types.Set, types.Date, types.DateTime, types.Timestamp, types.Time:
			if _, err := types.WidenForLiteral(types.Literal{Kind: types.LitString, Str: s}, t); err != nil {
				return errors.Errorf("%q is not a valid %s", s, t)
			}
			return nil
		case types.JSON, types.Bytes:
			return nil
		}
	}
	switch t.Kind {
	case types.Float:
		if _, isInt := integerType(k); isInt || k == reflect.Float32 || k == reflect.Float64 {
			return nil
		}
	case types.Text, types.JSON:
		if rv.Type() == bytesType {
			return nil
		}
	case types.Bool:
		if k == reflect.Bool {
			return nil
		}
	case types.Int:
		if k == reflect.Float32 || k == reflect.Float64 {
			return errors.Errorf("cannot use %s for %s", rv.Type(), t)
		}
	}
	return baseCompatible(rv.Type(), t)
}
