// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"
)

type TypeToValue = map[reflect.Type]reflect.Value

// ValidateOutputs takes the raw output arguments from the user and uses
// reflection to check that they are valid. It returns a TypeToValue
// containing the reflect.Value of the output arguments and their types in
// argument order.
func ValidateOutputs(args []any) (TypeToValue, []reflect.Type, error) {
	typeToValue := TypeToValue{}
	var order []reflect.Type
	for _, arg := range args {
		v := reflect.ValueOf(arg)
		if isInvalidNil(v) {
			return nil, nil, errors.New("need map or pointer to struct, got nil")
		}
		k := v.Kind()
		if k != reflect.Map && k != reflect.Pointer {
			return nil, nil, errors.Errorf("need map or pointer to struct, got %s", k)
		}
		if k == reflect.Pointer {
			v = v.Elem()
			k = v.Kind()
			if k != reflect.Struct && k != reflect.Map {
				return nil, nil, errors.Errorf("need map or pointer to struct, got pointer to %s", k)
			}
		}
		t := v.Type()
		if t.Name() == "" && k == reflect.Struct {
			return nil, nil, errors.Errorf("cannot use anonymous %s", k)
		}
		if _, ok := typeToValue[t]; ok {
			return nil, nil, errors.Errorf("type %q provided more than once", t.Name())
		}
		typeToValue[t] = v
		order = append(order, t)
	}
	return typeToValue, order, nil
}

// IsPositional reports whether the output arguments are pointers to single
// values, scanned into in column order, rather than structs and maps.
func IsPositional(args []any) bool {
	if len(args) == 0 {
		return false
	}
	for _, arg := range args {
		v := reflect.ValueOf(arg)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return false
		}
		elem := v.Elem().Type()
		switch {
		case elem.Kind() == reflect.Map:
			return false
		case elem.Kind() == reflect.Struct && elem != timeType && !reflect.PointerTo(elem).Implements(scannerInterface):
			return false
		}
	}
	return true
}

func isInvalidNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map:
		return v.IsNil()
	}
	return false
}
