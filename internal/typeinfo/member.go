// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/types"
)

// Column is a result column of a checked statement.
type Column struct {
	Name string
	Type types.Full
}

// Output is a locator for the Go value in the output arguments that a
// result column is scanned into.
type Output interface {
	ArgType() reflect.Type
	String() string
	// LocateScanTarget locates the output argument associated with this
	// Output in typeToValue and returns a pointer to the Go value within the
	// output argument for rows.Scan, along with a ScanProxy for the cases
	// where the output argument cannot be scanned into directly.
	//
	// rows.Scan will return an error if it tries to scan NULL into a type
	// that cannot be set to nil, so for types that are not a pointer and do
	// not implement sql.Scanner, a pointer to them is generated and passed to
	// rows.Scan. If Scan has set this pointer to nil the value is zeroed by
	// ScanProxy.OnSuccess.
	LocateScanTarget(typeToValue TypeToValue) (any, *ScanProxy, error)
}

// mapKey specifies at which key to store a value in a particular map.
type mapKey struct {
	name    string
	mapType reflect.Type
}

// ArgType returns the type of the map the key is located in.
func (mk *mapKey) ArgType() reflect.Type {
	return mk.mapType
}

// String returns a natural language description of the mapKey for use in error
// messages.
func (mk *mapKey) String() string {
	return "key \"" + mk.name + "\" of map \"" + mk.mapType.Name() + "\""
}

// LocateScanTarget returns a pointer to pass to rows.Scan, and a ScanProxy
// for setting the key in the map once the pointer has been scanned into.
func (mk *mapKey) LocateScanTarget(typeToValue TypeToValue) (any, *ScanProxy, error) {
	m, ok := typeToValue[mk.mapType]
	if !ok {
		return nil, nil, valueNotFoundError(typeToValue, mk.mapType)
	}
	if m.IsNil() {
		return nil, nil, errors.Errorf("map %q is nil", mk.mapType.Name())
	}
	scanVal := reflect.New(mk.mapType.Elem()).Elem()
	return scanVal.Addr().Interface(), &ScanProxy{original: m, scan: scanVal, key: reflect.ValueOf(mk.name)}, nil
}

// structField represents reflection information about a field of a
// particular struct type.
type structField struct {
	// name is the member name within the struct.
	name string

	// structType is the reflected type of the struct containing this field.
	structType reflect.Type

	// index for Type.Field.
	index int

	// tag is the struct tag associated with this field.
	tag string

	fieldType reflect.Type
}

// ArgType returns the type of the struct this field is located in.
func (f *structField) ArgType() reflect.Type {
	return f.structType
}

// String returns a natural language description of the struct field for use
// in error messages.
func (f *structField) String() string {
	return "tag \"" + f.tag + "\" of struct \"" + f.structType.Name() + "\""
}

// LocateScanTarget locates the struct containing the field and returns a
// pointer for the target of rows.Scan.
func (f *structField) LocateScanTarget(typeToValue TypeToValue) (any, *ScanProxy, error) {
	s, ok := typeToValue[f.structType]
	if !ok {
		return nil, nil, valueNotFoundError(typeToValue, f.structType)
	}
	val := s.Field(f.index)
	if !val.CanSet() {
		return nil, nil, errors.Errorf("internal error: cannot set field %s of struct %s", f.name, f.structType.Name())
	}
	ptr, proxy := scanTarget(val)
	return ptr, proxy, nil
}

// scanTarget returns the pointer to pass to rows.Scan for the settable value
// val.
func scanTarget(val reflect.Value) (any, *ScanProxy) {
	pt := reflect.PointerTo(val.Type())
	if val.Kind() != reflect.Pointer && val.Kind() != reflect.Interface && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}
	}
	return val.Addr().Interface(), nil
}

// MatchOutputs returns the output locator of each column. A column is
// scanned into the first struct in order with a field tagged with the column
// name, or else into the map argument, if there is one. Every column must
// have a target and every struct must receive at least one column.
func MatchOutputs(columns []Column, typeToValue TypeToValue, order []reflect.Type) ([]Output, error) {
	var mapType reflect.Type
	var structs []*structInfo
	for _, t := range order {
		switch t.Kind() {
		case reflect.Map:
			if mapType != nil {
				return nil, errors.Errorf("found multiple map types: %q and %q", mapType.Name(), t.Name())
			}
			if t.Key().Kind() != reflect.String {
				return nil, errors.Errorf("map type %s must have key type string, found type %s", t.Name(), t.Key().Kind())
			}
			mapType = t
		case reflect.Struct:
			info, err := getStructInfo(t)
			if err != nil {
				return nil, err
			}
			structs = append(structs, info)
		}
	}

	used := map[reflect.Type]bool{}
	outputs := make([]Output, 0, len(columns))
	for _, col := range columns {
		var out Output
		for _, si := range structs {
			if f, ok := si.field(col.Name); ok {
				if err := ScanCompatible(f.fieldType, col.Type); err != nil {
					return nil, errors.Wrapf(err, "column %q into field %s.%s", col.Name, si.structType.Name(), f.name)
				}
				out = f
				break
			}
		}
		if out == nil && mapType != nil {
			if err := ScanCompatible(mapType.Elem(), col.Type); err != nil {
				return nil, errors.Wrapf(err, "column %q into map %s", col.Name, mapType.Name())
			}
			out = &mapKey{name: col.Name, mapType: mapType}
		}
		if out == nil {
			return nil, errors.Errorf("column %q not found in any output argument", col.Name)
		}
		used[out.ArgType()] = true
		outputs = append(outputs, out)
	}
	for _, si := range structs {
		if !used[si.structType] {
			return nil, errors.Errorf("no column of the query matches a db tag of %q", si.structType.Name())
		}
	}
	return outputs, nil
}

// ScanTarget returns the pointer to pass to rows.Scan for an output argument
// given as a pointer to the value the column is scanned into.
func ScanTarget(arg any, col Column) (any, *ScanProxy, error) {
	v := reflect.ValueOf(arg)
	if isInvalidNil(v) || v.Kind() != reflect.Pointer {
		return nil, nil, errors.Errorf("need pointer for column %q, got %s", col.Name, v.Kind())
	}
	elem := v.Elem()
	if err := ScanCompatible(elem.Type(), col.Type); err != nil {
		return nil, nil, errors.Wrapf(err, "column %q", col.Name)
	}
	ptr, proxy := scanTarget(elem)
	return ptr, proxy, nil
}

// valueNotFoundError returns an error naming the missing argument type and
// the argument types present.
func valueNotFoundError(typeToValue TypeToValue, missingType reflect.Type) error {
	argNames := []string{}
	for argType := range typeToValue {
		if argType.Name() == missingType.Name() {
			return errors.Errorf("parameter with type %q missing, have type with same name: %q", missingType.String(), argType.String())
		}
		argNames = append(argNames, argType.Name())
	}
	// Sort for consistent error messages.
	sort.Strings(argNames)
	if len(argNames) == 0 {
		return errors.Errorf("parameter with type %q missing", missingType.Name())
	}
	return errors.Errorf("parameter with type %q missing (have %q)", missingType.Name(), argNames)
}
