// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqltype/internal/types"
)

func TestStructInfoConcurrent(t *testing.T) {
	type mystruct struct {
		ID int `db:"id"`
	}
	wg := sync.WaitGroup{}

	// Set up some concurrent access.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			_, _ = getStructInfo(reflect.TypeOf(mystruct{}))
			wg.Done()
		}()
	}

	info, err := getStructInfo(reflect.TypeOf(mystruct{}))
	assert.Nil(t, err)
	assert.Equal(t, "mystruct", info.structType.Name())
	assert.Equal(t, []string{"id"}, info.tags)

	wg.Wait()
}

func TestStructInfo(t *testing.T) {
	type something struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		Created *time.Time `db:"created_at"`
		NotInDB string
	}

	info, err := getStructInfo(reflect.TypeOf(something{}))
	assert.Nil(t, err)
	assert.Equal(t, []string{"created_at", "id", "name"}, info.tags)

	id, ok := info.field("id")
	assert.True(t, ok)
	assert.Equal(t, "ID", id.name)
	assert.Equal(t, 0, id.index)
	assert.Equal(t, reflect.TypeOf(int64(0)), id.fieldType)

	name, ok := info.field("NAME")
	assert.True(t, ok)
	assert.Equal(t, "Name", name.name)

	_, ok = info.field("NotInDB")
	assert.False(t, ok)

	tags, err := Tags(reflect.TypeOf(something{}))
	assert.Nil(t, err)
	assert.Equal(t, info.tags, tags)
}

func TestStructInfoErrors(t *testing.T) {
	type unexported struct {
		id int `db:"id"`
	}
	type flags struct {
		ID int `db:"id,omitempty"`
	}
	type invalid struct {
		ID int `db:"id$"`
	}
	type twice struct {
		A int `db:"a"`
		B int `db:"a"`
	}
	tests := []struct {
		typ reflect.Type
		err string
	}{
		{reflect.TypeOf(unexported{}), `field "id" of struct unexported not exported`},
		{reflect.TypeOf(flags{}), `cannot parse tag for field flags.ID: unsupported flag "omitempty" in tag "id,omitempty"`},
		{reflect.TypeOf(invalid{}), `cannot parse tag for field invalid.ID: invalid column name in 'db' tag: "id$"`},
		{reflect.TypeOf(twice{}), `db tag "a" appears more than once in struct twice`},
		{reflect.TypeOf(0), `internal error: cannot obtain type information for non-struct type int`},
	}
	for _, test := range tests {
		_, err := getStructInfo(test.typ)
		assert.EqualError(t, err, test.err)
	}
	_ = unexported{}.id
}

type nullInt sql.NullInt64

func TestScanCompatible(t *testing.T) {
	i8 := types.Integer(8, false)
	u8 := types.Integer(8, true)
	i32 := types.Integer(32, false)
	u32 := types.Integer(32, true)
	u64 := types.Integer(64, true)
	var (
		intT     = reflect.TypeOf(0)
		int16T   = reflect.TypeOf(int16(0))
		uint8T   = reflect.TypeOf(uint8(0))
		uint64T  = reflect.TypeOf(uint64(0))
		float32T = reflect.TypeOf(float32(0))
		float64T = reflect.TypeOf(float64(0))
		stringT  = reflect.TypeOf("")
		boolT    = reflect.TypeOf(false)
		anyT     = reflect.TypeOf((*any)(nil)).Elem()
	)
	tests := []struct {
		typ  reflect.Type
		full types.Full
		err  string
	}{
		{intT, types.NotNull(i32), ""},
		{int16T, types.NotNull(i8), ""},
		{int16T, types.NotNull(u8), ""},
		{uint8T, types.NotNull(u8), ""},
		{uint8T, types.NotNull(i8), "cannot use uint8 for i8"},
		{int16T, types.NotNull(i32), "cannot use int16 for i32"},
		{intT, types.NotNull(u64), "cannot use int for u64"},
		{uint64T, types.NotNull(u64), ""},
		{intT, types.NotNull(u32), ""},
		{float64T, types.NotNull(i32), ""},
		{float64T, types.NotNull(types.Floating(32)), ""},
		{float32T, types.NotNull(types.Floating(64)), "cannot use float32 for f64"},
		{stringT, types.NotNull(types.TextOf(10)), ""},
		{reflect.TypeOf([]byte(nil)), types.NotNull(types.Of(types.Bytes)), ""},
		{stringT, types.NotNull(types.EnumOf("a", "b")), ""},
		{boolT, types.NotNull(types.Of(types.Bool)), ""},
		{boolT, types.NotNull(i32), "cannot use bool for i32"},
		{reflect.TypeOf(time.Time{}), types.NotNull(types.Of(types.DateTime)), ""},
		{stringT, types.NotNull(types.Of(types.Date)), "cannot use string for date"},
		{intT, types.Nullable(i32), "cannot scan nullable i32 into int, need a pointer"},
		{reflect.PointerTo(intT), types.Nullable(i32), ""},
		{reflect.PointerTo(stringT), types.Nullable(i32), "cannot use string for i32"},
		{reflect.TypeOf(sql.NullInt64{}), types.Nullable(i32), ""},
		{reflect.TypeOf(sql.NullString{}), types.Nullable(i32), ""},
		{anyT, types.Nullable(types.TextOf(0)), ""},
		{reflect.TypeOf(nullInt{}), types.NotNull(i32), "cannot use typeinfo.nullInt for i32"},
	}
	for _, test := range tests {
		err := ScanCompatible(test.typ, test.full)
		if test.err == "" {
			assert.Nil(t, err, "%s into %s", test.full, test.typ)
		} else {
			assert.EqualError(t, err, test.err, "%s into %s", test.full, test.typ)
		}
	}
}

func TestCheckValue(t *testing.T) {
	u8 := types.Integer(8, true)
	i64 := types.Integer(64, false)
	name := "fred"
	var nilPtr *int
	tests := []struct {
		value any
		full  types.Full
		err   string
	}{
		{200, types.NotNull(u8), ""},
		{300, types.NotNull(u8), "value 300 out of range for u8"},
		{-1, types.NotNull(u8), "value -1 out of range for u8"},
		{uint64(1) << 63, types.NotNull(i64), "value 9223372036854775808 out of range for i64"},
		{int64(-1) << 63, types.NotNull(i64), ""},
		{uint8(7), types.NotNull(i64), ""},
		{1, types.NotNull(types.Of(types.Bool)), ""},
		{true, types.NotNull(types.Of(types.Bool)), ""},
		{true, types.NotNull(i64), "cannot use bool for i64"},
		{"x", types.NotNull(i64), "cannot use string for i64"},
		{1.5, types.NotNull(types.Floating(64)), ""},
		{3, types.NotNull(types.Floating(64)), ""},
		{1.5, types.NotNull(types.Integer(32, false)), "cannot use float64 for i32"},
		{float32(2), types.NotNull(u8), "cannot use float32 for u8"},
		{"hello", types.NotNull(types.TextOf(5)), ""},
		{"hello!", types.NotNull(types.TextOf(5)), "string of length 6 is longer than text(5)"},
		{&name, types.NotNull(types.TextOf(0)), ""},
		{[]byte("x"), types.NotNull(types.TextOf(0)), ""},
		{"b", types.NotNull(types.EnumOf("a", "b")), ""},
		{"c", types.NotNull(types.EnumOf("a", "b")), `"c" is not a valid enum('a','b')`},
		{"2024-01-02", types.NotNull(types.Of(types.Date)), ""},
		{"yesterday", types.NotNull(types.Of(types.Date)), `"yesterday" is not a valid date`},
		{time.Now(), types.NotNull(types.Of(types.DateTime)), ""},
		{nil, types.Nullable(i64), ""},
		{nil, types.NotNull(i64), "cannot pass nil for non-nullable i64"},
		{nilPtr, types.Nullable(i64), ""},
		{nilPtr, types.NotNull(i64), "cannot pass nil *int for non-nullable i64"},
		{sql.NullInt64{}, types.NotNull(i64), ""},
	}
	for _, test := range tests {
		err := CheckValue(test.value, test.full)
		if test.err == "" {
			assert.Nil(t, err, "%#v for %s", test.value, test.full)
		} else {
			assert.EqualError(t, err, test.err, "%#v for %s", test.value, test.full)
		}
	}
}

type Person struct {
	ID   int32   `db:"id"`
	Name string  `db:"name"`
	Note *string `db:"note"`
}

type Address struct {
	ID     int32  `db:"id"`
	Street string `db:"street"`
}

type M map[string]any

func TestMatchOutputs(t *testing.T) {
	columns := []Column{
		{Name: "id", Type: types.NotNull(types.Integer(32, false))},
		{Name: "name", Type: types.NotNull(types.TextOf(0))},
		{Name: "street", Type: types.NotNull(types.TextOf(0))},
		{Name: "COUNT(*)", Type: types.NotNull(types.Integer(64, true))},
	}
	p, a, m := &Person{}, &Address{}, M{}
	typeToValue, order, err := ValidateOutputs([]any{p, a, m})
	assert.Nil(t, err)
	outputs, err := MatchOutputs(columns, typeToValue, order)
	assert.Nil(t, err)

	var descs []string
	for _, out := range outputs {
		descs = append(descs, out.String())
	}
	assert.Equal(t, []string{
		`tag "id" of struct "Person"`,
		`tag "name" of struct "Person"`,
		`tag "street" of struct "Address"`,
		`key "COUNT(*)" of map "M"`,
	}, descs)

	var proxies []*ScanProxy
	for i, out := range outputs {
		ptr, proxy, err := out.LocateScanTarget(typeToValue)
		assert.Nil(t, err)
		switch ptr := ptr.(type) {
		case **int32:
			v := int32(7)
			*ptr = &v
		case **string:
			v := "x" + columns[i].Name
			*ptr = &v
		case *any:
			*ptr = int64(3)
		default:
			t.Fatalf("unexpected scan target %T", ptr)
		}
		if proxy != nil {
			proxies = append(proxies, proxy)
		}
	}
	for _, proxy := range proxies {
		proxy.OnSuccess()
	}
	assert.Equal(t, Person{ID: 7, Name: "xname"}, *p)
	assert.Equal(t, Address{Street: "xstreet"}, *a)
	assert.Equal(t, M{"COUNT(*)": int64(3)}, m)
}

func TestMatchOutputsErrors(t *testing.T) {
	id := Column{Name: "id", Type: types.NotNull(types.Integer(32, false))}
	note := Column{Name: "note", Type: types.Nullable(types.TextOf(0))}
	tests := []struct {
		columns []Column
		args    []any
		err     string
	}{{
		columns: []Column{id, {Name: "other", Type: types.NotNull(types.TextOf(0))}},
		args:    []any{&Person{}},
		err:     `column "other" not found in any output argument`,
	}, {
		columns: []Column{id},
		args:    []any{&Person{}, &Address{}},
		err:     `no column of the query matches a db tag of "Address"`,
	}, {
		columns: []Column{{Name: "name", Type: types.Nullable(types.TextOf(0))}},
		args:    []any{&Person{}},
		err:     `column "name" into field Person.Name: cannot scan nullable text into string, need a pointer`,
	}, {
		columns: []Column{note},
		args:    []any{M{}, map[string]any{}},
		err:     `found multiple map types: "M" and ""`,
	}, {
		columns: []Column{note},
		args:    []any{map[int]any{}},
		err:     `map type  must have key type string, found type int`,
	}}
	for _, test := range tests {
		typeToValue, order, err := ValidateOutputs(test.args)
		assert.Nil(t, err)
		_, err = MatchOutputs(test.columns, typeToValue, order)
		assert.EqualError(t, err, test.err)
	}
}

func TestValidateOutputsErrors(t *testing.T) {
	var nilPerson *Person
	tests := []struct {
		args []any
		err  string
	}{
		{[]any{nil}, "need map or pointer to struct, got nil"},
		{[]any{nilPerson}, "need map or pointer to struct, got nil"},
		{[]any{Person{}}, "need map or pointer to struct, got struct"},
		{[]any{new(int)}, "need map or pointer to struct, got pointer to int"},
		{[]any{&Person{}, &Person{}}, `type "Person" provided more than once`},
		{[]any{&struct{ A int }{}}, "cannot use anonymous struct"},
	}
	for _, test := range tests {
		_, _, err := ValidateOutputs(test.args)
		assert.EqualError(t, err, test.err)
	}
}

func TestScanTarget(t *testing.T) {
	var n int64
	ptr, proxy, err := ScanTarget(&n, Column{Name: "n", Type: types.NotNull(types.Integer(32, false))})
	assert.Nil(t, err)
	assert.NotNil(t, proxy)
	*(ptr.(**int64)) = nil
	n = 5
	proxy.OnSuccess()
	assert.Equal(t, int64(0), n)

	var s *string
	ptr, proxy, err = ScanTarget(&s, Column{Name: "s", Type: types.Nullable(types.TextOf(0))})
	assert.Nil(t, err)
	assert.Nil(t, proxy)
	assert.Equal(t, &s, ptr)

	_, _, err = ScanTarget(n, Column{Name: "n", Type: types.NotNull(types.Integer(32, false))})
	assert.EqualError(t, err, `need pointer for column "n", got int64`)

	var u uint8
	_, _, err = ScanTarget(&u, Column{Name: "n", Type: types.NotNull(types.Integer(32, false))})
	assert.EqualError(t, err, `column "n": cannot use uint8 for i32`)
}

func TestIsPositional(t *testing.T) {
	var n int
	var ns sql.NullString
	var when time.Time
	assert.True(t, IsPositional([]any{&n, &ns, &when}))
	assert.False(t, IsPositional([]any{&n, &Person{}}))
	assert.False(t, IsPositional([]any{M{}}))
	assert.False(t, IsPositional(nil))
}
