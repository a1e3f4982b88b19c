// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package check

import (
	"strings"

	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/types"
)

// Arg describes an argument of a function.
type Arg struct {
	// Type is the type a placeholder passed as the argument takes.
	Type types.Type
	// Poly marks an argument whose type is unified with the other Poly
	// arguments of the call. The common type is passed to Result.
	Poly bool
	// Accept reports whether a value of the given type may be passed. A nil
	// Accept allows any type.
	Accept func(types.Type) bool
}

// Function is the signature of a built in function.
type Function struct {
	Params []Arg
	// Optional is the number of trailing parameters that may be omitted.
	Optional int
	// Variadic allows the last parameter to be repeated.
	Variadic bool
	// Aggregate is set for functions computed over a group of rows.
	Aggregate bool
	// NullOnEmpty is set for aggregates that return NULL for an empty group.
	NullOnEmpty bool
	// Result returns the type of a call. poly is the common type of the Poly
	// arguments, args holds the type of every argument.
	Result func(poly types.Full, args []types.Full) types.Full
}

func (f *Function) minArgs() int {
	return len(f.Params) - f.Optional
}

func (f *Function) arg(i int) Arg {
	if i >= len(f.Params) {
		return f.Params[len(f.Params)-1]
	}
	return f.Params[i]
}

// Registry maps upper case function names to their signatures.
type Registry map[string]*Function

// Lookup returns the signature of the named function, or nil.
func (r Registry) Lookup(name string) *Function {
	return r[strings.ToUpper(name)]
}

func numeric(t types.Type) bool {
	return t.IsNumeric() || t.Kind == types.Bool || t.Kind == types.Null
}

func temporal(t types.Type) bool {
	return t.IsTemporal() || t.Kind == types.Text || t.Kind == types.Null
}

func jsonish(t types.Type) bool {
	return t.Kind == types.JSON || t.Kind == types.Text || t.Kind == types.Null
}

func boolish(t types.Type) bool {
	return t.Kind == types.Bool || t.IsNumeric() || t.Kind == types.Null
}

var (
	i32  = types.Integer(32, false)
	i64  = types.Integer(64, false)
	u64  = types.Integer(64, true)
	f64  = types.Floating(64)
	text = types.TextOf(0)

	anyArg  = Arg{}
	polyArg = Arg{Poly: true}
	numArg  = Arg{Type: f64, Poly: true, Accept: numeric}
	intArg  = Arg{Type: i64, Accept: numeric}
	textArg = Arg{Type: text}
	dateArg = Arg{Type: types.Of(types.DateTime), Accept: temporal}
)

func anyNullable(args []types.Full) bool {
	for _, a := range args {
		if a.Nullable {
			return true
		}
	}
	return false
}

func allNullable(args []types.Full) bool {
	for _, a := range args {
		if !a.Nullable {
			return false
		}
	}
	return true
}

// returns is a result that is nullable when any argument is.
func returns(t types.Type) func(types.Full, []types.Full) types.Full {
	return func(_ types.Full, args []types.Full) types.Full {
		return types.Full{Type: t, Nullable: anyNullable(args)}
	}
}

func returnsNotNull(t types.Type) func(types.Full, []types.Full) types.Full {
	return func(types.Full, []types.Full) types.Full {
		return types.NotNull(t)
	}
}

func returnsNullable(t types.Type) func(types.Full, []types.Full) types.Full {
	return func(types.Full, []types.Full) types.Full {
		return types.Nullable(t)
	}
}

func returnsPoly(poly types.Full, args []types.Full) types.Full {
	return types.Full{Type: poly.Type, Nullable: anyNullable(args)}
}

func sumResult(poly types.Full, args []types.Full) types.Full {
	t := i64
	switch {
	case poly.Kind == types.Float:
		t = f64
	case poly.Kind == types.Int && poly.Unsigned:
		t = u64
	}
	return types.Full{Type: t, Nullable: anyNullable(args)}
}

// DefaultFunctions returns the built in functions of the dialect. The
// returned registry may be modified by the caller.
func DefaultFunctions(dialect parse.Dialect) Registry {
	r := Registry{
		"COUNT": {Params: []Arg{anyArg}, Aggregate: true, Result: returnsNotNull(u64)},
		"SUM":   {Params: []Arg{numArg}, Aggregate: true, NullOnEmpty: true, Result: sumResult},
		"AVG": {Params: []Arg{numArg}, Aggregate: true, NullOnEmpty: true,
			Result: returns(f64)},
		"MIN":          {Params: []Arg{polyArg}, Aggregate: true, NullOnEmpty: true, Result: returnsPoly},
		"MAX":          {Params: []Arg{polyArg}, Aggregate: true, NullOnEmpty: true, Result: returnsPoly},
		"GROUP_CONCAT": {Params: []Arg{textArg}, Variadic: true, Aggregate: true, NullOnEmpty: true, Result: returns(text)},

		"COALESCE": {Params: []Arg{polyArg}, Variadic: true,
			Result: func(poly types.Full, args []types.Full) types.Full {
				return types.Full{Type: poly.Type, Nullable: allNullable(args)}
			}},
		"IFNULL": {Params: []Arg{polyArg, polyArg},
			Result: func(poly types.Full, args []types.Full) types.Full {
				return types.Full{Type: poly.Type, Nullable: allNullable(args)}
			}},
		"NULLIF": {Params: []Arg{polyArg, polyArg},
			Result: func(poly types.Full, args []types.Full) types.Full {
				return types.Nullable(poly.Type)
			}},
		"IF": {Params: []Arg{{Type: types.Of(types.Bool), Accept: boolish}, polyArg, polyArg},
			Result: func(poly types.Full, args []types.Full) types.Full {
				return types.Full{Type: poly.Type, Nullable: args[1].Nullable || args[2].Nullable}
			}},

		"CONCAT":      {Params: []Arg{textArg}, Variadic: true, Result: returns(text)},
		"LOWER":       {Params: []Arg{textArg}, Result: returns(text)},
		"UPPER":       {Params: []Arg{textArg}, Result: returns(text)},
		"TRIM":        {Params: []Arg{textArg}, Result: returns(text)},
		"LENGTH":      {Params: []Arg{textArg}, Result: returns(i64)},
		"CHAR_LENGTH": {Params: []Arg{textArg}, Result: returns(i64)},
		"SUBSTRING":   {Params: []Arg{textArg, intArg, intArg}, Optional: 1, Result: returns(text)},
		"REPLACE":     {Params: []Arg{textArg, textArg, textArg}, Result: returns(text)},

		"ABS":   {Params: []Arg{numArg}, Result: returnsPoly},
		"ROUND": {Params: []Arg{numArg, intArg}, Optional: 1, Result: returnsPoly},
		"FLOOR": {Params: []Arg{numArg}, Result: returnsPoly},
		"CEIL":  {Params: []Arg{numArg}, Result: returnsPoly},
		"MOD": {Params: []Arg{numArg, numArg},
			Result: func(poly types.Full, args []types.Full) types.Full {
				return types.Nullable(poly.Type)
			}},
		"GREATEST": {Params: []Arg{polyArg, polyArg}, Variadic: true, Result: returnsPoly},
		"LEAST":    {Params: []Arg{polyArg, polyArg}, Variadic: true, Result: returnsPoly},

		"NOW":            {Params: []Arg{intArg}, Optional: 1, Result: returnsNotNull(types.Of(types.DateTime))},
		"CURDATE":        {Result: returnsNotNull(types.Of(types.Date))},
		"CURTIME":        {Result: returnsNotNull(types.Of(types.Time))},
		"UNIX_TIMESTAMP": {Params: []Arg{dateArg}, Optional: 1, Result: returns(i64)},
		"FROM_UNIXTIME":  {Params: []Arg{intArg}, Result: returns(types.Of(types.DateTime))},
		"DATE":           {Params: []Arg{dateArg}, Result: returns(types.Of(types.Date))},
		"YEAR":           {Params: []Arg{dateArg}, Result: returns(i32)},

		"LAST_INSERT_ID": {Result: returnsNotNull(u64)},
		"RAND":           {Params: []Arg{intArg}, Optional: 1, Result: returnsNotNull(f64)},
		"UUID":           {Result: returnsNotNull(types.TextOf(36))},
		"JSON_EXTRACT": {Params: []Arg{{Type: types.Of(types.JSON), Accept: jsonish}, textArg}, Variadic: true,
			Result: returnsNullable(types.Of(types.JSON))},
	}
	r["CEILING"] = r["CEIL"]
	r["SUBSTR"] = r["SUBSTRING"]
	r["CHARACTER_LENGTH"] = r["CHAR_LENGTH"]
	r["LCASE"] = r["LOWER"]
	r["UCASE"] = r["UPPER"]
	for _, name := range []string{"CURRENT_TIMESTAMP", "LOCALTIME", "LOCALTIMESTAMP", "SYSDATE"} {
		r[name] = r["NOW"]
	}
	r["CURRENT_DATE"] = r["CURDATE"]
	r["CURRENT_TIME"] = r["CURTIME"]

	if dialect == parse.PostgreSQL {
		now := &Function{Result: returnsNotNull(types.Of(types.Timestamp))}
		r["NOW"] = now
		r["CURRENT_TIMESTAMP"] = now
		r["GEN_RANDOM_UUID"] = &Function{Result: returnsNotNull(types.TextOf(36))}
		r["COUNT"] = &Function{Params: []Arg{anyArg}, Aggregate: true, Result: returnsNotNull(i64)}
		delete(r, "LAST_INSERT_ID")
	}
	return r
}
