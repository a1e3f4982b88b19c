// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package check

import (
	"strconv"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/schema"
	"github.com/canonical/sqltype/internal/types"
)

var boolean = types.Of(types.Bool)

func literal(l types.Literal) typed {
	f := types.NotNull(l.Natural())
	if l.Kind == types.LitNull {
		f.Nullable = true
	}
	return typed{Full: f, lit: &l}
}

func (c *checker) expr(e parse.Expr, en env) (typed, error) {
	switch e := e.(type) {
	case *parse.ColumnRef:
		r, p, err := c.resolve(en, e)
		if err != nil {
			return typed{}, err
		}
		if p != nil {
			return p.typed, nil
		}
		return typed{Full: r.full()}, nil
	case *parse.Literal:
		return literal(e.Value), nil
	case *parse.Placeholder:
		if e.List {
			return typed{}, diag.Errorf(diag.UnsupportedConstruct, e.At, "_LIST_ is only allowed as the list of IN (...)")
		}
		g, err := c.placeholder(e)
		if err != nil {
			return typed{}, err
		}
		return typed{g: g}, nil
	case *parse.BinaryOp:
		return c.binary(e, en)
	case *parse.UnaryOp:
		return c.unary(e, en)
	case *parse.FunctionCall:
		return c.call(e, en)
	case *parse.Subquery:
		p, err := c.subquery(e.Select, en)
		if err != nil {
			return typed{}, err
		}
		x := p.typed
		x.lit = nil
		x.Nullable = true
		return x, nil
	case *parse.Exists:
		if _, err := c.selectStmt(e.Select, en.sc); err != nil {
			return typed{}, err
		}
		return typed{Full: types.NotNull(boolean)}, nil
	case *parse.InList:
		return c.inList(e, en)
	case *parse.InSubquery:
		x, err := c.expr(e.Expr, en)
		if err != nil {
			return typed{}, err
		}
		p, err := c.subquery(e.Select, en)
		if err != nil {
			return typed{}, err
		}
		if err := compare(x, p.typed, e.At, false); err != nil {
			return typed{}, err
		}
		return typed{Full: types.Full{Type: boolean, Nullable: x.Nullable || p.Nullable}}, nil
	case *parse.Between:
		x, err := c.expr(e.Expr, en)
		if err != nil {
			return typed{}, err
		}
		nullable := x.Nullable
		for _, bound := range []parse.Expr{e.Low, e.High} {
			b, err := c.expr(bound, en)
			if err != nil {
				return typed{}, err
			}
			if err := compare(x, b, bound.Span(), false); err != nil {
				return typed{}, err
			}
			nullable = nullable || b.Nullable
		}
		return typed{Full: types.Full{Type: boolean, Nullable: nullable}}, nil
	case *parse.Is:
		if e.Value == parse.IsNull {
			if _, err := c.expr(e.Expr, en); err != nil {
				return typed{}, err
			}
		} else if _, err := c.condition(e.Expr, en); err != nil {
			return typed{}, err
		}
		return typed{Full: types.NotNull(boolean)}, nil
	case *parse.Case:
		return c.caseExpr(e, en)
	case *parse.Cast:
		x, err := c.expr(e.Expr, en)
		if err != nil {
			return typed{}, err
		}
		t, err := c.castType(e.Type)
		if err != nil {
			return typed{}, err
		}
		if x.g != nil {
			if err := constrain(x.g, t, e.At); err != nil {
				return typed{}, err
			}
			x.g.allowNull(false)
		}
		return typed{Full: types.Full{Type: t, Nullable: x.Nullable}}, nil
	case *parse.Interval:
		return typed{}, diag.Errorf(diag.UnsupportedConstruct, e.At, "INTERVAL is only allowed in date arithmetic")
	case *parse.Default:
		return typed{}, diag.Errorf(diag.UnsupportedConstruct, e.At, "DEFAULT is only allowed as an inserted or updated value")
	}
	return typed{}, diag.Errorf(diag.Internal, e.Span(), "unexpected expression %T", e)
}

// condition checks a boolean expression.
func (c *checker) condition(e parse.Expr, en env) (typed, error) {
	x, err := c.expr(e, en)
	if err != nil {
		return typed{}, err
	}
	if x.g != nil {
		if err := constrain(x.g, boolean, e.Span()); err != nil {
			return typed{}, err
		}
		x.g.allowNull(false)
		return typed{Full: types.Full{Type: boolean, Nullable: x.Nullable}}, nil
	}
	if !boolish(x.Type) {
		return typed{}, mismatchAt(e.Span(), &types.MismatchError{From: x.Type, To: boolean, Reason: "expected a condition"})
	}
	return typed{Full: types.Full{Type: boolean, Nullable: x.Nullable}}, nil
}

// subquery checks a subquery used as a value, which has a single column.
func (c *checker) subquery(s *parse.Select, en env) (projected, error) {
	proj, err := c.selectStmt(s, en.sc)
	if err != nil {
		return projected{}, err
	}
	if len(proj) != 1 {
		return projected{}, diag.Errorf(diag.ArityMismatch, s.At, "subquery returns %d columns, expected 1", len(proj))
	}
	return proj[0], nil
}

func (c *checker) inList(e *parse.InList, en env) (typed, error) {
	x, err := c.expr(e.Expr, en)
	if err != nil {
		return typed{}, err
	}
	nullable := x.Nullable
	for _, item := range e.List {
		var y typed
		if p, ok := item.(*parse.Placeholder); ok && p.List {
			g, err := c.placeholder(p)
			if err != nil {
				return typed{}, err
			}
			y = typed{g: g}
		} else if y, err = c.expr(item, en); err != nil {
			return typed{}, err
		}
		if err := compare(x, y, item.Span(), false); err != nil {
			return typed{}, err
		}
		nullable = nullable || y.Nullable
	}
	return typed{Full: types.Full{Type: boolean, Nullable: nullable}}, nil
}

func (c *checker) binary(e *parse.BinaryOp, en env) (typed, error) {
	switch {
	case e.Op.IsLogical():
		l, err := c.condition(e.Left, en)
		if err != nil {
			return typed{}, err
		}
		r, err := c.condition(e.Right, en)
		if err != nil {
			return typed{}, err
		}
		return typed{Full: types.Full{Type: boolean, Nullable: l.Nullable || r.Nullable}}, nil
	case e.Op == parse.OpAdd || e.Op == parse.OpSub:
		if iv, ok := e.Right.(*parse.Interval); ok {
			return c.dateArith(e.Left, iv, en)
		}
		if iv, ok := e.Left.(*parse.Interval); ok && e.Op == parse.OpAdd {
			return c.dateArith(e.Right, iv, en)
		}
	}

	l, err := c.expr(e.Left, en)
	if err != nil {
		return typed{}, err
	}
	r, err := c.expr(e.Right, en)
	if err != nil {
		return typed{}, err
	}
	nullable := l.Nullable || r.Nullable
	switch {
	case e.Op.IsComparison():
		nullSafe := e.Op == parse.OpNullSafeEq
		if err := compare(l, r, e.At, nullSafe); err != nil {
			return typed{}, err
		}
		return typed{Full: types.Full{Type: boolean, Nullable: nullable && !nullSafe}}, nil
	case e.Op == parse.OpLike || e.Op == parse.OpRegexp || e.Op == parse.OpConcat:
		for _, x := range []typed{l, r} {
			if err := c.textual(x, e.At); err != nil {
				return typed{}, err
			}
		}
		if e.Escape != nil {
			esc, err := c.expr(e.Escape, en)
			if err != nil {
				return typed{}, err
			}
			if err := c.textual(esc, e.Escape.Span()); err != nil {
				return typed{}, err
			}
		}
		if e.Op == parse.OpConcat {
			return typed{Full: types.Full{Type: text, Nullable: nullable}}, nil
		}
		return typed{Full: types.Full{Type: boolean, Nullable: nullable}}, nil
	}
	return c.arith(e, l, r)
}

// textual checks an operand of a string operator. Placeholders take text.
func (c *checker) textual(x typed, span diag.Span) error {
	if x.g != nil {
		if err := constrain(x.g, text, span); err != nil {
			return err
		}
		x.g.allowNull(false)
		return nil
	}
	if x.Kind == types.Bytes || x.Kind == types.Bool {
		return mismatchAt(span, &types.MismatchError{From: x.Type, To: text, Reason: "expected a string"})
	}
	return nil
}

// arith types an arithmetic or bit operation. Integer arithmetic is carried
// out in 64 bits, unsigned when no operand is signed. Division
// and any floating point operand give a float. Division by zero is NULL.
func (c *checker) arith(e *parse.BinaryOp, l, r typed) (typed, error) {
	nullable := l.Nullable || r.Nullable
	switch {
	case l.g != nil && r.g != nil:
		if err := union(l.g, r.g, e.At); err != nil {
			return typed{}, err
		}
	case l.g != nil:
		if err := constrain(l.g, operandType(r), e.At); err != nil {
			return typed{}, err
		}
	case r.g != nil:
		if err := constrain(r.g, operandType(l), e.At); err != nil {
			return typed{}, err
		}
	}
	for _, x := range []typed{l, r} {
		if x.g != nil {
			x.g.allowNull(false)
		}
	}
	if !l.known() || !r.known() {
		// Neither operand fixes the type yet.
		g := l.g
		if g == nil {
			g = r.g
		}
		return typed{Full: types.Full{Nullable: nullable}, g: g}, nil
	}
	lt, rt := l.current().Type, r.current().Type
	if lt.Kind == types.Null || rt.Kind == types.Null {
		return typed{Full: types.Nullable(types.Of(types.Null))}, nil
	}
	for _, t := range []types.Type{lt, rt} {
		if !numeric(t) {
			return typed{}, mismatchAt(e.At, &types.MismatchError{From: lt, To: rt, Reason: "operator " + e.Op.String() + " expects numbers"})
		}
	}
	unsigned := (isUnsigned(lt) || isUnsigned(rt)) && unsignedOperand(l, lt) && unsignedOperand(r, rt)
	switch {
	case e.Op.IsBitwise():
		if lt.Kind == types.Float || rt.Kind == types.Float {
			return typed{}, mismatchAt(e.At, &types.MismatchError{From: lt, To: rt, Reason: "operator " + e.Op.String() + " expects integers"})
		}
		return typed{Full: types.Full{Type: u64, Nullable: nullable}}, nil
	case e.Op == parse.OpDiv:
		return typed{Full: types.Nullable(f64)}, nil
	case e.Op == parse.OpIntDiv:
		return typed{Full: types.Nullable(types.Integer(64, unsigned))}, nil
	case lt.Kind == types.Float || rt.Kind == types.Float:
		return typed{Full: types.Full{Type: f64, Nullable: nullable || e.Op == parse.OpMod}}, nil
	}
	return typed{Full: types.Full{Type: types.Integer(64, unsigned), Nullable: nullable || e.Op == parse.OpMod}}, nil
}

func isUnsigned(t types.Type) bool {
	return t.Kind == types.Int && t.Unsigned
}

// unsignedOperand reports whether x keeps unsigned arithmetic unsigned. A
// non-negative integer literal does.
func unsignedOperand(x typed, t types.Type) bool {
	if x.lit != nil && x.lit.Kind == types.LitInt {
		return !x.lit.Neg
	}
	return isUnsigned(t)
}

// operandType is the type a placeholder takes from the other operand of an
// arithmetic operator.
func operandType(x typed) types.Type {
	if x.lit != nil {
		return anchor(x.lit)
	}
	if x.Kind == types.Bool {
		return i64
	}
	return x.current().Type
}

// dateArith types date +/- INTERVAL n unit.
func (c *checker) dateArith(e parse.Expr, iv *parse.Interval, en env) (typed, error) {
	x, err := c.expr(e, en)
	if err != nil {
		return typed{}, err
	}
	n, err := c.expr(iv.Expr, en)
	if err != nil {
		return typed{}, err
	}
	if n.g != nil {
		if err := constrain(n.g, i64, iv.At); err != nil {
			return typed{}, err
		}
		n.g.allowNull(false)
	} else if !numeric(n.Type) && n.Kind != types.Text {
		return typed{}, mismatchAt(iv.At, &types.MismatchError{From: n.Type, To: i64, Reason: "expected an interval length"})
	}
	nullable := x.Nullable || n.Nullable
	switch {
	case x.g != nil:
		if err := constrain(x.g, types.Of(types.DateTime), e.Span()); err != nil {
			return typed{}, err
		}
		x.g.allowNull(false)
		return typed{Full: types.Full{Type: x.current().Type, Nullable: nullable}}, nil
	case x.IsTemporal():
		return typed{Full: types.Full{Type: x.Type, Nullable: nullable}}, nil
	case x.Kind == types.Text:
		return typed{Full: types.Nullable(types.Of(types.DateTime))}, nil
	}
	return typed{}, mismatchAt(e.Span(), &types.MismatchError{From: x.Type, To: types.Of(types.DateTime), Reason: "expected a date"})
}

func (c *checker) unary(e *parse.UnaryOp, en env) (typed, error) {
	if e.Op == parse.OpNot {
		return c.condition(e.Operand, en)
	}
	x, err := c.expr(e.Operand, en)
	if err != nil {
		return typed{}, err
	}
	if x.g != nil {
		x.g.allowNull(false)
		if !x.known() {
			return typed{Full: types.Full{Nullable: x.Nullable}, g: x.g}, nil
		}
	}
	t := x.current().Type
	if t.Kind == types.Null {
		return typed{Full: types.Nullable(t)}, nil
	}
	if !numeric(t) {
		return typed{}, mismatchAt(e.At, &types.MismatchError{From: t, To: i64, Reason: "expected a number"})
	}
	switch e.Op {
	case parse.OpBitNot:
		if t.Kind == types.Float {
			return typed{}, mismatchAt(e.At, &types.MismatchError{From: t, To: u64, Reason: "expected an integer"})
		}
		return typed{Full: types.Full{Type: u64, Nullable: x.Nullable}}, nil
	case parse.OpNeg:
		if t.Kind == types.Bool || isUnsigned(t) {
			t = i64
		}
	}
	return typed{Full: types.Full{Type: t, Nullable: x.Nullable}}, nil
}

func (c *checker) caseExpr(e *parse.Case, en env) (typed, error) {
	var operand typed
	if e.Operand != nil {
		var err error
		if operand, err = c.expr(e.Operand, en); err != nil {
			return typed{}, err
		}
	}
	var result *typed
	add := func(r typed, span diag.Span) error {
		if result == nil {
			result = &r
			return nil
		}
		u, err := unify(*result, r, span)
		if err != nil {
			return err
		}
		result = &u
		return nil
	}
	for _, w := range e.Whens {
		if e.Operand != nil {
			v, err := c.expr(w.Cond, en)
			if err != nil {
				return typed{}, err
			}
			if err := compare(operand, v, w.Cond.Span(), false); err != nil {
				return typed{}, err
			}
		} else if _, err := c.condition(w.Cond, en); err != nil {
			return typed{}, err
		}
		r, err := c.expr(w.Result, en)
		if err != nil {
			return typed{}, err
		}
		if err := add(r, w.Result.Span()); err != nil {
			return typed{}, err
		}
	}
	if e.Else != nil {
		r, err := c.expr(e.Else, en)
		if err != nil {
			return typed{}, err
		}
		if err := add(r, e.Else.Span()); err != nil {
			return typed{}, err
		}
	}
	x := *result
	x.lit = nil
	if e.Else == nil {
		x.Nullable = true
	}
	if x.known() && x.g != nil {
		x = typed{Full: x.current()}
	}
	return x, nil
}

// castType returns the type of CAST(... AS tn).
func (c *checker) castType(tn parse.TypeName) (types.Type, error) {
	switch tn.Name {
	case "char", "varchar", "nchar", "character":
		if len(tn.Args) == 0 {
			return text, nil
		}
	case "binary", "varbinary":
		return types.Of(types.Bytes), nil
	}
	t, err := schema.ColumnType(tn, c.cat.Dialect())
	if err != nil {
		return types.Type{}, diag.Errorf(diag.UnsupportedConstruct, tn.At, "cannot cast to %s", tn.String())
	}
	return t, nil
}

func (c *checker) call(e *parse.FunctionCall, en env) (typed, error) {
	if e.Name == "VALUES" && c.values != nil {
		return c.valuesCall(e)
	}
	f := c.funcs.Lookup(e.Name)
	if f == nil {
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "unknown function %s", e.Name)
	}
	if f.Aggregate && !en.aggregates {
		clause := en.clause
		if clause == "" {
			clause = "this context"
		}
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "aggregate function %s is not allowed in %s", e.Name, clause)
	}
	if e.Star && e.Name != "COUNT" {
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "%s(*) is not supported", e.Name)
	}
	if e.Distinct && !f.Aggregate {
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "DISTINCT is only allowed in aggregate functions")
	}
	if !e.Star {
		n := len(e.Args)
		if n < f.minArgs() || (!f.Variadic && n > len(f.Params)) {
			return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "%s expects %s but got %d", e.Name, arity(f), n)
		}
	}

	// Arguments of an aggregate may not themselves aggregate.
	argEnv := en
	if f.Aggregate {
		argEnv.aggregates = false
		argEnv.clause = "aggregate function " + e.Name
	}
	var poly *typed
	var polyArg Arg
	args := make([]types.Full, 0, len(e.Args))
	for i, a := range e.Args {
		x, err := c.expr(a, argEnv)
		if err != nil {
			return typed{}, err
		}
		p := f.arg(i)
		switch {
		case p.Poly:
			polyArg = p
			if poly == nil {
				poly = &x
			} else {
				u, err := unify(*poly, x, a.Span())
				if err != nil {
					return typed{}, err
				}
				poly = &u
			}
			if p.Accept != nil && x.g == nil && !p.Accept(x.Type) {
				return typed{}, argMismatch(e, i, x.Type, a.Span())
			}
		case x.g != nil:
			if err := constrain(x.g, p.Type, a.Span()); err != nil {
				return typed{}, err
			}
		case p.Accept != nil && !p.Accept(x.Type):
			return typed{}, argMismatch(e, i, x.Type, a.Span())
		}
		if x.g != nil {
			x.g.allowNull(false)
		}
		args = append(args, x.current())
	}
	for _, o := range e.OrderBy {
		if _, err := c.expr(o.Expr, argEnv); err != nil {
			return typed{}, err
		}
	}
	if e.Separator != nil {
		if _, err := c.expr(e.Separator, argEnv); err != nil {
			return typed{}, err
		}
	}

	var polyType types.Full
	var g *group
	if poly != nil {
		if poly.g != nil && !poly.known() && polyArg.Type.Kind != types.Unknown {
			if err := constrain(poly.g, polyArg.Type, e.At); err != nil {
				return typed{}, err
			}
		}
		polyType = poly.current()
		if poly.lit != nil {
			polyType.Type = anchor(poly.lit)
		}
		if !poly.known() {
			g = poly.g
		}
		for i := range args {
			if args[i].Kind == types.Unknown {
				args[i] = poly.current()
			}
		}
	}
	res := f.Result(polyType, args)
	if f.Aggregate && f.NullOnEmpty && !en.sc.grouped {
		res.Nullable = true
	}
	return typed{Full: res, g: g}, nil
}

func arity(f *Function) string {
	n := f.minArgs()
	switch {
	case f.Variadic:
		return plural(n) + " or more"
	case n == len(f.Params):
		return plural(n)
	}
	return strconv.Itoa(n) + " to " + plural(len(f.Params))
}

func plural(n int) string {
	switch n {
	case 0:
		return "no arguments"
	case 1:
		return "1 argument"
	}
	return strconv.Itoa(n) + " arguments"
}

func argMismatch(e *parse.FunctionCall, i int, t types.Type, span diag.Span) error {
	return diag.Errorf(diag.UnsupportedFunctionSignature, span, "%s does not accept %s as argument %d", e.Name, t, i+1)
}

// valuesCall types VALUES(col) in ON DUPLICATE KEY UPDATE, the value that
// would have been inserted into col.
func (c *checker) valuesCall(e *parse.FunctionCall) (typed, error) {
	if len(e.Args) != 1 {
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.At, "VALUES expects 1 argument but got %d", len(e.Args))
	}
	cr, ok := e.Args[0].(*parse.ColumnRef)
	if !ok {
		return typed{}, diag.Errorf(diag.UnsupportedFunctionSignature, e.Args[0].Span(), "VALUES expects a column name")
	}
	col := c.values.Column(cr.Column)
	if col == nil {
		return typed{}, diag.Errorf(diag.UnknownColumn, cr.At, "unknown column %q in table %q", cr.Column, c.values.Name)
	}
	return typed{Full: col.Full()}, nil
}
