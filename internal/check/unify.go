// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package check

import (
	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/types"
)

// group is a placeholder unification group. Groups form a union-find forest
// and only the root of a tree carries the type of the group.
type group struct {
	parent *group
	rank   int
	typ    types.Type
	// nullable is set while every context the group was used in accepts
	// NULL. nullSeen records that some context has been seen.
	nullable bool
	nullSeen bool
}

func (g *group) find() *group {
	for g.parent != nil {
		if g.parent.parent != nil {
			g.parent = g.parent.parent
		}
		g = g.parent
	}
	return g
}

func (g *group) allowNull(ok bool) {
	g = g.find()
	if !g.nullSeen {
		g.nullable, g.nullSeen = ok, true
		return
	}
	g.nullable = g.nullable && ok
}

// typed is the result of checking an expression.
type typed struct {
	types.Full
	// g is the unification group of a placeholder, or of an expression
	// whose type is that of the placeholders it is built from.
	g *group
	// lit is set when the expression is a literal constant.
	lit *types.Literal
}

// known reports whether the type of x has been determined.
func (x typed) known() bool {
	return x.current().Kind != types.Unknown
}

// current returns the type of x, taking into account what has been learnt
// about its group since x was checked.
func (x typed) current() types.Full {
	if x.g != nil {
		return types.Full{Type: x.g.find().typ, Nullable: x.Nullable}
	}
	return x.Full
}

func mismatchAt(span diag.Span, err error) *diag.Error {
	return diag.Errorf(diag.TypeMismatch, span, "%s", err.Error())
}

// union merges the groups of a and b.
func union(a, b *group, span diag.Span) error {
	ra, rb := a.find(), b.find()
	if ra == rb {
		return nil
	}
	t, err := types.Unify(ra.typ, rb.typ)
	if err != nil {
		return mismatchAt(span, err)
	}
	if ra.rank < rb.rank {
		ra, rb = rb, ra
	}
	rb.parent = ra
	if ra.rank == rb.rank {
		ra.rank++
	}
	ra.typ = t
	if rb.nullSeen {
		ra.allowNull(rb.nullable)
	}
	return nil
}

// constrain unifies the type of the group with t.
func constrain(g *group, t types.Type, span diag.Span) error {
	if t.Kind == types.Unknown || t.Kind == types.Null {
		return nil
	}
	r := g.find()
	u, err := types.Unify(r.typ, t)
	if err != nil {
		return mismatchAt(span, err)
	}
	r.typ = u
	return nil
}

// anchor returns the type a placeholder takes when its only context is a
// literal.
func anchor(l *types.Literal) types.Type {
	switch l.Kind {
	case types.LitInt:
		if t := types.Integer(64, false); t.Fits(l.Neg, l.Mag) {
			return t
		}
		return types.Integer(64, true)
	case types.LitFloat:
		return types.Floating(64)
	case types.LitNull:
		return types.Of(types.Unknown)
	}
	return l.Natural()
}

// unify returns the common type of a and b, merging placeholder groups and
// constraining a group by the type of the other operand. Literals are
// checked against the type of the other operand.
func unify(a, b typed, span diag.Span) (typed, error) {
	switch {
	case a.g != nil && b.g != nil:
		if err := union(a.g, b.g, span); err != nil {
			return typed{}, err
		}
		return typed{Full: types.Full{Nullable: a.Nullable || b.Nullable}, g: a.g}, nil
	case a.g != nil:
		a, b = b, a
		fallthrough
	case b.g != nil:
		// b is in a group, a is not.
		t := a.Type
		if a.lit != nil {
			t = anchor(a.lit)
		}
		if err := constrain(b.g, t, span); err != nil {
			return typed{}, err
		}
		if b.known() {
			return typed{Full: types.Full{Type: b.current().Type, Nullable: a.Nullable || b.Nullable}}, nil
		}
		return typed{Full: types.Full{Nullable: a.Nullable || b.Nullable}, g: b.g}, nil
	}
	if a.lit != nil && b.lit == nil {
		a, b = b, a
	}
	if b.lit != nil && a.lit == nil {
		t, err := types.WidenForLiteral(*b.lit, a.Type)
		if err != nil {
			return typed{}, mismatchAt(span, err)
		}
		return typed{Full: types.Full{Type: t, Nullable: a.Nullable || b.Nullable}}, nil
	}
	f, err := types.UnifyFull(a.Full, b.Full)
	if err != nil {
		return typed{}, mismatchAt(span, err)
	}
	return typed{Full: f}, nil
}

// compare checks that a and b may be compared. A placeholder compared with
// a value takes the type of the value and may only be NULL when nullSafe is
// set, as for <=>.
func compare(a, b typed, span diag.Span, nullSafe bool) error {
	if a.g != nil || b.g != nil {
		if _, err := unify(a, b, span); err != nil {
			return err
		}
		for _, g := range []*group{a.g, b.g} {
			if g != nil {
				g.allowNull(nullSafe)
			}
		}
		return nil
	}
	if a.lit != nil && b.lit == nil {
		a, b = b, a
	}
	if b.lit != nil && a.lit == nil && b.lit.Kind == types.LitString && !a.IsTextual() && a.Kind != types.Null {
		if _, err := types.WidenForLiteral(*b.lit, a.Type); err != nil {
			return mismatchAt(span, err)
		}
		return nil
	}
	if !types.Comparable(a.Type, b.Type) {
		return mismatchAt(span, &types.MismatchError{From: a.Type, To: b.Type, Reason: "values cannot be compared"})
	}
	return nil
}

// assignable reports whether a computed value of type from may be stored in
// a column of type to. Narrowing keeps the signedness of the value, its range
// is only known at run time. Crossing between signed and unsigned integers
// follows CanCoerce.
func assignable(from, to types.Type) bool {
	if types.CanCoerce(from, to) {
		return true
	}
	switch {
	case from.IsInteger() && to.IsInteger():
		return from.Unsigned == to.Unsigned
	case from.Kind == types.Float && to.Kind == types.Float:
		return true
	case from.Kind == types.Bool && to.IsNumeric():
		return true
	}
	return false
}
