// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package types

// CanCoerce reports whether a value of type from may be used where a value of
// type to is expected without loss.
func CanCoerce(from, to Type) bool {
	if from.Kind == Unknown || to.Kind == Unknown || from.Kind == Null {
		return true
	}
	switch from.Kind {
	case Int:
		switch to.Kind {
		case Int:
			return intWidens(from, to)
		case Float:
			return true
		}
		return false
	case Float:
		return to.Kind == Float && from.Width <= to.Width
	case Bool:
		return to.Kind == Bool || to.Kind == Int
	case Text:
		return to.Kind == Text || to.Kind == JSON || to.Kind == Bytes
	case Enum, Set:
		if to.Kind == from.Kind {
			return subset(from.Values, to.Values)
		}
		return to.Kind == Text
	case JSON:
		return to.Kind == JSON || to.Kind == Text
	case Bytes:
		return to.Kind == Bytes
	case Date:
		return to.Kind == Date || to.Kind == DateTime || to.Kind == Timestamp
	case DateTime, Timestamp:
		return to.Kind == DateTime || to.Kind == Timestamp
	case Time:
		return to.Kind == Time
	}
	return false
}

// intWidens implements the integer widening rule: upwards within the same
// signedness, and unsigned into signed only when the signed type is strictly
// wider.
func intWidens(from, to Type) bool {
	switch {
	case from.Unsigned == to.Unsigned:
		return from.Width <= to.Width
	case from.Unsigned && !to.Unsigned:
		return from.Width < to.Width
	}
	return false
}

func subset(a, b []string) bool {
	members := make(map[string]bool, len(b))
	for _, v := range b {
		members[v] = true
	}
	for _, v := range a {
		if !members[v] {
			return false
		}
	}
	return true
}

// Unify returns the least type both a and b can be coerced to. Unknown and
// Null unify with anything and adopt the other type.
func Unify(a, b Type) (Type, error) {
	if a.Kind == Unknown || a.Kind == Null {
		if b.Kind == Unknown && a.Kind == Null {
			return a, nil
		}
		return b, nil
	}
	if b.Kind == Unknown || b.Kind == Null {
		return a, nil
	}
	if a.Kind == b.Kind {
		return unifySameKind(a, b)
	}
	// Order the pair so that each mixed case is handled once.
	if a.Kind > b.Kind {
		a, b = b, a
	}
	switch {
	case a.Kind == Bool && b.Kind == Int:
		return b, nil
	case a.Kind == Int && b.Kind == Float:
		return b, nil
	case a.Kind == Text && b.Kind == Bytes:
		return b, nil
	case a.Kind == Text && (b.Kind == Enum || b.Kind == Set):
		return a, nil
	case a.Kind == Text && b.Kind == JSON:
		return b, nil
	case a.Kind == Date && (b.Kind == DateTime || b.Kind == Timestamp):
		return b, nil
	case a.Kind == DateTime && b.Kind == Timestamp:
		return a, nil
	}
	return Type{}, &MismatchError{From: a, To: b}
}

func unifySameKind(a, b Type) (Type, error) {
	switch a.Kind {
	case Int:
		if a.Unsigned == b.Unsigned {
			if b.Width > a.Width {
				return b, nil
			}
			return a, nil
		}
		u, s := a, b
		if s.Unsigned {
			u, s = s, u
		}
		if u.Width < s.Width {
			return s, nil
		}
		return Type{}, &MismatchError{From: a, To: b, Reason: "signed type must be wider than unsigned type"}
	case Float:
		if b.Width > a.Width {
			return b, nil
		}
		return a, nil
	case Text:
		if a.MaxLen == 0 || b.MaxLen == 0 {
			return TextOf(0), nil
		}
		if b.MaxLen > a.MaxLen {
			return b, nil
		}
		return a, nil
	case Enum, Set:
		if a.Equal(b) {
			return a, nil
		}
		return TextOf(0), nil
	}
	return a, nil
}

// UnifyFull unifies the base types of a and b. The result is nullable if
// either operand is nullable or is the null type.
func UnifyFull(a, b Full) (Full, error) {
	t, err := Unify(a.Type, b.Type)
	if err != nil {
		return Full{}, err
	}
	nullable := a.Nullable || b.Nullable || a.Kind == Null || b.Kind == Null
	return Full{Type: t, Nullable: nullable}, nil
}

// Comparable reports whether values of a and b can be compared with each
// other. Numbers compare with numbers regardless of width or signedness.
func Comparable(a, b Type) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	if (a.Kind == Bool && b.IsNumeric()) || (b.Kind == Bool && a.IsNumeric()) {
		return true
	}
	if a.IsTemporal() && b.IsTemporal() {
		return true
	}
	_, err := Unify(a, b)
	return err == nil
}
