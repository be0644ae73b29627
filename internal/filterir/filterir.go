// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package filterir defines the typed filter AST shared by every backend
// (spec.md §4.M) and its per-backend translators. The central invariant —
// repeated because a past production incident hinged on it — is that
// field-absence, is-null, and is-empty are three distinct conditions and
// must never be collapsed into one another. A translator that conflates
// "absent" with "null" turns a should-match-everything filter into a
// reject-everything filter the moment a field is optional and unset on
// most rows (see the fixed search-inclusion policy in SearchInclusionFilter, and
// S2/REDESIGN FLAGS in the originating incident report).
package filterir

// ConditionKind enumerates the clause shapes the IR supports.
type ConditionKind string

const (
	KindMatchValue  ConditionKind = "match_value"
	KindMatchAny    ConditionKind = "match_any"
	KindMatchExcept ConditionKind = "match_except"
	KindRange       ConditionKind = "range"
	KindIDIn        ConditionKind = "id_in"
	KindIsNull      ConditionKind = "is_null"
	KindIsAbsent    ConditionKind = "is_absent"
	KindIsEmpty     ConditionKind = "is_empty"
)

// Bound is one side of a Range condition; nil means unbounded on that side.
type Bound struct {
	Value     any
	Inclusive bool
}

// Range is an open/closed bound pair on a numeric or date field.
type Range struct {
	Gt  *Bound
	Lt  *Bound
}

// Condition is one leaf clause in the filter tree.
type Condition struct {
	Kind  ConditionKind
	Key   string
	Value any   // KindMatchValue
	Values []any // KindMatchAny, KindMatchExcept, KindIDIn
	Range *Range // KindRange
}

// MatchValue builds an exact-match condition.
func MatchValue(key string, value any) Condition {
	return Condition{Kind: KindMatchValue, Key: key, Value: value}
}

// MatchAny builds a match-any-of-values condition.
func MatchAny(key string, values ...any) Condition {
	return Condition{Kind: KindMatchAny, Key: key, Values: values}
}

// MatchExcept builds a match-none-of-values condition.
func MatchExcept(key string, values ...any) Condition {
	return Condition{Kind: KindMatchExcept, Key: key, Values: values}
}

// RangeCond builds a range condition with open/closed bounds.
func RangeCond(key string, r Range) Condition {
	return Condition{Kind: KindRange, Key: key, Range: &r}
}

// IDIn builds an id-in-set condition, typically applied to the point's own
// id rather than a payload field.
func IDIn(ids ...any) Condition {
	return Condition{Kind: KindIDIn, Values: ids}
}

// IsNull asserts the field exists and holds an explicit null value. This is
// NOT the same as the field being absent — see IsAbsent.
func IsNull(key string) Condition {
	return Condition{Kind: KindIsNull, Key: key}
}

// IsAbsent asserts the field is not present on the record at all. Kept as
// its own constructor, distinct from IsNull, because collapsing the two
// was the root cause of the field-absence filter bug this package's
// doc comment describes.
func IsAbsent(key string) Condition {
	return Condition{Kind: KindIsAbsent, Key: key}
}

// IsEmpty asserts the field is absent, null, or an empty collection — the
// union a caller usually means by "nothing there". Translators expand this
// into the is-null-or-empty-collection disjunction their backend supports;
// it must never be implemented as only IsNull (see package doc).
func IsEmpty(key string) Condition {
	return Condition{Kind: KindIsEmpty, Key: key}
}

// Filter is the top-level typed filter: must (AND), must_not (NOT), should
// (OR) groups of conditions (spec.md §4.M).
type Filter struct {
	Must    []Condition
	MustNot []Condition
	Should  []Condition
}

// IsEmptyFilter reports whether every clause group is empty, in which case
// a translator must emit "no filter" rather than a filter object with
// empty arrays (spec.md §4.M: "a filter with every clause empty is sent as
// no filter").
func (f Filter) IsEmptyFilter() bool {
	return len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0
}

// SearchInclusionFilter is the fixed, non-user-supplied policy every search
// path applies: exclude chunks marked deletion_eligible. It deliberately
// does NOT add any clause over superseded_by — absence of that field means
// "not superseded", and a naive is-null clause over an absent field would
// reject it (spec.md §4.M, REDESIGN FLAGS, and the regression test
// TestSearchInclusionFilter_NeverEmitsIsNullOnSupersededBy all hinge on this
// one line staying exactly this short).
func SearchInclusionFilter() Filter {
	return Filter{
		MustNot: []Condition{MatchValue("deletion_eligible", true)},
	}
}
