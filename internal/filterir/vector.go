// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterir

// VectorClause is the Qdrant-shaped lowering of one filterir.Condition.
// This package stays free of any vector-backend SDK import; internal/
// vectordb maps VectorClause onto the concrete qdrant.Condition wire type,
// keeping filterir a leaf package the metadata and fulltext translators can
// also depend on without pulling in qdrant/go-client.
type VectorClause struct {
	Key string

	MatchValue  any
	MatchAny    []any
	MatchExcept []any

	Range *Range

	// IsNull is the Qdrant "field exists and is null" predicate.
	IsNull bool

	// IsEmptyNullOr, when true, tells the caller to emit the
	// is-null-OR-is-empty-collection disjunction Qdrant's IsEmpty
	// condition already expresses natively; kept as a distinct flag from
	// IsNull so translators can't accidentally collapse the two.
	IsEmptyNullOr bool

	IDIn []any
}

// VectorFilter is the must/must_not/should lowering of a Filter, ready for
// internal/vectordb to adapt into a qdrant.Filter.
type VectorFilter struct {
	Must    []VectorClause
	MustNot []VectorClause
	Should  []VectorClause
}

// ToVectorFilter lowers a Filter for the vector backend (spec.md §4.M):
// must/must_not/should map directly; range maps to a range condition;
// is_null maps to the backend's "exists and is null" predicate, never to
// "field absent"; is_empty maps to null-or-empty-collection. An
// all-empty Filter lowers to nil, meaning "no filter" to the caller.
func ToVectorFilter(f Filter) *VectorFilter {
	if f.IsEmptyFilter() {
		return nil
	}
	return &VectorFilter{
		Must:    lowerVectorClauses(f.Must),
		MustNot: lowerVectorClauses(f.MustNot),
		Should:  lowerVectorClauses(f.Should),
	}
}

func lowerVectorClauses(conds []Condition) []VectorClause {
	if len(conds) == 0 {
		return nil
	}
	out := make([]VectorClause, 0, len(conds))
	for _, c := range conds {
		vc := VectorClause{Key: c.Key}
		switch c.Kind {
		case KindMatchValue:
			vc.MatchValue = c.Value
		case KindMatchAny:
			vc.MatchAny = c.Values
		case KindMatchExcept:
			vc.MatchExcept = c.Values
		case KindRange:
			vc.Range = c.Range
		case KindIDIn:
			vc.IDIn = c.Values
		case KindIsNull:
			vc.IsNull = true
		case KindIsAbsent:
			// A vector payload index has no native "field absent" predicate
			// distinct from "field not indexed at all"; the vector backend
			// cannot express IsAbsent, so it is dropped here rather than
			// silently mistranslated into IsNull. Callers needing an
			// is-absent filter must use the metadata (SQL) backend instead.
			continue
		case KindIsEmpty:
			vc.IsEmptyNullOr = true
		}
		out = append(out, vc)
	}
	return out
}
