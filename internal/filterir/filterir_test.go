// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterir

import (
	"strings"
	"testing"
)

func TestSearchInclusionFilter_NeverEmitsIsNullOnSupersededBy(t *testing.T) {
	f := SearchInclusionFilter()

	vf := ToVectorFilter(f)
	if vf == nil {
		t.Fatal("expected a non-nil vector filter")
	}
	for _, groups := range [][]VectorClause{vf.Must, vf.MustNot, vf.Should} {
		for _, c := range groups {
			if c.Key == "superseded_by" {
				t.Fatalf("search-inclusion filter must never reference superseded_by, found clause: %+v", c)
			}
		}
	}

	sqlWhere, _ := ToSQLWhere(f, 1)
	if strings.Contains(sqlWhere, "superseded_by") {
		t.Fatalf("search-inclusion SQL filter must never reference superseded_by, got: %s", sqlWhere)
	}

	fts := ToFulltextString(f)
	if strings.Contains(fts, "superseded_by") {
		t.Fatalf("search-inclusion fulltext filter must never reference superseded_by, got: %s", fts)
	}
}

func TestSearchInclusionFilter_ExcludesDeletionEligible(t *testing.T) {
	f := SearchInclusionFilter()
	if len(f.MustNot) != 1 {
		t.Fatalf("expected exactly one must_not clause, got %d", len(f.MustNot))
	}
	c := f.MustNot[0]
	if c.Key != "deletion_eligible" || c.Value != true {
		t.Errorf("expected must_not deletion_eligible=true, got %+v", c)
	}
}

func TestIsNullAndIsAbsentAreDistinctAtTheIRLevel(t *testing.T) {
	n := IsNull("superseded_by")
	a := IsAbsent("superseded_by")
	if n.Kind == a.Kind {
		t.Fatal("IsNull and IsAbsent must produce different condition kinds")
	}
}

func TestToVectorFilter_EmptyFilterIsNil(t *testing.T) {
	if got := ToVectorFilter(Filter{}); got != nil {
		t.Errorf("expected nil vector filter for an empty Filter, got %+v", got)
	}
}

func TestToVectorFilter_IsEmptyBecomesNullOrEmptyDisjunction(t *testing.T) {
	f := Filter{Must: []Condition{IsEmpty("tags")}}
	vf := ToVectorFilter(f)
	if vf == nil || len(vf.Must) != 1 {
		t.Fatalf("expected one must clause, got %+v", vf)
	}
	c := vf.Must[0]
	if !c.IsEmptyNullOr || c.IsNull {
		t.Errorf("is_empty must set IsEmptyNullOr and not collapse into plain IsNull, got %+v", c)
	}
}

func TestToVectorFilter_IsAbsentHasNoNativeLowering(t *testing.T) {
	f := Filter{Must: []Condition{IsAbsent("superseded_by")}}
	vf := ToVectorFilter(f)
	if vf == nil {
		t.Fatal("expected a non-nil filter even though the clause is dropped")
	}
	if len(vf.Must) != 0 {
		t.Errorf("expected is_absent to be dropped from the vector lowering, got %+v", vf.Must)
	}
}

func TestToSQLWhere_IsNullVsIsAbsentVsIsEmpty(t *testing.T) {
	nullWhere, _ := ToSQLWhere(Filter{Must: []Condition{IsNull("superseded_by")}}, 1)
	absentWhere, _ := ToSQLWhere(Filter{Must: []Condition{IsAbsent("superseded_by")}}, 1)
	emptyWhere, _ := ToSQLWhere(Filter{Must: []Condition{IsEmpty("superseded_by")}}, 1)

	if !strings.Contains(nullWhere, "IS NULL") {
		t.Errorf("expected IS NULL in %q", nullWhere)
	}
	if !strings.Contains(absentWhere, "IS NULL") {
		t.Errorf("expected IS NULL in %q", absentWhere)
	}
	if !strings.Contains(emptyWhere, "IS NULL") || !strings.Contains(emptyWhere, "= ''") {
		t.Errorf("expected is_empty to check both null and empty string, got %q", emptyWhere)
	}
}

func TestToSQLWhere_MatchValueUsesPositionalPlaceholder(t *testing.T) {
	where, args := ToSQLWhere(Filter{Must: []Condition{MatchValue("file_type", "pdf")}}, 3)
	if where != "file_type = $3" {
		t.Errorf("expected file_type = $3, got %q", where)
	}
	if len(args) != 1 || args[0] != "pdf" {
		t.Errorf("expected args [pdf], got %+v", args)
	}
}

func TestToFulltextString_EmptyFilterIsEmptyString(t *testing.T) {
	if got := ToFulltextString(Filter{}); got != "" {
		t.Errorf("expected empty string for an empty filter, got %q", got)
	}
}

func TestToFulltextString_MustNotIsNegated(t *testing.T) {
	f := Filter{MustNot: []Condition{MatchValue("deletion_eligible", true)}}
	got := ToFulltextString(f)
	if !strings.HasPrefix(got, "-") {
		t.Errorf("expected a negated clause, got %q", got)
	}
}
