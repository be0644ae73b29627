// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterir

import (
	"fmt"
	"strings"
)

// ToFulltextString lowers a Filter into the opaque filter string the
// fulltext backend accepts (spec.md §4.J: "Filter is an opaque string
// passed through from §4.M"). The grammar is a flat conjunction of
// bleve-style query clauses; must_not and should groups are parenthesised
// so the bleve query string parser keeps their boolean scope.
func ToFulltextString(f Filter) string {
	if f.IsEmptyFilter() {
		return ""
	}

	var parts []string
	for _, c := range f.Must {
		if s := fulltextClause(c); s != "" {
			parts = append(parts, s)
		}
	}
	for _, c := range f.MustNot {
		if s := fulltextClause(c); s != "" {
			parts = append(parts, "-"+s)
		}
	}
	if len(f.Should) > 0 {
		var should []string
		for _, c := range f.Should {
			if s := fulltextClause(c); s != "" {
				should = append(should, s)
			}
		}
		if len(should) > 0 {
			parts = append(parts, "("+strings.Join(should, " OR ")+")")
		}
	}

	return strings.Join(parts, " AND ")
}

func fulltextClause(c Condition) string {
	switch c.Kind {
	case KindMatchValue:
		return fmt.Sprintf("%s:%v", c.Key, c.Value)
	case KindMatchAny:
		return "(" + joinAny(c.Key, c.Values, "OR") + ")"
	case KindMatchExcept:
		return "-(" + joinAny(c.Key, c.Values, "OR") + ")"
	case KindRange:
		return rangeClause(c.Key, c.Range)
	case KindIDIn:
		return "(" + joinAny("_id", c.Values, "OR") + ")"
	case KindIsNull:
		// Field present with an explicit null value: bleve has no distinct
		// null type, so this is expressed as "the field is indexed but the
		// keyword value is the empty sentinel" — left for the indexer to
		// populate consistently; the filter side only needs the keyword.
		return fmt.Sprintf("%s:\"\"", c.Key)
	case KindIsAbsent:
		return fmt.Sprintf("-_exists_:%s", c.Key)
	case KindIsEmpty:
		return fmt.Sprintf("(-_exists_:%s OR %s:\"\")", c.Key, c.Key)
	default:
		return ""
	}
}

func joinAny(key string, values []any, op string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%s:%v", key, v))
	}
	return strings.Join(parts, " "+op+" ")
}

func rangeClause(key string, r *Range) string {
	if r == nil {
		return ""
	}
	lo, hi := "*", "*"
	loIncl, hiIncl := true, true
	if r.Gt != nil {
		lo = fmt.Sprintf("%v", r.Gt.Value)
		loIncl = r.Gt.Inclusive
	}
	if r.Lt != nil {
		hi = fmt.Sprintf("%v", r.Lt.Value)
		hiIncl = r.Lt.Inclusive
	}
	open := "{"
	if loIncl {
		open = "["
	}
	close := "}"
	if hiIncl {
		close = "]"
	}
	return fmt.Sprintf("%s:%s%s TO %s%s", key, open, lo, hi, close)
}
