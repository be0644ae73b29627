// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterir

import (
	"fmt"
	"strings"
)

// ToSQLWhere lowers a Filter into a parameterised SQL WHERE fragment for
// the metadata backend (spec.md §4.M, §4.H). It returns the fragment (empty
// string for an all-empty Filter, meaning "no WHERE clause needed") and the
// positional arguments in order, using pgx's $N placeholder style starting
// at startArg so callers can splice this into a larger query.
func ToSQLWhere(f Filter, startArg int) (string, []any) {
	if f.IsEmptyFilter() {
		return "", nil
	}

	var args []any
	n := startArg

	nextPlaceholder := func() string {
		p := fmt.Sprintf("$%d", n)
		n++
		return p
	}

	var groups []string
	if s, a := sqlGroup(f.Must, "AND", nextPlaceholder); s != "" {
		groups = append(groups, s)
		args = append(args, a...)
	}
	if s, a := sqlGroup(f.MustNot, "AND", nextPlaceholder); s != "" {
		groups = append(groups, "NOT ("+s+")")
		args = append(args, a...)
	}
	if s, a := sqlGroup(f.Should, "OR", nextPlaceholder); s != "" {
		groups = append(groups, "("+s+")")
		args = append(args, a...)
	}

	return strings.Join(groups, " AND "), args
}

func sqlGroup(conds []Condition, joiner string, next func() string) (string, []any) {
	if len(conds) == 0 {
		return "", nil
	}
	var parts []string
	var args []any
	for _, c := range conds {
		clause, clauseArgs := sqlClause(c, next)
		if clause == "" {
			continue
		}
		parts = append(parts, clause)
		args = append(args, clauseArgs...)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, " "+joiner+" "), args
}

func sqlClause(c Condition, next func() string) (string, []any) {
	switch c.Kind {
	case KindMatchValue:
		return fmt.Sprintf("%s = %s", c.Key, next()), []any{c.Value}
	case KindMatchAny:
		ph := make([]string, len(c.Values))
		for i, v := range c.Values {
			ph[i] = next()
			_ = v
		}
		return fmt.Sprintf("%s IN (%s)", c.Key, strings.Join(ph, ", ")), c.Values
	case KindMatchExcept:
		ph := make([]string, len(c.Values))
		for i := range c.Values {
			ph[i] = next()
		}
		return fmt.Sprintf("%s NOT IN (%s)", c.Key, strings.Join(ph, ", ")), c.Values
	case KindRange:
		return sqlRangeClause(c.Key, c.Range, next)
	case KindIDIn:
		ph := make([]string, len(c.Values))
		for i := range c.Values {
			ph[i] = next()
		}
		return fmt.Sprintf("id IN (%s)", strings.Join(ph, ", ")), c.Values
	case KindIsNull:
		// The column exists on every row in a relational schema, so
		// "exists and is null" collapses to plain IS NULL here — unlike
		// the vector/fulltext backends, there is no separate "field never
		// indexed" state to confuse it with.
		return fmt.Sprintf("%s IS NULL", c.Key), nil
	case KindIsAbsent:
		return fmt.Sprintf("%s IS NULL", c.Key), nil
	case KindIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", c.Key, c.Key), nil
	default:
		return "", nil
	}
}

func sqlRangeClause(key string, r *Range, next func() string) (string, []any) {
	if r == nil {
		return "", nil
	}
	var parts []string
	var args []any
	if r.Gt != nil {
		op := ">"
		if r.Gt.Inclusive {
			op = ">="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", key, op, next()))
		args = append(args, r.Gt.Value)
	}
	if r.Lt != nil {
		op := "<"
		if r.Lt.Inclusive {
			op = "<="
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", key, op, next()))
		args = append(args, r.Lt.Value)
	}
	return strings.Join(parts, " AND "), args
}
