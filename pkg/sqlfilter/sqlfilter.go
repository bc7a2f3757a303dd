// Package sqlfilter renders rbac row filters into parameterized PostgreSQL.
//
// Column names are quoted with pq.QuoteIdentifier and values are always
// returned as bind arguments, never spliced into the clause:
//
//	filter, err := authorizer.ScopeFilter(ctx, userID, "risks")
//	cond, args := sqlfilter.Where("status = $1 OR status = $2", []any{"open", "new"}, filter)
//	query := "SELECT * FROM risks WHERE " + cond + " ORDER BY id"
//	// SELECT * FROM risks WHERE (status = $1 OR status = $2) AND ("organization_id" = $3) ORDER BY id
//
// The caller's condition is always parenthesised, so the row restriction
// applies to every branch of it.
package sqlfilter

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/warrant/pkg/rbac"
)

// alwaysFalse replaces a predicate whose operator cannot be rendered
const alwaysFalse = "FALSE"

var operators = map[rbac.Operator]string{
	rbac.OpEqual: "=",
}

// Render converts f into a parenthesised clause whose placeholders start at
// $firstPlaceholder. An empty filter renders as an empty clause.
func Render(f rbac.Filter, firstPlaceholder int) (string, []any) {
	if f.IsEmpty() {
		return "", nil
	}
	if firstPlaceholder < 1 {
		firstPlaceholder = 1
	}

	joiner := " AND "
	if f.Match == rbac.MatchAny {
		joiner = " OR "
	}

	parts := make([]string, 0, len(f.Predicates))
	args := make([]any, 0, len(f.Predicates))
	n := firstPlaceholder
	for _, p := range f.Predicates {
		op, ok := operators[p.Operator]
		if !ok {
			parts = append(parts, alwaysFalse)
			continue
		}
		parts = append(parts, pq.QuoteIdentifier(p.Field)+" "+op+" $"+strconv.Itoa(n))
		args = append(args, p.Value)
		n++
	}

	return "(" + strings.Join(parts, joiner) + ")", args
}

// alwaysTrue is the condition of an unrestricted query without caller terms
const alwaysTrue = "TRUE"

// Where combines the caller's condition cond, bound by args, with f into one
// WHERE condition without the keyword. Placeholders of f continue after args.
// An empty cond with an empty filter yields TRUE.
func Where(cond string, args []any, f rbac.Filter) (string, []any) {
	clause, filterArgs := Render(f, len(args)+1)
	cond = strings.TrimSpace(cond)

	out := make([]any, 0, len(args)+len(filterArgs))
	out = append(out, args...)
	out = append(out, filterArgs...)

	switch {
	case cond == "" && clause == "":
		return alwaysTrue, out
	case cond == "":
		return clause, out
	case clause == "":
		return "(" + cond + ")", out
	default:
		return "(" + cond + ") AND " + clause, out
	}
}
