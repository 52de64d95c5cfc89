package waystone

import (
	"fmt"
	"strings"
)

// Filter is a query filter expression of the form "field op value",
// combinable with And. The client never interprets filter semantics; the
// builder only assembles the expression string the server expects.
type Filter struct {
	clauses []string
}

func clause(field, op string, value any) Filter {
	return Filter{clauses: []string{fmt.Sprintf("%s %s %v", field, op, value)}}
}

// Eq matches entities whose field equals value.
func Eq(field string, value any) Filter { return clause(field, "eq", value) }

// Ne matches entities whose field does not equal value.
func Ne(field string, value any) Filter { return clause(field, "ne", value) }

// Gt matches entities whose field is greater than value.
func Gt(field string, value any) Filter { return clause(field, "gt", value) }

// Lt matches entities whose field is less than value.
func Lt(field string, value any) Filter { return clause(field, "lt", value) }

// Ge matches entities whose field is greater than or equal to value.
func Ge(field string, value any) Filter { return clause(field, "ge", value) }

// Le matches entities whose field is less than or equal to value.
func Le(field string, value any) Filter { return clause(field, "le", value) }

// Contains matches entities whose field contains value.
func Contains(field string, value any) Filter { return clause(field, "contains", value) }

// StartsWith matches entities whose field starts with value.
func StartsWith(field string, value any) Filter { return clause(field, "startswith", value) }

// EndsWith matches entities whose field ends with value.
func EndsWith(field string, value any) Filter { return clause(field, "endswith", value) }

// And combines filters conjunctively.
func (f Filter) And(others ...Filter) Filter {
	combined := Filter{clauses: append([]string(nil), f.clauses...)}
	for _, o := range others {
		combined.clauses = append(combined.clauses, o.clauses...)
	}
	return combined
}

// String renders the filter expression.
func (f Filter) String() string {
	return strings.Join(f.clauses, " and ")
}
