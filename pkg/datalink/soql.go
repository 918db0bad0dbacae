package datalink

import (
	"fmt"
	"strings"
)

// searchFields are the dataset columns a term can match against.
var searchFields = []string{
	"purchase_order_description",
	"department",
	"vendor_name",
	"contract_type",
	"specification_number",
}

// EscapeLike escapes a term for a SoQL LIKE pattern: backslash first,
// then the LIKE wildcards, then single quotes for the string literal.
func EscapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	term = strings.ReplaceAll(term, "_", `\_`)
	term = strings.ReplaceAll(term, "'", "''")
	return term
}

// BuildWhereClause ORs every term across every search field with
// case-insensitive substring matching. No terms matches nothing.
func BuildWhereClause(terms []string) string {
	if len(terms) == 0 {
		return "1=0"
	}

	orClauses := make([]string, 0, len(terms))
	for _, term := range terms {
		et := EscapeLike(term)
		fieldClauses := make([]string, 0, len(searchFields))
		for _, field := range searchFields {
			fieldClauses = append(fieldClauses,
				fmt.Sprintf(`lower(%s) like '%%%s%%' escape '\\'`, field, et))
		}
		orClauses = append(orClauses, "("+strings.Join(fieldClauses, " OR ")+")")
	}

	return "(" + strings.Join(orClauses, " OR ") + ")"
}
