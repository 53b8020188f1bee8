package skills

import "strings"

// aliasTable maps a business concept to the physical-column abbreviations
// it commonly appears as, per spec §4.2 step 3 ("a built-in alias table").
var aliasTable = map[string][]string{
	"date":    {"DT", "TS", "TIMESTAMP", "DATE"},
	"month":   {"MON", "MM", "MTH", "MONTH"},
	"quarter": {"QTR", "Q", "QUARTER"},
	"year":    {"YR", "YYYY", "YEAR"},
	"day":     {"DY", "DD", "DAY"},
	"amount":  {"AMT", "VAL", "VALUE"},
	"revenue": {"REV", "SALES", "SALES_AMOUNT", "AMOUNT"},
	"customer": {"CUST", "CLIENT", "ACCOUNT"},
	"region":  {"AREA", "ZONE", "TERRITORY"},
	"count":   {"CNT", "QTY", "QUANTITY"},
}

// aliasesFor returns the abbreviation set for a business concept, case
// insensitively, or nil if the concept has no known aliases.
func aliasesFor(concept string) []string {
	return aliasTable[strings.ToLower(concept)]
}
