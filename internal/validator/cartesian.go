package validator

import "regexp"

var (
	joinWithoutOnPattern = regexp.MustCompile(`(?i)\bjoin\s+[A-Za-z_][A-Za-z0-9_]*\s*(?:,|$|\bjoin\b|\bwhere\b|\bgroup\b|\border\b)`)
	commaJoinPattern     = regexp.MustCompile(`(?i)\bfrom\s+[A-Za-z_][A-Za-z0-9_]*\s*,\s*[A-Za-z_][A-Za-z0-9_]*`)
	wherePattern         = regexp.MustCompile(`(?i)\bwhere\b`)
)

// hasCartesianJoin implements spec §4.4 check 6, a keyword/token scanner
// (no AST — per the Open Question decision, left as-is pending a
// parser-based replacement): flags any JOIN lacking an ON/USING
// predicate, and comma-joins with no WHERE clause linking them.
func hasCartesianJoin(sql string) bool {
	if joinWithoutOnPattern.MatchString(sql) {
		return true
	}
	if commaJoinPattern.MatchString(sql) && !wherePattern.MatchString(sql) {
		return true
	}
	return false
}
