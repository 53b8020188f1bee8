package synth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// ClarificationError is returned by Synthesize when the LLM call itself
// fails. An `-- ERROR:` marker found by post-processing step 2 is reported
// as a domain.Clarification instead.
type ClarificationError struct {
	Message string
}

func (e *ClarificationError) Error() string { return e.Message }

// InvalidIdentifierError signals post-processing step 7 found an
// identifier that is neither a keyword, an allowlisted function, nor a
// schema column (spec §4.3 step 7: hard stop, no retry).
type InvalidIdentifierError struct {
	Identifiers []string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifiers: %s", strings.Join(e.Identifiers, ", "))
}

var (
	fencePattern      = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?|```")
	sqlLabelPattern   = regexp.MustCompile(`(?i)^\s*SQL:\s*`)
	firstStmtPattern  = regexp.MustCompile(`(?im)^\s*(SELECT|WITH|INSERT|UPDATE|DELETE|--)`)
	errorMarkerPat    = regexp.MustCompile(`(?i)--\s*ERROR:\s*(.+)`)
	confidenceComment = regexp.MustCompile(`(?i)--\s*CONFIDENCE:\s*(\d+)%`)
)

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true, "ORDER": true,
	"LIMIT": true, "FETCH": true, "FIRST": true, "ROWS": true, "ONLY": true, "AND": true,
	"OR": true, "NOT": true, "IN": true, "AS": true, "ON": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "OUTER": true, "HAVING": true, "DISTINCT": true, "ASC": true,
	"DESC": true, "NULL": true, "IS": true, "BETWEEN": true, "LIKE": true, "UNION": true,
	"ALL": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"WITH": true, "OFFSET": true, "EXTRACT": true, "FROM_UNIXTIME": true,
}

var functionAllowlist = map[string]bool{
	"SUM": true, "AVG": true, "COUNT": true, "MAX": true, "MIN": true,
	"TO_CHAR": true, "EXTRACT": true, "DATE": true, "DAY": true, "MONTH": true,
	"YEAR": true, "QUARTER": true, "ROUND": true, "COALESCE": true, "NVL": true,
	"CAST": true, "UPPER": true, "LOWER": true, "TRIM": true, "SUBSTR": true,
	"SUBSTRING": true, "CONCAT": true,
}

// Step 1: strip fences, leading "SQL:" labels, and stray prose; keep only
// from the first SELECT|WITH|INSERT|UPDATE|DELETE|-- line.
func stripFencesAndLabels(raw string) string {
	s := fencePattern.ReplaceAllString(raw, "")
	s = sqlLabelPattern.ReplaceAllString(s, "")

	loc := firstStmtPattern.FindStringIndex(s)
	if loc != nil {
		s = s[loc[0]:]
	}
	return strings.TrimSpace(s)
}

// Step 2: detect clarification markers.
func detectClarificationMarker(sql string) (string, bool) {
	m := errorMarkerPat.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Step 3: extract CONFIDENCE comment, strip from SQL.
func extractConfidence(sql string) (cleaned string, confidence int) {
	m := confidenceComment.FindStringSubmatch(sql)
	confidence = 70
	if m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			confidence = n
		}
	}
	cleaned = confidenceComment.ReplaceAllString(sql, "")
	return strings.TrimSpace(cleaned), confidence
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Step 4: normalize identifiers against the schema (quote where required,
// correct casing).
func normalizeIdentifiers(sql string, schema *domain.SchemaSnapshot) (string, bool) {
	normalized := false
	byUpper := map[string]domain.Column{}
	for _, cols := range schema.Tables {
		for _, c := range cols {
			byUpper[strings.ToUpper(c.Name)] = c
		}
	}

	result := identifierPattern.ReplaceAllStringFunc(sql, func(tok string) string {
		col, ok := byUpper[strings.ToUpper(tok)]
		if !ok {
			return tok
		}
		if col.Name != tok {
			normalized = true
		}
		if col.RequiresQuoting {
			normalized = true
			return `"` + col.Name + `"`
		}
		return col.Name
	})
	return result, normalized
}

// Step 5: if multiple statements separated by ';' were emitted, take only
// the first and record a warning.
func takeFirstStatement(sql string) (string, []string) {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	parts := splitTopLevelStatements(trimmed)
	if len(parts) <= 1 {
		return trimmed, nil
	}
	return strings.TrimSpace(parts[0]), []string{"multiple statements returned; only the first was kept"}
}

// splitTopLevelStatements splits on ';' outside of quoted strings.
func splitTopLevelStatements(sql string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := rune(0)
	for _, r := range sql {
		switch {
		case inQuote != 0:
			sb.WriteRune(r)
			if r == inQuote {
				inQuote = 0
			}
		case r == '\'' || r == '"':
			inQuote = r
			sb.WriteRune(r)
		case r == ';':
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if strings.TrimSpace(sb.String()) != "" {
		parts = append(parts, sb.String())
	}
	return parts
}

var unquotedIdentBeforeDot = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\b`)

// Step 6: for Postgres, downcase unquoted identifiers to match the
// default lowercase folding. A quote-aware scanner skips anything inside
// single or double quotes, per the Open Question decision to keep this
// regex-based but quote-aware rather than guess at a full parser.
func downcasePostgresIdentifiers(sql string) string {
	var sb strings.Builder
	inSingle, inDouble := false, false
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			sb.WriteByte(c)
			i++
		case c == '"' && !inSingle:
			inDouble = !inDouble
			sb.WriteByte(c)
			i++
		case inSingle || inDouble:
			sb.WriteByte(c)
			i++
		case isIdentByte(c):
			j := i
			for j < len(sql) && isIdentByte(sql[j]) {
				j++
			}
			word := sql[i:j]
			if sqlKeywords[strings.ToUpper(word)] || functionAllowlist[strings.ToUpper(word)] {
				sb.WriteString(word)
			} else {
				sb.WriteString(strings.ToLower(word))
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// aliasPattern finds SELECT-list aliases introduced by "AS <alias>", the
// same construct the original implementation strips before checking
// identifiers (sql_generation.py's dotted table.column extraction never
// sees the token after AS).
var aliasPattern = regexp.MustCompile(`(?i)\bAS\s+([A-Za-z_][A-Za-z0-9_]*)`)

// blankQuotedLiterals replaces the contents of every quoted string with
// spaces so literal text (date-part codes, string constants) is never
// mistaken for an identifier reference.
func blankQuotedLiterals(sql string) string {
	var sb strings.Builder
	inQuote := rune(0)
	for _, r := range sql {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
			sb.WriteRune(' ')
		case r == '\'' || r == '"':
			inQuote = r
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Step 7: validate every identifier used is a keyword, an allowlisted
// function, a schema name, or a query-introduced alias; hard stop if not
// (no retry — route to clarification). Quoted literal spans are excluded
// from the scan entirely, matching the original's dotted table.column-only
// extraction which never inspects string contents or bare SELECT aliases.
func validateIdentifiers(sql string, schema *domain.SchemaSnapshot) error {
	known := map[string]bool{}
	for _, cols := range schema.Tables {
		for _, c := range cols {
			known[strings.ToUpper(c.Name)] = true
		}
	}
	for t := range schema.Tables {
		known[strings.ToUpper(t)] = true
	}

	scanned := blankQuotedLiterals(sql)

	aliases := map[string]bool{}
	for _, m := range aliasPattern.FindAllStringSubmatch(scanned, -1) {
		aliases[strings.ToUpper(m[1])] = true
	}

	var bad []string
	seen := map[string]bool{}
	for _, tok := range identifierPattern.FindAllString(scanned, -1) {
		up := strings.ToUpper(tok)
		if sqlKeywords[up] || functionAllowlist[up] || known[up] || aliases[up] || seen[up] {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			continue
		}
		seen[up] = true
		bad = append(bad, tok)
	}
	if len(bad) > 0 {
		return &InvalidIdentifierError{Identifiers: bad}
	}
	return nil
}

// applyRowLimit appends the dialect-appropriate row-limiting clause,
// using the effective cap: min(role_cap, hard_cap) per the Open Question
// decision (role cap applied first, then the hard cap clamps it).
func applyRowLimit(sql string, dialect domain.DatabaseKind, roleCap, hardCap int) string {
	cap := roleCap
	if hardCap > 0 && (cap <= 0 || hardCap < cap) {
		cap = hardCap
	}
	if cap <= 0 {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if strings.Contains(strings.ToUpper(trimmed), "FETCH FIRST") || strings.Contains(strings.ToUpper(trimmed), " LIMIT ") {
		return trimmed
	}
	switch dialect {
	case domain.DatabaseOracle:
		return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", trimmed, cap)
	default:
		return fmt.Sprintf("%s LIMIT %d", trimmed, cap)
	}
}
