// Package injection implements the multi-layer SQL injection pattern
// detector (spec §4.4 check 1), translated category-for-category from the
// original Python detector's regex catalog.
package injection

import (
	"regexp"

	"github.com/nlsql/gateway/internal/domain"
)

// Thresholds mirror the original detector's constants exactly.
const (
	MaxOrClauses    = 5
	MaxUnionSelects = 3
	MaxQueryNesting = 4
	MaxComments     = 2
)

type patternEntry struct {
	kind       string
	severity   domain.InjectionSeverity
	pattern    *regexp.Regexp
	mitigation string
	weight     float64
}

var unionPatterns = []patternEntry{
	{"union_based", domain.SeverityCritical, regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`), "parameterize or reject raw UNION SELECT", 40},
	{"union_based", domain.SeverityHigh, regexp.MustCompile(`(?i)\bunion\b.*\bselect\b.*\bfrom\b`), "review UNION usage", 30},
}

var errorPatterns = []patternEntry{
	{"error_based", domain.SeverityHigh, regexp.MustCompile(`(?i)\bextractvalue\s*\(`), "blind error-based extraction attempt", 30},
	{"error_based", domain.SeverityHigh, regexp.MustCompile(`(?i)\bupdatexml\s*\(`), "blind error-based extraction attempt", 30},
	{"error_based", domain.SeverityMedium, regexp.MustCompile(`(?i)\bconvert\s*\(.*using\b`), "conversion-based probing", 15},
}

var booleanBlindPatterns = []patternEntry{
	{"boolean_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`), "boolean-blind tautology", 30},
	{"boolean_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\band\s+1\s*=\s*1\b`), "boolean-blind tautology", 25},
	{"boolean_blind", domain.SeverityMedium, regexp.MustCompile(`(?i)\b(?:or|and)\s+'[^']*'\s*=\s*'[^']*'`), "boolean-blind string tautology", 15},
}

var timeBlindPatterns = []patternEntry{
	{"time_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\bsleep\s*\(\s*\d+\s*\)`), "time-based blind injection", 30},
	{"time_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\bpg_sleep\s*\(`), "time-based blind injection", 30},
	{"time_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`), "time-based blind injection", 30},
	{"time_blind", domain.SeverityHigh, regexp.MustCompile(`(?i)\bdbms_lock\.sleep\b`), "time-based blind injection", 30},
}

var stackedQueryPatterns = []patternEntry{
	{"stacked_queries", domain.SeverityCritical, regexp.MustCompile(`(?i);\s*(drop|delete|truncate|update|insert|alter)\b`), "stacked query with DDL/DML", 50},
	{"stacked_queries", domain.SeverityHigh, regexp.MustCompile(`(?i);\s*select\b`), "stacked query", 25},
}

var commentPatterns = []patternEntry{
	{"comment_injection", domain.SeverityMedium, regexp.MustCompile(`/\*.*?\*/`), "inline comment obfuscation", 10},
	{"comment_injection", domain.SeverityLow, regexp.MustCompile(`--[^\n]*`), "trailing comment", 5},
}

var stringEscapePatterns = []patternEntry{
	{"string_escape", domain.SeverityMedium, regexp.MustCompile(`''`), "doubled-quote escape sequence", 10},
	{"string_escape", domain.SeverityMedium, regexp.MustCompile(`\\x[0-9a-fA-F]{2}`), "hex-escape sequence", 15},
}

var oobPatterns = []patternEntry{
	{"out_of_band", domain.SeverityCritical, regexp.MustCompile(`(?i)\bload_file\s*\(`), "out-of-band file read", 45},
	{"out_of_band", domain.SeverityCritical, regexp.MustCompile(`(?i)\bpg_read_file\s*\(`), "out-of-band file read", 45},
	{"out_of_band", domain.SeverityCritical, regexp.MustCompile(`(?i)\bxp_cmdshell\b`), "out-of-band command execution", 50},
	{"out_of_band", domain.SeverityCritical, regexp.MustCompile(`(?i)\butl_http\.`), "out-of-band network call", 45},
	{"out_of_band", domain.SeverityCritical, regexp.MustCompile(`(?i)\butl_inaddr\.`), "out-of-band DNS exfiltration", 45},
}

var storedProcPatterns = []patternEntry{
	{"stored_proc", domain.SeverityHigh, regexp.MustCompile(`(?i)\bexec(?:ute)?\s+\w+`), "stored procedure invocation", 25},
	{"stored_proc", domain.SeverityHigh, regexp.MustCompile(`(?i)\bsp_executesql\b`), "dynamic SQL execution", 30},
}

var subqueryPatterns = []patternEntry{
	{"subquery", domain.SeverityLow, regexp.MustCompile(`(?i)\(\s*select\b`), "nested subquery", 5},
}

var secondOrderIndicators = []patternEntry{
	{"second_order", domain.SeverityMedium, regexp.MustCompile(`(?i)\binsert\s+into\b.*\bselect\b`), "second-order injection vector", 15},
}

var dangerousFunctions = []patternEntry{
	{"dangerous_function", domain.SeverityCritical, regexp.MustCompile(`(?i)\bdbms_java\b`), "arbitrary code execution surface", 50},
	{"dangerous_function", domain.SeverityCritical, regexp.MustCompile(`(?i)\bdbms_scheduler\b`), "scheduled job injection surface", 40},
}

var obscureSeqPatterns = []patternEntry{
	{"obscure_sequence", domain.SeverityMedium, regexp.MustCompile(`0x[0-9a-fA-F]{16,}`), "large hex blob", 15},
	{"obscure_sequence", domain.SeverityLow, regexp.MustCompile(`(?:char|chr)\s*\(\s*\d+\s*\)(?:\s*\|\|?\s*(?:char|chr)\s*\(\s*\d+\s*\))+`), "character-code obfuscation", 10},
}

var allCategories = [][]patternEntry{
	unionPatterns, errorPatterns, booleanBlindPatterns, timeBlindPatterns,
	stackedQueryPatterns, commentPatterns, stringEscapePatterns, oobPatterns,
	storedProcPatterns, subqueryPatterns, secondOrderIndicators, dangerousFunctions,
	obscureSeqPatterns,
}

var orClausePattern = regexp.MustCompile(`(?i)\bor\b`)
var unionSelectPattern = regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)
var openParenPattern = regexp.MustCompile(`\(`)

// Detector is a pure function, no side effects (spec §6 "Injection
// detector").
type Detector struct{}

func New() *Detector { return &Detector{} }

// Scan implements the pattern-match phase of spec §4.4 check 1: pattern
// findings plus structural excess checks (OR clauses, UNION SELECTs,
// nesting depth, comment count), folded into one weighted, capped risk
// score.
func (d *Detector) Scan(sql string) ([]domain.InjectionFinding, float64) {
	var findings []domain.InjectionFinding
	var score float64

	for _, category := range allCategories {
		for _, p := range category {
			if p.pattern.MatchString(sql) {
				findings = append(findings, domain.InjectionFinding{
					Kind:       p.kind,
					Severity:   p.severity,
					Pattern:    p.pattern.String(),
					Confidence: confidenceFor(p.severity),
					Mitigation: p.mitigation,
				})
				score += p.weight
			}
		}
	}

	orCount := len(orClausePattern.FindAllString(sql, -1))
	if orCount > MaxOrClauses {
		findings = append(findings, domain.InjectionFinding{
			Kind: "excessive_or_clauses", Severity: domain.SeverityMedium,
			Pattern: "or-clause-count", Confidence: 0.6,
			Mitigation: "reduce boolean branching or parameterize",
		})
		score += 15
	}

	unionCount := len(unionSelectPattern.FindAllString(sql, -1))
	if unionCount > MaxUnionSelects {
		findings = append(findings, domain.InjectionFinding{
			Kind: "excessive_union_selects", Severity: domain.SeverityHigh,
			Pattern: "union-select-count", Confidence: 0.7,
			Mitigation: "reduce UNION SELECT count",
		})
		score += 20
	}

	nesting := len(openParenPattern.FindAllString(sql, -1))
	if nesting > MaxQueryNesting {
		findings = append(findings, domain.InjectionFinding{
			Kind: "deep_nesting", Severity: domain.SeverityMedium,
			Pattern: "paren-nesting-depth", Confidence: 0.5,
			Mitigation: "flatten deeply nested subqueries",
		})
		score += 10
	}

	commentCount := len(commentPatterns[0].pattern.FindAllString(sql, -1)) + len(commentPatterns[1].pattern.FindAllString(sql, -1))
	if commentCount > MaxComments {
		findings = append(findings, domain.InjectionFinding{
			Kind: "excessive_comments", Severity: domain.SeverityLow,
			Pattern: "comment-count", Confidence: 0.4,
			Mitigation: "remove unnecessary comments",
		})
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return findings, score
}

func confidenceFor(sev domain.InjectionSeverity) float64 {
	switch sev {
	case domain.SeverityCritical:
		return 0.95
	case domain.SeverityHigh:
		return 0.8
	case domain.SeverityMedium:
		return 0.55
	default:
		return 0.3
	}
}

// HasBlockingSeverity reports whether any finding is critical or high
// severity, which spec §4.4 check 1 says always blocks.
func HasBlockingSeverity(findings []domain.InjectionFinding) bool {
	for _, f := range findings {
		if f.Severity == domain.SeverityCritical || f.Severity == domain.SeverityHigh {
			return true
		}
	}
	return false
}
