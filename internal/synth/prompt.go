// Package synth implements the SQL Synthesizer (spec §4.3): structured
// prompt composition, LLM invocation, and a nine-step post-processing
// pipeline that turns raw model output into validated GeneratedSQL.
package synth

import (
	"fmt"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
)

// PromptInputs bundles everything the prompt builder needs, matching
// spec §4.3's ordered composition list (a)-(l).
type PromptInputs struct {
	Dialect           domain.DatabaseKind
	Skills            domain.SkillsOutput
	Schema            *domain.SchemaSnapshot
	ReferencedTables  []string
	History           []string // (i) retrieved similar past successful queries
	MetricLibrary     string   // (j) canonical business-metric library section
	RoleLimits        string   // (k) scope constraints from role limits
}

// BuildPrompt composes the structured prompt in the exact section order
// spec §4.3 specifies. It is never a language-specific template string:
// every section is built up field by field onto a strings.Builder.
func BuildPrompt(in PromptInputs) []external.LLMMessage {
	var sb strings.Builder

	// (a) header declaring target dialect + hard rule.
	sb.WriteString(fmt.Sprintf("Target dialect: %s. Emit only %s-compatible SQL; never mix dialect syntax.\n\n", in.Dialect, in.Dialect))

	// (b) validated column-mapping block from Skills.
	sb.WriteString("Column mappings:\n")
	for _, m := range in.Skills.Mappings {
		if m.Kind == domain.MappingNotFound {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s -> %s (%s, confidence %d)\n", m.Concept, m.Expression, m.Kind, m.Confidence))
	}
	sb.WriteString("\n")

	// (c) schemas of explicitly mentioned tables + mandatory constraints.
	sb.WriteString("Mandatory schema constraints:\n")
	for _, table := range in.ReferencedTables {
		cols := in.Schema.Tables[table]
		sb.WriteString(fmt.Sprintf("Table %s:\n", table))
		for _, c := range cols {
			quote := ""
			if c.RequiresQuoting {
				quote = " [REQUIRES QUOTES]"
			}
			sb.WriteString(fmt.Sprintf("  %s %s%s\n", c.Name, c.Type, quote))
		}
	}
	sb.WriteString("\n")

	// (d) full schema summary as compact reference.
	sb.WriteString("Full schema summary:\n")
	for table, cols := range in.Schema.Tables {
		names := make([]string, 0, len(cols))
		for _, c := range cols {
			names = append(names, c.Name)
		}
		sb.WriteString(fmt.Sprintf("  %s(%s)\n", table, strings.Join(names, ", ")))
	}
	sb.WriteString("\n")

	// (e) implicit-operation hints.
	sb.WriteString("Implicit operation hints:\n")
	sb.WriteString(fmt.Sprintf("  group_by: %v\n  order_by: %v\n  limit: %d\n  aggregations: %v\n\n",
		in.Skills.ImplicitOps.GroupByHints, in.Skills.ImplicitOps.OrderByHints, in.Skills.ImplicitOps.LimitHint, in.Skills.ImplicitOps.AggregationHints))

	// (f) sample data snippets (up to two rows per referenced table).
	sb.WriteString("Sample data:\n")
	for _, table := range in.ReferencedTables {
		samples := in.Schema.Samples[table]
		for i, row := range samples {
			if i >= 2 {
				break
			}
			sb.WriteString(fmt.Sprintf("  %s row %d: %v\n", table, i+1, row))
		}
	}
	sb.WriteString("\n")

	// (g) table-relationship and ranked-join-path hints.
	if len(in.Schema.Relationships) > 0 {
		sb.WriteString("Relationships:\n")
		for _, r := range in.Schema.Relationships {
			sb.WriteString(fmt.Sprintf("  %s.%s -> %s.%s\n", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn))
		}
		sb.WriteString("\n")
	}

	// (h) derived-column hints.
	if len(in.Schema.DerivedHints) > 0 {
		sb.WriteString("Derived column hints:\n")
		for table, hints := range in.Schema.DerivedHints {
			for _, h := range hints {
				sb.WriteString(fmt.Sprintf("  %s.%s = %s (%s)\n", table, h.Concept, h.Expression, h.Note))
			}
		}
		sb.WriteString("\n")
	}

	// (i) retrieved similar past successful queries (<=3).
	if len(in.History) > 0 {
		sb.WriteString("Similar past queries:\n")
		for i, q := range in.History {
			if i >= 3 {
				break
			}
			sb.WriteString("  " + q + "\n")
		}
		sb.WriteString("\n")
	}

	// (j) canonical business-metric library section.
	if in.MetricLibrary != "" {
		sb.WriteString("Business metric library:\n" + in.MetricLibrary + "\n\n")
	}

	// (k) scope constraints from role limits.
	if in.RoleLimits != "" {
		sb.WriteString("Scope constraints: " + in.RoleLimits + "\n\n")
	}

	// (l) syntactic output rules.
	sb.WriteString("Output rules: return SQL only, no code fences, no explanations. " +
		"End with a line `-- CONFIDENCE: N%`. If you cannot proceed without more " +
		"information, return only a `-- ERROR:` comment describing the missing concept.\n")

	return []external.LLMMessage{
		{Role: "system", Content: "You are a SQL generation engine. Follow every instruction in the prompt exactly."},
		{Role: "user", Content: sb.String()},
	}
}
