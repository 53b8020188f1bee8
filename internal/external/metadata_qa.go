package external

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
)

// SchemaMetadataQA implements MetadataQA by rendering plain-text table and
// column listings straight off the cached SchemaSnapshot, the same
// "describe X" / "what tables do you have" data the Skills Engine already
// resolves against. No templating library exists anywhere in the example
// pack for a rendering job this small, so this stays on strings.Builder.
type SchemaMetadataQA struct{}

// NewSchemaMetadataQA builds a SchemaMetadataQA.
func NewSchemaMetadataQA() *SchemaMetadataQA {
	return &SchemaMetadataQA{}
}

var describeTablePattern = regexp.MustCompile(`(?i)describe\s+([A-Za-z0-9_]+)`)

// Answer renders a metadata_query answer for question against schema. It
// recognizes "describe <table>" and otherwise falls back to listing every
// known table.
func (SchemaMetadataQA) Answer(ctx context.Context, question string, schema *domain.SchemaSnapshot) (string, error) {
	if schema == nil {
		return "No schema is currently available.", nil
	}
	if m := describeTablePattern.FindStringSubmatch(question); m != nil {
		return describeTable(schema, m[1]), nil
	}
	return listTables(schema), nil
}

func describeTable(schema *domain.SchemaSnapshot, table string) string {
	cols, ok := lookupTable(schema, table)
	if !ok {
		return "No table named " + table + " was found in the current schema."
	}
	var sb strings.Builder
	sb.WriteString(table + " has the following columns:\n")
	for _, c := range cols {
		sb.WriteString("- " + c.Name + " (" + c.Type)
		if c.Nullable {
			sb.WriteString(", nullable")
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

func lookupTable(schema *domain.SchemaSnapshot, table string) ([]domain.Column, bool) {
	target := strings.ToLower(table)
	for name, cols := range schema.Tables {
		if strings.ToLower(name) == target {
			return cols, true
		}
	}
	for name, cols := range schema.Views {
		if strings.ToLower(name) == target {
			return cols, true
		}
	}
	return nil, false
}

func listTables(schema *domain.SchemaSnapshot) string {
	names := make([]string, 0, len(schema.Tables)+len(schema.Views))
	for name := range schema.Tables {
		names = append(names, name)
	}
	for name := range schema.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "No tables are currently available."
	}
	return "Available tables: " + strings.Join(names, ", ")
}
