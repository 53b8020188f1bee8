package domain

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Column describes one column of a table or view.
type Column struct {
	Name            string
	Type            string
	Nullable        bool
	RequiresQuoting bool
}

var nonIdentChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ComputeRequiresQuoting implements spec §3's invariant: a column whose
// casing differs from its upper-case form, or that contains non-alphanumeric
// underscore characters, requires quoting.
func ComputeRequiresQuoting(name string) bool {
	if name == "" {
		return false
	}
	if name != strings.ToUpper(name) {
		return true
	}
	return nonIdentChar.MatchString(name)
}

// DerivedHint is a per-table suggestion mapping a business concept onto a
// precomputed expression (e.g. a quarter extractor), surfaced to the
// Synthesizer as prompt context.
type DerivedHint struct {
	Concept    string
	Expression string
	Note       string
}

// Relationship is a single foreign-key edge between two tables.
type Relationship struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// SchemaSnapshot is the cached, read-only view of a backend's schema.
type SchemaSnapshot struct {
	DatabaseKind DatabaseKind
	Tables       map[string][]Column
	Views        map[string][]Column
	DerivedHints map[string][]DerivedHint
	Samples      map[string][]map[string]any
	Relationships []Relationship

	FetchedAt time.Time
	TTL       time.Duration
}

// Fingerprint is a stable identifier for this snapshot's content, used as
// part of the SQL fingerprint cache key (spec §3, §4.3).
func (s *SchemaSnapshot) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(string(s.DatabaseKind))
	names := make([]string, 0, len(s.Tables))
	for t := range s.Tables {
		names = append(names, t)
	}
	sort.Strings(names)
	for _, t := range names {
		sb.WriteString("|")
		sb.WriteString(t)
		for _, c := range s.Tables[t] {
			sb.WriteString(":")
			sb.WriteString(c.Name)
		}
	}
	return sb.String()
}

// Expired reports whether the snapshot's TTL has elapsed relative to now.
func (s *SchemaSnapshot) Expired(now time.Time) bool {
	if s.TTL <= 0 {
		return false
	}
	return now.After(s.FetchedAt.Add(s.TTL))
}

// DefaultSchemaCacheTTL matches spec §3/§4.8 ("cached with TTL 3600s").
const DefaultSchemaCacheTTL = 3600 * time.Second

// DefaultSampleCacheTTL matches spec §4.8 ("key sample:<TABLE>; TTL 1800s").
const DefaultSampleCacheTTL = 1800 * time.Second
