// Package sqlguard screens model-generated SQL before it may reach the
// database. It is the enforced safety boundary for fragment text that
// gets interpolated into the canned product query, so every rule lives
// here and nowhere else.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultKeywords are statement keywords that must never appear in
// generated SQL, matched as whole words in any casing.
var DefaultKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE", "TRUNCATE", "EXEC", "EXECUTE",
}

// DefaultFragmentPatterns are substrings forbidden in WHERE-fragment
// text. Full SELECT statements legitimately carry schema-qualified
// names, so these apply to fragments only.
var DefaultFragmentPatterns = []string{
	"information_schema",
	"pg_catalog",
	"pg_",
	"myaso.products",
	"::text",
	"::int",
	"::varchar",
	"cast(",
	"convert(",
}

// Config lets deployments extend the built-in lists without code
// changes. Nil slices fall back to the defaults.
type Config struct {
	Keywords         []string
	FragmentPatterns []string
}

// RejectionError reports the first rule a candidate violated. The
// message doubles as the feedback passed to the generator on retry.
type RejectionError struct {
	Kind string // "keyword" or "pattern"
	Term string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Term)
}

type keywordRule struct {
	term    string
	pattern *regexp.Regexp
}

type Guard struct {
	keywords []keywordRule
	patterns []string
}

func New(cfg *Config) *Guard {
	keywords := DefaultKeywords
	patterns := DefaultFragmentPatterns
	if cfg != nil {
		if len(cfg.Keywords) > 0 {
			keywords = cfg.Keywords
		}
		if len(cfg.FragmentPatterns) > 0 {
			patterns = cfg.FragmentPatterns
		}
	}

	guard := &Guard{patterns: make([]string, 0, len(patterns))}
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		guard.keywords = append(guard.keywords, keywordRule{
			term:    keyword,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
		})
	}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		guard.patterns = append(guard.patterns, pattern)
	}
	return guard
}

// ScanKeywords reports the first denylisted keyword appearing in text
// as a whole word. Substring hits inside longer identifiers, such as a
// column named dropped_at, do not count.
func (g *Guard) ScanKeywords(text string) (string, bool) {
	for _, rule := range g.keywords {
		if rule.pattern.MatchString(text) {
			return rule.term, true
		}
	}
	return "", false
}

// Check validates candidate SQL. Fragment candidates additionally go
// through the forbidden-pattern list. The first violation rejects the
// candidate outright; there is no partial fixing.
func (g *Guard) Check(text string, fragment bool) error {
	if keyword, found := g.ScanKeywords(text); found {
		return &RejectionError{Kind: "keyword", Term: keyword}
	}
	if !fragment {
		return nil
	}
	lowered := strings.ToLower(text)
	for _, pattern := range g.patterns {
		if strings.Contains(lowered, pattern) {
			return &RejectionError{Kind: "pattern", Term: pattern}
		}
	}
	return nil
}
