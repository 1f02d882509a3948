package nlsql

import (
	"fmt"
	"regexp"
	"strings"
)

const schemaName = "myaso"

// knownTables are the only tables generated SELECT statements may
// reference; alias rewriting and schema prefixing apply to them alone.
var knownTables = []string{"products", "price_history"}

var (
	fenceLinePattern    = regexp.MustCompile("^\\s*```")
	leadingWherePattern = regexp.MustCompile(`(?i)^\s*WHERE\b\s*`)
	qualifiedColPattern = regexp.MustCompile(`\b(?:[A-Za-z_][A-Za-z0-9_]*\.)+([A-Za-z_][A-Za-z0-9_]*)\b`)
	asAliasPattern      = regexp.MustCompile(`(?i)\s+AS\s+[A-Za-z_][A-Za-z0-9_]*`)
	placeholderPattern  = regexp.MustCompile(`\{+[\p{L}_][\p{L}\p{N}_]*\}+`)
)

// fromJoinPattern captures FROM/JOIN clause heads over known tables: the
// keyword, an optional schema prefix, the table, and an optional alias
// token.
var fromJoinPattern = regexp.MustCompile(
	`(?i)\b(FROM|JOIN)\s+(?:(` + schemaName + `)\s*\.\s*)?(products|price_history)\b(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*))?`)

// reservedAfterTable are tokens that follow a table reference without
// being an alias.
var reservedAfterTable = map[string]struct{}{
	"where": {}, "on": {}, "join": {}, "inner": {}, "left": {}, "right": {},
	"full": {}, "cross": {}, "outer": {}, "group": {}, "order": {}, "by": {},
	"having": {}, "limit": {}, "offset": {}, "union": {}, "using": {},
	"natural": {}, "and": {}, "or": {}, "not": {}, "asc": {}, "desc": {},
}

// stripCodeFences removes Markdown fence lines when the model wrapped
// its answer in a code block.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	var kept []string
	for _, line := range strings.Split(trimmed, "\n") {
		if fenceLinePattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// escapePlaceholders doubles the braces of any {identifier} that is not
// a recognized substitution variable, so prompt text loaded from the
// database cannot smuggle template variables into the prompting layer.
// Already-escaped {{identifier}} runs are left alone.
func escapePlaceholders(text string, recognized map[string]struct{}) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.Trim(match, "{}")
		if len(match) != len(name)+2 {
			return match
		}
		if _, ok := recognized[name]; ok {
			return match
		}
		return "{{" + name + "}}"
	})
}

// normalizeFragment canonicalizes WHERE-condition text: a redundant
// leading WHERE is stripped until absent, qualified column references
// are reduced to bare column names, and AS aliases are dropped. The
// transform is idempotent.
func normalizeFragment(text string) string {
	s := strings.TrimSpace(text)
	for leadingWherePattern.MatchString(s) {
		s = leadingWherePattern.ReplaceAllString(s, "")
	}
	s = qualifiedColPattern.ReplaceAllString(s, "$1")
	s = asAliasPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// canonicalizeSelect rewrites a full SELECT so every reference to a
// known table is schema-qualified and alias-free. Models are sloppy
// about alias discipline; rewriting to one canonical form removes the
// whole class of ambiguous-reference failures without rejecting
// otherwise usable statements. Scoped regex passes are sufficient for
// the two-table grammar; no SQL parser is involved.
func canonicalizeSelect(text string) string {
	s := strings.TrimSpace(text)

	// Pass 1: collect alias bindings from FROM/JOIN clause heads.
	aliases := map[string]string{}
	for _, m := range fromJoinPattern.FindAllStringSubmatch(s, -1) {
		table, alias := m[3], m[4]
		if alias == "" {
			continue
		}
		if _, reserved := reservedAfterTable[strings.ToLower(alias)]; reserved {
			continue
		}
		aliases[alias] = schemaName + "." + strings.ToLower(table)
	}

	// Pass 2: qualify every alias.column and alias.* occurrence.
	for alias, qualified := range aliases {
		quoted := regexp.QuoteMeta(alias)
		starPattern := regexp.MustCompile(`(?i)\b` + quoted + `\s*\.\s*\*`)
		s = starPattern.ReplaceAllString(s, qualified+".*")
		colPattern := regexp.MustCompile(`(?i)\b` + quoted + `\s*\.\s*([A-Za-z_][A-Za-z0-9_]*)`)
		s = colPattern.ReplaceAllString(s, qualified+".$1")
	}

	// Pass 3: strip alias tokens and add the schema prefix on the
	// clause heads themselves.
	s = fromJoinPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := fromJoinPattern.FindStringSubmatch(match)
		keyword, table, alias := m[1], strings.ToLower(m[3]), m[4]
		head := fmt.Sprintf("%s %s.%s", keyword, schemaName, table)
		if alias == "" {
			return head
		}
		if _, reserved := reservedAfterTable[strings.ToLower(alias)]; reserved {
			return head + " " + alias
		}
		return head
	})

	return s
}
