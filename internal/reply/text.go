package reply

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldOnRequest replaces a missing or placeholder field value.
const FieldOnRequest = "по запросу"

var missingFieldValues = map[string]struct{}{
	"":           {},
	"не указано": {},
	"null":       {},
	"none":       {},
}

// NormalizeField maps empty and placeholder text to the "on request"
// sentinel; everything else passes through trimmed.
func NormalizeField(value string) string {
	trimmed := strings.TrimSpace(value)
	if _, missing := missingFieldValues[strings.ToLower(trimmed)]; missing {
		return FieldOnRequest
	}
	return trimmed
}

// NormalizeNumber renders a numeric field, dropping a trailing .0 and
// mapping zero to the "on request" sentinel. Zero means unknown in the
// catalog, never a free product.
func NormalizeNumber(value float64) string {
	if value == 0 {
		return FieldOnRequest
	}
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

var markdownRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.+?)\*`), "$1"},
	{regexp.MustCompile(`_(.+?)_`), "$1"},
	{regexp.MustCompile("`(.+?)`"), "$1"},
	{regexp.MustCompile(`(?m)#{1,6}\s+(.+?)$`), "$1"},
	{regexp.MustCompile(`\[(.+?)\]\(.+?\)`), "$1"},
	{regexp.MustCompile(`(?m)^[-*+]\s+`), ""},
	{regexp.MustCompile(`(?m)^\d+\.\s+`), ""},
}

// StripMarkdown removes Markdown decoration the model tends to emit;
// WhatsApp renders it literally.
func StripMarkdown(text string) string {
	for _, rule := range markdownRules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return strings.TrimSpace(text)
}

// ExtractProductTitles pulls product names back out of a verbose
// listing built by RenderProductDetails.
func ExtractProductTitles(text string) []string {
	if text == "" || strings.Contains(strings.ToLower(text), "не найдены") {
		return nil
	}

	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Название:") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(line, "Название:"))
		if title != "" && title != "Не указано" {
			titles = append(titles, title)
		}
	}
	return titles
}
