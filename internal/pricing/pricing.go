// Package pricing computes customer-facing prices from catalog base
// prices and the markup values maintained in the system-variables table.
package pricing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OnRequest is returned whenever a final price cannot or must not be
// computed: unknown base price, or a supplier whose prices are quoted
// individually.
const OnRequest = "Цена по запросу"

const (
	markupTopicBelow100 = "Наценка на кг/руб (<100 руб)"
	markupTopicAbove100 = "Наценка на кг/руб (>100 руб)"
)

var markupValuePattern = regexp.MustCompile(`(\d+\.?\d*)`)

// Markup is a single surcharge, either a percentage of the running price
// or an absolute amount in rubles.
type Markup struct {
	Value   float64
	Percent bool
}

// Apply returns the price with the markup added.
func (m Markup) Apply(price float64) float64 {
	if m.Percent {
		return price * (1 + m.Value/100)
	}
	return price + m.Value
}

// ParseMarkup reads a markup written as "10%" (percentage) or "10"
// (absolute rubles). The boolean result is false when no numeric value
// can be extracted.
func ParseMarkup(raw string) (Markup, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Markup{}, false
	}
	match := markupValuePattern.FindString(trimmed)
	if match == "" {
		return Markup{}, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return Markup{}, false
	}
	return Markup{Value: value, Percent: strings.Contains(trimmed, "%")}, true
}

// FinalPrice computes the display price for a catalog row. A zero base
// price stands for "unknown" (NULL prices are scanned as zero) and
// yields OnRequest, as does any supplier resolving to ООО "КИТ". The
// result is formatted with two decimal places.
func FinalPrice(basePrice float64, supplierName string, systemVars map[string]string) string {
	if isQuoteOnlySupplier(supplierName) {
		return OnRequest
	}
	if basePrice == 0 {
		return OnRequest
	}

	price := basePrice
	if markup, ok := bracketMarkup(basePrice, systemVars); ok {
		price = markup.Apply(price)
	}
	if markup, ok := deliveryMarkup(systemVars); ok {
		price = markup.Apply(price)
	}
	return fmt.Sprintf("%.2f", price)
}

// bracketMarkup picks the markup for the price bracket: the exact topic
// first, then any key mentioning the bracket, then any per-kg markup
// key. Keys are scanned in sorted order so the fallback is
// deterministic.
func bracketMarkup(basePrice float64, systemVars map[string]string) (Markup, bool) {
	topic := markupTopicAbove100
	if basePrice < 100 {
		topic = markupTopicBelow100
	}
	if raw, ok := systemVars[topic]; ok && strings.TrimSpace(raw) != "" {
		return ParseMarkup(raw)
	}

	keys := sortedKeys(systemVars)
	for _, key := range keys {
		keyLower := strings.ToLower(key)
		if !strings.Contains(keyLower, "наценка") {
			continue
		}
		if strings.Contains(keyLower, "<100") && basePrice < 100 {
			return ParseMarkup(systemVars[key])
		}
		if strings.Contains(keyLower, ">100") && basePrice >= 100 {
			return ParseMarkup(systemVars[key])
		}
	}
	for _, key := range keys {
		keyLower := strings.ToLower(key)
		if strings.Contains(keyLower, "наценка") && strings.Contains(keyLower, "кг") {
			return ParseMarkup(systemVars[key])
		}
	}
	return Markup{}, false
}

// deliveryMarkup finds the extra delivery surcharge among the system
// variables by keyword.
func deliveryMarkup(systemVars map[string]string) (Markup, bool) {
	for _, key := range sortedKeys(systemVars) {
		keyLower := strings.ToLower(key)
		markupKey := strings.Contains(keyLower, "наценк") || strings.Contains(keyLower, "markup")
		deliveryKey := strings.Contains(keyLower, "доставк") || strings.Contains(keyLower, "delivery")
		if markupKey && deliveryKey {
			return ParseMarkup(systemVars[key])
		}
	}
	return Markup{}, false
}

func isQuoteOnlySupplier(supplierName string) bool {
	if supplierName == "" {
		return false
	}
	normalized := strings.ToUpper(strings.TrimSpace(supplierName))
	if !strings.Contains(normalized, "КИТ") {
		return false
	}
	return strings.Contains(normalized, "ООО") || strings.HasPrefix(normalized, "КИТ")
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
