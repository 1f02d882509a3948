package prompts

import (
	"sort"
	"strings"
)

const noSystemVariables = "No system variables available"

var separator = strings.Repeat("=", 100)

// FormatSystemVariables renders the system table as "topic: value"
// lines in deterministic order.
func FormatSystemVariables(vars map[string]string) string {
	if len(vars) == 0 {
		return noSystemVariables
	}

	topics := make([]string, 0, len(vars))
	for topic := range vars {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	lines := make([]string, 0, len(topics))
	for _, topic := range topics {
		lines = append(lines, topic+": "+vars[topic])
	}
	return strings.Join(lines, "\n")
}

// BuildWithContext frames a base prompt with the client profile and the
// system variables, each block fenced by separator lines so the model
// treats them as context rather than instructions.
func BuildWithContext(basePrompt, clientInfo string, vars map[string]string) string {
	var b strings.Builder

	if clientInfo != "" {
		b.WriteString(separator + "\n")
		b.WriteString("CLIENT INFO: " + clientInfo + "\n")
		b.WriteString(separator + "\n")
	}

	b.WriteString(separator + "\n")
	if len(vars) > 0 {
		b.WriteString("SYSTEM VARIABLES: " + FormatSystemVariables(vars) + "\n")
	} else {
		b.WriteString("SYSTEM VARIABLES: " + noSystemVariables + "\n")
	}
	b.WriteString(separator + "\n")

	b.WriteString("\n")
	b.WriteString(basePrompt)
	return b.String()
}
