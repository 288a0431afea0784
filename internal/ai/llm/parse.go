package llm

import (
	"fmt"
	"strings"
)

// extractJSON strips markdown code fences and surrounding prose from
// an LLM reply, returning the first JSON object found. Models wrap
// JSON in ```json fences often enough that this is the normal path.
func extractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)

	if strings.Contains(cleaned, "```") {
		start := strings.Index(cleaned, "```")
		rest := cleaned[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			cleaned = rest[:end]
		} else {
			cleaned = rest
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	open := strings.Index(cleaned, "{")
	close := strings.LastIndex(cleaned, "}")
	if open < 0 || close <= open {
		return "", fmt.Errorf("no JSON object in response")
	}
	return cleaned[open : close+1], nil
}
