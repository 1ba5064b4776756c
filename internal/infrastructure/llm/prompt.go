package llm

import "strings"

const fallbackPrompt = "You summarize IT security news for security professionals."

// buildSystemPrompt renders the instructions once at construction time.
func buildSystemPrompt(base string, tags []string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = fallbackPrompt
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRead the article and answer with a single JSON object:\n")
	b.WriteString(`{"summary": "<three to five sentences>", "tags": ["<tag>"], "searchQuery": "<short web search query>"}`)
	b.WriteString("\n")

	if len(tags) > 0 {
		b.WriteString("Prefer these tags where they apply, and add new ones only when none fit: ")
		b.WriteString(strings.Join(tags, ", "))
		b.WriteString(".\n")
	}
	b.WriteString("Do not wrap the JSON in markdown.")
	return b.String()
}
