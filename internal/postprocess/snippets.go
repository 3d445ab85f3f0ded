package postprocess

import (
	"strings"

	"github.com/hammamikhairi/dictum/internal/domain"
)

// applySnippets expands the first matching snippet, per §4.8 step 4.
func applySnippets(text string, snippets []domain.Snippet) string {
	trimmed := strings.TrimSpace(text)
	for _, snip := range snippets {
		switch snip.Mode {
		case domain.SnippetSlash:
			trigger := "/" + strings.TrimPrefix(snip.Trigger, "/")
			if trimmed == trigger || strings.HasSuffix(trimmed, " "+trigger) {
				if trimmed == trigger {
					return snip.Expansion
				}
				return strings.TrimSuffix(trimmed, trigger) + snip.Expansion
			}
		case domain.SnippetPhrase:
			if containsTokenSubsequence(text, snip.Trigger) {
				return replaceTokenSubsequence(text, snip.Trigger, snip.Expansion)
			}
		}
	}
	return text
}
