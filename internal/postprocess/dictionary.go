// Package postprocess implements the Decoder Post-Processor stage (C8):
// dictionary/snippet/learned-correction rewriting, tail-rewrite dedup, and
// confidence gating. Applied only to finals; partials pass through raw per
// spec's own recommendation on the open question in §9.
package postprocess

import (
	"strings"
	"unicode"

	"github.com/hammamikhairi/dictum/internal/domain"
)

// applyDictionary replaces case-insensitive alias matches with their
// canonical term, preserving the first-letter case of the original
// occurrence (§4.8 step 2).
func applyDictionary(text string, entries []domain.DictionaryEntry) string {
	for _, entry := range entries {
		for _, alias := range entry.Aliases {
			text = replaceCaseInsensitivePreservingCase(text, alias, entry.Term)
		}
	}
	return text
}

// replaceCaseInsensitivePreservingCase finds case-insensitive whole-word
// occurrences of needle in text and replaces each with replacement, upper-
// casing replacement's first letter if the matched occurrence started
// uppercase.
func replaceCaseInsensitivePreservingCase(text, needle, replacement string) string {
	if needle == "" {
		return text
	}
	lowerText := strings.ToLower(text)
	lowerNeedle := strings.ToLower(needle)

	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lowerText[i:], lowerNeedle)
		if idx < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + idx
		end := start + len(needle)
		if !isWordBoundary(text, start) || !isWordBoundary(text, end) {
			b.WriteString(text[i : start+1])
			i = start + 1
			continue
		}

		b.WriteString(text[i:start])
		rep := replacement
		if start < len(text) && unicode.IsUpper(rune(text[start])) {
			rep = capitalizeFirst(replacement)
		}
		b.WriteString(rep)
		i = end
	}
	return b.String()
}

func isWordBoundary(s string, pos int) bool {
	if pos <= 0 || pos >= len(s) {
		return true
	}
	return !isWordChar(rune(s[pos-1])) || !isWordChar(rune(s[pos]))
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// applyLearnedCorrections rewrites any (heard -> corrected) rule whose
// heard phrase occurs as a contiguous whole-word token subsequence — the
// whole-word matching semantics §9's open question recommends — and bumps
// its hit counter.
func applyLearnedCorrections(text string, rules []domain.LearnedCorrection) (string, []int) {
	hitIdx := make([]int, 0)
	for i, rule := range rules {
		if containsTokenSubsequence(text, rule.Heard) {
			text = replaceTokenSubsequence(text, rule.Heard, rule.Corrected)
			hitIdx = append(hitIdx, i)
		}
	}
	return text, hitIdx
}

// containsTokenSubsequence reports whether needle's whitespace-split
// tokens occur contiguously (case-insensitive) within text's tokens.
func containsTokenSubsequence(text, needle string) bool {
	return findTokenSubsequence(tokenize(text), tokenize(needle)) >= 0
}

func replaceTokenSubsequence(text, needle, replacement string) string {
	toks := tokenize(text)
	needleToks := tokenize(needle)
	idx := findTokenSubsequence(toks, needleToks)
	if idx < 0 {
		return text
	}
	out := append([]string{}, toks[:idx]...)
	out = append(out, strings.Fields(replacement)...)
	out = append(out, toks[idx+len(needleToks):]...)
	return strings.Join(out, " ")
}

func findTokenSubsequence(toks, needle []string) int {
	if len(needle) == 0 || len(needle) > len(toks) {
		return -1
	}
	for i := 0; i+len(needle) <= len(toks); i++ {
		match := true
		for j, n := range needle {
			if !strings.EqualFold(toks[i+j], n) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func tokenize(s string) []string {
	return strings.Fields(s)
}
