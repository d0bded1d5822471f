package rag

import (
	"regexp"
	"sort"
	"strings"
)

var nonLetter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {}, "from": {},
	"for": {}, "are": {}, "was": {}, "were": {}, "have": {}, "has": {},
	"had": {}, "but": {}, "not": {}, "you": {}, "your": {}, "they": {},
	"them": {}, "their": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "there": {},
	"then": {}, "than": {}, "been": {}, "being": {}, "into": {}, "about": {},
	"just": {}, "like": {}, "also": {}, "more": {}, "some": {}, "very": {},
	"going": {}, "really": {}, "because": {}, "thing": {}, "things": {},
}

// ExtractKeywords returns the most frequent meaningful words of a
// transcript, longest-running first. Timestamp prefixes are ignored.
func ExtractKeywords(text string, limit int) []string {
	text = timestampPrefix.ReplaceAllString(text, "")
	counts := make(map[string]int)
	for _, w := range strings.Fields(nonLetter.ReplaceAllString(strings.ToLower(text), " ")) {
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words
}

var timestampPrefix = regexp.MustCompile(`\[\d{2,}:\d{2}\]\s*`)
