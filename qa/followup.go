package qa

import (
	"regexp"
	"strings"
)

// A question is a follow-up when it leans on conversation context: leading
// pronouns with no referent, discourse connectives, or elliptical forms.
var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(and|but|so|also|because|then)\b`),
	regexp.MustCompile(`(?i)^(what|how|why) about\b`),
	regexp.MustCompile(`(?i)^(it|that|this|those|these|they|he|she)\b`),
	regexp.MustCompile(`(?i)\b(tell me more|go on|elaborate|expand on (that|this|it))\b`),
	regexp.MustCompile(`(?i)^(why|how come|since when)\??$`),
}

// Arabic counterparts of the same cues.
var followUpPatternsAr = []*regexp.Regexp{
	regexp.MustCompile(`^(و|لكن|إذن|ماذا عن|وماذا)`),
	regexp.MustCompile(`^(هذا|هذه|ذلك|تلك|هو|هي|هم)\b`),
}

// IsFollowUp reports whether the question depends on prior turns and must
// bypass the answer cache in both directions.
func IsFollowUp(question string) bool {
	q := strings.TrimSpace(question)
	if q == "" {
		return false
	}
	for _, p := range followUpPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	for _, p := range followUpPatternsAr {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

var summaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(summar(y|ize|ise)|overview|main points|key takeaways|tl;?dr)\b`),
	regexp.MustCompile(`(?i)what('| i)?s (this|the) (video|talk|episode|recording) about`),
	regexp.MustCompile(`لخص|ملخص|عن ماذا يتحدث`),
}

// IsSummaryRequest detects whole-source summarization questions, which use
// the map/combine path instead of retrieval.
func IsSummaryRequest(question string) bool {
	for _, p := range summaryPatterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

var casualPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|yo|sup|good (morning|evening|afternoon))[.!\s]*$`),
	regexp.MustCompile(`(?i)^(how are you|who are you|thanks|thank you|ok|okay|cool|nice)[.!?\s]*$`),
	regexp.MustCompile(`^(مرحبا|أهلا|شكرا|كيف حالك)[.!؟\s]*$`),
}

// IsCasual reports small talk that should get a polite redirect instead of
// a retrieval round-trip.
func IsCasual(question string) bool {
	q := strings.TrimSpace(question)
	for _, p := range casualPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}
