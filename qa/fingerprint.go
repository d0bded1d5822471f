// Package qa answers questions about processed sources: retrieval-grounded
// prompting, answer caching, follow-up conversations and time-scoped
// extraction.
package qa

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
)

var punct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
var spaces = regexp.MustCompile(`\s+`)

// normalizeQuestion makes trivially rephrased questions collide: case,
// punctuation and whitespace differences never miss the cache.
func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = punct.ReplaceAllString(q, "")
	return spaces.ReplaceAllString(q, " ")
}

// Fingerprint keys the answer cache. Follow-ups fingerprint differently so
// they can never collide with a context-free answer to the same words.
func Fingerprint(question, language string, followUp bool) string {
	key := fmt.Sprintf("%s_%s_%t", normalizeQuestion(question), language, followUp)
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}

// WindowFingerprint keys the time-window cache, which lives independently
// of the question cache.
func WindowFingerprint(question, language string, startSec, endSec float64) string {
	key := fmt.Sprintf("%s_%s_%.0f_%.0f", normalizeQuestion(question), language, startSec, endSec)
	return fmt.Sprintf("%x", md5.Sum([]byte(key)))
}
