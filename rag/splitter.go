// Package rag turns transcripts into a searchable index and retrieves
// grounding context for questions.
package rag

import (
	"regexp"
	"strings"
)

// Chunk sizing. Longer transcripts get bigger chunks so the index stays a
// manageable size; chunked-mode transcripts carry timestamp prefixes and
// need more room per chunk.
const (
	baseChunkSize    = 350
	largeChunkSize   = 500
	chunkedChunkSize = 750

	largeTranscript = 200_000
	overlapWords    = 5
)

var (
	sentenceEnd = regexp.MustCompile(`([.!?؟])\s+`)
	multiSpace  = regexp.MustCompile(`[ \t]+`)
)

// TargetChunkSize picks the split size for a transcript.
func TargetChunkSize(transcriptLen int, chunked bool) int {
	if chunked {
		return chunkedChunkSize
	}
	if transcriptLen > largeTranscript {
		return largeChunkSize
	}
	return baseChunkSize
}

// Split breaks text into chunks of roughly target characters. Paragraph
// boundaries are preferred; a wall of text falls back to sentence
// boundaries. Consecutive chunks share a few trailing words of overlap so
// sentences cut at a boundary stay retrievable.
func Split(text string, target int) []string {
	text = clean(text)
	if text == "" {
		return nil
	}

	parts := splitParagraphs(text)
	if len(parts) <= 1 {
		parts = splitSentences(text)
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		// Seed the next chunk with the tail of this one.
		tail := trailingWords(current.String(), overlapWords)
		current.Reset()
		if tail != "" {
			current.WriteString(tail)
			current.WriteString(" ")
		}
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(part) > target {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(part)
		// An oversized single part still becomes its own chunk.
		if current.Len() >= target {
			flush()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return dedupeTail(chunks)
}

// SplitWindows is the retrieval fallback when no vector index is available:
// fixed-size line windows with a few lines of overlap, capped to the first
// and last windows of the transcript.
func SplitWindows(text string, windowSize, maxWindows int) []string {
	text = clean(text)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	var windows []string
	var current []string
	size := 0
	for _, line := range lines {
		current = append(current, line)
		size += len(line)
		if size >= windowSize {
			windows = append(windows, strings.Join(current, "\n"))
			// Keep trailing lines as overlap.
			if len(current) > 3 {
				current = append([]string(nil), current[len(current)-3:]...)
			}
			size = 0
			for _, l := range current {
				size += len(l)
			}
		}
	}
	if len(current) > 0 {
		windows = append(windows, strings.Join(current, "\n"))
	}
	if maxWindows > 0 && len(windows) > maxWindows {
		half := maxWindows / 2
		head := windows[:maxWindows-half]
		tail := windows[len(windows)-half:]
		windows = append(append([]string(nil), head...), tail...)
	}
	return windows
}

func clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func splitParagraphs(text string) []string {
	return strings.Split(text, "\n\n")
}

func splitSentences(text string) []string {
	marked := sentenceEnd.ReplaceAllString(text, "$1\x00")
	return strings.Split(marked, "\x00")
}

func trailingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return ""
	}
	return strings.Join(words[len(words)-n:], " ")
}

func dedupeTail(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if len(out) > 0 && out[len(out)-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}
