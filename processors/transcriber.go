package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/abadojack/whatlanggo"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videoqa/core"
)

// rtlMark is prefixed to right-to-left transcripts so terminals and chat
// clients render them in the correct direction.
const rtlMark = "‫"

// SpeechToText turns one audio file into text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// OpenAITranscriber implements SpeechToText against an OpenAI-compatible
// transcription endpoint.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

func NewOpenAITranscriber(client *openai.Client, model string) *OpenAITranscriber {
	return &OpenAITranscriber{client: client, model: model}
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", audioPath, errors.Join(core.ErrTranscriptionFailed, err))
	}
	return resp.Text, nil
}

// Transcriber runs speech-to-text over extracted segments with bounded
// concurrency and reassembles the fragments in segment order.
type Transcriber struct {
	stt    SpeechToText
	logger *zap.Logger

	MaxWorkers int
}

func NewTranscriber(stt SpeechToText, logger *zap.Logger) *Transcriber {
	return &Transcriber{stt: stt, logger: logger}
}

// TranscribeAll returns one fragment per input segment, positionally. A
// failed segment yields an empty fragment so the rest of the transcript
// keeps its ordering; callers decide how many failures are tolerable.
func (t *Transcriber) TranscribeAll(ctx context.Context, segs []core.Segment, language string) ([]core.Fragment, int) {
	frags := make([]core.Fragment, len(segs))
	workers := TranscribeWorkers(len(segs), t.MaxWorkers)
	sem := make(chan struct{}, workers)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)

	for i, seg := range segs {
		if ctx.Err() != nil {
			wg.Wait()
			return frags, failed + (len(segs) - i)
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, seg core.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := t.stt.Transcribe(ctx, seg.Path, language)
			if err != nil {
				t.logger.Warn("segment transcription failed",
					zap.Int("index", seg.Index),
					zap.Float64("start", seg.Start),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
			}
			frags[i] = core.Fragment{Index: seg.Index, Start: seg.Start, Text: strings.TrimSpace(text)}
		}(i, seg)
	}
	wg.Wait()
	return frags, failed
}

// JoinFragments merges ordered fragments into flowing text. A fragment that
// starts lowercase while the accumulated text has no terminal punctuation is
// treated as a continuation of the same sentence.
func JoinFragments(frags []core.Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(text)
			continue
		}
		if continuesSentence(b.String(), text) {
			b.WriteString(" ")
		} else {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return collapseBlankLines(b.String())
}

// JoinTimestamped merges fragments with a "[MM:SS] " prefix per fragment,
// the format used for chunked transcripts and time-window extraction.
func JoinTimestamped(frags []core.Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", core.FormatTimestamp(f.Start), text)
	}
	return b.String()
}

func continuesSentence(sofar, next string) bool {
	r := []rune(next)
	if len(r) == 0 || !unicode.IsLower(r[0]) {
		return false
	}
	trimmed := strings.TrimRight(sofar, " \n")
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return last != '.' && last != '!' && last != '?'
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// DetectLanguage guesses the transcript language from its first 500
// characters and returns an ISO 639-1 code, or "" when unreliable.
func DetectLanguage(text string) string {
	sample := []rune(strings.TrimSpace(text))
	if len(sample) == 0 {
		return ""
	}
	if len(sample) > 500 {
		sample = sample[:500]
	}
	info := whatlanggo.Detect(string(sample))
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// ApplyDirectionMark prefixes right-to-left text with a Unicode RLE mark.
func ApplyDirectionMark(text, language string) string {
	if language == "ar" && !strings.HasPrefix(text, rtlMark) {
		return rtlMark + text
	}
	return text
}
