package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videoqa/core"
	"videoqa/rag"
)

// Fallback retrieval when no vector index is available: fixed windows over
// the raw transcript, capped to its head and tail.
const (
	fallbackWindowSize = 1000
	fallbackMaxWindows = 5

	// Transcripts longer than this are summarized map/combine style.
	summarizeDirectLimit = 10_000
	summarizeParts       = 4
)

// Retriever is the slice of the RAG pipeline the answerer needs.
type Retriever interface {
	Retrieve(ctx context.Context, sourceID, question string, topK int) ([]core.Hit, error)
}

// Request is one question against one processed source.
type Request struct {
	SourceID  string
	Question  string
	SessionID string
	Language  string // overrides the source language when set
}

// Answer is the outcome, with provenance flags for the caller.
type Answer struct {
	Text      string     `json:"answer"`
	Language  string     `json:"language,omitempty"`
	Cached    bool       `json:"cached"`
	FollowUp  bool       `json:"follow_up"`
	Sources   []core.Hit `json:"sources,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}

// Answerer turns questions into grounded answers.
type Answerer struct {
	store     *core.FileStore
	retriever Retriever
	completer Completer
	cache     *Cache
	sessions  *Sessions
	logger    *zap.Logger
}

func NewAnswerer(store *core.FileStore, retriever Retriever, completer Completer,
	cache *Cache, sessions *Sessions, logger *zap.Logger) *Answerer {
	return &Answerer{
		store:     store,
		retriever: retriever,
		completer: completer,
		cache:     cache,
		sessions:  sessions,
		logger:    logger,
	}
}

// Ask answers the question. Remote-service failures degrade to a localized
// apology rather than an error, so a flaky provider never breaks the
// conversation surface; every other failure is returned.
func (a *Answerer) Ask(ctx context.Context, req Request) (Answer, error) {
	return a.ask(ctx, req, nil)
}

// AskStream behaves like Ask, emitting answer deltas via onDelta when the
// completer supports streaming. Cached answers arrive as one delta.
func (a *Answerer) AskStream(ctx context.Context, req Request, onDelta func(string)) (Answer, error) {
	return a.ask(ctx, req, onDelta)
}

func (a *Answerer) ask(ctx context.Context, req Request, onDelta func(string)) (Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Answer{}, fmt.Errorf("question: %w", core.ErrInvalidInput)
	}

	src, err := a.store.LoadSource(req.SourceID)
	if err != nil {
		return Answer{}, err
	}
	job, err := a.store.LoadJob(req.SourceID)
	if err != nil || job.Status != core.StatusComplete {
		return Answer{}, fmt.Errorf("source %s is not ready for questions: %w", req.SourceID, core.ErrNotFound)
	}

	lang := req.Language
	if lang == "" {
		lang = src.Language
	}
	if lang == "" {
		lang = "en"
	}

	if IsCasual(question) {
		return Answer{Text: redirectText(lang, src.Title), Language: lang, SessionID: req.SessionID}, nil
	}

	followUp := IsFollowUp(question)
	if IsSummaryRequest(question) {
		return a.summarize(ctx, req, src, lang, followUp, onDelta)
	}
	if start, end, ok := ParseTimeRange(question); ok {
		return a.askWindow(ctx, req, lang, question, start, end, onDelta)
	}

	fp := Fingerprint(question, lang, followUp)
	if !followUp {
		if cached, ok := a.cache.Get(req.SourceID, fp); ok {
			if onDelta != nil {
				onDelta(cached.Answer)
			}
			return Answer{Text: cached.Answer, Language: lang, Cached: true, SessionID: req.SessionID}, nil
		}
	}

	contextText, hits := a.buildContext(ctx, req.SourceID, question)
	if contextText == "" {
		return Answer{}, fmt.Errorf("no transcript available for %s: %w", req.SourceID, core.ErrNotFound)
	}

	messages := a.buildMessages(lang, src.Title, contextText, question, req.SessionID, followUp)
	text, err := a.complete(ctx, messages, onDelta)
	if err != nil {
		a.logger.Error("answer generation failed",
			zap.String("source", req.SourceID), zap.Error(err))
		return Answer{Text: apologyText(lang), Language: lang, FollowUp: followUp, SessionID: req.SessionID}, nil
	}

	if !followUp {
		a.cache.Put(req.SourceID, fp, CachedAnswer{
			Question: question,
			Answer:   text,
			Language: lang,
			CachedAt: time.Now().UTC(),
		})
	}
	if req.SessionID != "" {
		a.sessions.Append(req.SessionID, Turn{Question: question, Answer: text, AskedAt: time.Now().UTC()})
	}
	return Answer{Text: text, Language: lang, FollowUp: followUp, Sources: hits, SessionID: req.SessionID}, nil
}

func (a *Answerer) complete(ctx context.Context, messages []openai.ChatCompletionMessage, onDelta func(string)) (string, error) {
	if onDelta != nil {
		if sc, ok := a.completer.(StreamCompleter); ok {
			return sc.CompleteStream(ctx, messages, onDelta)
		}
	}
	text, err := a.completer.Complete(ctx, messages)
	if err == nil && onDelta != nil {
		onDelta(text)
	}
	return text, err
}

// buildContext retrieves grounding chunks, falling back to raw transcript
// windows when the index is missing or the embedding service is down.
func (a *Answerer) buildContext(ctx context.Context, sourceID, question string) (string, []core.Hit) {
	hits, err := a.retriever.Retrieve(ctx, sourceID, question, rag.DefaultTopK)
	if err == nil && len(hits) > 0 {
		var b strings.Builder
		for i, h := range hits {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, h.Text)
		}
		return b.String(), hits
	}
	if err != nil {
		a.logger.Warn("retrieval failed, falling back to transcript windows",
			zap.String("source", sourceID), zap.Error(err))
	}

	transcript, terr := a.store.LoadTranscript(sourceID)
	if terr != nil {
		return "", nil
	}
	windows := rag.SplitWindows(transcript, fallbackWindowSize, fallbackMaxWindows)
	return strings.Join(windows, "\n---\n"), nil
}

func (a *Answerer) askWindow(ctx context.Context, req Request, lang, question string,
	start, end float64, onDelta func(string)) (Answer, error) {
	fp := WindowFingerprint(question, lang, start, end)
	if cached, ok := a.cache.GetWindow(req.SourceID, fp); ok {
		if onDelta != nil {
			onDelta(cached.Answer)
		}
		return Answer{Text: cached.Answer, Language: lang, Cached: true, SessionID: req.SessionID}, nil
	}

	transcript, err := a.store.LoadTranscript(req.SourceID)
	if err != nil {
		return Answer{}, err
	}
	window := ExtractWindow(transcript, start, end)
	if window == "" {
		// Direct-mode transcripts carry no timestamps; answer from
		// retrieval instead of refusing.
		window, _ = a.buildContext(ctx, req.SourceID, question)
	}
	if window == "" {
		return Answer{}, fmt.Errorf("no transcript available for %s: %w", req.SourceID, core.ErrNotFound)
	}

	src, _ := a.store.LoadSource(req.SourceID)
	messages := a.buildMessages(lang, src.Title, window, question, req.SessionID, false)
	text, cerr := a.complete(ctx, messages, onDelta)
	if cerr != nil {
		a.logger.Error("window answer generation failed",
			zap.String("source", req.SourceID), zap.Error(cerr))
		return Answer{Text: apologyText(lang), Language: lang, SessionID: req.SessionID}, nil
	}
	a.cache.PutWindow(req.SourceID, fp, CachedAnswer{
		Question: question,
		Answer:   text,
		Language: lang,
		CachedAt: time.Now().UTC(),
	})
	return Answer{Text: text, Language: lang, SessionID: req.SessionID}, nil
}

// summarize answers whole-source questions. Long transcripts are condensed
// part by part and the partial summaries combined in a second pass.
func (a *Answerer) summarize(ctx context.Context, req Request, src core.Source, lang string,
	followUp bool, onDelta func(string)) (Answer, error) {
	fp := Fingerprint("__summary__"+req.Question, lang, false)
	if cached, ok := a.cache.Get(req.SourceID, fp); ok {
		if onDelta != nil {
			onDelta(cached.Answer)
		}
		return Answer{Text: cached.Answer, Language: lang, Cached: true, SessionID: req.SessionID}, nil
	}

	transcript, err := a.store.LoadTranscript(req.SourceID)
	if err != nil {
		return Answer{}, err
	}

	input := transcript
	if len(transcript) > summarizeDirectLimit {
		partial, err := a.summarizeParts(ctx, lang, src.Title, transcript)
		if err != nil {
			a.logger.Error("partial summarization failed", zap.String("source", req.SourceID), zap.Error(err))
			return Answer{Text: apologyText(lang), Language: lang, SessionID: req.SessionID}, nil
		}
		input = partial
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt(lang, src.Title)},
		{Role: openai.ChatMessageRoleUser, Content: input + "\n\n" + req.Question},
	}
	text, err := a.complete(ctx, messages, onDelta)
	if err != nil {
		a.logger.Error("summary generation failed", zap.String("source", req.SourceID), zap.Error(err))
		return Answer{Text: apologyText(lang), Language: lang, SessionID: req.SessionID}, nil
	}
	a.cache.Put(req.SourceID, fp, CachedAnswer{
		Question: req.Question, Answer: text, Language: lang, CachedAt: time.Now().UTC(),
	})
	return Answer{Text: text, Language: lang, FollowUp: followUp, SessionID: req.SessionID}, nil
}

func (a *Answerer) summarizeParts(ctx context.Context, lang, title, transcript string) (string, error) {
	partLen := len(transcript)/summarizeParts + 1
	var summaries []string
	for off := 0; off < len(transcript); off += partLen {
		hi := off + partLen
		if hi > len(transcript) {
			hi = len(transcript)
		}
		messages := []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt(lang, title)},
			{Role: openai.ChatMessageRoleUser, Content: transcript[off:hi]},
		}
		text, err := a.completer.Complete(ctx, messages)
		if err != nil {
			return "", err
		}
		summaries = append(summaries, text)
	}
	return strings.Join(summaries, "\n\n"), nil
}

func (a *Answerer) buildMessages(lang, title, contextText, question, sessionID string, followUp bool) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(lang, title)},
	}
	if followUp && sessionID != "" {
		for _, turn := range a.sessions.History(sessionID) {
			messages = append(messages,
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Question},
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Answer},
			)
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("Transcript excerpts:\n%s\nQuestion: %s", contextText, question),
	})
	return messages
}

func systemPrompt(lang, title string) string {
	if lang == "ar" {
		return fmt.Sprintf("أنت مساعد يجيب عن أسئلة حول تسجيل بعنوان \"%s\". أجب بالعربية واعتمد فقط على المقتطفات المقدمة من النص. إذا لم تجد الإجابة في المقتطفات فقل ذلك صراحة.", title)
	}
	return fmt.Sprintf("You answer questions about a recording titled %q. "+
		"Ground every answer in the transcript excerpts provided; if the excerpts do not contain the answer, say so plainly.", title)
}

func summarySystemPrompt(lang, title string) string {
	if lang == "ar" {
		return fmt.Sprintf("لخص محتوى التسجيل بعنوان \"%s\" بالعربية في نقاط واضحة وموجزة.", title)
	}
	return fmt.Sprintf("Summarize the recording titled %q concisely, covering its main points in order.", title)
}

func apologyText(lang string) string {
	if lang == "ar" {
		return "عذرًا، لا يمكنني توليد إجابة الآن بسبب مشكلة في الخدمة. حاول مرة أخرى بعد قليل."
	}
	return "Sorry, I can't generate an answer right now because the language service is unavailable. Please try again shortly."
}

func redirectText(lang, title string) string {
	if lang == "ar" {
		return fmt.Sprintf("مرحبًا! أنا هنا للإجابة عن أسئلتك حول \"%s\". ما الذي تريد معرفته عن المحتوى؟", title)
	}
	return fmt.Sprintf("Hi! I'm here to answer questions about %q. What would you like to know about the content?", title)
}
