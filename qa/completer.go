package qa

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"videoqa/core"
)

// Chat generation settings. Low temperature keeps answers anchored to the
// provided transcript context.
const (
	chatTemperature = 0.3
	chatMaxTokens   = 500
)

// Completer generates one chat completion from a message list.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// StreamCompleter additionally streams deltas as they are generated.
type StreamCompleter interface {
	Completer
	CompleteStream(ctx context.Context, messages []openai.ChatCompletionMessage, onDelta func(string)) (string, error)
}

// OpenAICompleter implements both interfaces against an OpenAI-compatible
// chat endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model}
}

func (o *OpenAICompleter) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}
}

func (o *OpenAICompleter) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(messages))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", errors.Join(core.ErrRemoteService, err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices: %w", core.ErrRemoteService)
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAICompleter) CompleteStream(ctx context.Context, messages []openai.ChatCompletionMessage, onDelta func(string)) (string, error) {
	req := o.request(messages)
	req.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat stream: %w", errors.Join(core.ErrRemoteService, err))
	}
	defer stream.Close()

	var full []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return string(full), fmt.Errorf("chat stream: %w", errors.Join(core.ErrRemoteService, err))
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return string(full), nil
}
