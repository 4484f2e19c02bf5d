package llm

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
)

// AnthropicLLM is a secondary streaming text-only LLM client (no tool-
// calling support, per SPEC_FULL.md §2's "secondary LLM provider" note):
// a drop-in alternative to OpenAILLM for deployments that prefer Claude.
// Grounded on the teacher's pkg/providers/llm/anthropic.go for the
// provider-struct shape, reworked from its single blocking Complete()
// into genuine token streaming using anthropic-sdk-go's
// Messages.NewStreaming, the way lookatitude-beluga-ai's anthropic
// provider consumes its SSE event stream (stream.Next()/
// stream.Current()/stream.Err()).
type AnthropicLLM struct {
	client anthropic.Client
	model  anthropic.Model

	cancelled atomic.Bool
}

// NewAnthropicLLM constructs a client. model may be "" to use Claude's
// current default Sonnet model.
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5SonnetLatest
	}
	return &AnthropicLLM{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

func (l *AnthropicLLM) Name() string        { return "anthropic" }
func (l *AnthropicLLM) SupportsTools() bool { return false }

func (l *AnthropicLLM) Cancel() { l.cancelled.Store(true) }

func splitSystemMessage(messages []gateway.Message) (system string, rest []gateway.Message) {
	for _, m := range messages {
		if m.Role == "system" {
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []gateway.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// Generate streams a response. Anthropic tool-calling is not wired
// (SupportsTools reports false), so toolCall is always nil; callers
// should not advertise tool schemas to this provider.
func (l *AnthropicLLM) Generate(ctx context.Context, messages []gateway.Message, onSentence func(string) error) (string, *gateway.ToolCallRequest, error) {
	l.cancelled.Store(false)

	var utterance string
	if len(messages) > 0 {
		utterance = messages[len(messages)-1].Content
	}

	system, rest := splitSystemMessage(messages)
	params := anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: int64(adaptiveTokenBudget(utterance, nil)),
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	text, err := l.stream(ctx, params, onSentence)
	return text, nil, err
}

// ContinueWithToolResult exists to satisfy gateway.LLMProvider; since
// SupportsTools is false, the gateway never invokes it for this
// provider.
func (l *AnthropicLLM) ContinueWithToolResult(ctx context.Context, messages []gateway.Message, call gateway.ToolCallRequest, toolResult string, onSentence func(string) error) (string, error) {
	return "", errors.New("anthropic: tool calling not supported")
}

func (l *AnthropicLLM) stream(ctx context.Context, params anthropic.MessageNewParams, onSentence func(string) error) (string, error) {
	stream := l.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var splitter sentenceSplitter
	var full string

	for stream.Next() {
		if l.cancelled.Load() {
			break
		}
		event := stream.Current()

		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text := delta.Delta.Text
		if text == "" {
			continue
		}
		full += text
		for _, sentence := range splitter.Feed(text) {
			if err := onSentence(sentence); err != nil {
				return full, err
			}
		}
	}

	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return full, errors.Join(gateway.ErrGeneration, err)
	}

	if !l.cancelled.Load() {
		if remainder := splitter.Flush(); remainder != "" {
			if err := onSentence(remainder); err != nil {
				return full, err
			}
		}
	}

	return full, nil
}
