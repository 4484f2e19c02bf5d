// Package llm provides streaming LLM clients implementing
// gateway.LLMProvider.
package llm

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
	"github.com/lokutor-ai/voice-gateway/pkg/tools"
)

// maxTokensToolResult mirrors
// original_source/backend/app/services/openai_llm.py's
// generate_with_tool_result budget (250): a tool follow-up gets a larger
// flat budget since it must incorporate the tool's result into prose.
// The initial generation's budget is adaptive instead, per spec.md §4.4
// (see adaptiveTokenBudget) and supersedes the original's flat 150.
const maxTokensToolResult = 250

// OpenAILLM is a streaming chat-completion client with tool-calling,
// grounded on original_source/backend/app/services/openai_llm.py's
// generate_streaming/generate_with_tool_result and on
// lookatitude-beluga-ai/pkg/llms/providers/openai/provider.go's
// CreateChatCompletionStream/stream.Recv() usage for the Go-idiomatic
// streaming shape.
type OpenAILLM struct {
	client  *openai.Client
	model   string
	schemas []tools.Schema
	// explainKeywords configures adaptiveTokenBudget's conversation-
	// language explain cues; nil falls back to DefaultExplainKeywords.
	explainKeywords []string

	cancelled atomic.Bool
}

// NewOpenAILLM constructs a client. schemas advertises the broker's tool
// definitions to the model; pass nil if tool-calling is not needed.
func NewOpenAILLM(apiKey, model string, schemas []tools.Schema) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client:  openai.NewClient(apiKey),
		model:   model,
		schemas: schemas,
	}
}

// WithExplainKeywords overrides the default German explain-keyword set
// used by the adaptive token budget, for non-German deployments.
func (l *OpenAILLM) WithExplainKeywords(keywords []string) *OpenAILLM {
	l.explainKeywords = keywords
	return l
}

func (l *OpenAILLM) Name() string        { return "openai" }
func (l *OpenAILLM) SupportsTools() bool { return true }

// Cancel sets the cooperative cancellation flag; the in-flight stream
// loop checks it between chunks and stops early.
func (l *OpenAILLM) Cancel() {
	l.cancelled.Store(true)
}

func (l *OpenAILLM) openaiTools() []openai.Tool {
	if len(l.schemas) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(l.schemas))
	for _, s := range l.schemas {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func toOpenAIMessages(messages []gateway.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Generate streams a response, invoking onSentence at each sentence
// boundary the accumulated delta text crosses. If the model elects to
// call a tool instead, toolCall is returned non-nil and text is empty.
func (l *OpenAILLM) Generate(ctx context.Context, messages []gateway.Message, onSentence func(string) error) (string, *gateway.ToolCallRequest, error) {
	l.cancelled.Store(false)

	var utterance string
	if len(messages) > 0 {
		utterance = messages[len(messages)-1].Content
	}

	req := openai.ChatCompletionRequest{
		Model:      l.model,
		Messages:   toOpenAIMessages(messages),
		Stream:     true,
		MaxTokens:  adaptiveTokenBudget(utterance, l.explainKeywords),
		Tools:      l.openaiTools(),
		ToolChoice: toolChoiceOrNil(l.schemas),
	}

	return l.stream(ctx, req, onSentence)
}

// ContinueWithToolResult resumes generation after a tool call executed,
// folding the tool's result back in as a tool-role message, per
// openai_llm.py's generate_with_tool_result.
func (l *OpenAILLM) ContinueWithToolResult(ctx context.Context, messages []gateway.Message, call gateway.ToolCallRequest, toolResult string, onSentence func(string) error) (string, error) {
	l.cancelled.Store(false)

	chatMessages := toOpenAIMessages(messages)
	chatMessages = append(chatMessages,
		openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:   call.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.ArgsJSON,
				},
			}},
		},
		openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    toolResult,
			ToolCallID: call.CallID,
		},
	)

	req := openai.ChatCompletionRequest{
		Model:     l.model,
		Messages:  chatMessages,
		Stream:    true,
		MaxTokens: maxTokensToolResult,
	}

	text, _, err := l.stream(ctx, req, onSentence)
	return text, err
}

func toolChoiceOrNil(schemas []tools.Schema) any {
	if len(schemas) == 0 {
		return nil
	}
	return "auto"
}

// stream runs req through CreateChatCompletionStream, feeding deltas
// through a sentenceSplitter and invoking onSentence at each boundary,
// and accumulating tool-call fragments the way openai_llm.py's
// generate_streaming does (delta.tool_calls[0].function.{name,arguments}
// arrive incrementally and must be concatenated).
func (l *OpenAILLM) stream(ctx context.Context, req openai.ChatCompletionRequest, onSentence func(string) error) (string, *gateway.ToolCallRequest, error) {
	stream, err := l.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", nil, gatewayGenerationError(err)
	}
	defer stream.Close()

	var splitter sentenceSplitter
	var full string
	var toolName, toolArgs, toolID string
	sawToolCall := false

	for {
		if l.cancelled.Load() {
			return full, nil, nil
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full, nil, gatewayGenerationError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if len(choice.Delta.ToolCalls) > 0 {
			sawToolCall = true
			tc := choice.Delta.ToolCalls[0]
			if tc.ID != "" {
				toolID = tc.ID
			}
			toolName += tc.Function.Name
			toolArgs += tc.Function.Arguments
			continue
		}

		if choice.Delta.Content == "" {
			continue
		}
		full += choice.Delta.Content
		for _, sentence := range splitter.Feed(choice.Delta.Content) {
			if err := onSentence(sentence); err != nil {
				return full, nil, err
			}
		}
	}

	if sawToolCall {
		return "", &gateway.ToolCallRequest{Name: toolName, ArgsJSON: toolArgs, CallID: toolID}, nil
	}

	if remainder := splitter.Flush(); remainder != "" {
		if err := onSentence(remainder); err != nil {
			return full, nil, err
		}
	}

	return full, nil, nil
}

func gatewayGenerationError(err error) error {
	return errors.Join(gateway.ErrGeneration, err)
}
