// Package gateway implements the four-state turn-taking controller that
// is the heart of the realtime voice gateway: it coordinates the STT,
// LLM and TTS capability interfaces defined here with the caller
// transport, enforcing the turn-identifier/barge-in invariants spec.md
// §3-§4.6 name. Grounded on the teacher's pkg/orchestrator package
// (Orchestrator + ManagedStream) for Go-idiomatic structuring, and on
// original_source/backend/app/services/realtime_gateway.py for the exact
// transition semantics the teacher's managed stream does not replicate.
package gateway

import (
	"context"
	"errors"
)

// State is one of the four gateway states spec.md §3/§4.6 names.
type State string

const (
	StateIdle      State = "IDLE"
	StateListening State = "LISTENING"
	StateThinking  State = "THINKING"
	StateSpeaking  State = "SPEAKING"
)

// Logger is the gateway's structured-logging capability interface,
// carried over from the teacher's pkg/orchestrator/types.go so call sites
// stay decoupled from the concrete zap logger in internal/logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything, used by default and by tests.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// Message is one entry in the LLM message sequence: system persona,
// synthetic preamble caller/agent turns, short-buffer history, or the
// current caller utterance.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// ToolCallRequest is returned by an LLMProvider instead of text when the
// model requests a named side-effect, per spec.md §4.4.
type ToolCallRequest struct {
	Name     string
	ArgsJSON string
	CallID   string
}

// STTEventType discriminates the three event kinds spec.md §4.3 names.
type STTEventType int

const (
	STTSpeechStarted STTEventType = iota
	STTTranscript
	STTUtteranceEnd
)

// STTEvent is one message published by the STT client to the state
// machine.
type STTEvent struct {
	Type        STTEventType
	Text        string
	IsFinal     bool
	SpeechFinal bool
	Confidence  float64
}

// STTProvider is a duplex streaming recognizer client: PCM frames in,
// STTEvents out, for the life of one call. Capability interface per
// spec.md §9 "Replacing dynamic dispatch".
type STTProvider interface {
	// Connect dials the upstream recognizer and returns a channel of
	// events for the lifetime of the call. It must be called exactly
	// once per STTProvider instance.
	Connect(ctx context.Context, language string) (<-chan STTEvent, error)
	// SendAudio forwards one PCM frame, in arrival order.
	SendAudio(pcm []byte) error
	// Close tears down the upstream connection.
	Close() error
	Name() string
}

// LLMProvider is a streaming text generator with sentence-boundary
// chunking, optional tool-calling, and cooperative cancellation, per
// spec.md §4.4.
type LLMProvider interface {
	// Generate streams a response to messages, invoking onSentence for
	// each complete sentence. If the model requests a tool call instead
	// of text, toolCall is non-nil and text is empty.
	Generate(ctx context.Context, messages []Message, onSentence func(string) error) (text string, toolCall *ToolCallRequest, err error)
	// ContinueWithToolResult resumes generation after a tool call was
	// executed, folding the tool result back into the conversation.
	ContinueWithToolResult(ctx context.Context, messages []Message, call ToolCallRequest, toolResult string, onSentence func(string) error) (text string, err error)
	// Cancel sets the cooperative cancellation flag; idempotent.
	Cancel()
	// SupportsTools reports whether this provider can receive tool
	// schemas and produce ToolCallRequest values.
	SupportsTools() bool
	Name() string
}

// TTSProvider synthesizes streaming μ-law 8 kHz audio from text, per
// spec.md §4.5.
type TTSProvider interface {
	// Synthesize streams base64 μ-law chunks to onChunk, in order.
	Synthesize(ctx context.Context, text string, onChunk func(base64ULaw string) error) error
	// Abort closes any in-flight HTTP response body immediately, so no
	// further onChunk invocations follow. Idempotent; safe to call when
	// nothing is in flight.
	Abort() error
	Name() string
}

// Transport is the gateway's one-way callback boundary into the caller
// media-stream WebSocket. The gateway holds callbacks into the
// transport; the transport never holds a reference back to the gateway,
// per spec.md §9.
type Transport interface {
	// SendAudio emits one outbound audio chunk tagged with turnID. The
	// transport is the final defense-in-depth check for I3: it must drop
	// chunks whose tag no longer matches the transport's notion of the
	// current turn if the caller wires that check; the gateway itself
	// already performs this check before calling SendAudio.
	SendAudio(turnID int64, base64ULaw string) error
	// SendClear instructs the transport to drop any audio it has queued
	// but not yet played, per spec.md §4.6 _handle_barge_in step 3.
	SendClear() error
}

// Sentinel errors, the closed sum of result variants spec.md §7 and §9
// name in place of the source's exception control flow.
var (
	ErrTransport       = errors.New("transport error")
	ErrSTTTransport    = errors.New("stt transport error")
	ErrGeneration      = errors.New("llm generation error")
	ErrSynthesis       = errors.New("tts synthesis error")
	ErrEmptyUtterance  = errors.New("utterance is empty")
	ErrNilProvider     = errors.New("required provider is nil")
)
