package gateway

import (
	"context"
	"sync"
)

// fakeSTT is a no-op STTProvider: tests drive the state machine directly
// via onSTTEvent rather than through Connect's event channel, but
// HandleAudioFrame still needs a live SendAudio sink.
type fakeSTT struct {
	mu     sync.Mutex
	frames [][]byte
	events chan STTEvent
}

func newFakeSTT() *fakeSTT {
	return &fakeSTT{events: make(chan STTEvent, 16)}
}

func (f *fakeSTT) Connect(ctx context.Context, language string) (<-chan STTEvent, error) {
	return f.events, nil
}

func (f *fakeSTT) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, pcm)
	return nil
}

func (f *fakeSTT) Close() error { return nil }
func (f *fakeSTT) Name() string { return "fake-stt" }

// fakeLLM lets each test script exactly what Generate/ContinueWithToolResult
// produce, and records Cancel calls.
type fakeLLM struct {
	mu          sync.Mutex
	cancelCount int

	generateFn func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error)
	continueFn func(ctx context.Context, messages []Message, call ToolCallRequest, toolResult string, onSentence func(string) error) (string, error)
}

func (f *fakeLLM) Generate(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
	return f.generateFn(ctx, messages, onSentence)
}

func (f *fakeLLM) ContinueWithToolResult(ctx context.Context, messages []Message, call ToolCallRequest, toolResult string, onSentence func(string) error) (string, error) {
	return f.continueFn(ctx, messages, call, toolResult, onSentence)
}

func (f *fakeLLM) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCount++
}

func (f *fakeLLM) SupportsTools() bool { return true }
func (f *fakeLLM) Name() string        { return "fake-llm" }

func (f *fakeLLM) cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCount
}

// fakeTTS streams the configured chunks for any text, and supports an
// onSynthesizeStart hook tests use to synchronize with a concurrent
// barge-in.
type fakeTTS struct {
	mu               sync.Mutex
	abortCount       int
	chunks           []string
	onSynthesizeCall func()
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, onChunk func(string) error) error {
	if f.onSynthesizeCall != nil {
		f.onSynthesizeCall()
	}
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTTS) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCount++
	return nil
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) aborted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abortCount
}

// fakeTransport records every outbound audio chunk and clear signal.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []sentChunk
	clearCount int
}

type sentChunk struct {
	turnID int64
	chunk  string
}

func (f *fakeTransport) SendAudio(turnID int64, base64ULaw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentChunk{turnID, base64ULaw})
	return nil
}

func (f *fakeTransport) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCount++
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCount
}
