package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/lokutor-ai/voice-gateway/pkg/session"
)

func newTestSession() *session.Session {
	return session.New("call-1", session.Profile{DisplayName: "Anna"}, session.Memory{}, 6)
}

func TestHappyPathTurnProducesAudioAndAppendsSession(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		if err := onSentence("Hallo, wie geht es dir?"); err != nil {
			t.Fatalf("onSentence: %v", err)
		}
		return "Hallo, wie geht es dir?", nil, nil
	}}
	tts := &fakeTTS{chunks: []string{"chunkA", "chunkB"}}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "Hallo, wie geht es dir", IsFinal: true, SpeechFinal: true})

	if got := transport.sentCount(); got != 2 {
		t.Fatalf("sent chunk count = %d, want 2", got)
	}
	for _, sc := range transport.sent {
		if sc.turnID != 0 {
			t.Errorf("chunk tagged turn %d, want 0", sc.turnID)
		}
	}

	turns := sess.FullConversation()
	if len(turns) != 2 {
		t.Fatalf("session turns = %d, want 2", len(turns))
	}
	if turns[0].Role != session.RoleCaller || turns[1].Role != session.RoleAgent {
		t.Fatalf("unexpected roles: %+v", turns)
	}

	if got := g.State(); got != StateListening {
		t.Fatalf("final state = %v, want LISTENING", got)
	}
}

func TestFillerOnlyUtteranceDoesNotTriggerTurn(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	called := false
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		called = true
		return "", nil, nil
	}}
	tts := &fakeTTS{}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "und", IsFinal: true, SpeechFinal: true})

	if called {
		t.Fatal("LLM.Generate was called for a filler-only utterance")
	}
	if len(sess.FullConversation()) != 0 {
		t.Fatal("filler-only utterance must not be appended to the session")
	}
}

func TestOverlapStrippingAppliesAcrossPartialFinals(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	var captured string
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		captured = messages[len(messages)-1].Content
		return "ok", nil, nil
	}}
	tts := &fakeTTS{}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "ich habe das alles das", IsFinal: true})
	g.onSTTEvent(context.Background(), STTEvent{Text: "das basilikum", IsFinal: true, SpeechFinal: true})

	if captured != "ich habe das alles das basilikum" {
		t.Fatalf("accumulated utterance = %q", captured)
	}
}

// TestBargeInCancelsInFlightTurn drives a barge-in from inside the TTS
// hook, synchronously within the same call stack that processes the
// turn (no goroutines needed since the gateway's own control flow is
// already single-threaded per call): the second sentence of a two-
// sentence reply must never reach the transport, and the turn's output
// must not be committed to the session, per spec.md invariants I2/I3/I4.
func TestBargeInCancelsInFlightTurn(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		_ = onSentence("Satz eins.")
		_ = onSentence("Satz zwei.")
		return "Satz eins. Satz zwei.", nil, nil
	}}

	var g *Gateway
	triggered := false
	tts := &fakeTTS{
		chunks: []string{"c1", "c2"},
		onSynthesizeCall: func() {
			if !triggered {
				triggered = true
				g.handleBargeIn("")
			}
		},
	}
	transport := &fakeTransport{}

	var err error
	g, err = New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "erzaehl mir was", IsFinal: true, SpeechFinal: true})

	if got := transport.sentCount(); got != 0 {
		t.Fatalf("sent chunk count = %d, want 0 (all post-barge-in output must be dropped)", got)
	}
	if got := transport.clears(); got != 1 {
		t.Fatalf("clear count = %d, want 1", got)
	}
	if got := llm.cancelled(); got != 1 {
		t.Fatalf("llm cancel count = %d, want 1", got)
	}
	if got := tts.aborted(); got != 1 {
		t.Fatalf("tts abort count = %d, want 1", got)
	}

	turns := sess.FullConversation()
	if len(turns) != 1 || turns[0].Role != session.RoleCaller {
		t.Fatalf("expected only the caller turn to be committed, got %+v", turns)
	}
	if got := g.State(); got != StateListening {
		t.Fatalf("final state = %v, want LISTENING", got)
	}
}

func TestTurnIDMonotonicAcrossSequentialTurns(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		_ = onSentence("ok")
		return "ok", nil, nil
	}}
	tts := &fakeTTS{chunks: []string{"x"}}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "erstens", IsFinal: true, SpeechFinal: true})
	if got := g.CurrentTurnID(); got != 0 {
		t.Fatalf("turn id after first turn = %d, want 0", got)
	}

	g.setState(StateListening)
	g.onSTTEvent(context.Background(), STTEvent{Text: "zweitens", IsFinal: true, SpeechFinal: true})
	if got := g.CurrentTurnID(); got != 1 {
		t.Fatalf("turn id after second turn = %d, want 1", got)
	}

	if len(transport.sent) != 2 {
		t.Fatalf("sent chunks = %d, want 2", len(transport.sent))
	}
	if transport.sent[0].turnID != 0 || transport.sent[1].turnID != 1 {
		t.Fatalf("unexpected turn tags: %+v", transport.sent)
	}
}

func TestGenerationErrorReturnsToListeningWithoutAppend(t *testing.T) {
	sess := newTestSession()
	stt := newFakeSTT()
	llm := &fakeLLM{generateFn: func(ctx context.Context, messages []Message, onSentence func(string) error) (string, *ToolCallRequest, error) {
		return "", nil, ErrGeneration
	}}
	tts := &fakeTTS{}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.setState(StateListening)

	g.onSTTEvent(context.Background(), STTEvent{Text: "hallo", IsFinal: true, SpeechFinal: true})

	if got := g.State(); got != StateListening {
		t.Fatalf("state = %v, want LISTENING after failed generation", got)
	}
	turns := sess.FullConversation()
	if len(turns) != 1 || turns[0].Role != session.RoleCaller {
		t.Fatalf("expected only caller turn recorded, got %+v", turns)
	}
}

func TestBuildMessagesIncludesPersonaPreambleAndHistory(t *testing.T) {
	sess := newTestSession()
	sess.AppendTurn(session.RoleCaller, "hallo")
	sess.AppendTurn(session.RoleAgent, "hallo zurueck")

	stt := newFakeSTT()
	llm := &fakeLLM{}
	tts := &fakeTTS{}
	transport := &fakeTransport{}

	g, err := New("call-1", sess, stt, llm, tts, nil, transport, DefaultConfig(), NoOpLogger{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	messages := g.buildMessages("neue frage")
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "Begleiterin") {
		t.Fatalf("expected persona system message first, got %+v", messages[0])
	}
	if messages[1].Role != "user" || !strings.Contains(messages[1].Content, "Hintergrundinformationen") {
		t.Fatalf("expected dossier preamble second, got %+v", messages[1])
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "neue frage" {
		t.Fatalf("expected current utterance last, got %+v", last)
	}

	foundHistory := false
	for _, m := range messages {
		if m.Content == "hallo zurueck" && m.Role == "assistant" {
			foundHistory = true
		}
	}
	if !foundHistory {
		t.Fatal("expected short-buffer history to be included with assistant role")
	}
}
