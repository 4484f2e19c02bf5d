package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/voice-gateway/pkg/metrics"
	"github.com/lokutor-ai/voice-gateway/pkg/session"
	"github.com/lokutor-ai/voice-gateway/pkg/tools"
	"github.com/lokutor-ai/voice-gateway/pkg/vad"
)

// Config bundles the tunables spec.md §6 lists for the turn-taking
// controller. Grounded on the teacher's orchestrator.Config (types.go)
// and original_source/backend/app/config.py for the concrete defaults.
type Config struct {
	// Language is the BCP-47 tag passed to the STT provider at connect.
	Language string
	// MinAudioBeforeBargein is the number of outbound TTS chunks that must
	// have been emitted for the in-flight turn before caller speech is
	// allowed to interrupt it (spec.md I5).
	MinAudioBeforeBargein int
	// NetworkPlayoutBufferMs is added to the estimated playback duration
	// of each outbound chunk when extending audio_playing_until, to
	// account for the caller-side jitter buffer.
	NetworkPlayoutBufferMs int
	// ShortBufferMaxTurns bounds the in-memory short conversation buffer.
	ShortBufferMaxTurns int
	// ToolTimeout bounds any one tool-broker call.
	ToolTimeout time.Duration
	// MinUtteranceMs is the configured minimum utterance length. It is
	// carried as configuration only: the gateway does not enforce it, so a
	// speech_final ends the turn however short the utterance was.
	MinUtteranceMs int
	// MaxUtteranceMs force-cuts an utterance that has been accumulating
	// this long without reaching speech_final, so a dropped endpointing
	// event can never stall a call indefinitely.
	MaxUtteranceMs int
	// VADEnergyThreshold is the RMS cutoff the energy VAD uses to decide
	// a frame carries voiced audio; 0 falls back to vad.DefaultThreshold.
	VADEnergyThreshold float64
	// VADDebounceMs is the VAD debounce window in milliseconds (spec.md
	// §6's barge_in_threshold_ms); converted to a frame count via
	// vad.DebounceFramesForMs. 0 falls back to vad.DefaultDebounceFrames.
	VADDebounceMs int
	// AgentName is the spoken name used in the programmatic greeting;
	// "" falls back to DefaultAgentName.
	AgentName string
}

// DefaultConfig mirrors the teacher's DefaultConfig pattern.
func DefaultConfig() Config {
	return Config{
		Language:               "de",
		MinAudioBeforeBargein:  20,
		NetworkPlayoutBufferMs: 500,
		ShortBufferMaxTurns:    6,
		ToolTimeout:            tools.DefaultTimeout,
		MinUtteranceMs:         600,
		MaxUtteranceMs:         15000,
		VADEnergyThreshold:     vad.DefaultThreshold,
		VADDebounceMs:          vad.DefaultDebounceFrames * vad.FrameDurationMs,
		AgentName:              DefaultAgentName,
	}
}

// Gateway is the four-state turn-taking controller: spec.md §4.6's
// state machine bound to one call. One Gateway serves exactly one call
// session; concurrency within a call is single-threaded by convention
// (the inbound audio loop and the STT event-dispatch loop are the only
// two goroutines that touch gateway state, both serialized by mu).
type Gateway struct {
	callID string
	cfg    Config
	logger Logger

	stt       STTProvider
	llm       LLMProvider
	tts       TTSProvider
	broker    *tools.Broker
	transport Transport
	vad       *vad.EnergyVAD
	metrics   *metrics.Call
	session   *session.Session
	preamble  []Message
	persona   string

	mu                sync.Mutex
	state             State
	turnID            int64 // next id to assign; turnID-1 is the active/current turn
	cancelFlag        bool
	accumulatedText   string
	stagingText       string
	audioSentCount    int
	audioPlayingUntil time.Time
	utteranceStarted  time.Time

	sttEvents <-chan STTEvent
	done      chan struct{}
}

// New constructs a Gateway. None of stt, llm, tts, transport, sess may
// be nil.
func New(callID string, sess *session.Session, stt STTProvider, llm LLMProvider, tts TTSProvider, broker *tools.Broker, transport Transport, cfg Config, logger Logger, metricsCall *metrics.Call) (*Gateway, error) {
	if stt == nil || llm == nil || tts == nil || transport == nil || sess == nil {
		return nil, ErrNilProvider
	}
	if logger == nil {
		logger = NoOpLogger{}
	}
	if metricsCall == nil {
		metricsCall = metrics.NewCall(callID, nil, nil)
	}
	vadThreshold := cfg.VADEnergyThreshold
	if vadThreshold == 0 {
		vadThreshold = vad.DefaultThreshold
	}
	debounceFrames := vad.DebounceFramesForMs(cfg.VADDebounceMs)
	return &Gateway{
		callID:    callID,
		cfg:       cfg,
		logger:    logger,
		stt:       stt,
		llm:       llm,
		tts:       tts,
		broker:    broker,
		transport: transport,
		vad:       vad.New(vadThreshold, debounceFrames),
		metrics:   metricsCall,
		session:   sess,
		preamble:  BuildPreamble(sess),
		persona:   DefaultPersonaPrompt,
		state:     StateIdle,
		done:      make(chan struct{}),
	}, nil
}

// State returns the gateway's current state. Safe for concurrent use.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CurrentTurnID returns the id of the most recently started turn, or -1
// if no turn has started yet.
func (g *Gateway) CurrentTurnID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnID - 1
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Start connects the STT provider and begins dispatching its events.
// Transitions IDLE -> LISTENING per spec.md's permitted-transitions
// table.
func (g *Gateway) Start(ctx context.Context) error {
	events, err := g.stt.Connect(ctx, g.cfg.Language)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSTTTransport, err)
	}
	g.sttEvents = events
	g.setState(StateListening)

	go g.dispatchSTTEvents(ctx)
	return nil
}

// Stop tears down the STT connection and aborts any in-flight TTS.
func (g *Gateway) Stop() error {
	close(g.done)
	g.llm.Cancel()
	_ = g.tts.Abort()
	g.metrics.EndCall()
	return g.stt.Close()
}

// SendGreeting speaks an initial programmatic greeting, per spec.md's
// "start() completes -> send_initial_greeting()" entry point. It is
// treated as a turn of its own, so it participates in the same
// turn-id/cancellation/barge-in machinery as any LLM-produced turn.
func (g *Gateway) SendGreeting(ctx context.Context, greeting string) error {
	g.mu.Lock()
	myTurnID := g.turnID
	g.turnID++
	g.resetTurnLocalCountersLocked()
	g.state = StateSpeaking
	g.mu.Unlock()

	g.metrics.TTSStart()
	err := g.speakSentence(ctx, myTurnID, greeting, true)

	if g.turnStillValid(myTurnID) {
		g.session.AppendTurn(session.RoleAgent, greeting)
		g.metrics.TTSComplete()
		g.setState(StateListening)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return nil
}

// BuildGreeting picks a randomized, caller-personalized greeting line
// for this call's session, per original_source's send_initial_greeting.
func (g *Gateway) BuildGreeting() string {
	return BuildGreeting(g.cfg.AgentName, g.session)
}

// HandleAudioFrame is the inbound event-loop entry point: one 20ms PCM
// frame of caller audio per call, per spec.md §4.6. It runs the frame
// through VAD, evaluates barge-in permission, and forwards the frame to
// the STT provider regardless of the VAD outcome.
func (g *Gateway) HandleAudioFrame(ctx context.Context, pcm []byte) error {
	present, _ := g.vad.Process(pcm)

	if present {
		g.mu.Lock()
		state := g.state
		playing := time.Now().Before(g.audioPlayingUntil)
		sent := g.audioSentCount
		g.mu.Unlock()

		permitted := sent >= g.cfg.MinAudioBeforeBargein && (state == StateSpeaking || playing)
		if permitted {
			g.handleBargeIn("")
		}
	}

	g.checkMaxUtterance(ctx)

	if err := g.stt.SendAudio(pcm); err != nil {
		return fmt.Errorf("%w: %v", ErrSTTTransport, err)
	}
	return nil
}

// checkMaxUtterance force-cuts an utterance that has been accumulating
// longer than cfg.MaxUtteranceMs without reaching speech_final, per
// spec.md §6's max_utterance_ms bound.
func (g *Gateway) checkMaxUtterance(ctx context.Context) {
	g.mu.Lock()
	state := g.state
	started := g.utteranceStarted
	utterance := g.accumulatedText
	overdue := !started.IsZero() && time.Since(started) > time.Duration(g.cfg.MaxUtteranceMs)*time.Millisecond
	g.mu.Unlock()

	if state != StateListening || !overdue || strings.TrimSpace(utterance) == "" {
		return
	}

	g.metrics.EndUserSpeech()
	g.metrics.STTFinal()
	g.processTurn(ctx, utterance)
}

func (g *Gateway) dispatchSTTEvents(ctx context.Context) {
	for {
		select {
		case <-g.done:
			return
		case ev, ok := <-g.sttEvents:
			if !ok {
				return
			}
			g.onSTTEvent(ctx, ev)
		}
	}
}

func (g *Gateway) onSTTEvent(ctx context.Context, ev STTEvent) {
	g.mu.Lock()
	state := g.state
	playing := time.Now().Before(g.audioPlayingUntil)
	sent := g.audioSentCount
	g.mu.Unlock()

	bargeable := sent >= g.cfg.MinAudioBeforeBargein && (state == StateSpeaking || playing)

	switch ev.Type {
	case STTSpeechStarted:
		if bargeable {
			g.handleBargeIn("")
		}
		return
	case STTUtteranceEnd:
		ev = STTEvent{Text: "", IsFinal: true, SpeechFinal: true}
	}

	if state == StateSpeaking {
		if strings.TrimSpace(ev.Text) != "" {
			g.handleBargeIn(ev.Text)
		}
		return
	}

	if state != StateListening {
		// THINKING/IDLE: spec.md's permitted-transitions table names no
		// barge-in trigger out of THINKING, so transcripts arriving while
		// the LLM is generating are dropped; the next LISTENING-state
		// utterance starts fresh.
		return
	}

	if ev.Text != "" {
		if ev.IsFinal {
			g.mu.Lock()
			isFirstOfUtterance := g.accumulatedText == ""
			if isFirstOfUtterance {
				g.utteranceStarted = time.Now()
			}
			g.accumulatedText = appendWithOverlapStripped(g.accumulatedText, ev.Text)
			g.mu.Unlock()

			if isFirstOfUtterance {
				g.metrics.StartTurn()
				g.metrics.UserSpeechStart()
			}
		} else {
			g.metrics.RecordPartial()
		}
	}

	if ev.SpeechFinal {
		g.mu.Lock()
		utterance := g.accumulatedText
		started := g.utteranceStarted
		g.mu.Unlock()

		if strings.TrimSpace(utterance) == "" || isFillerOnly(utterance) {
			return
		}
		_ = started // min_utterance_ms is exposed as configuration (spec.md §6) but
		// not enforced as a hard gate here: a single short but legitimate
		// utterance ("ja", "nein") must not be discarded, and the original
		// service never actually enforced this bound either (see DESIGN.md).

		g.metrics.EndUserSpeech()
		g.metrics.STTFinal()
		g.processTurn(ctx, utterance)
	}
}

// handleBargeIn implements spec.md §4.6 _handle_barge_in. staged is any
// transcript text that arrived alongside the interrupting speech (the
// "backup barge-in path"); it seeds the next utterance's accumulator
// verbatim so nothing the caller said while barging in is lost.
func (g *Gateway) handleBargeIn(staged string) {
	g.mu.Lock()
	if g.state != StateSpeaking && time.Now().After(g.audioPlayingUntil) {
		// Lost the race: nothing in flight to interrupt any more.
		g.mu.Unlock()
		return
	}
	g.cancelFlag = true
	g.audioPlayingUntil = time.Time{}
	g.accumulatedText = staged
	if staged != "" {
		g.utteranceStarted = time.Now()
	} else {
		g.utteranceStarted = time.Time{}
	}
	g.state = StateListening
	g.mu.Unlock()

	_ = g.transport.SendClear()
	g.llm.Cancel()
	_ = g.tts.Abort()
	g.metrics.RecordBargeIn()
	g.logger.Info("barge-in", "call_id", g.callID)
}

func (g *Gateway) resetTurnLocalCountersLocked() {
	g.cancelFlag = false
	g.audioSentCount = 0
	g.audioPlayingUntil = time.Time{}
	g.utteranceStarted = time.Time{}
}

// turnStillValid implements the gate spec.md step 6/8 describes: output
// produced for myTurnID may still be delivered iff no barge-in
// cancelled this turn and no later _process_turn has started since.
func (g *Gateway) turnStillValid(myTurnID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.cancelFlag && g.turnID == myTurnID+1
}

// processTurn implements spec.md §4.6 _process_turn: LLM generation
// with sentence-boundary TTS playback, optional single-round tool call,
// and the turn-id/cancellation-gated commit of the result back into the
// session.
func (g *Gateway) processTurn(ctx context.Context, utterance string) {
	g.mu.Lock()
	myTurnID := g.turnID
	g.turnID++
	g.resetTurnLocalCountersLocked()
	g.accumulatedText = ""
	g.state = StateThinking
	g.mu.Unlock()

	g.session.AppendTurn(session.RoleCaller, utterance)
	g.metrics.LLMStart()

	messages := g.buildMessages(utterance)

	var responseText strings.Builder
	firstSentence := true
	onSentence := func(sentence string) error {
		if !g.turnStillValid(myTurnID) {
			return nil
		}
		if firstSentence {
			firstSentence = false
			g.metrics.LLMFirstToken()
			g.setState(StateSpeaking)
			g.metrics.TTSStart()
		}
		responseText.WriteString(sentence)
		responseText.WriteString(" ")
		return g.speakSentence(ctx, myTurnID, sentence, false)
	}

	text, toolCall, err := g.llm.Generate(ctx, messages, onSentence)
	if err != nil {
		g.finishFailedTurn(myTurnID)
		return
	}

	if toolCall != nil {
		holding := tools.RandomHoldingPhrase()
		_ = onSentence(holding)

		result := g.broker.Execute(ctx, toolCall.Name, toolCall.ArgsJSON)

		text, err = g.llm.ContinueWithToolResult(ctx, messages, *toolCall, result, onSentence)
		if err != nil {
			g.finishFailedTurn(myTurnID)
			return
		}
	}

	g.metrics.LLMComplete(approxTokenCount(text), len(text))
	g.metrics.TTSComplete()

	if g.turnStillValid(myTurnID) {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			g.session.AppendTurn(session.RoleAgent, trimmed)
		}
		g.metrics.EndTurn()
		g.setState(StateListening)
	}
}

func (g *Gateway) finishFailedTurn(myTurnID int64) {
	g.logger.Warn("generation failed", "call_id", g.callID, "turn_id", myTurnID)
	if g.turnStillValid(myTurnID) {
		g.metrics.EndTurn()
		g.setState(StateListening)
	}
}

// speakSentence synthesizes one sentence, delivering each chunk to the
// transport tagged with turnID, subject to the same validity gate as
// the sentence callback itself (defense-in-depth per spec.md I3).
func (g *Gateway) speakSentence(ctx context.Context, turnID int64, sentence string, isGreeting bool) error {
	firstAudio := true
	err := g.tts.Synthesize(ctx, sentence, func(chunk string) error {
		if !g.turnStillValid(turnID) {
			return nil
		}
		if firstAudio {
			firstAudio = false
			g.metrics.TTSFirstAudio()
		}
		g.deliverAudioChunk(turnID, chunk)
		return nil
	})
	if err != nil && !isGreeting {
		g.logger.Warn("synthesis error", "call_id", g.callID, "turn_id", turnID, "error", err)
	}
	return err
}

// deliverAudioChunk implements spec.md's audio-duration-estimation rule
// for audio_playing_until: estimated playback duration of the chunk,
// plus a fixed network/jitter buffer, extends the window during which
// caller speech is still treated as a possible barge-in even after
// synthesis itself has finished.
func (g *Gateway) deliverAudioChunk(turnID int64, base64ULaw string) {
	g.mu.Lock()
	if g.cancelFlag || g.turnID != turnID+1 {
		g.mu.Unlock()
		return
	}
	g.audioSentCount++
	ulawBytes := (len(base64ULaw) * 3) / 4
	playMs := ulawBytes * 1000 / 8000 // 8kHz, 1 byte/sample mu-law
	estimate := time.Now().Add(time.Duration(playMs)*time.Millisecond + time.Duration(g.cfg.NetworkPlayoutBufferMs)*time.Millisecond)
	if estimate.After(g.audioPlayingUntil) {
		g.audioPlayingUntil = estimate
	}
	g.mu.Unlock()

	if err := g.transport.SendAudio(turnID, base64ULaw); err != nil {
		g.logger.Warn("transport send failed", "call_id", g.callID, "error", err)
	}
}

// buildMessages assembles the system persona, synthetic preamble, short
// conversation buffer, and current utterance into the message sequence
// passed to the LLM provider, per spec.md §4.4.
func (g *Gateway) buildMessages(utterance string) []Message {
	messages := make([]Message, 0, 2+len(g.preamble)+2*g.cfg.ShortBufferMaxTurns+1)
	messages = append(messages, Message{Role: "system", Content: g.persona})
	messages = append(messages, g.preamble...)

	for _, turn := range g.session.ShortBuffer() {
		role := "user"
		if turn.Role == session.RoleAgent {
			role = "assistant"
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, Message{Role: "user", Content: utterance})
	return messages
}

// GetFullTranscript returns the call's complete transcript, per
// spec.md's get_full_transcript.
func (g *Gateway) GetFullTranscript() string {
	return g.session.FullTranscript()
}

func approxTokenCount(text string) int {
	return len(strings.Fields(text))
}
