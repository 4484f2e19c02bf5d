// Package metrics implements per-turn latency tracking and call-scope
// counters. Grounded on original_source/backend/app/services/metrics.py's
// TurnMetrics/CallMetrics dataclasses, translated into Go structs with
// the same set of raw timestamps and derived latencies. On turn end a
// structured record containing only numbers and the call identifier is
// logged via zap — never transcript text, per spec.md §4.7 — and mirrored
// into Prometheus counters/histograms for fleet-wide aggregation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Turn holds the raw timestamps for a single conversational turn and
// exposes the derived latencies spec.md §4.7 names.
type Turn struct {
	UserSpeechStart time.Time
	UserSpeechEnd   time.Time
	STTFinalAt      time.Time
	LLMStartAt      time.Time
	LLMFirstToken   time.Time
	LLMCompleteAt   time.Time
	TTSStartAt      time.Time
	TTSFirstAudio   time.Time
	TTSCompleteAt   time.Time
}

func msSince(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Milliseconds()
}

// STTLatencyMs is the time from user speech end to the STT final
// transcript.
func (t Turn) STTLatencyMs() int64 { return msSince(t.UserSpeechEnd, t.STTFinalAt) }

// LLMTimeToFirstByteMs is the time from LLM request start to the first
// streamed sentence.
func (t Turn) LLMTimeToFirstByteMs() int64 { return msSince(t.LLMStartAt, t.LLMFirstToken) }

// LLMTotalMs is the total LLM generation duration.
func (t Turn) LLMTotalMs() int64 { return msSince(t.LLMStartAt, t.LLMCompleteAt) }

// TTSTimeToFirstByteMs is the time from TTS request start to the first
// audio chunk.
func (t Turn) TTSTimeToFirstByteMs() int64 { return msSince(t.TTSStartAt, t.TTSFirstAudio) }

// TotalTurnLatencyMs is the time from the caller falling silent to the
// first audio chunk of the agent's reply — the number that matters most
// for perceived responsiveness.
func (t Turn) TotalTurnLatencyMs() int64 { return msSince(t.UserSpeechEnd, t.TTSFirstAudio) }

// Fields renders the turn's derived latencies as structured zap fields,
// deliberately excluding any transcript text or caller identity beyond
// the call id the caller attaches separately.
func (t Turn) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("stt_latency_ms", t.STTLatencyMs()),
		zap.Int64("llm_ttfb_ms", t.LLMTimeToFirstByteMs()),
		zap.Int64("llm_total_ms", t.LLMTotalMs()),
		zap.Int64("tts_ttfb_ms", t.TTSTimeToFirstByteMs()),
		zap.Int64("turn_latency_ms", t.TotalTurnLatencyMs()),
	}
}

// Registry holds the Prometheus collectors shared across all calls in
// the process, grounded on glyphoxa's internal/observe/metrics.go
// register-once pattern.
type Registry struct {
	Turns          prometheus.Counter
	BargeIns       prometheus.Counter
	Tokens         prometheus.Counter
	Characters     prometheus.Counter
	TurnLatencyMs  prometheus.Histogram
	STTLatencyMs   prometheus.Histogram
	LLMTotalMs     prometheus.Histogram
	TTSFirstByteMs prometheus.Histogram
}

// NewRegistry constructs and registers a Registry against reg. Pass
// prometheus.NewRegistry() in production and a fresh one per test to
// avoid duplicate-registration panics across test cases.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicegw_turns_total",
			Help: "Total number of completed conversational turns.",
		}),
		BargeIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicegw_barge_ins_total",
			Help: "Total number of caller barge-ins.",
		}),
		Tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicegw_llm_tokens_total",
			Help: "Total number of LLM tokens streamed.",
		}),
		Characters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicegw_llm_characters_total",
			Help: "Total number of LLM response characters streamed.",
		}),
		TurnLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegw_turn_latency_ms",
			Help:    "End-to-end turn latency: user speech end to first TTS audio.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		}),
		STTLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegw_stt_latency_ms",
			Help:    "STT latency: user speech end to final transcript.",
			Buckets: prometheus.ExponentialBuckets(20, 2, 10),
		}),
		LLMTotalMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegw_llm_total_ms",
			Help:    "Total LLM generation duration.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		}),
		TTSFirstByteMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegw_tts_first_byte_ms",
			Help:    "TTS time to first audio byte.",
			Buckets: prometheus.ExponentialBuckets(20, 2, 10),
		}),
	}
	reg.MustRegister(r.Turns, r.BargeIns, r.Tokens, r.Characters, r.TurnLatencyMs, r.STTLatencyMs, r.LLMTotalMs, r.TTSFirstByteMs)
	return r
}

// Call tracks call-scope counters and the in-flight turn for one session,
// grounded on original's CallMetrics.
type Call struct {
	mu sync.Mutex

	CallID    string
	StartedAt time.Time
	EndedAt   time.Time

	BargeInCount   int
	PartialCount   int
	FinalCount     int
	TokenCount     int
	CharacterCount int
	TurnCount      int

	current Turn

	logger   *zap.Logger
	registry *Registry
}

// NewCall starts call-scope metrics for callID. registry may be nil, in
// which case Prometheus observations are skipped (useful in tests).
func NewCall(callID string, logger *zap.Logger, registry *Registry) *Call {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Call{
		CallID:    callID,
		StartedAt: time.Now(),
		logger:    logger,
		registry:  registry,
	}
}

// StartTurn resets the in-flight turn's timestamps, called at the start
// of every caller utterance.
func (c *Call) StartTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Turn{}
}

// UserSpeechStart records when the caller began speaking.
func (c *Call) UserSpeechStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.UserSpeechStart = time.Now()
}

// EndUserSpeech records when the caller stopped speaking.
func (c *Call) EndUserSpeech() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.UserSpeechEnd = time.Now()
}

// RecordPartial increments the call-scope partial-transcript counter.
func (c *Call) RecordPartial() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PartialCount++
}

// STTFinal records the STT final-transcript timestamp and increments the
// final-transcript counter.
func (c *Call) STTFinal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.STTFinalAt = time.Now()
	c.FinalCount++
}

// LLMStart records LLM request start.
func (c *Call) LLMStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.LLMStartAt = time.Now()
}

// LLMFirstToken records the first streamed LLM token/sentence.
func (c *Call) LLMFirstToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.LLMFirstToken.IsZero() {
		c.current.LLMFirstToken = time.Now()
	}
}

// LLMComplete records LLM generation completion and accumulates token and
// character counters.
func (c *Call) LLMComplete(tokens, characters int) {
	c.mu.Lock()
	c.current.LLMCompleteAt = time.Now()
	c.TokenCount += tokens
	c.CharacterCount += characters
	registry := c.registry
	c.mu.Unlock()

	if registry != nil {
		registry.Tokens.Add(float64(tokens))
		registry.Characters.Add(float64(characters))
	}
}

// TTSStart records TTS request start.
func (c *Call) TTSStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.TTSStartAt = time.Now()
}

// TTSFirstAudio records the first TTS audio chunk.
func (c *Call) TTSFirstAudio() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.TTSFirstAudio.IsZero() {
		c.current.TTSFirstAudio = time.Now()
	}
}

// TTSComplete records TTS completion.
func (c *Call) TTSComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.TTSCompleteAt = time.Now()
}

// RecordBargeIn increments the call-scope barge-in counter.
func (c *Call) RecordBargeIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BargeInCount++
	if c.registry != nil {
		c.registry.BargeIns.Inc()
	}
}

// EndTurn finalizes the in-flight turn: logs a structured, PII-free
// record and updates Prometheus observations.
func (c *Call) EndTurn() {
	c.mu.Lock()
	turn := c.current
	c.TurnCount++
	c.mu.Unlock()

	c.logger.Info("turn complete", append([]zap.Field{zap.String("call_id", c.CallID)}, turn.Fields()...)...)

	if c.registry != nil {
		c.registry.Turns.Inc()
		if ms := turn.TotalTurnLatencyMs(); ms > 0 {
			c.registry.TurnLatencyMs.Observe(float64(ms))
		}
		if ms := turn.STTLatencyMs(); ms > 0 {
			c.registry.STTLatencyMs.Observe(float64(ms))
		}
		if ms := turn.LLMTotalMs(); ms > 0 {
			c.registry.LLMTotalMs.Observe(float64(ms))
		}
		if ms := turn.TTSTimeToFirstByteMs(); ms > 0 {
			c.registry.TTSFirstByteMs.Observe(float64(ms))
		}
	}
}

// EndCall finalizes call-scope metrics.
func (c *Call) EndCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndedAt = time.Now()
}

// Summary is a point-in-time, loggable snapshot of call-scope counters.
type Summary struct {
	CallID         string
	DurationMs     int64
	TurnCount      int
	BargeInCount   int
	PartialCount   int
	FinalCount     int
	TokenCount     int
	CharacterCount int
}

// Summary returns the current call-scope summary.
func (c *Call) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.EndedAt
	if end.IsZero() {
		end = time.Now()
	}

	return Summary{
		CallID:         c.CallID,
		DurationMs:     end.Sub(c.StartedAt).Milliseconds(),
		TurnCount:      c.TurnCount,
		BargeInCount:   c.BargeInCount,
		PartialCount:   c.PartialCount,
		FinalCount:     c.FinalCount,
		TokenCount:     c.TokenCount,
		CharacterCount: c.CharacterCount,
	}
}
