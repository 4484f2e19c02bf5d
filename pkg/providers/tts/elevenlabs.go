// Package tts provides streaming text-to-speech clients implementing
// gateway.TTSProvider.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/lokutor-ai/voice-gateway/pkg/codec"
	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
)

const elevenLabsAPIURL = "https://api.elevenlabs.io/v1"

// readChunkBytes mirrors original_source/elevenlabs_tts.py's
// iter_chunked(800): roughly 100ms of 8kHz μ-law per read.
const readChunkBytes = 800

// VoiceSettings are ElevenLabs' recognized voice tuning parameters, per
// spec.md §6: stability/similarity_boost/style in 0..1, an optional
// speaker-boost flag, and an optional speed multiplier. Configuration,
// not code: callers wire these from their own config source.
type VoiceSettings struct {
	Stability        float64 `json:"stability"`
	SimilarityBoost  float64 `json:"similarity_boost"`
	Style            float64 `json:"style"`
	UseSpeakerBoost  bool    `json:"use_speaker_boost"`
	Speed            float64 `json:"speed,omitempty"`
}

// DefaultVoiceSettings mirrors elevenlabs_tts.py's tuning, chosen for a
// calm German conversational register: balanced stability/clarity, a
// touch of style for intonation, speaker boost on, and a slightly
// slowed speed for an elderly audience.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.45,
		SimilarityBoost: 0.70,
		Style:           0.15,
		UseSpeakerBoost: true,
		Speed:           0.85,
	}
}

// ElevenLabsConfig configures an ElevenLabsTTS client.
type ElevenLabsConfig struct {
	APIKey        string
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
	// StreamingLatencyOptimization sets ElevenLabs' optimize_streaming_latency
	// query param (0..4); spec.md §6 calls for the maximum permitted value.
	StreamingLatencyOptimization int
}

// DefaultElevenLabsConfig returns a config using eleven_flash_v2_5 (chosen
// for its low time to first audio byte) and the maximum streaming latency
// optimization.
func DefaultElevenLabsConfig(apiKey, voiceID string) ElevenLabsConfig {
	return ElevenLabsConfig{
		APIKey:                       apiKey,
		VoiceID:                      voiceID,
		ModelID:                      "eleven_flash_v2_5",
		VoiceSettings:                DefaultVoiceSettings(),
		StreamingLatencyOptimization: 4,
	}
}

// ElevenLabsTTS is a streaming HTTP TTS client, grounded on
// original_source/backend/app/services/elevenlabs_tts.py's
// synthesize_streaming/synthesize_to_ulaw: POST to the streaming
// endpoint, read the μ-law 8kHz response body in small chunks, base64
// encode each for the transport.
type ElevenLabsTTS struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client

	mu     sync.Mutex
	inFlight io.ReadCloser
}

// NewElevenLabsTTS constructs a client against the given config.
func NewElevenLabsTTS(cfg ElevenLabsConfig) *ElevenLabsTTS {
	return &ElevenLabsTTS{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

func (e *ElevenLabsTTS) Name() string { return "elevenlabs" }

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// sentenceBoundarySplit matches a terminal punctuation mark plus the
// whitespace after it. Go's regexp has no lookbehind, so unlike
// elevenlabs_tts.py's re.split(r'(?<=[.!?])\s+') the mark is consumed by
// the split; preprocessForSpeech restores it from the matched boundary.
var sentenceBoundarySplit = regexp.MustCompile(`(?:[.!?])\s+`)

// stageDirectionBrackets strips bracketed stage directions such as
// "[lacht]" or "(Pause)" that an upstream LLM might emit but that are
// not meant to be spoken.
var stageDirectionBrackets = regexp.MustCompile(`[\[\(][^\]\)]*[\]\)]`)

// nonSpeechChars strips characters that have no spoken representation
// and would otherwise be read literally by some TTS engines.
var nonSpeechChars = regexp.MustCompile(`[*_~#>]+`)

// collapseWhitespace normalizes runs of whitespace to a single space.
var collapseWhitespace = regexp.MustCompile(`\s+`)

// longSentenceConjunctions are the German coordinating conjunctions before
// which splitLongSentence places a breathing comma in a long sentence.
var longSentenceConjunctions = []string{" und ", " aber ", " oder ", " denn ", " sondern "}

const longSentenceWordThreshold = 20

// preprocessForSpeech implements spec.md §4.5's text preprocessing
// pipeline: strip stage-direction brackets, remove non-speech
// characters, collapse whitespace, insert one breathing comma before a
// conjunction in sentences over 20 words (sentences are not split, and no
// other commas are added), and (grounded on
// elevenlabs_tts.py's _preprocess_text_for_intonation) tag questions
// with [excited] for rising German intonation.
func preprocessForSpeech(text string) string {
	text = stageDirectionBrackets.ReplaceAllString(text, "")
	text = nonSpeechChars.ReplaceAllString(text, "")
	text = collapseWhitespace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	sentences := sentenceBoundarySplit.Split(text, -1)
	boundaries := sentenceBoundarySplit.FindAllString(text, -1)

	var processed []string
	for i, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		punctuation := "."
		if i < len(boundaries) {
			punctuation = strings.TrimSpace(boundaries[i])
		}
		sentence = splitLongSentence(sentence)

		isQuestion := strings.HasSuffix(sentence, "?") || punctuation == "?"
		if !strings.HasSuffix(sentence, punctuation) && !strings.ContainsAny(sentence[len(sentence)-1:], ".!?") {
			sentence += punctuation
		}
		if isQuestion {
			sentence = "[excited] " + sentence
		}
		processed = append(processed, sentence)
	}

	return strings.Join(processed, " ")
}

// splitLongSentence inserts a breathing comma into a sentence of more than
// 20 words, the way a human speaker pauses before "und"/"aber" in an
// overlong clause. Conjunctions are tried in list order, and for each only
// its first occurrence is considered; the comma goes before the first such
// occurrence that has at least 10 words ahead of it.
func splitLongSentence(sentence string) string {
	words := strings.Fields(sentence)
	if len(words) <= longSentenceWordThreshold {
		return sentence
	}

	for _, conj := range longSentenceConjunctions {
		idx := strings.Index(sentence, conj)
		if idx <= 0 {
			continue
		}
		wordsBeforeConj := len(strings.Fields(sentence[:idx]))
		if wordsBeforeConj >= longSentenceWordThreshold/2 {
			return sentence[:idx] + "," + sentence[idx:]
		}
	}
	return sentence
}

// Synthesize streams base64 μ-law audio chunks to onChunk, in order,
// grounded on elevenlabs_tts.py's synthesize_streaming/
// synthesize_to_ulaw. Fails with gateway.ErrSynthesis on any response
// status other than 200; per spec.md §4.5 the caller treats that as a silently
// spoken turn and does not retry.
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string, onChunk func(base64ULaw string) error) error {
	processed := preprocessForSpeech(text)
	if processed == "" {
		return nil
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:          processed,
		ModelID:       e.cfg.ModelID,
		VoiceSettings: e.cfg.VoiceSettings,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", gateway.ErrSynthesis, err)
	}

	u := fmt.Sprintf("%s/text-to-speech/%s/stream", elevenLabsAPIURL, e.cfg.VoiceID)
	q := url.Values{}
	q.Set("output_format", "ulaw_8000")
	q.Set("optimize_streaming_latency", fmt.Sprintf("%d", e.cfg.StreamingLatencyOptimization))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", gateway.ErrSynthesis, err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrSynthesis, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("%w: upstream status %d", gateway.ErrSynthesis, resp.StatusCode)
	}

	e.mu.Lock()
	e.inFlight = resp.Body
	e.mu.Unlock()
	defer e.closeInFlight(resp.Body)

	buf := make([]byte, readChunkBytes)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := codec.ULawToBase64(buf[:n])
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			// Abort() closing the body mid-read surfaces here as a
			// read error; that is the expected cancellation path, not
			// a synthesis failure.
			if e.wasAborted(resp.Body) {
				return nil
			}
			return fmt.Errorf("%w: %v", gateway.ErrSynthesis, readErr)
		}
	}
}

// Abort closes the in-flight response body immediately, per spec.md
// §4.5's cancellation contract: no further onChunk invocations follow.
// Idempotent; safe to call when nothing is in flight.
func (e *ElevenLabsTTS) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight == nil {
		return nil
	}
	err := e.inFlight.Close()
	e.inFlight = nil
	return err
}

func (e *ElevenLabsTTS) closeInFlight(body io.ReadCloser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight == body {
		e.inFlight = nil
	}
}

func (e *ElevenLabsTTS) wasAborted(body io.ReadCloser) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight != body
}
