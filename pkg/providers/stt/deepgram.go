// Package stt provides duplex streaming speech-to-text clients
// implementing gateway.STTProvider.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
)

// keepAliveInterval matches the original deepgram_stt.py's 10s
// keep-alive loop.
const keepAliveInterval = 10 * time.Second

// DeepgramConfig configures the connect-time query parameters, per
// original_source/backend/app/services/deepgram_stt.py's connect()
// params dict.
type DeepgramConfig struct {
	APIKey         string
	Model          string
	EndpointingMs  int
	SmartFormat    bool
	Punctuate      bool
	InterimResults bool
}

// DefaultDeepgramConfig mirrors the original's nova-2 defaults.
func DefaultDeepgramConfig(apiKey string, endOfTurnSilenceMs int) DeepgramConfig {
	return DeepgramConfig{
		APIKey:         apiKey,
		Model:          "nova-2",
		EndpointingMs:  endOfTurnSilenceMs,
		SmartFormat:    true,
		Punctuate:      true,
		InterimResults: true,
	}
}

// DeepgramSTT is a duplex streaming STT client grounded on
// original_source/backend/app/services/deepgram_stt.py, reworked from
// the original's asyncio tasks into goroutines synchronized over a Go
// channel, in the idiom the teacher's pkg/providers/tts/lokutor.go uses
// for its own websocket client (lazy single connection guarded by a
// mutex).
type DeepgramSTT struct {
	cfg DeepgramConfig

	mu   sync.Mutex
	conn *websocket.Conn

	partialCount int
	finalCount   int
}

// NewDeepgramSTT constructs a client. Connect must be called before
// SendAudio.
func NewDeepgramSTT(cfg DeepgramConfig) *DeepgramSTT {
	return &DeepgramSTT{cfg: cfg}
}

func (d *DeepgramSTT) Name() string { return "deepgram" }

// Connect dials Deepgram's streaming endpoint and starts the
// background receive and keep-alive loops, returning a channel of
// gateway.STTEvent for the lifetime of the call.
func (d *DeepgramSTT) Connect(ctx context.Context, language string) (<-chan gateway.STTEvent, error) {
	u := url.URL{Scheme: "wss", Host: "api.deepgram.com", Path: "/v1/listen"}
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	q.Set("language", language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	q.Set("interim_results", strconv.FormatBool(d.cfg.InterimResults))
	q.Set("endpointing", strconv.Itoa(d.cfg.EndpointingMs))
	q.Set("smart_format", strconv.FormatBool(d.cfg.SmartFormat))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	events := make(chan gateway.STTEvent, 32)
	go d.receiveLoop(ctx, conn, events)
	go d.keepAliveLoop(ctx, conn)

	return events, nil
}

// SendAudio forwards one PCM frame as a binary websocket message.
func (d *DeepgramSTT) SendAudio(pcm []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("deepgram: not connected")
	}
	return conn.Write(context.Background(), websocket.MessageBinary, pcm)
}

func (d *DeepgramSTT) Close() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (d *DeepgramSTT) receiveLoop(ctx context.Context, conn *websocket.Conn, events chan<- gateway.STTEvent) {
	defer close(events)
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}

		ev, isFinal, ok := parseDeepgramPayload(payload)
		if !ok {
			continue
		}
		if ev.Type == gateway.STTTranscript {
			d.mu.Lock()
			if isFinal {
				d.finalCount++
			} else {
				d.partialCount++
			}
			d.mu.Unlock()
		}
		events <- ev
	}
}

// parseDeepgramPayload decodes one Deepgram websocket text message into
// a gateway.STTEvent, dispatching on the "type" discriminator per
// original_source/backend/app/services/deepgram_stt.py's
// _handle_message. ok is false for malformed JSON or message types/
// empty transcripts that produce no event.
func parseDeepgramPayload(payload []byte) (ev gateway.STTEvent, isFinal bool, ok bool) {
	var msg deepgramMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return gateway.STTEvent{}, false, false
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return gateway.STTEvent{}, false, false
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if text == "" {
			return gateway.STTEvent{}, false, false
		}
		return gateway.STTEvent{
			Type:        gateway.STTTranscript,
			Text:        text,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Confidence:  msg.Channel.Alternatives[0].Confidence,
		}, msg.IsFinal, true
	case "UtteranceEnd":
		return gateway.STTEvent{Type: gateway.STTUtteranceEnd}, false, true
	case "SpeechStarted":
		return gateway.STTEvent{Type: gateway.STTSpeechStarted}, false, true
	default:
		return gateway.STTEvent{}, false, false
	}
}

func (d *DeepgramSTT) keepAliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`))
		}
	}
}
