// Package transport is the server side of the caller media-stream
// WebSocket, per spec.md §6: a JSON control protocol (connected/start/
// media/stop/clear) carrying base64 μ-law audio. Grounded on
// original_source/backend/app/routers/twilio_webhook.py's
// media_stream_handler for the event vocabulary, and on the teacher's
// use of github.com/coder/websocket (already its client-side transport
// for STT/lokutor-TTS) for the Go-idiomatic connection handling.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/voice-gateway/pkg/codec"
	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
)

// inboundMessage is the subset of fields read off any incoming media-
// stream event; Start/Media carry event-specific payloads.
type inboundMessage struct {
	Event string `json:"event"`
	Start struct {
		StreamSid   string `json:"streamSid"`
		CallSid     string `json:"callSid"`
		MediaFormat struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
			Channels   int    `json:"channels"`
		} `json:"mediaFormat"`
	} `json:"start"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// MediaTransport is one call's server-side WebSocket connection,
// implementing gateway.Transport. It holds no reference back to the
// Gateway; the Gateway holds a reference to it instead, per spec.md §9.
type MediaTransport struct {
	conn   *websocket.Conn
	logger gateway.Logger

	mu        sync.Mutex
	streamSid string
	sttFailed bool
}

// NewMediaTransport wraps an already-upgraded websocket.Conn. Logs go to
// gateway.NoOpLogger until SetLogger is called.
func NewMediaTransport(conn *websocket.Conn) *MediaTransport {
	return &MediaTransport{conn: conn, logger: gateway.NoOpLogger{}}
}

// SetLogger wires a logger for dropped/malformed frames and STT
// transport degradation; nil is ignored.
func (t *MediaTransport) SetLogger(logger gateway.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Accept upgrades an HTTP request to a WebSocket and returns a
// MediaTransport ready for Run.
func Accept(w http.ResponseWriter, r *http.Request, acceptOpts *websocket.AcceptOptions) (*MediaTransport, error) {
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %v", gateway.ErrTransport, err)
	}
	return NewMediaTransport(conn), nil
}

// Run drives one call end to end: it starts the gateway, relays an
// optional greeting, and then blocks reading inbound events until
// `stop` arrives, the connection closes, or ctx is cancelled. It
// returns the full transcript accumulated over the call.
func (t *MediaTransport) Run(ctx context.Context, gw *gateway.Gateway, greeting string) (string, error) {
	if err := gw.Start(ctx); err != nil {
		return "", fmt.Errorf("%w: start: %v", gateway.ErrTransport, err)
	}
	defer gw.Stop()

	for {
		var msg inboundMessage
		if err := wsjson.Read(ctx, t.conn, &msg); err != nil {
			if ctx.Err() != nil {
				return gw.GetFullTranscript(), nil
			}
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				return gw.GetFullTranscript(), nil
			}
			return gw.GetFullTranscript(), fmt.Errorf("%w: read: %v", gateway.ErrTransport, err)
		}

		switch msg.Event {
		case "connected":
			// No action; acknowledgement only.
		case "start":
			t.mu.Lock()
			t.streamSid = msg.Start.StreamSid
			t.mu.Unlock()
			if greeting != "" {
				if err := gw.SendGreeting(ctx, greeting); err != nil {
					return gw.GetFullTranscript(), fmt.Errorf("%w: greeting: %v", gateway.ErrTransport, err)
				}
			}
		case "media":
			t.mu.Lock()
			degraded := t.sttFailed
			t.mu.Unlock()
			if degraded {
				// STT transport already failed this call: per spec.md §7,
				// remaining caller audio is dropped and the state machine
				// stays put; we keep reading only to catch "stop".
				continue
			}
			if msg.Media.Payload == "" {
				continue
			}
			pcm := codec.Base64ToPCM(msg.Media.Payload)
			if len(pcm) == 0 {
				// MalformedAudioFrame: log and drop, per spec.md §7.
				t.logger.Warn("dropping malformed audio frame", "call_id", msg.StreamSid)
				continue
			}
			if err := gw.HandleAudioFrame(ctx, pcm); err != nil {
				// STTTransportError: per spec.md §7, the session stays open
				// with remaining audio dropped rather than tearing down the
				// call; stop() still returns the partial transcript.
				t.logger.Error("stt transport failed, degrading call", "error", err.Error())
				t.mu.Lock()
				t.sttFailed = true
				t.mu.Unlock()
				continue
			}
		case "stop":
			return gw.GetFullTranscript(), nil
		}
	}
}

// SendAudio implements gateway.Transport: emits one base64 μ-law chunk
// tagged with turnID as an outbound `media` event.
func (t *MediaTransport) SendAudio(turnID int64, base64ULaw string) error {
	t.mu.Lock()
	streamSid := t.streamSid
	t.mu.Unlock()

	out := outboundMedia{Event: "media", StreamSid: streamSid}
	out.Media.Payload = base64ULaw

	if err := wsjson.Write(context.Background(), t.conn, out); err != nil {
		return fmt.Errorf("%w: send audio: %v", gateway.ErrTransport, err)
	}
	return nil
}

// SendClear implements gateway.Transport: instructs the caller-side
// player to drop any unplayed audio, per spec.md §4.6 _handle_barge_in
// step 3.
func (t *MediaTransport) SendClear() error {
	t.mu.Lock()
	streamSid := t.streamSid
	t.mu.Unlock()

	out := outboundClear{Event: "clear", StreamSid: streamSid}
	if err := wsjson.Write(context.Background(), t.conn, out); err != nil {
		return fmt.Errorf("%w: send clear: %v", gateway.ErrTransport, err)
	}
	return nil
}

// Close closes the underlying WebSocket connection.
func (t *MediaTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
