package stt

import (
	"testing"

	"github.com/lokutor-ai/voice-gateway/pkg/gateway"
)

func TestParseDeepgramPayloadResultsFinal(t *testing.T) {
	payload := []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hallo welt","confidence":0.97}]}}`)

	ev, isFinal, ok := parseDeepgramPayload(payload)
	if !ok {
		t.Fatal("expected ok")
	}
	if !isFinal {
		t.Fatal("expected isFinal")
	}
	if ev.Type != gateway.STTTranscript || ev.Text != "hallo welt" || !ev.SpeechFinal {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseDeepgramPayloadResultsEmptyTranscriptIgnored(t *testing.T) {
	payload := []byte(`{"type":"Results","channel":{"alternatives":[{"transcript":"  "}]}}`)
	_, _, ok := parseDeepgramPayload(payload)
	if ok {
		t.Fatal("expected empty transcript to be dropped")
	}
}

func TestParseDeepgramPayloadUtteranceEnd(t *testing.T) {
	ev, _, ok := parseDeepgramPayload([]byte(`{"type":"UtteranceEnd"}`))
	if !ok || ev.Type != gateway.STTUtteranceEnd {
		t.Fatalf("unexpected: %+v ok=%v", ev, ok)
	}
}

func TestParseDeepgramPayloadSpeechStarted(t *testing.T) {
	ev, _, ok := parseDeepgramPayload([]byte(`{"type":"SpeechStarted"}`))
	if !ok || ev.Type != gateway.STTSpeechStarted {
		t.Fatalf("unexpected: %+v ok=%v", ev, ok)
	}
}

func TestParseDeepgramPayloadUnknownTypeIgnored(t *testing.T) {
	_, _, ok := parseDeepgramPayload([]byte(`{"type":"Metadata"}`))
	if ok {
		t.Fatal("expected Metadata to produce no event")
	}
}

func TestParseDeepgramPayloadMalformedJSONIgnored(t *testing.T) {
	_, _, ok := parseDeepgramPayload([]byte(`not json`))
	if ok {
		t.Fatal("expected malformed JSON to be dropped")
	}
}

func TestDefaultDeepgramConfig(t *testing.T) {
	cfg := DefaultDeepgramConfig("key", 700)
	if cfg.Model != "nova-2" || cfg.EndpointingMs != 700 || !cfg.SmartFormat {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
