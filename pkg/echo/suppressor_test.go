package echo

import (
	"math"
	"testing"
)

func generateSine(freq float64, durationMs, sampleRate int, amp float64) []byte {
	n := sampleRate * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := amp * math.Sin(2*math.Pi*freq*t)
		s := int16(v * 32767)
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	return buf
}

func TestIsEchoDetectsRecentlyPlayedAudio(t *testing.T) {
	s := New(44100)
	played := generateSine(440, 200, 44100, 0.8)
	s.RecordPlayedAudio(played)

	frame := played[len(played)-1764:]
	if !s.IsEcho(frame) {
		t.Fatal("expected identical-frequency tail of recently played audio to be detected as echo")
	}
}

func TestIsEchoIgnoresDifferentFrequency(t *testing.T) {
	s := New(44100)
	played := generateSine(440, 200, 44100, 0.8)
	s.RecordPlayedAudio(played)

	different := generateSine(880, 200, 44100, 0.8)
	if s.IsEcho(different[:1764]) {
		t.Fatal("unexpected echo detection for an unrelated signal")
	}
}

func TestIsEchoFalseAfterSilenceWindow(t *testing.T) {
	s := New(44100)
	s.echoSilenceMS = 0
	played := generateSine(440, 200, 44100, 0.8)
	s.RecordPlayedAudio(played)
	s.lastPlayedAt = s.lastPlayedAt.Add(-1) // force the silence window to have elapsed

	if s.IsEcho(played) {
		t.Fatal("expected no echo detection once the silence window has elapsed")
	}
}

func TestClearBufferDropsHistory(t *testing.T) {
	s := New(44100)
	played := generateSine(440, 200, 44100, 0.8)
	s.RecordPlayedAudio(played)
	s.ClearBuffer()

	if s.IsEcho(played) {
		t.Fatal("expected no echo detection after ClearBuffer")
	}
}

func TestSetThresholdRejectsOutOfRange(t *testing.T) {
	s := New(44100)
	s.SetThreshold(1.5)
	if s.echoThreshold != 0.55 {
		t.Fatalf("out-of-range threshold should be rejected, got %v", s.echoThreshold)
	}
	s.SetThreshold(0.9)
	if s.echoThreshold != 0.9 {
		t.Fatalf("expected threshold 0.9, got %v", s.echoThreshold)
	}
}

func TestSetEnabledDisablesDetection(t *testing.T) {
	s := New(44100)
	played := generateSine(440, 200, 44100, 0.8)
	s.RecordPlayedAudio(played)
	s.SetEnabled(false)

	if s.IsEcho(played) {
		t.Fatal("expected no echo detection while disabled")
	}
}
