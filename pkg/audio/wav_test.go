package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewWavBufferMonoHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := NewWavBuffer(pcm, 8000, 1)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("expected RIFF prefix")
	}
	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("expected length %d, got %d", expectedLen, len(wav))
	}

	channels := binary.LittleEndian.Uint16(wav[22:24])
	if channels != 1 {
		t.Errorf("expected 1 channel, got %d", channels)
	}
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 8000 {
		t.Errorf("expected sample rate 8000, got %d", sampleRate)
	}
}

func TestNewWavBufferStereoScalesByteRate(t *testing.T) {
	pcm := make([]byte, 16)
	wav := NewWavBuffer(pcm, 16000, 2)

	channels := binary.LittleEndian.Uint16(wav[22:24])
	if channels != 2 {
		t.Errorf("expected 2 channels, got %d", channels)
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	if byteRate != 16000*2*2 {
		t.Errorf("expected byte rate %d, got %d", 16000*2*2, byteRate)
	}
	blockAlign := binary.LittleEndian.Uint16(wav[32:34])
	if blockAlign != 4 {
		t.Errorf("expected block align 4, got %d", blockAlign)
	}
}

func TestNewWavBufferDefaultsZeroChannelsToMono(t *testing.T) {
	wav := NewWavBuffer([]byte{0x01}, 8000, 0)
	channels := binary.LittleEndian.Uint16(wav[22:24])
	if channels != 1 {
		t.Errorf("expected channels to default to 1, got %d", channels)
	}
}
