// Package audio writes the minimal debug WAV container cmd/simulate
// dumps the received agent audio to on shutdown, so a test run can be
// replayed in any audio player without a live gateway connection.
package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	bitsPerSample = 16
	bytesPerSample = bitsPerSample / 8
)

// NewWavBuffer wraps linear PCM samples (sampleRate Hz, channels-
// interleaved, 16-bit) in a canonical RIFF/WAVE header, suitable for
// writing straight to a .wav file.
func NewWavBuffer(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign

	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))          // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))           // PCM format
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
