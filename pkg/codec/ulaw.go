// Package codec converts between base64 μ-law frames, raw μ-law bytes and
// linear 16-bit PCM, the three representations the gateway moves audio
// through on the hot path. Everything here is pure: no I/O, no hidden
// state beyond the process-wide decode table built once at init.
package codec

import "encoding/base64"

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// decodeTable maps every possible μ-law byte to its 16-bit linear PCM
// value, built once at process start per the ITU G.711 definition.
var decodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		decodeTable[i] = decodeByte(byte(i))
	}
}

func decodeByte(ulawByte byte) int16 {
	ulawByte = ^ulawByte
	sign := ulawByte & 0x80
	exponent := (ulawByte >> 4) & 0x07
	mantissa := ulawByte & 0x0F

	sample := (int(mantissa) << 3) + ulawBias
	sample <<= exponent
	sample -= ulawBias

	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// DecodeByte returns the linear PCM sample for a single μ-law byte.
func DecodeByte(b byte) int16 {
	return decodeTable[b]
}

// EncodeSample converts one linear 16-bit PCM sample to μ-law.
func EncodeSample(sample int16) byte {
	s := int(sample)

	sign := byte(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := byte(7)
	for mask := 0x4000; (s&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}

	mantissaShift := exponent + 3
	mantissa := byte((s >> mantissaShift) & 0x0F)

	return ^(sign | (exponent << 4) | mantissa)
}

// ULawToPCM decodes a raw μ-law byte slice into little-endian 16-bit PCM.
func ULawToPCM(ulaw []byte) []byte {
	pcm := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		sample := decodeTable[b]
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

// PCMToULaw encodes little-endian 16-bit PCM into raw μ-law bytes. An odd
// trailing byte (a malformed PCM buffer) is truncated rather than treated
// as an error, per the codec's no-hidden-failure contract.
func PCMToULaw(pcm []byte) []byte {
	n := len(pcm) / 2
	ulaw := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		ulaw[i] = EncodeSample(sample)
	}
	return ulaw
}

// Base64ToPCM decodes a base64 μ-law frame (as received from the
// transport) directly into linear PCM. Invalid base64 yields empty bytes;
// callers are expected to log the condition, not treat it as fatal.
func Base64ToPCM(b64 string) []byte {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return ULawToPCM(raw)
}

// PCMToBase64 encodes linear PCM into a base64 μ-law frame suitable for
// the transport's outbound `media.payload` field.
func PCMToBase64(pcm []byte) string {
	ulaw := PCMToULaw(pcm)
	return base64.StdEncoding.EncodeToString(ulaw)
}

// ULawToBase64 re-encodes a raw μ-law byte slice (e.g. received straight
// from a TTS provider already in μ-law) into base64 without a PCM
// round-trip.
func ULawToBase64(ulaw []byte) string {
	return base64.StdEncoding.EncodeToString(ulaw)
}

// Base64ToULaw decodes a base64 frame into raw μ-law bytes without
// expanding to PCM.
func Base64ToULaw(b64 string) []byte {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return raw
}
