// Package echo implements correlation-based acoustic echo suppression
// for a local duplex audio loop: it records what was just sent to the
// speaker and flags microphone input that correlates highly with that
// recent playback, so a local test client doesn't interrupt itself on
// its own voice. Adapted from the teacher's
// pkg/orchestrator/echo_suppression.go EchoSuppressor, generalized away
// from that package's ManagedStream wiring — cmd/simulate is the only
// caller, since the gateway's own barge-in logic (pkg/gateway's
// MinAudioBeforeBargein debounce) handles the telephony-side case where
// playback and capture never share a physical room.
package echo

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// Suppressor detects microphone input that is primarily echo from
// recently played speaker audio, using normalized cross-correlation with
// an envelope-correlation fallback for high-frequency content that phase
// shifts in-room.
type Suppressor struct {
	mu             sync.Mutex
	playedAudioBuf *bytes.Buffer
	maxBufSize     int
	echoThreshold  float64
	echoSilenceMS  int
	lastPlayedAt   time.Time
	enabled        bool
	sampleRate     int
}

// New constructs a Suppressor for audio at sampleRate (Hz, 16-bit mono).
func New(sampleRate int) *Suppressor {
	return &Suppressor{
		playedAudioBuf: new(bytes.Buffer),
		maxBufSize:     sampleRate * 2 * 2, // ~2 seconds, 16-bit mono
		echoThreshold:  0.55,
		echoSilenceMS:  1200,
		enabled:        true,
		sampleRate:     sampleRate,
	}
}

// RecordPlayedAudio records a chunk just written to the speaker.
func (s *Suppressor) RecordPlayedAudio(chunk []byte) {
	if !s.enabled || len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playedAudioBuf.Write(chunk)
	s.lastPlayedAt = time.Now()

	if s.playedAudioBuf.Len() > s.maxBufSize {
		data := s.playedAudioBuf.Bytes()
		trim := data[len(data)-s.maxBufSize:]
		s.playedAudioBuf.Reset()
		s.playedAudioBuf.Write(trim)
	}
}

// IsEcho reports whether inputChunk correlates highly enough with
// recently played audio to be treated as echo rather than caller speech.
func (s *Suppressor) IsEcho(inputChunk []byte) bool {
	if !s.enabled || len(inputChunk) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastPlayedAt) > time.Duration(s.echoSilenceMS)*time.Millisecond {
		return false
	}

	playedData := s.playedAudioBuf.Bytes()
	if len(playedData) == 0 {
		return false
	}

	if s.calculateCorrelation(inputChunk, playedData) > s.echoThreshold {
		return true
	}

	envCorr := maxEnvelopeCorrelation(bytesToSamples(inputChunk), bytesToSamples(playedData), 8)
	return envCorr > s.echoThreshold+0.05
}

func (s *Suppressor) calculateCorrelation(input, reference []byte) float64 {
	if len(input) == 0 || len(reference) == 0 {
		return 0
	}

	inputSamples := bytesToSamples(input)
	refSamples := bytesToSamples(reference)
	if len(inputSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	compareLen := len(inputSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}
	refCompare := refSamples[len(refSamples)-compareLen:]

	inputEnergy := calculateEnergy(inputSamples)
	refCompareEnergy := calculateEnergy(refCompare)
	if inputEnergy == 0 || refCompareEnergy == 0 {
		return 0
	}

	correlation := 0.0
	for i := 0; i < len(inputSamples) && i < len(refCompare); i++ {
		correlation += inputSamples[i] * refCompare[i]
	}

	normFactor := math.Sqrt(inputEnergy * refCompareEnergy)
	if normFactor == 0 {
		return 0
	}
	normalized := correlation / normFactor
	if normalized < 0 {
		normalized = 0
	} else if normalized > 1 {
		normalized = 1
	}
	return normalized
}

// ClearBuffer drops the recorded playback history, used when playback is
// interrupted so stale audio never suppresses the next utterance.
func (s *Suppressor) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playedAudioBuf.Reset()
}

// SetThreshold adjusts detection sensitivity in [0, 1]; higher is less
// sensitive (less input flagged as echo). Values outside [0, 1] are
// ignored.
func (s *Suppressor) SetThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if threshold >= 0 && threshold <= 1 {
		s.echoThreshold = threshold
	}
}

// SetEnabled toggles echo suppression.
func (s *Suppressor) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func bytesToSamples(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}

func calculateEnergy(samples []float64) float64 {
	energy := 0.0
	for _, v := range samples {
		energy += v * v
	}
	return energy
}

// maxEnvelopeCorrelation compares the downsampled absolute-value energy
// envelope of both signals, catching phase-shifted high-frequency
// content (like sibilants) that sample-domain correlation misses.
func maxEnvelopeCorrelation(inSamples, refSamples []float64, decimation int) float64 {
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return 0
	}
	inEnv := envelope(inSamples, decimation)
	refEnv := envelope(refSamples, decimation)

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := mean(inEnv[:compareLen])
	inCentered := make([]float64, compareLen)
	inVar := 0.0
	for i := 0; i < compareLen; i++ {
		inCentered[i] = inEnv[i] - inMean
		inVar += inCentered[i] * inCentered[i]
	}
	if inVar <= 0 {
		return 0
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}
	searchRange := len(refEnv) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		refMean := mean(refEnv[pos : pos+compareLen])
		dot, refVar := 0.0, 0.0
		for i := 0; i < compareLen; i++ {
			r := refEnv[pos+i] - refMean
			dot += inCentered[i] * r
			refVar += r * r
		}
		if refVar > 0 {
			if corr := dot / math.Sqrt(inVar*refVar); corr > maxCorr {
				maxCorr = corr
			}
		}
	}
	return maxCorr
}

func envelope(samples []float64, decimation int) []float64 {
	env := make([]float64, len(samples)/decimation)
	for i := range env {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(samples[i*decimation+j])
		}
		env[i] = sum
	}
	return env
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
