// Package vad implements the gateway's frame-level energy voice activity
// detector: root-mean-square amplitude over 20 ms (160-sample) frames of
// 8 kHz linear PCM, with a consecutive-frame debounce before a "speech
// present" signal is raised. Grounded on the teacher's
// pkg/orchestrator/vad.go RMSVAD, rescaled from the teacher's normalized
// [-1,1] 44.1 kHz design to spec.md's raw int16 8 kHz scale and stripped
// of the teacher's silence-timer speech-end detection, which this design
// delegates to the STT provider's server-side endpointing instead.
package vad

import "math"

// DefaultThreshold is the RMS cutoff on the 0..32767 int16 scale below
// which a frame is considered silence.
const DefaultThreshold = 1200.0

// DefaultDebounceFrames is the number of consecutive above-threshold
// frames required before a "speech present" signal is raised (3 frames
// of 20 ms each ≈ 60 ms of voiced energy).
const DefaultDebounceFrames = 3

// FrameDurationMs is the duration of one audio frame this VAD expects,
// used to convert a millisecond debounce window (spec.md §6's
// barge_in_threshold_ms) into a frame count via DebounceFramesForMs.
const FrameDurationMs = 20

// DebounceFramesForMs converts a millisecond debounce window into a
// frame count, rounding up so the configured window is never
// under-debounced; ms <= 0 falls back to DefaultDebounceFrames.
func DebounceFramesForMs(ms int) int {
	if ms <= 0 {
		return DefaultDebounceFrames
	}
	frames := (ms + FrameDurationMs - 1) / FrameDurationMs
	if frames < 1 {
		frames = 1
	}
	return frames
}

// EnergyVAD is a lightweight, stateful, single-caller-goroutine energy VAD.
// It is not safe for concurrent use from multiple goroutines; callers
// serialize frames through the gateway's transport receive loop, matching
// spec.md's single-threaded-per-call concurrency model.
type EnergyVAD struct {
	threshold      float64
	debounceFrames int

	consecutive int
	lastRMS     float64
}

// New constructs an EnergyVAD with the given threshold and debounce frame
// count.
func New(threshold float64, debounceFrames int) *EnergyVAD {
	if debounceFrames <= 0 {
		debounceFrames = DefaultDebounceFrames
	}
	return &EnergyVAD{threshold: threshold, debounceFrames: debounceFrames}
}

// NewDefault constructs an EnergyVAD using spec.md's documented defaults.
func NewDefault() *EnergyVAD {
	return New(DefaultThreshold, DefaultDebounceFrames)
}

// Process consumes one frame of linear 16-bit PCM (typically 160 samples /
// 320 bytes at 8 kHz) and returns whether the consecutive-frame counter
// has just reached the debounce threshold on this call (a rising-edge
// "speech present" signal, not a level), and the frame's RMS for callers
// that want to react to raw caller energy (barge-in threshold checks).
func (v *EnergyVAD) Process(frame []byte) (present bool, rms float64) {
	rms = calculateRMS(frame)
	v.lastRMS = rms

	if rms > v.threshold {
		v.consecutive++
		if v.consecutive == v.debounceFrames {
			return true, rms
		}
		return false, rms
	}

	v.consecutive = 0
	return false, rms
}

// ConsecutiveFrames reports the current run length of above-threshold
// frames. The gateway's barge-in check uses Process's rising-edge return
// value instead.
func (v *EnergyVAD) ConsecutiveFrames() int {
	return v.consecutive
}

// LastRMS returns the RMS of the most recently processed frame.
func (v *EnergyVAD) LastRMS() float64 {
	return v.lastRMS
}

// Reset clears the debounce counter. pkg/gateway does not call it at turn
// start; there the counter is cleared only by a below-threshold frame.
func (v *EnergyVAD) Reset() {
	v.consecutive = 0
}

// SetThreshold updates the RMS cutoff.
func (v *EnergyVAD) SetThreshold(threshold float64) {
	v.threshold = threshold
}

// Threshold returns the current RMS cutoff.
func (v *EnergyVAD) Threshold() float64 {
	return v.threshold
}

func calculateRMS(frame []byte) float64 {
	if len(frame) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(uint16(frame[i]) | uint16(frame[i+1])<<8)
		f := float64(sample)
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
