// Package resample implements the Resampler/Normalizer stage (C2): downmix
// to mono, polyphase resampling to 16 kHz, adaptive gain, and soft clipping.
package resample

import (
	"math"

	"github.com/hammamikhairi/dictum/internal/domain"
)

const targetRate = domain.SampleRate

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithGainBoost sets the initial input_gain_boost multiplier (0.5-8.0).
func WithGainBoost(g float32) Option {
	return func(n *Normalizer) { n.gain = clampGain(g) }
}

// Normalizer downmixes, resamples to 16 kHz via a windowed-sinc polyphase
// filter, and applies gain + soft clip. One instance handles one continuous
// stream; it is not safe for concurrent calls to Process.
type Normalizer struct {
	srcRate  int
	channels int
	gain     float32

	filter   *polyphaseFilter
	lastRMS  float32
	lastPeak float32

	// monoBuf is downmix's reusable output buffer (§5: the capture thread's
	// call into Process must not allocate). Grows only when a chunk is
	// larger than any seen so far; never shrinks.
	monoBuf []float32
}

// New creates a normalizer for a stream with the given native rate and
// channel count.
func New(srcRate, channels int, opts ...Option) *Normalizer {
	n := &Normalizer{
		srcRate:  srcRate,
		channels: channels,
		gain:     1.0,
	}
	for _, opt := range opts {
		opt(n)
	}
	if srcRate != targetRate {
		n.filter = newPolyphaseFilter(srcRate, targetRate)
	}
	return n
}

// SetGain updates the gain boost applied to subsequent chunks.
func (n *Normalizer) SetGain(g float32) { n.gain = clampGain(g) }

func clampGain(g float32) float32 {
	if g < 0.5 {
		return 0.5
	}
	if g > 8.0 {
		return 8.0
	}
	return g
}

// Process downmixes interleaved int16 PCM to mono f32, resamples to
// 16 kHz, applies gain and soft clip, and returns the resulting samples
// along with this chunk's RMS and peak for diagnostics.
func (n *Normalizer) Process(interleaved []int16) (samples []float32, rms, peak float32) {
	mono := n.downmix(interleaved)

	if n.filter != nil {
		mono = n.filter.Resample(mono)
	}

	var sumSq float64
	for i, s := range mono {
		v := s * n.gain
		v = softClip(v)
		mono[i] = v
		sumSq += float64(v) * float64(v)
		if abs32(v) > peak {
			peak = abs32(v)
		}
	}
	if len(mono) > 0 {
		rms = float32(math.Sqrt(sumSq / float64(len(mono))))
	}
	n.lastRMS, n.lastPeak = rms, peak
	return mono, rms, peak
}

// downmix converts interleaved to mono f32 into n.monoBuf, growing it only
// when this chunk is larger than any seen before — the common case (a
// fixed frames-per-buffer capture callback) never allocates past warm-up.
// The returned slice aliases n.monoBuf and is only valid until the next
// Process call.
func (n *Normalizer) downmix(interleaved []int16) []float32 {
	channels := n.channels
	if channels <= 1 {
		out := n.ensureMonoBuf(len(interleaved))
		for i, s := range interleaved {
			out[i] = float32(s) / 32768.0
		}
		return out
	}

	count := len(interleaved) / channels
	out := n.ensureMonoBuf(count)
	for i := 0; i < count; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(interleaved[i*channels+c]) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ensureMonoBuf returns n.monoBuf resized to exactly size, reusing its
// existing backing array when large enough.
func (n *Normalizer) ensureMonoBuf(size int) []float32 {
	if cap(n.monoBuf) < size {
		n.monoBuf = make([]float32, size)
	} else {
		n.monoBuf = n.monoBuf[:size]
	}
	return n.monoBuf
}

// softClip keeps samples within [-1, 1] using a tanh-like soft knee rather
// than hard truncation, avoiding the crackle hard clipping introduces.
func softClip(v float32) float32 {
	if v > 1 || v < -1 {
		return float32(math.Tanh(float64(v)))
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
