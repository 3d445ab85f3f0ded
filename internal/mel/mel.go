// Package mel implements the Mel Front End stage (C6): Whisper's 80-bin
// log-mel spectrogram.
package mel

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hammamikhairi/dictum/internal/domain"
)

const (
	// WindowSamples is the 25 ms analysis window at 16 kHz.
	WindowSamples = 400
	// HopSamples is the 10 ms hop at 16 kHz.
	HopSamples = 160
	// NumMelBins is Whisper's canonical mel bin count.
	NumMelBins = 80
	// TargetFrames is Whisper's canonical 30 s / 3000-frame input length.
	TargetFrames = 3000

	logFloor = -23.025850929940457 // -log(1e10)
)

// Frontend computes log-mel spectrograms from 16 kHz mono PCM.
type Frontend struct {
	fft        *fourier.FFT
	window     []float64
	filterbank [][]float64
}

// New builds a Frontend configured for domain.SampleRate.
func New() *Frontend {
	return &Frontend{
		fft:        fourier.NewFFT(WindowSamples),
		window:     hannWindow(WindowSamples),
		filterbank: buildMelFilterbank(domain.SampleRate, WindowSamples, NumMelBins),
	}
}

// hannWindow returns a periodic Hann window, matching librosa/Whisper's
// convention (not the symmetric variant).
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Compute returns the normalized log-mel spectrogram for pcm (mono f32 at
// 16 kHz), padded or truncated to TargetFrames frames. The shape is
// [NumMelBins][TargetFrames].
func (f *Frontend) Compute(pcm []float32) [][]float32 {
	frames := f.frameCount(len(pcm))
	logMel := make([][]float64, NumMelBins)
	for m := range logMel {
		logMel[m] = make([]float64, frames)
	}

	windowed := make([]float64, WindowSamples)
	var globalMax float64 = math.Inf(-1)

	for t := 0; t < frames; t++ {
		start := t * HopSamples
		for i := 0; i < WindowSamples; i++ {
			idx := start + i
			var s float64
			if idx < len(pcm) {
				s = float64(pcm[idx])
			}
			windowed[i] = s * f.window[i]
		}

		coeffs := f.fft.Coefficients(nil, windowed)
		for m := 0; m < NumMelBins; m++ {
			var power float64
			row := f.filterbank[m]
			for b, w := range row {
				if w == 0 {
					continue
				}
				mag := cmplxAbs(coeffs[b])
				power += w * mag * mag
			}
			lm := math.Log(math.Max(power, 1e-30))
			if lm < logFloor {
				lm = logFloor
			}
			logMel[m][t] = lm
			if lm > globalMax {
				globalMax = lm
			}
		}
	}

	return f.normalizeAndResize(logMel, globalMax, frames)
}

func (f *Frontend) frameCount(nSamples int) int {
	if nSamples < WindowSamples {
		return 1
	}
	n := (nSamples-WindowSamples)/HopSamples + 1
	if n > TargetFrames {
		return TargetFrames
	}
	return n
}

// normalizeAndResize applies (log_mel - max(log_mel) + 4) / 4 and pads or
// truncates to exactly TargetFrames — deviation here silently destroys
// decode quality, per §4.6.
func (f *Frontend) normalizeAndResize(logMel [][]float64, globalMax float64, frames int) [][]float32 {
	out := make([][]float32, NumMelBins)
	for m := 0; m < NumMelBins; m++ {
		out[m] = make([]float32, TargetFrames)
		for t := 0; t < TargetFrames; t++ {
			if t < frames {
				v := (logMel[m][t] - globalMax + 4) / 4
				out[m][t] = float32(v)
			} else {
				// Padding: floor-normalized silence, not zero, so the
				// decoder sees a consistent "no signal" value rather than
				// an artificially loud zero-crossing at the boundary.
				v := (logFloor - globalMax + 4) / 4
				out[m][t] = float32(v)
			}
		}
	}
	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
