package mel

import (
	"math"
	"testing"
)

func TestComputeShapeIsCanonical(t *testing.T) {
	f := New()
	pcm := make([]float32, 16000) // 1 second of silence
	out := f.Compute(pcm)

	if len(out) != NumMelBins {
		t.Fatalf("mel bins = %d, want %d", len(out), NumMelBins)
	}
	if len(out[0]) != TargetFrames {
		t.Fatalf("frames = %d, want %d", len(out[0]), TargetFrames)
	}
}

func TestComputeNormalizedRangeIsBounded(t *testing.T) {
	f := New()
	pcm := make([]float32, 16000)
	for i := range pcm {
		pcm[i] = float32(0.3 * math.Sin(float64(i)*0.05))
	}
	out := f.Compute(pcm)

	// Normalization sets the max bin to (max-max+4)/4 = 1.
	var maxVal float32 = -1e9
	for _, row := range out {
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if math.Abs(float64(maxVal-1.0)) > 1e-3 {
		t.Errorf("max normalized value = %v, want ~1.0", maxVal)
	}
}

func TestHannWindowEndpointsNearZero(t *testing.T) {
	w := hannWindow(WindowSamples)
	if w[0] > 1e-6 {
		t.Errorf("hann window w[0] = %v, want ~0", w[0])
	}
}

func TestFilterbankRowsNonNegative(t *testing.T) {
	fb := buildMelFilterbank(16000, WindowSamples, NumMelBins)
	if len(fb) != NumMelBins {
		t.Fatalf("filterbank rows = %d, want %d", len(fb), NumMelBins)
	}
	for m, row := range fb {
		for b, w := range row {
			if w < 0 {
				t.Errorf("filter %d bin %d = %v, want >= 0", m, b, w)
			}
		}
	}
}
