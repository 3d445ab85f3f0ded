package resample

import (
	"math"
	"testing"
)

func TestDownmixStereoAverages(t *testing.T) {
	in := []int16{100, 200, 300, 400}
	n := New(16000, 2)
	out := n.downmix(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	want0 := float32(150) / 32768.0
	if math.Abs(float64(out[0]-want0)) > 1e-6 {
		t.Errorf("out[0] = %v, want %v", out[0], want0)
	}
}

func TestSoftClipPassesThroughInRange(t *testing.T) {
	for _, v := range []float32{-0.9, 0, 0.5, 0.99} {
		if got := softClip(v); got != v {
			t.Errorf("softClip(%v) = %v, want unchanged", v, got)
		}
	}
}

func TestSoftClipBoundsOutOfRange(t *testing.T) {
	got := softClip(5.0)
	if got < -1 || got > 1 {
		t.Errorf("softClip(5.0) = %v, want within [-1,1]", got)
	}
}

func TestGainClamped(t *testing.T) {
	n := New(16000, 1, WithGainBoost(100))
	if n.gain != 8.0 {
		t.Errorf("gain = %v, want clamped to 8.0", n.gain)
	}
	n.SetGain(0.01)
	if n.gain != 0.5 {
		t.Errorf("gain = %v, want clamped to 0.5", n.gain)
	}
}

func TestProcessAt16kHzIsIdentityRate(t *testing.T) {
	n := New(domain16kHz, 1)
	in := make([]int16, 480)
	for i := range in {
		in[i] = int16(1000)
	}
	out, rms, peak := n.Process(in)
	if len(out) != len(in) {
		t.Fatalf("no resampling expected at matching rate, got len %d want %d", len(out), len(in))
	}
	if rms <= 0 || peak <= 0 {
		t.Errorf("expected nonzero rms/peak, got rms=%v peak=%v", rms, peak)
	}
}

const domain16kHz = 16000
