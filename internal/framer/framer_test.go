package framer

import (
	"testing"

	"github.com/hammamikhairi/dictum/internal/domain"
)

func TestRingBufferWriteRead(t *testing.T) {
	r := NewRingBuffer(16000, 1.0)
	in := make([]float32, 100)
	for i := range in {
		in[i] = float32(i)
	}
	r.Write(in)
	if got := r.Available(); got != 100 {
		t.Fatalf("Available() = %d, want 100", got)
	}
	out := make([]float32, 100)
	n := r.Read(out)
	if n != 100 {
		t.Fatalf("Read() = %d, want 100", n)
	}
	if out[0] != 0 || out[99] != 99 {
		t.Errorf("unexpected contents: out[0]=%v out[99]=%v", out[0], out[99])
	}
}

func TestRingBufferOverwriteAdvancesTail(t *testing.T) {
	r := NewRingBuffer(16000, 0.001) // tiny ring, rounds up to next pow2
	big := make([]float32, 10000)
	r.Write(big)
	if r.Available() > r.capacity {
		t.Errorf("Available() = %d exceeds capacity %d", r.Available(), r.capacity)
	}
}

func TestFramerProducesExactWindows(t *testing.T) {
	r := NewRingBuffer(16000, 1.0)
	f := NewFramer(r)

	r.Write(make([]float32, domain.VadWindowSamples*3))
	windows := f.Drain()
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	for i, w := range windows {
		if len(w.Samples) != domain.VadWindowSamples {
			t.Errorf("window %d len = %d, want %d", i, len(w.Samples), domain.VadWindowSamples)
		}
		if w.Seq != uint64(i) {
			t.Errorf("window %d seq = %d, want %d", i, w.Seq, i)
		}
	}
}

func TestFramerCarriesPartialRemainder(t *testing.T) {
	r := NewRingBuffer(16000, 1.0)
	f := NewFramer(r)

	r.Write(make([]float32, domain.VadWindowSamples+100))
	windows := f.Drain()
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	if len(f.pending) != 100 {
		t.Errorf("pending = %d, want 100", len(f.pending))
	}

	r.Write(make([]float32, domain.VadWindowSamples-100))
	windows = f.Drain()
	if len(windows) != 1 {
		t.Fatalf("got %d windows after topping up, want 1", len(windows))
	}
}
