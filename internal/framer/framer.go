package framer

import "github.com/hammamikhairi/dictum/internal/domain"

// Framer drains a RingBuffer into fixed-size, non-overlapping VAD windows
// of domain.VadWindowSamples (30 ms at 16 kHz).
type Framer struct {
	ring    *RingBuffer
	pending []float32
	seq     uint64
}

// NewFramer wraps ring, producing exactly domain.VadWindowSamples windows.
func NewFramer(ring *RingBuffer) *Framer {
	return &Framer{ring: ring}
}

// Drain reads everything currently available and returns as many complete
// VAD windows as it can assemble; any partial remainder is kept for the
// next call so windows are never emitted short.
func (f *Framer) Drain() []Window {
	avail := f.ring.Available()
	if avail == 0 && len(f.pending) < domain.VadWindowSamples {
		return nil
	}

	buf := make([]float32, avail)
	n := f.ring.Read(buf)
	f.pending = append(f.pending, buf[:n]...)

	var windows []Window
	for len(f.pending) >= domain.VadWindowSamples {
		w := Window{
			Samples: append([]float32(nil), f.pending[:domain.VadWindowSamples]...),
			Seq:     f.seq,
		}
		windows = append(windows, w)
		f.seq++
		f.pending = f.pending[domain.VadWindowSamples:]
	}
	return windows
}

// Window is one fixed-size, non-overlapping VAD analysis window.
type Window struct {
	Samples []float32
	Seq     uint64
}
