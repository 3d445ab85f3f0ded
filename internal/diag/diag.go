// Package diag holds the shared pipeline diagnostics counters and stage
// timing histograms described in spec's §4.9: every stage from capture
// through injection increments the same Counters instance so the engine can
// expose one coherent snapshot to the control surface.
package diag

import (
	"sync"
	"sync/atomic"
)

// Stage names for the four histogram-tracked pipeline phases.
const (
	StageTransform = "transform"
	StageInject    = "inject"
	StagePersist   = "persist"
	StageFinalize  = "finalize"
)

// Counters is the monotonic event-count side of the diagnostics snapshot.
// Every field is safe for concurrent increment from any stage's goroutine.
type Counters struct {
	FramesIn           atomicCounter
	FramesResampled    atomicCounter
	VadWindows         atomicCounter
	VadSpeech          atomicCounter
	InferenceCalls     atomicCounter
	InferenceErrors    atomicCounter
	SegmentsEmitted    atomicCounter
	FallbackStubTyped  atomicCounter
	InjectCalls        atomicCounter
	InjectSuccess      atomicCounter
	FinalSegmentsSeen  atomicCounter
}

// Snapshot is a point-in-time, race-free copy of Counters' values.
type Snapshot struct {
	FramesIn          int64
	FramesResampled   int64
	VadWindows        int64
	VadSpeech         int64
	InferenceCalls    int64
	InferenceErrors   int64
	SegmentsEmitted   int64
	FallbackStubTyped int64
	InjectCalls       int64
	InjectSuccess     int64
	FinalSegmentsSeen int64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FramesIn:          c.FramesIn.Load(),
		FramesResampled:   c.FramesResampled.Load(),
		VadWindows:        c.VadWindows.Load(),
		VadSpeech:         c.VadSpeech.Load(),
		InferenceCalls:    c.InferenceCalls.Load(),
		InferenceErrors:   c.InferenceErrors.Load(),
		SegmentsEmitted:   c.SegmentsEmitted.Load(),
		FallbackStubTyped: c.FallbackStubTyped.Load(),
		InjectCalls:       c.InjectCalls.Load(),
		InjectSuccess:     c.InjectSuccess.Load(),
		FinalSegmentsSeen: c.FinalSegmentsSeen.Load(),
	}
}

// Registry bundles the shared Counters with a named set of stage timing
// Histograms. One Registry is constructed at engine startup and threaded
// through every component that needs to record diagnostics.
type Registry struct {
	Counters Counters

	mu         sync.Mutex
	histograms map[string]*Histogram
}

// NewRegistry returns a Registry with the four standard pipeline-stage
// histograms pre-created.
func NewRegistry() *Registry {
	r := &Registry{histograms: make(map[string]*Histogram, 4)}
	for _, stage := range []string{StageTransform, StageInject, StagePersist, StageFinalize} {
		r.histograms[stage] = newHistogram()
	}
	return r
}

// Observe records one latency sample (in milliseconds) for the named stage.
// Unknown stage names are created lazily so callers never need a pre-flight
// registration step.
func (r *Registry) Observe(stage string, ms float64) {
	r.mu.Lock()
	h, ok := r.histograms[stage]
	if !ok {
		h = newHistogram()
		r.histograms[stage] = h
	}
	r.mu.Unlock()
	h.observe(ms)
}

// HistogramSnapshot returns the named stage's current summary statistics.
// Returns the zero value if the stage has never been observed.
func (r *Registry) HistogramSnapshot(stage string) HistogramStats {
	r.mu.Lock()
	h, ok := r.histograms[stage]
	r.mu.Unlock()
	if !ok {
		return HistogramStats{}
	}
	return h.snapshot()
}

// atomicCounter is a thin wrapper so Counters' field list above reads as
// plain names rather than a wall of atomic.Int64.
type atomicCounter struct {
	v atomic.Int64
}

func (c *atomicCounter) Inc()        { c.v.Add(1) }
func (c *atomicCounter) Load() int64 { return c.v.Load() }
