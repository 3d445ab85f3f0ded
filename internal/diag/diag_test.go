package diag

import "testing"

func TestCountersSnapshotReflectsIncrements(t *testing.T) {
	var c Counters
	c.FramesIn.Inc()
	c.FramesIn.Inc()
	c.VadSpeech.Inc()

	snap := c.Snapshot()
	if snap.FramesIn != 2 {
		t.Errorf("FramesIn = %d, want 2", snap.FramesIn)
	}
	if snap.VadSpeech != 1 {
		t.Errorf("VadSpeech = %d, want 1", snap.VadSpeech)
	}
}

func TestHistogramSnapshotEmpty(t *testing.T) {
	r := NewRegistry()
	stats := r.HistogramSnapshot(StageTransform)
	if stats.Count != 0 {
		t.Errorf("Count = %d, want 0 for unobserved stage", stats.Count)
	}
}

func TestHistogramSnapshotComputesPercentiles(t *testing.T) {
	r := NewRegistry()
	for _, ms := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		r.Observe(StageInject, ms)
	}
	stats := r.HistogramSnapshot(StageInject)
	if stats.Count != 10 {
		t.Fatalf("Count = %d, want 10", stats.Count)
	}
	if stats.Mean != 55 {
		t.Errorf("Mean = %v, want 55", stats.Mean)
	}
	if stats.Max != 100 {
		t.Errorf("Max = %v, want 100", stats.Max)
	}
	if stats.P50 != 50 {
		t.Errorf("P50 = %v, want 50", stats.P50)
	}
	if stats.P95 != 90 {
		t.Errorf("P95 = %v, want 90", stats.P95)
	}
}

func TestHistogramObserveOnUnknownStageCreatesIt(t *testing.T) {
	r := NewRegistry()
	r.Observe("custom-stage", 5)
	stats := r.HistogramSnapshot("custom-stage")
	if stats.Count != 1 {
		t.Errorf("Count = %d, want 1 after observing a new stage", stats.Count)
	}
}
