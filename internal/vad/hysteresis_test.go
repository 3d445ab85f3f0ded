package vad

import "testing"

// newHysteresisOnly builds a Detector with no ONNX session so the
// hysteresis logic can be exercised directly, mirroring how the teacher's tests avoid real I/O dependencies.
func newHysteresisOnly() *Detector {
	return &Detector{
		enterThreshold: 0.5,
		exitThreshold:  0.35,
		exitHangMs:     200,
	}
}

func TestHysteresisEntersOnThreshold(t *testing.T) {
	d := newHysteresisOnly()
	if d.advance(0.4) {
		t.Fatal("should not be speech below enter threshold")
	}
	if !d.advance(0.6) {
		t.Fatal("should enter speech at/above enter threshold")
	}
}

func TestHysteresisHoldsDuringDip(t *testing.T) {
	d := newHysteresisOnly()
	d.advance(0.9) // enter speech

	// windowDurationMs = 30ms; 200ms hang needs 7 windows below exit.
	for i := 0; i < 6; i++ {
		if !d.advance(0.1) {
			t.Fatalf("window %d: dropped speech before hangover elapsed", i)
		}
	}
}

func TestHysteresisExitsAfterHangover(t *testing.T) {
	d := newHysteresisOnly()
	d.advance(0.9)

	windowsNeeded := 200/windowDurationMs + 1
	var last bool
	for i := 0; i < windowsNeeded; i++ {
		last = d.advance(0.1)
	}
	if last {
		t.Fatal("expected speech to release after exit hangover elapsed")
	}
}

func TestHysteresisRecoversBeforeHangoverElapses(t *testing.T) {
	d := newHysteresisOnly()
	d.advance(0.9)
	d.advance(0.1)
	d.advance(0.1)
	// Score recovers above exit threshold (but below enter) before hangover.
	if !d.advance(0.4) {
		t.Fatal("expected speech to remain held once score recovers above exit threshold")
	}
	if d.belowExitSince != 0 {
		t.Errorf("belowExitSince = %d, want reset to 0 on recovery", d.belowExitSince)
	}
}

func TestResetClearsState(t *testing.T) {
	d := newHysteresisOnly()
	d.advance(0.9)
	d.Reset()
	if d.triggered {
		t.Fatal("Reset should clear triggered state")
	}
}
