package vad

import "github.com/hammamikhairi/dictum/internal/domain"

// windowDurationMs is the fixed VAD window duration (30 ms at 16 kHz).
const windowDurationMs = domain.VadWindowSamples * 1000 / domain.SampleRate

// Option configures a Detector.
type Option func(*Detector)

// WithEnterThreshold overrides the score at or above which a window is
// classified speech (default 0.5).
func WithEnterThreshold(t float32) Option {
	return func(d *Detector) { d.enterThreshold = t }
}

// WithExitThreshold overrides the score below which, sustained for
// ExitHangMs, speech state is released (default 0.35).
func WithExitThreshold(t float32) Option {
	return func(d *Detector) { d.exitThreshold = t }
}

// WithExitHangMs overrides the silence duration required to exit speech
// state once triggered (default 200 ms).
func WithExitHangMs(ms int) Option {
	return func(d *Detector) { d.exitHangMs = ms }
}

// Detector wraps a Session with the enter/exit hysteresis state machine
// described in §4.4: once in speech state, only a score below
// exitThreshold sustained for exitHangMs flips back to non-speech.
type Detector struct {
	sess *Session

	enterThreshold float32
	exitThreshold  float32
	exitHangMs     int

	triggered      bool
	belowExitSince int // consecutive windows below exitThreshold while triggered
}

// NewDetector wraps sess with default thresholds, overridable via Option.
func NewDetector(sess *Session, opts ...Option) *Detector {
	d := &Detector{
		sess:           sess,
		enterThreshold: 0.5,
		exitThreshold:  0.35,
		exitHangMs:     200,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process scores one window and applies hysteresis, returning the decision
// the segmenter consumes.
func (d *Detector) Process(windowSeq uint64, window []float32) (domain.VadDecision, error) {
	score, err := d.sess.Score(window)
	if err != nil {
		return domain.VadDecision{}, err
	}

	isSpeech := d.advance(score)
	return domain.VadDecision{
		WindowSeq: windowSeq,
		IsSpeech:  isSpeech,
		Score:     score,
	}, nil
}

// advance runs the hysteresis state machine for one window's score.
func (d *Detector) advance(score float32) bool {
	if !d.triggered {
		if score >= d.enterThreshold {
			d.triggered = true
			d.belowExitSince = 0
		}
		return d.triggered
	}

	// Already triggered: stay speech unless score has been below
	// exitThreshold for long enough to satisfy the hangover.
	if score < d.exitThreshold {
		d.belowExitSince++
		if d.belowExitSince*windowDurationMs >= d.exitHangMs {
			d.triggered = false
			d.belowExitSince = 0
			return false
		}
		return true
	}

	d.belowExitSince = 0
	return true
}

// Reset clears hysteresis state, e.g. after a forced utterance flush.
func (d *Detector) Reset() {
	d.triggered = false
	d.belowExitSince = 0
}

// InputLayout reports the probed I/O names, logged at startup per §4.4
// ("must report its input-name layout and sample-rate assumption at
// startup").
func (d *Detector) InputLayout() (inputName, outputName string, sampleRate int) {
	return d.sess.inputName, d.sess.outputName, domain.SampleRate
}
