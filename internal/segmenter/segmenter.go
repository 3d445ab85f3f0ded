// Package segmenter implements the Utterance Segmenter stage (C5): the
// state machine that opens, extends, and closes utterances based on VAD
// decisions, silence hangover, forced flush, and the max-utterance cap.
package segmenter

import (
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/dictum/internal/domain"
)

// ActionKind tags the action the pipeline thread must take in response to
// one ProcessWindow/ForceStop call.
type ActionKind int

const (
	// ActionNone: nothing to do this window.
	ActionNone ActionKind = iota
	// ActionOpened: a new utterance was opened; notify status listening.
	ActionOpened
	// ActionSchedulePartial: schedule a partial inference job on the
	// utterance's current buffer without closing it.
	ActionSchedulePartial
	// ActionScheduleFinal: the utterance transitioned to Closing; schedule
	// a final inference job on its complete buffer.
	ActionScheduleFinal
	// ActionCancelled: the utterance was cancelled with no final — either
	// a force-stop on an empty buffer, or a fatal error upstream.
	ActionCancelled
)

// Action is what ProcessWindow/ForceStop tells the caller to do.
type Action struct {
	Kind      ActionKind
	Utterance *domain.Utterance
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithPartialIntervalMs overrides how often an Open utterance schedules a
// partial inference (default 600 ms).
func WithPartialIntervalMs(ms int) Option {
	return func(s *Segmenter) { s.partialIntervalMs = ms }
}

// WithSilenceHangoverMs overrides the silence duration tolerated before an
// Open utterance closes (default 700 ms; long-form profiles use up to
// 1500 ms).
func WithSilenceHangoverMs(ms int) Option {
	return func(s *Segmenter) { s.silenceHangoverMs = ms }
}

// WithMaxUtteranceMs overrides the hard cap on utterance duration (default
// 30000 ms).
func WithMaxUtteranceMs(ms int) Option {
	return func(s *Segmenter) { s.maxUtteranceMs = ms }
}

// Segmenter holds at most one Open/Closing utterance at a time — the
// guarantee §4.5 requires.
type Segmenter struct {
	partialIntervalMs int
	silenceHangoverMs int
	maxUtteranceMs    int

	current          *domain.Utterance
	silenceSince     time.Time
	inSilence        bool
	lastPartialAt    time.Time
	windowsPerSecond float64
}

// New creates a Segmenter with defaults, overridable via Option. Apply
// RuntimeSettings-derived options (e.g. from a PerformanceProfile preset)
// at construction or via Reconfigure.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		partialIntervalMs: 600,
		silenceHangoverMs: 700,
		maxUtteranceMs:    30000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconfigure applies new timing parameters, e.g. after a runtime settings
// update that changes the performance profile. Safe to call with no
// utterance open.
func (s *Segmenter) Reconfigure(opts ...Option) {
	for _, opt := range opts {
		opt(s)
	}
}

// CurrentUtterance returns the in-flight utterance, or nil if Idle.
func (s *Segmenter) CurrentUtterance() *domain.Utterance {
	return s.current
}

// ProcessWindow advances the state machine for one VAD window's decision
// and its underlying samples, returning the action the pipeline thread
// must take.
func (s *Segmenter) ProcessWindow(decision domain.VadDecision, samples []float32, now time.Time) Action {
	if s.current == nil {
		if decision.IsSpeech {
			return s.open(samples, now)
		}
		return Action{Kind: ActionNone}
	}

	switch s.current.CurrentState() {
	case domain.UtteranceOpen:
		return s.advanceOpen(decision, samples, now)
	default:
		// Closing/Closed/Cancelled: every transition out of Open also
		// clears current, so this branch is not reached in normal use.
		return Action{Kind: ActionNone}
	}
}

func (s *Segmenter) open(samples []float32, now time.Time) Action {
	u := domain.NewUtterance(uuid.NewString(), now)
	u.Append(samples)
	s.current = u
	s.inSilence = false
	s.lastPartialAt = now
	return Action{Kind: ActionOpened, Utterance: u}
}

func (s *Segmenter) advanceOpen(decision domain.VadDecision, samples []float32, now time.Time) Action {
	u := s.current
	u.Append(samples)

	if decision.IsSpeech {
		s.inSilence = false

		if ms := now.Sub(u.OpenedAt).Milliseconds(); ms >= int64(s.maxUtteranceMs) {
			return s.closeForFinal(now)
		}

		if now.Sub(s.lastPartialAt).Milliseconds() >= int64(s.partialIntervalMs) {
			s.lastPartialAt = now
			return Action{Kind: ActionSchedulePartial, Utterance: u}
		}
		return Action{Kind: ActionNone}
	}

	// Non-speech window: start or continue the silence hangover.
	if !s.inSilence {
		s.inSilence = true
		s.silenceSince = now
		return Action{Kind: ActionNone}
	}
	if now.Sub(s.silenceSince).Milliseconds() >= int64(s.silenceHangoverMs) {
		return s.closeForFinal(now)
	}
	return Action{Kind: ActionNone}
}

func (s *Segmenter) closeForFinal(now time.Time) Action {
	u := s.current
	u.TransitionClosing(now)
	s.current = nil
	s.inSilence = false
	return Action{Kind: ActionScheduleFinal, Utterance: u}
}

// ForceStop implements the user-initiated stop path (§4.5 "force stop"):
// flush any in-progress utterance. If the buffer is non-empty, it closes
// with a final inference job; if empty, it is cancelled with no final —
// never a silent drop, per §8.
func (s *Segmenter) ForceStop(now time.Time) Action {
	if s.current == nil {
		return Action{Kind: ActionNone}
	}
	u := s.current
	if len(u.SpeechPCM) == 0 {
		s.current = nil
		u.TransitionCancelled()
		return Action{Kind: ActionCancelled, Utterance: u}
	}
	return s.closeForFinal(now)
}

// Completed marks a Closing utterance Closed with its final text. The
// segmenter already released the utterance when it closed, so a new
// utterance can open on the next speech window whether or not this has
// been called.
func (s *Segmenter) Completed(u *domain.Utterance, finalText string) {
	u.TransitionClosed(finalText)
}

// Cancel fails the current utterance with no final event, e.g. on a fatal
// upstream error (§4.5 "any state + fatal error").
func (s *Segmenter) Cancel() Action {
	if s.current == nil {
		return Action{Kind: ActionNone}
	}
	u := s.current
	s.current = nil
	u.TransitionCancelled()
	return Action{Kind: ActionCancelled, Utterance: u}
}
