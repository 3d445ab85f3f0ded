package domain

import (
	"sync"
	"time"
)

// UtteranceState tracks the one-way lifecycle of an Utterance. Transitions
// are Open->Closing->Closed or Open/Closing->Cancelled; once Closed or
// Cancelled, a state never changes again.
type UtteranceState int

const (
	UtteranceOpen UtteranceState = iota
	UtteranceClosing
	UtteranceClosed
	UtteranceCancelled
)

// String returns a human-readable utterance state.
func (s UtteranceState) String() string {
	switch s {
	case UtteranceOpen:
		return "open"
	case UtteranceClosing:
		return "closing"
	case UtteranceClosed:
		return "closed"
	case UtteranceCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Utterance is a contiguous speech region owned by the segmenter until it
// closes, at which point its PCM is handed to the inference worker and the
// record itself is handed to the post-processor/dispatcher for finalization.
//
// Invariants: samples are appended only while Open; Id never changes once
// assigned; State only ever advances Open->Closing->Closed or ...->Cancelled,
// never backward; a Cancelled utterance never produces a final segment.
type Utterance struct {
	mu sync.Mutex

	Id          string
	SpeechPCM   []float32
	OpenedAt    time.Time
	ClosedAt    time.Time
	State       UtteranceState
	PartialText string
	FinalText   string
}

// NewUtterance creates a freshly Open utterance with the given stable id.
func NewUtterance(id string, openedAt time.Time) *Utterance {
	return &Utterance{
		Id:       id,
		OpenedAt: openedAt,
		State:    UtteranceOpen,
	}
}

// Append adds samples to the speech buffer. No-op once the utterance has
// left the Open state — the segmenter must not call this after Closing.
func (u *Utterance) Append(samples []float32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.State != UtteranceOpen {
		return
	}
	u.SpeechPCM = append(u.SpeechPCM, samples...)
}

// Snapshot returns a copy of the current PCM buffer, safe to hand to the
// inference worker without racing further Append calls.
func (u *Utterance) Snapshot() []float32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]float32, len(u.SpeechPCM))
	copy(out, u.SpeechPCM)
	return out
}

// TransitionClosing moves Open->Closing. Returns false if the utterance was
// not Open (a double-close attempt, which the segmenter must treat as a bug
// rather than silently accept).
func (u *Utterance) TransitionClosing(at time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.State != UtteranceOpen {
		return false
	}
	u.State = UtteranceClosing
	u.ClosedAt = at
	return true
}

// TransitionClosed moves Closing->Closed, recording the final text.
func (u *Utterance) TransitionClosed(finalText string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.State != UtteranceClosing {
		return false
	}
	u.State = UtteranceClosed
	u.FinalText = finalText
	return true
}

// TransitionCancelled moves Open or Closing -> Cancelled. A cancelled
// utterance never emits a final event.
func (u *Utterance) TransitionCancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.State != UtteranceOpen && u.State != UtteranceClosing {
		return false
	}
	u.State = UtteranceCancelled
	return true
}

// CurrentState returns the utterance's state under the lock.
func (u *Utterance) CurrentState() UtteranceState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.State
}

// SetPartialText records the most recent partial transcript for this
// utterance, superseding any prior partial.
func (u *Utterance) SetPartialText(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.PartialText = text
}
