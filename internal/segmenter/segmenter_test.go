package segmenter

import (
	"testing"
	"time"

	"github.com/hammamikhairi/dictum/internal/domain"
)

func speechWindow(seq uint64) domain.VadDecision {
	return domain.VadDecision{WindowSeq: seq, IsSpeech: true, Score: 0.9}
}

func silenceWindow(seq uint64) domain.VadDecision {
	return domain.VadDecision{WindowSeq: seq, IsSpeech: false, Score: 0.1}
}

func TestOpensOnFirstSpeechWindow(t *testing.T) {
	s := New()
	now := time.Now()
	action := s.ProcessWindow(speechWindow(0), make([]float32, 480), now)
	if action.Kind != ActionOpened {
		t.Fatalf("Kind = %v, want ActionOpened", action.Kind)
	}
	if s.CurrentUtterance() == nil {
		t.Fatal("expected a current utterance after opening")
	}
}

func TestAtMostOneOpenUtterance(t *testing.T) {
	s := New()
	now := time.Now()
	s.ProcessWindow(speechWindow(0), make([]float32, 480), now)
	first := s.CurrentUtterance()

	action := s.ProcessWindow(speechWindow(1), make([]float32, 480), now.Add(30*time.Millisecond))
	if action.Kind == ActionOpened {
		t.Fatal("should not open a second utterance while one is already open")
	}
	if s.CurrentUtterance() != first {
		t.Fatal("current utterance identity changed unexpectedly")
	}
}

func TestSilenceHangoverClosesAndSchedulesFinal(t *testing.T) {
	s := New(WithSilenceHangoverMs(100))
	now := time.Now()
	s.ProcessWindow(speechWindow(0), make([]float32, 480), now)

	action := s.ProcessWindow(silenceWindow(1), make([]float32, 480), now.Add(10*time.Millisecond))
	if action.Kind != ActionNone {
		t.Fatalf("first silence window: Kind = %v, want ActionNone (hangover not elapsed)", action.Kind)
	}

	action = s.ProcessWindow(silenceWindow(2), make([]float32, 480), now.Add(150*time.Millisecond))
	if action.Kind != ActionScheduleFinal {
		t.Fatalf("Kind = %v, want ActionScheduleFinal after hangover elapses", action.Kind)
	}
	if s.CurrentUtterance() != nil {
		t.Fatal("expected no current utterance after close")
	}
	if action.Utterance.CurrentState() != domain.UtteranceClosing {
		t.Fatalf("utterance state = %v, want Closing", action.Utterance.CurrentState())
	}
}

func TestMaxUtteranceForcesClose(t *testing.T) {
	s := New(WithMaxUtteranceMs(100))
	now := time.Now()
	s.ProcessWindow(speechWindow(0), make([]float32, 480), now)

	action := s.ProcessWindow(speechWindow(1), make([]float32, 480), now.Add(200*time.Millisecond))
	if action.Kind != ActionScheduleFinal {
		t.Fatalf("Kind = %v, want ActionScheduleFinal at max utterance cap", action.Kind)
	}
}

func TestForceStopOnEmptyBufferCancels(t *testing.T) {
	s := New()
	now := time.Now()
	// Open with an empty samples slice so SpeechPCM stays empty.
	s.ProcessWindow(speechWindow(0), nil, now)

	action := s.ForceStop(now)
	if action.Kind != ActionCancelled {
		t.Fatalf("Kind = %v, want ActionCancelled for empty-buffer force stop", action.Kind)
	}
	if action.Utterance.CurrentState() != domain.UtteranceCancelled {
		t.Fatalf("state = %v, want Cancelled", action.Utterance.CurrentState())
	}
}

func TestForceStopOnNonEmptyBufferFinalizes(t *testing.T) {
	s := New()
	now := time.Now()
	s.ProcessWindow(speechWindow(0), make([]float32, 480), now)

	action := s.ForceStop(now.Add(10 * time.Millisecond))
	if action.Kind != ActionScheduleFinal {
		t.Fatalf("Kind = %v, want ActionScheduleFinal for non-empty force stop", action.Kind)
	}
}

func TestPartialScheduledAtInterval(t *testing.T) {
	s := New(WithPartialIntervalMs(50))
	now := time.Now()
	s.ProcessWindow(speechWindow(0), make([]float32, 480), now)

	action := s.ProcessWindow(speechWindow(1), make([]float32, 480), now.Add(60*time.Millisecond))
	if action.Kind != ActionSchedulePartial {
		t.Fatalf("Kind = %v, want ActionSchedulePartial after interval elapses", action.Kind)
	}
}
