package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// fakeSubscriber records every event it's notified of.
type fakeSubscriber struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
}

func (f *fakeSubscriber) Notify(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSubscriber) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSubscriber) snapshot() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events))
	copy(out, f.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestDispatcher() *Dispatcher {
	return New(logger.New(logger.LevelOff, nil), nil)
}

func TestDispatchTranscriptAssignsMonotonicSeq(t *testing.T) {
	d := newTestDispatcher()
	sub := &fakeSubscriber{}
	unregister := d.Register(sub)
	defer unregister()

	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u1", Text: "hello", Kind: domain.SegmentFinal}})
	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u2", Text: "world", Kind: domain.SegmentFinal}})

	waitFor(t, func() bool { return len(sub.snapshot()) == 2 })
	events := sub.snapshot()
	if events[0].Transcript.Seq >= events[1].Transcript.Seq {
		t.Fatalf("seq not monotonic: %d then %d", events[0].Transcript.Seq, events[1].Transcript.Seq)
	}
}

func TestStrayPartialAfterFinalIsDropped(t *testing.T) {
	d := newTestDispatcher()
	sub := &fakeSubscriber{}
	unregister := d.Register(sub)
	defer unregister()

	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u1", Text: "final text", Kind: domain.SegmentFinal}})
	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })

	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u1", Text: "stale partial", Kind: domain.SegmentPartial}})

	time.Sleep(20 * time.Millisecond)
	if len(sub.snapshot()) != 1 {
		t.Fatalf("expected stray partial to be dropped, got %d events", len(sub.snapshot()))
	}
}

func TestDispatchTailRewriteReusesSupersededIDs(t *testing.T) {
	d := newTestDispatcher()
	sub := &fakeSubscriber{}
	unregister := d.Register(sub)
	defer unregister()

	d.DispatchTailRewrite([]string{"u1", "u2"}, "combined text", 0.8)

	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
	segs := sub.snapshot()[0].Transcript.Segments
	if len(segs) != 2 || segs[0].Id != "u1" || segs[1].Id != "u2" {
		t.Fatalf("segments = %+v, want ids u1,u2", segs)
	}
	for _, s := range segs {
		if s.Text != "combined text" {
			t.Errorf("segment %s text = %q", s.Id, s.Text)
		}
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	d := newTestDispatcher()
	sub := &fakeSubscriber{}
	unregister := d.Register(sub)

	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u1", Text: "one", Kind: domain.SegmentFinal}})
	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })

	unregister()
	d.DispatchTranscript([]domain.TranscriptSegment{{Id: "u2", Text: "two", Kind: domain.SegmentFinal}})
	time.Sleep(20 * time.Millisecond)

	if len(sub.snapshot()) != 1 {
		t.Fatalf("expected no further delivery after unregister, got %d events", len(sub.snapshot()))
	}
}

func TestQueueDropsOldestPartialUnderPressure(t *testing.T) {
	q := newSubscriberQueue()
	for i := 0; i < subscriberQueueCapacity+5; i++ {
		q.enqueue(domain.Event{Kind: domain.EventActivity, Activity: domain.AudioActivityEvent{Seq: uint64(i)}}, true)
	}
	got := q.dequeueAll()
	if len(got) != subscriberQueueCapacity {
		t.Fatalf("queue length = %d, want capacity %d", len(got), subscriberQueueCapacity)
	}
	// Oldest entries should have been dropped, so the retained window
	// should end at the most recent sequence number.
	last := got[len(got)-1].Activity.Seq
	if last != uint64(subscriberQueueCapacity+4) {
		t.Errorf("last retained seq = %d, want %d", last, subscriberQueueCapacity+4)
	}
}

func TestDispatchStatusIsNeverDropped(t *testing.T) {
	d := newTestDispatcher()
	sub := &fakeSubscriber{}
	unregister := d.Register(sub)
	defer unregister()

	d.DispatchStatus(domain.EngineStatus{Status: domain.StatusListening})
	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
	if sub.snapshot()[0].Kind != domain.EventStatus {
		t.Error("expected a status event")
	}
}
