// Package dispatcher implements the Transcript Dispatcher (C9): monotonic
// sequencing, partial-before-final-per-id ordering, and bounded fan-out to
// subscribers with backpressure handling.
package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// finalizedTTL bounds how long a finalized utterance id is remembered for
// stray-partial filtering and tail-rewrite lookups — well beyond the 6.5s
// tail-rewrite window spec allows, with margin for scheduling jitter.
const finalizedTTL = 30 * time.Second

// Dispatcher owns the subscriber fan-out, the monotonic transcript Seq
// counter, and the diagnostics registry every pipeline stage feeds.
type Dispatcher struct {
	*Registry

	log  *logger.Logger
	diag *diag.Registry

	seq atomic.Uint64

	mu        sync.Mutex
	finalized *lru.LRU[string, struct{}]
}

// New returns a Dispatcher. diagReg may be nil to use a fresh, private
// registry (useful in tests); normally the engine shares one registry
// across every pipeline stage.
func New(log *logger.Logger, diagReg *diag.Registry) *Dispatcher {
	if diagReg == nil {
		diagReg = diag.NewRegistry()
	}
	return &Dispatcher{
		Registry:  NewRegistry(log, diagReg),
		log:       log,
		diag:      diagReg,
		finalized: lru.NewLRU[string, struct{}](1024, nil, finalizedTTL),
	}
}

// Diagnostics returns the shared diagnostics registry so callers can read
// counters/histograms without threading a second reference through the
// engine.
func (d *Dispatcher) Diagnostics() *diag.Registry {
	return d.diag
}

// DispatchTranscript publishes one transcript event carrying segments,
// assigning the next monotonic Seq and dropping any partial that arrives
// for an id that has already been finalized (a stale race between the
// inference worker's queued-job replacement and a final already in
// flight). Final segments always pass through and mark their id finalized.
func (d *Dispatcher) DispatchTranscript(segments []domain.TranscriptSegment) {
	start := time.Now()
	filtered := make([]domain.TranscriptSegment, 0, len(segments))
	for _, seg := range segments {
		if seg.Kind == domain.SegmentPartial {
			d.mu.Lock()
			_, isFinalized := d.finalized.Get(seg.Id)
			d.mu.Unlock()
			if isFinalized {
				continue
			}
		} else {
			d.mu.Lock()
			d.finalized.Add(seg.Id, struct{}{})
			d.mu.Unlock()
			d.diag.Counters.FinalSegmentsSeen.Inc()
		}
		filtered = append(filtered, seg)
	}
	if len(filtered) == 0 {
		return
	}

	d.diag.Counters.SegmentsEmitted.Inc()
	ev := domain.Event{
		Kind: domain.EventTranscript,
		Transcript: domain.TranscriptEvent{
			Seq:      d.seq.Add(1),
			Segments: filtered,
		},
	}
	d.Registry.Publish(ev)
	d.diag.Observe(diag.StageFinalize, float64(time.Since(start))/float64(time.Millisecond))
}

// DispatchTailRewrite publishes a transcript event that re-tags previously
// emitted ids with new text, per §4.8 step 5 / §4.9's "same id, new text is
// an update" contract. The superseded ids are re-marked finalized (their
// TTL refreshes) since they remain terminal.
func (d *Dispatcher) DispatchTailRewrite(supersededIDs []string, newText string, confidence float32) {
	if len(supersededIDs) == 0 {
		return
	}
	segments := make([]domain.TranscriptSegment, 0, len(supersededIDs))
	for _, id := range supersededIDs {
		d.mu.Lock()
		d.finalized.Add(id, struct{}{})
		d.mu.Unlock()
		segments = append(segments, domain.TranscriptSegment{
			Id:         id,
			Text:       newText,
			Kind:       domain.SegmentFinal,
			Confidence: confidence,
		})
	}

	ev := domain.Event{
		Kind: domain.EventTranscript,
		Transcript: domain.TranscriptEvent{
			Seq:      d.seq.Add(1),
			Segments: segments,
		},
	}
	d.Registry.Publish(ev)
}

// DispatchStatus publishes an engine status transition. Status events are
// never droppable (see isDroppable) and never diagnostics-counted as
// segments.
func (d *Dispatcher) DispatchStatus(status domain.EngineStatus) {
	d.Registry.Publish(domain.Event{Kind: domain.EventStatus, Status: status})
}

// DispatchActivity publishes a coarse audio-activity tick for UI level
// meters. Droppable under pressure — a missed tick is invisible to the
// user, unlike a missed transcript.
func (d *Dispatcher) DispatchActivity(activity domain.AudioActivityEvent) {
	d.Registry.Publish(domain.Event{Kind: domain.EventActivity, Activity: activity})
}
