package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// subscriberWorker drains one subscriber's queue on its own goroutine so a
// slow Notify implementation only ever delays its own queue, never the
// engine or any other subscriber — the guarantee domain.Subscriber's doc
// comment requires.
type subscriberWorker struct {
	sub    domain.Subscriber
	queue  *subscriberQueue
	stopCh chan struct{}
	doneCh chan struct{}
}

func newSubscriberWorker(sub domain.Subscriber) *subscriberWorker {
	w := &subscriberWorker{
		sub:    sub,
		queue:  newSubscriberQueue(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *subscriberWorker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.queue.notify:
			if w.sub.Closed() {
				return
			}
			for _, ev := range w.queue.dequeueAll() {
				if w.sub.Closed() {
					return
				}
				w.sub.Notify(ev)
			}
		}
	}
}

func (w *subscriberWorker) stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Registry implements domain.SubscriberRegistry: it hands out a weak
// handle to each registered subscriber and fans out every Publish call to
// all of them via their own per-subscriber queue, per §4.9's bounded-queue
// backpressure policy.
type Registry struct {
	log  *logger.Logger
	diag *diag.Registry

	mu      sync.Mutex
	workers map[uint64]*subscriberWorker
	nextID  atomic.Uint64
}

// NewRegistry returns an empty subscriber registry. diagReg may be nil
// (tests construct a Registry without one); persist timing is simply
// skipped in that case.
func NewRegistry(log *logger.Logger, diagReg *diag.Registry) *Registry {
	return &Registry{log: log, diag: diagReg, workers: make(map[uint64]*subscriberWorker)}
}

// Register adds sub to the fan-out set and returns a function that removes
// it again and stops its drain goroutine.
func (r *Registry) Register(sub domain.Subscriber) func() {
	id := r.nextID.Add(1)
	w := newSubscriberWorker(sub)

	r.mu.Lock()
	r.workers[id] = w
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		w, ok := r.workers[id]
		delete(r.workers, id)
		r.mu.Unlock()
		if ok {
			w.stop()
		}
	}
}

// Publish fans ev out to every registered subscriber's queue. Partial
// transcript segments and activity events are droppable under pressure;
// final transcript segments and status events are not. The time spent
// handing ev to every subscriber's queue — the history persister among
// them, per §4.9 — is recorded as the "persist" stage.
func (r *Registry) Publish(ev domain.Event) {
	start := time.Now()
	droppable := isDroppable(ev)

	r.mu.Lock()
	workers := make([]*subscriberWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		if w.sub.Closed() {
			continue
		}
		w.queue.enqueue(ev, droppable)
	}

	if r.diag != nil {
		r.diag.Observe(diag.StagePersist, float64(time.Since(start))/float64(time.Millisecond))
	}
}

func isDroppable(ev domain.Event) bool {
	switch ev.Kind {
	case domain.EventActivity:
		return true
	case domain.EventTranscript:
		for _, seg := range ev.Transcript.Segments {
			if seg.Kind == domain.SegmentFinal {
				return false
			}
		}
		return true
	default:
		return false
	}
}
