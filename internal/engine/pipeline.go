package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/dispatcher"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/framer"
	"github.com/hammamikhairi/dictum/internal/inference"
	"github.com/hammamikhairi/dictum/internal/inject"
	"github.com/hammamikhairi/dictum/internal/logger"
	"github.com/hammamikhairi/dictum/internal/mel"
	"github.com/hammamikhairi/dictum/internal/playback"
	"github.com/hammamikhairi/dictum/internal/postprocess"
	"github.com/hammamikhairi/dictum/internal/resample"
	"github.com/hammamikhairi/dictum/internal/segmenter"
	"github.com/hammamikhairi/dictum/internal/vad"
)

// drainInterval is how often the pipeline thread drains the ring buffer
// into fixed VAD windows. Short enough that a 30 ms window is never more
// than one tick stale relative to the capture thread.
const drainInterval = 10 * time.Millisecond

// ringSeconds bounds the ring buffer so a stalled pipeline thread can fall
// behind by several seconds of audio before the capture thread starts
// overwriting unread samples (§4.2 "the ring never blocks the capture
// thread").
const ringSeconds = 8.0

// injectQueueCapacity bounds the injector thread's input channel. A few
// slots absorb the ordinary case (injection keeps up); beyond that,
// resultsLoop would otherwise block on a hung OS-level injection.
const injectQueueCapacity = 8

// runState is everything one Start/Stop cycle owns: the capture stream and
// the per-utterance pipeline running over it. It is torn down and rebuilt
// on every Start — only the modelCache survives across runs.
type runState struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log     *logger.Logger
	diagReg *diag.Registry
	disp    *dispatcher.Dispatcher
	inj     *inject.Injector
	player  *playback.Player // nil unless debug playback is enabled

	stream domain.AudioStream
	norm   *resample.Normalizer
	ring   *framer.RingBuffer
	frame  *framer.Framer
	vadDet *vad.Detector
	seg    *segmenter.Segmenter
	melFE  *mel.Frontend
	worker *inference.Worker
	post   *postprocess.Processor

	stopWorker chan struct{}

	// injectCh decouples the injector thread (§5 item 5) from resultsLoop:
	// a slow or hung OS-level injection only stalls this channel, never the
	// dispatch of the next utterance's transcript events.
	injectCh chan string

	// ctrlFailCh reports a §7 InferencePersistent failure up to the
	// controller thread, which owns tearing the run down and transitioning
	// status. Shared with Controller.failCh; never closed by runState.
	ctrlFailCh chan error

	mu       sync.Mutex
	settings domain.RuntimeSettings
	rules    domain.RewriteRules
	pending  map[string]*domain.Utterance
}

// startRun wires C1-C10 together for one Start call: a capture thread, a
// pipeline thread (ring drain, VAD, segmentation, mel, job submission), the
// inference worker's own thread (already running inside Worker.Run), a
// post-processing/dispatch thread that drains inference results, and an
// injection thread that feeds finals to the injector.
func (c *Controller) startRun(ctx context.Context, cache *modelCache, deviceName string, settings domain.RuntimeSettings, rules domain.RewriteRules) (*runState, error) {
	stream, err := c.devices.Open(ctx, deviceName)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindDevice, "open capture stream", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	rs := &runState{
		ctx:        runCtx,
		cancel:     cancel,
		log:        c.log,
		diagReg:    c.diagReg,
		disp:       c.disp,
		inj:        c.injector,
		player:     c.player,
		stream:     stream,
		norm:       resample.New(stream.NativeSampleRate(), stream.NativeChannels(), resample.WithGainBoost(settings.InputGainBoost)),
		ring:       framer.NewRingBuffer(domain.SampleRate, ringSeconds),
		vadDet:     vad.NewDetector(cache.vadSess),
		melFE:      mel.New(),
		post:       postprocess.New(c.diagReg),
		stopWorker: make(chan struct{}),
		injectCh:   make(chan string, injectQueueCapacity),
		ctrlFailCh: c.failCh,
		settings:   settings,
		rules:      rules,
		pending:    make(map[string]*domain.Utterance),
	}
	rs.frame = framer.NewFramer(rs.ring)
	rs.seg = segmenter.New(
		segmenter.WithPartialIntervalMs(settings.PartialIntervalMs),
		segmenter.WithSilenceHangoverMs(settings.SilenceHangoverMs),
		segmenter.WithMaxUtteranceMs(settings.MaxUtteranceMs),
	)
	rs.worker = inference.NewWorker(cache.infSess, c.log, rs.languageHint, rs.phraseBias, c.debugTranscribe)
	vadIn, vadOut, vadRate := rs.vadDet.InputLayout()
	c.log.Info("vad: input %q, output %q, %d Hz", vadIn, vadOut, vadRate)

	rs.wg.Add(4)
	go rs.captureLoop()
	go rs.pipelineLoop()
	go rs.resultsLoop()
	go rs.injectLoop()
	go rs.worker.Run(rs.stopWorker)

	return rs, nil
}

func (rs *runState) languageHint() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.settings.LanguageHint
}

func (rs *runState) phraseBias() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.settings.PhraseBiasTerms
}

// applySettings hot-applies a runtime settings/rewrite-rules update to an
// already-running pipeline (§6: only modelProfile/ortEp require a restart).
func (rs *runState) applySettings(settings domain.RuntimeSettings, rules domain.RewriteRules) {
	rs.mu.Lock()
	rs.settings = settings
	rs.rules = rules
	rs.mu.Unlock()

	rs.norm.SetGain(settings.InputGainBoost)
	rs.seg.Reconfigure(
		segmenter.WithPartialIntervalMs(settings.PartialIntervalMs),
		segmenter.WithSilenceHangoverMs(settings.SilenceHangoverMs),
		segmenter.WithMaxUtteranceMs(settings.MaxUtteranceMs),
	)
}

// shutdown flushes any open utterance through to a final (or cancels it if
// empty, §4.5/§8 "never a silent drop"), waits up to 2 s for that final to
// be decoded and dispatched, then tears every thread down.
func (rs *runState) shutdown() {
	action := rs.seg.ForceStop(time.Now())
	rs.handleAction(action)
	if action.Kind == segmenter.ActionScheduleFinal {
		deadline := time.Now().Add(2 * time.Second)
		for action.Utterance.CurrentState() == domain.UtteranceClosing && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	rs.cancel()
	_ = rs.stream.Close()
	close(rs.stopWorker)
	rs.wg.Wait()
}

func (rs *runState) captureLoop() {
	defer rs.wg.Done()
	var seq uint64
	for {
		select {
		case <-rs.ctx.Done():
			return
		case frame, ok := <-rs.stream.Frames():
			if !ok {
				return
			}
			samples, rms, _ := rs.norm.Process(frame)
			rs.ring.Write(samples)
			rs.diagReg.Counters.FramesIn.Inc()
			rs.diagReg.Counters.FramesResampled.Inc()

			seq++
			rs.mu.Lock()
			gate := rs.settings.ActivityNoiseGate
			rs.mu.Unlock()
			rs.disp.DispatchActivity(domain.AudioActivityEvent{
				Seq:      seq,
				RMS:      rms,
				IsSpeech: rms > gate,
			})
		}
	}
}

func (rs *runState) pipelineLoop() {
	defer rs.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case <-ticker.C:
			rs.drainOnce()
		}
	}
}

func (rs *runState) drainOnce() {
	windows := rs.frame.Drain()
	now := time.Now()
	for _, w := range windows {
		decision, err := rs.vadDet.Process(w.Seq, w.Samples)
		if err != nil {
			rs.log.Warn("vad: %v", err)
			continue
		}
		rs.diagReg.Counters.VadWindows.Inc()
		if decision.IsSpeech {
			rs.diagReg.Counters.VadSpeech.Inc()
		}

		action := rs.seg.ProcessWindow(decision, w.Samples, now)
		rs.handleAction(action)
	}
}

func (rs *runState) handleAction(action segmenter.Action) {
	switch action.Kind {
	case segmenter.ActionSchedulePartial:
		rs.submitJob(action.Utterance, inference.JobPartial)
	case segmenter.ActionScheduleFinal:
		rs.submitJob(action.Utterance, inference.JobFinal)
	case segmenter.ActionOpened, segmenter.ActionCancelled, segmenter.ActionNone:
		// Opened needs no pipeline-thread action beyond what the segmenter
		// already recorded; Cancelled utterances never produce a final.
	}
}

func (rs *runState) submitJob(u *domain.Utterance, kind inference.JobKind) {
	melSpec := rs.melFE.Compute(u.Snapshot())
	rs.diagReg.Counters.InferenceCalls.Inc()

	rs.mu.Lock()
	rs.pending[u.Id] = u
	rs.mu.Unlock()

	rs.worker.Submit(inference.Job{UtteranceID: u.Id, Mel: melSpec, Kind: kind})
}

func (rs *runState) resultsLoop() {
	defer rs.wg.Done()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case res, ok := <-rs.worker.Results():
			if !ok {
				return
			}
			rs.handleResult(res)
		}
	}
}

// injectLoop is the injector thread (§5 item 5): it consumes final text from
// injectCh and runs C10 serially, on its own goroutine, so a stalled OS-level
// injection never holds up dispatch of the next utterance.
func (rs *runState) injectLoop() {
	defer rs.wg.Done()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case text, ok := <-rs.injectCh:
			if !ok {
				return
			}
			if err := rs.inj.Inject(rs.ctx, text); err != nil {
				rs.log.Warn("inject: %v", err)
			}
		}
	}
}

func (rs *runState) handleResult(res inference.Result) {
	rs.mu.Lock()
	u := rs.pending[res.UtteranceID]
	if res.Kind == inference.JobFinal {
		delete(rs.pending, res.UtteranceID)
	}
	settings := rs.settings
	rules := rs.rules
	rs.mu.Unlock()

	if res.Err != nil {
		rs.diagReg.Counters.InferenceErrors.Inc()
		if res.Persistent {
			// §7 InferencePersistent: two consecutive failures cancel the
			// utterance and escalate to the controller thread, which owns
			// tearing the run down and transitioning status to error.
			if u != nil {
				u.TransitionCancelled()
			}
			engErr := domain.NewEngineError(domain.ErrKindInferencePersistent, "utterance "+res.UtteranceID+" cancelled after repeated inference failure", res.Err)
			select {
			case rs.ctrlFailCh <- engErr:
			default:
			}
		}
		return
	}

	if res.Kind == inference.JobPartial {
		// Partials bypass post-processing entirely (§4.8 "only finals are
		// rewritten") and carry no confidence.
		rs.disp.DispatchTranscript([]domain.TranscriptSegment{{
			Id:         res.UtteranceID,
			Text:       res.Decode.Text,
			Kind:       domain.SegmentPartial,
			Confidence: domain.NoConfidence,
		}})
		return
	}

	var refine postprocess.RefineFunc
	if u != nil {
		refine = func(string) (string, float32, error) {
			out, err := rs.worker.Refine(rs.melFE.Compute(u.Snapshot()))
			if err != nil {
				return "", 0, err
			}
			return out.Decode.Text, out.Decode.Confidence, nil
		}
	}

	outcome, _ := rs.post.Process(res.UtteranceID, res.Decode.Text, res.Decode.Confidence, rules, settings, time.Now(), refine)

	rs.disp.DispatchTranscript([]domain.TranscriptSegment{outcome.Segment})
	if len(outcome.SupersededIDs) > 0 {
		rs.disp.DispatchTailRewrite(outcome.SupersededIDs, outcome.Segment.Text, outcome.Segment.Confidence)
	}

	if u != nil {
		snapshot := u.Snapshot()
		if rs.player != nil {
			go func() {
				if err := rs.player.PlayPCM(snapshot); err != nil {
					rs.log.Warn("playback: %v", err)
				}
			}()
		}
		u.TransitionClosed(outcome.Segment.Text)
	}

	select {
	case rs.injectCh <- outcome.Segment.Text:
	case <-rs.ctx.Done():
	}
}
