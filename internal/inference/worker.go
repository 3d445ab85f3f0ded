package inference

import (
	"sync"

	"github.com/hammamikhairi/dictum/internal/logger"
)

// JobKind distinguishes a partial (non-closing) inference request from a
// final (closing-utterance) one.
type JobKind int

const (
	JobPartial JobKind = iota
	JobFinal
)

// Job is one unit of work submitted to the inference worker.
type Job struct {
	UtteranceID string
	Mel         [][]float32
	Kind        JobKind
	PrefixHint  string
}

// Result is what the worker reports back for one Job.
type Result struct {
	UtteranceID string
	Kind        JobKind
	Decode      DecodeResult
	Err         error

	// Persistent marks a job dropped after its single retry also failed —
	// §7 InferencePersistent: two consecutive failures, not just one.
	Persistent bool
}

// Worker owns the ONNX session exclusively and runs on a single dedicated
// goroutine (§5 "inference thread: single worker running C7"). Jobs queue
// on a channel of capacity 2 — one in-flight, one queued; submitting a
// partial for an utterance that already has a queued partial replaces it,
// preserving ordering without growing the queue.
type Worker struct {
	sess *Session
	log  *logger.Logger

	languageHint func() string
	phraseBias   func() []string
	debugTokens  bool

	mu      sync.Mutex
	queued  *Job
	results chan Result
	submit  chan struct{}

	refine chan refineRequest
}

// refineRequest is a synchronous, out-of-band re-decode: the §4.8 step 6
// confidence-gated resubmission pass runs on the same worker goroutine that
// exclusively owns the ONNX session, rather than touching it from the
// post-processing thread directly.
type refineRequest struct {
	mel   [][]float32
	reply chan Result
}

// NewWorker wraps sess. languageHint/phraseBias are read lazily at decode
// time so a settings update applies to the next job without requiring the
// worker to be reconstructed.
func NewWorker(sess *Session, log *logger.Logger, languageHint func() string, phraseBias func() []string, debugTokens bool) *Worker {
	return &Worker{
		sess:         sess,
		log:          log,
		languageHint: languageHint,
		phraseBias:   phraseBias,
		debugTokens:  debugTokens,
		results:      make(chan Result, 4),
		submit:       make(chan struct{}, 1),
		refine:       make(chan refineRequest),
	}
}

// Refine resubmits mel through the encoder/decoder, blocking until the
// worker goroutine services it. It runs the same Decode as any job, starting
// at T=0.0; no higher starting temperature is applied. Used as the
// postprocess.RefineFunc backing a low-confidence final, never called for
// partials.
func (w *Worker) Refine(mel [][]float32) (Result, error) {
	reply := make(chan Result, 1)
	w.refine <- refineRequest{mel: mel, reply: reply}
	res := <-reply
	return res, res.Err
}

// Submit enqueues a job. If a partial job for the same or a different
// utterance is already queued (not yet started), it is replaced rather
// than appended, so only the newest partial is ever run. A queued final is
// never overwritten by a later partial — the segmenter may open the next
// utterance (and schedule its first partial) before this worker has drained
// a prior utterance's final, and finals must never be dropped (§4.5, §8);
// that later partial is simply skipped, same as any other backpressure drop.
func (w *Worker) Submit(job Job) {
	w.mu.Lock()
	if w.queued != nil && w.queued.Kind == JobFinal && job.Kind == JobPartial {
		w.mu.Unlock()
		return
	}
	w.queued = &job
	w.mu.Unlock()

	select {
	case w.submit <- struct{}{}:
	default:
	}
}

// Results returns the channel of completed job outcomes.
func (w *Worker) Results() <-chan Result { return w.results }

// Run drives the worker loop until stop is closed. One job is processed at
// a time; failure policy per §4.7: single retry on transient error, a
// second consecutive failure emits an error status and drops the job —
// the worker itself never panics the engine.
func (w *Worker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-w.submit:
			w.drain(stop)
		case req := <-w.refine:
			req.reply <- w.run(Job{UtteranceID: "refine", Kind: JobFinal, Mel: req.mel})
		}
	}
}

func (w *Worker) drain(stop <-chan struct{}) {
	for {
		w.mu.Lock()
		job := w.queued
		w.queued = nil
		w.mu.Unlock()
		if job == nil {
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		res := runJobWithRetry(
			func() Result { return w.run(*job) },
			func(err error) {
				w.log.Warn("inference: transient failure for utterance %s, retrying: %v", job.UtteranceID, err)
			},
		)
		if res.Persistent {
			w.log.Error("inference: dropping job for utterance %s after repeated failure: %v", job.UtteranceID, res.Err)
		}

		select {
		case w.results <- res:
		case <-stop:
			return
		}
	}
}

// runJobWithRetry runs attempt once, and again exactly once more if the
// first call failed (§4.7 "single retry on transient error"). It is scoped
// entirely to this one job — no state survives across calls — so a prior
// job's retry failure can never eat into the next job's retry budget. If
// the retry also fails, the returned Result is marked Persistent.
func runJobWithRetry(attempt func() Result, onRetry func(err error)) Result {
	res := attempt()
	if res.Err == nil {
		return res
	}
	if onRetry != nil {
		onRetry(res.Err)
	}
	retry := attempt()
	if retry.Err != nil {
		retry.Persistent = true
	}
	return retry
}

func (w *Worker) run(job Job) Result {
	embedding, err := w.sess.Encode(job.Mel)
	if err != nil {
		return Result{UtteranceID: job.UtteranceID, Kind: job.Kind, Err: err}
	}

	lang := "auto"
	if w.languageHint != nil {
		lang = w.languageHint()
	}
	var bias []string
	if w.phraseBias != nil {
		bias = w.phraseBias()
	}

	decoded, err := w.sess.Decode(embedding, lang, bias)
	if err != nil {
		return Result{UtteranceID: job.UtteranceID, Kind: job.Kind, Err: err}
	}

	if w.debugTokens {
		n := len(decoded.TokenIDs)
		if n > 20 {
			n = 20
		}
		w.log.Debug("transcribe: utterance=%s tokens[0:%d]=%v", job.UtteranceID, n, decoded.TokenIDs[:n])
	}

	return Result{UtteranceID: job.UtteranceID, Kind: job.Kind, Decode: decoded}
}
