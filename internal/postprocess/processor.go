package postprocess

import (
	"time"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/domain"
)

// Processor runs the full C8 pipeline over final transcript text: dictionary
// rewrite, learned corrections, snippet expansion, tail-rewrite dedup, and
// confidence gating, in the order spec's §4.8 lists them. One Processor is
// owned by the single post-processing thread (§5); it is not safe for
// concurrent use because tailHistory is not synchronized.
type Processor struct {
	tail *tailHistory
	diag *diag.Registry
}

// New returns a Processor with an empty tail-rewrite history. diagReg may
// be nil (tests construct a Processor without one); timing is simply
// skipped in that case.
func New(diagReg *diag.Registry) *Processor {
	return &Processor{tail: newTailHistory(), diag: diagReg}
}

// Outcome is what Process produces for one final segment.
type Outcome struct {
	Segment      domain.TranscriptSegment
	// SupersededIDs holds the ids of prior finals this one's text strongly
	// overlaps with (§4.8 step 5). The dispatcher re-emits those ids with
	// Segment.Text as an update rather than introducing a new bubble.
	SupersededIDs []string
}

// LearnedHit names which rules in the RewriteRules.Learned slice fired, so
// the caller can persist bumped hit counters.
type LearnedHit struct {
	Index int
}

// Process runs steps 2-6 of §4.8 over a raw decoded final. text and
// confidence come straight out of the decoder (step 1, detokenization,
// already happened in internal/inference.Session.Decode). refine is invoked
// only if reliability mode and post-utterance refine are both enabled and
// confidence is low; pass nil when no refine path is wired.
func (p *Processor) Process(
	id string,
	text string,
	confidence float32,
	rules domain.RewriteRules,
	settings domain.RuntimeSettings,
	now time.Time,
	refine RefineFunc,
) (Outcome, []LearnedHit) {
	if p.diag != nil {
		start := time.Now()
		defer func() { p.diag.Observe(diag.StageTransform, float64(time.Since(start))/float64(time.Millisecond)) }()
	}

	text = applyDictionary(text, rules.Dictionary)

	text, hitIdx := applyLearnedCorrections(text, rules.Learned)
	hits := make([]LearnedHit, 0, len(hitIdx))
	for _, i := range hitIdx {
		hits = append(hits, LearnedHit{Index: i})
	}

	text = applySnippets(text, rules.Snippets)

	superseded := p.tail.checkAndRecord(id, text, now)

	text, confidence = maybeRefine(id, text, confidence, settings.ReliabilityMode, settings.PostUtteranceRefine, refine)

	return Outcome{
		Segment: domain.TranscriptSegment{
			Id:         id,
			Text:       text,
			Kind:       domain.SegmentFinal,
			Confidence: confidence,
		},
		SupersededIDs: superseded,
	}, hits
}
