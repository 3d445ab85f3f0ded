package postprocess

import (
	"testing"
	"time"

	"github.com/hammamikhairi/dictum/internal/domain"
)

func TestApplyDictionaryPreservesFirstLetterCase(t *testing.T) {
	entries := []domain.DictionaryEntry{
		{Term: "Kubernetes", Aliases: []string{"kubernetes", "k8s"}},
	}
	got := applyDictionary("Kubernetes is fun but k8s is hard", entries)
	want := "Kubernetes is fun but Kubernetes is hard"
	if got != want {
		t.Errorf("applyDictionary = %q, want %q", got, want)
	}
}

func TestApplyDictionarySkipsPartialWordMatches(t *testing.T) {
	entries := []domain.DictionaryEntry{
		{Term: "cat", Aliases: []string{"cat"}},
	}
	got := applyDictionary("concatenate the cats", entries)
	if got != "concatenate the cats" {
		t.Errorf("applyDictionary should not touch substrings inside other words, got %q", got)
	}
}

func TestApplyLearnedCorrectionsMatchesTokenSubsequence(t *testing.T) {
	rules := []domain.LearnedCorrection{
		{Heard: "go routine", Corrected: "goroutine"},
	}
	got, hits := applyLearnedCorrections("start a go routine now", rules)
	if got != "start a goroutine now" {
		t.Errorf("applyLearnedCorrections = %q", got)
	}
	if len(hits) != 1 || hits[0] != 0 {
		t.Errorf("hits = %v, want [0]", hits)
	}
}

func TestApplyLearnedCorrectionsNoMatch(t *testing.T) {
	rules := []domain.LearnedCorrection{{Heard: "foo bar", Corrected: "baz"}}
	got, hits := applyLearnedCorrections("nothing matches here", rules)
	if got != "nothing matches here" {
		t.Errorf("text should pass through unchanged, got %q", got)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none", hits)
	}
}

func TestApplySnippetsSlashModeWholeMessage(t *testing.T) {
	snippets := []domain.Snippet{
		{Trigger: "sig", Expansion: "Best,\nAda", Mode: domain.SnippetSlash},
	}
	got := applySnippets("/sig", snippets)
	if got != "Best,\nAda" {
		t.Errorf("applySnippets = %q", got)
	}
}

func TestApplySnippetsSlashModeTrailingTrigger(t *testing.T) {
	snippets := []domain.Snippet{
		{Trigger: "sig", Expansion: "Best,\nAda", Mode: domain.SnippetSlash},
	}
	got := applySnippets("thanks /sig", snippets)
	if got != "thanks Best,\nAda" {
		t.Errorf("applySnippets = %q", got)
	}
}

func TestApplySnippetsPhraseMode(t *testing.T) {
	snippets := []domain.Snippet{
		{Trigger: "my email", Expansion: "ada@example.com", Mode: domain.SnippetPhrase},
	}
	got := applySnippets("send it to my email please", snippets)
	if got != "send it to ada@example.com please" {
		t.Errorf("applySnippets = %q", got)
	}
}

func TestOverlapsSharedPrefix(t *testing.T) {
	if !overlaps("turn on the kitchen lights please", "turn on the kitchen lights now") {
		t.Error("expected shared-prefix overlap to be detected")
	}
}

func TestOverlapsJaccard(t *testing.T) {
	if !overlaps("set a timer for five minutes", "set a timer for five minutes please") {
		t.Error("expected jaccard overlap to be detected")
	}
}

func TestOverlapsUnrelatedTextDoesNotOverlap(t *testing.T) {
	if overlaps("what is the weather today", "open the garage door") {
		t.Error("unrelated finals should not overlap")
	}
}

func TestTailHistorySupersedesWithinWindow(t *testing.T) {
	h := newTailHistory()
	now := time.Now()
	h.checkAndRecord("u1", "turn on the kitchen lights please", now)

	superseded := h.checkAndRecord("u2", "turn on the kitchen lights now", now.Add(2*time.Second))
	if len(superseded) != 1 || superseded[0] != "u1" {
		t.Fatalf("superseded = %v, want [u1]", superseded)
	}
}

func TestTailHistoryIgnoresOutsideWindow(t *testing.T) {
	h := newTailHistory()
	now := time.Now()
	h.checkAndRecord("u1", "turn on the kitchen lights please", now)

	superseded := h.checkAndRecord("u2", "turn on the kitchen lights now", now.Add(10*time.Second))
	if len(superseded) != 0 {
		t.Fatalf("superseded = %v, want none (outside 6.5s window)", superseded)
	}
}

func TestTailHistoryCapsAtTwoRewrites(t *testing.T) {
	h := newTailHistory()
	now := time.Now()
	h.checkAndRecord("u1", "schedule a meeting for tomorrow at noon", now)
	h.checkAndRecord("u2", "schedule a meeting for tomorrow at noon sharp", now.Add(1*time.Second))
	h.checkAndRecord("u3", "schedule a meeting for tomorrow at noon sharp please", now.Add(2*time.Second))

	superseded := h.checkAndRecord("u4", "schedule a meeting for tomorrow at noon sharp please now", now.Add(3*time.Second))
	if len(superseded) > maxTailRewritten {
		t.Fatalf("superseded = %v, want at most %d", superseded, maxTailRewritten)
	}
}

func TestMaybeRefineSkipsWhenReliabilityModeOff(t *testing.T) {
	called := false
	refine := func(id string) (string, float32, error) {
		called = true
		return "refined", 0.9, nil
	}
	text, conf := maybeRefine("u1", "original", 0.2, false, true, refine)
	if text != "original" || conf != 0.2 || called {
		t.Fatalf("expected no refine when reliability mode is off, got text=%q conf=%v called=%v", text, conf, called)
	}
}

func TestMaybeRefineSkipsWhenConfidenceHighEnough(t *testing.T) {
	refine := func(id string) (string, float32, error) {
		t.Fatal("refine should not be called above threshold")
		return "", 0, nil
	}
	text, conf := maybeRefine("u1", "original", 0.8, true, true, refine)
	if text != "original" || conf != 0.8 {
		t.Fatalf("text=%q conf=%v, want unchanged", text, conf)
	}
}

func TestMaybeRefineTakesHigherConfidenceResult(t *testing.T) {
	refine := func(id string) (string, float32, error) {
		return "refined text", 0.7, nil
	}
	text, conf := maybeRefine("u1", "original", 0.3, true, true, refine)
	if text != "refined text" || conf != 0.7 {
		t.Fatalf("text=%q conf=%v, want refined result", text, conf)
	}
}

func TestMaybeRefineKeepsOriginalWhenRefineIsWorse(t *testing.T) {
	refine := func(id string) (string, float32, error) {
		return "worse text", 0.1, nil
	}
	text, conf := maybeRefine("u1", "original", 0.3, true, true, refine)
	if text != "original" || conf != 0.3 {
		t.Fatalf("text=%q conf=%v, want original kept", text, conf)
	}
}

func TestProcessorEndToEnd(t *testing.T) {
	p := New(nil)
	rules := domain.RewriteRules{
		Dictionary: []domain.DictionaryEntry{{Term: "Kubernetes", Aliases: []string{"k8s"}}},
		Learned:    []domain.LearnedCorrection{{Heard: "go routine", Corrected: "goroutine"}},
	}
	settings := domain.DefaultRuntimeSettings()

	outcome, hits := p.Process("u1", "deploy the k8s go routine now", 0.9, rules, settings, time.Now(), nil)

	if outcome.Segment.Text != "deploy the Kubernetes goroutine now" {
		t.Errorf("Segment.Text = %q", outcome.Segment.Text)
	}
	if outcome.Segment.Kind != domain.SegmentFinal {
		t.Errorf("Segment.Kind = %v, want SegmentFinal", outcome.Segment.Kind)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %v, want one learned-correction hit", hits)
	}
}
