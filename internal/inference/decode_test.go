package inference

import (
	"math"
	"testing"

	"github.com/hammamikhairi/dictum/internal/domain"
)

func TestGeometricMeanConfidenceEmpty(t *testing.T) {
	if got := geometricMeanConfidence(nil); got != domain.NoConfidence {
		t.Errorf("geometricMeanConfidence(nil) = %v, want %v", got, domain.NoConfidence)
	}
}

func TestGeometricMeanConfidenceUniform(t *testing.T) {
	// log(1.0) for every token => geometric mean of 1.0 => confidence 1.0.
	got := geometricMeanConfidence([]float64{0, 0, 0})
	if math.Abs(float64(got-1.0)) > 1e-6 {
		t.Errorf("confidence = %v, want 1.0", got)
	}
}

func TestApplyPhraseBiasFadesOut(t *testing.T) {
	terms := []phraseBiasTerm{{firstToken: 5}}
	logits := make([]float32, 10)
	applyPhraseBias(logits, terms, 0)
	if logits[5] <= 0 {
		t.Fatalf("expected bonus at step 0, got %v", logits[5])
	}
	full := logits[5]

	logits2 := make([]float32, 10)
	applyPhraseBias(logits2, terms, phraseBiasFadeSteps+1)
	if logits2[5] != 0 {
		t.Errorf("expected no bonus once fade window elapsed, got %v", logits2[5])
	}
	_ = full
}

func TestArgmaxLogProbPicksHighest(t *testing.T) {
	logits := []float32{1, 5, 2, 0}
	id, lp := argmaxLogProb(logits)
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if lp > 0 {
		t.Errorf("logProb = %v, want <= 0 (it is a log-probability)", lp)
	}
}

func TestIsSpecialToken(t *testing.T) {
	if isSpecialToken(100) {
		t.Error("100 should not be a special token")
	}
	if !isSpecialToken(TokenEOT) {
		t.Error("TokenEOT should be a special token")
	}
}

func TestBuildPrefixMultilingual(t *testing.T) {
	p := BuildPrefix("mandarin", true, true)
	if p[0] != TokenSOT {
		t.Fatalf("p[0] = %d, want TokenSOT", p[0])
	}
	if p[len(p)-1] != TokenNoTimestamps {
		t.Fatalf("last token = %d, want TokenNoTimestamps", p[len(p)-1])
	}
	found := false
	for _, id := range p {
		if id == int64(languageTokens["mandarin"]) {
			found = true
		}
	}
	if !found {
		t.Error("expected mandarin language token in multilingual prefix")
	}
}

func TestBuildPrefixEnglishOnlyHasNoLanguageToken(t *testing.T) {
	p := BuildPrefix("auto", false, true)
	for _, id := range p {
		for _, langID := range languageTokens {
			if id == int64(langID) {
				t.Fatalf("English-only prefix should never contain a language token, got %d", id)
			}
		}
	}
}
