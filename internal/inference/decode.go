package inference

import (
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/dictum/internal/domain"
)

const (
	maxDecodeSteps      = 224
	minDecodedTokens    = 2
	phraseBiasBonus     = 2.0
	phraseBiasFadeSteps = 2
)

// DecodeResult is what one encoder+decoder pass produces for one job.
type DecodeResult struct {
	Text       string
	Confidence float32 // domain.NoConfidence if no tokens were scored
	TokenIDs   []int64 // for DICTUM_DEBUG_TRANSCRIBE logging
}

// phraseBiasTerm is one tokenized bias entry: FirstToken gets the full
// bonus, then it fades linearly over the following phraseBiasFadeSteps
// decode steps.
type phraseBiasTerm struct {
	firstToken int64
}

// decodeConfig bundles the per-call knobs that vary with RuntimeSettings
// and the job's prefix hint.
type decodeConfig struct {
	prefix      []int64
	temperature float32
	biasTerms   []phraseBiasTerm
	debug       bool
}

// Decode runs the autoregressive greedy decode loop over audioEmbedding,
// applying temperature fallback per §4.7: start at T=0.0; if that one pass
// is empty, entirely special tokens, or below minDecodedTokens, retry once
// at T=0.2 and return the retry. No suppression mask is applied on the
// retry, and since a 1/T rescale keeps the argmax, it selects the same
// tokens; only the reported confidence differs.
func (s *Session) Decode(audioEmbedding []float32, languageHint string, phraseBias []string) (DecodeResult, error) {
	prefix := BuildPrefix(languageHint, s.multilingual, true)
	biasTerms := s.tokenizeBiasTerms(phraseBias)

	cfg := decodeConfig{prefix: prefix, temperature: 0.0, biasTerms: biasTerms}
	result, weak, err := s.decodeOnce(audioEmbedding, cfg)
	if err != nil {
		return DecodeResult{}, err
	}
	if weak {
		cfg.temperature = 0.2
		retry, _, err := s.decodeOnce(audioEmbedding, cfg)
		if err != nil {
			return DecodeResult{}, err
		}
		return retry, nil
	}
	return result, nil
}

// decodeOnce runs one full greedy decode pass and reports whether the
// result is "weak" (empty, special-token-only, or under minDecodedTokens)
// and therefore a temperature-fallback candidate.
func (s *Session) decodeOnce(audioEmbedding []float32, cfg decodeConfig) (DecodeResult, bool, error) {
	ids := append([]int64(nil), cfg.prefix...)
	var logProbs []float64
	var nonSpecial int

	trigramCounts := map[[3]int64]int{}

	for step := 0; step < maxDecodeSteps; step++ {
		logits, err := s.decoderStep(ids, audioEmbedding)
		if err != nil {
			return DecodeResult{}, false, err
		}

		applyPhraseBias(logits, cfg.biasTerms, len(ids)-len(cfg.prefix))
		if cfg.temperature > 0 {
			applyTemperature(logits, cfg.temperature)
		}

		next, lp := argmaxLogProb(logits)
		ids = append(ids, next)

		if next == TokenEOT {
			break
		}
		if !isSpecialToken(next) {
			nonSpecial++
			logProbs = append(logProbs, lp)
		}

		if len(ids) >= 3 {
			var tri [3]int64
			copy(tri[:], ids[len(ids)-3:])
			trigramCounts[tri]++
			if trigramCounts[tri] >= 4 {
				break
			}
		}
	}

	text := s.tokenizer.Decode(ids[len(cfg.prefix):])
	confidence := geometricMeanConfidence(logProbs)

	weak := text == "" || nonSpecial == 0 || nonSpecial < minDecodedTokens
	return DecodeResult{Text: text, Confidence: confidence, TokenIDs: ids}, weak, nil
}

// decoderStep runs one autoregressive step and returns the logits over the
// vocabulary for the next token, using the plain (uncached) decoder calling
// convention. Open rejects cached-KV exports, so this method never
// branches on I/O names or on s.variant.
func (s *Session) decoderStep(ids []int64, audioEmbedding []float32) ([]float32, error) {
	inputIDs, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindInferenceTransient, "alloc decoder input_ids", err)
	}
	defer inputIDs.Destroy()

	hidden, err := ort.NewTensor(ort.NewShape(1, int64(len(audioEmbedding)/encoderHiddenSize), encoderHiddenSize), audioEmbedding)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindInferenceTransient, "alloc encoder_hidden_states", err)
	}
	defer hidden.Destroy()

	vocabSize := len(s.tokenizer.idToToken)
	logitsOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(ids)), int64(vocabSize)))
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindInferenceTransient, "alloc decoder logits", err)
	}
	defer logitsOut.Destroy()

	inputs := []ort.Value{inputIDs, hidden}
	outputs := []ort.Value{logitsOut}
	if err := s.decoder.Run(inputs, outputs); err != nil {
		return nil, domain.NewEngineError(domain.ErrKindInferenceTransient, "decoder run", err)
	}

	data := logitsOut.GetData()
	// Last timestep's logits predict the next token.
	last := data[(len(ids)-1)*vocabSize : len(ids)*vocabSize]
	out := make([]float32, vocabSize)
	copy(out, last)
	return out, nil
}

func (s *Session) tokenizeBiasTerms(terms []string) []phraseBiasTerm {
	var out []phraseBiasTerm
	for _, term := range terms {
		for id, tok := range s.tokenizer.idToToken {
			if tok == term {
				out = append(out, phraseBiasTerm{firstToken: id})
				break
			}
		}
	}
	return out
}

// applyPhraseBias adds a constant logit bonus to each bias term's first
// token at the timestep it would first appear, fading linearly over the
// next phraseBiasFadeSteps steps, per §4.7.
func applyPhraseBias(logits []float32, terms []phraseBiasTerm, stepIndex int) {
	if stepIndex > phraseBiasFadeSteps || len(terms) == 0 {
		return
	}
	fade := 1.0 - float64(stepIndex)/float64(phraseBiasFadeSteps+1)
	bonus := float32(phraseBiasBonus * fade)
	for _, t := range terms {
		if int(t.firstToken) < len(logits) {
			logits[t.firstToken] += bonus
		}
	}
}

// applyTemperature rescales logits by 1/T before the argmax selection below.
// The rescale does not change which token has the highest logit; it only
// changes the log-probabilities used for confidence.
func applyTemperature(logits []float32, temperature float32) {
	for i := range logits {
		logits[i] /= temperature
	}
}

// argmaxLogProb returns the highest-logit token id and its log-softmax
// probability, used both for greedy selection and for confidence scoring.
func argmaxLogProb(logits []float32) (int64, float64) {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	logSumExp := logSumExpF32(logits)
	logProb := float64(logits[best]) - logSumExp
	return int64(best), logProb
}

func logSumExpF32(logits []float32) float64 {
	maxV := logits[0]
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxV))
	}
	return float64(maxV) + math.Log(sum)
}

// geometricMeanConfidence derives segment confidence as the length-
// normalized geometric mean of selected-token probabilities (§4.7):
// exp(mean(logProbs)). Returns domain.NoConfidence if no tokens were
// scored.
func geometricMeanConfidence(logProbs []float64) float32 {
	if len(logProbs) == 0 {
		return domain.NoConfidence
	}
	var sum float64
	for _, lp := range logProbs {
		sum += lp
	}
	mean := sum / float64(len(logProbs))
	return float32(math.Exp(mean))
}
