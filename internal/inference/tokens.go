// Package inference implements the Inference Worker stage (C7): a
// single-threaded ONNX Whisper encoder/decoder executor.
package inference

// Whisper's canonical special-token ids (multilingual vocabulary; English-
// only models use a disjoint id for the same role but the same names).
const (
	TokenEOT          = 50257
	TokenSOT          = 50258
	TokenTranscribe   = 50359
	TokenTranslate    = 50358
	TokenNoTimestamps = 50363
	TokenNoSpeech     = 50362
)

// languageTokens maps a languageHint (§6 RuntimeSettings) to Whisper's
// language-token id, offset from TokenSOT+1 in vocabulary order.
var languageTokens = map[string]int{
	"english":  50259,
	"mandarin": 50260,
	"russian":  50263,
}

// BuildPrefix composes the decoder's initial prompt per §4.7: for
// multilingual models, <SOT> [<language>] <transcribe> [<notimestamps>];
// for English-only models, <SOT> <transcribe> <notimestamps> (no language
// token — English-only checkpoints have no language slot at all).
func BuildPrefix(languageHint string, multilingual, noTimestamps bool) []int64 {
	prefix := []int64{TokenSOT}
	if multilingual {
		if tok, ok := languageTokens[languageHint]; ok {
			prefix = append(prefix, int64(tok))
		} else if tok, ok := languageTokens["english"]; ok && languageHint == "auto" {
			prefix = append(prefix, int64(tok))
		}
	}
	prefix = append(prefix, TokenTranscribe)
	if noTimestamps {
		prefix = append(prefix, TokenNoTimestamps)
	}
	return prefix
}

// isSpecialToken reports whether id falls in Whisper's reserved special-
// token range, used to detect "entirely a special token" decode results
// for the temperature-fallback trigger in §4.7.
func isSpecialToken(id int64) bool {
	return id >= TokenEOT
}
