package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Tokenizer detokenizes decoder token ids to Unicode text. Whisper uses a
// GPT-2-style byte-level BPE vocabulary: each vocab entry is a string over
// a byte-to-unicode alphabet, with 'Ġ' marking a leading space.
type Tokenizer struct {
	idToToken map[int64]string
	byteDecode map[rune]byte
}

// LoadTokenizer reads a vocab.json (token string -> id) from path.
func LoadTokenizer(path string) (*Tokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read tokenizer vocab: %w", err)
	}
	var vocab map[string]int64
	if err := json.Unmarshal(raw, &vocab); err != nil {
		return nil, fmt.Errorf("inference: parse tokenizer vocab: %w", err)
	}

	idToToken := make(map[int64]string, len(vocab))
	for tok, id := range vocab {
		idToToken[id] = tok
	}

	return &Tokenizer{
		idToToken:  idToToken,
		byteDecode: byteLevelAlphabet(),
	}, nil
}

// Decode converts a sequence of token ids to text, stripping special
// tokens and collapsing the byte-level BPE alphabet back to UTF-8, per
// §4.8 step 1 ("detokenize to Unicode text; strip special tokens").
func (t *Tokenizer) Decode(ids []int64) string {
	var raw []byte
	for _, id := range ids {
		if isSpecialToken(id) {
			continue
		}
		tok, ok := t.idToToken[id]
		if !ok {
			continue
		}
		for _, r := range tok {
			if b, ok := t.byteDecode[r]; ok {
				raw = append(raw, b)
			}
		}
	}
	text := string(raw)
	text = strings.ReplaceAll(text, "Ġ", " ") // leading-space marker, if not pre-mapped
	return collapseWhitespace(strings.TrimSpace(text))
}

// collapseWhitespace collapses runs of whitespace to a single space, the
// remainder of §4.8 step 1.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// byteLevelAlphabet builds GPT-2's byte<->unicode bijection: printable
// Latin-1 bytes map to themselves, the rest map to code points starting at
// 256, so every byte has a printable single-rune representation in the
// vocabulary.
func byteLevelAlphabet() map[rune]byte {
	decode := make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		printable := (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
		if printable {
			decode[rune(b)] = byte(b)
		} else {
			decode[rune(256+n)] = byte(b)
			n++
		}
	}
	return decode
}
