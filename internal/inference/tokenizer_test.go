package inference

import "testing"

func TestByteLevelAlphabetCoversAllBytes(t *testing.T) {
	decode := byteLevelAlphabet()
	seen := make(map[byte]bool, 256)
	for _, b := range decode {
		seen[b] = true
	}
	if len(seen) != 256 {
		t.Fatalf("alphabet covers %d distinct bytes, want 256", len(seen))
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("hello   world\tfoo")
	if got != "hello world foo" {
		t.Errorf("collapseWhitespace = %q", got)
	}
}

func TestTokenizerDecodeSkipsSpecialTokens(t *testing.T) {
	tok := &Tokenizer{
		idToToken: map[int64]string{
			1:         "hello",
			2:         "world",
			TokenEOT:  "<|endoftext|>",
		},
		byteDecode: identityByteDecode("hello" + "world"),
	}
	got := tok.Decode([]int64{1, 2, TokenEOT})
	if got != "helloworld" {
		t.Errorf("Decode = %q, want %q", got, "helloworld")
	}
}

// identityByteDecode builds a byteDecode map that maps each rune in s to
// its own byte value, for tests that bypass the real GPT-2 alphabet.
func identityByteDecode(s string) map[rune]byte {
	m := make(map[rune]byte)
	for _, r := range s {
		m[r] = byte(r)
	}
	return m
}
