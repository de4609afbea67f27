package textproc

import (
	"fmt"
	"strings"

	"github.com/go-ego/gse"
)

// specialWordFreq makes user-dictionary entries win over the segmenter's
// built-in vocabulary.
const specialWordFreq = 100.0

// Tokenizer wraps the Chinese segmenter with the active user dictionary.
// Construction loads the embedded dictionary, so build one per dictionary
// snapshot and reuse it across a batch.
type Tokenizer struct {
	seg         gse.Segmenter
	meaningless map[string]struct{}
}

// NewTokenizer loads the default segmenter dictionary, registers the special
// words as preferred multi-character tokens and records the stop-list.
func NewTokenizer(specialWords, meaninglessWords []string) (*Tokenizer, error) {
	t := &Tokenizer{
		meaningless: make(map[string]struct{}, len(meaninglessWords)),
	}
	if err := t.seg.LoadDict(); err != nil {
		return nil, fmt.Errorf("failed to load segmenter dictionary: %w", err)
	}
	for _, w := range specialWords {
		if w == "" {
			continue
		}
		if err := t.seg.AddToken(w, specialWordFreq); err != nil {
			return nil, fmt.Errorf("failed to add special word %q: %w", w, err)
		}
	}
	for _, w := range meaninglessWords {
		t.meaningless[w] = struct{}{}
	}
	return t, nil
}

// Tokenize segments the normalized text, dropping whitespace tokens and
// stop-list words while keeping order and repetition.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var tokens []string
	for _, tok := range t.seg.Cut(text, true) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, stop := t.meaningless[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
