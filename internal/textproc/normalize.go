package textproc

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
)

// ReplacePair is one active substitution, in dictionary insertion order.
type ReplacePair struct {
	Source string
	Target string
}

// ExtractUnicodeEmojis returns every emoji occurrence in the text, in order,
// keeping repetition ("😂😂" yields two entries).
func ExtractUnicodeEmojis(text string) []string {
	found := gomoji.CollectAll(text)
	if len(found) == 0 {
		return nil
	}
	out := make([]string, 0, len(found))
	for _, e := range found {
		out = append(out, e.Character)
	}
	return out
}

// StripEmojis removes all unicode emojis from the text.
func StripEmojis(text string) string {
	return gomoji.RemoveEmojis(text)
}

// StripEmotes removes every occurrence of the given emote shortcodes
// (":_name:" style tokens) from the text.
func StripEmotes(text string, emoteNames []string) string {
	for _, name := range emoteNames {
		if name == "" {
			continue
		}
		text = strings.ReplaceAll(text, name, "")
	}
	return text
}

// Replacer applies the replace dictionary with longest-match-first greedy
// substitution. When several sources match at the same position the longest
// wins; equal lengths fall back to dictionary insertion order.
type Replacer struct {
	pairs []ReplacePair // sorted: longest source first, stable
}

func NewReplacer(pairs []ReplacePair) *Replacer {
	sorted := make([]ReplacePair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Source) > len(sorted[j].Source)
	})
	return &Replacer{pairs: sorted}
}

// Replace scans the text left to right, substituting the first (longest)
// matching source at each position. Replaced text is not rescanned.
func (r *Replacer) Replace(text string) string {
	if len(r.pairs) == 0 || text == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		matched := false
		for _, p := range r.pairs {
			if p.Source != "" && strings.HasPrefix(text[i:], p.Source) {
				b.WriteString(p.Target)
				i += len(p.Source)
				matched = true
				break
			}
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
		}
	}
	return b.String()
}

// NormalizeWhitespace folds full-width ASCII (U+FF01..U+FF5E) to its
// half-width form, turns ideographic space (U+3000) into a regular space,
// collapses whitespace runs and trims.
func NormalizeWhitespace(text string) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case r >= 0xFF01 && r <= 0xFF5E:
			return r - 0xFEE0
		case r == 0x3000:
			return ' '
		}
		return r
	}, text)
	return strings.Join(strings.Fields(folded), " ")
}
