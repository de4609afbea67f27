package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhitespaceFullWidth(t *testing.T) {
	assert.Equal(t, "12345", NormalizeWhitespace("１２３４５"))
	assert.Equal(t, "hello world", NormalizeWhitespace("　　ｈｅｌｌｏ　　ｗｏｒｌｄ　　"))
}

func TestNormalizeWhitespaceCollapsesRuns(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a \t b\n\nc  "))
	assert.Equal(t, "", NormalizeWhitespace("   　  "))
}

func TestReplacerLongestMatchWins(t *testing.T) {
	r := NewReplacer([]ReplacePair{
		{Source: "apple pie", Target: "Food"},
		{Source: "apple", Target: "Fruit"},
	})
	assert.Equal(t, "I like Food", r.Replace("I like apple pie"))
	assert.Equal(t, "I like Fruit", r.Replace("I like apple"))
}

func TestReplacerOrderIndependentOfInsertion(t *testing.T) {
	// Shorter key inserted first must still lose to the longer match.
	r := NewReplacer([]ReplacePair{
		{Source: "apple", Target: "Fruit"},
		{Source: "apple pie", Target: "Food"},
	})
	assert.Equal(t, "I like Food", r.Replace("I like apple pie"))
}

func TestReplacerDoesNotRescanReplacedText(t *testing.T) {
	r := NewReplacer([]ReplacePair{
		{Source: "ab", Target: "bc"},
		{Source: "bc", Target: "xx"},
	})
	assert.Equal(t, "bc", r.Replace("ab"))
}

func TestReplacerHandlesMultiByteText(t *testing.T) {
	r := NewReplacer([]ReplacePair{{Source: "眉姊姊", Target: "眉姐姐"}})
	assert.Equal(t, "眉姐姐真可愛", r.Replace("眉姊姊真可愛"))
}

func TestReplacerEmptyDictionary(t *testing.T) {
	r := NewReplacer(nil)
	assert.Equal(t, "unchanged", r.Replace("unchanged"))
}

func TestExtractUnicodeEmojisKeepsRepetition(t *testing.T) {
	emojis := ExtractUnicodeEmojis("哈哈😂😂好笑🤣")
	assert.Equal(t, []string{"😂", "😂", "🤣"}, emojis)
}

func TestExtractUnicodeEmojisNoEmoji(t *testing.T) {
	assert.Empty(t, ExtractUnicodeEmojis("plain text"))
}

func TestStripEmojis(t *testing.T) {
	assert.Equal(t, "哈哈好笑", StripEmojis("哈哈😂😂好笑🤣"))
}

func TestStripEmotes(t *testing.T) {
	got := StripEmotes("hi :_wave::_wave: there", []string{":_wave:"})
	assert.Equal(t, "hi  there", got)
}

func TestStripEmotesIgnoresEmptyNames(t *testing.T) {
	assert.Equal(t, "text", StripEmotes("text", []string{""}))
}
