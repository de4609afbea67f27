package textproc

// Result carries the stage outputs for one message.
type Result struct {
	ProcessedText string
	Tokens        []string
	UnicodeEmojis []string
}

// Processor runs the normalization pipeline over raw chat text with one
// dictionary snapshot. The step order is fixed: emojis are extracted from
// the raw text, the replace dictionary is applied, then emojis and emote
// shortcodes are stripped, whitespace is normalized and the remainder is
// tokenized.
type Processor struct {
	replacer  *Replacer
	tokenizer *Tokenizer
}

// NewProcessor builds a processor over one dictionary snapshot.
func NewProcessor(replace []ReplacePair, specialWords, meaninglessWords []string) (*Processor, error) {
	tokenizer, err := NewTokenizer(specialWords, meaninglessWords)
	if err != nil {
		return nil, err
	}
	return &Processor{
		replacer:  NewReplacer(replace),
		tokenizer: tokenizer,
	}, nil
}

// Process normalizes and tokenizes one message. emoteNames are the channel
// emote shortcodes present in the message, as recorded at ingest time.
func (p *Processor) Process(rawText string, emoteNames []string) Result {
	emojis := ExtractUnicodeEmojis(rawText)

	text := p.replacer.Replace(rawText)
	text = StripEmojis(text)
	text = StripEmotes(text, emoteNames)
	text = NormalizeWhitespace(text)

	return Result{
		ProcessedText: text,
		Tokens:        p.tokenizer.Tokenize(text),
		UnicodeEmojis: emojis,
	}
}
