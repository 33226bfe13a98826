package tokenizer

// Config holds the WordPiece settings shared by the tokenizer.json and
// vocab.txt loaders.
type Config struct {
	UnkToken                string
	ClsToken                string
	SepToken                string
	PadToken                string
	MaskToken               string
	ContinuingSubwordPrefix string
	MaxInputCharsPerWord    int
	DoLowerCase bool
	// StripAccents removes combining marks after NFD decomposition.
	// tokenizer.json files that leave it unset follow DoLowerCase.
	StripAccents bool
	// HandleChineseChars surrounds CJK ideographs with spaces.
	HandleChineseChars bool
}

// DefaultConfig matches bert-base-uncased.
func DefaultConfig() Config {
	return Config{
		UnkToken:                "[UNK]",
		ClsToken:                "[CLS]",
		SepToken:                "[SEP]",
		PadToken:                "[PAD]",
		MaskToken:               "[MASK]",
		ContinuingSubwordPrefix: "##",
		MaxInputCharsPerWord:    100,
		DoLowerCase:             true,
		StripAccents:            true,
		HandleChineseChars:      true,
	}
}
