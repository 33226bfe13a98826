package tokenizer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// WordPiece is a BERT tokenizer. It is immutable after construction and
// safe for concurrent use.
type WordPiece struct {
	cfg   Config
	vocab map[string]int
	inv   []string

	unkID int
	clsID int
	sepID int
	padID int
}

type hfTokenizerJSON struct {
	Model struct {
		Type                    string         `json:"type"`
		Vocab                   map[string]int `json:"vocab"`
		UnkToken                string         `json:"unk_token"`
		ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
		MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	} `json:"model"`
	Normalizer *struct {
		Type               string `json:"type"`
		Lowercase          *bool  `json:"lowercase"`
		StripAccents       *bool  `json:"strip_accents"`
		HandleChineseChars *bool  `json:"handle_chinese_chars"`
	} `json:"normalizer"`
	PostProcessor *struct {
		Type   string `json:"type"`
		Single []struct {
			SpecialToken *struct {
				ID string `json:"id"`
			} `json:"SpecialToken"`
			Sequence *struct {
				ID string `json:"id"`
			} `json:"Sequence"`
		} `json:"single"`
		Cls []any `json:"cls"`
		Sep []any `json:"sep"`
	} `json:"post_processor"`
	Padding *struct {
		PadToken string `json:"pad_token"`
	} `json:"padding"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// Load picks the loader by file name: *.json is a HuggingFace
// tokenizer.json, anything else is a vocab.txt with one token per line.
func Load(path string) (*WordPiece, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadHFTokenizer(path)
	}
	return LoadVocab(path, DefaultConfig())
}

func LoadHFTokenizer(path string) (*WordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenization, err)
	}
	return LoadHFTokenizerBytes(data)
}

func LoadHFTokenizerBytes(data []byte) (*WordPiece, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, fmt.Errorf("%w: parse tokenizer.json: %w", ErrTokenization, err)
	}
	if !strings.EqualFold(tj.Model.Type, "WordPiece") {
		return nil, fmt.Errorf("%w: unsupported tokenizer model %q", ErrTokenization, tj.Model.Type)
	}

	cfg := DefaultConfig()
	if tj.Model.UnkToken != "" {
		cfg.UnkToken = tj.Model.UnkToken
	}
	if tj.Model.ContinuingSubwordPrefix != nil {
		cfg.ContinuingSubwordPrefix = *tj.Model.ContinuingSubwordPrefix
	}
	if tj.Model.MaxInputCharsPerWord > 0 {
		cfg.MaxInputCharsPerWord = tj.Model.MaxInputCharsPerWord
	}
	if n := tj.Normalizer; n != nil {
		if n.Lowercase != nil {
			cfg.DoLowerCase = *n.Lowercase
		}
		cfg.StripAccents = cfg.DoLowerCase
		if n.StripAccents != nil {
			cfg.StripAccents = *n.StripAccents
		}
		if n.HandleChineseChars != nil {
			cfg.HandleChineseChars = *n.HandleChineseChars
		}
	}
	if tj.Padding != nil && tj.Padding.PadToken != "" {
		cfg.PadToken = tj.Padding.PadToken
	}
	if pp := tj.PostProcessor; pp != nil {
		switch pp.Type {
		case "TemplateProcessing":
			cls, sep := templateSpecials(pp.Single)
			if cls != "" {
				cfg.ClsToken = cls
			}
			if sep != "" {
				cfg.SepToken = sep
			}
		case "BertProcessing", "RobertaProcessing":
			if len(pp.Cls) > 0 {
				if s, ok := pp.Cls[0].(string); ok {
					cfg.ClsToken = s
				}
			}
			if len(pp.Sep) > 0 {
				if s, ok := pp.Sep[0].(string); ok {
					cfg.SepToken = s
				}
			}
		}
	}

	vocab := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	for tok, id := range tj.Model.Vocab {
		vocab[tok] = id
	}
	for _, at := range tj.AddedTokens {
		vocab[at.Content] = at.ID
	}
	return NewWordPiece(vocab, cfg)
}

// templateSpecials returns the special tokens placed before and after the
// first sequence of a single-sentence template.
func templateSpecials(single []struct {
	SpecialToken *struct {
		ID string `json:"id"`
	} `json:"SpecialToken"`
	Sequence *struct {
		ID string `json:"id"`
	} `json:"Sequence"`
}) (cls, sep string) {
	seenSeq := false
	for _, piece := range single {
		switch {
		case piece.Sequence != nil:
			seenSeq = true
		case piece.SpecialToken != nil && !seenSeq && cls == "":
			cls = piece.SpecialToken.ID
		case piece.SpecialToken != nil && seenSeq && sep == "":
			sep = piece.SpecialToken.ID
		}
	}
	return cls, sep
}

// LoadVocab reads a vocab.txt where line i holds the token with id i.
func LoadVocab(path string, cfg Config) (*WordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenization, err)
	}
	vocab := make(map[string]int)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	id := 0
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read vocab: %w", ErrTokenization, err)
	}
	return NewWordPiece(vocab, cfg)
}

// NewWordPiece builds a tokenizer from a token->id map. The unknown, CLS,
// SEP and PAD tokens named in cfg must be present.
func NewWordPiece(vocab map[string]int, cfg Config) (*WordPiece, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrTokenization)
	}
	maxID := -1
	for tok, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("%w: token %q has negative id %d", ErrTokenization, tok, id)
		}
		maxID = max(maxID, id)
	}
	inv := make([]string, maxID+1)
	for tok, id := range vocab {
		inv[id] = tok
	}
	t := &WordPiece{cfg: cfg, vocab: vocab, inv: inv}

	var missing []string
	lookup := func(tok string) int {
		id, ok := vocab[tok]
		if !ok {
			missing = append(missing, tok)
			return -1
		}
		return id
	}
	t.unkID = lookup(cfg.UnkToken)
	t.clsID = lookup(cfg.ClsToken)
	t.sepID = lookup(cfg.SepToken)
	t.padID = lookup(cfg.PadToken)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: vocabulary is missing special tokens %v", ErrTokenization, missing)
	}
	if cfg.MaxInputCharsPerWord <= 0 {
		t.cfg.MaxInputCharsPerWord = DefaultConfig().MaxInputCharsPerWord
	}
	return t, nil
}

// Tokenize splits text into WordPiece tokens without special tokens.
func (t *WordPiece) Tokenize(text string) []string {
	var out []string
	for _, word := range basicTokenize(text, t.cfg.DoLowerCase, t.cfg.StripAccents, t.cfg.HandleChineseChars) {
		out = t.wordPiece(out, word)
	}
	return out
}

// wordPiece appends the greedy longest-match-first split of word to dst.
func (t *WordPiece) wordPiece(dst []string, word string) []string {
	if utf8.RuneCountInString(word) > t.cfg.MaxInputCharsPerWord {
		return append(dst, t.cfg.UnkToken)
	}
	mark := len(dst)
	start := 0
	for start < len(word) {
		end := len(word)
		found := ""
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = t.cfg.ContinuingSubwordPrefix + sub
			}
			if _, ok := t.vocab[sub]; ok {
				found = sub
				break
			}
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if found == "" {
			return append(dst[:mark], t.cfg.UnkToken)
		}
		dst = append(dst, found)
		start = end
	}
	return dst
}

// Encode produces [CLS] tokens... [SEP] followed by [PAD] up to maxLength.
// Tokens beyond maxLength-2 are truncated.
func (t *WordPiece) Encode(text string, maxLength int) (enc Encoded, err error) {
	if maxLength < 2 {
		return Encoded{}, fmt.Errorf("%w: max length %d leaves no room for [CLS] and [SEP]", ErrTokenization, maxLength)
	}
	defer func() {
		if r := recover(); r != nil {
			enc = Encoded{}
			err = fmt.Errorf("%w: panic during encode: %v", ErrTokenization, r)
		}
	}()

	tokens := t.Tokenize(text)
	if len(tokens) > maxLength-2 {
		tokens = tokens[:maxLength-2]
	}

	enc = Encoded{
		IDs:     make([]int, maxLength),
		Mask:    make([]int, maxLength),
		TypeIDs: make([]int, maxLength),
	}
	enc.IDs[0] = t.clsID
	for i, tok := range tokens {
		id, ok := t.vocab[tok]
		if !ok {
			id = t.unkID
		}
		enc.IDs[i+1] = id
	}
	n := len(tokens) + 2
	enc.IDs[n-1] = t.sepID
	for i := range n {
		enc.Mask[i] = 1
	}
	for i := n; i < maxLength; i++ {
		enc.IDs[i] = t.padID
	}
	return enc, nil
}

// Decode joins tokens back into text, merging continuation pieces and
// skipping special tokens.
func (t *WordPiece) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id == t.clsID || id == t.sepID || id == t.padID {
			continue
		}
		tok := t.TokenString(id)
		if tok == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(tok, t.cfg.ContinuingSubwordPrefix); ok && t.cfg.ContinuingSubwordPrefix != "" {
			b.WriteString(rest)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func (t *WordPiece) TokenString(id int) string {
	if id < 0 || id >= len(t.inv) {
		return ""
	}
	return t.inv[id]
}

// TokenID returns the id of tok and whether it is in the vocabulary.
func (t *WordPiece) TokenID(tok string) (int, bool) {
	id, ok := t.vocab[tok]
	return id, ok
}

func (t *WordPiece) VocabSize() int { return len(t.inv) }
func (t *WordPiece) PadID() int     { return t.padID }
func (t *WordPiece) ClsID() int     { return t.clsID }
func (t *WordPiece) SepID() int     { return t.sepID }
func (t *WordPiece) UnkID() int     { return t.unkID }
func (t *WordPiece) Config() Config { return t.cfg }
