package model

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samcharles93/textcat/internal/tensor"
)

// Config is the subset of a HuggingFace BERT config.json used by the encoder.
type Config struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	VocabSize             int     `json:"vocab_size"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	HiddenAct             string  `json:"hidden_act"`
	PadTokenID            int     `json:"pad_token_id"`

	NumLabels int               `json:"num_labels"`
	ID2Label  map[string]string `json:"id2label"`
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	if cfg.TypeVocabSize == 0 {
		cfg.TypeVocabSize = 2
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-12
	}
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("config: hidden_size must be positive")
	case c.NumHiddenLayers <= 0:
		return fmt.Errorf("config: num_hidden_layers must be positive")
	case c.NumAttentionHeads <= 0:
		return fmt.Errorf("config: num_attention_heads must be positive")
	case c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("config: hidden_size %d not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("config: intermediate_size must be positive")
	case c.MaxPositionEmbeddings <= 0:
		return fmt.Errorf("config: max_position_embeddings must be positive")
	case c.VocabSize <= 0:
		return fmt.Errorf("config: vocab_size must be positive")
	}
	if _, err := activation(c.HiddenAct); err != nil {
		return err
	}
	return nil
}

// Labels returns id2label ordered by id, or nil when the config has none.
func (c *Config) Labels() []string {
	if len(c.ID2Label) == 0 {
		return nil
	}
	type entry struct {
		id    int
		label string
	}
	entries := make([]entry, 0, len(c.ID2Label))
	for k, v := range c.ID2Label {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		entries = append(entries, entry{id, v})
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.id - b.id })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.label
	}
	return out
}

func activation(name string) (func(float32) float32, error) {
	switch strings.ToLower(name) {
	case "gelu":
		return tensor.GELU, nil
	case "gelu_new", "gelu_pytorch_tanh", "gelu_fast":
		return tensor.GELUTanh, nil
	case "relu":
		return tensor.ReLU, nil
	default:
		return nil, fmt.Errorf("config: unsupported hidden_act %q", name)
	}
}
