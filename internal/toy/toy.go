// Package toy writes tiny randomly initialised BERT classifiers to disk.
// They exercise the full load and inference path in tests, smoke runs and
// benchmarks without a downloaded checkpoint.
package toy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samcharles93/textcat/internal/safetensors"
	"github.com/samcharles93/textcat/internal/tensor"
)

// Spec describes the toy model shape.
type Spec struct {
	Hidden       int
	Layers       int
	Heads        int
	Intermediate int
	MaxPositions int
	Labels       []string
	// Words are added to the vocabulary after the special tokens and the
	// single-letter pieces that guarantee every lowercase word is encodable.
	Words []string
	// Prefix is the encoder tensor prefix, "transformer." or "bert.".
	Prefix string
	// Pooled adds pooler weights so the checkpoint loads as a pooled head.
	Pooled      bool
	HiddenAct   string
	Seed        int64
	WeightScale float32
}

// DefaultSpec returns a two-layer model small enough for unit tests.
func DefaultSpec() Spec {
	return Spec{
		Hidden:       16,
		Layers:       2,
		Heads:        2,
		Intermediate: 32,
		MaxPositions: 64,
		Labels:       []string{"business", "sports", "technology"},
		Words: []string{
			"the", "game", "team", "score", "match", "player", "market", "stock",
			"price", "company", "bank", "computer", "software", "phone", "network",
			"data", "sample", "text", "number", "special", "character",
		},
		Prefix:      "transformer.",
		HiddenAct:   "gelu",
		Seed:        42,
		WeightScale: 0.2,
	}
}

// Tensor is a named float32 tensor.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Paths are the files written by Write.
type Paths struct {
	Checkpoint string
	Config     string
	Vocab      string
}

// Vocab returns the token list; line i of vocab.txt is token id i.
func Vocab(s Spec) []string {
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"}
	for c := 'a'; c <= 'z'; c++ {
		vocab = append(vocab, string(c))
	}
	for c := 'a'; c <= 'z'; c++ {
		vocab = append(vocab, "##"+string(c))
	}
	seen := make(map[string]bool, len(vocab))
	for _, v := range vocab {
		seen[v] = true
	}
	for _, w := range s.Words {
		if !seen[w] {
			seen[w] = true
			vocab = append(vocab, w)
		}
	}
	return vocab
}

// Tensors generates the checkpoint tensors for s deterministically from s.Seed.
func Tensors(s Spec) []Tensor {
	h := s.Hidden
	vocab := len(Vocab(s))
	seed := s.Seed
	var out []Tensor
	rnd := func(name string, shape ...int) {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float32, n)
		seed++
		tensor.FillRandVec(data, seed, s.WeightScale)
		out = append(out, Tensor{Name: name, Shape: shape, Data: data})
	}
	fill := func(name string, v float32, n int) {
		data := make([]float32, n)
		for i := range data {
			data[i] = v
		}
		out = append(out, Tensor{Name: name, Shape: []int{n}, Data: data})
	}
	linear := func(base string, outDim, inDim int) {
		rnd(base+".weight", outDim, inDim)
		rnd(base+".bias", outDim)
	}
	norm := func(base string) {
		fill(base+".weight", 1, h)
		fill(base+".bias", 0, h)
	}

	p := s.Prefix
	rnd(p+"embeddings.word_embeddings.weight", vocab, h)
	rnd(p+"embeddings.position_embeddings.weight", s.MaxPositions, h)
	rnd(p+"embeddings.token_type_embeddings.weight", 2, h)
	norm(p + "embeddings.LayerNorm")
	for i := range s.Layers {
		l := fmt.Sprintf("%sencoder.layer.%d.", p, i)
		linear(l+"attention.self.query", h, h)
		linear(l+"attention.self.key", h, h)
		linear(l+"attention.self.value", h, h)
		linear(l+"attention.output.dense", h, h)
		norm(l + "attention.output.LayerNorm")
		linear(l+"intermediate.dense", s.Intermediate, h)
		linear(l+"output.dense", h, s.Intermediate)
		norm(l + "output.LayerNorm")
	}
	if s.Pooled {
		linear(p+"pooler.dense", h, h)
	}
	linear("classifier", len(s.Labels), h)
	return out
}

// WriteCheckpoint writes tensors as a safetensors file.
func WriteCheckpoint(path string, tensors []Tensor) error {
	w := safetensors.NewWriter()
	w.SetMetadata("format", "pt")
	for _, t := range tensors {
		if err := w.Add(t.Name, t.Shape, t.Data); err != nil {
			return err
		}
	}
	return w.WriteFile(path)
}

// ConfigJSON renders the HuggingFace config.json for s.
func ConfigJSON(s Spec) ([]byte, error) {
	id2label := make(map[string]string, len(s.Labels))
	for i, l := range s.Labels {
		id2label[strconv.Itoa(i)] = l
	}
	arch := "TransformerClassifier"
	if strings.HasPrefix(s.Prefix, "bert") {
		arch = "BertForSequenceClassification"
	}
	cfg := map[string]any{
		"model_type":              "bert",
		"architectures":           []string{arch},
		"hidden_size":             s.Hidden,
		"num_hidden_layers":       s.Layers,
		"num_attention_heads":     s.Heads,
		"intermediate_size":       s.Intermediate,
		"max_position_embeddings": s.MaxPositions,
		"type_vocab_size":         2,
		"vocab_size":              len(Vocab(s)),
		"layer_norm_eps":          1e-12,
		"hidden_act":              s.HiddenAct,
		"pad_token_id":            0,
		"num_labels":              len(s.Labels),
		"id2label":                id2label,
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// Write creates dir and writes model.safetensors, config.json and vocab.txt.
func Write(dir string, s Spec) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, err
	}
	paths := Paths{
		Checkpoint: filepath.Join(dir, "model.safetensors"),
		Config:     filepath.Join(dir, "config.json"),
		Vocab:      filepath.Join(dir, "vocab.txt"),
	}
	if err := WriteCheckpoint(paths.Checkpoint, Tensors(s)); err != nil {
		return Paths{}, fmt.Errorf("write checkpoint: %w", err)
	}
	cfg, err := ConfigJSON(s)
	if err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(paths.Config, cfg, 0o644); err != nil {
		return Paths{}, err
	}
	vocab := strings.Join(Vocab(s), "\n") + "\n"
	if err := os.WriteFile(paths.Vocab, []byte(vocab), 0o644); err != nil {
		return Paths{}, err
	}
	return paths, nil
}
