package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samcharles93/textcat/internal/tensor"
	"github.com/samcharles93/textcat/internal/tokenizer"
	"github.com/samcharles93/textcat/internal/toy"
)

func writeToy(t *testing.T, spec toy.Spec) toy.Paths {
	t.Helper()
	paths, err := toy.Write(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("toy.Write: %v", err)
	}
	return paths
}

func loadToy(t *testing.T, spec toy.Spec) (*Classifier, *tokenizer.WordPiece) {
	t.Helper()
	paths := writeToy(t, spec)
	c, err := Load(paths.Checkpoint, paths.Config, len(spec.Labels))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tok, err := tokenizer.LoadVocab(paths.Vocab, tokenizer.DefaultConfig())
	if err != nil {
		t.Fatalf("LoadVocab: %v", err)
	}
	return c, tok
}

// referenceLogits runs every position, padding included, with an additive
// attention mask, the way a batched framework implementation does.
func referenceLogits(c *Classifier, enc tokenizer.Encoded) []float32 {
	L := enc.Len()
	x := make([][]float32, L)
	for i := range L {
		row := make([]float32, c.hidden)
		for d := range row {
			row[d] = c.wordEmb.Row(enc.IDs[i])[d] + c.posEmb.Row(i)[d] + c.typeEmb.Row(enc.TypeIDs[i])[d]
		}
		tensor.LayerNorm(row, row, c.embNormW, c.embNormB, c.eps)
		x[i] = row
	}
	for li := range c.layers {
		l := &c.layers[li]
		q := make([][]float32, L)
		k := make([][]float32, L)
		v := make([][]float32, L)
		for i := range L {
			q[i] = make([]float32, c.hidden)
			k[i] = make([]float32, c.hidden)
			v[i] = make([]float32, c.hidden)
			tensor.Linear(q[i], l.wq, l.bq, x[i])
			tensor.Linear(k[i], l.wk, l.bk, x[i])
			tensor.Linear(v[i], l.wv, l.bv, x[i])
		}
		next := make([][]float32, L)
		for i := range L {
			ctx := make([]float32, c.hidden)
			for hd := range c.nHeads {
				lo, hi := hd*c.headDim, (hd+1)*c.headDim
				scores := make([]float32, L)
				for j := range L {
					var s float32
					for d := lo; d < hi; d++ {
						s += q[i][d] * k[j][d]
					}
					s /= float32(math.Sqrt(float64(c.headDim)))
					if enc.Mask[j] == 0 {
						s += -1e9
					}
					scores[j] = s
				}
				tensor.Softmax(scores)
				for j := range L {
					for d := lo; d < hi; d++ {
						ctx[d] += scores[j] * v[j][d]
					}
				}
			}
			attn := make([]float32, c.hidden)
			tensor.Linear(attn, l.wo, l.bo, ctx)
			tensor.Add(attn, x[i])
			tensor.LayerNorm(attn, attn, l.attnNormW, l.attnNormB, c.eps)
			inter := make([]float32, l.wIn.R)
			tensor.Linear(inter, l.wIn, l.bIn, attn)
			tensor.Apply(inter, c.act)
			out := make([]float32, c.hidden)
			tensor.Linear(out, l.wOut, l.bOut, inter)
			tensor.Add(out, attn)
			tensor.LayerNorm(out, out, l.outNormW, l.outNormB, c.eps)
			next[i] = out
		}
		x = next
	}
	feat := x[0]
	if c.Head == HeadPooled {
		pooled := make([]float32, c.hidden)
		tensor.Linear(pooled, c.poolerW, c.poolerB, feat)
		tensor.Apply(pooled, tensor.Tanh)
		feat = pooled
	}
	logits := make([]float32, c.classW.R)
	tensor.Linear(logits, c.classW, c.classB, feat)
	return logits
}

func assertClose(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("index %d: got %v want %v (all: %v vs %v)", i, got[i], want[i], got, want)
		}
	}
}

func TestClassifyMatchesFullPaddedPass(t *testing.T) {
	t.Parallel()
	for _, pooled := range []bool{false, true} {
		spec := toy.DefaultSpec()
		if pooled {
			spec.Prefix = "bert."
			spec.Pooled = true
		}
		c, tok := loadToy(t, spec)
		wantHead := HeadCLS
		if pooled {
			wantHead = HeadPooled
		}
		if c.Head != wantHead {
			t.Fatalf("head = %s, want %s", c.Head, wantHead)
		}

		for _, text := range []string{"", "the game", "stock market price network data sample"} {
			enc, err := tok.Encode(text, 24)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := c.Classify(enc)
			if err != nil {
				t.Fatalf("Classify(%q): %v", text, err)
			}
			assertClose(t, got, referenceLogits(c, enc), 1e-4)
		}
	}
}

func TestClassifyIgnoresPaddingLength(t *testing.T) {
	t.Parallel()
	c, tok := loadToy(t, toy.DefaultSpec())
	short, _ := tok.Encode("the team score", 8)
	long, _ := tok.Encode("the team score", 64)
	a, err := c.Classify(short)
	if err != nil {
		t.Fatalf("Classify short: %v", err)
	}
	b, err := c.Classify(long)
	if err != nil {
		t.Fatalf("Classify long: %v", err)
	}
	assertClose(t, a, b, 0)
}

func TestClassifyConcurrentDeterministic(t *testing.T) {
	t.Parallel()
	c, tok := loadToy(t, toy.DefaultSpec())
	enc, _ := tok.Encode("company bank stock", 16)
	want, err := c.Classify(enc)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	var wg sync.WaitGroup
	results := make([][]float32, 8)
	for i := range results {
		wg.Go(func() {
			results[i], _ = c.Classify(enc)
		})
	}
	wg.Wait()
	for _, got := range results {
		assertClose(t, got, want, 0)
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	t.Parallel()
	c, tok := loadToy(t, toy.DefaultSpec())

	tooLong, _ := tok.Encode(strings.Repeat("game ", 100), 128)
	badID := tokenizer.Encoded{IDs: []int{2, 99999, 3}, Mask: []int{1, 1, 1}, TypeIDs: []int{0, 0, 0}}
	gap := tokenizer.Encoded{IDs: []int{2, 0, 3}, Mask: []int{1, 0, 1}, TypeIDs: []int{0, 0, 0}}
	empty := tokenizer.Encoded{IDs: []int{0}, Mask: []int{0}, TypeIDs: []int{0}}

	for name, enc := range map[string]tokenizer.Encoded{"too long": tooLong, "bad id": badID, "mask gap": gap, "empty": empty} {
		if _, err := c.Classify(enc); !errors.Is(err, ErrInferenceFailed) {
			t.Fatalf("%s: expected ErrInferenceFailed, got %v", name, err)
		}
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	spec := toy.DefaultSpec()
	c, tok := loadToy(t, spec)
	enc, _ := tok.Encode("software phone", 16)
	emb, err := c.Embed(enc)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(emb) != spec.Hidden || c.HiddenSize() != spec.Hidden {
		t.Fatalf("embedding length %d, want %d", len(emb), spec.Hidden)
	}
	again, _ := c.Embed(enc)
	assertClose(t, emb, again, 0)
}

func TestLoadFailures(t *testing.T) {
	t.Parallel()
	spec := toy.DefaultSpec()
	paths := writeToy(t, spec)

	t.Run("missing checkpoint", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.safetensors"), paths.Config, 3)
		if !errors.Is(err, ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
	t.Run("missing config", func(t *testing.T) {
		_, err := Load(paths.Checkpoint, filepath.Join(t.TempDir(), "config.json"), 3)
		if !errors.Is(err, ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
	t.Run("label count mismatch", func(t *testing.T) {
		_, err := Load(paths.Checkpoint, paths.Config, 5)
		if !errors.Is(err, ErrModelLoad) || !strings.Contains(err.Error(), "categories") {
			t.Fatalf("expected label mismatch ErrModelLoad, got %v", err)
		}
	})
	t.Run("zero labels accepts checkpoint", func(t *testing.T) {
		c, err := Load(paths.Checkpoint, paths.Config, 0)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.NumLabels() != 3 {
			t.Fatalf("NumLabels = %d", c.NumLabels())
		}
	})
	t.Run("head hidden mismatch", func(t *testing.T) {
		tensors := toy.Tensors(spec)
		for i := range tensors {
			switch tensors[i].Name {
			case "classifier.weight":
				tensors[i].Shape = []int{3, spec.Hidden * 2}
				tensors[i].Data = make([]float32, 3*spec.Hidden*2)
			}
		}
		ckpt := filepath.Join(t.TempDir(), "bad.safetensors")
		if err := toy.WriteCheckpoint(ckpt, tensors); err != nil {
			t.Fatalf("WriteCheckpoint: %v", err)
		}
		_, err := Load(ckpt, paths.Config, 3)
		if !errors.Is(err, ErrModelLoad) || !strings.Contains(err.Error(), "hidden size") {
			t.Fatalf("expected hidden size ErrModelLoad, got %v", err)
		}
	})
	t.Run("missing layer tensor", func(t *testing.T) {
		var kept []toy.Tensor
		for _, tt := range toy.Tensors(spec) {
			if tt.Name != "transformer.encoder.layer.1.intermediate.dense.weight" {
				kept = append(kept, tt)
			}
		}
		ckpt := filepath.Join(t.TempDir(), "partial.safetensors")
		if err := toy.WriteCheckpoint(ckpt, kept); err != nil {
			t.Fatalf("WriteCheckpoint: %v", err)
		}
		_, err := Load(ckpt, paths.Config, 3)
		if !errors.Is(err, ErrModelLoad) || !strings.Contains(err.Error(), "layer 1") {
			t.Fatalf("expected missing tensor ErrModelLoad, got %v", err)
		}
	})
	t.Run("corrupt checkpoint", func(t *testing.T) {
		ckpt := filepath.Join(t.TempDir(), "corrupt.safetensors")
		if err := os.WriteFile(ckpt, []byte("garbage"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(ckpt, paths.Config, 3); !errors.Is(err, ErrModelLoad) {
			t.Fatalf("expected ErrModelLoad, got %v", err)
		}
	})
}

func TestLoadGammaBetaNames(t *testing.T) {
	t.Parallel()
	spec := toy.DefaultSpec()
	paths := writeToy(t, spec)
	tensors := toy.Tensors(spec)
	for i := range tensors {
		name := tensors[i].Name
		if strings.Contains(name, "LayerNorm.weight") {
			tensors[i].Name = strings.Replace(name, "LayerNorm.weight", "LayerNorm.gamma", 1)
		} else if strings.Contains(name, "LayerNorm.bias") {
			tensors[i].Name = strings.Replace(name, "LayerNorm.bias", "LayerNorm.beta", 1)
		}
	}
	ckpt := filepath.Join(t.TempDir(), "tf.safetensors")
	if err := toy.WriteCheckpoint(ckpt, tensors); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	if _, err := Load(ckpt, paths.Config, 3); err != nil {
		t.Fatalf("Load with gamma/beta names: %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig([]byte(`{"hidden_size":8,"num_hidden_layers":1,"num_attention_heads":2,
		"intermediate_size":16,"max_position_embeddings":32,"vocab_size":10,
		"id2label":{"1":"sports","0":"business","10":"world"}}`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.HiddenAct != "gelu" || cfg.TypeVocabSize != 2 || cfg.LayerNormEps != 1e-12 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	labels := cfg.Labels()
	if strings.Join(labels, ",") != "business,sports,world" {
		t.Fatalf("Labels = %v", labels)
	}

	bad := []string{
		`{`,
		`{"hidden_size":10,"num_hidden_layers":1,"num_attention_heads":3,"intermediate_size":4,"max_position_embeddings":4,"vocab_size":4}`,
		`{"hidden_size":8,"num_hidden_layers":1,"num_attention_heads":2,"intermediate_size":4,"max_position_embeddings":4,"vocab_size":4,"hidden_act":"swish"}`,
		`{"hidden_size":8}`,
	}
	for _, raw := range bad {
		if _, err := ParseConfig([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestDetectLayout(t *testing.T) {
	t.Parallel()
	set := func(names ...string) func(string) bool {
		return func(n string) bool {
			for _, x := range names {
				if x == n {
					return true
				}
			}
			return false
		}
	}
	tests := []struct {
		name   string
		has    func(string) bool
		prefix string
		head   HeadKind
		err    bool
	}{
		{"transformer cls", set("transformer.embeddings.word_embeddings.weight", "transformer.pooler.dense.weight", "classifier.weight"), "transformer.", HeadCLS, false},
		{"hf pooled", set("bert.embeddings.word_embeddings.weight", "bert.pooler.dense.weight", "classifier.weight"), "bert.", HeadPooled, false},
		{"bare cls", set("embeddings.word_embeddings.weight", "classifier.weight"), "", HeadCLS, false},
		{"no classifier", set("bert.embeddings.word_embeddings.weight"), "", "", true},
		{"no encoder", set("classifier.weight"), "", "", true},
	}
	for _, tt := range tests {
		names, head, err := detectLayout(tt.has)
		if (err != nil) != tt.err {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		if err == nil && (names.prefix != tt.prefix || head != tt.head) {
			t.Fatalf("%s: got prefix %q head %s", tt.name, names.prefix, head)
		}
	}
}
