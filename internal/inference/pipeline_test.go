package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samcharles93/textcat/internal/config"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/model"
	"github.com/samcharles93/textcat/internal/textnorm"
	"github.com/samcharles93/textcat/internal/tokenizer"
	"github.com/samcharles93/textcat/internal/toy"
)

func loadToyPipeline(t *testing.T) *Loaded {
	t.Helper()
	spec := toy.DefaultSpec()
	paths, err := toy.Write(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("toy.Write: %v", err)
	}
	cfg := config.Default()
	cfg.Model.Checkpoint = paths.Checkpoint
	cfg.Model.Config = paths.Config
	cfg.Model.Tokenizer = paths.Vocab
	cfg.Model.MaxLength = 32
	cfg.Categories = spec.Labels
	cfg.Auth.Enabled = false
	cfg.Pipeline.Workers = 4

	l, err := Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l
}

func checkPrediction(t *testing.T, p Prediction, labels []string) {
	t.Helper()
	if len(p.Probabilities) != len(labels) {
		t.Fatalf("probabilities len = %d, want %d", len(p.Probabilities), len(labels))
	}
	sum := 0.0
	best := 0
	for i, v := range p.Probabilities {
		if v < 0 || v > 1 {
			t.Fatalf("probability[%d] = %v out of range", i, v)
		}
		sum += v
		if v > p.Probabilities[best] {
			best = i
		}
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("probabilities sum = %v, want 1", sum)
	}
	if p.Category != best {
		t.Fatalf("category = %d, want argmax %d", p.Category, best)
	}
	if p.Label != labels[p.Category] {
		t.Fatalf("label = %q, want %q", p.Label, labels[p.Category])
	}
	if p.Confidence != p.Probabilities[best] {
		t.Fatalf("confidence = %v, want %v", p.Confidence, p.Probabilities[best])
	}
}

func TestPredictToyModel(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	ctx := context.Background()

	p, err := l.Pipeline.Predict(ctx, "This is a SAMPLE text with numbers 123 and special characters @#$!")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	checkPrediction(t, p, l.Pipeline.Labels())
	if p.Normalized != "sample text number special character" {
		t.Fatalf("normalized = %q", p.Normalized)
	}
	// [CLS] + five whole-word tokens + [SEP]
	if p.Tokens != 7 {
		t.Fatalf("tokens = %d, want 7", p.Tokens)
	}
}

func TestPredictEmptyText(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	for _, text := range []string{"", "   ", "the and of", "!!!"} {
		p, err := l.Pipeline.Predict(context.Background(), text)
		if err != nil {
			t.Fatalf("Predict(%q): %v", text, err)
		}
		checkPrediction(t, p, l.Pipeline.Labels())
		if p.Normalized != "" || p.Tokens != 2 {
			t.Fatalf("Predict(%q): normalized=%q tokens=%d", text, p.Normalized, p.Tokens)
		}
	}
}

func TestPredictDeterministic(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	ctx := context.Background()
	text := "The team won the match with a late score"

	want, err := l.Pipeline.Predict(ctx, text)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 4 {
				got, err := l.Pipeline.Predict(ctx, text)
				if err != nil {
					t.Errorf("Predict: %v", err)
					return
				}
				if got.Category != want.Category {
					t.Errorf("category = %d, want %d", got.Category, want.Category)
					return
				}
				for i := range got.Probabilities {
					if got.Probabilities[i] != want.Probabilities[i] {
						t.Errorf("probability[%d] = %v, want %v", i, got.Probabilities[i], want.Probabilities[i])
						return
					}
				}
			}
		})
	}
	wg.Wait()
}

func TestPredictInvalidUTF8(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	_, err := l.Pipeline.Predict(context.Background(), "bad \xff byte")
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageNormalize {
		t.Fatalf("err = %v, want normalize StageError", err)
	}
	if !errors.Is(err, textnorm.ErrNormalizationFailed) {
		t.Fatalf("err = %v, want ErrNormalizationFailed", err)
	}
}

func TestPredictBatchToyModel(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	ctx := context.Background()
	texts := []string{
		"stock market prices fell",
		"bad \xff byte",
		"",
		"new phone software update",
		"the player scored",
	}
	items := l.Pipeline.PredictBatch(ctx, texts)
	if len(items) != len(texts) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(texts))
	}
	for i, it := range items {
		if i == 1 {
			if it.Err == nil || it.Prediction != nil {
				t.Fatalf("item 1 = %+v, want error", it)
			}
			continue
		}
		if it.Err != nil {
			t.Fatalf("item %d: %v", i, it.Err)
		}
		want, err := l.Pipeline.Predict(ctx, texts[i])
		if err != nil {
			t.Fatalf("Predict(%q): %v", texts[i], err)
		}
		if it.Prediction.Category != want.Category || it.Prediction.Confidence != want.Confidence {
			t.Fatalf("item %d = %+v, want %+v", i, *it.Prediction, want)
		}
	}

	if got := l.Pipeline.PredictBatch(ctx, nil); len(got) != 0 {
		t.Fatalf("empty batch len = %d", len(got))
	}
}

type fakeNorm struct{}

func (fakeNorm) Normalize(s string) (string, error) {
	if s == "panic" {
		panic("boom")
	}
	return s, nil
}

type fakeTok struct{}

func (fakeTok) Encode(text string, maxLength int) (tokenizer.Encoded, error) {
	if text == "tokfail" {
		return tokenizer.Encoded{}, fmt.Errorf("%w: forced", tokenizer.ErrTokenization)
	}
	enc := tokenizer.Encoded{
		IDs:     make([]int, maxLength),
		Mask:    make([]int, maxLength),
		TypeIDs: make([]int, maxLength),
	}
	enc.Mask[0], enc.Mask[1] = 1, 1
	return enc, nil
}

type fakeClf struct {
	out   []float32
	calls atomic.Int64
	delay time.Duration
}

func (f *fakeClf) Classify(enc tokenizer.Encoded) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return append([]float32(nil), f.out...), nil
}

type panicClf struct{}

func (panicClf) Classify(tokenizer.Encoded) ([]float32, error) { panic("nan everywhere") }

type failClf struct{}

func (failClf) Classify(tokenizer.Encoded) ([]float32, error) {
	return nil, fmt.Errorf("%w: forced", model.ErrInferenceFailed)
}

func newFake(t *testing.T, clf Classifier, labels ...string) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Normalizer: fakeNorm{},
		Tokenizer:  fakeTok{},
		Classifier: clf,
		Labels:     labels,
		MaxLength:  8,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestPredictStageErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name  string
		p     *Pipeline
		text  string
		stage Stage
		is    error
	}{
		{"normalize panic", newFake(t, &fakeClf{out: []float32{1, 2}}, "a", "b"), "panic", StageNormalize, nil},
		{"tokenize", newFake(t, &fakeClf{out: []float32{1, 2}}, "a", "b"), "tokfail", StageTokenize, tokenizer.ErrTokenization},
		{"classify error", newFake(t, failClf{}, "a", "b"), "x", StageClassify, model.ErrInferenceFailed},
		{"classify panic", newFake(t, panicClf{}, "a", "b"), "x", StageClassify, nil},
		{"label mismatch", newFake(t, &fakeClf{out: []float32{1, 2, 3}}, "a", "b"), "x", StageDecode, nil},
		{"non-finite", newFake(t, &fakeClf{out: []float32{float32(math.NaN()), 1}}, "a", "b"), "x", StageDecode, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Predict(ctx, tt.text)
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want StageError", err)
			}
			if se.Stage != tt.stage {
				t.Fatalf("stage = %s, want %s", se.Stage, tt.stage)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("err = %v, want %v", err, tt.is)
			}
			if !strings.HasPrefix(err.Error(), string(tt.stage)+": ") {
				t.Fatalf("message = %q", err.Error())
			}
		})
	}
}

func TestPredictTieBreaksLowestIndex(t *testing.T) {
	t.Parallel()

	p := newFake(t, &fakeClf{out: []float32{0.5, 2, 2}}, "a", "b", "c")
	got, err := p.Predict(context.Background(), "x")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.Category != 1 || got.Label != "b" {
		t.Fatalf("got %d/%q, want 1/b", got.Category, got.Label)
	}
}

func TestPredictBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	p := newFake(t, &fakeClf{out: []float32{0, 1}}, "a", "b")
	texts := []string{"x", "panic", "y", "tokfail", "z"}
	items := p.PredictBatch(context.Background(), texts)
	if len(items) != len(texts) {
		t.Fatalf("len = %d", len(items))
	}
	for i, it := range items {
		failed := texts[i] == "panic" || texts[i] == "tokfail"
		if failed != (it.Err != nil) {
			t.Fatalf("item %d (%q): err = %v", i, texts[i], it.Err)
		}
		if !failed && it.Prediction.Label != "b" {
			t.Fatalf("item %d label = %q", i, it.Prediction.Label)
		}
	}
}

func TestPredictBatchCanceled(t *testing.T) {
	t.Parallel()

	clf := &fakeClf{out: []float32{0, 1}}
	p := newFake(t, clf, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := p.PredictBatch(ctx, []string{"a", "b", "c"})
	if len(items) != 3 {
		t.Fatalf("len = %d", len(items))
	}
	for i, it := range items {
		if !errors.Is(it.Err, context.Canceled) {
			t.Fatalf("item %d err = %v, want context.Canceled", i, it.Err)
		}
	}
	if n := clf.calls.Load(); n != 0 {
		t.Fatalf("classifier called %d times", n)
	}
}

func TestPredictBatchRespectsWorkerLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	clf := &trackingClf{inFlight: &inFlight, peak: &peak}
	p := newFake(t, clf, "a", "b")

	items := p.PredictBatch(context.Background(), make([]string, 12))
	for i, it := range items {
		if it.Err != nil {
			t.Fatalf("item %d: %v", i, it.Err)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

type trackingClf struct {
	inFlight, peak *atomic.Int64
}

func (c *trackingClf) Classify(tokenizer.Encoded) ([]float32, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return []float32{1, 0}, nil
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	base := Options{
		Normalizer: fakeNorm{},
		Tokenizer:  fakeTok{},
		Classifier: &fakeClf{},
		Labels:     []string{"a"},
		MaxLength:  4,
	}
	mutate := []func(*Options){
		func(o *Options) { o.Normalizer = nil },
		func(o *Options) { o.Tokenizer = nil },
		func(o *Options) { o.Classifier = nil },
		func(o *Options) { o.Labels = nil },
		func(o *Options) { o.MaxLength = 1 },
	}
	for i, m := range mutate {
		o := base
		m(&o)
		if _, err := New(o); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	p, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Workers() < 1 {
		t.Fatalf("workers = %d", p.Workers())
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	l := loadToyPipeline(t)
	v, err := l.Pipeline.Embed(context.Background(), "computer network data")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != l.Classifier.HiddenSize() {
		t.Fatalf("len = %d, want %d", len(v), l.Classifier.HiddenSize())
	}

	p := newFake(t, &fakeClf{out: []float32{1}}, "a")
	if _, err := p.Embed(context.Background(), "x"); !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("err = %v, want ErrNoEmbedder", err)
	}
}

func TestLoadRejectsMaxLengthBeyondPositions(t *testing.T) {
	t.Parallel()

	spec := toy.DefaultSpec()
	paths, err := toy.Write(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("toy.Write: %v", err)
	}
	cfg := config.Default()
	cfg.Model.Checkpoint = paths.Checkpoint
	cfg.Model.Config = paths.Config
	cfg.Model.Tokenizer = paths.Vocab
	cfg.Model.MaxLength = spec.MaxPositions + 1
	cfg.Categories = spec.Labels
	cfg.Auth.Enabled = false

	if _, err := Load(context.Background(), cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}

	cfg.Model.MaxLength = 16
	cfg.Categories = []string{"only", "two"}
	if _, err := Load(context.Background(), cfg); !errors.Is(err, model.ErrModelLoad) {
		t.Fatalf("err = %v, want ErrModelLoad", err)
	}
}

func TestLabelsDiffer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		stored, configured []string
		want               bool
	}{
		{nil, []string{"a", "b"}, false},
		{[]string{"LABEL_0", "LABEL_1"}, []string{"a", "b"}, false},
		{[]string{"a", "b"}, []string{"a", "b"}, false},
		{[]string{"a", "b"}, []string{"b", "a"}, true},
		{[]string{"a", "b"}, []string{"a", "c"}, true},
	}
	for _, tt := range tests {
		if got := labelsDiffer(tt.stored, tt.configured); got != tt.want {
			t.Fatalf("labelsDiffer(%q, %q) = %v, want %v", tt.stored, tt.configured, got, tt.want)
		}
	}
}

func TestLoadWarnsOnReorderedCategories(t *testing.T) {
	t.Parallel()

	spec := toy.DefaultSpec()
	paths, err := toy.Write(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("toy.Write: %v", err)
	}
	cfg := config.Default()
	cfg.Model.Checkpoint = paths.Checkpoint
	cfg.Model.Config = paths.Config
	cfg.Model.Tokenizer = paths.Vocab
	cfg.Model.MaxLength = 16
	cfg.Auth.Enabled = false

	load := func(categories []string) string {
		var buf bytes.Buffer
		ctx := logger.WithContext(context.Background(), logger.Text(&buf, slog.LevelWarn))
		cfg.Categories = categories
		if _, err := Load(ctx, cfg); err != nil {
			t.Fatalf("Load(%q): %v", categories, err)
		}
		return buf.String()
	}

	if out := load(spec.Labels); out != "" {
		t.Fatalf("unexpected warning for matching categories: %s", out)
	}
	reordered := []string{spec.Labels[1], spec.Labels[0], spec.Labels[2]}
	if out := load(reordered); !strings.Contains(out, "id2label") {
		t.Fatalf("expected an id2label warning, got %q", out)
	}
}
