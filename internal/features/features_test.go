package features

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

func TestTerms(t *testing.T) {
	t.Parallel()

	got := Terms("This is a sample_text, with 42 numbers & a b!")
	want := []string{"this", "is", "sample_text", "with", "42", "numbers"}
	if !slices.Equal(got, want) {
		t.Fatalf("Terms = %q, want %q", got, want)
	}
}

func TestTFIDF(t *testing.T) {
	t.Parallel()

	docs := []string{"This is a sample text", "Another example text"}
	v := NewTFIDF(0)
	rows := v.FitTransform(docs)

	names := v.FeatureNames()
	want := []string{"another", "example", "is", "sample", "text", "this"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %q, want %q", names, want)
	}

	// "text" is in both documents: idf = ln(3/3)+1 = 1; others ln(3/2)+1.
	idf := v.IDF()
	if idf[4] != 1 {
		t.Fatalf("idf[text] = %v, want 1", idf[4])
	}
	if math.Abs(idf[0]-(math.Log(1.5)+1)) > 1e-12 {
		t.Fatalf("idf[another] = %v", idf[0])
	}

	for i, r := range rows {
		var norm float64
		for _, x := range r {
			norm += x * x
		}
		if math.Abs(norm-1) > 1e-12 {
			t.Fatalf("row %d norm = %v", i, norm)
		}
	}
	if rows[0][0] != 0 || rows[1][0] == 0 {
		t.Fatalf("rows = %v", rows)
	}

	out := v.Transform([]string{"unseen words only"})
	for _, x := range out[0] {
		if x != 0 {
			t.Fatalf("unseen row = %v", out[0])
		}
	}
}

func TestTFIDFMaxFeatures(t *testing.T) {
	t.Parallel()

	v := NewTFIDF(2)
	v.Fit([]string{"bb aa aa cc", "cc dd", "aa"})
	// aa:3 cc:2 bb:1 dd:1
	if got := v.FeatureNames(); !slices.Equal(got, []string{"aa", "cc"}) {
		t.Fatalf("names = %q", got)
	}

	v = NewTFIDF(2)
	v.Fit([]string{"zz yy xx"})
	if got := v.FeatureNames(); !slices.Equal(got, []string{"xx", "yy"}) {
		t.Fatalf("tie break names = %q", got)
	}
}

func TestScaler(t *testing.T) {
	t.Parallel()

	rows := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}
	if s.Mean[0] != 3 || s.Scale[1] != 1 {
		t.Fatalf("scaler = %+v", s)
	}
	if err := s.Transform(rows); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	var sum, sq float64
	for _, r := range rows {
		sum += r[0]
		sq += r[0] * r[0]
		if r[1] != 0 {
			t.Fatalf("constant column = %v", r[1])
		}
	}
	if math.Abs(sum) > 1e-12 || math.Abs(sq/3-1) > 1e-12 {
		t.Fatalf("column 0 mean=%v var=%v", sum/3, sq/3)
	}

	if _, err := FitScaler([][]float64{{1}, {1, 2}}); err == nil {
		t.Fatalf("expected ragged error")
	}
	if err := s.Transform([][]float64{{1}}); err == nil {
		t.Fatalf("expected width error")
	}
}

type lenEmbedder struct{ fail string }

func (e lenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == e.fail {
		return nil, errors.New("boom")
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestGenerator(t *testing.T) {
	t.Parallel()

	texts := []string{"stock market news", "game score", "market game"}
	g := &Generator{Embedder: lenEmbedder{}, Workers: 2, Scale: true}
	res, err := g.Generate(context.Background(), texts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantNames := []string{"game", "market", "news", "score", "stock", "embedding_0", "embedding_1"}
	if !slices.Equal(res.Names, wantNames) {
		t.Fatalf("names = %q", res.Names)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %d", len(res.Rows))
	}
	for i, r := range res.Rows {
		if len(r) != len(wantNames) {
			t.Fatalf("row %d width = %d", i, len(r))
		}
		// embedding_1 is constant, so it scales to zero.
		if r[6] != 0 {
			t.Fatalf("row %d embedding_1 = %v", i, r[6])
		}
	}

	g.Embedder = lenEmbedder{fail: "game score"}
	if _, err := g.Generate(context.Background(), texts); err == nil {
		t.Fatalf("expected embed error")
	}

	plain := &Generator{}
	res, err = plain.Generate(context.Background(), texts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Names) != 5 {
		t.Fatalf("names = %q", res.Names)
	}
}
