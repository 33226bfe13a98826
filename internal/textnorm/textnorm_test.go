package textnorm

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeSampleSentence(t *testing.T) {
	t.Parallel()
	n := New()
	got, err := n.Normalize("This is a sample text with numbers 123 and special characters!@#")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "sample text number special character"; got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeCases(t *testing.T) {
	t.Parallel()
	n := New()
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   \t\n ", ""},
		{"the and of", ""},
		{"1234 !!! ???", ""},
		{"Children played with the wolves", "child played wolf"},
		{"Café Résumé", "caf rsum"},
		{"multiple     spaces\there", "multiple space"},
		{"Glasses boxes churches studies", "glass box church study"},
		{"The news about physics", "news physics"},
		{"movies cookies", "movie cookie"},
		{"foo\u2028bar", "foo bar"},
		{"foo\u0085bar", "foo bar"},
		{"foo\u00a0bar\u3000baz", "foo bar baz"},
	}
	for _, tt := range tests {
		got, err := n.Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	n := New()
	corpus := []string{
		"This is a sample text with numbers 123 and special characters!@#",
		"Breaking NEWS: Stocks rallied as investors cheered earnings reports.",
		"The quick brown foxes jumped over the lazy dogs' houses.",
		"Analyses of crises, theses and hypotheses",
		"hes shes its yours",
		"Ｆｕｌｌｗｉｄｔｈ letters and non-breaking spaces",
		"knives leaves lives selves wives",
		"buses gases quizzes taxes indexes",
		"ties lies dies pies species series",
		"aaaaas sss ss s",
		"line\u2028separator next\u0085line",
	}
	for _, in := range corpus {
		once, err := n.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := n.Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.Contains(once, "  ") || strings.TrimSpace(once) != once {
			t.Fatalf("bad spacing in %q", once)
		}
	}
}

func TestNormalizeInvalidUTF8(t *testing.T) {
	t.Parallel()
	_, err := New().Normalize("bad \xff\xfe bytes")
	if !errors.Is(err, ErrNormalizationFailed) {
		t.Fatalf("expected ErrNormalizationFailed, got %v", err)
	}
}

func TestNormalizeBatchKeepsOrderAndErrors(t *testing.T) {
	t.Parallel()
	res := New().NormalizeBatch([]string{"Dogs barking", "\xff", ""})
	if len(res) != 3 {
		t.Fatalf("got %d results, want 3", len(res))
	}
	if res[0].Err != nil || res[0].Text != "dog barking" {
		t.Fatalf("item 0 = %+v", res[0])
	}
	if !errors.Is(res[1].Err, ErrNormalizationFailed) {
		t.Fatalf("item 1 error = %v", res[1].Err)
	}
	if res[2].Err != nil || res[2].Text != "" {
		t.Fatalf("item 2 = %+v", res[2])
	}
}

func TestWithStopwords(t *testing.T) {
	t.Parallel()
	n := New(WithStopwords("Sports", " game "))
	got, err := n.Normalize("sports games tonight")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	// "games" lemmatizes to "game", which is then dropped as a stopword.
	if got != "tonight" {
		t.Fatalf("Normalize() = %q, want tonight", got)
	}
}

func TestStopwordListSize(t *testing.T) {
	t.Parallel()
	if got := len(parseWordList(stopwordData)); got != 179 {
		t.Fatalf("embedded stopwords = %d, want 179", got)
	}
}
