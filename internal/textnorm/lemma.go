package textnorm

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
)

var (
	//go:embed data/lemmas.csv
	lemmaExceptionsData []byte
	//go:embed data/lexicon.txt
	lexiconData []byte
)

// Noun suffix substitutions, tried in order against the lexicon.
var nounRules = [...][2]string{
	{"s", ""},
	{"ses", "s"},
	{"ves", "f"},
	{"xes", "x"},
	{"zes", "z"},
	{"ches", "ch"},
	{"shes", "sh"},
	{"men", "man"},
	{"ies", "y"},
}

// Lemmatizer reduces nouns to their dictionary form. Lookup order is the
// exception table, the lexicon (the word itself, then each suffix rule), and
// finally a conservative plural stripper for words the lexicon does not know.
//
// Every returned lemma is a fixed point: Lemma(Lemma(w)) == Lemma(w).
// A Lemmatizer is read-only after construction.
type Lemmatizer struct {
	exceptions map[string]string
	lexicon    map[string]struct{}
}

// DefaultLemmatizer builds a Lemmatizer from the embedded tables.
func DefaultLemmatizer() *Lemmatizer {
	return NewLemmatizer(parseExceptions(lemmaExceptionsData), parseWordList(lexiconData))
}

// NewLemmatizer builds a Lemmatizer from an exception map (inflected form to
// lemma) and a lexicon of known base forms. Exception targets are added to
// the lexicon.
func NewLemmatizer(exceptions map[string]string, lexicon []string) *Lemmatizer {
	l := &Lemmatizer{
		exceptions: make(map[string]string, len(exceptions)),
		lexicon:    make(map[string]struct{}, len(lexicon)+len(exceptions)),
	}
	for _, w := range lexicon {
		l.lexicon[w] = struct{}{}
	}
	for from, to := range exceptions {
		l.exceptions[from] = to
		l.lexicon[to] = struct{}{}
	}
	// A lexicon entry that is also an exception key would not be stable.
	for from := range l.exceptions {
		delete(l.lexicon, from)
	}
	return l
}

// Lemma returns the lemma of a lowercase word.
func (l *Lemmatizer) Lemma(word string) string {
	if lemma, ok := l.exceptions[word]; ok {
		return lemma
	}
	if l.known(word) {
		return word
	}
	for _, r := range nounRules {
		if base, ok := strings.CutSuffix(word, r[0]); ok && base != "" {
			if cand := base + r[1]; l.known(cand) {
				return cand
			}
		}
	}
	cand := stripPlural(word)
	if cand == word {
		return word
	}
	// Only accept a guess that is itself stable, so lemmatizing twice is a no-op.
	if l.Lemma(cand) != cand {
		return word
	}
	return cand
}

func (l *Lemmatizer) known(w string) bool {
	_, ok := l.lexicon[w]
	return ok
}

// stripPlural removes a regular English plural ending. It never touches
// short words or endings that are usually singular (-ss, -us, -is, -ous).
func stripPlural(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"),
		strings.HasSuffix(w, "shes"),
		strings.HasSuffix(w, "ches") && len(w) > 6,
		strings.HasSuffix(w, "xes"):
		return w[:len(w)-2]
	case len(w) >= 4 && strings.HasSuffix(w, "s"):
		for _, keep := range []string{"ss", "us", "is", "ous"} {
			if strings.HasSuffix(w, keep) {
				return w
			}
		}
		return w[:len(w)-1]
	}
	return w
}

func parseExceptions(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		from, to, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		out[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return out
}

func parseWordList(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
