package dataset

import "fmt"

type ClassReport struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes predictions against expected labels.
type Report struct {
	Total    int           `json:"total"`
	Correct  int           `json:"correct"`
	Accuracy float64       `json:"accuracy"`
	MacroF1  float64       `json:"macro_f1"`
	Classes  []ClassReport `json:"classes"`
	// Confusion[expected][predicted] counts.
	Confusion [][]int `json:"confusion"`
}

// NewReport builds a report over label ids in [0, len(labels)).
func NewReport(labels []string, expected, predicted []int) (Report, error) {
	if len(expected) != len(predicted) {
		return Report{}, fmt.Errorf("expected %d labels but got %d predictions", len(expected), len(predicted))
	}
	k := len(labels)
	conf := make([][]int, k)
	for i := range conf {
		conf[i] = make([]int, k)
	}
	r := Report{Total: len(expected), Confusion: conf}
	for i := range expected {
		e, p := expected[i], predicted[i]
		if e < 0 || e >= k || p < 0 || p >= k {
			return Report{}, fmt.Errorf("item %d: label out of range (expected %d, predicted %d)", i, e, p)
		}
		conf[e][p]++
		if e == p {
			r.Correct++
		}
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total)
	}

	r.Classes = make([]ClassReport, k)
	for c := range k {
		tp := conf[c][c]
		var predTotal, support int
		for o := range k {
			predTotal += conf[o][c]
			support += conf[c][o]
		}
		cr := ClassReport{Label: labels[c], Support: support}
		if predTotal > 0 {
			cr.Precision = float64(tp) / float64(predTotal)
		}
		if support > 0 {
			cr.Recall = float64(tp) / float64(support)
		}
		if cr.Precision+cr.Recall > 0 {
			cr.F1 = 2 * cr.Precision * cr.Recall / (cr.Precision + cr.Recall)
		}
		r.Classes[c] = cr
		r.MacroF1 += cr.F1
	}
	if k > 0 {
		r.MacroF1 /= float64(k)
	}
	return r, nil
}
