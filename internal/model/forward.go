package model

import (
	"fmt"
	"math"

	"github.com/samcharles93/textcat/internal/tensor"
	"github.com/samcharles93/textcat/internal/tokenizer"
)

// Classify runs the encoder and head and returns one logit per label.
// Padding positions are never computed: with an additive padding mask they
// receive zero attention weight, so skipping them gives the same logits as
// a full padded pass.
func (c *Classifier) Classify(enc tokenizer.Encoded) (logits []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			logits = nil
			err = fmt.Errorf("%w: panic in forward pass: %v", ErrInferenceFailed, r)
		}
	}()

	n, err := c.checkInput(enc)
	if err != nil {
		return nil, err
	}
	states := c.encode(enc, n, true)

	feat := states[0]
	if c.Head == HeadPooled {
		pooled := make([]float32, c.hidden)
		tensor.Linear(pooled, c.poolerW, c.poolerB, feat)
		tensor.Apply(pooled, tensor.Tanh)
		feat = pooled
	}
	logits = make([]float32, c.classW.R)
	tensor.Linear(logits, c.classW, c.classB, feat)
	if !tensor.AllFinite(logits) {
		return nil, fmt.Errorf("%w: non-finite logits", ErrInferenceFailed)
	}
	return logits, nil
}

// Embed returns the mean of the final hidden states over real tokens.
func (c *Classifier) Embed(enc tokenizer.Encoded) (emb []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			emb = nil
			err = fmt.Errorf("%w: panic in forward pass: %v", ErrInferenceFailed, r)
		}
	}()

	n, err := c.checkInput(enc)
	if err != nil {
		return nil, err
	}
	states := c.encode(enc, n, false)
	emb = make([]float32, c.hidden)
	for _, row := range states {
		tensor.Add(emb, row)
	}
	tensor.Scale(emb, 1/float32(len(states)))
	if !tensor.AllFinite(emb) {
		return nil, fmt.Errorf("%w: non-finite embedding", ErrInferenceFailed)
	}
	return emb, nil
}

func (c *Classifier) checkInput(enc tokenizer.Encoded) (int, error) {
	if err := enc.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}
	n := enc.RealLen()
	if n == 0 {
		return 0, fmt.Errorf("%w: empty sequence", ErrInferenceFailed)
	}
	if n > c.posEmb.R {
		return 0, fmt.Errorf("%w: sequence of %d tokens exceeds %d positions", ErrInferenceFailed, n, c.posEmb.R)
	}
	for i := range n {
		if id := enc.IDs[i]; id < 0 || id >= c.wordEmb.R {
			return 0, fmt.Errorf("%w: token id %d at %d outside vocabulary of %d", ErrInferenceFailed, id, i, c.wordEmb.R)
		}
		if tt := enc.TypeIDs[i]; tt < 0 || tt >= c.typeEmb.R {
			return 0, fmt.Errorf("%w: token type %d at %d outside %d types", ErrInferenceFailed, tt, i, c.typeEmb.R)
		}
	}
	return n, nil
}

// encode returns the final hidden states of the first n positions. With
// clsOnly set the last layer computes only position 0.
func (c *Classifier) encode(enc tokenizer.Encoded, n int, clsOnly bool) [][]float32 {
	x := make([][]float32, n)
	for i := range n {
		row := make([]float32, c.hidden)
		copy(row, c.wordEmb.Row(enc.IDs[i]))
		tensor.Add(row, c.posEmb.Row(i))
		tensor.Add(row, c.typeEmb.Row(enc.TypeIDs[i]))
		tensor.LayerNorm(row, row, c.embNormW, c.embNormB, c.eps)
		x[i] = row
	}
	for li := range c.layers {
		queries := n
		if clsOnly && li == len(c.layers)-1 {
			queries = 1
		}
		x = c.layerForward(&c.layers[li], x, queries)
	}
	return x
}

// layerForward applies one transformer block. Keys and values come from
// every row of x; outputs are produced for the first `queries` rows.
func (c *Classifier) layerForward(l *encoderLayer, x [][]float32, queries int) [][]float32 {
	n := len(x)
	keys := make([][]float32, n)
	vals := make([][]float32, n)
	for j := range n {
		keys[j] = make([]float32, c.hidden)
		vals[j] = make([]float32, c.hidden)
		tensor.Linear(keys[j], l.wk, l.bk, x[j])
		tensor.Linear(vals[j], l.wv, l.bv, x[j])
	}

	scale := float32(1 / math.Sqrt(float64(c.headDim)))
	q := make([]float32, c.hidden)
	ctx := make([]float32, c.hidden)
	attn := make([]float32, c.hidden)
	inter := make([]float32, l.wIn.R)
	scores := make([]float32, n)

	out := make([][]float32, queries)
	for i := range queries {
		tensor.Linear(q, l.wq, l.bq, x[i])
		clear(ctx)
		for hd := range c.nHeads {
			lo, hi := hd*c.headDim, (hd+1)*c.headDim
			qh := q[lo:hi]
			for j := range n {
				scores[j] = tensor.Dot(qh, keys[j][lo:hi]) * scale
			}
			tensor.Softmax(scores)
			ch := ctx[lo:hi]
			for j := range n {
				p := scores[j]
				vh := vals[j][lo:hi]
				for d := range ch {
					ch[d] += p * vh[d]
				}
			}
		}

		tensor.Linear(attn, l.wo, l.bo, ctx)
		tensor.Add(attn, x[i])
		tensor.LayerNorm(attn, attn, l.attnNormW, l.attnNormB, c.eps)

		tensor.Linear(inter, l.wIn, l.bIn, attn)
		tensor.Apply(inter, c.act)
		row := make([]float32, c.hidden)
		tensor.Linear(row, l.wOut, l.bOut, inter)
		tensor.Add(row, attn)
		tensor.LayerNorm(row, row, l.outNormW, l.outNormB, c.eps)
		out[i] = row
	}
	return out
}
