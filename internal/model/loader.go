package model

import (
	"errors"
	"fmt"

	"github.com/samcharles93/textcat/internal/safetensors"
	"github.com/samcharles93/textcat/internal/tensor"
)

type loadOptions struct {
	head HeadKind
}

type LoadOption func(*loadOptions)

// WithHead overrides head detection.
func WithHead(kind HeadKind) LoadOption {
	return func(o *loadOptions) { o.head = kind }
}

// Load reads config.json and a safetensors checkpoint. numLabels is the
// configured category count; the classifier must have exactly that many
// rows. A numLabels of 0 accepts whatever the checkpoint holds.
// All failures wrap ErrModelLoad.
func Load(checkpointPath, configPath string, numLabels int, opts ...LoadOption) (*Classifier, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	st, err := safetensors.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open checkpoint: %w", ErrModelLoad, err)
	}
	c, err := loadClassifier(cfg, st, numLabels, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return c, nil
}

func loadClassifier(cfg *Config, st *safetensors.File, numLabels int, opts ...LoadOption) (*Classifier, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	names, head, err := detectLayout(st.Has)
	if err != nil {
		return nil, err
	}
	if o.head != "" {
		head = o.head
	}

	act, err := activation(cfg.HiddenAct)
	if err != nil {
		return nil, err
	}
	h := cfg.HiddenSize
	c := &Classifier{
		Config:  cfg,
		Head:    head,
		hidden:  h,
		nHeads:  cfg.NumAttentionHeads,
		headDim: h / cfg.NumAttentionHeads,
		eps:     float32(cfg.LayerNormEps),
		act:     act,
	}

	if c.wordEmb, err = tensor.LoadSafetensorsMat(st, names.wordEmbedding(), cfg.VocabSize, h); err != nil {
		return nil, err
	}
	if c.posEmb, err = tensor.LoadSafetensorsMat(st, names.positionEmbedding(), cfg.MaxPositionEmbeddings, h); err != nil {
		return nil, err
	}
	if c.typeEmb, err = tensor.LoadSafetensorsMat(st, names.tokenTypeEmbedding(), cfg.TypeVocabSize, h); err != nil {
		return nil, err
	}
	wNames, bNames := names.embeddingNorm()
	if c.embNormW, c.embNormB, err = loadNorm(st, wNames, bNames, h); err != nil {
		return nil, err
	}

	c.layers = make([]encoderLayer, cfg.NumHiddenLayers)
	for i := range c.layers {
		if err := loadLayer(st, names, i, cfg, &c.layers[i]); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	if head == HeadPooled {
		if c.poolerW, c.poolerB, err = loadLinear(st, names.pooler(), h, h); err != nil {
			return nil, err
		}
	}

	if c.classW, c.classB, err = loadLinear(st, classifierName, 0, 0); err != nil {
		return nil, err
	}
	if c.classW.C != h {
		return nil, fmt.Errorf("classifier hidden size %d does not match encoder hidden size %d", c.classW.C, h)
	}
	if numLabels > 0 && c.classW.R != numLabels {
		return nil, fmt.Errorf("classifier has %d outputs but %d categories are configured", c.classW.R, numLabels)
	}
	if cfg.NumLabels > 0 && cfg.NumLabels != c.classW.R {
		return nil, fmt.Errorf("config num_labels %d does not match classifier outputs %d", cfg.NumLabels, c.classW.R)
	}
	return c, nil
}

func loadLayer(st *safetensors.File, names bertNames, i int, cfg *Config, l *encoderLayer) error {
	h, ffn := cfg.HiddenSize, cfg.IntermediateSize
	var err error
	if l.wq, l.bq, err = loadLinear(st, names.query(i), h, h); err != nil {
		return err
	}
	if l.wk, l.bk, err = loadLinear(st, names.key(i), h, h); err != nil {
		return err
	}
	if l.wv, l.bv, err = loadLinear(st, names.value(i), h, h); err != nil {
		return err
	}
	if l.wo, l.bo, err = loadLinear(st, names.attnOut(i), h, h); err != nil {
		return err
	}
	wNames, bNames := names.attnNorm(i)
	if l.attnNormW, l.attnNormB, err = loadNorm(st, wNames, bNames, h); err != nil {
		return err
	}
	if l.wIn, l.bIn, err = loadLinear(st, names.intermediate(i), ffn, h); err != nil {
		return err
	}
	if l.wOut, l.bOut, err = loadLinear(st, names.output(i), h, ffn); err != nil {
		return err
	}
	wNames, bNames = names.outputNorm(i)
	if l.outNormW, l.outNormB, err = loadNorm(st, wNames, bNames, h); err != nil {
		return err
	}
	return nil
}

// loadLinear loads base.weight [out, in] and base.bias [out]. Zero out/in
// skip the corresponding shape check.
func loadLinear(st *safetensors.File, base string, out, in int) (*tensor.Mat, []float32, error) {
	w, err := tensor.LoadSafetensorsMat(st, base+".weight", out, in)
	if err != nil {
		return nil, nil, err
	}
	if !tensor.AllFinite(w.Data) {
		return nil, nil, fmt.Errorf("%s.weight: non-finite values", base)
	}
	b, err := tensor.LoadSafetensorsVec(st, base+".bias", w.R)
	if err != nil {
		return nil, nil, err
	}
	return w, b, nil
}

func loadNorm(st *safetensors.File, weightNames, biasNames []string, n int) ([]float32, []float32, error) {
	w, _, err := loadVecCandidates(st, weightNames, n)
	if err != nil {
		return nil, nil, err
	}
	b, _, err := loadVecCandidates(st, biasNames, n)
	if err != nil {
		return nil, nil, err
	}
	return w, b, nil
}

func loadVecCandidates(st *safetensors.File, candidates []string, n int) ([]float32, string, error) {
	for _, name := range candidates {
		v, err := tensor.LoadSafetensorsVec(st, name, n)
		if err == nil {
			return v, name, nil
		}
		if isTensorMissing(err) {
			continue
		}
		return nil, "", err
	}
	return nil, "", fmt.Errorf("none of %v found", candidates)
}

func isTensorMissing(err error) bool {
	return errors.Is(err, safetensors.ErrTensorNotFound)
}
