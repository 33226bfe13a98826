package model

import (
	"fmt"
)

// HeadKind selects how the classification head reads the encoder output.
type HeadKind string

const (
	// HeadCLS applies the classifier to the final [CLS] hidden state.
	HeadCLS HeadKind = "cls"
	// HeadPooled runs the BERT pooler (dense + tanh) before the classifier,
	// as in BertForSequenceClassification.
	HeadPooled HeadKind = "pooled"
)

// encoderPrefixes are tried in order to find the encoder tensors.
var encoderPrefixes = []string{"transformer.", "bert.", "encoder_model.", ""}

type bertNames struct {
	prefix string
}

func (n bertNames) wordEmbedding() string {
	return n.prefix + "embeddings.word_embeddings.weight"
}

func (n bertNames) positionEmbedding() string {
	return n.prefix + "embeddings.position_embeddings.weight"
}

func (n bertNames) tokenTypeEmbedding() string {
	return n.prefix + "embeddings.token_type_embeddings.weight"
}

func (n bertNames) embeddingNorm() (weight, bias []string) {
	return layerNormCandidates(n.prefix + "embeddings.LayerNorm")
}

func (n bertNames) layer(i int) string {
	return fmt.Sprintf("%sencoder.layer.%d.", n.prefix, i)
}

func (n bertNames) query(i int) string   { return n.layer(i) + "attention.self.query" }
func (n bertNames) key(i int) string     { return n.layer(i) + "attention.self.key" }
func (n bertNames) value(i int) string   { return n.layer(i) + "attention.self.value" }
func (n bertNames) attnOut(i int) string { return n.layer(i) + "attention.output.dense" }

func (n bertNames) attnNorm(i int) (weight, bias []string) {
	return layerNormCandidates(n.layer(i) + "attention.output.LayerNorm")
}

func (n bertNames) intermediate(i int) string { return n.layer(i) + "intermediate.dense" }
func (n bertNames) output(i int) string       { return n.layer(i) + "output.dense" }

func (n bertNames) outputNorm(i int) (weight, bias []string) {
	return layerNormCandidates(n.layer(i) + "output.LayerNorm")
}

func (n bertNames) pooler() string { return n.prefix + "pooler.dense" }

const classifierName = "classifier"

// layerNormCandidates covers both the current weight/bias naming and the
// gamma/beta naming found in older TensorFlow-converted checkpoints.
func layerNormCandidates(base string) (weight, bias []string) {
	return []string{base + ".weight", base + ".gamma"}, []string{base + ".bias", base + ".beta"}
}

// detectLayout inspects tensor names to find the encoder prefix and head kind.
// Checkpoints saved from a module with a "transformer" encoder attribute use
// the [CLS] state directly; HF "bert." checkpoints use the pooler.
func detectLayout(has func(string) bool) (bertNames, HeadKind, error) {
	for _, prefix := range encoderPrefixes {
		names := bertNames{prefix: prefix}
		if !has(names.wordEmbedding()) {
			continue
		}
		if !has(classifierName + ".weight") {
			return bertNames{}, "", fmt.Errorf("checkpoint has an encoder under %q but no %s.weight", prefix, classifierName)
		}
		if prefix != "transformer." && has(names.pooler()+".weight") {
			return names, HeadPooled, nil
		}
		return names, HeadCLS, nil
	}
	return bertNames{}, "", fmt.Errorf("no BERT embeddings found (tried prefixes %q)", encoderPrefixes)
}
