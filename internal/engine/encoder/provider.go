// Package encoder turns clinical text into fixed-size embeddings.  Two
// providers implement the same contract: an in-process ONNX model and the
// hosted inference API.  The Manager owns which one serves requests and the
// lazy load that selects it.
package encoder

import (
	"context"
	"math"

	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// Provider produces text embeddings.  Implementations are safe for
// concurrent use once constructed.
type Provider interface {
	Encode(ctx context.Context, text string) (diagnosis.TextEmbedding, error)
	Mode() diagnosis.InferenceMode
	ModelID() string
	Close() error
}

// l2Normalize scales vec to unit length in place and returns it.  A zero
// vector is returned unchanged.
func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
