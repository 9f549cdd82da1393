// Package embedding implements C2: a deterministic fixed-length vector for a
// text, used by the consensus engine's agreement scoring.
package embedding

import (
	"context"
	"math"
)

// Vector is the fixed-length floating point embedding this module produces.
type Vector []float64

// Embedder is the single operation C2 exposes. Implementations must be
// deterministic for a given text and safe for concurrent calls.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// Normalize scales v to unit L2 norm, satisfying §4.2's "the vector is
// L2-normalisable" requirement before cosine similarity is computed on it.
func Normalize(v Vector) Vector {
	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	if sumSquares == 0 {
		return v
	}
	norm := math.Sqrt(sumSquares)
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
