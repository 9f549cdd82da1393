package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const localDimension = 384

// LocalEmbedder is a deterministic hash-based fallback for environments
// without an embedding credential configured. It satisfies §4.2's three
// requirements without calling out to any provider: results are stable for
// identical input, the vector is L2-normalisable, and it completes well
// under the 200ms p95 budget since it does no I/O. It is not semantically
// meaningful the way a trained model's output is — operators who need real
// semantic similarity should configure OpenAIEmbedder instead.
type LocalEmbedder struct{}

func (LocalEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vec := make(Vector, localDimension)
	block := []byte(text)
	counter := uint32(0)
	for i := 0; i < localDimension; i += 4 {
		h := sha256.New()
		var ctrBuf [4]byte
		binary.BigEndian.PutUint32(ctrBuf[:], counter)
		h.Write(block)
		h.Write(ctrBuf[:])
		digest := h.Sum(nil)
		for j := 0; j < 4 && i+j < localDimension; j++ {
			bits := binary.BigEndian.Uint64(digest[j*8 : j*8+8])
			// Map the uniform uint64 onto [-1, 1].
			vec[i+j] = (float64(bits)/float64(math.MaxUint64))*2 - 1
		}
		counter++
	}
	return Normalize(vec), nil
}
