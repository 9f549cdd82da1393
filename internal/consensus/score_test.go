package consensus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0rvyn/cross-mind-consensus/internal/embedding"
)

func embedAll(t *testing.T, texts []string) []embedding.Vector {
	t.Helper()
	e := embedding.LocalEmbedder{}
	vecs := make([]embedding.Vector, len(texts))
	for i, txt := range texts {
		v, err := e.Embed(context.Background(), txt)
		require.NoError(t, err)
		vecs[i] = v
	}
	return vecs
}

func TestAgreement_IdenticalAnswers_ScoreIsOne(t *testing.T) {
	vecs := embedAll(t, []string{"4", "4", "4"})
	res := Agreement([]float64{1, 1, 1}, vecs)
	assert.InDelta(t, 1.0, res.S, 1e-9)
}

func TestAgreement_SingleReply_ScoreIsOne(t *testing.T) {
	vecs := embedAll(t, []string{"only answer"})
	res := Agreement(nil, vecs)
	assert.Equal(t, 1.0, res.S)
	assert.Equal(t, []float64{1.0}, res.Individual)
}

func TestAgreement_DivergentAnswers_LowerScore(t *testing.T) {
	agree := embedAll(t, []string{"4", "4", "4"})
	disagree := embedAll(t, []string{"Python", "JavaScript", "quantum entanglement"})

	agreeScore := Agreement([]float64{1, 1, 1}, agree).S
	disagreeScore := Agreement([]float64{1, 1, 1}, disagree).S

	assert.Greater(t, agreeScore, disagreeScore)
}

func TestAgreement_IndividualExcludesSelfSimilarity(t *testing.T) {
	// Two agreeing answers and one outlier: the outlier's individual
	// agreement must be lower than either of the agreeing pair's, and no
	// score should trivially be 1.0 from counting self-similarity.
	vecs := embedAll(t, []string{"4", "4", "elephant"})
	res := Agreement([]float64{1, 1, 1}, vecs)

	assert.Less(t, res.Individual[2], res.Individual[0])
	assert.Less(t, res.Individual[2], res.Individual[1])
}

func TestNormalizeWeights_SumsToOne(t *testing.T) {
	w := NormalizeWeights([]float64{2, 2, 4}, 3)
	var sum float64
	for _, x := range w {
		sum += x
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestNormalizeWeights_DefaultsToUniformOnMismatch(t *testing.T) {
	w := NormalizeWeights([]float64{1, 2}, 3)
	assert.Equal(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, w)
}

func TestCosineSimilarity_ClippedToUnitRange(t *testing.T) {
	a := embedding.Vector{1, 0}
	b := embedding.Vector{-1, 0}
	sim := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.LessOrEqual(t, sim, 1.0)
}
