package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := Weights{Performance: 0.5, Reliability: 0.5, Resource: 0.5, Freshness: 0.5}
	assert.Error(t, bad.Validate())

	negative := Weights{Performance: -0.1, Reliability: 0.6, Resource: 0.3, Freshness: 0.2}
	assert.Error(t, negative.Validate())
}

func TestScorer_Score(t *testing.T) {
	scorer, err := NewScorer(DefaultWeights())
	require.NoError(t, err)

	// All factors perfect
	assert.InDelta(t, 1.0, scorer.Score(Factors{1, 1, 1, 1}), 1e-9)

	// All factors zero
	assert.InDelta(t, 0.0, scorer.Score(Factors{0, 0, 0, 0}), 1e-9)

	// Out-of-range factors are clamped, not propagated
	assert.LessOrEqual(t, scorer.Score(Factors{5, 5, 5, 5}), 1.0)
	assert.GreaterOrEqual(t, scorer.Score(Factors{-1, -1, -1, -1}), 0.0)
}

func TestScorer_RejectsInvalidWeights(t *testing.T) {
	_, err := NewScorer(Weights{Performance: 1, Reliability: 1})
	assert.Error(t, err)
}

func TestResult_Mutators(t *testing.T) {
	r := Healthy()
	assert.True(t, r.Healthy)
	assert.Equal(t, StatusHealthy, r.Status)

	r.AddWarning("confidence low: %.2f", 0.3)
	assert.True(t, r.Healthy)
	assert.Len(t, r.Warnings, 1)

	r.Degrade(0.5)
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, 0.5, r.Score)

	r.AddError("accuracy below minimum")
	assert.False(t, r.Healthy)
	assert.Equal(t, StatusUnhealthy, r.Status)
}
