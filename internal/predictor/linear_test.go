package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLinear_ExactLine(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{3, 5, 7, 9, 11} // y = 2x + 1

	model, r2, err := FitLinear(xs, ys)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, model.Intercept, 1e-9)
	assert.InDelta(t, 2.0, model.Slope, 1e-9)
	assert.InDelta(t, 1.0, r2, 1e-9)

	got, err := model.Predict([]float64{10})
	require.NoError(t, err)
	assert.InDelta(t, 21.0, got, 1e-9)
}

func TestFitLinear_Errors(t *testing.T) {
	_, _, err := FitLinear([]float64{1}, []float64{1})
	assert.Error(t, err)

	_, _, err = FitLinear([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestLinear_PredictNeedsFeatures(t *testing.T) {
	model := &Linear{Intercept: 1, Slope: 2}
	_, err := model.Predict(nil)
	assert.Error(t, err)
}

func TestThreshold_Classify(t *testing.T) {
	clf := &Threshold{Cut: 0.5}

	v, err := clf.Predict([]float64{0.6})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = clf.Predict([]float64{0.4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestDefaultSet(t *testing.T) {
	set := DefaultSet()
	assert.Equal(t, 0, set.Version)
	assert.Equal(t, KindRegression, set.Latency.Kind())
	assert.Equal(t, KindClassification, set.CacheClass.Kind())

	// untrained regression predicts zero everywhere
	v, err := set.Latency.Predict([]float64{100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}
