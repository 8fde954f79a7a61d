package stability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	t.Run("mean", func(t *testing.T) {
		assert.Equal(t, 0.0, Mean(nil))
		assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	})

	t.Run("sd uses the sample denominator", func(t *testing.T) {
		assert.Equal(t, 0.0, SD([]float64{5}))
		// Variance of {2,4,4,4,5,5,7,9} is 32/7 with n-1.
		assert.InDelta(t, math.Sqrt(32.0/7.0), SD([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	})

	t.Run("median", func(t *testing.T) {
		assert.InDelta(t, 3.0, Median([]float64{5, 1, 3}), 1e-12)
		assert.InDelta(t, 2.5, Median([]float64{4, 1, 2, 3}), 1e-12)
	})

	t.Run("mad", func(t *testing.T) {
		// Median 3, deviations {2,1,0,1,2}, median deviation 1.
		assert.InDelta(t, 1.0, MAD([]float64{1, 2, 3, 4, 5}), 1e-12)
	})

	t.Run("cv clamps a zero mean", func(t *testing.T) {
		v := CV([]float64{-1, 1})
		assert.False(t, math.IsInf(v, 1))
		assert.Greater(t, v, 1.0)
	})
}

func TestEvaluateShortHistory(t *testing.T) {
	_, err := Evaluate("mean_relative", []float64{1, 2, 3}, 0.05, 3, nil)
	require.ErrorIs(t, err, ErrShortHistory)

	// Exactly window+1 observations is enough.
	_, err = Evaluate("mean_relative", []float64{1, 2, 3, 4}, 0.05, 3, nil)
	require.NoError(t, err)
}

func TestEvaluateUnknownRule(t *testing.T) {
	_, err := Evaluate("median_relative", []float64{1, 2, 3, 4}, 0.05, 3, nil)
	require.ErrorIs(t, err, ErrUnknownRule)
}

func TestEvaluateMeanAbsolute(t *testing.T) {
	// Window mean over the last 3 of {5.0, 5.1, 4.9, 5.0, 5.05} is 4.98333...,
	// global mean is 5.01, so the absolute gap is 0.0266... — stable at 0.05.
	res, err := Evaluate("mean_absolute", []float64{5.0, 5.1, 4.9, 5.0, 5.05}, 0.05, 3, nil)
	require.NoError(t, err)
	assert.True(t, res.Stable)
	assert.InDelta(t, 0.026667, res.Value, 1e-4)
	assert.Equal(t, "mean_absolute", res.Rule)
	assert.Equal(t, 0.05, res.Threshold)
}

func TestEvaluateConstantHistory(t *testing.T) {
	// A constant history is stable under every rule: the window and global
	// aggregates coincide, so the value is 0 for the aggregate rules, and both
	// ranges have zero spread and equal means for Cohen's d.
	values := []float64{3.0, 3.0, 3.0, 3.0, 3.0, 3.0}
	custom := func(v []float64) float64 { return Mean(v) }
	for _, rule := range Rules() {
		res, err := Evaluate(rule, values, 0.05, 2, custom)
		require.NoError(t, err, rule)
		assert.True(t, res.Stable, rule)
		assert.Equal(t, 0.0, res.Value, rule)
	}
}

func TestEvaluateRelativeScalesByGlobal(t *testing.T) {
	values := []float64{100, 104, 96, 100, 102}
	abs, err := Evaluate("mean_absolute", values, 10, 3, nil)
	require.NoError(t, err)
	rel, err := Evaluate("mean_relative", values, 10, 3, nil)
	require.NoError(t, err)
	assert.InDelta(t, abs.Value/Mean(values), rel.Value, 1e-12)
}

func TestEvaluateCustomRuleRequiresFunc(t *testing.T) {
	_, err := Evaluate("custom_absolute", []float64{1, 2, 3, 4}, 0.05, 3, nil)
	require.Error(t, err)

	res, err := Evaluate("custom_absolute", []float64{1, 2, 3, 4}, 10, 3, Median)
	require.NoError(t, err)
	assert.True(t, res.Stable)
}

func TestEvaluateCohen(t *testing.T) {
	t.Run("too few pre-window observations", func(t *testing.T) {
		// 4 observations with window 3 leave only one before the window.
		res, err := Evaluate("cohen_absolute", []float64{1, 2, 3, 4}, 0.2, 3, nil)
		require.NoError(t, err)
		assert.False(t, res.Stable)
		assert.True(t, math.IsInf(res.Value, 1))
	})

	t.Run("equal means are maximally stable", func(t *testing.T) {
		res, err := Evaluate("cohen_absolute", []float64{1, 3, 2, 1, 3, 2}, 0.2, 3, nil)
		require.NoError(t, err)
		assert.True(t, res.Stable)
		assert.Equal(t, 0.0, res.Value)
	})

	t.Run("shifted window is unstable", func(t *testing.T) {
		res, err := Evaluate("cohen_absolute", []float64{1.0, 1.1, 0.9, 1.0, 5.0, 5.1, 4.9}, 0.5, 3, nil)
		require.NoError(t, err)
		assert.False(t, res.Stable)
		assert.Greater(t, res.Value, 0.5)
	})
}

func TestRules(t *testing.T) {
	rules := Rules()
	assert.Len(t, rules, 11)
	assert.Contains(t, rules, "cohen_absolute")
	assert.Contains(t, rules, "custom_relative")
	assert.Contains(t, rules, "mad_absolute")
}
