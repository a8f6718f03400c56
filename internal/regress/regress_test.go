package regress

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearData returns y = 2 + 3*x0 - 0.5*x1 + 0*x2 on a deterministic grid.
func linearData(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := float64(i%7) + 0.5
		x1 := float64((i*3)%11) - 4
		x2 := float64((i * 5) % 13)
		X.SetRow(i, []float64{x0, x1, x2})
		y[i] = 2 + 3*x0 - 0.5*x1
	}
	return X, y
}

// stepData has a target that is piecewise constant in x0.
func stepData(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := float64(i) / float64(n) * 10
		X.SetRow(i, []float64{x0, float64(i % 3)})
		switch {
		case x0 < 3:
			y[i] = 1
		case x0 < 6:
			y[i] = 5
		default:
			y[i] = 2
		}
	}
	return X, y
}

func sse(actual, predicted []float64) float64 {
	var s float64
	for i := range actual {
		d := actual[i] - predicted[i]
		s += d * d
	}
	return s
}

func TestLinear_ExactFit(t *testing.T) {
	X, y := linearData(60)

	lr := NewLinear()
	require.NoError(t, lr.Fit(X, y))

	assert.InDelta(t, 2, lr.Intercept, 1e-9)
	require.Len(t, lr.Coef, 3)
	assert.InDelta(t, 3, lr.Coef[0], 1e-9)
	assert.InDelta(t, -0.5, lr.Coef[1], 1e-9)
	assert.InDelta(t, 0, lr.Coef[2], 1e-9)

	pred := lr.Predict(X)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-9)
	}
}

func TestLinear_CollinearFeatures(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		X.SetRow(i, []float64{x, 2 * x})
		y[i] = 1 + 5*x
	}

	lr := NewLinear()
	require.NoError(t, lr.Fit(X, y))
	pred := lr.Predict(X)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-8)
	}
	// Minimum-norm split of the slope across the duplicated direction.
	assert.InDelta(t, 1.0, lr.Coef[0], 1e-8)
	assert.InDelta(t, 2.0, lr.Coef[1], 1e-8)
}

func TestFitErrors(t *testing.T) {
	regressors := map[string]Regressor{
		"linear": NewLinear(),
		"tree":   NewDecisionTree(0),
		"forest": NewRandomForest(3, 1),
		"gb":     NewGradientBoosting(3, 0.1, 3),
	}
	for name, r := range regressors {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, r.Fit(&mat.Dense{}, nil), ErrEmpty)
			assert.Error(t, r.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{1}))
			assert.Error(t, r.Fit(mat.NewDense(2, 1, []float64{1, math.NaN()}), []float64{1, 2}))
			assert.Error(t, r.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{1, math.Inf(1)}))
		})
	}
}

func TestDecisionTree_RecoversSteps(t *testing.T) {
	X, y := stepData(90)

	tree := NewDecisionTree(0)
	require.NoError(t, tree.Fit(X, y))
	pred := tree.Predict(X)
	assert.InDelta(t, 0, sse(y, pred), 1e-12)
	assert.Equal(t, 3, tree.tree.leaves())

	probe := mat.NewDense(3, 2, []float64{1, 0, 4.5, 0, 9, 0})
	assert.Equal(t, []float64{1, 5, 2}, tree.Predict(probe))
}

func TestDecisionTree_DepthLimit(t *testing.T) {
	X, y := stepData(90)

	stump := NewDecisionTree(1)
	require.NoError(t, stump.Fit(X, y))
	assert.Equal(t, 2, stump.tree.leaves())

	full := NewDecisionTree(0)
	require.NoError(t, full.Fit(X, y))
	assert.Less(t, sse(y, full.Predict(X)), sse(y, stump.Predict(X)))
}

func TestDecisionTree_ConstantTarget(t *testing.T) {
	X, _ := linearData(10)
	y := make([]float64, 10)
	for i := range y {
		y[i] = 4
	}
	tree := NewDecisionTree(0)
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, 1, tree.tree.leaves())
	for _, p := range tree.Predict(X) {
		assert.Equal(t, 4.0, p)
	}
}

func TestRandomForest_Deterministic(t *testing.T) {
	X, y := linearData(80)

	a := NewRandomForest(20, 42)
	b := NewRandomForest(20, 42)
	c := NewRandomForest(20, 7)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	require.NoError(t, c.Fit(X, y))

	pa, pb, pc := a.Predict(X), b.Predict(X), c.Predict(X)
	assert.Equal(t, pa, pb)
	assert.NotEqual(t, pa, pc)

	assert.Greater(t, R2(y, pa), 0.9)
}

func TestGradientBoosting_ReducesTrainingError(t *testing.T) {
	X, y := linearData(80)

	mean := make([]float64, len(y))
	var m float64
	for _, v := range y {
		m += v
	}
	m /= float64(len(y))
	for i := range mean {
		mean[i] = m
	}
	baseline := sse(y, mean)

	few := NewGradientBoosting(5, 0.1, 3)
	many := NewGradientBoosting(200, 0.1, 3)
	require.NoError(t, few.Fit(X, y))
	require.NoError(t, many.Fit(X, y))

	errFew := sse(y, few.Predict(X))
	errMany := sse(y, many.Predict(X))
	assert.Less(t, errFew, baseline)
	assert.Less(t, errMany, errFew)
	assert.Greater(t, R2(y, many.Predict(X)), 0.99)
}

func TestXGBoost_RegularizedLeaves(t *testing.T) {
	X, y := stepData(60)

	xgb := NewXGBoost(300, 0.05, 6, 1)
	require.NoError(t, xgb.Fit(X, y))
	assert.Greater(t, R2(y, xgb.Predict(X)), 0.99)

	// One round from the mean: each leaf moves by -G/(H+lambda), shrunk toward zero.
	one := NewXGBoost(1, 1, 1, 1e6)
	require.NoError(t, one.Fit(X, y))
	pred := one.Predict(X)
	for _, p := range pred {
		assert.InDelta(t, one.base, p, 1e-3)
	}
}

func TestMetrics(t *testing.T) {
	actual := []float64{3, -0.5, 2, 7}
	predicted := []float64{2.5, 0.0, 2, 8}

	assert.InDelta(t, 0.5, MAE(actual, predicted), 1e-12)
	assert.InDelta(t, math.Sqrt(0.375), RMSE(actual, predicted), 1e-12)
	assert.InDelta(t, 0.9486081370449679, R2(actual, predicted), 1e-12)

	assert.Equal(t, 1.0, R2(actual, actual))
	assert.Equal(t, 1.0, R2([]float64{2, 2, 2}, []float64{2, 2, 2}))
	assert.Equal(t, 0.0, R2([]float64{2, 2, 2}, []float64{2, 2, 3}))
	assert.True(t, math.IsNaN(MAE(nil, nil)))
	assert.True(t, math.IsNaN(R2(nil, nil)))
	assert.True(t, math.IsNaN(R2([]float64{1}, []float64{1})))
	assert.True(t, math.IsNaN(R2([]float64{1}, []float64{5})))
}

func TestSplit(t *testing.T) {
	tests := []struct {
		n        int
		wantTest int
	}{
		{100, 20},
		{101, 21},
		{5, 1},
		{1, 1},
		{0, 0},
	}
	for _, tt := range tests {
		train, test := Split(tt.n, 0.2, 42)
		assert.Len(t, test, tt.wantTest, "n=%d", tt.n)
		assert.Len(t, train, tt.n-tt.wantTest, "n=%d", tt.n)

		all := append(append([]int(nil), train...), test...)
		sort.Ints(all)
		for i, v := range all {
			assert.Equal(t, i, v)
		}
	}

	a, b := Split(50, 0.2, 42)
	c, d := Split(50, 0.2, 42)
	assert.Equal(t, a, c)
	assert.Equal(t, b, d)
}
