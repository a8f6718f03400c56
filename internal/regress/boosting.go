package regress

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GradientBoosting fits an additive model of shallow trees to squared-loss
// gradients, starting from the target mean. Lambda = 0 gives classic
// gradient boosting; Lambda > 0 with MinChildWeight gives the regularized
// second-order variant.
type GradientBoosting struct {
	NEstimators  int
	LearningRate float64
	Tree         TreeParams

	base  float64
	trees []*Tree
}

// NewGradientBoosting returns classic gradient boosting with depth-limited mean trees.
func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth int) *GradientBoosting {
	return &GradientBoosting{
		NEstimators:  nEstimators,
		LearningRate: learningRate,
		Tree:         TreeParams{MaxDepth: maxDepth, MinSamplesLeaf: 1},
	}
}

// NewXGBoost returns the regularized variant: L2 leaf penalty lambda and a
// minimum child hessian of 1.
func NewXGBoost(nEstimators int, learningRate float64, maxDepth int, lambda float64) *GradientBoosting {
	return &GradientBoosting{
		NEstimators:  nEstimators,
		LearningRate: learningRate,
		Tree:         TreeParams{MaxDepth: maxDepth, MinSamplesLeaf: 1, MinChildWeight: 1, Lambda: lambda},
	}
}

func (g *GradientBoosting) Fit(X *mat.Dense, y []float64) error {
	n, _, err := checkXY(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)

	g.base = stat.Mean(y, nil)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.base
	}

	idx := make([]int, n)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range idx {
		idx[i] = i
		hess[i] = 1
	}

	g.trees = make([]*Tree, 0, g.NEstimators)
	for t := 0; t < g.NEstimators; t++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}
		tree := growTree(rows, grad, hess, idx, g.Tree)
		for i, r := range rows {
			pred[i] += g.LearningRate * tree.PredictRow(r)
		}
		g.trees = append(g.trees, tree)
	}
	return nil
}

func (g *GradientBoosting) Predict(X *mat.Dense) []float64 {
	if g.trees == nil {
		panic(ErrNotFitted)
	}
	return predictTrees(X, func(x []float64) float64 {
		v := g.base
		for _, t := range g.trees {
			v += g.LearningRate * t.PredictRow(x)
		}
		return v
	})
}
