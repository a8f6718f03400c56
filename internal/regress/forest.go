package regress

import (
	"gonum.org/v1/gonum/mat"
)

// RandomForest averages fully grown trees fitted on bootstrap samples.
type RandomForest struct {
	NEstimators    int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           uint64

	trees []*Tree
}

func NewRandomForest(nEstimators int, seed uint64) *RandomForest {
	return &RandomForest{NEstimators: nEstimators, MinSamplesLeaf: 1, Seed: seed}
}

func (f *RandomForest) Fit(X *mat.Dense, y []float64) error {
	n, _, err := checkXY(X, y)
	if err != nil {
		return err
	}
	rows := rowsOf(X)
	rng := newRNG(f.Seed)

	params := TreeParams{MaxDepth: f.MaxDepth, MinSamplesLeaf: f.MinSamplesLeaf}
	f.trees = make([]*Tree, 0, f.NEstimators)
	sample := make([]int, n)
	for t := 0; t < f.NEstimators; t++ {
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		f.trees = append(f.trees, fitMeanTree(rows, y, sample, params))
	}
	return nil
}

func (f *RandomForest) Predict(X *mat.Dense) []float64 {
	if len(f.trees) == 0 {
		panic(ErrNotFitted)
	}
	return predictTrees(X, func(x []float64) float64 {
		var sum float64
		for _, t := range f.trees {
			sum += t.PredictRow(x)
		}
		return sum / float64(len(f.trees))
	})
}
