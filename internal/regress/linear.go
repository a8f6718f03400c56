package regress

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rcond is the relative singular value cutoff used to estimate rank.
const rcond = 1e-12

// Linear is ordinary least squares with an intercept. Collinear features get
// the minimum-norm solution.
type Linear struct {
	Coef      []float64
	Intercept float64
	fitted    bool
}

func NewLinear() *Linear { return &Linear{} }

func (l *Linear) Fit(X *mat.Dense, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}

	xMean := make([]float64, p)
	for j := 0; j < p; j++ {
		xMean[j] = stat.Mean(mat.Col(nil, j, X), nil)
	}
	yMean := stat.Mean(y, nil)

	centered := mat.NewDense(n, p, nil)
	centered.Apply(func(i, j int, v float64) float64 { return v - xMean[j] }, X)
	yc := make([]float64, n)
	copy(yc, y)
	floats.AddConst(-yMean, yc)

	coef := make([]float64, p)
	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return errors.New("regress: SVD factorization failed")
	}
	if rank := svd.Rank(rcond); rank > 0 {
		var beta mat.VecDense
		svd.SolveVecTo(&beta, mat.NewVecDense(n, yc), rank)
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
	}

	l.Coef = coef
	l.Intercept = yMean - floats.Dot(coef, xMean)
	l.fitted = true
	return nil
}

func (l *Linear) Predict(X *mat.Dense) []float64 {
	if !l.fitted {
		panic(ErrNotFitted)
	}
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = l.Intercept + floats.Dot(X.RawRowView(i), l.Coef)
	}
	return out
}
