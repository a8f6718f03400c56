package regress

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Regressor is a supervised model of one continuous target.
type Regressor interface {
	Fit(X *mat.Dense, y []float64) error
	Predict(X *mat.Dense) []float64
}

var (
	ErrEmpty     = errors.New("regress: no training rows")
	ErrNotFitted = errors.New("regress: model not fitted")
)

func checkXY(X *mat.Dense, y []float64) (n, p int, err error) {
	if X == nil || X.IsEmpty() {
		return 0, 0, ErrEmpty
	}
	n, p = X.Dims()
	if n != len(y) {
		return 0, 0, fmt.Errorf("regress: %d rows but %d targets", n, len(y))
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, 0, fmt.Errorf("regress: target %d is not finite", i)
		}
		for _, v := range X.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, fmt.Errorf("regress: row %d has a non-finite feature", i)
			}
		}
	}
	return n, p, nil
}

func rowsOf(X *mat.Dense) [][]float64 {
	n, _ := X.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = X.RawRowView(i)
	}
	return rows
}
