package regress

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return floats.Distance(predicted, actual, 1) / float64(len(actual))
}

// RMSE is the root mean squared error.
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	return floats.Distance(predicted, actual, 2) / math.Sqrt(float64(len(actual)))
}

// R2 is the coefficient of determination. It is undefined (NaN) for fewer
// than two samples. A constant target scores 1 when predicted exactly and 0
// otherwise, rather than dividing by zero.
func R2(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return math.NaN()
	}
	if stat.Variance(actual, nil) == 0 {
		if floats.Equal(actual, predicted) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}
