// ABOUTME: Ordinary least squares with intercept for small feature counts
// ABOUTME: Solved by SVD (gonum) so rank-deficient designs get the minimum-norm fit

package predict

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoSamples is returned when Fit receives no rows.
var ErrNoSamples = errors.New("no samples")

// rankTolerance is the relative singular value cutoff below which a
// direction of the centered design carries no information.
const rankTolerance = 1e-9

// Model is a fitted linear model y = Intercept + sum(Coef[j] * x[j]).
type Model struct {
	Intercept float64
	Coef      []float64
}

// Predict evaluates the model for one feature row.
func (m Model) Predict(x []float64) float64 {
	y := m.Intercept
	for j, c := range m.Coef {
		if j < len(x) {
			y += c * x[j]
		}
	}
	return y
}

// Fit computes a least squares fit. Features are centered first so the
// intercept is mean(y) - coef·mean(x). The centered system is solved through
// a thin SVD truncated at its numerical rank, which yields the minimum-norm
// solution: a constant feature gets a zero coefficient and collinear features
// share the weight.
func Fit(x [][]float64, y []float64) (Model, error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return Model{}, ErrNoSamples
	}
	p := len(x[0])

	xMean := make([]float64, p)
	for _, row := range x {
		for j := 0; j < p; j++ {
			xMean[j] += row[j]
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	coef := make([]float64, p)
	if p > 0 {
		design := mat.NewDense(n, p, nil)
		for i, row := range x {
			for j := 0; j < p; j++ {
				design.Set(i, j, row[j]-xMean[j])
			}
		}
		target := mat.NewDense(n, 1, nil)
		for i, v := range y {
			target.Set(i, 0, v-yMean)
		}

		var svd mat.SVD
		if !svd.Factorize(design, mat.SVDThin) {
			return Model{}, errors.New("SVD factorization failed")
		}
		// A zero rank means every centered column vanished.
		if rank := svd.Rank(rankTolerance); rank > 0 {
			var sol mat.Dense
			svd.SolveTo(&sol, target, rank)
			for j := range coef {
				coef[j] = sol.At(j, 0)
			}
		}
	}

	intercept := yMean
	for j := range coef {
		intercept -= coef[j] * xMean[j]
	}
	return Model{Intercept: intercept, Coef: coef}, nil
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
