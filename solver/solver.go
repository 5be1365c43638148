// Package solver contains iterative solvers for the dual contact problem
//
//	min ½ λᵀAλ + cᵀλ   subject to λ ∈ K
//
// where A is symmetric positive semi-definite and K is a closed convex cone
// given by its projector.
package solver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDimensionMismatch is returned when A, c and λ disagree in size.
	ErrDimensionMismatch = errors.New("solver: dimension mismatch")
	// ErrBackend is returned when an external optimizer fails or cannot
	// handle the cone.
	ErrBackend = errors.New("solver: backend failure")
)

// Params are the knobs shared by every solver.
type Params struct {
	MaxIter int
	Rho     float64
	TolL    float64
	Verbose bool
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		MaxIter: 40000,
		Rho:     200,
		TolL:    1e-6,
	}
}

// Result describes how a solve ended.
type Result struct {
	Iterations int
	Converged  bool
	// Residual is the last relative change of λ.
	Residual float64
}

// LogValue implements slog.LogValuer.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("iterations", r.Iterations),
		slog.Bool("converged", r.Converged),
		slog.Float64("residual", r.Residual),
	)
}

// Solver minimises the dual problem in place: l holds the warm start on
// entry and the last iterate on return. Non-convergence is reported in
// Result, not as an error.
type Solver interface {
	Name() string
	Solve(A *sparse.CSR, c, l []float64, proj cone.Projector) (Result, error)
}

func checkDims(A *sparse.CSR, c, l []float64) error {
	rows, cols := A.Dims()
	if rows != len(c) || cols != len(c) || len(l) != len(c) {
		return fmt.Errorf("%w: A is %dx%d, len(c)=%d, len(l)=%d", ErrDimensionMismatch, rows, cols, len(c), len(l))
	}
	return nil
}

// relativeChange is ‖l − prev‖∞ / (‖prev‖∞ + 1).
func relativeChange(l, prev []float64) float64 {
	return floats.Distance(l, prev, math.Inf(1)) / (floats.Norm(prev, math.Inf(1)) + 1)
}

// arena owns the scratch vectors of one solver instance. Buffers are only
// reallocated when the problem size changes.
type arena struct {
	n    int
	bufs [][]float64
}

func (a *arena) vectors(n, k int) [][]float64 {
	if a.n != n || len(a.bufs) < k {
		a.n = n
		a.bufs = make([][]float64, k)
		for i := range a.bufs {
			a.bufs[i] = make([]float64, n)
		}
	}
	return a.bufs[:k]
}

// diagnostics logs the objective and the smallest entry of A·l + c. tmp is
// overwritten.
func diagnostics(name string, iter int, A *sparse.CSR, c, l, tmp []float64, residual float64) {
	A.MulVecTo(tmp, l)
	obj := 0.5*floats.Dot(l, tmp) + floats.Dot(c, l)
	floats.Add(tmp, c)
	slog.Debug(name+"_iteration",
		"iter", iter,
		"objective", obj,
		"min_slack", floats.Min(tmp),
		"residual", residual,
	)
}

func warnNotConverged(name string, res Result) {
	slog.Warn(name+"_not_converged",
		"iterations", res.Iterations,
		"residual", res.Residual,
	)
}
