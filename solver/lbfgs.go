package solver

import (
	"fmt"
	"math"

	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LBFGS hands the problem to gonum's limited-memory BFGS through the
// substitution λ = z⊙z, which turns the non-negativity bound into an
// unconstrained problem. Other cones are rejected.
type LBFGS struct {
	params  Params
	scratch arena
}

// NewLBFGS returns the gonum backed solver.
func NewLBFGS(p Params) *LBFGS {
	return &LBFGS{params: p}
}

func (s *LBFGS) Name() string { return "lbfgs" }

func (s *LBFGS) Solve(A *sparse.CSR, c, l []float64, proj cone.Projector) (Result, error) {
	if err := checkDims(A, c, l); err != nil {
		return Result{}, err
	}
	if _, ok := proj.(cone.NonNegative); !ok {
		return Result{}, fmt.Errorf("%w: lbfgs cannot handle %T", ErrBackend, proj)
	}
	n := len(c)
	if n == 0 {
		return Result{Converged: true}, nil
	}

	buf := s.scratch.vectors(n, 4)
	lz, al, z0, prev := buf[0], buf[1], buf[2], buf[3]
	copy(prev, l)
	for i, v := range l {
		if v > 0 {
			z0[i] = math.Sqrt(v)
		} else {
			z0[i] = 1
		}
	}

	// al = A·(z⊙z) + c
	eval := func(z []float64) {
		floats.MulTo(lz, z, z)
		A.MulVecTo(al, lz)
		floats.Add(al, c)
	}
	p := optimize.Problem{
		Func: func(z []float64) float64 {
			eval(z)
			// ½ lᵀA l + cᵀl = ½ lᵀ(A l + c) + ½ cᵀl
			return 0.5*floats.Dot(lz, al) + 0.5*floats.Dot(c, lz)
		},
		Grad: func(grad, z []float64) {
			eval(z)
			for i := range grad {
				grad[i] = 2 * z[i] * al[i]
			}
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: s.params.TolL,
		MajorIterations:   s.params.MaxIter,
	}

	result, err := optimize.Minimize(p, z0, settings, &optimize.LBFGS{})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	floats.MulTo(l, result.X, result.X)
	res := Result{
		Iterations: result.MajorIterations,
		Converged:  !result.Status.Early(),
		Residual:   relativeChange(l, prev),
	}
	if !res.Converged {
		warnNotConverged("lbfgs", res)
	}
	return res, nil
}
