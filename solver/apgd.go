package solver

import (
	"math"

	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
)

// APGD is the accelerated projected gradient descent with Nesterov
// momentum.
type APGD struct {
	params  Params
	scratch arena
}

// NewAPGD returns an accelerated projected gradient solver.
func NewAPGD(p Params) *APGD {
	return &APGD{params: p}
}

func (s *APGD) Name() string { return "apgd" }

func (s *APGD) Solve(A *sparse.CSR, c, l []float64, proj cone.Projector) (Result, error) {
	if err := checkDims(A, c, l); err != nil {
		return Result{}, err
	}
	n := len(c)
	if n == 0 {
		return Result{Converged: true}, nil
	}

	buf := s.scratch.vectors(n, 4)
	prev, y, grad, tmp := buf[0], buf[1], buf[2], buf[3]
	copy(y, l)
	theta := 1.0

	var res Result
	for k := 1; k <= s.params.MaxIter; k++ {
		copy(prev, l)

		A.MulVecTo(grad, y)
		floats.Add(grad, c)
		floats.AddScaledTo(l, y, -s.params.Rho, grad)
		proj.Project(l)

		thetaNext := 0.5 * (theta*math.Sqrt(4+theta*theta) - theta*theta)
		beta := theta * (1 - theta) / (theta*theta + thetaNext)
		floats.SubTo(y, l, prev)
		floats.Scale(beta, y)
		floats.Add(y, l)
		theta = thetaNext

		res = Result{Iterations: k, Residual: relativeChange(l, prev)}
		if s.params.Verbose {
			diagnostics("apgd", k, A, c, l, tmp, res.Residual)
		}
		if res.Residual < s.params.TolL {
			res.Converged = true
			return res, nil
		}
	}

	warnNotConverged("apgd", res)
	return res, nil
}
