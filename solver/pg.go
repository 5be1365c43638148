package solver

import (
	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
)

// ProjectedGradient iterates l ← Π(l − ρ(A·l + c)).
type ProjectedGradient struct {
	params  Params
	name    string
	scratch arena
}

// NewProjectedGradient returns a projected gradient solver.
func NewProjectedGradient(p Params) *ProjectedGradient {
	return &ProjectedGradient{params: p, name: "pg"}
}

// Uzawa is the dual ascent form of the same fixed point map.
type Uzawa struct {
	ProjectedGradient
}

// NewUzawa returns an Uzawa solver.
func NewUzawa(p Params) *Uzawa {
	return &Uzawa{ProjectedGradient{params: p, name: "uzawa"}}
}

func (s *ProjectedGradient) Name() string { return s.name }

func (s *ProjectedGradient) Solve(A *sparse.CSR, c, l []float64, proj cone.Projector) (Result, error) {
	if err := checkDims(A, c, l); err != nil {
		return Result{}, err
	}
	n := len(c)
	if n == 0 {
		return Result{Converged: true}, nil
	}

	buf := s.scratch.vectors(n, 3)
	prev, grad, tmp := buf[0], buf[1], buf[2]

	var res Result
	for k := 1; k <= s.params.MaxIter; k++ {
		copy(prev, l)
		A.MulVecTo(grad, l)
		floats.Add(grad, c)
		floats.AddScaled(l, -s.params.Rho, grad)
		proj.Project(l)

		res = Result{Iterations: k, Residual: relativeChange(l, prev)}
		if s.params.Verbose {
			diagnostics(s.name, k, A, c, l, tmp, res.Residual)
		}
		if res.Residual < s.params.TolL {
			res.Converged = true
			return res, nil
		}
	}

	warnNotConverged(s.name, res)
	return res, nil
}
