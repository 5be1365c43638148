package solver

import (
	"errors"
	"testing"

	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
)

func denseCSR(t *testing.T, a [][]float64) *sparse.CSR {
	t.Helper()
	coo := sparse.NewCOO(len(a), len(a[0]), 0)
	for i, row := range a {
		for j, v := range row {
			if v != 0 {
				coo.Append(i, j, v)
			}
		}
	}
	m, err := coo.ToCSR()
	if err != nil {
		t.Fatalf("ToCSR: %v", err)
	}
	return m
}

func objective(A *sparse.CSR, c, l []float64) float64 {
	al := make([]float64, len(l))
	A.MulVecTo(al, l)
	return 0.5*floats.Dot(l, al) + floats.Dot(c, l)
}

func tightParams() Params {
	return Params{MaxIter: 10000, Rho: 0.4, TolL: 1e-12}
}

func allSolvers(p Params) []Solver {
	return []Solver{NewProjectedGradient(p), NewUzawa(p), NewAPGD(p)}
}

func TestSolve_InteriorSolution(t *testing.T) {
	A := denseCSR(t, [][]float64{{2, 0.5}, {0.5, 1}})
	c := []float64{-1, -1}
	want := []float64{2.0 / 7, 6.0 / 7}

	for _, s := range allSolvers(tightParams()) {
		t.Run(s.Name(), func(t *testing.T) {
			l := make([]float64, 2)
			res, err := s.Solve(A, c, l, cone.NonNegative{})
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if !res.Converged {
				t.Fatalf("did not converge: %+v", res)
			}
			if !floats.EqualApprox(l, want, 1e-6) {
				t.Errorf("l = %v, want %v", l, want)
			}
		})
	}
}

func TestLBFGS_InteriorSolution(t *testing.T) {
	A := denseCSR(t, [][]float64{{2, 0.5}, {0.5, 1}})
	c := []float64{-1, -1}
	l := make([]float64, 2)
	res, err := NewLBFGS(Params{MaxIter: 500, TolL: 1e-7}).Solve(A, c, l, cone.NonNegative{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.Converged {
		t.Fatalf("did not converge: %+v", res)
	}
	if !floats.EqualApprox(l, []float64{2.0 / 7, 6.0 / 7}, 1e-5) {
		t.Errorf("l = %v", l)
	}
}

func TestSolve_ActiveBound(t *testing.T) {
	A := denseCSR(t, [][]float64{{1, 0}, {0, 1}})
	c := []float64{-1, 2}
	for _, s := range allSolvers(tightParams()) {
		t.Run(s.Name(), func(t *testing.T) {
			l := []float64{5, 5}
			if _, err := s.Solve(A, c, l, cone.NonNegative{}); err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if !floats.EqualApprox(l, []float64{1, 0}, 1e-8) {
				t.Errorf("l = %v, want [1 0]", l)
			}
		})
	}
}

func TestSolve_LorentzCone(t *testing.T) {
	A := denseCSR(t, [][]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	})
	c := []float64{-1, -1, 0, 0}
	// minimiser is the projection of -c onto the cone
	want := []float64{1.2, 0.6, 0, 0}
	for _, s := range allSolvers(tightParams()) {
		t.Run(s.Name(), func(t *testing.T) {
			l := make([]float64, 4)
			res, err := s.Solve(A, c, l, cone.Lorentz{Mu: 0.5, Block: 4})
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if !res.Converged || !floats.EqualApprox(l, want, 1e-8) {
				t.Errorf("l = %v (%+v), want %v", l, res, want)
			}
		})
	}
}

func TestProjectedGradient_MonotoneObjective(t *testing.T) {
	A := denseCSR(t, [][]float64{{2, 0.5}, {0.5, 1}})
	c := []float64{-1, 0.2}
	last := objective(A, c, []float64{0, 0})
	for k := 1; k <= 30; k++ {
		l := make([]float64, 2)
		p := tightParams()
		p.MaxIter = k
		if _, err := NewProjectedGradient(p).Solve(A, c, l, cone.NonNegative{}); err != nil {
			t.Fatalf("Solve: %v", err)
		}
		obj := objective(A, c, l)
		if obj > last+1e-15 {
			t.Fatalf("objective increased at iteration %d: %v > %v", k, obj, last)
		}
		last = obj
	}
}

func TestSolve_ReportsNonConvergence(t *testing.T) {
	A := denseCSR(t, [][]float64{{2, 0.5}, {0.5, 1}})
	c := []float64{-1, -1}
	p := Params{MaxIter: 3, Rho: 0.01, TolL: 1e-12}
	for _, s := range allSolvers(p) {
		t.Run(s.Name(), func(t *testing.T) {
			l := make([]float64, 2)
			res, err := s.Solve(A, c, l, cone.NonNegative{})
			if err != nil {
				t.Fatalf("non-convergence must not be an error: %v", err)
			}
			if res.Converged || res.Iterations != 3 {
				t.Errorf("result = %+v, want 3 iterations without convergence", res)
			}
			if floats.Max(l) == 0 {
				t.Error("last iterate should be kept")
			}
		})
	}
}

func TestUzawa_MatchesProjectedGradient(t *testing.T) {
	A := denseCSR(t, [][]float64{{3, 1, 0}, {1, 2, 0.5}, {0, 0.5, 1}})
	c := []float64{-1, 0.5, -2}
	p := Params{MaxIter: 50, Rho: 0.2, TolL: 1e-14}

	lp := make([]float64, 3)
	lu := make([]float64, 3)
	rp, _ := NewProjectedGradient(p).Solve(A, c, lp, cone.NonNegative{})
	ru, _ := NewUzawa(p).Solve(A, c, lu, cone.NonNegative{})
	if !floats.Equal(lp, lu) || rp != ru {
		t.Errorf("pg %v %+v, uzawa %v %+v", lp, rp, lu, ru)
	}
}

func TestSolve_Errors(t *testing.T) {
	A := denseCSR(t, [][]float64{{1, 0}, {0, 1}})

	for _, s := range append(allSolvers(DefaultParams()), NewLBFGS(DefaultParams())) {
		t.Run(s.Name(), func(t *testing.T) {
			_, err := s.Solve(A, []float64{1, 2, 3}, make([]float64, 3), cone.NonNegative{})
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch, got %v", err)
			}
		})
	}

	_, err := NewLBFGS(DefaultParams()).Solve(A, []float64{-1, -1}, make([]float64, 2), cone.Lorentz{Mu: 1, Block: 2})
	if !errors.Is(err, ErrBackend) {
		t.Errorf("expected ErrBackend for a Lorentz cone, got %v", err)
	}
}

func TestArena_ReusesBuffers(t *testing.T) {
	var a arena
	first := a.vectors(5, 2)
	second := a.vectors(5, 2)
	if &first[0][0] != &second[0][0] {
		t.Error("same size should reuse storage")
	}
	third := a.vectors(7, 2)
	if len(third[0]) != 7 {
		t.Errorf("resized buffer has length %d", len(third[0]))
	}
}
