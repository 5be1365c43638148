// Package optim drives one contact solve: it builds the cost vector from the
// a-priori velocities, forms the dual problem of the chosen contact law,
// runs the solver and recovers the corrected velocities.
package optim

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/problem"
	"github.com/pthm-cable/grains/solver"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Phase names reported to a PhaseTimer.
const (
	PhaseAssemble = "assemble"
	PhaseVectors  = "vectors"
	PhaseSolve    = "solve"
	PhaseRecover  = "recover"
)

// Particles is the particle view consumed by the driver.
type Particles interface {
	problem.Particles
	Dim() int
	Mass(i int) float64
	Inertia(i int) r3.Vec
	DesiredVelocity(i int) r3.Vec
	DesiredOmega(i int) r3.Vec
}

// PhaseTimer receives phase boundaries. telemetry.PerfCollector satisfies it.
type PhaseTimer interface {
	StartPhase(phase string)
}

// Params configures the driver.
type Params struct {
	// CDec is the number of leading cost columns reserved for backends
	// that add slack variables.
	CDec int
	// ActiveThreshold is the multiplier value above which a row counts as
	// an active contact.
	ActiveThreshold float64
	// ParallelThreshold is the non-zero count above which sparse products
	// run on several goroutines.
	ParallelThreshold int
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		ActiveThreshold:   1e-12,
		ParallelThreshold: sparse.DefaultParallelThreshold,
	}
}

// Optim couples a contact law with a solver.
type Optim[P problem.ContactProblem, S solver.Solver] struct {
	problem P
	solver  S
	params  Params
	timer   PhaseTimer

	nActive int
	cost    []float64
	invMass []float64
	vd      []float64
	u       []float64
	bias    []float64
	lambda  []float64
	forces  []float64
	result  solver.Result
}

// New returns a driver for the given law and solver.
func New[P problem.ContactProblem, S solver.Solver](p P, s S, params Params) *Optim[P, S] {
	return &Optim[P, S]{problem: p, solver: s, params: params}
}

// SetTimer installs a phase timer. A nil timer disables timing.
func (o *Optim[P, S]) SetTimer(t PhaseTimer) { o.timer = t }

// Problem returns the contact law.
func (o *Optim[P, S]) Problem() P { return o.problem }

// Solver returns the solver.
func (o *Optim[P, S]) Solver() S { return o.solver }

func (o *Optim[P, S]) phase(name string) {
	if o.timer != nil {
		o.timer.StartPhase(name)
	}
}

// buildCost fills the cost vector -P⊙v_d and the diagonal of P⁻¹. Linear
// components beyond the spatial dimension stay zero.
func (o *Optim[P, S]) buildCost(ps Particles) {
	n := o.params.CDec + 6*o.nActive
	o.cost = resize(o.cost, n)
	o.invMass = resize(o.invMass, n)
	o.vd = resize(o.vd, n)

	off := ps.NbInactive()
	dim := ps.Dim()
	for k := 0; k < o.nActive; k++ {
		i := off + k
		m := ps.Mass(i)
		v := ps.DesiredVelocity(i)
		lin := o.params.CDec + 3*k
		for d, vd := range [3]float64{v.X, v.Y, v.Z} {
			o.invMass[lin+d] = 1 / m
			if d < dim {
				o.cost[lin+d] = -m * vd
			}
		}

		inertia := ps.Inertia(i)
		w := ps.DesiredOmega(i)
		ang := o.params.CDec + 3*o.nActive + 3*k
		for d, j := range [3]float64{inertia.X, inertia.Y, inertia.Z} {
			o.invMass[ang+d] = 1 / j
			o.cost[ang+d] = -j * [3]float64{w.X, w.Y, w.Z}[d]
		}
	}

	// v_d = -P⁻¹c
	floats.MulTo(o.vd, o.invMass, o.cost)
	floats.Scale(-1, o.vd)
}

// Run solves the contact problem for one step. On return the corrected
// velocities, multipliers and contact forces are available through the
// accessors. Non-convergence is reported in the result; errors are fatal
// for the step.
func (o *Optim[P, S]) Run(ps Particles, contacts []contact.Contact) (solver.Result, error) {
	o.nActive = ps.NbActive()
	o.buildCost(ps)
	o.u = resize(o.u, len(o.vd))
	copy(o.u, o.vd)

	if !o.shouldSolve(ps, contacts) {
		o.lambda = o.lambda[:0]
		o.forces = resize(o.forces, len(contacts))
		o.result = solver.Result{Converged: true}
		if err := o.problem.Update(contacts, nil); err != nil {
			return o.result, err
		}
		return o.result, nil
	}

	o.phase(PhaseAssemble)
	o.problem.Prepare(contacts)
	coo, distances, err := o.problem.Assemble(ps, contacts, o.params.CDec)
	if err != nil {
		return solver.Result{}, fmt.Errorf("assemble %d contacts: %w", len(contacts), err)
	}
	B, err := coo.ToCSR()
	if err != nil {
		return solver.Result{}, fmt.Errorf("compress constraints: %w", err)
	}
	B.SetParallelThreshold(o.params.ParallelThreshold)

	o.phase(PhaseVectors)
	A := sparse.MulDiagTrans(B, o.invMass)
	A.SetParallelThreshold(o.params.ParallelThreshold)
	rows := len(distances)
	o.bias = resize(o.bias, rows)
	B.MulVecTo(o.bias, o.vd)
	floats.Add(o.bias, distances)
	o.lambda = resize(o.lambda, rows)

	o.phase(PhaseSolve)
	res, err := o.solver.Solve(A, o.bias, o.lambda, o.problem.Cone())
	if err != nil {
		return res, fmt.Errorf("%s solve: %w", o.solver.Name(), err)
	}
	o.result = res

	o.phase(PhaseRecover)
	// u = v_d + P⁻¹Bᵀλ
	B.MulTransVecTo(o.u, o.lambda)
	floats.Mul(o.u, o.invMass)
	floats.Add(o.u, o.vd)

	o.forces = o.problem.Forces(contacts, o.lambda)
	if err := o.problem.Update(contacts, o.lambda); err != nil {
		return res, fmt.Errorf("update contact state: %w", err)
	}

	slog.Debug("optim_run",
		"solver", o.solver.Name(),
		"contacts", len(contacts),
		"rows", rows,
		"nnz", A.NNZ(),
		"result", res,
		"active_contacts", o.ActiveContacts(),
	)
	return res, nil
}

func (o *Optim[P, S]) shouldSolve(ps Particles, contacts []contact.Contact) bool {
	if o.nActive == 0 || !o.problem.ShouldSolve(contacts) {
		return false
	}
	first := ps.NbInactive()
	for _, c := range contacts {
		if c.Involves(first) {
			return true
		}
	}
	return false
}

// Velocities returns the corrected linear velocity of each active particle.
func (o *Optim[P, S]) Velocities() []r3.Vec {
	return o.vectors(o.params.CDec)
}

// Omegas returns the corrected body-frame angular velocity of each active
// particle.
func (o *Optim[P, S]) Omegas() []r3.Vec {
	return o.vectors(o.params.CDec + 3*o.nActive)
}

func (o *Optim[P, S]) vectors(start int) []r3.Vec {
	out := make([]r3.Vec, o.nActive)
	for k := range out {
		b := start + 3*k
		out[k] = r3.Vec{X: o.u[b], Y: o.u[b+1], Z: o.u[b+2]}
	}
	return out
}

// Multipliers returns the dual vector of the last solve. It is empty when
// the solve was skipped.
func (o *Optim[P, S]) Multipliers() []float64 { return o.lambda }

// ContactForces returns one signed force per contact of the last Run,
// decoded before the contact state was advanced.
func (o *Optim[P, S]) ContactForces() []float64 { return o.forces }

// Iterations returns the iteration count of the last solve.
func (o *Optim[P, S]) Iterations() int { return o.result.Iterations }

// Result returns the solver result of the last Run.
func (o *Optim[P, S]) Result() solver.Result { return o.result }

// ActiveContacts counts multipliers strictly above the active threshold.
func (o *Optim[P, S]) ActiveContacts() int {
	n := 0
	for _, l := range o.lambda {
		if l > o.params.ActiveThreshold {
			n++
		}
	}
	return n
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}
