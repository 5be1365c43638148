package world

import (
	"fmt"

	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/optim"
	"github.com/pthm-cable/grains/problem"
	"github.com/pthm-cable/grains/solver"
	"gonum.org/v1/gonum/spatial/r3"
)

// Optimizer is the contact solve the world runs once per step.
// optim.Optim satisfies it for every law and solver pairing.
type Optimizer interface {
	Run(ps optim.Particles, contacts []contact.Contact) (solver.Result, error)
	SetTimer(t optim.PhaseTimer)
	Velocities() []r3.Vec
	Omegas() []r3.Vec
	Multipliers() []float64
	ContactForces() []float64
	ActiveContacts() int
	// Gamma returns the viscous state table, or nil for dry laws.
	Gamma() *problem.GammaTable
}

type gammaLaw interface {
	Gamma() *problem.GammaTable
}

// lawOptimizer adds Gamma to a driver for any law.
type lawOptimizer[P problem.ContactProblem] struct {
	*optim.Optim[P, solver.Solver]
}

func (o lawOptimizer[P]) Gamma() *problem.GammaTable {
	if g, ok := any(o.Problem()).(gammaLaw); ok {
		return g.Gamma()
	}
	return nil
}

func bind[P problem.ContactProblem](p P, s solver.Solver, params optim.Params) Optimizer {
	return lawOptimizer[P]{Optim: optim.New(p, s, params)}
}

// NewSolver builds the solver named by cfg.Optim.Solver.
func NewSolver(cfg *config.Config) (solver.Solver, error) {
	p := solver.Params{
		MaxIter: cfg.Optim.MaxIter,
		Rho:     cfg.Optim.Rho,
		TolL:    cfg.Optim.TolL,
		Verbose: cfg.Optim.Verbose,
	}
	switch cfg.Optim.Solver {
	case config.SolverAPGD:
		return solver.NewAPGD(p), nil
	case config.SolverPG:
		return solver.NewProjectedGradient(p), nil
	case config.SolverUzawa:
		return solver.NewUzawa(p), nil
	case config.SolverLBFGS:
		return solver.NewLBFGS(p), nil
	default:
		return nil, fmt.Errorf("%w: solver %q", config.ErrInvalid, cfg.Optim.Solver)
	}
}

// NewOptimizer pairs the configured contact law with the configured solver.
func NewOptimizer(cfg *config.Config) (Optimizer, error) {
	if err := config.CheckPairing(cfg.Optim.Solver, cfg.Problem.Law); err != nil {
		return nil, err
	}
	s, err := NewSolver(cfg)
	if err != nil {
		return nil, err
	}

	params := optim.Params{
		CDec:              cfg.Optim.CDec,
		ActiveThreshold:   cfg.Optim.ActiveThreshold,
		ParallelThreshold: cfg.Optim.ParallelThreshold,
	}
	dt := cfg.Physics.DT
	pc := cfg.Problem

	switch pc.Law {
	case config.LawDry:
		return bind(problem.NewDryWithoutFriction(dt), s, params), nil
	case config.LawDryFriction:
		return bind(problem.NewDryWithFriction(dt, pc.Mu), s, params), nil
	case config.LawViscous:
		return bind(problem.NewViscousWithoutFriction(dt, pc.GammaMin, pc.GammaTol), s, params), nil
	case config.LawViscousFriction:
		return bind(problem.NewViscousWithFriction(dt, pc.Mu, pc.GammaMin, pc.GammaTol), s, params), nil
	default:
		return nil, fmt.Errorf("%w: law %q", config.ErrInvalid, pc.Law)
	}
}
