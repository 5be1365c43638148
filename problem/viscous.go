package problem

import (
	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/sparse"
)

// Viscous law defaults.
const (
	DefaultGammaMin = -3.0
	DefaultMu       = 0.1
	DefaultGammaTol = 1e-6
)

// ViscousWithoutFriction adds a reversed "pull" row for every contact whose
// gamma is negative, so that such contacts resist separation.
type ViscousWithoutFriction struct {
	dt    float64
	gamma *GammaTable
}

// NewViscousWithoutFriction returns the frictionless viscous law.
func NewViscousWithoutFriction(dt, gammaMin, tol float64) *ViscousWithoutFriction {
	return &ViscousWithoutFriction{dt: dt, gamma: NewGammaTable(gammaMin, tol)}
}

// Gamma exposes the per-contact state.
func (p *ViscousWithoutFriction) Gamma() *GammaTable { return p.gamma }

func (p *ViscousWithoutFriction) layout(contacts []contact.Contact) Layout {
	l := Layout{Dry: len(contacts)}
	for _, c := range contacts {
		if p.gamma.Regime(c) != Free {
			l.Negative++
		}
	}
	return l
}

func (p *ViscousWithoutFriction) Prepare([]contact.Contact) {}

func (p *ViscousWithoutFriction) Rows(contacts []contact.Contact) int {
	return p.layout(contacts).Rows()
}

func (p *ViscousWithoutFriction) Assemble(ps Particles, contacts []contact.Contact, firstCol int) (*sparse.COO, []float64, error) {
	rows := NewRowAllocator(p.layout(contacts))
	n := rows.Layout().Rows()
	asm := newAssembler(ps, p.dt, n, firstCol, n)
	distances := make([]float64, n)
	for _, c := range contacts {
		r := rows.Dry()
		asm.row(r, c, c.Normal, 1)
		distances[r] = c.Distance
		if p.gamma.Regime(c) != Free {
			r = rows.Negative()
			asm.row(r, c, c.Normal, -1)
			distances[r] = -c.Distance
		}
	}
	if err := rows.Finish(); err != nil {
		return nil, nil, err
	}
	return asm.coo, distances, nil
}

func (p *ViscousWithoutFriction) Cone() cone.Projector { return cone.NonNegative{} }

func (p *ViscousWithoutFriction) Forces(contacts []contact.Contact, lambda []float64) []float64 {
	forces := make([]float64, len(contacts))
	rows := NewRowAllocator(p.layout(contacts))
	if len(lambda) != rows.Layout().Rows() {
		return forces
	}
	for i, c := range contacts {
		forces[i] = lambda[rows.Dry()]
		if p.gamma.Regime(c) != Free {
			forces[i] -= lambda[rows.Negative()]
		}
	}
	return forces
}

func (p *ViscousWithoutFriction) Update(contacts []contact.Contact, lambda []float64) error {
	updateGamma(p.gamma, contacts, p.Forces(contacts, lambda), p.dt)
	return nil
}

func (p *ViscousWithoutFriction) ShouldSolve(contacts []contact.Contact) bool {
	return len(contacts) > 0
}

// ViscousWithFriction combines the viscous pull rows with Coulomb friction
// on bonded contacts. Free and negative contacts keep frictionless rows;
// a bonded contact (gamma at its minimum) gets a push block and a pull
// block, each a normal row followed by three tangential rows.
type ViscousWithFriction struct {
	dt    float64
	mu    float64
	gamma *GammaTable
	prep  Layout
}

// NewViscousWithFriction returns the viscous Coulomb law.
func NewViscousWithFriction(dt, mu, gammaMin, tol float64) *ViscousWithFriction {
	return &ViscousWithFriction{dt: dt, mu: mu, gamma: NewGammaTable(gammaMin, tol)}
}

// Gamma exposes the per-contact state.
func (p *ViscousWithFriction) Gamma() *GammaTable { return p.gamma }

func (p *ViscousWithFriction) layout(contacts []contact.Contact) Layout {
	var l Layout
	for _, c := range contacts {
		switch p.gamma.Regime(c) {
		case Bonded:
			l.Push++
			l.Pull++
		case Negative:
			l.Dry++
			l.Negative++
		default:
			l.Dry++
		}
	}
	return l
}

func (p *ViscousWithFriction) Prepare(contacts []contact.Contact) {
	p.prep = p.layout(contacts)
}

func (p *ViscousWithFriction) Rows(contacts []contact.Contact) int {
	return p.layout(contacts).Rows()
}

func (p *ViscousWithFriction) Assemble(ps Particles, contacts []contact.Contact, firstCol int) (*sparse.COO, []float64, error) {
	rows := NewRowAllocator(p.layout(contacts))
	n := rows.Layout().Rows()
	asm := newAssembler(ps, p.dt, n, firstCol, n)
	distances := make([]float64, n)
	for _, c := range contacts {
		switch p.gamma.Regime(c) {
		case Bonded:
			push, pull := rows.Bonded()
			asm.normalBlock(push, c, 1)
			distances[push] = c.Distance
			asm.normalBlock(pull, c, -1)
			distances[pull] = -c.Distance
		case Negative:
			r := rows.Dry()
			asm.row(r, c, c.Normal, 1)
			distances[r] = c.Distance
			r = rows.Negative()
			asm.row(r, c, c.Normal, -1)
			distances[r] = -c.Distance
		default:
			r := rows.Dry()
			asm.row(r, c, c.Normal, 1)
			distances[r] = c.Distance
		}
	}
	if err := rows.Finish(); err != nil {
		return nil, nil, err
	}
	return asm.coo, distances, nil
}

func (p *ViscousWithFriction) Cone() cone.Projector { return p.prep.Cone(p.mu) }

func (p *ViscousWithFriction) Forces(contacts []contact.Contact, lambda []float64) []float64 {
	forces := make([]float64, len(contacts))
	rows := NewRowAllocator(p.layout(contacts))
	if len(lambda) != rows.Layout().Rows() {
		return forces
	}
	for i, c := range contacts {
		switch p.gamma.Regime(c) {
		case Bonded:
			push, pull := rows.Bonded()
			forces[i] = lambda[push] - lambda[pull]
		case Negative:
			forces[i] = lambda[rows.Dry()] - lambda[rows.Negative()]
		default:
			forces[i] = lambda[rows.Dry()]
		}
	}
	return forces
}

func (p *ViscousWithFriction) Update(contacts []contact.Contact, lambda []float64) error {
	updateGamma(p.gamma, contacts, p.Forces(contacts, lambda), p.dt)
	return nil
}

func (p *ViscousWithFriction) ShouldSolve(contacts []contact.Contact) bool {
	return len(contacts) > 0
}

func updateGamma(g *GammaTable, contacts []contact.Contact, forces []float64, dt float64) {
	next := make([]float64, len(contacts))
	for i, c := range contacts {
		next[i] = g.Next(g.Get(c), forces[i], dt)
	}
	g.Commit(contacts, next)
}
