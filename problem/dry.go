package problem

import (
	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/sparse"
)

// DryWithoutFriction is the frictionless unilateral law: one
// non-negative row per contact.
type DryWithoutFriction struct {
	dt float64
}

// NewDryWithoutFriction returns the frictionless law for time step dt.
func NewDryWithoutFriction(dt float64) *DryWithoutFriction {
	return &DryWithoutFriction{dt: dt}
}

func (p *DryWithoutFriction) layout(contacts []contact.Contact) Layout {
	return Layout{Dry: len(contacts)}
}

func (p *DryWithoutFriction) Prepare([]contact.Contact) {}

func (p *DryWithoutFriction) Rows(contacts []contact.Contact) int {
	return p.layout(contacts).Rows()
}

func (p *DryWithoutFriction) Assemble(ps Particles, contacts []contact.Contact, firstCol int) (*sparse.COO, []float64, error) {
	rows := NewRowAllocator(p.layout(contacts))
	asm := newAssembler(ps, p.dt, rows.Layout().Rows(), firstCol, len(contacts))
	distances := make([]float64, rows.Layout().Rows())
	for _, c := range contacts {
		r := rows.Dry()
		asm.row(r, c, c.Normal, 1)
		distances[r] = c.Distance
	}
	if err := rows.Finish(); err != nil {
		return nil, nil, err
	}
	return asm.coo, distances, nil
}

func (p *DryWithoutFriction) Cone() cone.Projector { return cone.NonNegative{} }

func (p *DryWithoutFriction) Update([]contact.Contact, []float64) error { return nil }

func (p *DryWithoutFriction) Forces(contacts []contact.Contact, lambda []float64) []float64 {
	forces := make([]float64, len(contacts))
	rows := NewRowAllocator(p.layout(contacts))
	if len(lambda) != rows.Layout().Rows() {
		return forces
	}
	for i := range contacts {
		forces[i] = lambda[rows.Dry()]
	}
	return forces
}

func (p *DryWithoutFriction) ShouldSolve(contacts []contact.Contact) bool {
	return len(contacts) > 0
}

// DryWithFriction is the Coulomb law: each contact owns a block of one
// normal and three tangential rows, constrained to a Lorentz cone of
// slope Mu.
type DryWithFriction struct {
	dt float64
	mu float64
}

// NewDryWithFriction returns the Coulomb law with friction coefficient mu.
func NewDryWithFriction(dt, mu float64) *DryWithFriction {
	return &DryWithFriction{dt: dt, mu: mu}
}

func (p *DryWithFriction) layout(contacts []contact.Contact) Layout {
	return Layout{Push: len(contacts)}
}

func (p *DryWithFriction) Prepare([]contact.Contact) {}

func (p *DryWithFriction) Rows(contacts []contact.Contact) int {
	return p.layout(contacts).Rows()
}

func (p *DryWithFriction) Assemble(ps Particles, contacts []contact.Contact, firstCol int) (*sparse.COO, []float64, error) {
	rows := NewRowAllocator(p.layout(contacts))
	asm := newAssembler(ps, p.dt, rows.Layout().Rows(), firstCol, BlockSize*len(contacts))
	distances := make([]float64, rows.Layout().Rows())
	for _, c := range contacts {
		b := rows.Block()
		asm.normalBlock(b, c, 1)
		distances[b] = c.Distance
	}
	if err := rows.Finish(); err != nil {
		return nil, nil, err
	}
	return asm.coo, distances, nil
}

func (p *DryWithFriction) Cone() cone.Projector {
	return cone.Lorentz{Mu: p.mu, Block: BlockSize}
}

func (p *DryWithFriction) Update([]contact.Contact, []float64) error { return nil }

func (p *DryWithFriction) Forces(contacts []contact.Contact, lambda []float64) []float64 {
	forces := make([]float64, len(contacts))
	rows := NewRowAllocator(p.layout(contacts))
	if len(lambda) != rows.Layout().Rows() {
		return forces
	}
	for i := range contacts {
		forces[i] = lambda[rows.Block()]
	}
	return forces
}

func (p *DryWithFriction) ShouldSolve(contacts []contact.Contact) bool {
	return len(contacts) > 0
}
