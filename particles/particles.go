// Package particles holds the per-step snapshot of rigid bodies handed to
// the contact solver. Obstacles (fixed bodies) always come first so the
// active bodies occupy a contiguous index range.
package particles

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidParticle is returned for non-positive mass or inertia on an
// active body.
var ErrInvalidParticle = errors.New("invalid particle")

// Particle describes one rigid body.
type Particle struct {
	Position r3.Vec
	Rotation r3.Rotation
	Mass     float64
	// Inertia is the diagonal of the body-frame inertia tensor.
	Inertia  r3.Vec
	Velocity r3.Vec
	// Omega is the body-frame angular velocity.
	Omega r3.Vec
	Fixed bool
}

// Set is an immutable, index-addressed view of the particles for one step.
type Set struct {
	dim       int
	nInactive int
	items     []Particle
	// order[k] is the caller's index of the particle stored at k.
	order []int
}

// New builds a Set, moving fixed bodies to the front while keeping the
// relative order within each group.
func New(dim int, ps []Particle) (*Set, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("dimension %d: %w", dim, ErrInvalidParticle)
	}

	order := make([]int, len(ps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ps[order[a]].Fixed && !ps[order[b]].Fixed
	})

	s := &Set{dim: dim, items: make([]Particle, len(ps)), order: order}
	for k, i := range order {
		p := ps[i]
		if p.Rotation == (r3.Rotation{}) {
			p.Rotation = r3.Rotation{Real: 1}
		}
		if p.Fixed {
			s.nInactive++
		} else if p.Mass <= 0 || p.Inertia.X <= 0 || p.Inertia.Y <= 0 || p.Inertia.Z <= 0 {
			return nil, fmt.Errorf("particle %d: mass %v inertia %v: %w", i, p.Mass, p.Inertia, ErrInvalidParticle)
		}
		s.items[k] = p
	}
	return s, nil
}

// Dim returns the spatial dimension, 2 or 3.
func (s *Set) Dim() int { return s.dim }

// Len returns the total number of particles.
func (s *Set) Len() int { return len(s.items) }

// NbInactive returns the number of obstacles, which is also the first
// active index.
func (s *Set) NbInactive() int { return s.nInactive }

// NbActive returns the number of moving particles.
func (s *Set) NbActive() int { return len(s.items) - s.nInactive }

// Position returns the centre of particle i.
func (s *Set) Position(i int) r3.Vec { return s.items[i].Position }

// Rotation returns the orientation of particle i.
func (s *Set) Rotation(i int) r3.Rotation { return s.items[i].Rotation }

// Mass returns the mass of particle i.
func (s *Set) Mass(i int) float64 { return s.items[i].Mass }

// Inertia returns the diagonal body-frame inertia of particle i.
func (s *Set) Inertia(i int) r3.Vec { return s.items[i].Inertia }

// DesiredVelocity returns the unconstrained linear velocity of particle i.
func (s *Set) DesiredVelocity(i int) r3.Vec { return s.items[i].Velocity }

// DesiredOmega returns the unconstrained body-frame angular velocity of
// particle i.
func (s *Set) DesiredOmega(i int) r3.Vec { return s.items[i].Omega }

// Source maps a Set index back to the index passed to New.
func (s *Set) Source(i int) int { return s.order[i] }

// Index maps a caller index to its Set index. It returns -1 when absent.
func (s *Set) Index(source int) int {
	for k, i := range s.order {
		if i == source {
			return k
		}
	}
	return -1
}
