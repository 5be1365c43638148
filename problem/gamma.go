package problem

import (
	"github.com/pthm-cable/grains/contact"
)

// GammaTable carries the viscous state of each contact from one step to the
// next. Entries are keyed by particle pair, so the contact list may be
// reordered between steps.
type GammaTable struct {
	min   float64
	tol   float64
	value map[contact.Pair]float64
}

// NewGammaTable returns an empty table with bounds [gammaMin, 0].
func NewGammaTable(gammaMin, tol float64) *GammaTable {
	return &GammaTable{min: gammaMin, tol: tol, value: make(map[contact.Pair]float64)}
}

// Min returns the lower bound of gamma.
func (g *GammaTable) Min() float64 { return g.min }

// Get returns the stored gamma of c, 0 for an unknown contact.
func (g *GammaTable) Get(c contact.Contact) float64 {
	return g.value[c.Pair()]
}

// Set stores gamma for c without clamping.
func (g *GammaTable) Set(c contact.Contact, gamma float64) {
	g.value[c.Pair()] = gamma
}

// Len returns the number of stored contacts.
func (g *GammaTable) Len() int { return len(g.value) }

// Regime classifies c by its stored gamma.
func (g *GammaTable) Regime(c contact.Contact) Regime {
	gamma := g.Get(c)
	switch {
	case gamma <= g.min:
		return Bonded
	case gamma < -g.tol:
		return Negative
	default:
		return Free
	}
}

// Next integrates gamma by one step under force f and snaps the result to
// the bounds when it lies within tol of them.
func (g *GammaTable) Next(gamma, f, dt float64) float64 {
	next := max(g.min, min(0, gamma-dt*f))
	if next-g.min < g.tol {
		next = g.min
	}
	if next > -g.tol {
		next = 0
	}
	return next
}

// Commit replaces the table with the given gammas. Contacts absent from the
// list are forgotten.
func (g *GammaTable) Commit(contacts []contact.Contact, gammas []float64) {
	next := make(map[contact.Pair]float64, len(contacts))
	for i, c := range contacts {
		if gammas[i] != 0 {
			next[c.Pair()] = gammas[i]
		}
	}
	g.value = next
}
