// Package problem turns an ordered contact list into the sparse constraint
// system of one time step.
//
// Every law produces a triplet matrix B and a distance vector d such that
// the admissible velocities u satisfy d + B·u ∈ K*, where K is the cone
// returned by Cone. Rows are numbered by a RowAllocator so that Rows,
// Assemble and the force decode always agree on the layout.
package problem

import (
	"errors"

	"github.com/pthm-cable/grains/cone"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/sparse"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrRowCountMismatch reports that assembly wrote a different number of
// rows than Rows predicted. It is not recoverable.
var ErrRowCountMismatch = errors.New("problem: row count mismatch")

// Particles is the read-only particle view needed for assembly.
type Particles interface {
	Len() int
	NbInactive() int
	NbActive() int
	Position(i int) r3.Vec
	Rotation(i int) r3.Rotation
}

// ContactProblem is a contact law.
type ContactProblem interface {
	// Prepare fixes the row layout for contacts. It must be called before
	// Assemble and Cone.
	Prepare(contacts []contact.Contact)
	// Rows returns the number of constraint rows for contacts.
	Rows(contacts []contact.Contact) int
	// Assemble writes the constraint matrix with unknown columns starting
	// at firstCol, and returns it with the distance vector.
	Assemble(ps Particles, contacts []contact.Contact, firstCol int) (*sparse.COO, []float64, error)
	// Cone returns the feasible set of the multipliers for the prepared layout.
	Cone() cone.Projector
	// Update integrates per-contact state from the solved multipliers.
	// A nil lambda means no solve took place.
	Update(contacts []contact.Contact, lambda []float64) error
	// Forces decodes one signed normal force per contact.
	Forces(contacts []contact.Contact, lambda []float64) []float64
	// ShouldSolve reports whether there is anything to solve.
	ShouldSolve(contacts []contact.Contact) bool
}

// Regime classifies a viscous contact by its gamma value.
type Regime int

const (
	Free Regime = iota
	Negative
	Bonded
)

func (r Regime) String() string {
	switch r {
	case Free:
		return "free"
	case Negative:
		return "negative"
	case Bonded:
		return "bonded"
	default:
		return "unknown"
	}
}

// assembler writes constraint rows into a triplet matrix.
type assembler struct {
	ps       Particles
	coo      *sparse.COO
	dt       float64
	firstCol int
	offset   int
	nActive  int
}

func newAssembler(ps Particles, dt float64, rows, firstCol, nContacts int) *assembler {
	nActive := ps.NbActive()
	// at most 12 entries per row: two bodies, three linear and three angular columns
	return &assembler{
		ps:       ps,
		coo:      sparse.NewCOO(rows, firstCol+6*nActive, 12*nContacts),
		dt:       dt,
		firstCol: firstCol,
		offset:   ps.NbInactive(),
		nActive:  nActive,
	}
}

// row writes sign·dt·dir·(v_J + ω_J×r_J − v_I − ω_I×r_I) into row.
func (a *assembler) row(row int, c contact.Contact, dir r3.Vec, sign float64) {
	if c.I >= a.offset {
		a.body(row, c.I, c.PI, dir, -sign)
	}
	if c.J >= a.offset {
		a.body(row, c.J, c.PJ, dir, sign)
	}
}

func (a *assembler) body(row, idx int, point, dir r3.Vec, sign float64) {
	k := idx - a.offset
	lin := a.firstCol + 3*k
	a.put(row, lin, sign*a.dt*dir.X)
	a.put(row, lin+1, sign*a.dt*dir.Y)
	a.put(row, lin+2, sign*a.dt*dir.Z)

	r := r3.Sub(point, a.ps.Position(idx))
	w := toBody(a.ps.Rotation(idx), r3.Cross(dir, r))
	ang := a.firstCol + 3*a.nActive + 3*k
	a.put(row, ang, -sign*a.dt*w.X)
	a.put(row, ang+1, -sign*a.dt*w.Y)
	a.put(row, ang+2, -sign*a.dt*w.Z)
}

func (a *assembler) put(row, col int, v float64) {
	if v != 0 {
		a.coo.Append(row, col, v)
	}
}

// normalBlock writes the normal row at base with sign, and the three
// tangential rows after it.
func (a *assembler) normalBlock(base int, c contact.Contact, sign float64) {
	n := c.Normal
	a.row(base, c, n, sign)
	a.row(base+1, c, tangent(n, r3.Vec{X: 1}, n.X), 1)
	a.row(base+2, c, tangent(n, r3.Vec{Y: 1}, n.Y), 1)
	a.row(base+3, c, tangent(n, r3.Vec{Z: 1}, n.Z), 1)
}

// tangent returns e − nk·n, the k-th column of I − n·nᵀ.
func tangent(n, e r3.Vec, nk float64) r3.Vec {
	return r3.Sub(e, r3.Scale(nk, n))
}

// toBody expresses a world-frame vector in the body frame of rotation q.
func toBody(q r3.Rotation, v r3.Vec) r3.Vec {
	return r3.Rotation(quat.Conj(quat.Number(q))).Rotate(v)
}
