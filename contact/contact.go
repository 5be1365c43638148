// Package contact defines the contact records consumed by the constraint
// problems and the candidate search for spheres and planes.
package contact

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Contact is a candidate collision between particles I and J.
// Normal is a unit vector pointing from I towards J; Distance is the signed
// gap (negative when overlapping). PI and PJ are the closest points on each
// particle, used for the lever arms.
type Contact struct {
	I, J     int
	Normal   r3.Vec
	Distance float64
	PI, PJ   r3.Vec
}

// Pair identifies a contact independently of its position in the list.
type Pair struct {
	A, B int
}

// Pair returns the normalised particle pair of the contact.
func (c Contact) Pair() Pair {
	if c.I <= c.J {
		return Pair{A: c.I, B: c.J}
	}
	return Pair{A: c.J, B: c.I}
}

// Involves reports whether at least one side of the contact is at or above
// the first active index.
func (c Contact) Involves(firstActive int) bool {
	return c.I >= firstActive || c.J >= firstActive
}
