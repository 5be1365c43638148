// Package cone implements the projections onto the feasible sets of the
// dual contact problem.
//
// Every projector works in place and is total over ℝⁿ.
package cone

import (
	"math"
)

// Projector maps a dual vector onto a closed convex cone.
type Projector interface {
	// Project replaces x by its projection.
	Project(x []float64)
}

// NonNegative is the box projection max(x, 0) used by frictionless contacts.
type NonNegative struct{}

// Project clamps every entry at zero.
func (NonNegative) Project(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Lorentz projects consecutive blocks onto the second-order cone
// ‖t‖ ≤ Mu·n, where n is the first entry of the block and t the remaining
// Block-1 entries. The half-angle of the cone is atan(Mu).
type Lorentz struct {
	Mu    float64
	Block int
}

// Project applies the block projection. A trailing partial block is treated
// as a shorter block.
func (l Lorentz) Project(x []float64) {
	block := l.Block
	if block < 1 {
		block = 1
	}
	for start := 0; start < len(x); start += block {
		end := min(start+block, len(x))
		ProjectBlock(x[start:end], l.Mu)
	}
}

// ProjectBlock projects b = (n, t...) onto ‖t‖ ≤ mu·n.
func ProjectBlock(b []float64, mu float64) {
	if len(b) == 0 {
		return
	}
	n := b[0]
	t := b[1:]
	var s2 float64
	for _, v := range t {
		s2 += v * v
	}
	s := math.Sqrt(s2)

	switch {
	case mu*s <= -n:
		// polar cone: nearest point is the apex
		for i := range b {
			b[i] = 0
		}
	case s <= mu*n:
		// inside
	default:
		// project onto the boundary ray through (1, mu·t/‖t‖)
		alpha := (n + mu*s) / (1 + mu*mu)
		b[0] = alpha
		if s > 0 {
			scale := mu * alpha / s
			for i := range t {
				t[i] *= scale
			}
		}
	}
}

// Piece is one segment of a Piecewise projector.
type Piece struct {
	Len       int
	Projector Projector
}

// Piecewise applies its pieces to consecutive segments of the vector.
// Entries past the last piece are left unchanged.
type Piecewise []Piece

// Project applies each piece to its segment.
func (p Piecewise) Project(x []float64) {
	start := 0
	for _, piece := range p {
		if piece.Len == 0 || piece.Projector == nil {
			start += piece.Len
			continue
		}
		end := min(start+piece.Len, len(x))
		if start >= end {
			return
		}
		piece.Projector.Project(x[start:end])
		start = end
	}
}

// Feasible reports whether x already lies in the cone of p, within tol.
// It is used by tests and diagnostics; it copies x.
func Feasible(p Projector, x []float64, tol float64) bool {
	y := make([]float64, len(x))
	copy(y, x)
	p.Project(y)
	for i := range x {
		if math.Abs(x[i]-y[i]) > tol {
			return false
		}
	}
	return true
}
