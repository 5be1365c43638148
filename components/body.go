package components

import "gonum.org/v1/gonum/spatial/r3"

// Body holds mass properties of an entity. Fixed bodies are obstacles and
// never move.
type Body struct {
	Mass    float64
	Inertia r3.Vec // body-frame principal moments
	Fixed   bool
}

// SphereBody returns the mass properties of a solid ball.
func SphereBody(mass, radius float64) Body {
	j := 0.4 * mass * radius * radius
	return Body{Mass: mass, Inertia: r3.Vec{X: j, Y: j, Z: j}}
}

// DiskBody returns the mass properties of a solid disk spinning in the
// xy plane. The in-plane moments are kept positive so the mass matrix
// stays invertible.
func DiskBody(mass, radius float64) Body {
	jz := 0.5 * mass * radius * radius
	return Body{Mass: mass, Inertia: r3.Vec{X: jz / 2, Y: jz / 2, Z: jz}}
}

// Obstacle returns the mass properties of a fixed body.
func Obstacle() Body {
	return Body{Fixed: true}
}
