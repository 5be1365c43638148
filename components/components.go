// Package components defines ECS components for the particle world.
package components

import "gonum.org/v1/gonum/spatial/r3"

// ShapeKind selects the collision geometry of a body.
type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota // Ball, or disk in 2D
	ShapePlane                   // Infinite boundary through Position
)

// String returns the shape name used in snapshots and logs.
func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapePlane:
		return "plane"
	default:
		return "unknown"
	}
}

// Shape holds collision geometry.
type Shape struct {
	Kind   ShapeKind
	Radius float64 // spheres only
	Normal r3.Vec  // planes only, outward and unit length
}

// Force is the external force applied every step (gravity, loads).
type Force struct {
	r3.Vec
}
