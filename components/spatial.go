package components

import "gonum.org/v1/gonum/spatial/r3"

// Position represents a body's world position (center of mass).
type Position struct {
	r3.Vec
}

// Velocity holds the linear velocity in world frame and the angular
// velocity in body frame.
type Velocity struct {
	Linear  r3.Vec
	Angular r3.Vec
}

// Orientation is the body-to-world rotation as a unit quaternion.
type Orientation struct {
	Q r3.Rotation
}

// Identity returns the orientation with no rotation.
func Identity() Orientation {
	return Orientation{Q: r3.Rotation{Real: 1}}
}
