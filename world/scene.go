package world

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/grains/components"
)

// Scene names.
const (
	SceneSphereOnPlane = "sphere_on_plane"
	SceneInclinedPlane = "inclined_plane"
	ScenePile          = "pile"
)

// maxPlacementTries bounds rejection sampling per pile body.
const maxPlacementTries = 1000

func (w *World) buildScene(name string) error {
	switch name {
	case SceneSphereOnPlane:
		w.sphereOnPlane()
	case SceneInclinedPlane:
		w.inclinedPlane()
	case ScenePile:
		w.pile()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	slog.Info("scene built", "scene", name, "bodies", w.bodies)
	return nil
}

// up is the direction opposite to gravity: +z in 3D, +y in 2D.
func (w *World) up() r3.Vec {
	if w.cfg.Physics.Dim == 2 {
		return r3.Vec{Y: 1}
	}
	return r3.Vec{Z: 1}
}

// gap is the initial clearance between bodies, inside the detection range.
func (w *World) gap() float64 {
	return 0.5 * w.cfg.Contact.DMax
}

// sphereOnPlane stacks count balls on a floor through the origin.
func (w *World) sphereOnPlane() {
	up := w.up()
	w.spawnPlane(r3.Vec{}, up)

	r, g := w.cfg.Scene.Radius, w.gap()
	for i := 0; i < w.cfg.Scene.Count; i++ {
		h := r + g + float64(i)*(2*r+g)
		w.spawnSphere(r3.Scale(h, up))
	}
}

// inclinedPlane places balls in a row on a plane tilted by incline_deg.
func (w *World) inclinedPlane() {
	theta := w.cfg.Derived.InclineRad
	sin, cos := math.Sincos(theta)

	var n, slope r3.Vec
	if w.cfg.Physics.Dim == 2 {
		n = r3.Vec{X: -sin, Y: cos}
		slope = r3.Vec{X: cos, Y: sin}
	} else {
		n = r3.Vec{X: -sin, Z: cos}
		slope = r3.Vec{X: cos, Z: sin}
	}
	w.spawnPlane(r3.Vec{}, n)

	r, g := w.cfg.Scene.Radius, w.gap()
	for i := 0; i < w.cfg.Scene.Count; i++ {
		c := r3.Add(r3.Scale(r+g, n), r3.Scale(3*r*float64(i), slope))
		w.spawnSphere(c)
	}
}

// pile drops count non-overlapping balls at random over a floor.
func (w *World) pile() {
	up := w.up()
	planar := w.cfg.Physics.Dim == 2
	w.spawnPlane(r3.Vec{}, up)

	r, g := w.cfg.Scene.Radius, w.gap()
	count := w.cfg.Scene.Count
	perSide := math.Ceil(math.Cbrt(float64(count)))
	if planar {
		perSide = math.Ceil(math.Sqrt(float64(count)))
	}
	side := 3 * r * perSide
	height := side

	placed := make([]r3.Vec, 0, count)
	for len(placed) < count {
		var c r3.Vec
		ok := false
		for try := 0; try < maxPlacementTries && !ok; try++ {
			c = r3.Scale(r+g+w.rng.Float64()*height, up)
			c.X = (w.rng.Float64() - 0.5) * side
			if !planar {
				c.Y = (w.rng.Float64() - 0.5) * side
			}
			ok = true
			for _, p := range placed {
				if r3.Norm(r3.Sub(c, p)) < 2*r+g {
					ok = false
					break
				}
			}
		}
		if !ok {
			height += 2 * r
			continue
		}
		placed = append(placed, c)
		w.spawnSphere(c)
	}
}

// spawnSphere creates a moving ball (disk in 2D) under gravity.
func (w *World) spawnSphere(center r3.Vec) {
	m, r := w.cfg.Scene.Mass, w.cfg.Scene.Radius
	body := components.SphereBody(m, r)
	if w.cfg.Physics.Dim == 2 {
		body = components.DiskBody(m, r)
	}
	w.spawn(center, components.Velocity{}, components.Identity(), body,
		components.Shape{Kind: components.ShapeSphere, Radius: r})
}

// spawnPlane creates a fixed boundary through point.
func (w *World) spawnPlane(point, normal r3.Vec) {
	w.spawn(point, components.Velocity{}, components.Identity(), components.Obstacle(),
		components.Shape{Kind: components.ShapePlane, Normal: r3.Unit(normal)})
}

func (w *World) spawn(center r3.Vec, vel components.Velocity, rot components.Orientation, body components.Body, shape components.Shape) ecs.Entity {
	pos := components.Position{Vec: center}
	force := components.Force{}
	if !body.Fixed {
		force.Vec = r3.Scale(-w.cfg.Physics.Gravity*body.Mass, w.up())
	}
	w.bodies++
	return w.mapper.NewEntity(&pos, &vel, &rot, &body, &shape, &force)
}
