package world

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// integrate writes the corrected velocities back and advances positions
// and orientations of the moving bodies.
func (w *World) integrate() error {
	dt := w.cfg.Physics.DT
	planar := w.cfg.Physics.Dim == 2
	vels := w.optimizer.Velocities()
	omegas := w.optimizer.Omegas()
	first := w.set.NbInactive()

	for k := range vels {
		entity := w.entities[w.set.Source(first+k)]
		pos, vel, rot, _, _, _ := w.mapper.Get(entity)

		v, o := vels[k], omegas[k]
		if planar {
			v.Z = 0
			o.X, o.Y = 0, 0
		}
		if !finite(v) || !finite(o) {
			return fmt.Errorf("%w: body %d velocity %v omega %v", ErrDiverged, entity.ID(), v, o)
		}

		vel.Linear = v
		vel.Angular = o
		pos.Vec = r3.Add(pos.Vec, r3.Scale(dt, v))
		rot.Q = integrateRotation(rot.Q, o, dt)
	}
	return nil
}

// integrateRotation returns q ⊗ exp(½·dt·ω) renormalised, with ω in body frame.
func integrateRotation(q r3.Rotation, omega r3.Vec, dt float64) r3.Rotation {
	h := 0.5 * dt
	if omega == (r3.Vec{}) {
		return q
	}
	dq := quat.Exp(quat.Number{Imag: h * omega.X, Jmag: h * omega.Y, Kmag: h * omega.Z})
	n := quat.Mul(quat.Number(q), dq)
	return r3.Rotation(quat.Scale(1/quat.Abs(n), n))
}

func finite(v r3.Vec) bool {
	for _, x := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
