package world

import (
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/grains/components"
	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/telemetry"
)

// Snapshot captures the current bodies and the contacts of the last step.
// Contact ends are entity IDs.
func (w *World) Snapshot(reason string) *telemetry.Snapshot {
	s := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Seed:    w.cfg.Scene.Seed,
		Scene:   w.cfg.Scene.Name,
		Dim:     w.cfg.Physics.Dim,
		Step:    w.step,
		Time:    w.time,
		Reason:  reason,
	}

	query := w.filter.Query()
	for query.Next() {
		pos, vel, rot, body, shape, _ := query.Get()
		s.Particles = append(s.Particles, telemetry.ParticleState{
			ID:       query.Entity().ID(),
			Fixed:    body.Fixed,
			Shape:    shape.Kind.String(),
			Radius:   shape.Radius,
			Normal:   array(shape.Normal),
			Mass:     body.Mass,
			Inertia:  array(body.Inertia),
			Position: array(pos.Vec),
			Rotation: [4]float64{rot.Q.Real, rot.Q.Imag, rot.Q.Jmag, rot.Q.Kmag},
			Velocity: array(vel.Linear),
			Omega:    array(vel.Angular),
		})
	}

	if w.set == nil {
		return s
	}
	forces := w.optimizer.ContactForces()
	gamma := w.optimizer.Gamma()
	for k, c := range w.contacts {
		cs := telemetry.ContactState{
			I:        int(w.entities[w.set.Source(c.I)].ID()),
			J:        int(w.entities[w.set.Source(c.J)].ID()),
			Distance: c.Distance,
		}
		if k < len(forces) {
			cs.Force = forces[k]
		}
		if gamma != nil {
			cs.Gamma = gamma.Get(c)
		}
		s.Contacts = append(s.Contacts, cs)
	}
	return s
}

// saveSnapshot writes a snapshot when output is enabled.
func (w *World) saveSnapshot(reason string) {
	if w.outputManager == nil {
		return
	}
	path, err := w.outputManager.WriteSnapshot(w.Snapshot(reason))
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "step", w.step, "reason", reason)
}

// NewFromSnapshot rebuilds a world from a saved snapshot, restoring the
// viscous contact state. Gravity comes from cfg.
func NewFromSnapshot(cfg *config.Config, snap *telemetry.Snapshot, opts Options) (*World, error) {
	if snap.Dim != cfg.Physics.Dim {
		return nil, fmt.Errorf("snapshot dim %d, config dim %d", snap.Dim, cfg.Physics.Dim)
	}

	w, err := newEmpty(cfg, opts)
	if err != nil {
		return nil, err
	}

	byOldID := make(map[uint32]ecs.Entity, len(snap.Particles))
	for _, p := range snap.Particles {
		var shape components.Shape
		switch p.Shape {
		case components.ShapeSphere.String():
			shape = components.Shape{Kind: components.ShapeSphere, Radius: p.Radius}
		case components.ShapePlane.String():
			shape = components.Shape{Kind: components.ShapePlane, Normal: vec(p.Normal)}
		default:
			w.Close()
			return nil, fmt.Errorf("body %d: shape %q: %w", p.ID, p.Shape, ErrUnknownShape)
		}
		rot := components.Orientation{Q: r3.Rotation{Real: p.Rotation[0], Imag: p.Rotation[1], Jmag: p.Rotation[2], Kmag: p.Rotation[3]}}
		vel := components.Velocity{Linear: vec(p.Velocity), Angular: vec(p.Omega)}
		body := components.Body{Mass: p.Mass, Inertia: vec(p.Inertia), Fixed: p.Fixed}
		byOldID[p.ID] = w.spawn(vec(p.Position), vel, rot, body, shape)
	}

	if err := w.restoreGamma(snap.Contacts, byOldID); err != nil {
		w.Close()
		return nil, err
	}
	w.step = snap.Step
	w.time = snap.Time
	w.collector.StartAt(snap.Step)
	slog.Info("world restored", "step", w.step, "bodies", w.bodies, "contacts", len(snap.Contacts))
	return w, nil
}

// restoreGamma maps saved contact ends to particle set indices and seeds
// the viscous state table.
func (w *World) restoreGamma(saved []telemetry.ContactState, byOldID map[uint32]ecs.Entity) error {
	gamma := w.optimizer.Gamma()
	if gamma == nil || len(saved) == 0 {
		return nil
	}
	if err := w.snapshot(); err != nil {
		return err
	}

	setIndex := make(map[ecs.Entity]int, len(w.entities))
	for source, e := range w.entities {
		setIndex[e] = w.set.Index(source)
	}
	for _, cs := range saved {
		if cs.Gamma == 0 {
			continue
		}
		ei, okI := byOldID[uint32(cs.I)]
		ej, okJ := byOldID[uint32(cs.J)]
		if !okI || !okJ {
			return fmt.Errorf("contact %d-%d references an unknown body", cs.I, cs.J)
		}
		gamma.Set(contact.Contact{I: setIndex[ei], J: setIndex[ej]}, cs.Gamma)
	}
	return nil
}

func array(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }
