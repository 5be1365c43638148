// Package world runs the particle simulation: ECS storage, gravity,
// contact detection, the contact solve and time integration.
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/grains/components"
	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/contact"
	"github.com/pthm-cable/grains/particles"
	"github.com/pthm-cable/grains/problem"
	"github.com/pthm-cable/grains/solver"
	"github.com/pthm-cable/grains/telemetry"
)

var (
	// ErrUnknownScene is returned for a scene name with no builder.
	ErrUnknownScene = errors.New("world: unknown scene")
	// ErrUnknownShape is returned when a snapshot names a shape the world cannot spawn.
	ErrUnknownShape = errors.New("world: unknown shape")
	// ErrDiverged indicates a non-finite position or velocity after a step.
	ErrDiverged = errors.New("world: state diverged")
	// ErrCanceled indicates Run was interrupted by its context.
	ErrCanceled = errors.New("world: run canceled")
)

// StepError wraps a failure with the step it happened in.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%g): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Options holds run-time settings not covered by config.
type Options struct {
	LogStats      bool   // Log window and perf stats via slog
	OutputDir     string // Overrides telemetry.output_dir when set
	SnapshotEvery int    // Steps between periodic snapshots (0 = off)

	// StatsCallback, if set, receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// World holds the complete simulation state.
type World struct {
	cfg   *config.Config
	opts  Options
	world *ecs.World
	rng   *rand.Rand

	mapper *ecs.Map6[
		components.Position,
		components.Velocity,
		components.Orientation,
		components.Body,
		components.Shape,
		components.Force,
	]
	filter *ecs.Filter6[
		components.Position,
		components.Velocity,
		components.Orientation,
		components.Body,
		components.Shape,
		components.Force,
	]

	optimizer Optimizer

	// Per-step state, indexed by query order
	entities []ecs.Entity
	parts    []particles.Particle
	shapes   []components.Shape
	set      *particles.Set
	contacts []contact.Contact
	result   solver.Result
	solved   bool

	// Telemetry
	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager

	bodies int
	step   int
	time   float64
}

// New creates a world and populates it with the configured scene.
func New(cfg *config.Config, opts Options) (*World, error) {
	w, err := newEmpty(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := w.buildScene(cfg.Scene.Name); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func newEmpty(cfg *config.Config, opts Options) (*World, error) {
	optimizer, err := NewOptimizer(cfg)
	if err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	w := &World{
		cfg:   cfg,
		opts:  opts,
		world: world,
		rng:   rand.New(rand.NewSource(cfg.Scene.Seed)),
		mapper: ecs.NewMap6[
			components.Position,
			components.Velocity,
			components.Orientation,
			components.Body,
			components.Shape,
			components.Force,
		](world),
		filter: ecs.NewFilter6[
			components.Position,
			components.Velocity,
			components.Orientation,
			components.Body,
			components.Shape,
			components.Force,
		](world),
		optimizer:     optimizer,
		collector:     telemetry.NewCollector(cfg.Telemetry.LogEvery, cfg.Physics.DT),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
	}
	optimizer.SetTimer(w.perfCollector)

	dir := cfg.Telemetry.OutputDir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	om, err := telemetry.NewOutputManager(dir)
	if err != nil {
		return nil, err
	}
	w.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, err
	}

	return w, nil
}

// Close writes a final snapshot when output is enabled and closes files.
func (w *World) Close() error {
	if w.outputManager == nil {
		return nil
	}
	if w.step > 0 {
		w.saveSnapshot(telemetry.ReasonFinal)
	}
	err := w.outputManager.Close()
	w.outputManager = nil
	return err
}

// Run advances the world by steps, stopping early on error or when ctx is done.
func (w *World) Run(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: w.step, Time: w.time, Err: fmt.Errorf("%w: %v", ErrCanceled, err)}
		}
		if err := w.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one time step: snapshot, detect, solve, integrate.
func (w *World) Step() error {
	w.perfCollector.StartStep()

	w.perfCollector.StartPhase(telemetry.PhaseSnapshot)
	if err := w.snapshot(); err != nil {
		return w.fail(err)
	}

	w.perfCollector.StartPhase(telemetry.PhaseDetect)
	w.detect()

	res, err := w.optimizer.Run(w.set, w.contacts)
	if err != nil {
		return w.fail(err)
	}
	w.result = res
	w.solved = len(w.optimizer.Multipliers()) > 0

	w.perfCollector.StartPhase(telemetry.PhaseIntegrate)
	if err := w.integrate(); err != nil {
		return w.fail(err)
	}
	w.step++
	w.time += w.cfg.Physics.DT

	w.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	w.recordTelemetry()

	w.perfCollector.EndStep()
	return nil
}

func (w *World) fail(err error) error {
	w.perfCollector.EndStep()
	return &StepError{Step: w.step, Time: w.time, Err: err}
}

// snapshot copies ECS state into a particle set with a-priori velocities
// v + dt·F/m.
func (w *World) snapshot() error {
	dt := w.cfg.Physics.DT
	w.entities = w.entities[:0]
	w.parts = w.parts[:0]
	w.shapes = w.shapes[:0]

	query := w.filter.Query()
	for query.Next() {
		pos, vel, rot, body, shape, force := query.Get()

		p := particles.Particle{
			Position: pos.Vec,
			Rotation: rot.Q,
			Mass:     body.Mass,
			Inertia:  body.Inertia,
			Fixed:    body.Fixed,
		}
		if !body.Fixed {
			p.Velocity = vel.Linear
			p.Omega = vel.Angular
			if body.Mass > 0 {
				p.Velocity.X += dt * force.X / body.Mass
				p.Velocity.Y += dt * force.Y / body.Mass
				p.Velocity.Z += dt * force.Z / body.Mass
			}
		}

		w.entities = append(w.entities, query.Entity())
		w.parts = append(w.parts, p)
		w.shapes = append(w.shapes, *shape)
	}

	set, err := particles.New(w.cfg.Physics.Dim, w.parts)
	if err != nil {
		return err
	}
	w.set = set
	return nil
}

// detect finds candidate contacts, indexed by particle set position.
func (w *World) detect() {
	var spheres []contact.Sphere
	var planes []contact.Plane
	for i := 0; i < w.set.Len(); i++ {
		shape := w.shapes[w.set.Source(i)]
		switch shape.Kind {
		case components.ShapeSphere:
			spheres = append(spheres, contact.Sphere{Index: i, Center: w.set.Position(i), Radius: shape.Radius})
		case components.ShapePlane:
			planes = append(planes, contact.Plane{Index: i, Point: w.set.Position(i), Normal: shape.Normal})
		}
	}
	w.contacts = contact.Detect(spheres, planes, w.cfg.Contact.DMax)
}

// recordTelemetry feeds the collectors, logs and writes output.
func (w *World) recordTelemetry() {
	if w.solved {
		w.collector.RecordSolve(w.result.Iterations, w.result.Converged, w.result.Residual)
		if !w.result.Converged {
			w.saveSnapshot(telemetry.ReasonNotConverged)
		}
	} else {
		w.collector.RecordSkip()
	}

	if w.opts.SnapshotEvery > 0 && w.step%w.opts.SnapshotEvery == 0 {
		w.saveSnapshot(telemetry.ReasonPeriodic)
	}

	slog.Debug("step",
		"step", w.step,
		"time", w.time,
		"contacts", len(w.contacts),
		"solved", w.solved,
		"result", w.result,
	)

	w.flushTelemetry()
}

// flushTelemetry checks if the stats window should be flushed.
func (w *World) flushTelemetry() {
	if !w.collector.ShouldFlush(w.step) {
		return
	}

	stats := w.collector.Flush(w.step, w.sampleState())
	perfStats := w.perfCollector.Stats()

	if w.opts.StatsCallback != nil {
		w.opts.StatsCallback(stats)
	}

	if w.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if w.outputManager != nil {
		if err := w.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := w.outputManager.WritePerf(perfStats, stats.WindowEndStep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// sampleState summarises the state after the last step.
func (w *World) sampleState() telemetry.State {
	s := telemetry.State{
		Particles:      w.set.NbActive(),
		Contacts:       len(w.contacts),
		ActiveContacts: w.optimizer.ActiveContacts(),
		MinGap:         w.cfg.Contact.DMax,
		KineticEnergy:  w.KineticEnergy(),
		Forces:         w.optimizer.ContactForces(),
	}
	for _, c := range w.contacts {
		s.MinGap = math.Min(s.MinGap, c.Distance)
	}
	if g := w.optimizer.Gamma(); g != nil {
		for _, c := range w.contacts {
			if g.Regime(c) == problem.Bonded {
				s.Bonded++
			}
		}
	}
	return s
}

// KineticEnergy returns ½mv² + ½ωᵀJω summed over moving bodies.
func (w *World) KineticEnergy() float64 {
	var e float64
	query := w.filter.Query()
	for query.Next() {
		_, vel, _, body, _, _ := query.Get()
		if body.Fixed {
			continue
		}
		v, o, j := vel.Linear, vel.Angular, body.Inertia
		e += 0.5 * body.Mass * (v.X*v.X + v.Y*v.Y + v.Z*v.Z)
		e += 0.5 * (j.X*o.X*o.X + j.Y*o.Y*o.Y + j.Z*o.Z*o.Z)
	}
	return e
}

// StepCount returns the number of completed steps.
func (w *World) StepCount() int { return w.step }

// Time returns the simulated time.
func (w *World) Time() float64 { return w.time }

// Contacts returns the contacts of the last step.
func (w *World) Contacts() []contact.Contact { return w.contacts }

// ContactForces returns one force per contact of the last step.
func (w *World) ContactForces() []float64 { return w.optimizer.ContactForces() }

// LastResult returns the solver result of the last step.
func (w *World) LastResult() solver.Result { return w.result }

// Optimizer returns the contact solve driver.
func (w *World) Optimizer() Optimizer { return w.optimizer }

// PerfStats returns timing over the perf window.
func (w *World) PerfStats() telemetry.PerfStats { return w.perfCollector.Stats() }

// OutputDir returns the output directory, or "" when output is disabled.
func (w *World) OutputDir() string { return w.outputManager.Dir() }

// Bodies returns the number of entities, obstacles included.
func (w *World) Bodies() int { return w.bodies }
