package world

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/grains/components"
	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Telemetry.OutputDir = ""
	return cfg
}

func newWorld(t *testing.T, cfg *config.Config, opts Options) *World {
	t.Helper()
	w, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// spheres returns position and velocity of every moving body.
func spheres(w *World) (pos, vel []r3.Vec) {
	query := w.filter.Query()
	for query.Next() {
		p, v, _, body, _, _ := query.Get()
		if body.Fixed {
			continue
		}
		pos = append(pos, p.Vec)
		vel = append(vel, v.Linear)
	}
	return pos, vel
}

func TestNew_UnknownScene(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Name = "volcano"
	_, err := New(cfg, Options{})
	if !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("err = %v, want ErrUnknownScene", err)
	}
}

func TestStep_FreeFallWhileSeparated(t *testing.T) {
	w := newWorld(t, testConfig(t), Options{})
	if err := w.Step(); err != nil {
		t.Fatal(err)
	}
	_, vel := spheres(w)
	if len(vel) != 1 {
		t.Fatalf("moving bodies = %d, want 1", len(vel))
	}
	if math.Abs(vel[0].Z+0.05) > 1e-12 {
		t.Errorf("v_z = %v, want -g·dt = -0.05", vel[0].Z)
	}
	if f := w.ContactForces(); len(f) != 1 || f[0] != 0 {
		t.Errorf("forces = %v, want one zero force", f)
	}
}

func TestStep_SphereOnPlaneComesToRest(t *testing.T) {
	cfg := testConfig(t)
	w := newWorld(t, cfg, Options{})
	if err := w.Run(context.Background(), 60); err != nil {
		t.Fatal(err)
	}

	pos, vel := spheres(w)
	r := cfg.Scene.Radius
	if pos[0].Z < r-1e-3 || pos[0].Z > r+1e-3 {
		t.Errorf("height = %v, want %v", pos[0].Z, r)
	}
	if math.Abs(vel[0].Z) > 1e-3 {
		t.Errorf("v_z = %v, want rest", vel[0].Z)
	}
	if f := w.ContactForces(); len(f) != 1 || math.Abs(f[0]-1) > 1e-3 {
		t.Errorf("forces = %v, want m·g = 1", f)
	}
	if !w.LastResult().Converged {
		t.Error("last solve did not converge")
	}
	if w.StepCount() != 60 || math.Abs(w.Time()-3) > 1e-9 {
		t.Errorf("step %d time %v", w.StepCount(), w.Time())
	}
}

func TestStep_Planar(t *testing.T) {
	cfg := testConfig(t)
	cfg.Physics.Dim = 2
	w := newWorld(t, cfg, Options{})
	if err := w.Run(context.Background(), 60); err != nil {
		t.Fatal(err)
	}

	pos, vel := spheres(w)
	if pos[0].Z != 0 || vel[0].Z != 0 {
		t.Errorf("left the plane: pos %v vel %v", pos[0], vel[0])
	}
	if math.Abs(pos[0].Y-cfg.Scene.Radius) > 1e-3 {
		t.Errorf("height = %v, want %v", pos[0].Y, cfg.Scene.Radius)
	}
}

func TestStep_InclinedPlaneSlides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Name = SceneInclinedPlane
	w := newWorld(t, cfg, Options{})

	theta := cfg.Derived.InclineRad
	n := r3.Vec{X: -math.Sin(theta), Z: math.Cos(theta)}
	slope := r3.Vec{X: math.Cos(theta), Z: math.Sin(theta)}

	start, _ := spheres(w)
	if err := w.Run(context.Background(), 40); err != nil {
		t.Fatal(err)
	}
	end, _ := spheres(w)

	if r3.Dot(end[0], slope) >= r3.Dot(start[0], slope) {
		t.Errorf("ball did not move downhill: %v -> %v", start[0], end[0])
	}
	if h := r3.Dot(end[0], n); h < cfg.Scene.Radius-1e-3 {
		t.Errorf("ball sank into the incline: height %v", h)
	}
}

func TestStep_PileWithFriction(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Name = ScenePile
	cfg.Scene.Count = 4
	cfg.Problem.Law = config.LawViscousFriction
	cfg.Optim.Rho = 10
	cfg.Optim.MaxIter = 2000
	w := newWorld(t, cfg, Options{})

	if w.Bodies() != 5 {
		t.Fatalf("bodies = %d, want 4 balls and a floor", w.Bodies())
	}
	if err := w.Run(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	if w.Optimizer().Gamma() == nil {
		t.Error("viscous law should expose its gamma table")
	}
	if len(w.ContactForces()) != len(w.Contacts()) {
		t.Errorf("%d forces for %d contacts", len(w.ContactForces()), len(w.Contacts()))
	}
}

func TestRun_Canceled(t *testing.T) {
	w := newWorld(t, testConfig(t), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx, 10)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Step != 0 {
		t.Errorf("err = %#v, want StepError at step 0", err)
	}
}

func TestStep_DivergenceIsReported(t *testing.T) {
	w := newWorld(t, testConfig(t), Options{})
	query := w.filter.Query()
	for query.Next() {
		_, vel, _, body, _, _ := query.Get()
		if !body.Fixed {
			vel.Linear.X = math.NaN()
		}
	}

	err := w.Step()
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StepError", err)
	}
	if !errors.Is(err, ErrDiverged) {
		t.Errorf("err = %v, want ErrDiverged", err)
	}
}

func TestNewOptimizer_AllPairs(t *testing.T) {
	laws := []string{config.LawDry, config.LawDryFriction, config.LawViscous, config.LawViscousFriction}
	solvers := []string{config.SolverAPGD, config.SolverPG, config.SolverUzawa, config.SolverLBFGS}

	for _, law := range laws {
		for _, s := range solvers {
			t.Run(law+"/"+s, func(t *testing.T) {
				cfg := testConfig(t)
				cfg.Problem.Law = law
				cfg.Optim.Solver = s
				o, err := NewOptimizer(cfg)
				if s == config.SolverLBFGS && config.HasFriction(law) {
					if !errors.Is(err, config.ErrInvalid) {
						t.Errorf("err = %v, want ErrInvalid", err)
					}
					return
				}
				if err != nil {
					t.Fatal(err)
				}
				viscous := law == config.LawViscous || law == config.LawViscousFriction
				if (o.Gamma() != nil) != viscous {
					t.Errorf("Gamma() = %v for law %s", o.Gamma(), law)
				}
			})
		}
	}

	cfg := testConfig(t)
	cfg.Optim.Solver = "newton"
	if _, err := NewOptimizer(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestIntegrateRotation(t *testing.T) {
	q := integrateRotation(components.Identity().Q, r3.Vec{Z: math.Pi}, 1)
	if math.Abs(math.Abs(q.Kmag)-1) > 1e-12 || math.Abs(q.Real) > 1e-12 {
		t.Errorf("half turn about z: got %v", q)
	}

	same := integrateRotation(q, r3.Vec{}, 1)
	if same != q {
		t.Errorf("zero spin changed orientation: %v -> %v", q, same)
	}
}

func TestOutput_WritesTelemetryAndFinalSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	w, err := New(cfg, Options{OutputDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"config.yaml", "telemetry.csv", "perf.csv", "snapshots/snapshot_20_final.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestNewFromSnapshot_RestoresState(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Count = 2
	cfg.Problem.Law = config.LawViscous
	w := newWorld(t, cfg, Options{})
	if err := w.Run(context.Background(), 40); err != nil {
		t.Fatal(err)
	}
	if w.Optimizer().Gamma().Len() == 0 {
		t.Fatal("expected viscous state after resting contact")
	}

	path, err := telemetry.SaveSnapshot(w.Snapshot(""), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := telemetry.LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}

	restored, err := NewFromSnapshot(cfg, snap, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()

	if restored.StepCount() != 40 || restored.Bodies() != w.Bodies() {
		t.Errorf("step %d bodies %d", restored.StepCount(), restored.Bodies())
	}
	if got, want := restored.Optimizer().Gamma().Len(), w.Optimizer().Gamma().Len(); got != want {
		t.Errorf("gamma entries = %d, want %d", got, want)
	}
	p0, _ := spheres(w)
	p1, _ := spheres(restored)
	for i := range p0 {
		if p0[i] != p1[i] {
			t.Errorf("body %d at %v, want %v", i, p1[i], p0[i])
		}
	}
	if err := restored.Step(); err != nil {
		t.Fatalf("step after restore: %v", err)
	}
}

func TestNewFromSnapshot_DimMismatch(t *testing.T) {
	cfg := testConfig(t)
	snap := &telemetry.Snapshot{Version: telemetry.SnapshotVersion, Dim: 2}
	if _, err := NewFromSnapshot(cfg, snap, Options{}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestNewFromSnapshot_UnknownShape(t *testing.T) {
	cfg := testConfig(t)
	snap := &telemetry.Snapshot{
		Version:   telemetry.SnapshotVersion,
		Dim:       cfg.Physics.Dim,
		Particles: []telemetry.ParticleState{{ID: 7, Shape: "cube", Mass: 1}},
	}
	_, err := NewFromSnapshot(cfg, snap, Options{})
	if !errors.Is(err, ErrUnknownShape) {
		t.Errorf("err = %v, want ErrUnknownShape", err)
	}
	if errors.Is(err, ErrUnknownScene) {
		t.Errorf("unknown shape reported as unknown scene: %v", err)
	}
}

func TestStatsCallback_ReceivesWindows(t *testing.T) {
	cfg := testConfig(t)
	var windows []telemetry.WindowStats
	w := newWorld(t, cfg, Options{StatsCallback: func(s telemetry.WindowStats) {
		windows = append(windows, s)
	}})
	if err := w.Run(context.Background(), 30); err != nil {
		t.Fatal(err)
	}

	if len(windows) != 3 {
		t.Fatalf("windows = %d, want 3 of %d steps", len(windows), cfg.Telemetry.LogEvery)
	}
	last := windows[2]
	if last.WindowEndStep != 30 || last.Particles != 1 || last.Contacts != 1 {
		t.Errorf("last window = %+v", last)
	}
	if last.Solves+last.Skipped != 10 {
		t.Errorf("solves %d + skipped %d, want 10", last.Solves, last.Skipped)
	}
}
