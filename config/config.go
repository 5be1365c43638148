// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Solver names.
const (
	SolverAPGD  = "apgd"
	SolverPG    = "pg"
	SolverUzawa = "uzawa"
	SolverLBFGS = "lbfgs"
)

// Contact law names.
const (
	LawDry             = "dry"
	LawDryFriction     = "dry_friction"
	LawViscous         = "viscous"
	LawViscousFriction = "viscous_friction"
)

// HasFriction reports whether law projects onto friction cones.
func HasFriction(law string) bool {
	return law == LawDryFriction || law == LawViscousFriction
}

// CheckPairing rejects solver and law combinations the solver cannot run.
// LBFGS only handles non-negative multipliers.
func CheckPairing(solver, law string) error {
	if solver == SolverLBFGS && HasFriction(law) {
		return fmt.Errorf("%w: solver %q cannot handle friction law %q", ErrInvalid, solver, law)
	}
	return nil
}

// Config holds all simulation configuration parameters.
type Config struct {
	Physics   PhysicsConfig   `yaml:"physics"`
	Optim     OptimConfig     `yaml:"optim"`
	Problem   ProblemConfig   `yaml:"problem"`
	Contact   ContactConfig   `yaml:"contact"`
	Scene     SceneConfig     `yaml:"scene"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PhysicsConfig holds time stepping parameters.
type PhysicsConfig struct {
	DT      float64 `yaml:"dt"`      // Time step
	Dim     int     `yaml:"dim"`     // 2 for disks, 3 for spheres
	Gravity float64 `yaml:"gravity"` // Acceleration along -z (-y in 2D)
	Steps   int     `yaml:"steps"`   // Steps to run from the CLI
}

// OptimConfig holds solver parameters.
type OptimConfig struct {
	Solver            string  `yaml:"solver"` // apgd, pg, uzawa or lbfgs
	MaxIter           int     `yaml:"max_iter"`
	Rho               float64 `yaml:"rho"`   // Gradient step
	TolL              float64 `yaml:"tol_l"` // Relative change of the multipliers
	Verbose           bool    `yaml:"verbose"`
	CDec              int     `yaml:"c_dec"` // Leading slack columns
	ActiveThreshold   float64 `yaml:"active_threshold"`
	ParallelThreshold int     `yaml:"parallel_threshold"` // Non-zeros before matvec goes parallel
}

// ProblemConfig selects the contact law.
type ProblemConfig struct {
	Law      string  `yaml:"law"` // dry, dry_friction, viscous or viscous_friction
	Mu       float64 `yaml:"mu"`
	GammaMin float64 `yaml:"gamma_min"`
	GammaTol float64 `yaml:"gamma_tol"`
}

// ContactConfig holds contact detection parameters.
type ContactConfig struct {
	DMax float64 `yaml:"dmax"` // Gap below which a pair becomes a contact
}

// SceneConfig describes the initial particle layout.
type SceneConfig struct {
	Name       string  `yaml:"name"` // sphere_on_plane, inclined_plane or pile
	Count      int     `yaml:"count"`
	Radius     float64 `yaml:"radius"`
	Mass       float64 `yaml:"mass"`
	InclineDeg float64 `yaml:"incline_deg"`
	Seed       int64   `yaml:"seed"`
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	OutputDir  string `yaml:"output_dir"` // Empty disables file output
	LogEvery   int    `yaml:"log_every"`  // Steps between step logs
	PerfWindow int    `yaml:"perf_window"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	InclineRad float64
	// GravityStep is the velocity gained under gravity in one step.
	GravityStep float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Physics.DT <= 0:
		return fmt.Errorf("%w: physics.dt = %v", ErrInvalid, c.Physics.DT)
	case c.Physics.Dim != 2 && c.Physics.Dim != 3:
		return fmt.Errorf("%w: physics.dim = %d", ErrInvalid, c.Physics.Dim)
	case c.Optim.MaxIter < 1:
		return fmt.Errorf("%w: optim.max_iter = %d", ErrInvalid, c.Optim.MaxIter)
	case c.Optim.Rho <= 0:
		return fmt.Errorf("%w: optim.rho = %v", ErrInvalid, c.Optim.Rho)
	case c.Optim.TolL <= 0:
		return fmt.Errorf("%w: optim.tol_l = %v", ErrInvalid, c.Optim.TolL)
	case c.Optim.CDec < 0:
		return fmt.Errorf("%w: optim.c_dec = %d", ErrInvalid, c.Optim.CDec)
	case c.Problem.Mu < 0:
		return fmt.Errorf("%w: problem.mu = %v", ErrInvalid, c.Problem.Mu)
	case c.Problem.GammaMin >= 0:
		return fmt.Errorf("%w: problem.gamma_min = %v", ErrInvalid, c.Problem.GammaMin)
	case c.Contact.DMax < 0:
		return fmt.Errorf("%w: contact.dmax = %v", ErrInvalid, c.Contact.DMax)
	case c.Scene.Radius <= 0 || c.Scene.Mass <= 0:
		return fmt.Errorf("%w: scene radius %v mass %v", ErrInvalid, c.Scene.Radius, c.Scene.Mass)
	}

	switch c.Optim.Solver {
	case SolverAPGD, SolverPG, SolverUzawa, SolverLBFGS:
	default:
		return fmt.Errorf("%w: optim.solver = %q", ErrInvalid, c.Optim.Solver)
	}
	switch c.Problem.Law {
	case LawDry, LawDryFriction, LawViscous, LawViscousFriction:
	default:
		return fmt.Errorf("%w: problem.law = %q", ErrInvalid, c.Problem.Law)
	}
	return CheckPairing(c.Optim.Solver, c.Problem.Law)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.InclineRad = c.Scene.InclineDeg * math.Pi / 180
	c.Derived.GravityStep = c.Physics.Gravity * c.Physics.DT
	if c.Telemetry.LogEvery < 1 {
		c.Telemetry.LogEvery = 1
	}
	if c.Telemetry.PerfWindow < 1 {
		c.Telemetry.PerfWindow = 60
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
