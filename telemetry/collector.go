package telemetry

// Collector accumulates per-step solver results and produces WindowStats
// every windowSteps steps.
type Collector struct {
	windowSteps int
	dt          float64

	windowStartStep int

	solves        int
	skipped       int
	notConverged  int
	iterationsSum int
	iterationsMax int
	residualMax   float64
}

// NewCollector creates a new stats collector.
// windowSteps: steps per window; dt: seconds per step.
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: windowSteps, dt: dt}
}

// RecordSolve records one solver run.
func (c *Collector) RecordSolve(iterations int, converged bool, residual float64) {
	c.solves++
	c.iterationsSum += iterations
	if iterations > c.iterationsMax {
		c.iterationsMax = iterations
	}
	if residual > c.residualMax {
		c.residualMax = residual
	}
	if !converged {
		c.notConverged++
	}
}

// RecordSkip records a step without constraints.
func (c *Collector) RecordSkip() {
	c.skipped++
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int) bool {
	return step-c.windowStartStep >= c.windowSteps
}

// State is the world state sampled when a window is flushed.
type State struct {
	Particles      int
	Contacts       int
	ActiveContacts int
	Bonded         int
	MinGap         float64
	KineticEnergy  float64
	Forces         []float64
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(step int, state State) WindowStats {
	var itMean float64
	if c.solves > 0 {
		itMean = float64(c.iterationsSum) / float64(c.solves)
	}
	fMean, fP10, fP50, fP90 := ComputeForceStats(state.Forces)

	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   step,
		SimTime:         float64(step) * c.dt,

		Particles:      state.Particles,
		Contacts:       state.Contacts,
		ActiveContacts: state.ActiveContacts,
		Bonded:         state.Bonded,
		MinGap:         state.MinGap,
		KineticEnergy:  state.KineticEnergy,

		Solves:         c.solves,
		Skipped:        c.skipped,
		NotConverged:   c.notConverged,
		IterationsMean: itMean,
		IterationsMax:  c.iterationsMax,
		ResidualMax:    c.residualMax,

		ForceMean: fMean,
		ForceP10:  fP10,
		ForceP50:  fP50,
		ForceP90:  fP90,
	}

	c.windowStartStep = step
	c.solves = 0
	c.skipped = 0
	c.notConverged = 0
	c.iterationsSum = 0
	c.iterationsMax = 0
	c.residualMax = 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}

// StartAt begins the current window at step, for runs resumed from a snapshot.
func (c *Collector) StartAt(step int) {
	c.windowStartStep = step
}
