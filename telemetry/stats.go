package telemetry

import (
	"log/slog"
	"sort"
)

// WindowStats holds aggregated solver statistics for a window of steps.
type WindowStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`

	// State at window end
	Particles      int     `csv:"particles"`
	Contacts       int     `csv:"contacts"`
	ActiveContacts int     `csv:"active_contacts"`
	Bonded         int     `csv:"bonded"`
	MinGap         float64 `csv:"min_gap"`
	KineticEnergy  float64 `csv:"kinetic_energy"`

	// Solver behaviour during window
	Solves         int     `csv:"solves"`
	Skipped        int     `csv:"skipped"`
	NotConverged   int     `csv:"not_converged"`
	IterationsMean float64 `csv:"iterations_mean"`
	IterationsMax  int     `csv:"iterations_max"`
	ResidualMax    float64 `csv:"residual_max"`

	// Contact force distribution (sampled at window end)
	ForceMean float64 `csv:"force_mean"`
	ForceP10  float64 `csv:"force_p10"`
	ForceP50  float64 `csv:"force_p50"`
	ForceP90  float64 `csv:"force_p90"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeForceStats calculates mean and percentiles of contact forces.
func ComputeForceStats(values []float64) (mean, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Int("contacts", s.Contacts),
		slog.Int("active_contacts", s.ActiveContacts),
		slog.Int("bonded", s.Bonded),
		slog.Float64("min_gap", s.MinGap),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Int("solves", s.Solves),
		slog.Int("skipped", s.Skipped),
		slog.Int("not_converged", s.NotConverged),
		slog.Float64("iterations_mean", s.IterationsMean),
		slog.Int("iterations_max", s.IterationsMax),
		slog.Float64("residual_max", s.ResidualMax),
		slog.Float64("force_mean", s.ForceMean),
		slog.Float64("force_p10", s.ForceP10),
		slog.Float64("force_p50", s.ForceP50),
		slog.Float64("force_p90", s.ForceP90),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTime,
		"particles", s.Particles,
		"contacts", s.Contacts,
		"active_contacts", s.ActiveContacts,
		"bonded", s.Bonded,
		"min_gap", s.MinGap,
		"kinetic_energy", s.KineticEnergy,
		"solves", s.Solves,
		"not_converged", s.NotConverged,
		"iterations_mean", s.IterationsMean,
		"iterations_max", s.IterationsMax,
		"residual_max", s.ResidualMax,
		"force_p50", s.ForceP50,
		"force_p90", s.ForceP90,
	)
}
