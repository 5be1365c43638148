package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeForceStats(t *testing.T) {
	values := []float64{1.0, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.1}
	mean, p10, p50, p90 := ComputeForceStats(values)

	if math.Abs(mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", mean)
	}
	if math.Abs(p10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", p10)
	}
	if math.Abs(p50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", p50)
	}
	if math.Abs(p90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", p90)
	}
	if values[0] != 1.0 {
		t.Error("input slice must not be reordered")
	}
}

func TestComputeForceStatsEmpty(t *testing.T) {
	mean, p10, p50, p90 := ComputeForceStats(nil)
	if mean != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}
}

func TestCollector_Flush(t *testing.T) {
	c := NewCollector(3, 0.05)
	c.RecordSolve(10, true, 1e-7)
	c.RecordSolve(30, false, 1e-3)
	c.RecordSkip()

	if c.ShouldFlush(2) {
		t.Error("window should not flush early")
	}
	if !c.ShouldFlush(3) {
		t.Error("window should flush after 3 steps")
	}

	s := c.Flush(3, State{Particles: 4, Contacts: 2, Forces: []float64{1, 3}})
	if s.Solves != 2 || s.Skipped != 1 || s.NotConverged != 1 {
		t.Errorf("counters = %+v", s)
	}
	if s.IterationsMean != 20 || s.IterationsMax != 30 || s.ResidualMax != 1e-3 {
		t.Errorf("iteration stats = %+v", s)
	}
	if math.Abs(s.SimTime-0.15) > 1e-12 || s.ForceMean != 2 {
		t.Errorf("sim_time=%v force_mean=%v", s.SimTime, s.ForceMean)
	}

	next := c.Flush(6, State{})
	if next.Solves != 0 || next.WindowStartStep != 3 {
		t.Errorf("counters not reset: %+v", next)
	}
}
