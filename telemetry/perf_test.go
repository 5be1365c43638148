package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseDetect)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSolve)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if _, ok := stats.PhaseAvg[PhaseDetect]; !ok {
		t.Error("expected detect phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseSolve]; !ok {
		t.Error("expected solve phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseIntegrate)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(100 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: 2 * time.Millisecond,
		PhasePct:        map[string]float64{PhaseSolve: 80, PhaseDetect: 5},
	}
	row := s.ToCSV(40)
	if row.WindowEnd != 40 || row.AvgStepUS != 2000 {
		t.Errorf("unexpected row %+v", row)
	}
	if row.SolvePct != 80 || row.DetectPct != 5 || row.AssemblePct != 0 {
		t.Errorf("phase columns not mapped: %+v", row)
	}
}
