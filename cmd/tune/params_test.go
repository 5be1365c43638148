package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/grains/config"
)

func TestParamVector_NormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-12 {
			t.Errorf("%s: %v -> %v", pv.Specs[i].Name, raw[i], back[i])
		}
	}
}

func TestParamVector_ApplyClampsRho(t *testing.T) {
	pv := NewParamVector()
	cfg := config.Defaults()

	pv.ApplyToConfig(cfg, []float64{9})
	if math.Abs(cfg.Optim.Rho-1e4) > 1e-6 {
		t.Errorf("rho = %v, want clamped 1e4", cfg.Optim.Rho)
	}
	pv.ApplyToConfig(cfg, []float64{math.Log10(200)})
	if math.Abs(cfg.Optim.Rho-200) > 1e-9 {
		t.Errorf("rho = %v, want 200", cfg.Optim.Rho)
	}
}

func TestFitnessEvaluator_PrefersConvergingStep(t *testing.T) {
	base := config.Defaults()
	base.Optim.MaxIter = 500
	fe := NewFitnessEvaluator(NewParamVector(), 20, []int64{1}, base)

	good := fe.Evaluate([]float64{math.Log10(200)})
	if fe.LastMeanIterations() <= 0 {
		t.Fatal("expected solves to be counted")
	}
	slow := fe.Evaluate([]float64{-1})
	if good >= slow {
		t.Errorf("fitness rho=200: %v, rho=0.1: %v; want the larger step to win", good, slow)
	}
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tune.png")
	records := []EvalRecord{
		{Eval: 1, Rho: 200, IterationsMean: 12},
		{Eval: 2, Rho: 0.5, IterationsMean: 480},
		{Eval: 3, Rho: 40, IterationsMean: 60},
	}
	if err := savePlot(path, records); err != nil {
		t.Fatalf("savePlot: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("plot not written: %v", err)
	}
	if err := savePlot(path, nil); err == nil {
		t.Error("expected error for empty records")
	}
}
