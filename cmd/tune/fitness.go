package main

import (
	"context"
	"sync"

	"github.com/pthm-cable/grains/config"
	"github.com/pthm-cable/grains/telemetry"
	"github.com/pthm-cable/grains/world"
)

// Penalties, in iterations, added to the fitness.
const (
	// notConvergedPenalty multiplies max_iter for each failed solve.
	notConvergedPenalty = 10
	// failedRunFitness is returned when a run aborts.
	failedRunFitness = 1e12
)

// FitnessEvaluator runs headless simulations and scores solver settings.
type FitnessEvaluator struct {
	params     *ParamVector
	steps      int
	seeds      []int64
	baseConfig *config.Config

	mu       sync.Mutex
	lastMean float64 // mean iterations per solve from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, steps int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		steps:      steps,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastMeanIterations returns the mean iterations per solve of the most
// recent evaluation.
func (fe *FitnessEvaluator) LastMeanIterations() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean
}

// runResult holds the totals of a single simulation run.
type runResult struct {
	solves       int
	iterations   float64
	notConverged int
	err          error
}

// Evaluate computes fitness for a parameter vector (lower = better):
// total iterations plus a penalty per solve that hit max_iter.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	var total, iterations float64
	var solves int
	maxIter := float64(fe.baseConfig.Optim.MaxIter)
	for _, r := range results {
		if r.err != nil {
			return failedRunFitness
		}
		total += r.iterations + float64(r.notConverged)*notConvergedPenalty*maxIter
		iterations += r.iterations
		solves += r.solves
	}

	fe.mu.Lock()
	fe.lastMean = 0
	if solves > 0 {
		fe.lastMean = iterations / float64(solves)
	}
	fe.mu.Unlock()

	return total / float64(len(fe.seeds))
}

// runSimulation executes a single headless run and sums its stats windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) runResult {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Scene.Seed = seed

	var result runResult
	w, err := world.New(cfg, world.Options{
		StatsCallback: func(stats telemetry.WindowStats) {
			result.solves += stats.Solves
			result.iterations += stats.IterationsMean * float64(stats.Solves)
			result.notConverged += stats.NotConverged
		},
	})
	if err != nil {
		return runResult{err: err}
	}
	defer w.Close()

	if err := w.Run(context.Background(), fe.steps); err != nil {
		return runResult{err: err}
	}
	return result
}

// copyConfig returns a config copy without output so concurrent runs
// never share files.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Telemetry.OutputDir = ""
	return &cfg
}
