// Package main searches, with CMA-ES, for the solver step that converges
// in the fewest iterations on a scene.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/grains/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// EvalRecord is one row of tune_log.csv.
type EvalRecord struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	Rho            float64 `csv:"rho"`
	IterationsMean float64 `csv:"iterations_mean"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	steps := flag.Int("steps", 0, "Steps per run (0 = use config)")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 60, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Solver warnings would flood the progress output
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()
	nSteps := baseCfg.Physics.Steps
	if *steps > 0 {
		nSteps = *steps
	}

	params := NewParamVector()

	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = baseCfg.Scene.Seed + int64(i*1000)
	}

	evaluator := NewFitnessEvaluator(params, nSteps, evalSeeds, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3*math.Log(float64(dim)+1))
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}

	logPath := filepath.Join(*outputDir, "tune_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	var records []EvalRecord
	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			clamped := params.Clamp(raw)
			fitness := evaluator.Evaluate(clamped)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			rec := []EvalRecord{{
				Eval:           evalCount,
				Fitness:        fitness,
				Rho:            math.Pow(10, clamped[0]),
				IterationsMean: evaluator.LastMeanIterations(),
			}}
			records = append(records, rec[0])
			if !headerWritten {
				err = gocsv.Marshal(rec, logFile)
				headerWritten = true
			} else {
				err = gocsv.MarshalWithoutHeaders(rec, logFile)
			}
			if err != nil {
				log.Printf("failed to write log row: %v", err)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: rho=%.3g iterations=%.1f (best=%.0f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, rec[0].Rho, rec[0].IterationsMean, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES tuning with %d parameters, population=%d, max_evals=%d\n", dim, popSize, *maxEvals)
	fmt.Printf("Scene %s, law %s, solver %s, seeds %d, steps per run %d\n",
		baseCfg.Scene.Name, baseCfg.Problem.Law, baseCfg.Optim.Solver, *seeds, nSteps)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("tuning ended: %v", err)
	}

	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	fmt.Printf("\nTuning complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.0f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s (%s): %.6f\n", spec.Name, spec.Path, bestParams[i])
	}

	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	plotPath := filepath.Join(*outputDir, "tune.png")
	if err := savePlot(plotPath, records); err != nil {
		log.Printf("failed to write plot: %v", err)
	} else {
		fmt.Printf("Plot saved to: %s\n", plotPath)
	}

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
