package main

import (
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// savePlot writes mean iterations per solve against the step, one point per
// evaluation, on a log-scaled step axis.
func savePlot(path string, records []EvalRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("no evaluations to plot")
	}

	sorted := make([]EvalRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rho < sorted[j].Rho })

	pts := make(plotter.XYs, len(sorted))
	for i, r := range sorted {
		pts[i].X = r.Rho
		pts[i].Y = r.IterationsMean
	}

	p := plot.New()
	p.Title.Text = "Solver step search"
	p.X.Label.Text = "rho"
	p.Y.Label.Text = "iterations per solve"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter, plotter.NewGrid())

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
