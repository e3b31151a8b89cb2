package stats

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"coevolve/internal/model"
)

const FitnessPlotFile = "fitness.png"

var (
	bestColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	avgColor   = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	worstColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// PlotFitness draws best, average and worst fitness per generation for the
// given records and saves the chart to outPath. The image format follows
// the file extension.
func PlotFitness(records []model.GenerationRecord, title, outPath string) error {
	if len(records) == 0 {
		return fmt.Errorf("no generation records to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	series := []struct {
		name  string
		value func(model.GenerationRecord) float64
		color color.Color
	}{
		{"best", func(r model.GenerationRecord) float64 { return r.Best }, bestColor},
		{"average", func(r model.GenerationRecord) float64 { return r.Average }, avgColor},
		{"worst", func(r model.GenerationRecord) float64 { return r.Worst }, worstColor},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(records))
		for i, r := range records {
			pts[i].X = float64(r.Generation)
			pts[i].Y = s.value(r)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.name, err)
		}
		line.LineStyle.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}
