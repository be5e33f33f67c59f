package render

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gridsense/occupancy.map/internal/stereo"
)

// ProfilePlotPNG plots ray-model probability profiles for a set of
// disparities (all at the given image row) and saves the figure as a PNG.
// Useful when tuning the peak probability and sigma fraction.
func ProfilePlotPNG(path string, model *stereo.RayModel, disparities []float64, row int) error {
	if model == nil {
		return fmt.Errorf("nil ray model")
	}
	if len(disparities) == 0 {
		return fmt.Errorf("no disparities to plot")
	}

	p := plot.New()
	p.Title.Text = "Ray model probability profiles"
	p.X.Label.Text = "Distance along ray (mm)"
	p.Y.Label.Text = "Occupancy probability"
	p.Y.Min = 0.4
	p.Y.Max = 1.0

	for _, d := range disparities {
		prof, startMM := model.Profile(d, row)
		pts := make(plotter.XYs, 0, len(prof))
		for i, v := range prof {
			pts = append(pts, plotter.XY{
				X: startMM + float64(i)*model.CellSizeMM(),
				Y: float64(v),
			})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build line for disparity %g: %w", d, err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("d=%g px", d), line)
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save profile plot: %w", err)
	}
	return nil
}
