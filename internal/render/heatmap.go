// Package render exports occupancy grids and ray-model diagnostics as HTML
// charts and PNG images. All rendering is outside the fusion hot path: the
// fusion core never calls into this package.
package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gridsense/occupancy.map/internal/stereo/grid"
)

// viridis-style ramp shared by the occupancy charts.
var heatColours = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// OccupancyScatterHTML writes an interactive top-down scatter chart of the
// grid's informative cells (probability away from the prior). Each point is
// coloured by the column's extreme occupancy probability.
func OccupancyScatterHTML(w io.Writer, g *grid.OccupancyGrid, title string) error {
	if g == nil {
		return fmt.Errorf("nil grid")
	}
	cfg := g.Config()

	data := make([]opts.ScatterData, 0, 1024)
	for y := 0; y < cfg.DimensionCells; y++ {
		for x := 0; x < cfg.DimensionCells; x++ {
			// Most informative cell in the vertical column.
			best := float32(0.5)
			for z := 0; z < cfg.DimensionCellsVertical; z++ {
				c, ok := g.CellAt(x, y, z)
				if !ok {
					continue
				}
				if dev(c.Probability) > dev(best) {
					best = c.Probability
				}
			}
			if dev(best) < 0.05 {
				continue
			}
			wx := (float64(x-cfg.DimensionCells/2) + 0.5) * cfg.CellSizeMM / 1000
			wy := (float64(y-cfg.DimensionCells/2) + 0.5) * cfg.CellSizeMM / 1000
			data = append(data, opts.ScatterData{Value: []interface{}{wx, wy, best}})
		}
	}

	pad := cfg.ExtentMM() / 2 / 1000
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("cells=%d cell_size=%.0fmm", len(data), cfg.CellSizeMM)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: heatColours},
		}),
	)
	scatter.AddSeries("occupancy", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render occupancy chart: %w", err)
	}
	return nil
}

func dev(p float32) float32 {
	if p >= 0.5 {
		return p - 0.5
	}
	return 0.5 - p
}
