package grid

import (
	"fmt"
	"math"
)

// Show renders a top-down projection of the grid into an RGB buffer (three
// bytes per pixel, row-major, len >= width*height*3). Each pixel shows the
// cell in its vertical column whose probability deviates most from the
// prior: brightness tracks probability, and with highlightKnown set, cells
// that accumulated evidence are drawn in their mean observed colour.
// Deterministic given identical grid state; visualisation only.
func (g *OccupancyGrid) Show(buf []uint8, width, height int, highlightKnown bool) error {
	return g.project(buf, width, height, highlightKnown, false)
}

// ShowFront renders a frontal (camera-facing) projection: image columns map
// to the grid's X axis, image rows to the vertical axis, scanning along the
// forward axis for the most informative cell.
func (g *OccupancyGrid) ShowFront(buf []uint8, width, height int, highlightKnown bool) error {
	return g.project(buf, width, height, highlightKnown, true)
}

func (g *OccupancyGrid) project(buf []uint8, width, height int, highlightKnown, frontal bool) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("projection size must be positive, got %dx%d", width, height)
	}
	if len(buf) < width*height*3 {
		return fmt.Errorf("buffer too small: %d bytes for %dx%d RGB", len(buf), width, height)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	dim := g.cfg.DimensionCells
	dimV := g.cfg.DimensionCellsVertical

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			gx := px * dim / width

			var best Cell
			best.Probability = 0.5
			if frontal {
				// Rows map to the vertical axis, top of image is up.
				gz := dimV - 1 - py*dimV/height
				for y := 0; y < dim; y++ {
					c := g.cells[g.cellIndex(gx, y, gz)]
					if deviation(c.Probability) > deviation(best.Probability) {
						best = c
					}
				}
			} else {
				// Rows map to the forward axis, top of image is away.
				gy := dim - 1 - py*dim/height
				for z := 0; z < dimV; z++ {
					c := g.cells[g.cellIndex(gx, gy, z)]
					if deviation(c.Probability) > deviation(best.Probability) {
						best = c
					}
				}
			}

			r, gr, b := shade(best, highlightKnown)
			off := (py*width + px) * 3
			buf[off] = r
			buf[off+1] = gr
			buf[off+2] = b
		}
	}
	return nil
}

func deviation(p float32) float64 {
	return math.Abs(float64(p) - 0.5)
}

// shade maps a cell to a pixel: greyscale by probability, or the cell's mean
// accumulated colour for occupied cells when highlighting is on.
func shade(c Cell, highlightKnown bool) (uint8, uint8, uint8) {
	if highlightKnown && c.Hits > 0 && c.Probability > 0.5 {
		return uint8(c.ColourSum[0] / c.Hits),
			uint8(c.ColourSum[1] / c.Hits),
			uint8(c.ColourSum[2] / c.Hits)
	}
	v := uint8(c.Probability * 255)
	return v, v, v
}
