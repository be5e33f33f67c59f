package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/gridsense/occupancy.map/internal/stereo/grid"
)

// WritePNG encodes a packed RGB buffer (three bytes per pixel, row-major) as
// a PNG image.
func WritePNG(w io.Writer, buf []uint8, width, height int) error {
	if len(buf) < width*height*3 {
		return fmt.Errorf("buffer too small: %d bytes for %dx%d RGB", len(buf), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := (y*width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = buf[src]
			img.Pix[dst+1] = buf[src+1]
			img.Pix[dst+2] = buf[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return png.Encode(w, img)
}

// ProjectionPNG renders the grid's top-down (or frontal) projection into a
// PNG file.
func ProjectionPNG(path string, g *grid.OccupancyGrid, width, height int, frontal, highlightKnown bool) error {
	buf := make([]uint8, width*height*3)
	var err error
	if frontal {
		err = g.ShowFront(buf, width, height, highlightKnown)
	} else {
		err = g.Show(buf, width, height, highlightKnown)
	}
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WritePNG(f, buf, width, height); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
