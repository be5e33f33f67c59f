package render

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gridsense/occupancy.map/internal/stereo"
	"github.com/gridsense/occupancy.map/internal/stereo/grid"
)

func renderSensorParams() stereo.SensorParams {
	return stereo.SensorParams{
		FocalLengthMM:     5,
		SensorPixelsPerMM: 100,
		BaselineMM:        100,
		ImageWidth:        64,
		ImageHeight:       48,
		FOVHorizontalRad:  78 * math.Pi / 180,
		FOVVerticalRad:    59 * math.Pi / 180,
	}
}

// populatedGrid builds a small grid with one wall observation fused in.
func populatedGrid(t *testing.T) (*grid.OccupancyGrid, *stereo.RayModel) {
	t.Helper()

	cfg := grid.Config{
		DimensionCells:         64,
		DimensionCellsVertical: 8,
		CellSizeMM:             50,
		LocalisationRadiusMM:   500,
		MaxMappingRangeMM:      5000,
		VacancyWeighting:       0.1,
	}
	g, err := grid.New(cfg)
	if err != nil {
		t.Fatalf("grid.New failed: %v", err)
	}

	model, err := stereo.NewRayModel(renderSensorParams(), cfg.CellSizeMM, 1.0, 5000, 0.8, 0.02)
	if err != nil {
		t.Fatalf("NewRayModel failed: %v", err)
	}
	ism, err := stereo.NewInverseSensorModel(renderSensorParams(), 1.0, 5000)
	if err != nil {
		t.Fatalf("NewInverseSensorModel failed: %v", err)
	}

	ray, ok := ism.CreateRay(32, 24, 40, 0, [3]uint8{220, 40, 40}) // ~1250mm
	if !ok {
		t.Fatal("CreateRay failed")
	}
	left := stereo.Vertex{X: -50}
	right := stereo.Vertex{X: 50}
	for i := 0; i < 5; i++ {
		g.Insert(ray, model, left, right, false)
	}
	return g, model
}

func TestOccupancyScatterHTML(t *testing.T) {
	g, _ := populatedGrid(t)

	var buf bytes.Buffer
	if err := OccupancyScatterHTML(&buf, g, "test map"); err != nil {
		t.Fatalf("OccupancyScatterHTML failed: %v", err)
	}

	html := buf.String()
	if !strings.Contains(html, "echarts") {
		t.Error("output does not look like an echarts page")
	}
	if !strings.Contains(html, "test map") {
		t.Error("title missing from output")
	}

	if err := OccupancyScatterHTML(&buf, nil, "x"); err == nil {
		t.Error("expected error for nil grid")
	}
}

func TestProfilePlotPNG(t *testing.T) {
	_, model := populatedGrid(t)

	path := filepath.Join(t.TempDir(), "profiles.png")
	if err := ProfilePlotPNG(path, model, []float64{15, 30, 40}, 24); err != nil {
		t.Fatalf("ProfilePlotPNG failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}

	if err := ProfilePlotPNG(path, model, nil, 24); err == nil {
		t.Error("expected error for empty disparity list")
	}
	if err := ProfilePlotPNG(path, nil, []float64{15}, 24); err == nil {
		t.Error("expected error for nil model")
	}
}

func TestWritePNG(t *testing.T) {
	const w, h = 8, 4
	buf := make([]uint8, w*h*3)
	buf[0] = 255 // one red pixel

	var out bytes.Buffer
	if err := WritePNG(&out, buf, w, h); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}

	img, err := png.Decode(&out)
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != w || bounds.Dy() != h {
		t.Errorf("decoded size %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), w, h)
	}
	r, _, _, _ := img.At(0, 0).RGBA()
	if r == 0 {
		t.Error("red pixel lost in encoding")
	}

	if err := WritePNG(&out, make([]uint8, 3), w, h); err == nil {
		t.Error("expected error for undersized buffer")
	}
}

func TestProjectionPNG(t *testing.T) {
	g, _ := populatedGrid(t)
	dir := t.TempDir()

	top := filepath.Join(dir, "top.png")
	if err := ProjectionPNG(top, g, 64, 64, false, true); err != nil {
		t.Fatalf("ProjectionPNG (top) failed: %v", err)
	}
	front := filepath.Join(dir, "front.png")
	if err := ProjectionPNG(front, g, 64, 64, true, false); err != nil {
		t.Fatalf("ProjectionPNG (front) failed: %v", err)
	}

	for _, p := range []string{top, front} {
		f, err := os.Open(p)
		if err != nil {
			t.Fatalf("open %s: %v", p, err)
		}
		if _, err := png.Decode(f); err != nil {
			t.Errorf("%s is not a valid PNG: %v", p, err)
		}
		f.Close()
	}
}
