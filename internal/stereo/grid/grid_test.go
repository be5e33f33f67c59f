package grid

import (
	"math"
	"testing"

	"github.com/gridsense/occupancy.map/internal/stereo"
)

var (
	leftCam  = stereo.Vertex{X: -50}
	rightCam = stereo.Vertex{X: 50}
)

// A reduced image keeps ray-model construction cheap; the optics (focal
// length, pixel pitch, baseline) match the canonical defaults so the
// disparity-to-distance figures are the documented ones.
func gridSensorParams() stereo.SensorParams {
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

func gridRayModel(t *testing.T, cellSizeMM float64) *stereo.RayModel {
	t.Helper()
	m, err := stereo.NewRayModel(gridSensorParams(), cellSizeMM, 1.0, 5000, 0.8, 0.02)
	if err != nil {
		t.Fatalf("NewRayModel failed: %v", err)
	}
	return m
}

// centreRay builds an observer-relative ray straight down the forward axis.
func centreRay(t *testing.T, disparity float64) *stereo.EvidenceRay {
	t.Helper()
	ism, err := stereo.NewInverseSensorModel(gridSensorParams(), 1.0, 5000)
	if err != nil {
		t.Fatalf("NewInverseSensorModel failed: %v", err)
	}
	ray, ok := ism.CreateRay(32, 24, disparity, 0, [3]uint8{200, 30, 30})
	if !ok {
		t.Fatalf("CreateRay failed for disparity %f", disparity)
	}
	return ray
}

func testGridConfig(vacancy float64) Config {
	return Config{
		DimensionCells:         240,
		DimensionCellsVertical: 16,
		CellSizeMM:             32,
		LocalisationRadiusMM:   1000,
		MaxMappingRangeMM:      5000,
		VacancyWeighting:       vacancy,
	}
}

func TestInsert_RepeatedMonotoneBounded(t *testing.T) {
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15) // distance ~3333mm

	occupied := stereo.Vertex{Y: 3333}
	swept := stereo.Vertex{Y: 1600}

	prevOcc := float32(0.5)
	prevSwept := float32(0.5)
	for i := 0; i < 50; i++ {
		g.Insert(ray, model, leftCam, rightCam, false)

		occ, ok := g.ProbabilityAt(occupied)
		if !ok {
			t.Fatal("occupied point outside grid")
		}
		if occ < prevOcc {
			t.Fatalf("insert %d: occupied probability decreased %f -> %f", i, prevOcc, occ)
		}
		if occ > 1 {
			t.Fatalf("insert %d: occupied probability %f exceeds 1", i, occ)
		}
		prevOcc = occ

		sw, ok := g.ProbabilityAt(swept)
		if !ok {
			t.Fatal("swept point outside grid")
		}
		if sw > prevSwept {
			t.Fatalf("insert %d: swept probability increased %f -> %f", i, prevSwept, sw)
		}
		if sw < 0 {
			t.Fatalf("insert %d: swept probability %f below 0", i, sw)
		}
		prevSwept = sw
	}

	if prevOcc <= 0.5 {
		t.Errorf("occupied probability %f never rose above prior", prevOcc)
	}
	if prevSwept >= 0.5 {
		t.Errorf("swept probability %f never fell below prior", prevSwept)
	}
}

func TestInsert_ZeroVacancyWeightingLeavesSweptCells(t *testing.T) {
	g, err := New(testGridConfig(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)

	g.Insert(ray, model, leftCam, rightCam, false)

	for _, y := range []float64{500, 1600, 2500} {
		p, ok := g.ProbabilityAt(stereo.Vertex{Y: y})
		if !ok {
			t.Fatalf("point y=%f outside grid", y)
		}
		if p != 0.5 {
			t.Errorf("swept cell at y=%f changed to %f with zero vacancy weighting", y, p)
		}
	}

	occ, _ := g.ProbabilityAt(stereo.Vertex{Y: 3333})
	if occ <= 0.5 {
		t.Errorf("occupied zone unchanged (%f); only vacancy should be disabled", occ)
	}
}

func TestInsert_DisableVacancyFlag(t *testing.T) {
	g, err := New(testGridConfig(0.2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)

	g.Insert(ray, model, leftCam, rightCam, true)

	p, _ := g.ProbabilityAt(stereo.Vertex{Y: 1600})
	if p != 0.5 {
		t.Errorf("swept cell changed to %f with vacancy disabled", p)
	}
}

func TestInsert_EndToEnd(t *testing.T) {
	// disparity=15, focal=5mm, 100px/mm, baseline=100mm => ~3333.3mm.
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)

	g.Insert(ray, model, leftCam, rightCam, false)

	occ, ok := g.ProbabilityAt(stereo.Vertex{Y: 3333})
	if !ok || occ <= 0.5 {
		t.Errorf("cell nearest the measured point: p=%f ok=%v, want > 0.5", occ, ok)
	}
	for _, y := range []float64{800, 1600, 2400} {
		p, ok := g.ProbabilityAt(stereo.Vertex{Y: y})
		if !ok || p >= 0.5 {
			t.Errorf("cell between camera and point at y=%f: p=%f ok=%v, want < 0.5", y, p, ok)
		}
	}
}

func TestInsert_OutOfBoundsRay(t *testing.T) {
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)

	// Push the whole cone far outside the grid extent.
	ray := centreRay(t, 15)
	ray.TranslateRotate(stereo.Pose{Y: 50000})

	score := g.Insert(ray, model, leftCam, rightCam, false)
	if score != 0 {
		t.Errorf("out-of-bounds insert scored %f, want 0", score)
	}
}

func TestInsert_MatchScore(t *testing.T) {
	g, err := New(testGridConfig(0.05))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	model := gridRayModel(t, 32)
	ray := centreRay(t, 15)

	// A neutral grid neither agrees nor disagrees.
	first := g.Insert(ray, model, leftCam, rightCam, false)
	if math.Abs(first) > 1e-9 {
		t.Errorf("first insert scored %f, want 0", first)
	}

	// Repeats agree with the map the ray itself built.
	var second float64
	for i := 0; i < 9; i++ {
		second = g.Insert(ray, model, leftCam, rightCam, false)
	}
	if second <= 0 {
		t.Errorf("consistent repeat scored %f, want positive", second)
	}

	// A ray claiming occupancy inside the swept free space disagrees.
	conflicting := centreRay(t, 30) // ~1666mm, decayed by the sweeps above
	if score := g.Insert(conflicting, model, leftCam, rightCam, false); score >= 0 {
		t.Errorf("conflicting ray scored %f, want negative", score)
	}
}

func TestProbabilityAt_OutsideGrid(t *testing.T) {
	g, err := New(testGridConfig(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := g.ProbabilityAt(stereo.Vertex{X: 1e6}); ok {
		t.Error("expected ok=false outside the grid")
	}
	if _, ok := g.CellAt(-1, 0, 0); ok {
		t.Error("expected ok=false for negative cell coordinates")
	}
}
