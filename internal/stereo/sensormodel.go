package stereo

import (
	"fmt"
	"math"

	"github.com/gridsense/occupancy.map/internal/config"
)

// DistanceUnknownMM is the sentinel returned by DisparityToDistance for a
// non-positive disparity: the feature is at unknown or maximum range, which
// is not a fault.
const DistanceUnknownMM = math.MaxFloat64

// DisparityToDistance converts a stereo pixel disparity into a distance in
// millimetres using the standard stereo relation
//
//	distance = focalLength * sensorPixelsPerMm * baseline / disparity
//
// It is monotonically decreasing in disparity and monotonically increasing
// in focal length and baseline. Disparity <= 0 yields DistanceUnknownMM.
func DisparityToDistance(disparity, focalLengthMM, sensorPixelsPerMM, baselineMM float64) float64 {
	if disparity <= 0 {
		return DistanceUnknownMM
	}
	return focalLengthMM * sensorPixelsPerMM * baselineMM / disparity
}

// SensorParams holds the stereo calibration numbers consumed by the inverse
// sensor model. The values come from the calibration collaborator; the core
// performs no file I/O.
type SensorParams struct {
	FocalLengthMM     float64
	SensorPixelsPerMM float64
	BaselineMM        float64
	ImageWidth        int
	ImageHeight       int
	FOVHorizontalRad  float64
	FOVVerticalRad    float64

	// Optical centre offsets from the image centre, pixels.
	CentreXOffsetPx float64
	CentreYOffsetPx float64
}

// SensorParamsFromTuning builds SensorParams from the tuning config
// fallbacks. Production calibration values should come from the calibration
// collaborator instead.
func SensorParamsFromTuning(cfg *config.TuningConfig) SensorParams {
	return SensorParams{
		FocalLengthMM:     cfg.GetFocalLengthMM(),
		SensorPixelsPerMM: cfg.GetSensorPixelsPerMM(),
		BaselineMM:        cfg.GetBaselineMM(),
		ImageWidth:        cfg.GetImageWidth(),
		ImageHeight:       cfg.GetImageHeight(),
		FOVHorizontalRad:  cfg.GetFOVHorizontalRad(),
		FOVVerticalRad:    cfg.GetFOVVerticalRad(),
	}
}

// Validate checks the calibration numbers.
func (p SensorParams) Validate() error {
	if p.FocalLengthMM <= 0 {
		return fmt.Errorf("focal length must be positive, got %f", p.FocalLengthMM)
	}
	if p.SensorPixelsPerMM <= 0 {
		return fmt.Errorf("sensor pixels per mm must be positive, got %f", p.SensorPixelsPerMM)
	}
	if p.BaselineMM <= 0 {
		return fmt.Errorf("baseline must be positive, got %f", p.BaselineMM)
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", p.ImageWidth, p.ImageHeight)
	}
	if p.FOVHorizontalRad <= 0 || p.FOVHorizontalRad >= math.Pi {
		return fmt.Errorf("horizontal FOV must be in (0, pi), got %f", p.FOVHorizontalRad)
	}
	if p.FOVVerticalRad <= 0 || p.FOVVerticalRad >= math.Pi {
		return fmt.Errorf("vertical FOV must be in (0, pi), got %f", p.FOVVerticalRad)
	}
	return nil
}

// focalLengthPx is the focal length expressed in pixels; for small angles it
// is also the pixels-per-radian scale of the sensor.
func (p SensorParams) focalLengthPx() float64 {
	return p.FocalLengthMM * p.SensorPixelsPerMM
}

func (p SensorParams) centreX() float64 {
	return float64(p.ImageWidth)/2 + p.CentreXOffsetPx
}

func (p SensorParams) centreY() float64 {
	return float64(p.ImageHeight)/2 + p.CentreYOffsetPx
}

// Correspondence is one matched feature between the left and right images:
// pixel position in the left image, disparity against the right image, a
// visualisation colour and an optional per-feature uncertainty in pixels
// (zero means the model default applies).
type Correspondence struct {
	X, Y        float64
	Disparity   float64
	Colour      [3]uint8
	Uncertainty float64
}

// CorrespondencesFromArrays assembles Correspondence values from the
// parallel-array observation contract: pixel-x, pixel-y and disparity per
// feature, plus matching colour triples and per-feature uncertainty scalars.
// Colours and uncertainties may be nil; when present their length must match.
func CorrespondencesFromArrays(xs, ys, disparities []float64, colours [][3]uint8, uncertainties []float64) ([]Correspondence, error) {
	if len(xs) != len(ys) || len(xs) != len(disparities) {
		return nil, fmt.Errorf("parallel array length mismatch: x=%d y=%d disparity=%d", len(xs), len(ys), len(disparities))
	}
	if colours != nil && len(colours) != len(xs) {
		return nil, fmt.Errorf("colour array length mismatch: got %d, want %d", len(colours), len(xs))
	}
	if uncertainties != nil && len(uncertainties) != len(xs) {
		return nil, fmt.Errorf("uncertainty array length mismatch: got %d, want %d", len(uncertainties), len(xs))
	}

	corrs := make([]Correspondence, len(xs))
	for i := range xs {
		corrs[i] = Correspondence{X: xs[i], Y: ys[i], Disparity: disparities[i]}
		if colours != nil {
			corrs[i].Colour = colours[i]
		}
		if uncertainties != nil {
			corrs[i].Uncertainty = uncertainties[i]
		}
	}
	return corrs, nil
}

// RayCone is the quadrilateral uncertainty cone of one stereo measurement in
// camera-local coordinates: Start on the ray axis at the near range bound,
// End at the best-estimate distance, Left and Right at the lateral bounds of
// the far (wide) end.
type RayCone struct {
	Start, End, Left, Right Vertex
}

// InverseSensorModel converts stereo pixel correspondences into evidence
// rays. It is immutable after construction and safe for concurrent use.
type InverseSensorModel struct {
	params           SensorParams
	rayUncertaintyPx float64
	maxRangeMM       float64
}

// NewInverseSensorModel validates the calibration and returns a model.
// rayUncertaintyPx is the default per-feature matching uncertainty in
// pixels; maxRangeMM caps the far bound of every cone.
func NewInverseSensorModel(params SensorParams, rayUncertaintyPx, maxRangeMM float64) (*InverseSensorModel, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor params: %w", err)
	}
	if rayUncertaintyPx < 0 {
		return nil, fmt.Errorf("ray uncertainty must be non-negative, got %f", rayUncertaintyPx)
	}
	if maxRangeMM <= 0 {
		return nil, fmt.Errorf("max range must be positive, got %f", maxRangeMM)
	}
	return &InverseSensorModel{
		params:           params,
		rayUncertaintyPx: rayUncertaintyPx,
		maxRangeMM:       maxRangeMM,
	}, nil
}

// Params returns the calibration the model was built with.
func (m *InverseSensorModel) Params() SensorParams { return m.params }

// MaxRangeMM returns the model's range cap.
func (m *InverseSensorModel) MaxRangeMM() float64 { return m.maxRangeMM }

// RaysIntersection constructs the uncertainty cone for a feature observed at
// pixel column x1 in the left image and x2 in the right image, at the given
// best-estimate distance. The cone widens with rayUncertainty and with the
// angular divergence implied by x1-x2: range error grows with distance, so
// small disparities produce long cones. The far bound is clamped to
// maxRangeMM. Left/right ordering is fixed relative to the camera's lateral
// axis regardless of the sign of x1-x2.
func (m *InverseSensorModel) RaysIntersection(x1, x2, maxRangeMM, rayUncertainty, distanceMM float64) RayCone {
	fpx := m.params.focalLengthPx()
	b := m.params.BaselineMM
	disp := math.Abs(x1 - x2)
	u := rayUncertainty

	dBest := math.Min(distanceMM, maxRangeMM)

	dNear := dBest
	if disp+u > 0 {
		dNear = math.Min(fpx*b/(disp+u), dBest)
	}

	dFar := maxRangeMM
	if disp-u > 0 {
		dFar = math.Min(fpx*b/(disp-u), maxRangeMM)
	}
	if dFar < dBest {
		dFar = dBest
	}

	// Lateral half width at the best-estimate distance: one uncertainty
	// pixel subtends u/fpx radians, plus half the baseline separating the
	// two camera rays.
	halfWidth := dBest*u/fpx + b/2

	return RayCone{
		Start: Vertex{X: 0, Y: dNear, Z: 0},
		End:   Vertex{X: 0, Y: dBest, Z: 0},
		Left:  Vertex{X: -halfWidth, Y: dFar, Z: 0},
		Right: Vertex{X: halfWidth, Y: dFar, Z: 0},
	}
}

// CreateRay builds an evidence ray for a feature at pixel (px, py) with the
// given disparity, in camera-local coordinates oriented by the pixel's
// bearing. Returns (nil, false) for non-positive disparity; the
// correspondence is skipped, not faulted.
func (m *InverseSensorModel) CreateRay(px, py, disparity float64, cameraID int, colour [3]uint8) (*EvidenceRay, bool) {
	return m.createRay(px, py, disparity, m.rayUncertaintyPx, cameraID, colour)
}

func (m *InverseSensorModel) createRay(px, py, disparity, uncertainty float64, cameraID int, colour [3]uint8) (*EvidenceRay, bool) {
	if disparity <= 0 {
		return nil, false
	}

	p := m.params
	dist := DisparityToDistance(disparity, p.FocalLengthMM, p.SensorPixelsPerMM, p.BaselineMM)
	cone := m.RaysIntersection(px, px-disparity, m.maxRangeMM, uncertainty, dist)

	// Bearing from the pixel offset to the optical centre. Pixels right of
	// centre bear right (negative pan, counter-clockwise convention);
	// pixels above centre (smaller py, image origin top-left) pitch up.
	pan := (p.centreX() - px) * p.FOVHorizontalRad / float64(p.ImageWidth)
	tilt := (p.centreY() - py) * p.FOVVerticalRad / float64(p.ImageHeight)

	row := int(py)
	if row < 0 {
		row = 0
	}
	if row >= p.ImageHeight {
		row = p.ImageHeight - 1
	}

	ray := &EvidenceRay{
		Vertices:    [rayVertexCount]Vertex{cone.Start, cone.End, cone.Left, cone.Right},
		LengthMM:    math.Min(dist, m.maxRangeMM),
		Colour:      colour,
		CameraID:    cameraID,
		disparityPx: disparity,
		pixelRow:    row,
	}
	ray.TranslateRotate(Pose{Pan: pan, Tilt: tilt})
	return ray, true
}

// CreateObservation builds one evidence ray per valid correspondence and
// transforms each into the world frame via observerPose. Correspondences
// with non-positive disparity are skipped. The returned slice is sized to
// the number of valid correspondences.
func (m *InverseSensorModel) CreateObservation(observerPose Pose, corrs []Correspondence) []*EvidenceRay {
	rays := make([]*EvidenceRay, 0, len(corrs))
	for _, c := range corrs {
		u := c.Uncertainty
		if u <= 0 {
			u = m.rayUncertaintyPx
		}
		ray, ok := m.createRay(c.X, c.Y, c.Disparity, u, 0, c.Colour)
		if !ok {
			continue
		}
		ray.TranslateRotate(observerPose)
		rays = append(rays, ray)
	}
	return rays
}
