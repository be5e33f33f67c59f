package stereo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NeutralProbability is the occupancy prior: a cell about which nothing is
// known. Profile values outside a ray's range collapse to this value.
const NeutralProbability float32 = 0.5

// RayModel is a precomputed, immutable lookup table mapping (disparity
// bucket, image row) to an occupancy-probability profile along the ray at
// grid resolution. It is built once per grid configuration and shared
// read-only across all insertions; concurrent reads are safe.
//
// The profile is a Gaussian peak at the disparity's estimated distance whose
// sigma grows with distance (stereo range error grows with range), tapered
// toward the cone's wide end, with values in [NeutralProbability, peak].
// The peak value and sigma fraction are documented tunables, see
// config/tuning.defaults.json.
type RayModel struct {
	cellSizeMM float64
	width      int
	height     int
	maxDispPx  int

	profiles     [][]float32 // indexed (dispBucket-1)*height + row
	profileStart []float64   // distance (mm) of each profile's first step
}

// NewRayModel precomputes the probability profiles for every representable
// disparity (1 pixel buckets) and image row.
func NewRayModel(params SensorParams, cellSizeMM, rayUncertaintyPx, maxRangeMM, peakProbability, rangeSigmaFraction float64) (*RayModel, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor params: %w", err)
	}
	if cellSizeMM <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %f", cellSizeMM)
	}
	if maxRangeMM <= 0 {
		return nil, fmt.Errorf("max range must be positive, got %f", maxRangeMM)
	}
	if rayUncertaintyPx < 0 {
		return nil, fmt.Errorf("ray uncertainty must be non-negative, got %f", rayUncertaintyPx)
	}
	if peakProbability <= 0.5 || peakProbability >= 1 {
		return nil, fmt.Errorf("peak probability must be in (0.5, 1), got %f", peakProbability)
	}
	if rangeSigmaFraction <= 0 || rangeSigmaFraction > 1 {
		return nil, fmt.Errorf("range sigma fraction must be in (0, 1], got %f", rangeSigmaFraction)
	}

	m := &RayModel{
		cellSizeMM: cellSizeMM,
		width:      params.ImageWidth,
		height:     params.ImageHeight,
		maxDispPx:  params.ImageWidth,
	}
	m.profiles = make([][]float32, m.maxDispPx*m.height)
	m.profileStart = make([]float64, len(m.profiles))

	fpx := params.focalLengthPx()
	b := params.BaselineMM
	u := rayUncertaintyPx

	for d := 1; d <= m.maxDispPx; d++ {
		disp := float64(d)
		dist := math.Min(fpx*b/disp, maxRangeMM)

		dNear := dist
		if disp+u > 0 {
			dNear = math.Min(fpx*b/(disp+u), dist)
		}
		dFar := maxRangeMM
		if disp-u > 0 {
			dFar = math.Min(fpx*b/(disp-u), maxRangeMM)
		}
		if dFar < dist {
			dFar = dist
		}
		span := dFar - dNear
		if span < cellSizeMM {
			span = cellSizeMM
		}
		steps := int(span/cellSizeMM) + 1

		for row := 0; row < m.height; row++ {
			// Off-axis rows cross horizontal grid layers obliquely, which
			// smears the profile by the secant of the elevation angle.
			elev := (params.centreY() - float64(row)) * params.FOVVerticalRad / float64(m.height)
			secant := 1 / math.Cos(elev)
			sigma := math.Max(rangeSigmaFraction*dist*secant, cellSizeMM)

			scratch := make([]float64, steps)
			for i := range scratch {
				x := dNear + float64(i)*cellSizeMM
				g := math.Exp(-(x - dist) * (x - dist) / (2 * sigma * sigma))
				taper := 1 - 0.5*(x-dNear)/span
				scratch[i] = g * taper
			}

			// Normalise so the profile maximum lands exactly on the
			// configured peak probability.
			scale := 0.0
			if max := floats.Max(scratch); max > 0 {
				scale = (peakProbability - float64(NeutralProbability)) / max
			}
			prof := make([]float32, steps)
			for i, v := range scratch {
				prof[i] = NeutralProbability + float32(v*scale)
			}

			idx := (d-1)*m.height + row
			m.profiles[idx] = prof
			m.profileStart[idx] = dNear
		}
	}

	return m, nil
}

// CellSizeMM returns the grid resolution the model was built for.
func (m *RayModel) CellSizeMM() float64 { return m.cellSizeMM }

func (m *RayModel) index(disparityPx float64, row int) int {
	bucket := int(disparityPx + 0.5)
	if bucket < 1 {
		bucket = 1
	}
	if bucket > m.maxDispPx {
		bucket = m.maxDispPx
	}
	if row < 0 {
		row = 0
	}
	if row >= m.height {
		row = m.height - 1
	}
	return (bucket-1)*m.height + row
}

// Probability returns the occupancy probability for a point at distanceMM
// along a ray with the given disparity and image row. Points outside the
// profile's range return NeutralProbability.
func (m *RayModel) Probability(disparityPx float64, row int, distanceMM float64) float32 {
	idx := m.index(disparityPx, row)
	prof := m.profiles[idx]
	i := int((distanceMM-m.profileStart[idx])/m.cellSizeMM + 0.5)
	if i < 0 || i >= len(prof) {
		return NeutralProbability
	}
	return prof[i]
}

// Profile returns a copy of the probability profile for a disparity bucket
// and image row, together with the profile's start distance in mm. Intended
// for diagnostics and plotting.
func (m *RayModel) Profile(disparityPx float64, row int) ([]float32, float64) {
	idx := m.index(disparityPx, row)
	prof := make([]float32, len(m.profiles[idx]))
	copy(prof, m.profiles[idx])
	return prof, m.profileStart[idx]
}
