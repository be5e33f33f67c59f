package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/gridsense/occupancy.map/internal/stereo"
)

// Cell is one voxel of an occupancy grid: a bounded occupancy probability,
// a hit count for confidence weighting and the accumulated colour of the
// evidence that touched it (visualisation only, never used in fusion math).
type Cell struct {
	Probability float32
	Hits        uint32
	ColourSum   [3]uint32
}

// OccupancyGrid is a single-hypothesis occupancy grid: a fixed-size 3D cell
// arena centred on its anchor pose, mutated only through ray insertion and
// never resized. Updates are serialised by a mutex because the bounded-blend
// fusion rule is order-sensitive for saturation clipping.
type OccupancyGrid struct {
	mu    sync.RWMutex
	cfg   Config
	cells []Cell
}

// New allocates a grid with every cell at the neutral prior. The
// configuration is validated first; a grid is never partially constructed.
func New(cfg Config) (*OccupancyGrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	cells := make([]Cell, cfg.DimensionCells*cfg.DimensionCells*cfg.DimensionCellsVertical)
	for i := range cells {
		cells[i].Probability = stereo.NeutralProbability
	}
	return &OccupancyGrid{cfg: cfg, cells: cells}, nil
}

// Config returns the grid's construction parameters.
func (g *OccupancyGrid) Config() Config { return g.cfg }

// cellIndex flattens grid coordinates. Callers must bounds-check first.
func (g *OccupancyGrid) cellIndex(x, y, z int) int {
	return (z*g.cfg.DimensionCells+y)*g.cfg.DimensionCells + x
}

// worldToCell maps a world-frame vertex into grid coordinates. The grid is
// centred on the anchor pose, so the world origin lands in the middle cell.
// Returns ok=false for points outside the grid extent.
func (g *OccupancyGrid) worldToCell(v stereo.Vertex) (x, y, z int, ok bool) {
	x = int(math.Floor(v.X/g.cfg.CellSizeMM)) + g.cfg.DimensionCells/2
	y = int(math.Floor(v.Y/g.cfg.CellSizeMM)) + g.cfg.DimensionCells/2
	z = int(math.Floor(v.Z/g.cfg.CellSizeMM)) + g.cfg.DimensionCellsVertical/2
	if x < 0 || x >= g.cfg.DimensionCells ||
		y < 0 || y >= g.cfg.DimensionCells ||
		z < 0 || z >= g.cfg.DimensionCellsVertical {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

// CellAt returns a copy of the cell at grid coordinates.
func (g *OccupancyGrid) CellAt(x, y, z int) (Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if x < 0 || x >= g.cfg.DimensionCells ||
		y < 0 || y >= g.cfg.DimensionCells ||
		z < 0 || z >= g.cfg.DimensionCellsVertical {
		return Cell{}, false
	}
	return g.cells[g.cellIndex(x, y, z)], true
}

// ProbabilityAt returns the occupancy probability of the cell containing a
// world-frame point, or ok=false when the point is outside the grid.
func (g *OccupancyGrid) ProbabilityAt(v stereo.Vertex) (float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	x, y, z, ok := g.worldToCell(v)
	if !ok {
		return 0, false
	}
	return g.cells[g.cellIndex(x, y, z)].Probability, true
}

// Insert rasterises an evidence ray into the grid. Cells swept between the
// camera midpoint and the ray's near boundary receive a vacancy decay
// (skipped when disableVacancy is set or VacancyWeighting is zero); cells
// inside the uncertainty cone receive a bounded-blend occupancy increase
// whose magnitude comes from the ray model, tapered toward the cone's wide
// end. Out-of-bounds cells are silently discarded.
//
// The return value is a match score in [-1, 1]: the mean agreement between
// the prior cell state and the ray's occupied zone, consumed by the
// multi-hypothesis layer for support scoring. Single-grid callers may
// ignore it.
func (g *OccupancyGrid) Insert(ray *stereo.EvidenceRay, model *stereo.RayModel, leftCamPos, rightCamPos stereo.Vertex, disableVacancy bool) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	origin := leftCamPos.Midpoint(rightCamPos)
	step := g.cfg.CellSizeMM / 2

	if !disableVacancy && g.cfg.VacancyWeighting > 0 {
		g.sweepVacancy(origin, ray.Start(), step)
	}
	return g.updateOccupied(ray, model, origin, step)
}

// sweepVacancy decays every cell strictly between the camera and the cone's
// near boundary. Each cell is decayed at most once per ray.
func (g *OccupancyGrid) sweepVacancy(origin, start stereo.Vertex, step float64) {
	span := start.Sub(origin)
	length := span.Norm()
	if length <= g.cfg.CellSizeMM {
		return
	}
	decay := float32(1 - g.cfg.VacancyWeighting)

	seen := make(map[int]struct{})
	// Stop one cell short of the near boundary so the occupied zone is
	// never decayed by its own ray.
	for d := 0.0; d < length-g.cfg.CellSizeMM; d += step {
		p := origin.Add(span.Scale(d / length))
		x, y, z, ok := g.worldToCell(p)
		if !ok {
			continue
		}
		idx := g.cellIndex(x, y, z)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}

		c := &g.cells[idx]
		c.Probability *= decay
		c.Hits++
	}
}

// updateOccupied walks the cone from the near boundary to the left/right
// base, sampling at half-cell resolution axially and laterally. Each touched
// cell blends toward occupied by an amount read from the ray model, with a
// lateral taper so the cone's edges carry less weight than its axis.
func (g *OccupancyGrid) updateOccupied(ray *stereo.EvidenceRay, model *stereo.RayModel, origin stereo.Vertex, step float64) float64 {
	start := ray.Start()
	farMid := ray.Left().Midpoint(ray.Right())
	axis := farMid.Sub(start)
	halfBase := ray.Right().Sub(farMid)

	// A zero-length axis is a degenerate cone; it collapses to a
	// single-cell update at the near boundary, not a fault.
	axialSteps := int(axis.Norm()/step) + 1

	seen := make(map[int]struct{})
	var score float64
	var scored int

	for i := 0; i <= axialSteps; i++ {
		s := float64(i) / float64(axialSteps)
		centre := start.Add(axis.Scale(s))
		half := halfBase.Scale(s)
		latSteps := int(half.Norm() / step)

		for j := -latSteps; j <= latSteps; j++ {
			u := 0.0
			if latSteps > 0 {
				u = float64(j) / float64(latSteps)
			}
			p := centre.Add(half.Scale(u))
			x, y, z, ok := g.worldToCell(p)
			if !ok {
				continue
			}
			idx := g.cellIndex(x, y, z)
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}

			dist := p.DistanceTo(origin)
			prob := model.Probability(ray.DisparityPx(), ray.PixelRow(), dist)
			alpha := 2 * (float64(prob) - float64(stereo.NeutralProbability))
			if alpha <= 0 {
				continue
			}
			alpha *= 1 - 0.5*math.Abs(u)

			c := &g.cells[idx]
			prior := float64(c.Probability)
			score += (2*prior - 1) * alpha
			scored++

			c.Probability = float32(prior + alpha*(1-prior))
			if c.Probability > 1 {
				c.Probability = 1
			}
			c.Hits++
			c.ColourSum[0] += uint32(ray.Colour[0])
			c.ColourSum[1] += uint32(ray.Colour[1])
			c.ColourSum[2] += uint32(ray.Colour[2])
		}
	}

	if scored == 0 {
		return 0
	}
	return score / float64(scored)
}
