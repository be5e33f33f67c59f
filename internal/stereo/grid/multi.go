package grid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gridsense/occupancy.map/internal/monitoring"
	"github.com/gridsense/occupancy.map/internal/stereo"
)

// ErrLocalisationLost is returned when no live hypothesis remains. Callers
// must treat it as "position unknown" rather than falling back to a stale
// pose.
var ErrLocalisationLost = errors.New("localisation lost: no live hypothesis")

// Hypothesis is one candidate map: a grid anchored to an estimated robot
// pose, with a running support score updated from the grid's match scores.
// Slots are owned exclusively by the MultiHypothesisGrid.
type Hypothesis struct {
	ID      string
	Anchor  stereo.Pose
	Grid    *OccupancyGrid
	Support float64
}

// MultiHypothesisGrid maintains a bounded set of competing hypotheses.
// Hypotheses live in an index-based slot arena: grids are addressed by slot
// index, freed slots are recycled through a free-list, and live slots are
// iterated in fixed admission order so that insertion, scoring and pruning
// are deterministic for a fixed ray sequence.
type MultiHypothesisGrid struct {
	mu sync.Mutex

	cfg              Config
	maxHypotheses    int
	supportThreshold float64

	slots []Hypothesis
	free  []int // recycled slot indices
	order []int // live slot indices, admission order
}

// NewMulti creates a multi-hypothesis grid seeded with a single hypothesis
// anchored at the reference pose.
func NewMulti(cfg Config, maxHypotheses int, supportThreshold float64, reference stereo.Pose) (*MultiHypothesisGrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}
	if maxHypotheses <= 0 {
		return nil, fmt.Errorf("max hypotheses must be positive, got %d", maxHypotheses)
	}

	m := &MultiHypothesisGrid{
		cfg:              cfg,
		maxHypotheses:    maxHypotheses,
		supportThreshold: supportThreshold,
	}
	if _, err := m.admitLocked(reference); err != nil {
		return nil, err
	}
	return m, nil
}

// admitLocked allocates a slot for a new hypothesis. Caller holds the lock
// (or the struct is not yet published).
func (m *MultiHypothesisGrid) admitLocked(anchor stereo.Pose) (string, error) {
	g, err := New(m.cfg)
	if err != nil {
		return "", err
	}
	h := Hypothesis{
		ID:     uuid.NewString(),
		Anchor: anchor,
		Grid:   g,
	}

	var slot int
	if n := len(m.free); n > 0 {
		slot = m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[slot] = h
	} else {
		slot = len(m.slots)
		m.slots = append(m.slots, h)
	}
	m.order = append(m.order, slot)
	return h.ID, nil
}

// evictLocked releases a slot back to the free-list and discards its grid.
func (m *MultiHypothesisGrid) evictLocked(slot int) {
	for i, s := range m.order {
		if s == slot {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.slots[slot] = Hypothesis{}
	m.free = append(m.free, slot)
}

// bestLocked returns the slot of the highest-support live hypothesis. Ties
// break toward the earliest-admitted slot.
func (m *MultiHypothesisGrid) bestLocked() (int, bool) {
	if len(m.order) == 0 {
		return 0, false
	}
	best := m.order[0]
	for _, slot := range m.order[1:] {
		if m.slots[slot].Support > m.slots[best].Support {
			best = slot
		}
	}
	return best, true
}

// lowestLocked returns the slot of the lowest-support live hypothesis. Ties
// break toward the earliest-admitted slot.
func (m *MultiHypothesisGrid) lowestLocked() int {
	lowest := m.order[0]
	for _, slot := range m.order[1:] {
		if m.slots[slot].Support < m.slots[lowest].Support {
			lowest = slot
		}
	}
	return lowest
}

// Insert fans an observer-relative ray out to every live hypothesis. Each
// hypothesis re-anchors an independent clone of the ray to its own pose and
// inserts it into its own grid; grids are independently owned so the
// insertions run in parallel. Support scores are then accumulated in fixed
// slot order.
func (m *MultiHypothesisGrid) Insert(ray *stereo.EvidenceRay, model *stereo.RayModel, leftCamPos, rightCamPos stereo.Vertex, disableVacancy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scores := make([]float64, len(m.order))
	var wg sync.WaitGroup
	for i, slot := range m.order {
		wg.Add(1)
		go func(i, slot int) {
			defer wg.Done()
			h := &m.slots[slot]

			world := ray.Clone()
			world.TranslateRotate(h.Anchor)
			left := h.Anchor.Apply(leftCamPos)
			right := h.Anchor.Apply(rightCamPos)
			scores[i] = h.Grid.Insert(world, model, left, right, disableVacancy)
		}(i, slot)
	}
	wg.Wait()

	for i, slot := range m.order {
		m.slots[slot].Support += scores[i]
	}
}

// Admit spawns a hypothesis for a candidate pose. The pose must lie within
// the localisation radius of the current best hypothesis. When the set is
// full the lowest-support hypothesis is evicted first.
func (m *MultiHypothesisGrid) Admit(pose stereo.Pose) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	best, ok := m.bestLocked()
	if !ok {
		return "", ErrLocalisationLost
	}
	if d := pose.DistanceTo(m.slots[best].Anchor); d > m.cfg.LocalisationRadiusMM {
		return "", fmt.Errorf("candidate pose %.0fmm from best hypothesis exceeds localisation radius %.0fmm",
			d, m.cfg.LocalisationRadiusMM)
	}

	if len(m.order) >= m.maxHypotheses {
		evict := m.lowestLocked()
		monitoring.Logf("[multigrid] evicting hypothesis %s (support=%.3f) to admit new candidate",
			m.slots[evict].ID, m.slots[evict].Support)
		m.evictLocked(evict)
	}
	return m.admitLocked(pose)
}

// Prune evicts every hypothesis whose support has fallen below the threshold
// or whose anchor has drifted beyond the localisation radius from the
// current best. Returns the number of hypotheses evicted. Pruning the last
// hypothesis is permitted; subsequent Best calls report localisation lost.
func (m *MultiHypothesisGrid) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	best, ok := m.bestLocked()
	if !ok {
		return 0
	}
	bestPose := m.slots[best].Anchor

	var evict []int
	for _, slot := range m.order {
		h := &m.slots[slot]
		if h.Support < m.supportThreshold || h.Anchor.DistanceTo(bestPose) > m.cfg.LocalisationRadiusMM {
			evict = append(evict, slot)
		}
	}
	for _, slot := range evict {
		monitoring.Logf("[multigrid] pruning hypothesis %s (support=%.3f)",
			m.slots[slot].ID, m.slots[slot].Support)
		m.evictLocked(slot)
	}
	return len(evict)
}

// Best returns the highest-support hypothesis's pose, grid and support
// score, or ErrLocalisationLost when no hypothesis remains.
func (m *MultiHypothesisGrid) Best() (stereo.Pose, *OccupancyGrid, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	best, ok := m.bestLocked()
	if !ok {
		return stereo.Pose{}, nil, 0, ErrLocalisationLost
	}
	h := &m.slots[best]
	return h.Anchor, h.Grid, h.Support, nil
}

// LiveCount returns the number of live hypotheses.
func (m *MultiHypothesisGrid) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// HypothesisView is a read-only summary of one live hypothesis.
type HypothesisView struct {
	ID      string
	Anchor  stereo.Pose
	Support float64
}

// Hypotheses returns summaries of the live hypotheses in admission order.
func (m *MultiHypothesisGrid) Hypotheses() []HypothesisView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]HypothesisView, 0, len(m.order))
	for _, slot := range m.order {
		h := &m.slots[slot]
		views = append(views, HypothesisView{ID: h.ID, Anchor: h.Anchor, Support: h.Support})
	}
	return views
}
