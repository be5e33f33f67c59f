package grid

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridsense/occupancy.map/internal/stereo"
)

// Snapshot reasons stored alongside each persisted grid.
const (
	SnapshotReasonPeriodic = "periodic_update"
	SnapshotReasonManual   = "manual"
	SnapshotReasonShutdown = "shutdown"
)

// Snapshot matches the map_grid_snapshot table structure. It holds a
// compressed copy of one hypothesis grid plus the metadata needed to
// restore it.
type Snapshot struct {
	SnapshotID             *int64 // set by the database after insert
	HypothesisID           string
	TakenUnixNanos         int64
	DimensionCells         int
	DimensionCellsVertical int
	ParamsJSON             string // serialised Config
	PoseJSON               string // serialised anchor stereo.Pose
	GridBlob               []byte // gob+gzip compressed []Cell
	Reason                 string
}

// SnapshotStore persists Snapshot records. Implemented by mapdb.MapDB.
type SnapshotStore interface {
	InsertGridSnapshot(s *Snapshot) (int64, error)
	LatestGridSnapshot(hypothesisID string) (*Snapshot, error)
}

// serializeCells compresses grid cells using gob encoding and gzip.
func serializeCells(cells []Cell) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(cells); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeCells decompresses and decodes grid cells from a gob+gzip blob.
func deserializeCells(blob []byte) ([]Cell, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var cells []Cell
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&cells); err != nil {
		return nil, fmt.Errorf("failed to decode grid cells: %w", err)
	}
	return cells, nil
}

// Snapshot serialises the grid into a Snapshot record. The cells are copied
// under read lock so a concurrent inserter is never blocked for the duration
// of compression.
func (g *OccupancyGrid) Snapshot(hypothesisID string, anchor stereo.Pose, reason string) (*Snapshot, error) {
	g.mu.RLock()
	cellsCopy := make([]Cell, len(g.cells))
	copy(cellsCopy, g.cells)
	g.mu.RUnlock()

	blob, err := serializeCells(cellsCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise grid: %w", err)
	}

	paramsJSON, err := json.Marshal(g.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise grid config: %w", err)
	}
	poseJSON, err := json.Marshal(anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise anchor pose: %w", err)
	}

	return &Snapshot{
		HypothesisID:           hypothesisID,
		TakenUnixNanos:         time.Now().UnixNano(),
		DimensionCells:         g.cfg.DimensionCells,
		DimensionCellsVertical: g.cfg.DimensionCellsVertical,
		ParamsJSON:             string(paramsJSON),
		PoseJSON:               string(poseJSON),
		GridBlob:               blob,
		Reason:                 reason,
	}, nil
}

// Persist snapshots the grid and writes it via the provided store.
func (g *OccupancyGrid) Persist(store SnapshotStore, hypothesisID string, anchor stereo.Pose, reason string) (int64, error) {
	if store == nil {
		return 0, fmt.Errorf("nil snapshot store")
	}
	snap, err := g.Snapshot(hypothesisID, anchor, reason)
	if err != nil {
		return 0, err
	}
	return store.InsertGridSnapshot(snap)
}

// Restore rebuilds a grid and its anchor pose from a persisted snapshot.
func Restore(snap *Snapshot) (*OccupancyGrid, stereo.Pose, error) {
	var anchor stereo.Pose
	if snap == nil {
		return nil, anchor, fmt.Errorf("nil snapshot")
	}

	var cfg Config
	if err := json.Unmarshal([]byte(snap.ParamsJSON), &cfg); err != nil {
		return nil, anchor, fmt.Errorf("failed to parse grid config: %w", err)
	}
	if snap.PoseJSON != "" {
		if err := json.Unmarshal([]byte(snap.PoseJSON), &anchor); err != nil {
			return nil, anchor, fmt.Errorf("failed to parse anchor pose: %w", err)
		}
	}

	g, err := New(cfg)
	if err != nil {
		return nil, anchor, err
	}

	cells, err := deserializeCells(snap.GridBlob)
	if err != nil {
		return nil, anchor, err
	}
	if len(cells) != len(g.cells) {
		return nil, anchor, fmt.Errorf("snapshot cell count %d does not match config %dx%dx%d",
			len(cells), cfg.DimensionCells, cfg.DimensionCells, cfg.DimensionCellsVertical)
	}
	g.cells = cells
	return g, anchor, nil
}
