// Package mapdb persists occupancy-grid snapshots to SQLite so a mapping
// session can be resumed or inspected after the fact.
package mapdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/gridsense/occupancy.map/internal/stereo/grid"
)

// MapDB wraps the SQLite handle holding grid snapshots. It implements
// grid.SnapshotStore.
type MapDB struct {
	*sql.DB
}

// New opens (or creates) the snapshot database at path and applies all
// pending migrations from migrationsDir.
func New(path, migrationsDir string) (*MapDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	mdb := &MapDB{db}
	if err := mdb.MigrateUp(migrationsDir); err != nil {
		db.Close()
		return nil, err
	}
	return mdb, nil
}

// InsertGridSnapshot persists a grid snapshot and returns the new
// snapshot_id.
func (m *MapDB) InsertGridSnapshot(s *grid.Snapshot) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("nil snapshot")
	}
	stmt := `INSERT INTO map_grid_snapshot
		(hypothesis_id, taken_unix_nanos, dimension_cells, dimension_cells_vertical, params_json, pose_json, grid_blob, snapshot_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := m.Exec(stmt, s.HypothesisID, s.TakenUnixNanos, s.DimensionCells,
		s.DimensionCellsVertical, s.ParamsJSON, s.PoseJSON, s.GridBlob, s.Reason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert grid snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestGridSnapshot returns the most recent snapshot for a hypothesis, or
// nil when none exists.
func (m *MapDB) LatestGridSnapshot(hypothesisID string) (*grid.Snapshot, error) {
	stmt := `SELECT snapshot_id, hypothesis_id, taken_unix_nanos, dimension_cells, dimension_cells_vertical, params_json, pose_json, grid_blob, snapshot_reason
		FROM map_grid_snapshot
		WHERE hypothesis_id = ?
		ORDER BY taken_unix_nanos DESC, snapshot_id DESC
		LIMIT 1`
	row := m.QueryRow(stmt, hypothesisID)

	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GridSnapshotByID fetches one snapshot by primary key.
func (m *MapDB) GridSnapshotByID(snapshotID int64) (*grid.Snapshot, error) {
	stmt := `SELECT snapshot_id, hypothesis_id, taken_unix_nanos, dimension_cells, dimension_cells_vertical, params_json, pose_json, grid_blob, snapshot_reason
		FROM map_grid_snapshot WHERE snapshot_id = ?`
	s, err := scanSnapshot(m.QueryRow(stmt, snapshotID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshot with id %d", snapshotID)
	}
	return s, err
}

// SnapshotSummary is one row of ListGridSnapshots: metadata without the
// compressed grid payload.
type SnapshotSummary struct {
	SnapshotID     int64
	HypothesisID   string
	TakenUnixNanos int64
	Reason         string
	BlobBytes      int64
}

// ListGridSnapshots returns snapshot metadata, newest first, up to limit
// rows (limit <= 0 means no limit).
func (m *MapDB) ListGridSnapshots(limit int) ([]SnapshotSummary, error) {
	stmt := `SELECT snapshot_id, hypothesis_id, taken_unix_nanos, snapshot_reason, length(grid_blob)
		FROM map_grid_snapshot
		ORDER BY taken_unix_nanos DESC, snapshot_id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = m.Query(stmt+` LIMIT ?`, limit)
	} else {
		rows, err = m.Query(stmt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list grid snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotSummary
	for rows.Next() {
		var s SnapshotSummary
		if err := rows.Scan(&s.SnapshotID, &s.HypothesisID, &s.TakenUnixNanos, &s.Reason, &s.BlobBytes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*grid.Snapshot, error) {
	var s grid.Snapshot
	var id int64
	err := row.Scan(&id, &s.HypothesisID, &s.TakenUnixNanos, &s.DimensionCells,
		&s.DimensionCellsVertical, &s.ParamsJSON, &s.PoseJSON, &s.GridBlob, &s.Reason)
	if err != nil {
		return nil, err
	}
	s.SnapshotID = &id
	return &s, nil
}
