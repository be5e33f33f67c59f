package grid

import (
	"fmt"

	"github.com/gridsense/occupancy.map/internal/config"
)

// Config provides a configuration builder for occupancy grids. It allows
// setting parameters with defaults and validation before creating a grid.
type Config struct {
	DimensionCells         int     // horizontal cells per axis
	DimensionCellsVertical int     // vertical cells
	CellSizeMM             float64 // edge length of one cell, mm
	LocalisationRadiusMM   float64 // max pose displacement for hypothesis admission/retention
	MaxMappingRangeMM      float64 // max distance at which cells are updated
	VacancyWeighting       float64 // per-sweep decay fraction for free-space cells
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file (config/tuning.defaults.json). Panics if the file cannot be found —
// intended for tests and binaries that have already validated config
// availability.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig. Use this in
// production code where the TuningConfig is already loaded. Grid dimensions
// are fixed operational defaults that are not user-tunable; they are sized
// so the default mapping range fits inside the grid extent.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		DimensionCells:         200,
		DimensionCellsVertical: 32,
		CellSizeMM:             50,
		LocalisationRadiusMM:   1000,
		MaxMappingRangeMM:      5000,
		VacancyWeighting:       cfg.GetVacancyRate(),
	}
}

// Validate checks if the configuration is valid.
// Returns an error if any parameter is out of acceptable range.
func (c Config) Validate() error {
	if c.DimensionCells <= 0 {
		return fmt.Errorf("DimensionCells must be positive, got %d", c.DimensionCells)
	}
	if c.DimensionCellsVertical <= 0 {
		return fmt.Errorf("DimensionCellsVertical must be positive, got %d", c.DimensionCellsVertical)
	}
	if c.CellSizeMM <= 0 {
		return fmt.Errorf("CellSizeMM must be positive, got %f", c.CellSizeMM)
	}
	if c.LocalisationRadiusMM < 0 {
		return fmt.Errorf("LocalisationRadiusMM must be non-negative, got %f", c.LocalisationRadiusMM)
	}
	if c.LocalisationRadiusMM > c.MaxMappingRangeMM {
		return fmt.Errorf("LocalisationRadiusMM %f exceeds MaxMappingRangeMM %f",
			c.LocalisationRadiusMM, c.MaxMappingRangeMM)
	}
	if c.VacancyWeighting < 0 || c.VacancyWeighting > 1 {
		return fmt.Errorf("VacancyWeighting must be in [0, 1], got %f", c.VacancyWeighting)
	}
	return nil
}

// ExtentMM returns the metric extent of one horizontal axis.
func (c Config) ExtentMM() float64 {
	return float64(c.DimensionCells) * c.CellSizeMM
}

// WithDimensions sets the horizontal and vertical cell counts.
func (c Config) WithDimensions(horizontal, vertical int) Config {
	c.DimensionCells = horizontal
	c.DimensionCellsVertical = vertical
	return c
}

// WithCellSize sets the cell edge length in millimetres.
func (c Config) WithCellSize(mm float64) Config {
	c.CellSizeMM = mm
	return c
}

// WithLocalisationRadius sets the localisation radius in millimetres.
func (c Config) WithLocalisationRadius(mm float64) Config {
	c.LocalisationRadiusMM = mm
	return c
}

// WithMaxMappingRange sets the maximum mapping range in millimetres.
func (c Config) WithMaxMappingRange(mm float64) Config {
	c.MaxMappingRangeMM = mm
	return c
}

// WithVacancyWeighting sets the free-space decay fraction.
func (c Config) WithVacancyWeighting(w float64) Config {
	c.VacancyWeighting = w
	return c
}
