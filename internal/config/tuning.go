package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for mapping tuning
// parameters. All fields are pointers so that a partial JSON file only
// overrides the values it names; the Get* methods supply fallbacks.
type TuningConfig struct {
	// Stereo calibration defaults (per-camera values normally come from the
	// calibration collaborator; these are the fallbacks for tools and tests)
	FocalLengthMM      *float64 `json:"focal_length_mm,omitempty"`
	SensorPixelsPerMM  *float64 `json:"sensor_pixels_per_mm,omitempty"`
	BaselineMM         *float64 `json:"baseline_mm,omitempty"`
	ImageWidth         *int     `json:"image_width,omitempty"`
	ImageHeight        *int     `json:"image_height,omitempty"`
	FOVHorizontalDeg   *float64 `json:"fov_horizontal_degrees,omitempty"`
	FOVVerticalDeg     *float64 `json:"fov_vertical_degrees,omitempty"`
	RayUncertaintyPx   *float64 `json:"ray_uncertainty_pixels,omitempty"`
	RangeSigmaFraction *float64 `json:"range_sigma_fraction,omitempty"`

	// Occupancy fusion params
	OccupancyPeakProbability *float64 `json:"occupancy_peak_probability,omitempty"`
	VacancyRate              *float64 `json:"vacancy_rate,omitempty"`

	// Multi-hypothesis params
	MaxHypotheses    *int     `json:"max_hypotheses,omitempty"`
	SupportThreshold *float64 `json:"support_threshold,omitempty"`

	// Snapshot persistence params
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "60s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/stereo/grid/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FocalLengthMM != nil && *c.FocalLengthMM <= 0 {
		return fmt.Errorf("focal_length_mm must be positive, got %f", *c.FocalLengthMM)
	}
	if c.SensorPixelsPerMM != nil && *c.SensorPixelsPerMM <= 0 {
		return fmt.Errorf("sensor_pixels_per_mm must be positive, got %f", *c.SensorPixelsPerMM)
	}
	if c.BaselineMM != nil && *c.BaselineMM <= 0 {
		return fmt.Errorf("baseline_mm must be positive, got %f", *c.BaselineMM)
	}
	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}
	if c.ImageHeight != nil && *c.ImageHeight <= 0 {
		return fmt.Errorf("image_height must be positive, got %d", *c.ImageHeight)
	}
	if c.FOVHorizontalDeg != nil && (*c.FOVHorizontalDeg <= 0 || *c.FOVHorizontalDeg >= 180) {
		return fmt.Errorf("fov_horizontal_degrees must be in (0, 180), got %f", *c.FOVHorizontalDeg)
	}
	if c.FOVVerticalDeg != nil && (*c.FOVVerticalDeg <= 0 || *c.FOVVerticalDeg >= 180) {
		return fmt.Errorf("fov_vertical_degrees must be in (0, 180), got %f", *c.FOVVerticalDeg)
	}
	if c.RayUncertaintyPx != nil && *c.RayUncertaintyPx < 0 {
		return fmt.Errorf("ray_uncertainty_pixels must be non-negative, got %f", *c.RayUncertaintyPx)
	}
	if c.RangeSigmaFraction != nil && (*c.RangeSigmaFraction <= 0 || *c.RangeSigmaFraction > 1) {
		return fmt.Errorf("range_sigma_fraction must be in (0, 1], got %f", *c.RangeSigmaFraction)
	}
	if c.OccupancyPeakProbability != nil && (*c.OccupancyPeakProbability <= 0.5 || *c.OccupancyPeakProbability >= 1) {
		return fmt.Errorf("occupancy_peak_probability must be in (0.5, 1), got %f", *c.OccupancyPeakProbability)
	}
	if c.VacancyRate != nil && (*c.VacancyRate < 0 || *c.VacancyRate > 1) {
		return fmt.Errorf("vacancy_rate must be in [0, 1], got %f", *c.VacancyRate)
	}
	if c.MaxHypotheses != nil && *c.MaxHypotheses <= 0 {
		return fmt.Errorf("max_hypotheses must be positive, got %d", *c.MaxHypotheses)
	}
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}
	return nil
}

// GetFocalLengthMM returns the focal_length_mm value or the default.
func (c *TuningConfig) GetFocalLengthMM() float64 {
	if c.FocalLengthMM == nil {
		return 5.0
	}
	return *c.FocalLengthMM
}

// GetSensorPixelsPerMM returns the sensor_pixels_per_mm value or the default.
func (c *TuningConfig) GetSensorPixelsPerMM() float64 {
	if c.SensorPixelsPerMM == nil {
		return 100.0
	}
	return *c.SensorPixelsPerMM
}

// GetBaselineMM returns the baseline_mm value or the default.
func (c *TuningConfig) GetBaselineMM() float64 {
	if c.BaselineMM == nil {
		return 100.0
	}
	return *c.BaselineMM
}

// GetImageWidth returns the image_width value or the default.
func (c *TuningConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 320
	}
	return *c.ImageWidth
}

// GetImageHeight returns the image_height value or the default.
func (c *TuningConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 240
	}
	return *c.ImageHeight
}

// GetFOVHorizontalRad returns the horizontal field of view in radians.
func (c *TuningConfig) GetFOVHorizontalRad() float64 {
	deg := 78.0
	if c.FOVHorizontalDeg != nil {
		deg = *c.FOVHorizontalDeg
	}
	return deg * math.Pi / 180.0
}

// GetFOVVerticalRad returns the vertical field of view in radians.
func (c *TuningConfig) GetFOVVerticalRad() float64 {
	deg := 59.0
	if c.FOVVerticalDeg != nil {
		deg = *c.FOVVerticalDeg
	}
	return deg * math.Pi / 180.0
}

// GetRayUncertaintyPx returns the ray_uncertainty_pixels value or the default.
func (c *TuningConfig) GetRayUncertaintyPx() float64 {
	if c.RayUncertaintyPx == nil {
		return 1.0
	}
	return *c.RayUncertaintyPx
}

// GetRangeSigmaFraction returns the range_sigma_fraction value or the default.
func (c *TuningConfig) GetRangeSigmaFraction() float64 {
	if c.RangeSigmaFraction == nil {
		return 0.02
	}
	return *c.RangeSigmaFraction
}

// GetOccupancyPeakProbability returns the occupancy_peak_probability value or
// the default. This is the peak of the ray-model probability profile; it is a
// documented tunable, see config/tuning.defaults.json.
func (c *TuningConfig) GetOccupancyPeakProbability() float64 {
	if c.OccupancyPeakProbability == nil {
		return 0.8
	}
	return *c.OccupancyPeakProbability
}

// GetVacancyRate returns the vacancy_rate value or the default.
func (c *TuningConfig) GetVacancyRate() float64 {
	if c.VacancyRate == nil {
		return 0.05
	}
	return *c.VacancyRate
}

// GetMaxHypotheses returns the max_hypotheses value or the default.
func (c *TuningConfig) GetMaxHypotheses() int {
	if c.MaxHypotheses == nil {
		return 8
	}
	return *c.MaxHypotheses
}

// GetSupportThreshold returns the support_threshold value or the default.
// Hypotheses whose support score falls below this value are pruned.
func (c *TuningConfig) GetSupportThreshold() float64 {
	if c.SupportThreshold == nil {
		return -10.0
	}
	return *c.SupportThreshold
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
