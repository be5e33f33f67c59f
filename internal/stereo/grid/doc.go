// Package grid provides the occupancy-grid fusion layer: a single-hypothesis
// 3D probability grid that accumulates stereo evidence rays, and a
// multi-hypothesis manager that maintains competing grids anchored to
// candidate robot poses for localisation.
package grid
