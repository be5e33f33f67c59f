// mapgrid runs a synthetic mapping session end to end: it simulates a robot
// driving toward a frontal wall, fuses the stereo observations from each
// step into a multi-hypothesis occupancy grid, reports the best-supported
// pose and exports the resulting map as PNG and HTML. Useful for eyeballing
// tuning changes without camera hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gridsense/occupancy.map/internal/config"
	"github.com/gridsense/occupancy.map/internal/mapdb"
	"github.com/gridsense/occupancy.map/internal/render"
	"github.com/gridsense/occupancy.map/internal/stereo"
	"github.com/gridsense/occupancy.map/internal/stereo/grid"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to tuning config JSON")
	outputDir := flag.String("out", "out", "Directory for rendered maps")
	dbPath := flag.String("db", "", "SQLite snapshot database path (empty disables persistence)")
	migrationsDir := flag.String("migrations", "internal/mapdb/migrations", "Migrations directory for the snapshot database")
	steps := flag.Int("steps", 6, "Number of forward motion steps")
	stepMM := flag.Float64("step-mm", 250, "Forward travel per step, mm")
	wallMM := flag.Float64("wall-mm", 3000, "Initial distance to the synthetic wall, mm")
	flag.Parse()

	if err := run(*configPath, *outputDir, *dbPath, *migrationsDir, *steps, *stepMM, *wallMM); err != nil {
		log.Fatalf("[mapgrid] %v", err)
	}
}

func run(configPath, outputDir, dbPath, migrationsDir string, steps int, stepMM, wallMM float64) error {
	cfg, err := config.LoadTuningConfig(configPath)
	if err != nil {
		return fmt.Errorf("load tuning config: %w", err)
	}

	params := stereo.SensorParamsFromTuning(cfg)
	gridCfg := grid.ConfigFromTuning(cfg)

	ism, err := stereo.NewInverseSensorModel(params, cfg.GetRayUncertaintyPx(), gridCfg.MaxMappingRangeMM)
	if err != nil {
		return err
	}
	model, err := stereo.NewRayModel(params, gridCfg.CellSizeMM, cfg.GetRayUncertaintyPx(),
		gridCfg.MaxMappingRangeMM, cfg.GetOccupancyPeakProbability(), cfg.GetRangeSigmaFraction())
	if err != nil {
		return err
	}

	multi, err := grid.NewMulti(gridCfg, cfg.GetMaxHypotheses(), cfg.GetSupportThreshold(), stereo.IdentityPose())
	if err != nil {
		return err
	}

	leftCam := stereo.Vertex{X: -params.BaselineMM / 2}
	rightCam := stereo.Vertex{X: params.BaselineMM / 2}

	for step := 0; step < steps; step++ {
		observer := stereo.Pose{Y: float64(step) * stepMM}
		if step > 0 {
			if _, err := multi.Admit(observer); err != nil {
				log.Printf("[mapgrid] step %d: candidate pose rejected: %v", step, err)
			}
		}

		// Observer-relative rays; each hypothesis re-anchors them itself.
		corrs := wallCorrespondences(params, wallMM-observer.Y)
		rays := ism.CreateObservation(stereo.IdentityPose(), corrs)
		for _, ray := range rays {
			multi.Insert(ray, model, leftCam, rightCam, false)
		}

		pruned := multi.Prune()
		log.Printf("[mapgrid] step %d: %d rays fused, %d hypotheses pruned, %d live",
			step, len(rays), pruned, multi.LiveCount())
	}

	pose, bestGrid, support, err := multi.Best()
	if err != nil {
		return err
	}
	log.Printf("[mapgrid] best pose: x=%.0fmm y=%.0fmm pan=%.3frad (support %.3f)",
		pose.X, pose.Y, pose.Pan, support)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	if err := render.ProjectionPNG(filepath.Join(outputDir, "map_top.png"), bestGrid, 800, 800, false, true); err != nil {
		return err
	}
	if err := render.ProjectionPNG(filepath.Join(outputDir, "map_front.png"), bestGrid, 800, 200, true, true); err != nil {
		return err
	}
	if err := render.ProfilePlotPNG(filepath.Join(outputDir, "ray_profiles.png"), model,
		[]float64{10, 15, 20, 30}, params.ImageHeight/2); err != nil {
		return err
	}

	htmlPath := filepath.Join(outputDir, "map.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	if err := render.OccupancyScatterHTML(f, bestGrid, "Occupancy map"); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("[mapgrid] rendered maps to %s", outputDir)

	if dbPath != "" {
		db, err := mapdb.New(dbPath, migrationsDir)
		if err != nil {
			return err
		}
		defer db.Close()

		id := bestHypothesisID(multi)
		snapID, err := bestGrid.Persist(db, id, pose, grid.SnapshotReasonManual)
		if err != nil {
			return err
		}
		log.Printf("[mapgrid] persisted snapshot %d for hypothesis %s", snapID, id)
	}
	return nil
}

func bestHypothesisID(m *grid.MultiHypothesisGrid) string {
	views := m.Hypotheses()
	if len(views) == 0 {
		return ""
	}
	best := views[0]
	for _, v := range views[1:] {
		if v.Support > best.Support {
			best = v
		}
	}
	return best.ID
}

// wallCorrespondences synthesises one stereo correspondence per sampled
// image column for a frontal wall at the given distance. The disparity is
// the same for every column; the bearing spread comes from the pixel
// positions.
func wallCorrespondences(params stereo.SensorParams, distanceMM float64) []stereo.Correspondence {
	if distanceMM <= 0 {
		return nil
	}
	disparity := params.FocalLengthMM * params.SensorPixelsPerMM * params.BaselineMM / distanceMM

	corrs := make([]stereo.Correspondence, 0, params.ImageWidth/4)
	row := float64(params.ImageHeight) / 2
	for px := 4; px < params.ImageWidth-4; px += 4 {
		corrs = append(corrs, stereo.Correspondence{
			X:         float64(px),
			Y:         row,
			Disparity: disparity,
			Colour:    [3]uint8{180, 180, 60},
		})
	}
	return corrs
}
