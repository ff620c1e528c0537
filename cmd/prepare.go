package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panocount/internal/geombuild"
)

// samplingSummary is the report prepare writes alongside the seeded store.
type samplingSummary struct {
	BoundaryFile   string    `json:"boundary_file"`
	RoadsFile      string    `json:"roads_file"`
	RoadsLoaded    int       `json:"roads_loaded"`
	SpacingMeters  float64   `json:"spacing_meters"`
	BufferMeters   float64   `json:"buffer_meters"`
	RoadClasses    []string  `json:"road_classes,omitempty"`
	PointsBuilt    int       `json:"points_built"`
	PointsInserted int       `json:"points_inserted"`
	PreparedAt     time.Time `json:"prepared_at"`
}

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build sample points from the road network and seed the store",
	Long:  "Loads the boundary and road network, deduplicates doubled segments, densifies roads at the configured spacing, filters to the boundary, and seeds the store with pending sample points. Safe to re-run: existing points and their progress are preserved.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		boundary, err := geombuild.LoadBoundary(cfg.Data.BoundaryFile)
		if err != nil {
			return err
		}

		roads, err := loadRoads()
		if err != nil {
			return err
		}

		proj, err := geombuild.NewProjection(geombuild.ProjectionParams{
			LatOrigin:     cfg.Projection.LatOrigin,
			LngOrigin:     cfg.Projection.LngOrigin,
			StdParallel1:  cfg.Projection.StdParallel1,
			StdParallel2:  cfg.Projection.StdParallel2,
			FalseEasting:  cfg.Projection.FalseEasting,
			FalseNorthing: cfg.Projection.FalseNorthing,
		})
		if err != nil {
			return err
		}

		planarBoundary, err := geombuild.ProjectBoundary(proj, boundary)
		if err != nil {
			return err
		}
		planarRoads := geombuild.ProjectRoads(proj, roads)

		points, err := geombuild.Build(planarBoundary, proj, planarRoads, geombuild.BuildOptions{
			SpacingMeters:        cfg.Sampling.SpacingM,
			BufferMeters:         cfg.Sampling.BufferM,
			DedupToleranceMeters: cfg.Sampling.DedupTolM,
			RoadClasses:          cfg.Sampling.RoadClasses,
		})
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inserted, err := st.SeedPoints(ctx, points)
		if err != nil {
			return err
		}
		zap.L().Info("seeded sample points",
			zap.Int("built", len(points)),
			zap.Int("inserted", inserted),
			zap.Int("existing", len(points)-inserted),
		)

		summary := samplingSummary{
			BoundaryFile:   cfg.Data.BoundaryFile,
			RoadsFile:      cfg.Data.RoadsFile,
			RoadsLoaded:    len(roads),
			SpacingMeters:  cfg.Sampling.SpacingM,
			BufferMeters:   cfg.Sampling.BufferM,
			RoadClasses:    cfg.Sampling.RoadClasses,
			PointsBuilt:    len(points),
			PointsInserted: inserted,
			PreparedAt:     time.Now().UTC(),
		}
		return writeSamplingSummary(summary)
	},
}

func loadRoads() ([]geombuild.Road, error) {
	path := cfg.Data.RoadsFile
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		return geombuild.LoadRoadsShapefile(path, cfg.Data.RoadsClassProperty)
	}
	return geombuild.LoadRoads(path, cfg.Data.RoadsClassProperty)
}

func writeSamplingSummary(summary samplingSummary) error {
	if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "create output directory")
	}
	path := filepath.Join(cfg.Data.OutputDir, "sampling_summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal sampling summary")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrap(err, "write sampling summary")
	}
	zap.L().Info("wrote sampling summary", zap.String("path", path))
	return nil
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}
