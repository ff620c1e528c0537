package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panocount/internal/fetch"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the boundary and road network datasets",
	Long:  "Fetches the boundary GeoJSON and road centreline file from the configured URLs into the data directory. Zipped shapefiles are extracted in place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Data.BoundaryURL == "" || cfg.Data.RoadsURL == "" {
			return eris.New("data.boundary_url and data.roads_url must be configured")
		}
		if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
			return eris.Wrap(err, "create data directory")
		}

		d := fetch.NewDownloader(fetch.Options{
			RateLimiters: fetch.DefaultRateLimiters(),
		})

		n, err := d.DownloadToFile(ctx, cfg.Data.BoundaryURL, cfg.Data.BoundaryFile)
		if err != nil {
			return eris.Wrap(err, "download boundary")
		}
		zap.L().Info("downloaded boundary",
			zap.String("path", cfg.Data.BoundaryFile),
			zap.Int64("bytes", n),
		)

		roadsDest := cfg.Data.RoadsFile
		zipped := strings.HasSuffix(strings.ToLower(cfg.Data.RoadsURL), ".zip")
		if zipped {
			roadsDest = filepath.Join(cfg.Data.Dir, "roads.zip")
		}
		n, err = d.DownloadToFile(ctx, cfg.Data.RoadsURL, roadsDest)
		if err != nil {
			return eris.Wrap(err, "download roads")
		}
		zap.L().Info("downloaded road network",
			zap.String("path", roadsDest),
			zap.Int64("bytes", n),
		)

		if zipped {
			extracted, err := fetch.ExtractZIP(roadsDest, cfg.Data.Dir)
			if err != nil {
				return eris.Wrap(err, "extract road network")
			}
			zap.L().Info("extracted road network archive",
				zap.Strings("files", extracted),
			)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
