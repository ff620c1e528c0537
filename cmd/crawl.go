package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panocount/internal/config"
	"github.com/sells-group/panocount/internal/crawl"
	"github.com/sells-group/panocount/internal/dedup"
	"github.com/sells-group/panocount/internal/export"
	"github.com/sells-group/panocount/internal/geombuild"
	"github.com/sells-group/panocount/internal/resilience"
	"github.com/sells-group/panocount/internal/streetview"
)

var (
	crawlWorkers int
	crawlQPS     float64
	crawlBatch   int
	crawlRadius  int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Query the metadata endpoint for every pending sample point",
	Long:  "Runs the rate-limited crawl over all pending sample points. Progress is stored per point, so an interrupted crawl resumes from where it stopped. Ctrl-C finishes the in-flight points, records the run summary, and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCrawlFlags(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Boundary in WGS84 for the panorama-side filter. Optional: without
		// it every discovered panorama is kept.
		var boundary *geombuild.Boundary
		if b, err := geombuild.LoadBoundary(cfg.Data.BoundaryFile); err == nil {
			boundary = b
		} else {
			zap.L().Warn("boundary unavailable, panorama filter disabled", zap.Error(err))
		}

		client := streetview.NewClient(cfg.API.Key,
			streetview.WithBaseURL(cfg.API.BaseURL),
		)

		o := crawl.New(st, client, dedup.NewDeduplicator(st, boundary), crawl.Config{
			Workers:       cfg.Crawl.Workers,
			QPS:           cfg.Crawl.QPS,
			BatchSize:     cfg.Crawl.BatchSize,
			RadiusMeters:  cfg.API.RadiusM,
			MaxAttempts:   cfg.API.MaxAttempts,
			ClaimGrace:    cfg.Crawl.ClaimGrace(),
			ProgressEvery: int64(cfg.Crawl.ProgressEvery),
			Retry: resilience.RetryConfig{
				InitialBackoff: time.Second,
				MaxBackoff:     time.Minute,
			},
		})

		summary, err := o.Run(ctx)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
			return eris.Wrap(err, "create output directory")
		}
		path := filepath.Join(cfg.Data.OutputDir, "run_summary.json")
		if err := export.WriteSummary(path, summary); err != nil {
			zap.L().Warn("could not write run summary file", zap.Error(err))
		}
		return nil
	},
}

func applyCrawlFlags(c *config.Config) {
	if crawlWorkers > 0 {
		c.Crawl.Workers = crawlWorkers
	}
	if crawlQPS > 0 {
		c.Crawl.QPS = crawlQPS
	}
	if crawlBatch > 0 {
		c.Crawl.BatchSize = crawlBatch
	}
	if crawlRadius > 0 {
		c.API.RadiusM = crawlRadius
	}
}

func init() {
	crawlCmd.Flags().IntVar(&crawlWorkers, "workers", 0, "worker count (default from config)")
	crawlCmd.Flags().Float64Var(&crawlQPS, "qps", 0, "aggregate queries per second (default from config)")
	crawlCmd.Flags().IntVar(&crawlBatch, "batch", 0, "claim batch size (default from config)")
	crawlCmd.Flags().IntVar(&crawlRadius, "radius", 0, "search radius in meters (default from config)")
	rootCmd.AddCommand(crawlCmd)
}
