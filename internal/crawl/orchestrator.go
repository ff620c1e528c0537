// Package crawl drives the census: rate-limited workers claim batches of
// pending sample points, query the metadata endpoint, fold discoveries into
// the panorama set, and record every attempt. Progress lives entirely in the
// store, so an interrupted crawl resumes where it stopped.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/panocount/internal/dedup"
	"github.com/sells-group/panocount/internal/model"
	"github.com/sells-group/panocount/internal/resilience"
	"github.com/sells-group/panocount/internal/store"
	"github.com/sells-group/panocount/internal/streetview"
)

// Config tunes a crawl run.
type Config struct {
	Workers       int
	QPS           float64
	BatchSize     int
	RadiusMeters  int
	MaxAttempts   int
	ClaimGrace    time.Duration
	Retry         resilience.RetryConfig
	ProgressEvery int64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QPS <= 0 {
		c.QPS = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = 30
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ClaimGrace <= 0 {
		c.ClaimGrace = 10 * time.Minute
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 500
	}
	return c
}

// Orchestrator owns one crawl run.
type Orchestrator struct {
	store   store.Store
	client  streetview.Client
	dedup   *dedup.Deduplicator
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger

	processed atomic.Int64
	found     atomic.Int64
	notFound  atomic.Int64
	failed    atomic.Int64
	newPanos  atomic.Int64
	outside   atomic.Int64
}

// New creates an orchestrator. The rate limiter is shared by all workers, so
// cfg.QPS bounds the aggregate query rate regardless of worker count.
func New(st store.Store, client streetview.Client, d *dedup.Deduplicator, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:   st,
		client:  client,
		dedup:   d,
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), burstFor(cfg.QPS)),
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "crawl")),
	}
}

// burstFor sizes the token bucket to hold one second's worth of tokens, so
// a crawl resuming after an idle stretch can absorb the accumulated budget
// instead of being paced to strict 1/qps intervals.
func burstFor(qps float64) int {
	b := int(math.Ceil(qps))
	if b < 1 {
		b = 1
	}
	return b
}

// Run recovers stale claims, then processes pending points until none remain
// or ctx is cancelled. Cancellation finishes the in-flight point, records its
// attempt, and stops claiming; the summary is written either way and reports
// Interrupted. Persistence errors abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	recovered, err := o.store.RecoverStale(ctx, o.cfg.ClaimGrace)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		o.log.Info("recovered stale claims", zap.Int("points", recovered))
	}

	params := model.RunParams{
		RadiusMeters: o.cfg.RadiusMeters,
		QPS:          o.cfg.QPS,
		Workers:      o.cfg.Workers,
		BatchSize:    o.cfg.BatchSize,
	}
	runID, err := o.store.CreateRun(ctx, params)
	if err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	o.log.Info("crawl started",
		zap.String("run_id", runID),
		zap.Int("workers", o.cfg.Workers),
		zap.Float64("qps", o.cfg.QPS),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error { return o.worker(gctx) })
	}
	runErr := g.Wait()

	interrupted := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if interrupted {
		runErr = nil
	}

	// Summarize with a fresh context so a cancelled run still records one.
	sctx := context.WithoutCancel(ctx)
	summary, err := o.summarize(sctx, runID, params, start, interrupted)
	if err != nil {
		return nil, err
	}
	if err := o.store.FinishRun(sctx, runID, summary); err != nil {
		return nil, err
	}

	o.log.Info("crawl finished",
		zap.String("run_id", runID),
		zap.Int64("processed", o.processed.Load()),
		zap.Int64("unique_panoramas", summary.UniquePanoramas),
		zap.Bool("interrupted", interrupted),
	)
	return summary, runErr
}

func (o *Orchestrator) worker(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := o.store.ClaimBatch(ctx, o.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, pt := range batch {
			if err := o.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := o.processPoint(ctx, pt); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) processPoint(ctx context.Context, pt model.SamplePoint) error {
	out, err := streetview.QueryWithRetry(ctx, o.client, pt.Lat, pt.Lng,
		o.cfg.RadiusMeters, o.cfg.MaxAttempts, o.cfg.Retry)
	if err != nil {
		return err
	}

	attempt := model.Attempt{
		SampleID:  pt.ID,
		QueriedAt: time.Now().UTC(),
	}

	// Attempt writes survive cancellation so the in-flight point lands in a
	// terminal state instead of waiting out the claim grace period.
	wctx := context.WithoutCancel(ctx)

	switch out.Kind {
	case streetview.KindFound:
		attempt.PanoID = out.PanoID
		attempt.PanoLat = out.Lat
		attempt.PanoLng = out.Lng
		attempt.PanoDate = out.Date
		attempt.Copyright = out.Copyright

		res, err := o.dedup.Fold(wctx, model.Panorama{
			PanoID:    out.PanoID,
			Lat:       out.Lat,
			Lng:       out.Lng,
			Date:      out.Date,
			Copyright: out.Copyright,
		})
		if err != nil {
			return err
		}
		switch res {
		case dedup.New:
			attempt.Outcome = model.OutcomeFound
			o.newPanos.Add(1)
			panoramasNewTotal.Inc()
		case dedup.Duplicate:
			attempt.Outcome = model.OutcomeFound
			panoramasDuplicateTotal.Inc()
		case dedup.OutsideBoundary:
			attempt.Outcome = model.OutcomeFoundOutside
			o.outside.Add(1)
			panoramasOutsideTotal.Inc()
		}
		o.found.Add(1)
	case streetview.KindNotFound:
		attempt.Outcome = model.OutcomeNotFound
		o.notFound.Add(1)
	default:
		attempt.Outcome = model.OutcomeFailed
		attempt.Error = describeFailure(out)
		o.failed.Add(1)
		o.log.Warn("point failed",
			zap.String("sample_id", pt.ID),
			zap.String("kind", out.Kind.String()),
			zap.String("error", attempt.Error),
		)
	}

	if err := o.store.CompletePoint(wctx, attempt); err != nil {
		return err
	}
	pointsTotal.WithLabelValues(string(attempt.Outcome)).Inc()

	if n := o.processed.Add(1); n%o.cfg.ProgressEvery == 0 {
		o.log.Info("crawl progress",
			zap.Int64("processed", n),
			zap.Int64("found", o.found.Load()),
			zap.Int64("not_found", o.notFound.Load()),
			zap.Int64("failed", o.failed.Load()),
			zap.Int64("new_panoramas", o.newPanos.Load()),
		)
	}
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, runID string, params model.RunParams, start time.Time, interrupted bool) (*model.RunSummary, error) {
	counts, err := o.store.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	unique, err := o.store.CountPanoramas(ctx)
	if err != nil {
		return nil, err
	}
	foundOutside, err := o.store.CountFoundOutside(ctx)
	if err != nil {
		return nil, err
	}

	finished := time.Now().UTC()
	return &model.RunSummary{
		RunID:           runID,
		Params:          params,
		Counts:          counts,
		UniquePanoramas: unique,
		FoundOutside:    foundOutside,
		StartedAt:       start,
		FinishedAt:      finished,
		Duration:        finished.Sub(start).Round(time.Millisecond).String(),
		Interrupted:     interrupted,
	}, nil
}

func describeFailure(out streetview.Outcome) string {
	if out.Err != nil {
		return out.Err.Error()
	}
	if out.HTTPStatus != 0 {
		return fmt.Sprintf("giving up after repeated %s (http %d)", out.Kind, out.HTTPStatus)
	}
	return "giving up after repeated " + out.Kind.String()
}
