package store

import (
	"context"
	"time"

	"github.com/sells-group/panocount/internal/model"
)

// PanoramaFilter specifies criteria for listing panoramas.
type PanoramaFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for the panorama census.
type Store interface {
	// Sample points
	SeedPoints(ctx context.Context, points []model.SamplePoint) (int, error)
	ClaimBatch(ctx context.Context, n int) ([]model.SamplePoint, error)
	RecoverStale(ctx context.Context, grace time.Duration) (int, error)
	CompletePoint(ctx context.Context, attempt model.Attempt) error
	ResetFailed(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (model.StatusCounts, error)

	// Panoramas
	FoldPanorama(ctx context.Context, pano model.Panorama) (bool, error)
	CountPanoramas(ctx context.Context) (int64, error)
	CountFoundOutside(ctx context.Context) (int64, error)
	ListPanoramas(ctx context.Context, filter PanoramaFilter) ([]model.Panorama, error)

	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (string, error)
	FinishRun(ctx context.Context, runID string, summary *model.RunSummary) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
