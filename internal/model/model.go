package model

import "time"

// SampleStatus represents the crawl state of a sample point.
type SampleStatus string

const (
	StatusPending    SampleStatus = "pending"
	StatusInProgress SampleStatus = "in_progress"
	StatusQueried    SampleStatus = "queried"
	StatusFailed     SampleStatus = "failed"
)

// SamplePoint is a candidate coordinate along a road at which the metadata
// endpoint is queried. The ID is derived from the rounded coordinate so that
// re-running densification with identical parameters reproduces it.
type SamplePoint struct {
	ID        string       `json:"id"`
	Lat       float64      `json:"lat"`
	Lng       float64      `json:"lng"`
	RoadClass string       `json:"road_class,omitempty"`
	Status    SampleStatus `json:"status"`
	ClaimedAt *time.Time   `json:"claimed_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AttemptOutcome classifies the logical result of querying one sample point.
// Retries are collapsed into a single attempt row carrying the final outcome.
type AttemptOutcome string

const (
	OutcomeFound AttemptOutcome = "found"
	// OutcomeFoundOutside records a panorama discovered outside the boundary
	// polygon; it is kept in the audit trail but excluded from the canonical set.
	OutcomeFoundOutside AttemptOutcome = "found_outside"
	OutcomeNotFound     AttemptOutcome = "not_found"
	OutcomeFailed       AttemptOutcome = "failed"
)

// Attempt is one logical query attempt against a sample point. Append-only.
type Attempt struct {
	SampleID  string         `json:"sample_id"`
	Outcome   AttemptOutcome `json:"outcome"`
	PanoID    string         `json:"pano_id,omitempty"`
	PanoLat   float64        `json:"pano_lat,omitempty"`
	PanoLng   float64        `json:"pano_lng,omitempty"`
	PanoDate  string         `json:"pano_date,omitempty"`
	Copyright string         `json:"copyright,omitempty"`
	Error     string         `json:"error,omitempty"`
	QueriedAt time.Time      `json:"queried_at"`
}

// HasPanorama reports whether the attempt carries panorama fields. Coordinate
// nullability keys off this, not the zero value, so a panorama sitting exactly
// on the equator or prime meridian stores 0 instead of NULL.
func (a Attempt) HasPanorama() bool {
	return a.Outcome == OutcomeFound || a.Outcome == OutcomeFoundOutside
}

// Panorama is a discovered street-view panorama, keyed by the provider's ID.
// The coordinate comes from whichever attempt first discovered it.
type Panorama struct {
	PanoID      string    `json:"pano_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Date        string    `json:"date,omitempty"`
	Copyright   string    `json:"copyright,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	SampleCount int       `json:"sample_count"`
}

// StatusCounts holds sample point counts by status.
type StatusCounts struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Queried    int64 `json:"queried"`
	Failed     int64 `json:"failed"`
}

// Total returns the number of sample points across all statuses.
func (c StatusCounts) Total() int64 {
	return c.Pending + c.InProgress + c.Queried + c.Failed
}

// Remaining returns the number of points that still need processing.
func (c StatusCounts) Remaining() int64 {
	return c.Pending + c.InProgress
}

// Complete reports whether the crawl has nothing left to do.
func (c StatusCounts) Complete() bool {
	return c.Remaining() == 0
}

// RunParams records the configuration a crawl run started with.
type RunParams struct {
	SpacingMeters float64 `json:"spacing_meters"`
	RadiusMeters  int     `json:"radius_meters"`
	QPS           float64 `json:"qps"`
	Workers       int     `json:"workers"`
	BatchSize     int     `json:"batch_size"`
}

// RunSummary is the final report for a crawl run.
type RunSummary struct {
	RunID           string       `json:"run_id"`
	Params          RunParams    `json:"params"`
	Counts          StatusCounts `json:"counts"`
	UniquePanoramas int64        `json:"unique_panoramas"`
	FoundOutside    int64        `json:"found_outside"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	Duration        string       `json:"duration"`
	Interrupted     bool         `json:"interrupted,omitempty"`
}
