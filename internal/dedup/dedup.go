// Package dedup folds discovered panoramas into the canonical set, keyed by
// provider ID. A panorama reported by many nearby sample points counts once.
package dedup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panocount/internal/geombuild"
	"github.com/sells-group/panocount/internal/model"
)

// Result classifies one fold.
type Result int

const (
	// New means the panorama ID was unseen and joined the canonical set.
	New Result = iota
	// Duplicate means the ID was already present; its sample count grew.
	Duplicate
	// OutsideBoundary means the panorama sits outside the study area and
	// was kept out of the canonical set.
	OutsideBoundary
)

func (r Result) String() string {
	switch r {
	case New:
		return "new"
	case Duplicate:
		return "duplicate"
	case OutsideBoundary:
		return "outside_boundary"
	}
	return "unknown"
}

// Folder is the store operation dedup needs: insert-if-absent returning
// whether the ID was new.
type Folder interface {
	FoldPanorama(ctx context.Context, pano model.Panorama) (bool, error)
}

// Deduplicator applies the boundary filter and delegates check-and-insert
// atomicity to the store.
type Deduplicator struct {
	folder   Folder
	boundary *geombuild.Boundary
}

// NewDeduplicator wires a fold target and an optional study-area boundary.
// A nil boundary disables the outside filter.
func NewDeduplicator(folder Folder, boundary *geombuild.Boundary) *Deduplicator {
	return &Deduplicator{folder: folder, boundary: boundary}
}

// Fold records one discovered panorama. Panoramas outside the boundary are
// rejected before any store write; the caller's attempt row is the only
// trace they leave.
func (d *Deduplicator) Fold(ctx context.Context, pano model.Panorama) (Result, error) {
	// Boundary here is in WGS84 lng/lat order, matching the GeoJSON source.
	if d.boundary != nil && !d.boundary.Contains(pano.Lng, pano.Lat) {
		return OutsideBoundary, nil
	}
	isNew, err := d.folder.FoldPanorama(ctx, pano)
	if err != nil {
		return 0, eris.Wrapf(err, "dedup: fold %s", pano.PanoID)
	}
	if isNew {
		return New, nil
	}
	return Duplicate, nil
}
