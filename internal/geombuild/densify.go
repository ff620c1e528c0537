package geombuild

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// Road is one polyline of the road network in planar coordinates.
type Road struct {
	Class  string
	Coords []geom.Coord
}

// DensifyCoords walks a polyline and emits points at cumulative arc-length
// intervals of spacing, starting with the first vertex. The final vertex is
// emitted only if it lies within spacing/2 of the last regular sample.
// Polylines with fewer than two vertices produce no points.
func DensifyCoords(coords []geom.Coord, spacing float64) []geom.Coord {
	if len(coords) < 2 || spacing <= 0 {
		return nil
	}

	pts := []geom.Coord{coords[0]}
	target := spacing
	traveled := 0.0

	for i := 1; i < len(coords); i++ {
		prev, cur := coords[i-1], coords[i]
		seg := math.Hypot(cur.X()-prev.X(), cur.Y()-prev.Y())
		if seg == 0 {
			continue
		}
		for traveled+seg >= target {
			f := (target - traveled) / seg
			pts = append(pts, geom.Coord{
				prev.X() + f*(cur.X()-prev.X()),
				prev.Y() + f*(cur.Y()-prev.Y()),
			})
			target += spacing
		}
		traveled += seg
	}

	last := coords[len(coords)-1]
	tail := pts[len(pts)-1]
	if d := math.Hypot(last.X()-tail.X(), last.Y()-tail.Y()); d > 0 && d <= spacing/2 {
		pts = append(pts, last)
	}

	return pts
}

// DedupSegments drops polylines that duplicate an already-seen segment within
// tol meters. Two polylines count as duplicates when their endpoints coincide
// on a tol-sized grid in either orientation; this merges independently sourced
// copies of the same road before densification rather than after, so point
// density is not inflated along doubled segments.
func DedupSegments(roads []Road, tol float64) []Road {
	if tol <= 0 {
		return roads
	}

	seen := make(map[string]struct{}, len(roads))
	kept := roads[:0:0]

	for _, r := range roads {
		if len(r.Coords) < 2 {
			kept = append(kept, r)
			continue
		}
		key := segmentKey(r.Coords[0], r.Coords[len(r.Coords)-1], tol)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}

	return kept
}

// segmentKey quantizes both endpoints to the tolerance grid and orders them
// so that reversed copies of a segment hash identically.
func segmentKey(a, b geom.Coord, tol float64) string {
	ax, ay := math.Round(a.X()/tol), math.Round(a.Y()/tol)
	bx, by := math.Round(b.X()/tol), math.Round(b.Y()/tol)
	if ax > bx || (ax == bx && ay > by) {
		ax, ay, bx, by = bx, by, ax, ay
	}
	return fmt.Sprintf("%.0f:%.0f:%.0f:%.0f", ax, ay, bx, by)
}
