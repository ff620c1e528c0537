package geombuild

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Boundary is a polygon (or multipolygon) region supporting containment and
// distance queries. Coordinates are in whatever CRS the source geometry used;
// Contains and DistanceTo are CRS-agnostic planar operations.
type Boundary struct {
	polys []*geom.Polygon
}

// NewBoundary wraps a Polygon, MultiPolygon, or GeometryCollection of those.
func NewBoundary(g geom.T) (*Boundary, error) {
	b := &Boundary{}
	if err := b.add(g); err != nil {
		return nil, err
	}
	if len(b.polys) == 0 {
		return nil, eris.New("boundary: no polygon features")
	}
	return b, nil
}

func (b *Boundary) add(g geom.T) error {
	switch t := g.(type) {
	case *geom.Polygon:
		b.polys = append(b.polys, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			b.polys = append(b.polys, t.Polygon(i))
		}
	case *geom.GeometryCollection:
		for _, sub := range t.Geoms() {
			if err := b.add(sub); err != nil {
				return err
			}
		}
	default:
		return eris.Errorf("boundary: unsupported geometry type %T", g)
	}
	return nil
}

// Contains reports whether the point lies strictly inside the region.
// Even-odd ray casting over all rings, so holes are respected.
func (b *Boundary) Contains(x, y float64) bool {
	for _, p := range b.polys {
		crossings := 0
		for i := 0; i < p.NumLinearRings(); i++ {
			crossings += rayCrossings(p.LinearRing(i).Coords(), x, y)
		}
		if crossings%2 == 1 {
			return true
		}
	}
	return false
}

// DistanceTo returns the minimum distance from the point to any boundary
// ring. Zero distance means the point is on the boundary itself.
func (b *Boundary) DistanceTo(x, y float64) float64 {
	min := math.Inf(1)
	for _, p := range b.polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			coords := p.LinearRing(i).Coords()
			for j := 1; j < len(coords); j++ {
				d := pointSegmentDistance(x, y, coords[j-1], coords[j])
				if d < min {
					min = d
				}
			}
		}
	}
	return min
}

// ContainsBuffered reports whether the point is inside the region or within
// buffer distance of its boundary. Used to retain road segments that straddle
// the edge before the strict point filter runs.
func (b *Boundary) ContainsBuffered(x, y, buffer float64) bool {
	if b.Contains(x, y) {
		return true
	}
	return b.DistanceTo(x, y) <= buffer
}

// rayCrossings counts crossings of a rightward horizontal ray from (x, y)
// with the ring's edges.
func rayCrossings(coords []geom.Coord, x, y float64) int {
	n := 0
	for i := 1; i < len(coords); i++ {
		x1, y1 := coords[i-1].X(), coords[i-1].Y()
		x2, y2 := coords[i].X(), coords[i].Y()
		if (y1 > y) != (y2 > y) {
			xi := x1 + (y-y1)/(y2-y1)*(x2-x1)
			if xi > x {
				n++
			}
		}
	}
	return n
}

func pointSegmentDistance(x, y float64, a, b geom.Coord) float64 {
	ax, ay := a.X(), a.Y()
	bx, by := b.X(), b.Y()
	dx, dy := bx-ax, by-ay

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(x-ax, y-ay)
	}

	t := ((x-ax)*dx + (y-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return math.Hypot(x-(ax+t*dx), y-(ay+t*dy))
}
