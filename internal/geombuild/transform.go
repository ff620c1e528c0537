package geombuild

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ProjectRoads converts WGS84 roads (GeoJSON lng/lat axis order) into the
// planar CRS of the projection.
func ProjectRoads(p *Projection, roads []Road) []Road {
	out := make([]Road, len(roads))
	for i, r := range roads {
		coords := make([]geom.Coord, len(r.Coords))
		for j, c := range r.Coords {
			x, y := p.Forward(c.Y(), c.X())
			coords[j] = geom.Coord{x, y}
		}
		out[i] = Road{Class: r.Class, Coords: coords}
	}
	return out
}

// ProjectBoundary converts a WGS84 boundary into the planar CRS of the
// projection.
func ProjectBoundary(p *Projection, b *Boundary) (*Boundary, error) {
	out := &Boundary{}
	for _, poly := range b.polys {
		projected := geom.NewPolygon(geom.XY)
		for i := 0; i < poly.NumLinearRings(); i++ {
			ring := poly.LinearRing(i).Coords()
			coords := make([]geom.Coord, len(ring))
			for j, c := range ring {
				x, y := p.Forward(c.Y(), c.X())
				coords[j] = geom.Coord{x, y}
			}
			if err := projected.Push(geom.NewLinearRing(geom.XY).MustSetCoords(coords)); err != nil {
				return nil, eris.Wrap(err, "transform: project ring")
			}
		}
		out.polys = append(out.polys, projected)
	}
	if len(out.polys) == 0 {
		return nil, eris.New("transform: empty boundary")
	}
	return out, nil
}
