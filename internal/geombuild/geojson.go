package geombuild

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LoadBoundary reads a GeoJSON file of polygon features and returns their
// union as a Boundary. Non-polygon and malformed features are skipped with a
// warning; a file with no usable polygons is an error.
func LoadBoundary(path string) (*Boundary, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	b := &Boundary{}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			zap.L().Warn("boundary: skipping feature with no geometry", zap.Int("feature", i))
			continue
		}
		if err := b.add(f.Geometry); err != nil {
			zap.L().Warn("boundary: skipping non-polygon feature",
				zap.Int("feature", i),
				zap.Error(err),
			)
		}
	}

	if len(b.polys) == 0 {
		return nil, eris.Errorf("boundary: no polygon features in %s", path)
	}
	return b, nil
}

// LoadRoads reads a GeoJSON file of line features into Roads. The road class
// is taken from the classProperty attribute when present. MultiLineStrings
// become one Road per member line. Malformed or empty geometries are skipped
// with a warning, not fatal.
func LoadRoads(path, classProperty string) ([]Road, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "geombuild.roads"))

	var roads []Road
	skipped := 0
	for i, f := range fc.Features {
		class := ""
		if v, ok := f.Properties[classProperty].(string); ok {
			class = v
		}

		switch g := f.Geometry.(type) {
		case *geom.LineString:
			roads = appendRoad(roads, class, g.Coords())
		case *geom.MultiLineString:
			for j := 0; j < g.NumLineStrings(); j++ {
				roads = appendRoad(roads, class, g.LineString(j).Coords())
			}
		case nil:
			log.Warn("skipping feature with no geometry", zap.Int("feature", i))
			skipped++
		default:
			log.Warn("skipping non-line feature", zap.Int("feature", i))
			skipped++
		}
	}

	log.Info("loaded road features",
		zap.String("path", path),
		zap.Int("roads", len(roads)),
		zap.Int("skipped", skipped),
	)
	return roads, nil
}

func appendRoad(roads []Road, class string, coords []geom.Coord) []Road {
	if len(coords) < 2 {
		zap.L().Warn("skipping degenerate polyline", zap.Int("vertices", len(coords)))
		return roads
	}
	return append(roads, Road{Class: class, Coords: coords})
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geojson: parse %s", path)
	}
	return &fc, nil
}
