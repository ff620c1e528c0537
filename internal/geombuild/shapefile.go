package geombuild

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadRoadsShapefile reads road polylines from an ESRI shapefile. Each part
// of a PolyLine record becomes one Road. The class attribute is read from
// classField when the shapefile carries it; records without it get an empty
// class. Unsupported shapes are skipped with a warning.
func LoadRoadsShapefile(path, classField string) ([]Road, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	classIdx := fieldIndex(reader, classField)

	log := zap.L().With(zap.String("component", "geombuild.shapefile"))

	var roads []Road
	skipped := 0
	for reader.Next() {
		n, shape := reader.Shape()

		pl, ok := shape.(*shp.PolyLine)
		if !ok || pl.NumParts == 0 || len(pl.Points) == 0 {
			log.Warn("skipping non-polyline record", zap.Int("record", n))
			skipped++
			continue
		}

		class := ""
		if classIdx >= 0 {
			class = strings.TrimSpace(reader.Attribute(classIdx))
		}

		for i := int32(0); i < pl.NumParts; i++ {
			start := pl.Parts[i]
			end := int32(len(pl.Points))
			if i+1 < pl.NumParts {
				end = pl.Parts[i+1]
			}

			coords := make([]geom.Coord, 0, end-start)
			for j := start; j < end; j++ {
				coords = append(coords, geom.Coord{pl.Points[j].X, pl.Points[j].Y})
			}
			roads = appendRoad(roads, class, coords)
		}
	}

	log.Info("loaded shapefile roads",
		zap.String("path", path),
		zap.Int("roads", len(roads)),
		zap.Int("skipped", skipped),
	)
	return roads, nil
}

// fieldIndex returns the index of the named DBF field, or -1 if absent.
func fieldIndex(reader *shp.Reader, name string) int {
	if name == "" {
		return -1
	}
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
