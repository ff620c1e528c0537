package geombuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const boundaryJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "test area"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[0,0],[100,0],[100,100],[0,100],[0,0]]]
      }
    }
  ]
}`

const roadsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"feature_code": "Local"},
      "geometry": {"type": "LineString", "coordinates": [[0,0],[50,0]]}
    },
    {
      "type": "Feature",
      "properties": {"feature_code": "Collector"},
      "geometry": {
        "type": "MultiLineString",
        "coordinates": [[[0,10],[50,10]],[[0,20],[50,20]]]
      }
    },
    {
      "type": "Feature",
      "properties": {},
      "geometry": {"type": "Point", "coordinates": [1,1]}
    },
    {
      "type": "Feature",
      "properties": {"feature_code": "Local"},
      "geometry": {"type": "LineString", "coordinates": [[5,5]]}
    }
  ]
}`

func TestLoadBoundary(t *testing.T) {
	path := writeTempJSON(t, "boundary.geojson", boundaryJSON)

	b, err := LoadBoundary(path)
	require.NoError(t, err)

	assert.True(t, b.Contains(50, 50))
	assert.False(t, b.Contains(150, 50))
}

func TestLoadBoundary_NoPolygons(t *testing.T) {
	path := writeTempJSON(t, "empty.geojson", `{"type":"FeatureCollection","features":[]}`)

	_, err := LoadBoundary(path)
	assert.Error(t, err)
}

func TestLoadBoundary_MissingFile(t *testing.T) {
	_, err := LoadBoundary(filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}

func TestLoadRoads(t *testing.T) {
	path := writeTempJSON(t, "roads.geojson", roadsJSON)

	roads, err := LoadRoads(path, "feature_code")
	require.NoError(t, err)

	// One LineString + two MultiLineString members; the point feature and the
	// single-vertex line are skipped.
	require.Len(t, roads, 3)
	assert.Equal(t, "Local", roads[0].Class)
	assert.Equal(t, "Collector", roads[1].Class)
	assert.Equal(t, "Collector", roads[2].Class)
}

func TestLoadRoads_Malformed(t *testing.T) {
	path := writeTempJSON(t, "bad.geojson", `{not json`)

	_, err := LoadRoads(path, "feature_code")
	assert.Error(t, err)
}
