package dedup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/panocount/internal/geombuild"
	"github.com/sells-group/panocount/internal/model"
)

// fakeFolder records folds and reports new-ness by tracking seen IDs.
type fakeFolder struct {
	seen  map[string]int
	fail  bool
	calls int
}

func (f *fakeFolder) FoldPanorama(ctx context.Context, pano model.Panorama) (bool, error) {
	f.calls++
	if f.fail {
		return false, eris.New("db locked")
	}
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	f.seen[pano.PanoID]++
	return f.seen[pano.PanoID] == 1, nil
}

func testBoundary(t *testing.T) *geombuild.Boundary {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-79.40, 43.64},
		{-79.36, 43.64},
		{-79.36, 43.67},
		{-79.40, 43.67},
		{-79.40, 43.64},
	}})
	b, err := geombuild.NewBoundary(poly)
	require.NoError(t, err)
	return b
}

func TestFold_NewThenDuplicate(t *testing.T) {
	folder := &fakeFolder{}
	d := NewDeduplicator(folder, testBoundary(t))
	pano := model.Panorama{PanoID: "p1", Lat: 43.65, Lng: -79.38}

	res, err := d.Fold(context.Background(), pano)
	require.NoError(t, err)
	assert.Equal(t, New, res)

	res, err = d.Fold(context.Background(), pano)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
}

func TestFold_OutsideBoundarySkipsStore(t *testing.T) {
	folder := &fakeFolder{}
	d := NewDeduplicator(folder, testBoundary(t))

	res, err := d.Fold(context.Background(), model.Panorama{PanoID: "p1", Lat: 43.70, Lng: -79.38})
	require.NoError(t, err)
	assert.Equal(t, OutsideBoundary, res)
	assert.Zero(t, folder.calls)
}

func TestFold_NilBoundaryAcceptsEverything(t *testing.T) {
	folder := &fakeFolder{}
	d := NewDeduplicator(folder, nil)

	res, err := d.Fold(context.Background(), model.Panorama{PanoID: "p1", Lat: 0, Lng: 0})
	require.NoError(t, err)
	assert.Equal(t, New, res)
}

func TestFold_StoreErrorPropagates(t *testing.T) {
	folder := &fakeFolder{fail: true}
	d := NewDeduplicator(folder, testBoundary(t))

	_, err := d.Fold(context.Background(), model.Panorama{PanoID: "p1", Lat: 43.65, Lng: -79.38})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup: fold p1")
}
