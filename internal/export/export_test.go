package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/panocount/internal/model"
)

func samplePanoramas() []model.Panorama {
	firstSeen := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return []model.Panorama{
		{PanoID: "pano-a", Lat: 43.653824, Lng: -79.383909, Date: "2023-06", Copyright: "© Google", FirstSeen: firstSeen, SampleCount: 3},
		{PanoID: "pano-b", Lat: 43.648701, Lng: -79.379321, FirstSeen: firstSeen, SampleCount: 1},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panoramas.csv")
	require.NoError(t, WriteCSV(samplePanoramas(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, []string{"pano-a", "43.653824", "-79.383909", "2023-06", "© Google", "2026-03-14T12:00:00Z", "3"}, rows[1])
	// Missing date and copyright stay empty, not "null".
	assert.Equal(t, "", rows[2][3])
}

func TestWriteCSV_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCSV(nil, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panoramas.xlsx")
	require.NoError(t, WriteXLSX(samplePanoramas(), path))

	file, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	sheet := file.Sheets[0]
	assert.Equal(t, "panoramas", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "pano_id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "pano-a", sheet.Rows[1].Cells[0].String())

	lat, err := sheet.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 43.653824, lat, 1e-9)

	count, err := sheet.Rows[1].Cells[6].Int()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	summary := &model.RunSummary{
		RunID:           "run-1",
		Params:          model.RunParams{QPS: 10, Workers: 8, BatchSize: 100, RadiusMeters: 30},
		Counts:          model.StatusCounts{Queried: 120, Failed: 2},
		UniquePanoramas: 87,
		Duration:        "3m12s",
	}
	require.NoError(t, WriteSummary(path, summary))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got model.RunSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(87), got.UniquePanoramas)
	assert.Equal(t, int64(120), got.Counts.Queried)
	assert.Equal(t, float64(10), got.Params.QPS)
}
