// Package export writes the canonical panorama set and run summaries to
// operator-facing formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/panocount/internal/model"
)

var columns = []string{"pano_id", "lat", "lng", "date", "copyright", "first_seen", "sample_count"}

func panoramaRow(p model.Panorama) []string {
	return []string{
		p.PanoID,
		strconv.FormatFloat(p.Lat, 'f', 6, 64),
		strconv.FormatFloat(p.Lng, 'f', 6, 64),
		p.Date,
		p.Copyright,
		p.FirstSeen.UTC().Format(time.RFC3339),
		strconv.Itoa(p.SampleCount),
	}
}

// WriteCSV writes the panoramas to path as CSV with a header row.
func WriteCSV(panoramas []model.Panorama, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, p := range panoramas {
		if err := w.Write(panoramaRow(p)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", p.PanoID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrap(f.Close(), "export: close csv")
}

// WriteXLSX writes the panoramas to path as a single-sheet workbook.
func WriteXLSX(panoramas []model.Panorama, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("panoramas")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range columns {
		header.AddCell().SetString(c)
	}
	for _, p := range panoramas {
		row := sheet.AddRow()
		row.AddCell().SetString(p.PanoID)
		row.AddCell().SetFloatWithFormat(p.Lat, "0.000000")
		row.AddCell().SetFloatWithFormat(p.Lng, "0.000000")
		row.AddCell().SetString(p.Date)
		row.AddCell().SetString(p.Copyright)
		row.AddCell().SetString(p.FirstSeen.UTC().Format(time.RFC3339))
		row.AddCell().SetInt(p.SampleCount)
	}

	return eris.Wrap(file.Save(path), "export: save xlsx")
}

// WriteSummary writes the run summary to path as indented JSON.
func WriteSummary(path string, summary *model.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal summary")
	}
	return eris.Wrap(os.WriteFile(path, append(data, '\n'), 0o644), "export: write summary")
}
