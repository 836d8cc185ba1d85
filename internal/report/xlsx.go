package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// XLSXSheet is the sheet name used by WriteXLSX.
const XLSXSheet = "results"

var xlsxHeader = []string{
	"rank", "landmark", "full_plus_code", "latitude", "longitude",
	"area_in_meters", "confidence", "distance_degrees", "distance_meters",
	"s2_cell", "dataset", "created_at", "id",
}

// WriteXLSX saves results to a single-sheet workbook at path, one row per
// result in the given order.
func WriteXLSX(path string, results []Result) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(XLSXSheet)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}

	for i, r := range results {
		b := r.Building
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(r.Landmark.Name)
		row.AddCell().SetString(b.PlusCode)
		row.AddCell().SetFloat(b.Latitude)
		row.AddCell().SetFloat(b.Longitude)
		addOptionalFloat(row, b.AreaInMeters)
		addOptionalFloat(row, b.Confidence)
		row.AddCell().SetFloat(r.Distance)
		row.AddCell().SetFloat(r.DistanceMeters)
		row.AddCell().SetString(r.S2Token)
		row.AddCell().SetString(r.Dataset)
		row.AddCell().SetString(r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		row.AddCell().SetString(r.ID.String())
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "report: create xlsx dir")
		}
	}
	return eris.Wrap(f.Save(path), "report: save xlsx")
}

// addOptionalFloat leaves the cell empty for NaN.
func addOptionalFloat(row *xlsx.Row, v float64) {
	cell := row.AddCell()
	if p := model.FiniteOrNil(v); p != nil {
		cell.SetFloat(*p)
	}
}
