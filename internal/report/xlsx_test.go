package report

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestWriteXLSX(t *testing.T) {
	r := rioResult(t)
	r.Dataset = "rio.csv"
	second := r
	second.Building.PlusCode = "589R2R22+BB"
	second.Building.Confidence = math.NaN()

	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	require.NoError(t, WriteXLSX(path, []Result{r, second}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[XLSXSheet]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0].Cells
	assert.Equal(t, "rank", header[0].String())
	assert.Equal(t, "full_plus_code", header[2].String())

	first := sheet.Rows[1].Cells
	assert.Equal(t, "1", first[0].String())
	assert.Equal(t, "Cristo Redentor", first[1].String())
	assert.Equal(t, "589R2RX2+AA", first[2].String())
	assert.Equal(t, "rio.csv", first[10].String())
	assert.Equal(t, r.ID.String(), first[12].String())

	row2 := sheet.Rows[2].Cells
	assert.Equal(t, "589R2R22+BB", row2[2].String())
	assert.Equal(t, "", row2[6].String())
}

func TestWriteXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1)
}
