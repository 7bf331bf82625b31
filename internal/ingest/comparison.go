package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sortscan/internal/model"
)

// Comparison export headers. The source system writes them with spaces.
const (
	colCmpTrackingID = "tracking id"
	colCmpDSPName    = "dsp name"
	colCmpCity       = "city"
	colCmpPostal     = "postal"
	colCmpSortZone   = "sort zone"
)

// ParseComparisonCSV reads the system-of-record export. Rows without a
// tracking ID are dropped; DSP names stay raw here and normalize during the
// comparison itself.
func ParseComparisonCSV(ctx context.Context, r io.Reader) ([]model.ComparisonRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "comparison: read header")
	}

	idx := indexHeader(head)
	if _, ok := idx[colCmpTrackingID]; !ok {
		return nil, eris.Errorf("comparison: missing %q column", "Tracking ID")
	}

	var rows []model.ComparisonRow
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "comparison: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "comparison: read row")
		}
		if cr, ok := comparisonRow(idx, row); ok {
			rows = append(rows, cr)
		}
	}
	return rows, nil
}

// ParseComparisonXLSX reads the same export in spreadsheet form, using the
// first sheet.
func ParseComparisonXLSX(path string) ([]model.ComparisonRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "comparison: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("comparison: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("comparison: xlsx sheet is empty")
	}

	idx := indexHeader(rowToStrings(sheet.Rows[0]))
	if _, ok := idx[colCmpTrackingID]; !ok {
		return nil, eris.Errorf("comparison: missing %q column", "Tracking ID")
	}

	var rows []model.ComparisonRow
	for _, row := range sheet.Rows[1:] {
		if cr, ok := comparisonRow(idx, rowToStrings(row)); ok {
			rows = append(rows, cr)
		}
	}
	return rows, nil
}

func comparisonRow(idx headerIndex, row []string) (model.ComparisonRow, bool) {
	id := strings.ToUpper(idx.field(row, colCmpTrackingID))
	if id == "" {
		return model.ComparisonRow{}, false
	}
	return model.ComparisonRow{
		TrackingID: id,
		DSPName:    idx.field(row, colCmpDSPName),
		City:       idx.field(row, colCmpCity),
		Postal:     idx.field(row, colCmpPostal),
		SortZone:   idx.field(row, colCmpSortZone),
	}, true
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
