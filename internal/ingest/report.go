// Package ingest parses the authoritative inputs: the daily parcel report,
// the comparison export from the system of record, and route boundary files
// fetched over FTP or read locally.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
)

// Report column headers. Matching is case-insensitive after trimming.
const (
	colTrackingID = "query_item"
	colLatitude   = "latitude"
	colLongitude  = "longitude"
	colAddress2   = "address_line_2"
	colAddress3   = "address_line_3"
	colCity       = "city"
	colPostal     = "postal_code"
	colState      = "state"
)

// headerIndex maps normalized column names to positions.
type headerIndex map[string]int

func indexHeader(row []string) headerIndex {
	idx := make(headerIndex, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func (h headerIndex) field(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseReport reads the daily report CSV into the authoritative parcel map.
// Parsing is strict: rows with a missing tracking ID or coordinates that do
// not parse are skipped and counted, never coerced. Duplicate tracking IDs
// keep the first row.
func ParseReport(ctx context.Context, r io.Reader) (*model.Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "report: read header")
	}
	idx := indexHeader(head)
	if _, ok := idx[colTrackingID]; !ok {
		return nil, eris.Errorf("report: missing %q column", "Query_Item")
	}
	for _, col := range []string{colLatitude, colLongitude} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("report: missing %q column", col)
		}
	}

	report := &model.Report{Parcels: make(map[string]model.ParcelLocation)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "report: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "report: read row")
		}

		id := strings.ToUpper(idx.field(row, colTrackingID))
		if id == "" {
			report.Skipped++
			continue
		}
		lat, latErr := strconv.ParseFloat(idx.field(row, colLatitude), 64)
		lon, lonErr := strconv.ParseFloat(idx.field(row, colLongitude), 64)
		if latErr != nil || lonErr != nil {
			report.Skipped++
			continue
		}
		if _, dup := report.Parcels[id]; dup {
			report.Skipped++
			continue
		}

		report.Parcels[id] = model.ParcelLocation{
			TrackingID: id,
			Latitude:   lat,
			Longitude:  lon,
			Address:    joinAddress(idx.field(row, colAddress2), idx.field(row, colAddress3)),
			City:       idx.field(row, colCity),
			PostalCode: idx.field(row, colPostal),
			State:      idx.field(row, colState),
		}
	}

	if report.Skipped > 0 {
		zap.L().Warn("report rows skipped during parse",
			zap.Int("skipped", report.Skipped), zap.Int("loaded", len(report.Parcels)))
	}
	return report, nil
}

func joinAddress(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
