package compare

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sortscan/internal/model"
)

// WriteAssignmentsCSV exports scanned assignments in scan order.
func WriteAssignmentsCSV(w io.Writer, records []model.AssignmentRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Tracking ID", "DSP", "Route", "Route Name", "Latitude", "Longitude",
		"Address", "City", "Scanned At", "Confidence", "Level", "Warning", "Reasons",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, rec := range records {
		row := []string{
			rec.TrackingID,
			rec.DSP,
			strconv.Itoa(rec.RouteNumber),
			rec.RouteName,
			strconv.FormatFloat(rec.Latitude, 'f', 6, 64),
			strconv.FormatFloat(rec.Longitude, 'f', 6, 64),
			rec.Address,
			rec.City,
			rec.ScannedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(rec.ConfidenceScore),
			string(rec.ConfidenceLevel),
			strconv.FormatBool(rec.HasWarning),
			strings.Join(rec.Reasons, "; "),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteComparisonCSV exports comparison results.
func WriteComparisonCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Tracking ID", "Outcome", "Scanned DSP", "System DSP", "Raw DSP Name",
		"Sort Zone", "City", "Postal",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, res := range results {
		row := []string{
			res.TrackingID,
			string(res.Outcome),
			res.ScannedDSP,
			res.SystemDSP,
			res.RawDSPName,
			res.SortZone,
			res.City,
			res.Postal,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}
