// Package compare cross-checks the day's scanned assignments against the
// export from the system of record, and feeds confirmed mismatches back into
// the mismatch history so future scans at the same spot score lower.
package compare

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
)

// Outcome classifies one comparison row against the scanned set.
type Outcome string

const (
	OutcomeMatch      Outcome = "MATCH"
	OutcomeMismatch   Outcome = "MISMATCH"
	OutcomeNotScanned Outcome = "NOT_SCANNED"
)

// Result is the comparison verdict for one parcel.
type Result struct {
	TrackingID string  `json:"tracking_id"`
	Outcome    Outcome `json:"outcome"`
	ScannedDSP string  `json:"scanned_dsp,omitempty"`
	SystemDSP  string  `json:"system_dsp,omitempty"` // normalized; "" if unrecognized
	RawDSPName string  `json:"raw_dsp_name,omitempty"`
	SortZone   string  `json:"sort_zone,omitempty"`
	City       string  `json:"city,omitempty"`
	Postal     string  `json:"postal,omitempty"`
}

// Summary counts comparison outcomes.
type Summary struct {
	Matches      int `json:"matches"`
	Mismatches   int `json:"mismatches"`
	NotScanned   int `json:"not_scanned"`
	Unrecognized int `json:"unrecognized"` // DSP name did not normalize to a code
}

// Observer records one confirmed mismatch. Matches the history ledger's
// Observe method.
type Observer func(ctx context.Context, trackingID, expectedDSP, actualDSP, city, postal string, lat, lon float64) error

// Run compares system-of-record rows against the scanned view. A mismatch is
// only recorded to history when the system's DSP name normalizes to a known
// code; unrecognized names count separately and never poison the history.
// observe may be nil to compare without recording.
func Run(ctx context.Context, rows []model.ComparisonRow, scanned map[string]model.AssignmentRecord, observe Observer) ([]Result, Summary, error) {
	results := make([]Result, 0, len(rows))
	var sum Summary

	for _, row := range rows {
		res := Result{
			TrackingID: row.TrackingID,
			RawDSPName: row.DSPName,
			SystemDSP:  model.NormalizeDSP(row.DSPName),
			SortZone:   row.SortZone,
			City:       row.City,
			Postal:     row.Postal,
		}

		rec, ok := scanned[row.TrackingID]
		if !ok {
			res.Outcome = OutcomeNotScanned
			sum.NotScanned++
			results = append(results, res)
			continue
		}
		res.ScannedDSP = rec.DSP

		if res.SystemDSP == "" {
			res.Outcome = OutcomeMismatch
			sum.Mismatches++
			sum.Unrecognized++
			zap.L().Warn("unrecognized dsp name in comparison source",
				zap.String("tracking_id", row.TrackingID), zap.String("dsp_name", row.DSPName))
			results = append(results, res)
			continue
		}

		if res.SystemDSP == rec.DSP {
			res.Outcome = OutcomeMatch
			sum.Matches++
			results = append(results, res)
			continue
		}

		res.Outcome = OutcomeMismatch
		sum.Mismatches++
		if observe != nil {
			// Zone fields come from the comparison row as one unit; the
			// scanned record contributes only the coordinates.
			err := observe(ctx, rec.TrackingID, rec.DSP, res.SystemDSP,
				row.City, row.Postal, rec.Latitude, rec.Longitude)
			if err != nil {
				return results, sum, err
			}
		}
		results = append(results, res)
	}

	zap.L().Info("comparison complete",
		zap.Int("rows", len(rows)),
		zap.Int("matches", sum.Matches),
		zap.Int("mismatches", sum.Mismatches),
		zap.Int("not_scanned", sum.NotScanned))
	return results, sum, nil
}
