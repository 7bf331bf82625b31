package model

import (
	"fmt"
	"time"
)

// HistoryRecord accumulates confirmed mismatch observations for one quantized
// grid cell. OccurrenceCount only grows and LastSeen only moves forward; the
// tracking ID is last-writer-wins.
type HistoryRecord struct {
	GridKey         string    `json:"grid_key"`
	ExpectedDSP     string    `json:"expected_dsp"`
	ActualDSP       string    `json:"actual_dsp"`
	TrackingID      string    `json:"tracking_id"`
	City            string    `json:"city,omitempty"`
	Postal          string    `json:"postal,omitempty"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
}

// GridKey quantizes a coordinate to a ~100 m cell: round(lat,3)_round(lon,3).
// Cell width shrinks east-west toward the poles; acceptable for a single-metro
// deployment, revisit before reuse at other latitudes.
func GridKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f_%.3f", lat, lon)
}
