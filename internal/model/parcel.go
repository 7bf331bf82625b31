package model

// ParcelLocation is the authoritative record for one parcel, sourced from the
// daily report. Read-only input to the assignment engine.
type ParcelLocation struct {
	TrackingID string  `json:"tracking_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Address    string  `json:"address"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	State      string  `json:"state"`
}

// Report is the parsed authoritative parcel source keyed by tracking ID.
// Skipped counts rows dropped during strict parsing (missing ID, unparsable
// coordinates); they are reported, never silently coerced.
type Report struct {
	Parcels map[string]ParcelLocation
	Skipped int
}

// Loaded reports whether any authoritative data is available.
func (r *Report) Loaded() bool {
	return r != nil && len(r.Parcels) > 0
}

// Lookup returns the parcel for a tracking ID, or nil if unknown.
func (r *Report) Lookup(trackingID string) *ParcelLocation {
	if r == nil {
		return nil
	}
	p, ok := r.Parcels[trackingID]
	if !ok {
		return nil
	}
	return &p
}

// ComparisonRow is one row of the authoritative comparison source, used to
// cross-check scanned assignments against the system of record.
type ComparisonRow struct {
	TrackingID string `json:"tracking_id"`
	DSPName    string `json:"dsp_name"` // raw, pre-normalization
	City       string `json:"city"`
	Postal     string `json:"postal"`
	SortZone   string `json:"sort_zone"`
}
