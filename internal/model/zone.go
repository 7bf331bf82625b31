package model

// ZonePriority weights a mismatch zone rule's score deduction.
type ZonePriority string

const (
	PriorityHigh   ZonePriority = "HIGH"
	PriorityMedium ZonePriority = "MEDIUM"
	PriorityLow    ZonePriority = "LOW"
)

// Deduction returns the confidence-score penalty for a rule of this priority.
func (p ZonePriority) Deduction() int {
	switch p {
	case PriorityHigh:
		return 40
	case PriorityMedium:
		return 25
	default:
		return 15
	}
}

// MismatchZoneRule is a statically configured problem zone: a location where
// the geofence assignment is known to historically disagree with the
// authoritative system. A rule fires when the parcel's city contains one of
// the aliases (or the postal code matches exactly) AND the rule's expected
// DSP equals the DSP the geofence detected.
type MismatchZoneRule struct {
	ZoneID          string       `yaml:"zone_id" json:"zone_id"`
	Description     string       `yaml:"description" json:"description"`
	ExpectedDSP     string       `yaml:"expected_dsp" json:"expected_dsp"`
	ActualLikelyDSP string       `yaml:"actual_likely_dsp" json:"actual_likely_dsp"`
	CityAliases     []string     `yaml:"city_aliases" json:"city_aliases"`
	PostalCodes     []string     `yaml:"postal_codes" json:"postal_codes"`
	Priority        ZonePriority `yaml:"priority" json:"priority"`
}

// ScoreResult is the outcome of scoring one assignment.
type ScoreResult struct {
	Score      int             `json:"score"`
	Level      ConfidenceLevel `json:"level"`
	Reasons    []string        `json:"reasons"`
	ZoneFired  bool            `json:"zone_fired"`
	HasHistory bool            `json:"has_history"`
}

// Warning reports whether the assignment should carry a warning flag.
func (r ScoreResult) Warning() bool {
	return r.ZoneFired || r.HasHistory
}
