package compare

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sortscan/internal/model"
)

type observed struct {
	trackingID, expectedDSP, actualDSP string
	city, postal                       string
	lat, lon                           float64
}

func scannedSet() map[string]model.AssignmentRecord {
	return map[string]model.AssignmentRecord{
		"TBA001": {TrackingID: "TBA001", DSP: "AMTP", City: "Berlin", Latitude: 52.52, Longitude: 13.405},
		"TBA002": {TrackingID: "TBA002", DSP: "ABFB", City: "Berlin", Latitude: 52.53, Longitude: 13.41},
		"TBA003": {TrackingID: "TBA003", DSP: "NALG", City: "Berlin", Latitude: 52.54, Longitude: 13.42},
	}
}

func TestRun_ClassifiesOutcomes(t *testing.T) {
	rows := []model.ComparisonRow{
		{TrackingID: "TBA001", DSPName: "Allmuna Transportlogistik GmbH", Postal: "10178"},
		{TrackingID: "TBA002", DSPName: "MD Transport GmbH", City: "Berlin-Mitte", Postal: "10119"},
		{TrackingID: "TBA999", DSPName: "NA Logistik GmbH", Postal: "10117"},
	}

	var seen []observed
	observe := func(ctx context.Context, id, expected, actual, city, postal string, lat, lon float64) error {
		seen = append(seen, observed{id, expected, actual, city, postal, lat, lon})
		return nil
	}

	results, sum, err := Run(context.Background(), rows, scannedSet(), observe)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, OutcomeMatch, results[0].Outcome)
	assert.Equal(t, OutcomeMismatch, results[1].Outcome)
	assert.Equal(t, "MDTR", results[1].SystemDSP)
	assert.Equal(t, OutcomeNotScanned, results[2].Outcome)

	assert.Equal(t, Summary{Matches: 1, Mismatches: 1, NotScanned: 1}, sum)

	require.Len(t, seen, 1, "only the confirmed mismatch feeds history")
	assert.Equal(t, "TBA002", seen[0].trackingID)
	assert.Equal(t, "ABFB", seen[0].expectedDSP, "the DSP the geofence chose")
	assert.Equal(t, "MDTR", seen[0].actualDSP, "the DSP the system of record has")
	assert.Equal(t, "Berlin-Mitte", seen[0].city, "zone fields come from the comparison row")
	assert.Equal(t, "10119", seen[0].postal)
	assert.Equal(t, 52.53, seen[0].lat)
}

func TestRun_UnrecognizedDSPNeverPoisonsHistory(t *testing.T) {
	rows := []model.ComparisonRow{
		{TrackingID: "TBA001", DSPName: "Totally Unknown Carrier"},
	}

	observe := func(ctx context.Context, id, expected, actual, city, postal string, lat, lon float64) error {
		t.Fatal("observe must not be called for unrecognized DSP names")
		return nil
	}

	results, sum, err := Run(context.Background(), rows, scannedSet(), observe)
	require.NoError(t, err)

	assert.Equal(t, OutcomeMismatch, results[0].Outcome)
	assert.Empty(t, results[0].SystemDSP)
	assert.Equal(t, 1, sum.Mismatches)
	assert.Equal(t, 1, sum.Unrecognized)
}

func TestRun_NilObserver(t *testing.T) {
	rows := []model.ComparisonRow{
		{TrackingID: "TBA002", DSPName: "MDTR"},
	}

	results, sum, err := Run(context.Background(), rows, scannedSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, results[0].Outcome)
	assert.Equal(t, 1, sum.Mismatches)
}

func TestWriteAssignmentsCSV(t *testing.T) {
	recs := []model.AssignmentRecord{{
		TrackingID:      "TBA001",
		DSP:             "AMTP",
		RouteNumber:     3,
		RouteName:       "Mitte",
		Latitude:        52.52,
		Longitude:       13.405,
		City:            "Berlin",
		ScannedAt:       time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC),
		ConfidenceScore: 75,
		ConfidenceLevel: model.ConfidenceMedium,
		HasWarning:      true,
		Reasons:         []string{"known mismatch zone: Mitte boundary drift"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteAssignmentsCSV(&buf, recs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Tracking ID")
	assert.Contains(t, lines[1], "TBA001,AMTP,3,Mitte")
	assert.Contains(t, lines[1], "75,MEDIUM,true")
}

func TestWriteComparisonCSV(t *testing.T) {
	results := []Result{{
		TrackingID: "TBA002",
		Outcome:    OutcomeMismatch,
		ScannedDSP: "ABFB",
		SystemDSP:  "MDTR",
		RawDSPName: "MD Transport GmbH",
		SortZone:   "B-03",
		City:       "Berlin",
		Postal:     "10119",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteComparisonCSV(&buf, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "TBA002,MISMATCH,ABFB,MDTR")
}
