package assign

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sortscan/internal/geofence"
	"github.com/sells-group/sortscan/internal/heuristics"
	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/sharesync"
	"github.com/sells-group/sortscan/internal/store"
)

// square returns a route boundary covering lat 52.4-52.6, lon 13.3-13.5.
func square(dsp string, route int) model.RoutePolygon {
	return model.RoutePolygon{
		DSP:         dsp,
		RouteNumber: route,
		RouteName:   "Mitte",
		Ring: []geom.Coord{
			{13.3, 52.4}, {13.5, 52.4}, {13.5, 52.6}, {13.3, 52.6},
		},
	}
}

func testEngine(t *testing.T, rules []model.MismatchZoneRule, lookup heuristics.HistoryLookup) *Engine {
	t.Helper()
	cache, err := store.NewCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, cache.Migrate(context.Background()))
	t.Cleanup(func() { _ = cache.Close() })

	syncer := sharesync.New(nil, cache, model.NewSessionID(), "2026-09-01",
		resilience.RetryConfig{MaxAttempts: 1})

	idx := geofence.NewIndex()
	idx.Load("AMTP", []model.RoutePolygon{square("AMTP", 1)})

	eng := NewEngine(idx, heuristics.NewEngine(rules), syncer, lookup)
	eng.SetReport(&model.Report{Parcels: map[string]model.ParcelLocation{
		"TBA001": {TrackingID: "TBA001", Latitude: 52.52, Longitude: 13.405, City: "Berlin", PostalCode: "10115"},
		"TBA002": {TrackingID: "TBA002", Latitude: 52.52, Longitude: 13.41, City: "Berlin", PostalCode: "10117"},
		"TBA003": {TrackingID: "TBA003", Latitude: 48.13, Longitude: 11.58, City: "München", PostalCode: "80331"},
	}})
	return eng
}

func TestScan_AssignsHighConfidence(t *testing.T) {
	eng := testEngine(t, nil, nil)

	rec, err := eng.Scan(context.Background(), "TBA001")
	require.NoError(t, err)

	assert.Equal(t, "AMTP", rec.DSP)
	assert.Equal(t, 1, rec.RouteNumber)
	assert.Equal(t, 100, rec.ConfidenceScore)
	assert.Equal(t, model.ConfidenceHigh, rec.ConfidenceLevel)
	assert.False(t, rec.HasWarning)
	assert.NotEmpty(t, rec.SessionID)
	assert.Equal(t, "2026-09-01", rec.Day)
}

func TestScan_NormalizesInput(t *testing.T) {
	eng := testEngine(t, nil, nil)

	rec, err := eng.Scan(context.Background(), "  tba001  ")
	require.NoError(t, err)
	assert.Equal(t, "TBA001", rec.TrackingID)
}

func TestScan_RejectsEmptyInput(t *testing.T) {
	eng := testEngine(t, nil, nil)

	_, err := eng.Scan(context.Background(), "   ")
	var rej *model.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, model.RejectEmptyInput, rej.Code)
}

func TestScan_RejectsWithoutReport(t *testing.T) {
	eng := testEngine(t, nil, nil)
	eng.SetReport(nil)

	_, err := eng.Scan(context.Background(), "TBA001")
	var rej *model.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, model.RejectNoAuthoritativeData, rej.Code)
}

func TestScan_RejectsDuplicate(t *testing.T) {
	eng := testEngine(t, nil, nil)
	ctx := context.Background()

	_, err := eng.Scan(ctx, "TBA001")
	require.NoError(t, err)

	_, err = eng.Scan(ctx, "TBA001")
	var rej *model.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, model.RejectDuplicateScan, rej.Code)
	assert.Equal(t, "TBA001", rej.TrackingID)
}

func TestScan_RejectsUnknownParcel(t *testing.T) {
	eng := testEngine(t, nil, nil)

	_, err := eng.Scan(context.Background(), "TBA999")
	var rej *model.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, model.RejectUnknownParcel, rej.Code)
}

func TestScan_RejectsOutsideAllBoundaries(t *testing.T) {
	eng := testEngine(t, nil, nil)

	_, err := eng.Scan(context.Background(), "TBA003") // München, outside the ring
	var rej *model.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, model.RejectOutsideAllBoundaries, rej.Code)
}

func TestScan_ZoneRuleLowersConfidence(t *testing.T) {
	rules := []model.MismatchZoneRule{{
		ZoneID:      "mitte-overlap",
		Description: "Mitte boundary drift",
		ExpectedDSP: "AMTP",
		CityAliases: []string{"berlin"},
		Priority:    model.PriorityMedium,
	}}
	eng := testEngine(t, rules, nil)

	rec, err := eng.Scan(context.Background(), "TBA001")
	require.NoError(t, err)

	assert.Equal(t, 75, rec.ConfidenceScore)
	assert.Equal(t, model.ConfidenceMedium, rec.ConfidenceLevel)
	assert.True(t, rec.HasWarning)
	require.Len(t, rec.Reasons, 1)
	assert.Contains(t, rec.Reasons[0], "Mitte boundary drift")
}

func TestScan_HistoryLowersConfidence(t *testing.T) {
	lookup := func(lat, lon float64) *model.HistoryRecord {
		return &model.HistoryRecord{
			GridKey:         model.GridKey(lat, lon),
			ExpectedDSP:     "AMTP",
			OccurrenceCount: 2,
			LastSeen:        time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		}
	}
	eng := testEngine(t, nil, lookup)

	rec, err := eng.Scan(context.Background(), "TBA001")
	require.NoError(t, err)

	assert.Equal(t, 80, rec.ConfidenceScore)
	assert.Equal(t, model.ConfidenceMedium, rec.ConfidenceLevel)
	assert.True(t, rec.HasWarning)
}

func TestScanBatch_BucketsOutcomes(t *testing.T) {
	eng := testEngine(t, nil, nil)

	res, err := eng.ScanBatch(context.Background(),
		[]string{"TBA001", "TBA002", "TBA001", "TBA999", "TBA003"})
	require.NoError(t, err)

	assert.Len(t, res.Published, 2)
	assert.Equal(t, []string{"TBA001"}, res.Duplicates)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, model.RejectUnknownParcel, res.Rejected[0].Code)
	assert.Equal(t, model.RejectOutsideAllBoundaries, res.Rejected[1].Code)
	assert.Equal(t, 5, res.Total())
	assert.Empty(t, res.Flagged)
}
