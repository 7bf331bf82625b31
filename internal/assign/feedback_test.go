package assign

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sortscan/internal/compare"
	"github.com/sells-group/sortscan/internal/geofence"
	"github.com/sells-group/sortscan/internal/heuristics"
	"github.com/sells-group/sortscan/internal/history"
	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/sharesync"
	"github.com/sells-group/sortscan/internal/store"
)

// Scans a parcel, confirms a mismatch via comparison, clears the day, and
// scans again at the same address: the second scan must carry the history
// deduction the first one earned.
func TestScanCompareRescanLowersConfidence(t *testing.T) {
	ctx := context.Background()
	retry := resilience.RetryConfig{MaxAttempts: 1}

	cache, err := store.NewCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, cache.Migrate(ctx))
	t.Cleanup(func() { _ = cache.Close() })

	syncer := sharesync.New(nil, cache, model.NewSessionID(), "2026-09-01", retry)
	ledger := history.NewLedger(nil, cache, retry)

	idx := geofence.NewIndex()
	idx.Load("AMTP", []model.RoutePolygon{square("AMTP", 1)})

	eng := NewEngine(idx, heuristics.NewEngine(nil), syncer, ledger.LookupFunc(ctx))
	eng.SetReport(&model.Report{Parcels: map[string]model.ParcelLocation{
		"TBA001": {TrackingID: "TBA001", Latitude: 52.52, Longitude: 13.405, City: "Berlin", PostalCode: "10115"},
	}})

	first, err := eng.Scan(ctx, "TBA001")
	require.NoError(t, err)
	assert.Equal(t, 100, first.ConfidenceScore)

	scanned := map[string]model.AssignmentRecord{first.TrackingID: *first}
	rows := []model.ComparisonRow{{TrackingID: "TBA001", DSPName: "MD Transport GmbH"}}
	_, sum, err := compare.Run(ctx, rows, scanned, ledger.Observe)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Mismatches)

	_, err = syncer.ClearAll(ctx)
	require.NoError(t, err)

	second, err := eng.Scan(ctx, "TBA001")
	require.NoError(t, err)
	assert.Equal(t, 90, second.ConfidenceScore, "one prior mismatch deducts 10")
	assert.Equal(t, model.ConfidenceHigh, second.ConfidenceLevel)
	assert.True(t, second.HasWarning)
	require.Len(t, second.Reasons, 1)
	assert.Contains(t, second.Reasons[0], "1 prior mismatch")
}
