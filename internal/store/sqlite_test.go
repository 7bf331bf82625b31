package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sortscan/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(filepath.Join(t.TempDir(), "sortscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func testRecord(id, day string) model.AssignmentRecord {
	return model.AssignmentRecord{
		TrackingID:      id,
		DSP:             "AMTP",
		RouteNumber:     2,
		RouteName:       "Mitte North",
		Latitude:        52.52,
		Longitude:       13.40,
		ScannedAt:       time.Date(2025, 11, 3, 8, 30, 0, 0, time.UTC),
		ConfidenceScore: 100,
		ConfidenceLevel: model.ConfidenceHigh,
		SessionID:       "session-1",
		Day:             day,
	}
}

func TestCache_SaveAndLoadDay(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG001", "2025-11-03"), false))
	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG002", "2025-11-03"), true))
	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG003", "2025-11-04"), false))

	day, err := c.LoadDay(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Len(t, day, 2)

	pending, err := c.PendingAssignments(ctx, "2025-11-03")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "PKG002", pending[0].TrackingID)
}

func TestCache_SaveAssignment_UpsertByKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	rec := testRecord("PKG001", "2025-11-03")
	require.NoError(t, c.SaveAssignment(ctx, rec, true))
	rec.ConfidenceScore = 60
	require.NoError(t, c.SaveAssignment(ctx, rec, false))

	day, err := c.LoadDay(ctx, "2025-11-03")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, 60, day[0].ConfidenceScore)

	pending, err := c.PendingAssignments(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCache_MarkSynced(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG001", "2025-11-03"), true))
	require.NoError(t, c.MarkSynced(ctx, "2025-11-03", "PKG001"))

	pending, err := c.PendingAssignments(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Empty(t, pending)

	a, h, err := c.PendingCounts(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Zero(t, a)
	assert.Zero(t, h)
}

func TestCache_DeleteAndClearDay(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG001", "2025-11-03"), false))
	require.NoError(t, c.SaveAssignment(ctx, testRecord("PKG002", "2025-11-03"), false))

	require.NoError(t, c.DeleteAssignment(ctx, "2025-11-03", "PKG001"))
	day, err := c.LoadDay(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Len(t, day, 1)

	require.NoError(t, c.ClearDay(ctx, "2025-11-03"))
	day, err = c.LoadDay(ctx, "2025-11-03")
	require.NoError(t, err)
	assert.Empty(t, day)
}

func TestCache_IncrementHistory_Accumulates(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	rec := model.HistoryRecord{
		GridKey:     model.GridKey(52.520, 13.405),
		ExpectedDSP: "AMTP",
		ActualDSP:   "BBGH",
		TrackingID:  "PKG001",
		LastSeen:    time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC),
	}

	// Frequency ledger: two observations at one cell increment twice.
	require.NoError(t, c.IncrementHistory(ctx, rec, 1, false))
	rec.TrackingID = "PKG009"
	rec.LastSeen = rec.LastSeen.Add(time.Hour)
	require.NoError(t, c.IncrementHistory(ctx, rec, 1, true))

	got, err := c.GetHistory(ctx, rec.GridKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.OccurrenceCount)
	assert.Equal(t, "PKG009", got.TrackingID)
	assert.Equal(t, rec.LastSeen, got.LastSeen)

	pending, err := c.PendingHistory(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Increments)

	require.NoError(t, c.ClearPendingHistory(ctx, rec.GridKey))
	pending, err = c.PendingHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCache_IncrementHistory_LastSeenMonotonic(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	later := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-2 * time.Hour)

	rec := model.HistoryRecord{GridKey: "52.520_13.405", ExpectedDSP: "AMTP", ActualDSP: "BBGH", TrackingID: "A", LastSeen: later}
	require.NoError(t, c.IncrementHistory(ctx, rec, 1, false))

	// A delayed retry with an older timestamp must not move last_seen back.
	rec.LastSeen = earlier
	require.NoError(t, c.IncrementHistory(ctx, rec, 1, false))

	got, err := c.GetHistory(ctx, rec.GridKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, later, got.LastSeen)
	assert.Equal(t, 2, got.OccurrenceCount)
}

func TestCache_GetHistory_Missing(t *testing.T) {
	c := newTestCache(t)
	got, err := c.GetHistory(context.Background(), "0.000_0.000")
	require.NoError(t, err)
	assert.Nil(t, got)
}
