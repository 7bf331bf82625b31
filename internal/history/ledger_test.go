package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/store"
)

// fakeRemote implements the history half of store.Shared in memory.
type fakeRemote struct {
	mu      sync.Mutex
	history map[string]model.HistoryRecord
	down    bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{history: make(map[string]model.HistoryRecord)}
}

func (f *fakeRemote) IncrementHistory(ctx context.Context, rec model.HistoryRecord, by int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return resilience.NewTransientError(eris.New("connection refused"))
	}
	if by <= 0 {
		by = 1
	}
	cur, ok := f.history[rec.GridKey]
	if !ok {
		cur = rec
		cur.OccurrenceCount = 0
	}
	cur.OccurrenceCount += by
	cur.TrackingID = rec.TrackingID
	cur.ActualDSP = rec.ActualDSP
	if rec.LastSeen.After(cur.LastSeen) {
		cur.LastSeen = rec.LastSeen
	}
	f.history[rec.GridKey] = cur
	return nil
}

func (f *fakeRemote) GetHistory(ctx context.Context, gridKey string) (*model.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, resilience.NewTransientError(eris.New("connection refused"))
	}
	rec, ok := f.history[gridKey]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Unused Shared surface.
func (f *fakeRemote) PutAssignment(context.Context, model.AssignmentRecord) error { return nil }
func (f *fakeRemote) DeleteAssignment(context.Context, string, string) error      { return nil }
func (f *fakeRemote) ClearDay(context.Context, string) (int, error)               { return 0, nil }
func (f *fakeRemote) ListDay(context.Context, string) ([]model.AssignmentRecord, error) {
	return nil, nil
}
func (f *fakeRemote) ListAll(context.Context) ([]model.AssignmentRecord, error) { return nil, nil }
func (f *fakeRemote) Changes(context.Context, string) (<-chan model.ChangeEvent, error) {
	return nil, nil
}
func (f *fakeRemote) Migrate(context.Context) error { return nil }
func (f *fakeRemote) Close()                        {}

func newTestLedger(t *testing.T, remote store.Shared) (*Ledger, *store.Cache) {
	t.Helper()
	cache, err := store.NewCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	require.NoError(t, cache.Migrate(context.Background()))

	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	return NewLedger(remote, cache, retry), cache
}

func TestLedger_ObserveAndLookup(t *testing.T) {
	remote := newFakeRemote()
	ledger, _ := newTestLedger(t, remote)
	ctx := context.Background()

	require.NoError(t, ledger.Observe(ctx, "PKG001", "AMTP", "BBGH", "Köln", "50667", 0.5, 0.5))
	require.NoError(t, ledger.Observe(ctx, "PKG002", "AMTP", "BBGH", "Köln", "50667", 0.5001, 0.4999))

	// Both observations land in the same ~100 m grid cell.
	rec := ledger.Lookup(ctx, 0.5, 0.5)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.OccurrenceCount)
	assert.Equal(t, "PKG002", rec.TrackingID)
	assert.Equal(t, "AMTP", rec.ExpectedDSP)
}

func TestLedger_LookupMissing(t *testing.T) {
	ledger, _ := newTestLedger(t, newFakeRemote())
	assert.Nil(t, ledger.Lookup(context.Background(), 40.0, -3.7))
}

func TestLedger_OfflineFallsBackToCache(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	ledger, cache := newTestLedger(t, remote)
	ctx := context.Background()

	// Writes are never dropped: they land in the cache flagged pending.
	require.NoError(t, ledger.Observe(ctx, "PKG001", "AMTP", "BBGH", "", "", 0.5, 0.5))

	rec := ledger.Lookup(ctx, 0.5, 0.5)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.OccurrenceCount)

	_, pendingIncrements, err := cache.PendingCounts(ctx, model.OperationalDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, pendingIncrements)
}

func TestLedger_FlushPendingReplays(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	ledger, _ := newTestLedger(t, remote)
	ctx := context.Background()

	require.NoError(t, ledger.Observe(ctx, "PKG001", "AMTP", "BBGH", "", "", 0.5, 0.5))
	require.NoError(t, ledger.Observe(ctx, "PKG002", "AMTP", "BBGH", "", "", 0.5, 0.5))

	remote.down = false
	flushed, err := ledger.FlushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)

	got, err := remote.GetHistory(ctx, model.GridKey(0.5, 0.5))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.OccurrenceCount)

	// Second flush is a no-op: pending counters were cleared.
	flushed, err = ledger.FlushPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, flushed)
}

func TestLedger_NoRemoteConfigured(t *testing.T) {
	ledger, _ := newTestLedger(t, nil)
	ctx := context.Background()

	require.NoError(t, ledger.Observe(ctx, "PKG001", "AMTP", "BBGH", "", "", 0.5, 0.5))
	rec := ledger.Lookup(ctx, 0.5, 0.5)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.OccurrenceCount)

	_, err := ledger.FlushPending(ctx)
	assert.Error(t, err)
}
