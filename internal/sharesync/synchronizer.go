// Package sharesync keeps every operator's view of the scanned set
// consistent: it publishes assignment records to the shared remote store,
// consumes the change feed from concurrent writers, suppresses echoes of its
// own writes, and degrades to a local durable cache when the store is
// unreachable.
package sharesync

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/store"
)

// Status describes how the local view is currently kept up to date.
type Status string

const (
	// StatusLive means the change feed is delivering events.
	StatusLive Status = "live"
	// StatusPolling means the feed is down and the view refreshes by
	// rate-limited scoped queries.
	StatusPolling Status = "polling"
	// StatusOffline means the local cache is the sole source of truth.
	StatusOffline Status = "offline"
)

// Synchronizer owns this client's replica of the day's scanned set. All reads
// used for dedup and display go through the replica; it is updated only by
// local publishes and by the reconciliation loop's merge rules, never
// ambiently.
type Synchronizer struct {
	remote    store.Shared // nil for a fully offline client
	cache     *store.Cache
	sessionID string
	day       string
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker

	mu      sync.RWMutex
	records map[string]model.AssignmentRecord
	status  Status
}

// New creates a synchronizer for one operational day. Call Bootstrap to load
// the initial view and Run to start consuming the change feed.
func New(remote store.Shared, cache *store.Cache, sessionID, day string, retry resilience.RetryConfig) *Synchronizer {
	return &Synchronizer{
		remote:    remote,
		cache:     cache,
		sessionID: sessionID,
		day:       day,
		retry:     retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("shared-store circuit state changed",
					zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		records: make(map[string]model.AssignmentRecord),
		status:  StatusOffline,
	}
}

// SessionID returns this client's session identity.
func (s *Synchronizer) SessionID() string { return s.sessionID }

// Day returns the operational day this synchronizer is scoped to.
func (s *Synchronizer) Day() string { return s.day }

// Status reports the current degradation level.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Synchronizer) setStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	s.mu.Unlock()
	if changed {
		zap.L().Info("sync status changed", zap.String("status", string(st)))
	}
}

// Bootstrap loads the initial view: the remote day query is authoritative;
// if it fails the full collection is loaded and filtered client-side; if that
// also fails the local cache serves with no live updates.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	if s.remote != nil {
		recs, err := s.remote.ListDay(ctx, s.day)
		if err == nil {
			s.replaceView(ctx, recs)
			s.setStatus(StatusPolling) // Run upgrades to live once the feed opens
			return nil
		}
		zap.L().Warn("day-scoped query failed, loading full collection", zap.Error(err))

		all, allErr := s.remote.ListAll(ctx)
		if allErr == nil {
			var recs []model.AssignmentRecord
			for _, r := range all {
				if r.Day == s.day {
					recs = append(recs, r)
				}
			}
			s.replaceView(ctx, recs)
			s.setStatus(StatusPolling)
			return nil
		}
		zap.L().Warn("full-collection query failed, serving from local cache", zap.Error(allErr))
	}

	recs, err := s.cache.LoadDay(ctx, s.day)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, r := range recs {
		s.records[r.TrackingID] = r
	}
	s.status = StatusOffline
	s.mu.Unlock()
	return nil
}

// replaceView swaps the replica to the remote set, keeping locally pending
// records the remote has not seen, and re-mirrors everything to the cache.
func (s *Synchronizer) replaceView(ctx context.Context, remote []model.AssignmentRecord) {
	pending, err := s.cache.PendingAssignments(ctx, s.day)
	if err != nil {
		zap.L().Warn("loading pending records failed", zap.Error(err))
	}

	s.mu.Lock()
	s.records = make(map[string]model.AssignmentRecord, len(remote)+len(pending))
	for _, r := range remote {
		s.records[r.TrackingID] = r
	}
	for _, r := range pending {
		if _, ok := s.records[r.TrackingID]; !ok {
			s.records[r.TrackingID] = r
		}
	}
	s.mu.Unlock()

	for _, r := range remote {
		if err := s.cache.SaveAssignment(ctx, r, false); err != nil {
			zap.L().Warn("mirroring record to cache failed",
				zap.String("tracking_id", r.TrackingID), zap.Error(err))
		}
	}
}

// Has reports whether a tracking ID is already in the shared view. This is
// the dedup check the assignment engine runs before accepting a scan.
func (s *Synchronizer) Has(trackingID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[trackingID]
	return ok
}

// Get returns the record for a tracking ID, if present.
func (s *Synchronizer) Get(trackingID string) (model.AssignmentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[trackingID]
	return rec, ok
}

// Snapshot returns the current view ordered by scan time.
func (s *Synchronizer) Snapshot() []model.AssignmentRecord {
	s.mu.RLock()
	out := make([]model.AssignmentRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScannedAt.Equal(out[j].ScannedAt) {
			return out[i].ScannedAt.Before(out[j].ScannedAt)
		}
		return out[i].TrackingID < out[j].TrackingID
	})
	return out
}

// Count returns the number of records in the view.
func (s *Synchronizer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Summary returns scanned-parcel counts per DSP.
func (s *Synchronizer) Summary() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, r := range s.records {
		out[r.DSP]++
	}
	return out
}

// Publish makes a record visible locally, mirrors it to the durable cache,
// and pushes it to the remote store. The local view reflects the publish
// before the remote round trip completes; a remote failure leaves the record
// published locally and flagged pending, never rolled back.
func (s *Synchronizer) Publish(ctx context.Context, rec model.AssignmentRecord) error {
	rec.SessionID = s.sessionID
	rec.Day = s.day

	s.mu.Lock()
	s.records[rec.TrackingID] = rec
	s.mu.Unlock()

	remoteErr := s.remotePut(ctx, rec)
	if remoteErr != nil {
		zap.L().Warn("publish falling back to local cache",
			zap.String("tracking_id", rec.TrackingID), zap.Error(remoteErr))
	}
	if err := s.cache.SaveAssignment(ctx, rec, remoteErr != nil); err != nil {
		return err
	}
	return nil
}

func (s *Synchronizer) remotePut(ctx context.Context, rec model.AssignmentRecord) error {
	if s.remote == nil {
		return errNoRemote
	}
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		cfg := s.retry
		cfg.OnRetry = resilience.RetryLogger("publish assignment")
		return resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return s.remote.PutAssignment(ctx, rec)
		})
	})
}

// Delete removes one record locally and remotely. Other operators observe
// the removal through the change feed.
func (s *Synchronizer) Delete(ctx context.Context, trackingID string) error {
	s.mu.Lock()
	delete(s.records, trackingID)
	s.mu.Unlock()

	if err := s.cache.DeleteAssignment(ctx, s.day, trackingID); err != nil {
		return err
	}
	if s.remote != nil {
		if err := s.remote.DeleteAssignment(ctx, s.day, trackingID); err != nil {
			zap.L().Warn("remote delete failed; record removed locally",
				zap.String("tracking_id", trackingID), zap.Error(err))
		}
	}
	return nil
}

// ClearAll removes every record for the current operational day, remotely and
// locally. This affects all concurrent operators, not just the caller.
func (s *Synchronizer) ClearAll(ctx context.Context) (int, error) {
	removed := 0
	if s.remote != nil {
		n, err := s.remote.ClearDay(ctx, s.day)
		if err != nil {
			zap.L().Warn("remote clear failed; clearing local view only", zap.Error(err))
		} else {
			removed = n
		}
	}

	s.mu.Lock()
	local := len(s.records)
	s.records = make(map[string]model.AssignmentRecord)
	s.mu.Unlock()
	if removed == 0 {
		removed = local
	}

	if err := s.cache.ClearDay(ctx, s.day); err != nil {
		return removed, err
	}
	return removed, nil
}

// Flush replays records that never reached the remote store. Replay is an
// explicit operator decision, never automatic on reconnect.
func (s *Synchronizer) Flush(ctx context.Context) (int, error) {
	if s.remote == nil {
		return 0, errNoRemote
	}

	pending, err := s.cache.PendingAssignments(ctx, s.day)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, rec := range pending {
		if err := s.remote.PutAssignment(ctx, rec); err != nil {
			return flushed, err
		}
		if err := s.cache.MarkSynced(ctx, s.day, rec.TrackingID); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// PendingCounts reports locally buffered work awaiting an explicit flush.
func (s *Synchronizer) PendingCounts(ctx context.Context) (assignments, historyIncrements int, err error) {
	return s.cache.PendingCounts(ctx, s.day)
}
