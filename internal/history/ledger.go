// Package history maintains the shared mismatch ledger: how often, per
// quantized grid cell, the geofence assignment disagreed with the
// authoritative system.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/store"
)

// Ledger accumulates mismatch observations. Writes go remote-first with
// at-least-once delivery; when the remote store is unreachable they land in
// the local cache flagged for explicit replay, never dropped. It is a
// frequency ledger: observing the same cell twice counts twice, by design.
type Ledger struct {
	remote  store.Shared
	cache   *store.Cache
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	nowFunc func() time.Time
}

// NewLedger builds a ledger over the remote store and local cache. remote may
// be nil for a fully offline client.
func NewLedger(remote store.Shared, cache *store.Cache, retry resilience.RetryConfig) *Ledger {
	return &Ledger{
		remote: remote,
		cache:  cache,
		retry:  retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("history ledger circuit state changed",
					zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		nowFunc: time.Now,
	}
}

// WithNow sets a fixed clock for tests.
func (l *Ledger) WithNow(fn func() time.Time) *Ledger {
	l.nowFunc = fn
	return l
}

// Observe records one confirmed mismatch: the geofence said expectedDSP at
// this location but the authoritative system assigned actualDSP. The local
// cache always mirrors the observation so it can serve lookups offline.
func (l *Ledger) Observe(ctx context.Context, trackingID, expectedDSP, actualDSP, city, postal string, lat, lon float64) error {
	rec := model.HistoryRecord{
		GridKey:     model.GridKey(lat, lon),
		ExpectedDSP: expectedDSP,
		ActualDSP:   actualDSP,
		TrackingID:  trackingID,
		City:        city,
		Postal:      postal,
		LastSeen:    l.nowFunc().UTC(),
	}

	remoteErr := l.remoteIncrement(ctx, rec)
	if remoteErr != nil {
		zap.L().Warn("history write falling back to local cache",
			zap.String("grid_key", rec.GridKey),
			zap.Error(remoteErr),
		)
	}
	// pending=true keeps the increment replayable when the remote write failed.
	if err := l.cache.IncrementHistory(ctx, rec, 1, remoteErr != nil); err != nil {
		return err
	}
	return nil
}

func (l *Ledger) remoteIncrement(ctx context.Context, rec model.HistoryRecord) error {
	if l.remote == nil {
		return resilience.NewTransientError(errNoRemote)
	}
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		cfg := l.retry
		cfg.OnRetry = resilience.RetryLogger("history increment")
		return resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return l.remote.IncrementHistory(ctx, rec, 1)
		})
	})
}

// Lookup returns the accumulated record for a coordinate's grid cell, or nil.
// Remote failures degrade to the local cache; a lookup never errors the scan
// that asked for it.
func (l *Ledger) Lookup(ctx context.Context, lat, lon float64) *model.HistoryRecord {
	key := model.GridKey(lat, lon)

	if l.remote != nil {
		var rec *model.HistoryRecord
		err := l.breaker.Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			rec, innerErr = l.remote.GetHistory(ctx, key)
			return innerErr
		})
		if err == nil {
			return rec
		}
		zap.L().Debug("history lookup falling back to local cache",
			zap.String("grid_key", key), zap.Error(err))
	}

	rec, err := l.cache.GetHistory(ctx, key)
	if err != nil {
		zap.L().Warn("history cache lookup failed", zap.String("grid_key", key), zap.Error(err))
		return nil
	}
	return rec
}

// LookupFunc adapts Lookup to the heuristics engine's callback shape.
func (l *Ledger) LookupFunc(ctx context.Context) func(lat, lon float64) *model.HistoryRecord {
	return func(lat, lon float64) *model.HistoryRecord {
		return l.Lookup(ctx, lat, lon)
	}
}

// FlushPending replays locally buffered increments to the remote store. This
// never runs automatically: reconnection does not imply the operator wants
// the outage backlog pushed, so replay is an explicit command.
func (l *Ledger) FlushPending(ctx context.Context) (int, error) {
	if l.remote == nil {
		return 0, errNoRemote
	}

	pending, err := l.cache.PendingHistory(ctx)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, row := range pending {
		if err := l.remote.IncrementHistory(ctx, row.Record, row.Increments); err != nil {
			return flushed, err
		}
		if err := l.cache.ClearPendingHistory(ctx, row.Record.GridKey); err != nil {
			return flushed, err
		}
		flushed += row.Increments
	}
	return flushed, nil
}
