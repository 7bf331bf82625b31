// Package assign turns a raw tracking ID scan into a published assignment:
// guard checks, geofence resolution, confidence scoring, and publication to
// the shared view.
package assign

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/geofence"
	"github.com/sells-group/sortscan/internal/heuristics"
	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/sharesync"
)

// Engine processes scans for one operational day. The loaded report is the
// only authoritative parcel source; nothing is assigned without it.
type Engine struct {
	resolver geofence.Resolver
	scorer   *heuristics.Engine
	sync     *sharesync.Synchronizer
	lookup   heuristics.HistoryLookup
	nowFunc  func() time.Time

	mu     sync.RWMutex
	report *model.Report
}

// NewEngine wires the scan pipeline together. lookup may be nil when no
// mismatch history source exists; scoring then relies on zone rules alone.
func NewEngine(resolver geofence.Resolver, scorer *heuristics.Engine, syncer *sharesync.Synchronizer, lookup heuristics.HistoryLookup) *Engine {
	return &Engine{
		resolver: resolver,
		scorer:   scorer,
		sync:     syncer,
		lookup:   lookup,
		nowFunc:  time.Now,
	}
}

// SetReport swaps in a freshly parsed daily report.
func (e *Engine) SetReport(r *model.Report) {
	e.mu.Lock()
	e.report = r
	e.mu.Unlock()
	if r != nil {
		zap.L().Info("report loaded",
			zap.Int("parcels", len(r.Parcels)), zap.Int("skipped", r.Skipped))
	}
}

// Report returns the currently loaded report, possibly nil.
func (e *Engine) Report() *model.Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report
}

// Scan validates one tracking ID, resolves it to a route, scores the
// assignment, and publishes it. Rejections come back as *model.Rejection;
// any other error means the record could not even be stored locally.
//
// Guards run in a fixed order: empty input, authoritative data present,
// duplicate, known parcel, inside some boundary. Publication failures do not
// reject the scan; the record stays in the local view and flushes later.
func (e *Engine) Scan(ctx context.Context, trackingID string) (*model.AssignmentRecord, error) {
	id := strings.ToUpper(strings.TrimSpace(trackingID))
	if id == "" {
		return nil, model.NewRejection(model.RejectEmptyInput, "")
	}

	report := e.Report()
	if !report.Loaded() {
		return nil, model.NewRejection(model.RejectNoAuthoritativeData, id)
	}

	if e.sync.Has(id) {
		return nil, model.NewRejection(model.RejectDuplicateScan, id)
	}

	parcel := report.Lookup(id)
	if parcel == nil {
		return nil, model.NewRejection(model.RejectUnknownParcel, id)
	}

	route := e.resolver.Resolve(parcel.Latitude, parcel.Longitude)
	if route == nil {
		return nil, model.NewRejection(model.RejectOutsideAllBoundaries, id)
	}

	score := e.scorer.Score(*parcel, route.DSP, e.lookup)

	rec := model.AssignmentRecord{
		TrackingID:      id,
		DSP:             route.DSP,
		RouteNumber:     route.RouteNumber,
		RouteName:       route.RouteName,
		Latitude:        parcel.Latitude,
		Longitude:       parcel.Longitude,
		Address:         parcel.Address,
		City:            parcel.City,
		ScannedAt:       e.nowFunc(),
		ConfidenceScore: score.Score,
		ConfidenceLevel: score.Level,
		HasWarning:      score.Warning(),
		Reasons:         score.Reasons,
	}

	if err := e.sync.Publish(ctx, rec); err != nil {
		return nil, err
	}

	zap.L().Info("parcel assigned",
		zap.String("tracking_id", id),
		zap.String("dsp", rec.DSP),
		zap.Int("route", rec.RouteNumber),
		zap.Int("confidence", rec.ConfidenceScore),
		zap.String("level", string(rec.ConfidenceLevel)))

	out, _ := e.sync.Get(id)
	return &out, nil
}
