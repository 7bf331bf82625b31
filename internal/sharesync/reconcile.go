package sharesync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sortscan/internal/model"
)

var errNoRemote = eris.New("sharesync: no shared store configured")

// PollInterval is the floor between scoped refresh queries while the change
// feed is down. One refresh per interval keeps a degraded client from
// hammering a store that is already struggling.
const PollInterval = 5 * time.Second

// Run consumes the change feed and applies its events to the local view.
// It is the only goroutine that mutates the replica from remote input, so
// event application needs no further ordering. When the feed cannot be
// opened the loop degrades to rate-limited polling and keeps retrying the
// feed; it returns only when ctx is done or the client has no remote.
func (s *Synchronizer) Run(ctx context.Context) error {
	if s.remote == nil {
		s.setStatus(StatusOffline)
		<-ctx.Done()
		return ctx.Err()
	}

	limiter := rate.NewLimiter(rate.Every(PollInterval), 1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ch, err := s.remote.Changes(ctx, s.day)
		if err != nil {
			s.setStatus(StatusPolling)
			zap.L().Warn("change feed unavailable, polling", zap.Error(err))
			if err := s.pollOnce(ctx, limiter); err != nil {
				return err
			}
			continue
		}

		// Anything committed while no feed was open never produced an event
		// this client saw. Refresh from a scoped query before consuming so
		// the reopened feed starts from a complete view.
		if recs, lerr := s.remote.ListDay(ctx, s.day); lerr == nil {
			s.replaceView(ctx, recs)
		} else {
			zap.L().Warn("view refresh after feed open failed", zap.Error(lerr))
		}

		s.setStatus(StatusLive)
		if err := s.consume(ctx, ch); err != nil {
			return err
		}
		// feed closed, fall through and reconnect
		s.setStatus(StatusPolling)
	}
}

func (s *Synchronizer) consume(ctx context.Context, ch <-chan model.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			s.apply(ctx, ev)
		}
	}
}

// pollOnce waits out the limiter, refreshes the view with one day-scoped
// query, and returns. A failed refresh drops the client to offline until the
// next attempt; the cached view keeps serving reads either way.
func (s *Synchronizer) pollOnce(ctx context.Context, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	recs, err := s.remote.ListDay(ctx, s.day)
	if err != nil {
		s.setStatus(StatusOffline)
		zap.L().Warn("poll refresh failed, serving cached view", zap.Error(err))
		return nil
	}
	s.replaceView(ctx, recs)
	s.setStatus(StatusPolling)
	return nil
}

// apply merges one change event into the local view.
//
// Additions carrying this client's own session identity are echoes of writes
// already applied locally and are discarded. Foreign additions merge only if
// the tracking ID is absent, so a racing local publish is not clobbered.
// Removals always apply regardless of origin: a delete must converge even
// when the echo is the first notice of it.
func (s *Synchronizer) apply(ctx context.Context, ev model.ChangeEvent) {
	if ev.Day != "" && ev.Day != s.day {
		return
	}

	switch ev.Kind {
	case model.EventAdded:
		if ev.Record == nil {
			return
		}
		if ev.Record.SessionID == s.sessionID {
			return
		}
		s.mu.Lock()
		_, exists := s.records[ev.Record.TrackingID]
		if !exists {
			s.records[ev.Record.TrackingID] = *ev.Record
		}
		s.mu.Unlock()
		if !exists {
			if err := s.cache.SaveAssignment(ctx, *ev.Record, false); err != nil {
				zap.L().Warn("mirroring remote record failed",
					zap.String("tracking_id", ev.Record.TrackingID), zap.Error(err))
			}
		}

	case model.EventRemoved:
		id := ev.TrackingID()
		if id == "" {
			return
		}
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		if err := s.cache.DeleteAssignment(ctx, s.day, id); err != nil {
			zap.L().Debug("removing mirrored record failed",
				zap.String("tracking_id", id), zap.Error(err))
		}
	}
}
