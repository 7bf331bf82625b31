package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/assign"
	"github.com/sells-group/sortscan/internal/geofence"
	"github.com/sells-group/sortscan/internal/heuristics"
	"github.com/sells-group/sortscan/internal/history"
	"github.com/sells-group/sortscan/internal/ingest"
	"github.com/sells-group/sortscan/internal/model"
	"github.com/sells-group/sortscan/internal/resilience"
	"github.com/sells-group/sortscan/internal/sharesync"
	"github.com/sells-group/sortscan/internal/store"
)

var offlineFlag bool

// appEnv holds the wired scan stack shared by the subcommands.
type appEnv struct {
	Remote store.Shared // nil in offline mode
	Cache  *store.Cache
	Index  *geofence.Index
	Ledger *history.Ledger
	Sync   *sharesync.Synchronizer
	Engine *assign.Engine
}

// Close releases store connections.
func (e *appEnv) Close() {
	if e.Remote != nil {
		e.Remote.Close()
	}
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initApp validates config for the given mode and wires the geofence index,
// heuristics, stores, history ledger, synchronizer, and assignment engine.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if offlineFlag {
		mode = "offline"
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Sync.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Sync.BackoffMs) * time.Millisecond,
	}

	var remote store.Shared
	if mode != "offline" && cfg.Store.DatabaseURL != "" {
		ps, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			// Status is a read-out, not a write path. An unreachable shared
			// store drops it to the cached view instead of failing.
			if mode != "status" {
				return nil, err
			}
			zap.L().Warn("shared store unreachable, reporting local view only", zap.Error(err))
		} else if err := ps.Migrate(ctx); err != nil {
			ps.Close()
			return nil, eris.Wrap(err, "migrate shared store")
		} else {
			remote = ps
		}
	}

	cache, err := store.NewCache(cfg.Cache.Path)
	if err != nil {
		if remote != nil {
			remote.Close()
		}
		return nil, err
	}
	if err := cache.Migrate(ctx); err != nil {
		if remote != nil {
			remote.Close()
		}
		_ = cache.Close()
		return nil, eris.Wrap(err, "migrate cache")
	}

	env := &appEnv{Remote: remote, Cache: cache}

	env.Index, err = loadRoutes()
	if err != nil {
		env.Close()
		return nil, err
	}

	rules, err := loadZoneRules()
	if err != nil {
		env.Close()
		return nil, err
	}
	scorer := heuristics.NewEngine(rules)

	env.Ledger = history.NewLedger(remote, cache, retry)
	env.Sync = sharesync.New(remote, cache, model.NewSessionID(), model.OperationalDay(time.Now()), retry)
	if err := env.Sync.Bootstrap(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "bootstrap shared view")
	}

	env.Engine = assign.NewEngine(env.Index, scorer, env.Sync, env.Ledger.LookupFunc(ctx))

	return env, nil
}

// loadRoutes builds the geofence index from the configured boundary files,
// in the configured load order.
func loadRoutes() (*geofence.Index, error) {
	idx := geofence.NewIndex()

	order := cfg.Routes.Order
	if len(order) == 0 {
		for dsp := range cfg.Routes.Files {
			order = append(order, dsp)
		}
	}

	for _, dsp := range order {
		path, ok := cfg.Routes.Files[dsp]
		if !ok {
			return nil, eris.Errorf("routes: no file configured for %s", dsp)
		}

		var (
			polys []model.RoutePolygon
			err   error
		)
		if strings.EqualFold(filepath.Ext(path), ".shp") {
			polys, err = geofence.LoadShapefile(path, dsp)
		} else {
			polys, err = geofence.LoadGeoJSON(path, dsp)
		}
		if err != nil {
			return nil, err
		}

		idx.Load(dsp, polys)
		zap.L().Info("routes loaded", zap.String("dsp", dsp), zap.Int("polygons", len(polys)))
	}

	return idx, nil
}

// loadZoneRules reads the mismatch zone table. A missing file means no
// static rules, not an error.
func loadZoneRules() ([]model.MismatchZoneRule, error) {
	if cfg.Zones.Path == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Zones.Path); os.IsNotExist(err) {
		zap.L().Debug("no zone rule file", zap.String("path", cfg.Zones.Path))
		return nil, nil
	}
	return heuristics.LoadRules(cfg.Zones.Path)
}

// loadReport parses the daily report from the configured source and hands it
// to the engine. FTP wins over a local path when both are set.
func loadReport(ctx context.Context, env *appEnv) error {
	var (
		report *model.Report
		err    error
	)

	switch {
	case cfg.Report.URL != "":
		fetcher := ingest.NewFTPFetcher(ingest.FTPOptions{
			Timeout:  time.Duration(cfg.Report.TimeoutSecs) * time.Second,
			User:     cfg.Report.FTPUser,
			Password: cfg.Report.FTPPassword,
		})
		report, err = fetcher.FetchReport(ctx, cfg.Report.URL)
	case cfg.Report.Path != "":
		var f *os.File
		f, err = os.Open(cfg.Report.Path)
		if err != nil {
			return eris.Wrap(err, "open report")
		}
		defer f.Close()
		report, err = ingest.ParseReport(ctx, f)
	default:
		return eris.New("no report source configured (set report.path or report.url)")
	}

	if err != nil {
		return err
	}
	env.Engine.SetReport(report)
	return nil
}
