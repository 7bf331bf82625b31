package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
)

// notifyChannel is the Postgres NOTIFY channel carrying change events.
const notifyChannel = "scan_events"

// Pool is the subset of pgxpool.Pool the store's CRUD paths use, narrowed so
// pgxmock can stand in during tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Shared on pgxpool. Writes publish a NOTIFY event
// in the same transaction, so the change feed never observes a write that did
// not commit.
type PostgresStore struct {
	pool Pool
	raw  *pgxpool.Pool // dedicated connections for LISTEN; nil under pgxmock
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 6
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, raw: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scan_assignments (
	tracking_id TEXT NOT NULL,
	day         TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	record      JSONB NOT NULL,
	scanned_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tracking_id, day)
);

CREATE INDEX IF NOT EXISTS idx_scan_assignments_day ON scan_assignments(day);

CREATE TABLE IF NOT EXISTS mismatch_history (
	grid_key         TEXT PRIMARY KEY,
	expected_dsp     TEXT NOT NULL,
	actual_dsp       TEXT NOT NULL,
	tracking_id      TEXT NOT NULL,
	city             TEXT NOT NULL DEFAULT '',
	postal           TEXT NOT NULL DEFAULT '',
	last_seen        TIMESTAMPTZ NOT NULL,
	occurrence_count BIGINT NOT NULL DEFAULT 0
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() {
	if s.raw != nil {
		s.raw.Close()
	}
}

// PutAssignment upserts the record (last writer wins on a key collision) and
// notifies subscribers inside the same transaction.
func (s *PostgresStore) PutAssignment(ctx context.Context, rec model.AssignmentRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignment")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin put assignment")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO scan_assignments (tracking_id, day, session_id, record, scanned_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tracking_id, day) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			record     = EXCLUDED.record,
			scanned_at = EXCLUDED.scanned_at`,
		rec.TrackingID, rec.Day, rec.SessionID, string(recordJSON), rec.ScannedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put assignment %s", rec.TrackingID)
	}

	if err := notify(ctx, tx, model.ChangeEvent{Kind: model.EventAdded, Day: rec.Day, Record: &rec}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit put assignment")
}

// DeleteAssignment removes one record and notifies subscribers.
func (s *PostgresStore) DeleteAssignment(ctx context.Context, day, trackingID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete assignment")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM scan_assignments WHERE tracking_id = $1 AND day = $2`,
		trackingID, day,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete assignment %s", trackingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: assignment not found: %s", trackingID)
	}

	ev := model.ChangeEvent{Kind: model.EventRemoved, Day: day, Record: &model.AssignmentRecord{TrackingID: trackingID, Day: day}}
	if err := notify(ctx, tx, ev); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete assignment")
}

// ClearDay removes every record for the operational day and emits one Removed
// event per record, so every operator's view converges to empty. This is the
// one operation that affects all clients, not just the caller.
func (s *PostgresStore) ClearDay(ctx context.Context, day string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin clear day")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT tracking_id FROM scan_assignments WHERE day = $1`, day)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: list day for clear")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan tracking id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: iterate day for clear")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM scan_assignments WHERE day = $1`, day); err != nil {
		return 0, eris.Wrap(err, "postgres: clear day")
	}

	for _, id := range ids {
		ev := model.ChangeEvent{Kind: model.EventRemoved, Day: day, Record: &model.AssignmentRecord{TrackingID: id, Day: day}}
		if err := notify(ctx, tx, ev); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit clear day")
	}
	return len(ids), nil
}

// ListDay returns the day's records ordered by scan time.
func (s *PostgresStore) ListDay(ctx context.Context, day string) ([]model.AssignmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM scan_assignments WHERE day = $1 ORDER BY scanned_at`, day)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list day")
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListAll returns every record regardless of day; the degraded read path
// filters client-side when scoped queries fail.
func (s *PostgresStore) ListAll(ctx context.Context) ([]model.AssignmentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM scan_assignments ORDER BY scanned_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all")
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *PostgresStore) Changes(ctx context.Context, day string) (<-chan model.ChangeEvent, error) {
	if s.raw == nil {
		return nil, eris.New("postgres: change feed requires a live pool")
	}

	conn, err := s.raw.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: acquire listen connection")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, eris.Wrap(err, "postgres: listen")
	}

	ch := make(chan model.ChangeEvent, 64)
	go func() {
		defer close(ch)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Warn("change feed connection lost", zap.Error(err))
				}
				return
			}
			var ev model.ChangeEvent
			if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
				zap.L().Warn("discarding malformed change event", zap.Error(err))
				continue
			}
			if ev.Day != day {
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// IncrementHistory adds `by` observations to a grid cell. The increment is
// commutative server-side, so concurrent writers and retried deliveries
// converge to the correct sum; last_seen only moves forward.
func (s *PostgresStore) IncrementHistory(ctx context.Context, rec model.HistoryRecord, by int) error {
	if by <= 0 {
		by = 1
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mismatch_history
			(grid_key, expected_dsp, actual_dsp, tracking_id, city, postal, last_seen, occurrence_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (grid_key) DO UPDATE SET
			occurrence_count = mismatch_history.occurrence_count + $8,
			last_seen        = GREATEST(mismatch_history.last_seen, EXCLUDED.last_seen),
			tracking_id      = EXCLUDED.tracking_id,
			expected_dsp     = EXCLUDED.expected_dsp,
			actual_dsp       = EXCLUDED.actual_dsp,
			city             = EXCLUDED.city,
			postal           = EXCLUDED.postal`,
		rec.GridKey, rec.ExpectedDSP, rec.ActualDSP, rec.TrackingID, rec.City, rec.Postal, rec.LastSeen, by,
	)
	return eris.Wrapf(err, "postgres: increment history %s", rec.GridKey)
}

func (s *PostgresStore) GetHistory(ctx context.Context, gridKey string) (*model.HistoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT grid_key, expected_dsp, actual_dsp, tracking_id, city, postal, last_seen, occurrence_count
		 FROM mismatch_history WHERE grid_key = $1`, gridKey)

	var rec model.HistoryRecord
	var lastSeen time.Time
	err := row.Scan(&rec.GridKey, &rec.ExpectedDSP, &rec.ActualDSP, &rec.TrackingID,
		&rec.City, &rec.Postal, &lastSeen, &rec.OccurrenceCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get history %s", gridKey)
	}
	rec.LastSeen = lastSeen.UTC()
	return &rec, nil
}

// helpers

func notify(ctx context.Context, tx pgx.Tx, ev model.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal change event")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return eris.Wrap(err, "postgres: notify")
	}
	return nil
}

func scanAssignments(rows pgx.Rows) ([]model.AssignmentRecord, error) {
	var out []model.AssignmentRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		var rec model.AssignmentRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assignment")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate assignments")
}
