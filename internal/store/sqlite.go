package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sortscan/internal/model"
)

// Cache is the local durable fallback, written after every mutation and read
// at startup. Rows written while the remote store was unreachable are flagged
// pending; they are never dropped and never replayed automatically; an
// explicit flush pushes them back to the remote store.
type Cache struct {
	db *sql.DB
}

// NewCache opens (or creates) the local cache database in WAL mode.
func NewCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return &Cache{db: db}, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS assignments (
	tracking_id TEXT NOT NULL,
	day         TEXT NOT NULL,
	record      TEXT NOT NULL,
	pending     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tracking_id, day)
);

CREATE INDEX IF NOT EXISTS idx_assignments_day ON assignments(day);

CREATE TABLE IF NOT EXISTS history (
	grid_key           TEXT PRIMARY KEY,
	expected_dsp       TEXT NOT NULL,
	actual_dsp         TEXT NOT NULL,
	tracking_id        TEXT NOT NULL,
	city               TEXT NOT NULL DEFAULT '',
	postal             TEXT NOT NULL DEFAULT '',
	last_seen          TEXT NOT NULL,
	occurrence_count   INTEGER NOT NULL DEFAULT 0,
	pending_increments INTEGER NOT NULL DEFAULT 0
);
`

func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, cacheMigration)
	return eris.Wrap(err, "cache: migrate")
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveAssignment mirrors a record locally. pending marks writes that have not
// reached the remote store.
func (c *Cache) SaveAssignment(ctx context.Context, rec model.AssignmentRecord, pending bool) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "cache: marshal assignment")
	}
	p := 0
	if pending {
		p = 1
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO assignments (tracking_id, day, record, pending) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tracking_id, day) DO UPDATE SET record = excluded.record, pending = excluded.pending`,
		rec.TrackingID, rec.Day, string(recordJSON), p,
	)
	return eris.Wrapf(err, "cache: save assignment %s", rec.TrackingID)
}

// MarkSynced clears the pending flag after a successful replay.
func (c *Cache) MarkSynced(ctx context.Context, day, trackingID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE assignments SET pending = 0 WHERE tracking_id = ? AND day = ?`,
		trackingID, day,
	)
	return eris.Wrapf(err, "cache: mark synced %s", trackingID)
}

func (c *Cache) DeleteAssignment(ctx context.Context, day, trackingID string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM assignments WHERE tracking_id = ? AND day = ?`, trackingID, day)
	return eris.Wrapf(err, "cache: delete assignment %s", trackingID)
}

func (c *Cache) ClearDay(ctx context.Context, day string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM assignments WHERE day = ?`, day)
	return eris.Wrapf(err, "cache: clear day %s", day)
}

// LoadDay returns all locally cached records for a day, pending or not.
func (c *Cache) LoadDay(ctx context.Context, day string) ([]model.AssignmentRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT record FROM assignments WHERE day = ? ORDER BY tracking_id`, day)
	if err != nil {
		return nil, eris.Wrap(err, "cache: load day")
	}
	defer rows.Close()

	var out []model.AssignmentRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "cache: scan assignment")
		}
		var rec model.AssignmentRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "cache: unmarshal assignment")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "cache: iterate day")
}

// PendingAssignments returns records for a day that never reached the remote
// store, for explicit replay.
func (c *Cache) PendingAssignments(ctx context.Context, day string) ([]model.AssignmentRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT record FROM assignments WHERE day = ? AND pending = 1 ORDER BY tracking_id`, day)
	if err != nil {
		return nil, eris.Wrap(err, "cache: load pending")
	}
	defer rows.Close()

	var out []model.AssignmentRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "cache: scan pending")
		}
		var rec model.AssignmentRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "cache: unmarshal pending")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "cache: iterate pending")
}

// IncrementHistory accumulates observations locally with the same commutative
// semantics as the remote ledger. pending adds to the unsynced-increment
// counter replayed by an explicit flush.
func (c *Cache) IncrementHistory(ctx context.Context, rec model.HistoryRecord, by int, pending bool) error {
	if by <= 0 {
		by = 1
	}
	pendingBy := 0
	if pending {
		pendingBy = by
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO history
			(grid_key, expected_dsp, actual_dsp, tracking_id, city, postal, last_seen, occurrence_count, pending_increments)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (grid_key) DO UPDATE SET
			occurrence_count   = occurrence_count + excluded.occurrence_count,
			pending_increments = pending_increments + excluded.pending_increments,
			last_seen          = MAX(last_seen, excluded.last_seen),
			tracking_id        = excluded.tracking_id,
			expected_dsp       = excluded.expected_dsp,
			actual_dsp         = excluded.actual_dsp,
			city               = excluded.city,
			postal             = excluded.postal`,
		rec.GridKey, rec.ExpectedDSP, rec.ActualDSP, rec.TrackingID, rec.City, rec.Postal,
		rec.LastSeen.UTC().Format(time.RFC3339), by, pendingBy,
	)
	return eris.Wrapf(err, "cache: increment history %s", rec.GridKey)
}

func (c *Cache) GetHistory(ctx context.Context, gridKey string) (*model.HistoryRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT grid_key, expected_dsp, actual_dsp, tracking_id, city, postal, last_seen, occurrence_count
		 FROM history WHERE grid_key = ?`, gridKey)

	var rec model.HistoryRecord
	var lastSeen string
	err := row.Scan(&rec.GridKey, &rec.ExpectedDSP, &rec.ActualDSP, &rec.TrackingID,
		&rec.City, &rec.Postal, &lastSeen, &rec.OccurrenceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get history %s", gridKey)
	}
	t, err := time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse last_seen")
	}
	rec.LastSeen = t
	return &rec, nil
}

// PendingHistory returns grid cells with unsynced increments.
func (c *Cache) PendingHistory(ctx context.Context) ([]PendingHistoryRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT grid_key, expected_dsp, actual_dsp, tracking_id, city, postal, last_seen, pending_increments
		 FROM history WHERE pending_increments > 0 ORDER BY grid_key`)
	if err != nil {
		return nil, eris.Wrap(err, "cache: load pending history")
	}
	defer rows.Close()

	var out []PendingHistoryRow
	for rows.Next() {
		var r PendingHistoryRow
		var lastSeen string
		if err := rows.Scan(&r.Record.GridKey, &r.Record.ExpectedDSP, &r.Record.ActualDSP,
			&r.Record.TrackingID, &r.Record.City, &r.Record.Postal, &lastSeen, &r.Increments); err != nil {
			return nil, eris.Wrap(err, "cache: scan pending history")
		}
		t, err := time.Parse(time.RFC3339, lastSeen)
		if err != nil {
			return nil, eris.Wrap(err, "cache: parse pending last_seen")
		}
		r.Record.LastSeen = t
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "cache: iterate pending history")
}

// ClearPendingHistory zeroes the unsynced counter for a grid cell after replay.
func (c *Cache) ClearPendingHistory(ctx context.Context, gridKey string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE history SET pending_increments = 0 WHERE grid_key = ?`, gridKey)
	return eris.Wrapf(err, "cache: clear pending history %s", gridKey)
}

// PendingCounts reports how much locally buffered work awaits replay.
func (c *Cache) PendingCounts(ctx context.Context, day string) (assignments, historyIncrements int, err error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM assignments WHERE day = ? AND pending = 1`, day)
	if err := row.Scan(&assignments); err != nil {
		return 0, 0, eris.Wrap(err, "cache: count pending assignments")
	}
	row = c.db.QueryRowContext(ctx,
		`SELECT coalesce(sum(pending_increments), 0) FROM history`)
	if err := row.Scan(&historyIncrements); err != nil {
		return 0, 0, eris.Wrap(err, "cache: count pending history")
	}
	return assignments, historyIncrements, nil
}

// PendingHistoryRow pairs a ledger record with its unsynced increment count.
type PendingHistoryRow struct {
	Record     model.HistoryRecord
	Increments int
}
