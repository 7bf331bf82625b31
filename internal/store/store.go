// Package store persists the shared scanned set and the mismatch history
// ledger: a remote Postgres store shared by all operators, and a local SQLite
// cache each client falls back to when the remote store is unreachable.
package store

import (
	"context"

	"github.com/sells-group/sortscan/internal/model"
)

// Shared is the remote store all operator clients converge on. Assignment
// documents are keyed by tracking ID and scoped by operational day; history
// rows are keyed by quantized grid cell.
type Shared interface {
	// Assignments
	PutAssignment(ctx context.Context, rec model.AssignmentRecord) error
	DeleteAssignment(ctx context.Context, day, trackingID string) error
	ClearDay(ctx context.Context, day string) (int, error)
	ListDay(ctx context.Context, day string) ([]model.AssignmentRecord, error)
	ListAll(ctx context.Context) ([]model.AssignmentRecord, error)

	// Changes opens the change feed for one operational day. The returned
	// sequence is lazy, unbounded, and non-restartable: it closes when ctx is
	// cancelled or the feed connection fails, and a new call opens a new feed.
	Changes(ctx context.Context, day string) (<-chan model.ChangeEvent, error)

	// History ledger
	IncrementHistory(ctx context.Context, rec model.HistoryRecord, by int) error
	GetHistory(ctx context.Context, gridKey string) (*model.HistoryRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close()
}
