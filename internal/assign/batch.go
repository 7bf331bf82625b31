package assign

import (
	"context"
	"errors"

	"github.com/sells-group/sortscan/internal/model"
)

// BatchResult aggregates per-item outcomes of a batch scan. Items are
// processed independently; one rejection never aborts the rest.
type BatchResult struct {
	Published  []model.AssignmentRecord
	Duplicates []string
	Rejected   []*model.Rejection
	Flagged    []string // published but carrying a confidence warning
}

// Total returns the number of inputs processed.
func (b *BatchResult) Total() int {
	return len(b.Published) + len(b.Duplicates) + len(b.Rejected)
}

// ScanBatch runs Scan over each tracking ID in order and buckets the
// outcomes. It stops early only on a non-rejection error, returning the
// partial result alongside it.
func (e *Engine) ScanBatch(ctx context.Context, trackingIDs []string) (*BatchResult, error) {
	res := &BatchResult{}
	for _, id := range trackingIDs {
		rec, err := e.Scan(ctx, id)
		if err != nil {
			var rej *model.Rejection
			if errors.As(err, &rej) {
				if rej.Code == model.RejectDuplicateScan {
					res.Duplicates = append(res.Duplicates, rej.TrackingID)
				} else {
					res.Rejected = append(res.Rejected, rej)
				}
				continue
			}
			return res, err
		}
		res.Published = append(res.Published, *rec)
		if rec.HasWarning {
			res.Flagged = append(res.Flagged, rec.TrackingID)
		}
	}
	return res, nil
}
