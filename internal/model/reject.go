package model

import "fmt"

// RejectCode identifies why a scan was rejected. Rejections are expected
// outcomes with user-visible messages, not internal failures.
type RejectCode string

const (
	RejectEmptyInput           RejectCode = "empty_input"
	RejectNoAuthoritativeData  RejectCode = "no_authoritative_data"
	RejectDuplicateScan        RejectCode = "duplicate_scan"
	RejectUnknownParcel        RejectCode = "unknown_parcel"
	RejectOutsideAllBoundaries RejectCode = "outside_all_boundaries"
)

// Rejection is the typed outcome for any expected scan failure. It implements
// error so callers can propagate it, but no rejection is fatal to the process.
type Rejection struct {
	Code       RejectCode
	TrackingID string
	Message    string
}

func (r *Rejection) Error() string {
	if r.TrackingID == "" {
		return r.Message
	}
	return fmt.Sprintf("%s: %s", r.TrackingID, r.Message)
}

// NewRejection builds a rejection with the standard message for its code.
func NewRejection(code RejectCode, trackingID string) *Rejection {
	msg := ""
	switch code {
	case RejectEmptyInput:
		msg = "please enter a tracking ID"
	case RejectNoAuthoritativeData:
		msg = "no report loaded; load the daily report first"
	case RejectDuplicateScan:
		msg = "already scanned"
	case RejectUnknownParcel:
		msg = "not found in the loaded report"
	case RejectOutsideAllBoundaries:
		msg = "location outside all route boundaries"
	default:
		msg = string(code)
	}
	return &Rejection{Code: code, TrackingID: trackingID, Message: msg}
}
