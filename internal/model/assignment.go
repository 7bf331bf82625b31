// Package model defines the core types shared across the scan, sync, and
// comparison workflows.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ConfidenceLevel buckets a confidence score for display and filtering.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// LevelForScore maps a 0-100 confidence score to its level bucket.
func LevelForScore(score int) ConfidenceLevel {
	switch {
	case score >= 85:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// AssignmentRecord is one scanned parcel routed to a DSP territory. The
// tracking ID is the natural key: at most one live record per tracking ID per
// operational day. Records are created once and never mutated in place; a
// re-scan is rejected as a duplicate, not merged.
type AssignmentRecord struct {
	TrackingID      string          `json:"tracking_id"`
	DSP             string          `json:"dsp"`
	RouteNumber     int             `json:"route_number"`
	RouteName       string          `json:"route_name"`
	Latitude        float64         `json:"latitude"`
	Longitude       float64         `json:"longitude"`
	Address         string          `json:"address,omitempty"`
	City            string          `json:"city,omitempty"`
	ScannedAt       time.Time       `json:"scanned_at"`
	ConfidenceScore int             `json:"confidence_score"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	HasWarning      bool            `json:"has_warning"`
	Reasons         []string        `json:"reasons,omitempty"`
	SessionID       string          `json:"session_id"`
	Day             string          `json:"day"`
}

// EventKind discriminates change-feed events.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
)

// ChangeEvent is one entry in the shared-store change feed. Removed events
// carry only the tracking ID of the record they remove.
type ChangeEvent struct {
	Kind   EventKind         `json:"kind"`
	Day    string            `json:"day"`
	Record *AssignmentRecord `json:"record,omitempty"`
}

// TrackingID returns the tracking ID the event applies to, for either kind.
func (e ChangeEvent) TrackingID() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.TrackingID
}

// NewSessionID mints the process-scoped identity used for echo suppression.
// It is created once per running client and never persisted beyond it.
func NewSessionID() string {
	return uuid.New().String()
}

// OperationalDay is the calendar-date key that partitions the shared scanned
// set into daily working sets.
func OperationalDay(t time.Time) string {
	return t.Format("2006-01-02")
}
