// Package heuristics rates how trustworthy a geofence-derived assignment is,
// combining a static table of known problem zones with the accumulated
// mismatch history for the parcel's grid cell.
package heuristics

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/sortscan/internal/model"
)

// HistoryLookup resolves the accumulated mismatch record for a coordinate's
// grid cell, or nil when none exists.
type HistoryLookup func(lat, lon float64) *model.HistoryRecord

// Engine scores assignments against its zone rule table. Safe for concurrent
// use; the rule table never changes after construction.
type Engine struct {
	rules  []model.MismatchZoneRule
	folder cases.Caser
}

// NewEngine builds an engine over an immutable zone rule table.
func NewEngine(rules []model.MismatchZoneRule) *Engine {
	return &Engine{rules: rules, folder: cases.Fold()}
}

// ClassifyZone returns the first rule matching the location and detected DSP,
// or nil. A rule fires when the city contains one of its aliases (case-folded)
// or the postal code matches exactly, and the rule's expected DSP equals the
// DSP the geofence detected. It encodes "when the geofence says X here, the
// authoritative system usually prefers Y".
func (e *Engine) ClassifyZone(city, postal, detectedDSP string) *model.MismatchZoneRule {
	foldedCity := e.folder.String(strings.TrimSpace(city))
	postal = strings.TrimSpace(postal)

	for i := range e.rules {
		rule := &e.rules[i]
		if rule.ExpectedDSP != detectedDSP {
			continue
		}
		if e.matchesLocation(rule, foldedCity, postal) {
			return rule
		}
	}
	return nil
}

func (e *Engine) matchesLocation(rule *model.MismatchZoneRule, foldedCity, postal string) bool {
	for _, alias := range rule.CityAliases {
		if foldedCity != "" && strings.Contains(foldedCity, e.folder.String(alias)) {
			return true
		}
	}
	for _, code := range rule.PostalCodes {
		if postal != "" && postal == code {
			return true
		}
	}
	return false
}

// Score rates an assignment on a 0-100 scale. It starts at 100 and deducts
// for a firing zone rule (40/25/15 by priority) and, independently, for prior
// mismatch history at the parcel's grid cell (10 per occurrence, capped at
// 30). Reasons accumulate in evaluation order, zone before history. Absence
// of data yields 100/HIGH; scoring never fails.
func (e *Engine) Score(parcel model.ParcelLocation, detectedDSP string, lookup HistoryLookup) model.ScoreResult {
	result := model.ScoreResult{Score: 100}

	if rule := e.ClassifyZone(parcel.City, parcel.PostalCode, detectedDSP); rule != nil {
		result.Score -= rule.Priority.Deduction()
		result.ZoneFired = true
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("known mismatch zone: %s", rule.Description))
	}

	if lookup != nil {
		if rec := lookup(parcel.Latitude, parcel.Longitude); rec != nil && rec.ExpectedDSP == detectedDSP {
			deduction := rec.OccurrenceCount * 10
			if deduction > 30 {
				deduction = 30
			}
			result.Score -= deduction
			result.HasHistory = true
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("%d prior mismatch(es) at this location, last seen %s",
					rec.OccurrenceCount, rec.LastSeen.Format("2006-01-02")))
		}
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Level = model.LevelForScore(result.Score)
	return result
}
