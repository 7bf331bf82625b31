// Package geofence resolves GPS coordinates to DSP route territories by
// testing points against route boundary polygons.
package geofence

import (
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/sortscan/internal/model"
)

// Resolver answers "which route contains this point". Satisfied by *Index;
// kept narrow so a spatial index can replace the linear scan later without
// touching callers.
type Resolver interface {
	Resolve(lat, lon float64) *model.RouteAssignment
}

// Index owns the loaded route polygons. Containment is tested in load order
// across all DSPs and the first hit wins, so overlapping routes resolve to
// whichever loaded earlier. That load-order dependence is part of the
// contract, not an accident.
type Index struct {
	mu     sync.RWMutex
	routes []model.RoutePolygon
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Load replaces all polygons for one DSP atomically. If the DSP was already
// loaded, the new polygons take over its position in the load order, so a
// boundary correction does not reshuffle overlap resolution. New DSPs append.
func (ix *Index) Load(dspCode string, polygons []model.RoutePolygon) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	insertAt := -1
	kept := make([]model.RoutePolygon, 0, len(ix.routes))
	for _, r := range ix.routes {
		if r.DSP == dspCode {
			if insertAt == -1 {
				insertAt = len(kept)
			}
			continue
		}
		kept = append(kept, r)
	}
	if insertAt == -1 {
		insertAt = len(kept)
	}

	next := make([]model.RoutePolygon, 0, len(kept)+len(polygons))
	next = append(next, kept[:insertAt]...)
	next = append(next, polygons...)
	next = append(next, kept[insertAt:]...)
	ix.routes = next
}

// Resolve returns the first route, in load order, whose polygon contains the
// point. A nil result is the legitimate "outside all boundaries" answer, not
// an error.
func (ix *Index) Resolve(lat, lon float64) *model.RouteAssignment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, route := range ix.routes {
		if containsPoint(route.Ring, lat, lon) {
			return &model.RouteAssignment{
				DSP:         route.DSP,
				RouteNumber: route.RouteNumber,
				RouteName:   route.RouteName,
			}
		}
	}
	return nil
}

// Routes returns a copy of the loaded polygons in load order.
func (ix *Index) Routes() []model.RoutePolygon {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]model.RoutePolygon, len(ix.routes))
	copy(out, ix.routes)
	return out
}

// Count returns the number of loaded route polygons.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.routes)
}

// containsPoint implements the even-odd ray-casting rule over an implicitly
// closed (lon, lat) ring. An edge counts as a crossing only when its endpoint
// latitudes lie on strictly opposite sides of the test latitude and the
// horizontal intercept at that latitude exceeds the point's longitude. Points
// exactly on a boundary get a deterministic, repeatable answer under this
// rule; which side they land on is not specified.
func containsPoint(ring []geom.Coord, lat, lon float64) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
