package model

import "github.com/twpayne/go-geom"

// RoutePolygon is one DSP route's service boundary: a closed ring of
// (lon, lat) WGS84 coordinates. The ring is implicitly closed: the first
// vertex is logically connected to the last.
type RoutePolygon struct {
	DSP         string
	RouteNumber int
	RouteName   string
	Ring        []geom.Coord // (lon, lat) order, >= 3 vertices
}

// Valid reports whether the ring can describe a polygon at all.
func (p RoutePolygon) Valid() bool {
	return len(p.Ring) >= 3
}

// RouteAssignment is the result of resolving a point against the geofence
// index.
type RouteAssignment struct {
	DSP         string `json:"dsp"`
	RouteNumber int    `json:"route_number"`
	RouteName   string `json:"route_name"`
}
