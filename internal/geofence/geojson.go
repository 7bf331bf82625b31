package geofence

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
)

// LoadGeoJSON parses one DSP's route file: a GeoJSON FeatureCollection of
// Polygon features carrying "name" and "sequenceOrder" properties. Route
// numbers are 1-based from sequenceOrder. Malformed polygon data aborts the
// load; it never partially applies.
func LoadGeoJSON(path, dspCode string) ([]model.RoutePolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geofence: read route file %s", path)
	}
	return ParseGeoJSON(data, dspCode)
}

// ParseGeoJSON decodes route polygons for one DSP from GeoJSON bytes.
func ParseGeoJSON(data []byte, dspCode string) ([]model.RoutePolygon, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geofence: parse GeoJSON for %s", dspCode)
	}

	polygons := make([]model.RoutePolygon, 0, len(fc.Features))
	for i, feat := range fc.Features {
		poly, ok := feat.Geometry.(*geom.Polygon)
		if !ok {
			return nil, eris.Errorf("geofence: %s feature %d: expected Polygon, got %T", dspCode, i, feat.Geometry)
		}
		if poly.NumLinearRings() == 0 {
			return nil, eris.Errorf("geofence: %s feature %d: polygon has no rings", dspCode, i)
		}

		ring := ringCoords(poly.LinearRing(0))
		rp := model.RoutePolygon{
			DSP:         dspCode,
			RouteNumber: sequenceOrder(feat.Properties) + 1,
			RouteName:   stringProp(feat.Properties, "name"),
			Ring:        ring,
		}
		if !rp.Valid() {
			return nil, eris.Errorf("geofence: %s feature %d: ring has %d vertices, need >= 3", dspCode, i, len(ring))
		}
		polygons = append(polygons, rp)
	}

	zap.L().Info("loaded route polygons",
		zap.String("dsp", dspCode),
		zap.Int("routes", len(polygons)),
	)
	return polygons, nil
}

// ringCoords extracts the exterior ring, dropping the GeoJSON closing vertex
// when it repeats the first; the index treats rings as implicitly closed.
func ringCoords(ring *geom.LinearRing) []geom.Coord {
	coords := ring.Coords()
	if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}
	return coords
}

func sequenceOrder(props map[string]any) int {
	switch v := props["sequenceOrder"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}
