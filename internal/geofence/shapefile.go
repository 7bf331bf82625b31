package geofence

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/model"
)

// LoadShapefile reads one DSP's boundary shapefile and returns its route
// polygons in record order. Only the outer ring of each polygon record is
// used; the route name comes from a NAME attribute when present. Records
// without polygon geometry abort the load, same as malformed GeoJSON.
func LoadShapefile(shpPath, dspCode string) ([]model.RoutePolygon, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geofence: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, "name") {
			nameIdx = i
			break
		}
	}

	var polygons []model.RoutePolygon
	seq := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			return nil, eris.Errorf("geofence: %s record %d: expected polygon geometry, got %T", dspCode, seq, shape)
		}

		ring := outerRing(poly)
		if len(ring) < 3 {
			return nil, eris.Errorf("geofence: %s record %d: degenerate ring", dspCode, seq)
		}

		routeName := ""
		if nameIdx >= 0 {
			routeName = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}

		polygons = append(polygons, model.RoutePolygon{
			DSP:         dspCode,
			RouteNumber: seq + 1,
			RouteName:   routeName,
			Ring:        ring,
		})
		seq++
	}

	zap.L().Info("loaded route polygons from shapefile",
		zap.String("dsp", dspCode),
		zap.Int("routes", len(polygons)),
	)
	return polygons, nil
}

// outerRing extracts the first part of a shapefile polygon as (lon, lat)
// coords, dropping the explicit closing vertex.
func outerRing(p *shp.Polygon) []geom.Coord {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}

	coords := make([]geom.Coord, 0, end-p.Parts[0])
	for j := p.Parts[0]; j < end; j++ {
		coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
	}
	if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}
	return coords
}
