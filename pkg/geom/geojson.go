package geom

import (
	"encoding/json"
	"fmt"
)

// GeoJSON is a geometry object in GeoJSON form. Coordinates is one of
// []float64 (Point), [][]float64 (LineString), [][][]float64 (Polygon) or
// [][][][]float64 (MultiPolygon).
type GeoJSON struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// ShapeFromGeoJSON converts a decoded GeoJSON geometry back into a Shape.
// MultiPolygon input is not supported here; masks are carried as rasters on
// the wire, never as GeoJSON.
func ShapeFromGeoJSON(g GeoJSON) (Shape, error) {
	raw, err := json.Marshal(g.Coordinates)
	if err != nil {
		return nil, err
	}
	switch g.Type {
	case "Point":
		var c []float64
		if err := json.Unmarshal(raw, &c); err != nil || len(c) != 2 {
			return nil, fmt.Errorf("malformed Point coordinates")
		}
		return Point{X: c[0], Y: c[1]}, nil
	case "LineString":
		var c [][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("malformed LineString coordinates")
		}
		return NewLine(coordsToPoints(c))
	case "Polygon":
		var c [][][]float64
		if err := json.Unmarshal(raw, &c); err != nil || len(c) == 0 {
			return nil, fmt.Errorf("malformed Polygon coordinates")
		}
		ring := coordsToPoints(c[0])
		// Drop the closing point; the Polygon closes its own ring.
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		return NewPolygon(ring)
	default:
		return nil, fmt.Errorf("unsupported GeoJSON geometry type %q", g.Type)
	}
}

func coordsToPoints(coords [][]float64) []Point {
	points := make([]Point, 0, len(coords))
	for _, c := range coords {
		if len(c) >= 2 {
			points = append(points, Point{X: c[0], Y: c[1]})
		}
	}
	return points
}
