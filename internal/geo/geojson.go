package geo

import (
	"encoding/json"
	"fmt"
)

// Point is a WGS84 coordinate. GeoJSON orders positions longitude-first.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Ring is a closed linear ring of a polygon. The first ring of a polygon is
// the outer boundary, any further rings are holes.
type Ring []Point

// Zone is a decoded service-zone geometry: one or more polygons, each made of
// an outer ring plus optional holes.
type Zone struct {
	polygons [][]Ring
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseZone decodes a GeoJSON Polygon or MultiPolygon geometry.
func ParseZone(data []byte) (*Zone, error) {
	var g rawGeometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}

	switch g.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("failed to decode Polygon coordinates: %w", err)
		}
		poly, err := buildPolygon(coords)
		if err != nil {
			return nil, err
		}
		return &Zone{polygons: [][]Ring{poly}}, nil
	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("failed to decode MultiPolygon coordinates: %w", err)
		}
		var polygons [][]Ring
		for i, polyCoords := range coords {
			poly, err := buildPolygon(polyCoords)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			polygons = append(polygons, poly)
		}
		return &Zone{polygons: polygons}, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q (want Polygon or MultiPolygon)", g.Type)
	}
}

func buildPolygon(coords [][][]float64) ([]Ring, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	rings := make([]Ring, 0, len(coords))
	for i, rawRing := range coords {
		if len(rawRing) < 3 {
			return nil, fmt.Errorf("ring %d has fewer than 3 positions", i)
		}
		ring := make(Ring, 0, len(rawRing))
		for j, pos := range rawRing {
			if len(pos) < 2 {
				return nil, fmt.Errorf("ring %d position %d is not a coordinate pair", i, j)
			}
			ring = append(ring, Point{Lng: pos[0], Lat: pos[1]})
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
