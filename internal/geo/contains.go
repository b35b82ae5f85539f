package geo

// Contains reports whether the point lies inside the zone using the even-odd
// rule: a point inside an outer ring but also inside a hole ring is outside.
// For a MultiPolygon the zone is the union of its polygons.
func (z *Zone) Contains(p Point) bool {
	if z == nil {
		return false
	}
	for _, rings := range z.polygons {
		inside := false
		for _, ring := range rings {
			if ringContains(ring, p) {
				inside = !inside
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// ringContains runs the ray-casting test for a single ring: cast a ray from
// the point toward +lng and count edge crossings; an odd count means inside.
func ringContains(ring Ring, p Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat

		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
